package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/pathfinder/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []*ChatRequest
	fn    func(call int, req *ChatRequest) (*ChatResponse, error)
}

func (f *fakeProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	return f.fn(n, req)
}

func (f *fakeProvider) HealthCheck(context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

type recorder struct {
	outcomes []string
}

func (r *recorder) RecordExternalCall(service, outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, service+":"+outcome)
}

func testConfig() GeneratorConfig {
	cfg := DefaultGeneratorConfig()
	cfg.MaxRetries = 1
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

func TestGenerator_Generate(t *testing.T) {
	p := &fakeProvider{fn: func(int, *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{Text: `{"ok":true}`}, nil
	}}
	rec := &recorder{}
	g := NewGenerator(p, testConfig(), zap.NewNop()).WithRecorder(rec)

	out, err := g.Generate(context.Background(), "hello", WithModel("gemini-2.5-pro"), WithSystem("sys"), WithJSON())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	require.Len(t, p.calls, 1)
	req := p.calls[0]
	assert.Equal(t, "gemini-2.5-pro", req.Model)
	assert.True(t, req.JSONMode)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[1].Content)
	assert.Equal(t, []string{"fake:ok"}, rec.outcomes)
}

func TestGenerator_RetriesRateLimitOnly(t *testing.T) {
	p := &fakeProvider{fn: func(call int, _ *ChatRequest) (*ChatResponse, error) {
		if call == 1 {
			return nil, types.NewRateLimitError("fake", "slow down")
		}
		return &ChatResponse{Text: "second"}, nil
	}}
	g := NewGenerator(p, testConfig(), zap.NewNop())

	out, err := g.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "second", out)
	assert.Len(t, p.calls, 2)

	p2 := &fakeProvider{fn: func(int, *ChatRequest) (*ChatResponse, error) {
		return nil, types.NewInvalidRequestError("bad prompt")
	}}
	_, err = NewGenerator(p2, testConfig(), zap.NewNop()).Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Len(t, p2.calls, 1)

	// 5xx 也是一次失败即降级
	p3 := &fakeProvider{fn: func(int, *ChatRequest) (*ChatResponse, error) {
		return nil, types.NewUpstreamError("fake", http.StatusServiceUnavailable, "overloaded")
	}}
	_, err = NewGenerator(p3, testConfig(), zap.NewNop()).Generate(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	assert.Len(t, p3.calls, 1)
}

func TestGenerator_DefaultsCallProviderOnce(t *testing.T) {
	for _, fail := range []error{
		types.NewUpstreamError("fake", http.StatusServiceUnavailable, "overloaded"),
		types.NewRateLimitError("fake", "slow down"),
	} {
		p := &fakeProvider{fn: func(int, *ChatRequest) (*ChatResponse, error) { return nil, fail }}
		_, err := NewGenerator(p, DefaultGeneratorConfig(), zap.NewNop()).Generate(context.Background(), "x")
		require.Error(t, err)
		assert.Len(t, p.calls, 1, "%v", fail)
	}
}

func TestGenerator_EmptyOutputIsMalformed(t *testing.T) {
	p := &fakeProvider{fn: func(int, *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{Text: "  "}, nil
	}}
	_, err := NewGenerator(p, testConfig(), nil).Generate(context.Background(), "x")
	assert.True(t, types.IsErrorCode(err, types.ErrMalformedOutput))
}

func TestGenerator_NotConfigured(t *testing.T) {
	var g *Generator
	_, err := g.Generate(context.Background(), "x")
	assert.True(t, types.IsErrorCode(err, types.ErrNotConfigured))
}

func TestGenerator_InlinesAtMostThreeImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("PNG"))
	}))
	defer srv.Close()

	p := &fakeProvider{fn: func(int, *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{Text: "ok"}, nil
	}}
	g := NewGenerator(p, testConfig(), zap.NewNop())

	_, err := g.Generate(context.Background(), "score", WithImages(
		srv.URL+"/missing", srv.URL+"/a", "", srv.URL+"/b", srv.URL+"/c", srv.URL+"/d",
	))
	require.NoError(t, err)

	imgs := p.calls[0].Messages[0].Images
	require.Len(t, imgs, 3)
	assert.Equal(t, "image/png", imgs[0].MimeType)
	assert.Equal(t, []byte("PNG"), imgs[0].Data)
	assert.Equal(t, srv.URL+"/a", imgs[0].URL)
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "https://x/media", redactKey("https://x/media?key=secret"))
	assert.Equal(t, "https://x/media", redactKey("https://x/media"))
}
