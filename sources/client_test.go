package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/types"
)

type recordedCall struct {
	service string
	outcome string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *fakeRecorder) RecordExternalCall(service, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{service: service, outcome: outcome})
}

func statusServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func tightBreaker() BreakerConfig {
	return BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1, Interval: time.Minute}
}

func TestClient_BreakerOpensOnRetryableFailures(t *testing.T) {
	var hits atomic.Int32
	srv := statusServer(t, http.StatusBadGateway, &hits)
	c := newClient("test", ServiceConfig{BaseURL: srv.URL}, WithBreaker(tightBreaker()), WithLogger(zap.NewNop()))

	for i := 0; i < 2; i++ {
		err := c.getJSON(context.Background(), "/x", nil, nil, nil)
		require.Error(t, err)
		assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
		assert.True(t, types.IsRetryable(err))
	}

	err := c.getJSON(context.Background(), "/x", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrServiceUnavailable, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the server")
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := statusServer(t, http.StatusNotFound, &hits)
	c := newClient("test", ServiceConfig{BaseURL: srv.URL}, WithBreaker(tightBreaker()))

	for i := 0; i < 5; i++ {
		err := c.getJSON(context.Background(), "/x", nil, nil, nil)
		assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestClient_RecordsOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	c := newClient("svc", ServiceConfig{BaseURL: srv.URL}, WithRecorder(rec))

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.getJSON(context.Background(), "/ok", nil, nil, &out))
	assert.True(t, out.OK)
	require.Error(t, c.getJSON(context.Background(), "/missing", nil, nil, nil))

	assert.Equal(t, []recordedCall{
		{service: "svc", outcome: "ok"},
		{service: "svc", outcome: "not_found"},
	}, rec.calls)
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newClient("svc", ServiceConfig{BaseURL: srv.URL})
	var out map[string]any
	err := c.getJSON(context.Background(), "/", nil, nil, &out)
	assert.True(t, types.IsErrorCode(err, types.ErrMalformedOutput))
}

func TestClient_DeadlineMapsToTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newClient("slow", ServiceConfig{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.getJSON(ctx, "/", nil, nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamTimeout))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "empty response body", snippet(nil))
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, snippet(long), 303)
}
