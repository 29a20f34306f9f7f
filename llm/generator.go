package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/pathfinder/internal/retry"
	"github.com/BaSui01/pathfinder/internal/tlsutil"
	"github.com/BaSui01/pathfinder/types"
	"go.uber.org/zap"
)

// maxInlineImages 每次调用最多内联的图片数
const maxInlineImages = 3

// CallRecorder receives one observation per external call.
type CallRecorder interface {
	RecordExternalCall(service, outcome string, duration time.Duration)
}

// GeneratorConfig 生成器配置
type GeneratorConfig struct {
	DefaultModel   string        `yaml:"default_model" json:"default_model"`
	Temperature    float32       `yaml:"temperature" json:"temperature"`
	MaxTokens      int           `yaml:"max_tokens" json:"max_tokens"`
	CallTimeout    time.Duration `yaml:"call_timeout" json:"call_timeout"`
	ImageTimeout   time.Duration `yaml:"image_timeout" json:"image_timeout"`
	MaxImageBytes  int64         `yaml:"max_image_bytes" json:"max_image_bytes"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`
}

// DefaultGeneratorConfig returns the defaults used by the pipeline stages.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		DefaultModel:   "gemini-2.5-flash",
		Temperature:    0.4,
		MaxTokens:      8192,
		CallTimeout:    30 * time.Second,
		ImageTimeout:   10 * time.Second,
		MaxImageBytes:  5 << 20,
		MaxRetries:     0,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

// GenerateOption customizes a single Generate call.
type GenerateOption func(*generateOptions)

type generateOptions struct {
	images   []string
	model    string
	system   string
	jsonMode bool
}

// WithImages attaches image URLs; at most three are fetched and inlined.
func WithImages(urls ...string) GenerateOption {
	return func(o *generateOptions) { o.images = append(o.images, urls...) }
}

// WithModel overrides the configured default model.
func WithModel(model string) GenerateOption {
	return func(o *generateOptions) { o.model = model }
}

// WithSystem sets a system instruction.
func WithSystem(system string) GenerateOption {
	return func(o *generateOptions) { o.system = system }
}

// WithJSON asks the provider for a JSON response body.
func WithJSON() GenerateOption {
	return func(o *generateOptions) { o.jsonMode = true }
}

// Generator is the stage-facing entry point to the text-generation service.
type Generator struct {
	provider Provider
	cfg      GeneratorConfig
	client   *http.Client
	retryer  retry.Retryer
	recorder CallRecorder
	logger   *zap.Logger
}

// NewGenerator wraps provider with timeouts, retries and image inlining.
func NewGenerator(provider Provider, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultGeneratorConfig()
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = def.ImageTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = def.MaxImageBytes
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	logger = logger.With(zap.String("component", "generator"))
	return &Generator{
		provider: provider,
		cfg:      cfg,
		client:   tlsutil.SecureHTTPClient(cfg.ImageTimeout),
		retryer: retry.NewBackoffRetryer(&retry.RetryPolicy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.RetryBaseDelay,
			MaxDelay:     4 * cfg.RetryBaseDelay,
			Multiplier:   2.0,
			Jitter:       true,
			RetryIf:      isRateLimited,
		}, logger),
		logger: logger,
	}
}

// isRateLimited 只有限流才重试；其余失败交给调用方的降级逻辑
func isRateLimited(err error) bool {
	return types.IsErrorCode(err, types.ErrRateLimited)
}

// WithRecorder attaches a metrics recorder.
func (g *Generator) WithRecorder(r CallRecorder) *Generator {
	g.recorder = r
	return g
}

// WithHTTPClient overrides the client used to download images.
func (g *Generator) WithHTTPClient(c *http.Client) *Generator {
	if c != nil {
		g.client = c
	}
	return g
}

// Generate sends prompt (plus optional images) and returns the raw text.
func (g *Generator) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	if g == nil || g.provider == nil {
		return "", types.NewError(types.ErrNotConfigured, "text generator not configured")
	}
	o := &generateOptions{}
	for _, opt := range opts {
		opt(o)
	}
	model := o.model
	if model == "" {
		model = g.cfg.DefaultModel
	}

	user := Message{Role: RoleUser, Content: prompt}
	if len(o.images) > 0 {
		user.Images = g.fetchImages(ctx, o.images)
	}
	msgs := make([]Message, 0, 2)
	if o.system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: o.system})
	}
	msgs = append(msgs, user)

	req := &ChatRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		JSONMode:    o.jsonMode,
	}
	if id, ok := types.TraceID(ctx); ok {
		req.TraceID = id
	}

	start := time.Now()
	text, err := retry.DoWithResult(ctx, g.retryer, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		defer cancel()
		resp, err := g.provider.Completion(callCtx, req)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return "", types.NewTimeoutError(g.provider.Name(), err)
			}
			return "", err
		}
		return resp.Text, nil
	})
	g.record(err, time.Since(start))
	if err != nil {
		g.logger.Warn("generation failed",
			zap.String("model", model),
			zap.Error(err),
		)
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", types.NewError(types.ErrMalformedOutput, "empty generation").WithSource(g.provider.Name())
	}
	return text, nil
}

func (g *Generator) record(err error, d time.Duration) {
	if g.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(types.GetErrorCode(err)))
		if outcome == "" {
			outcome = "error"
		}
	}
	g.recorder.RecordExternalCall(g.provider.Name(), outcome, d)
}

// fetchImages 下载并内联图片；单张失败只记录日志
func (g *Generator) fetchImages(ctx context.Context, urls []string) []Image {
	images := make([]Image, 0, maxInlineImages)
	for _, u := range urls {
		if len(images) >= maxInlineImages {
			break
		}
		if strings.TrimSpace(u) == "" {
			continue
		}
		img, err := g.fetchImage(ctx, u)
		if err != nil {
			g.logger.Debug("image fetch failed", zap.String("url", redactKey(u)), zap.Error(err))
			continue
		}
		images = append(images, img)
	}
	return images
}

func (g *Generator) fetchImage(ctx context.Context, url string) (Image, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ImageTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Image{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Image{}, fmt.Errorf("image status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, g.cfg.MaxImageBytes))
	if err != nil {
		return Image{}, err
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	return Image{MimeType: mime, Data: data, URL: url}, nil
}

// redactKey strips query strings, which may carry API keys, from logged URLs.
func redactKey(u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		return u[:i]
	}
	return u
}
