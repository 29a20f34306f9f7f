package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/api/handlers"
	"github.com/BaSui01/pathfinder/config"
	"github.com/BaSui01/pathfinder/internal/server"
)

// =============================================================================
// 🚀 serve 命令
// =============================================================================

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting pathfinder",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	a, err := newApp(ctx, cfg, logger, level)
	if err != nil {
		return err
	}

	// 配置热重载
	hot := config.NewHotReloadManager(cfg,
		config.WithHotReloadLogger(logger),
		config.WithConfigPath(*configPath),
	)
	hot.OnReload(a.onReload)
	hot.OnRollback(a.onRollback)
	if *configPath != "" {
		if err := hot.Start(ctx); err != nil {
			logger.Warn("config watcher not started", zap.Error(err))
		}
	}

	srv := newHTTPServer(ctx, a, hot)
	if err := srv.main.Start(); err != nil {
		a.close(context.Background())
		return err
	}
	if srv.metrics != nil {
		if err := srv.metrics.Start(); err != nil {
			logger.Warn("metrics server not started", zap.Error(err))
		}
	}
	logger.Info("pathfinder ready", zap.String("addr", srv.main.Addr()))

	// 阻塞直到收到信号或服务出错
	serveErr := srv.main.Wait(ctx)

	grace := cfg.Server.ShutdownTimeout
	if grace <= 0 {
		grace = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if srv.metrics != nil {
		if err := srv.metrics.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	if err := hot.Stop(); err != nil {
		logger.Warn("config watcher stop", zap.Error(err))
	}
	a.close(shutdownCtx)
	logger.Info("pathfinder stopped")
	return serveErr
}

// httpServers 主服务与可选的独立指标服务
type httpServers struct {
	main    *server.Manager
	metrics *server.Manager
}

func newHTTPServer(ctx context.Context, a *app, hot *config.HotReloadManager) httpServers {
	cfg := a.cfg
	handler := buildHandler(ctx, a, hot)

	sc := server.DefaultConfig()
	sc.Addr = fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	if cfg.Server.ReadTimeout > 0 {
		sc.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		sc.WriteTimeout = cfg.Server.WriteTimeout
	}
	if cfg.Server.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	out := httpServers{main: server.NewManager(handler, sc, a.logger)}

	if cfg.Server.MetricsPort > 0 && cfg.Server.MetricsPort != cfg.Server.HTTPPort {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", a.collector.Handler())
		mc := server.DefaultConfig()
		mc.Addr = fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		mc.WriteTimeout = 30 * time.Second
		out.metrics = server.NewManager(mux, mc, a.logger.With(zap.String("server", "metrics")))
	}
	return out
}

// buildHandler 注册路由并套上中间件
func buildHandler(ctx context.Context, a *app, hot *config.HotReloadManager) http.Handler {
	cfg := a.cfg
	logger := a.logger
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(logger)
	a.registerChecks(health)
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("GET /metrics", a.collector.Handler())

	plans := handlers.NewPlanHandler(a.planService, logger).
		WithRecorder(a.collector).
		WithOriginPatterns(originHosts(cfg.Server.CORSAllowedOrigins)...)
	mux.HandleFunc("POST /api/v1/plan", plans.HandlePlan)
	mux.HandleFunc("POST /api/v1/plan/stream", plans.HandleStream)
	mux.HandleFunc("GET /api/v1/plan/ws", plans.HandleWebSocket)

	// 风险日志未启用时传入无类型 nil，接口返回 503
	var store handlers.RiskStore
	if a.risks != nil {
		store = a.risks
	}
	risks := handlers.NewRiskHandler(store, logger)
	mux.HandleFunc("GET /api/v1/risks", risks.HandleList)
	mux.HandleFunc("GET /api/v1/risks/summary", risks.HandleSummary)

	if cfg.Server.AdminAPIKey != "" && hot != nil {
		config.NewConfigAPIHandler(hot, cfg.Server.AdminAPIKey).RegisterRoutes(mux)
		logger.Info("config admin API enabled")
	}

	return Chain(Metrics(a.collector)(mux),
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(logger),
		OTelTracing(),
		CORS(cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger),
		JWTAuth(cfg.JWT, logger),
	)
}

// originHosts 把 CORS 来源转为 websocket 接受的 host 模式
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}

// =============================================================================
// 🩺 health 命令
// =============================================================================

func runHealthCheck(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *addr+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Fprintln(out, "OK")
	return nil
}
