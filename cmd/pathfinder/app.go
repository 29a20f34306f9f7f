package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/api/handlers"
	"github.com/BaSui01/pathfinder/config"
	"github.com/BaSui01/pathfinder/identity"
	"github.com/BaSui01/pathfinder/internal/cache"
	"github.com/BaSui01/pathfinder/internal/database"
	"github.com/BaSui01/pathfinder/internal/metrics"
	"github.com/BaSui01/pathfinder/internal/migration"
	"github.com/BaSui01/pathfinder/internal/telemetry"
	"github.com/BaSui01/pathfinder/llm"
	"github.com/BaSui01/pathfinder/llm/providers/gemini"
	"github.com/BaSui01/pathfinder/llm/tokenizer"
	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/risklog"
	"github.com/BaSui01/pathfinder/sources"
	"github.com/BaSui01/pathfinder/workflow"
)

// =============================================================================
// 🧩 应用装配
// =============================================================================

// app 持有进程内共享的协作者。规划器本身可随配置热更新重建，
// 其余依赖（外部客户端、缓存、数据库）只在启动时创建一次。
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	level  zap.AtomicLevel

	registry  *prometheus.Registry
	collector *metrics.Collector
	telemetry *telemetry.Providers

	provider llm.Provider
	cache    *cache.Manager
	db       *database.PoolManager
	risks    *risklog.Store

	deps    planner.Deps
	current atomic.Pointer[planner.Planner]
}

// newApp 按配置创建全部依赖；可选组件（Redis、数据库、身份服务）
// 不可用时降级并记录告警，只有规划器参数非法才返回错误。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel) (*app, error) {
	a := &app{cfg: cfg, logger: logger, level: level}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector("pathfinder", a.registry, logger)

	tp, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		// 遥测失败不影响服务
		logger.Warn("telemetry disabled", zap.Error(err))
	}
	a.telemetry = tp

	a.openCache()
	if err := a.openRiskLog(ctx); err != nil {
		logger.Warn("risk log disabled", zap.Error(err))
	}
	a.deps = a.buildDeps()

	if err := a.rebuild(cfg.Pipeline); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// openCache 连接搜索缓存；失败时搜索直接访问外部源
func (a *app) openCache() {
	if a.cfg.Redis.Addr == "" {
		return
	}
	cc := cache.DefaultConfig()
	cc.Addr = a.cfg.Redis.Addr
	cc.Password = a.cfg.Redis.Password
	cc.DB = a.cfg.Redis.DB
	if a.cfg.Redis.PoolSize > 0 {
		cc.PoolSize = a.cfg.Redis.PoolSize
	}
	cc.MinIdleConns = a.cfg.Redis.MinIdleConns
	cc.DefaultTTL = a.cfg.Pipeline.SearchCacheTTL

	m, err := cache.NewManager(cc, a.logger)
	if err != nil {
		a.logger.Warn("search cache disabled", zap.Error(err))
		return
	}
	a.cache = m.WithRecorder(a.collector)
}

// openRiskLog 打开风险日志数据库，按需执行迁移
func (a *app) openRiskLog(ctx context.Context) error {
	dbCfg := a.cfg.Database
	if dbCfg.Driver == "" {
		return nil
	}
	if dbCfg.AutoMigrate {
		m, err := migration.NewMigratorFromDatabaseConfig(dbCfg, a.logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		upErr := m.Up(ctx)
		closeErr := m.Close()
		if err := errors.Join(upErr, closeErr); err != nil {
			return fmt.Errorf("migrate risk log: %w", err)
		}
	}

	pc := database.DefaultPoolConfig()
	if dbCfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = dbCfg.MaxOpenConns
	}
	if dbCfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = dbCfg.MaxIdleConns
	}
	if dbCfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	}
	pool, err := database.Open(dbCfg.Driver, dbCfg.DSN(), pc, a.logger)
	if err != nil {
		return err
	}
	a.db = pool.WithRecorder(a.collector)
	a.risks = risklog.NewStore(a.db, a.logger)
	return nil
}

// buildDeps 创建外部服务客户端。接口字段只在依赖存在时赋值，避免带类型的 nil。
func (a *app) buildDeps() planner.Deps {
	cfg := a.cfg
	opts := []sources.Option{
		sources.WithLogger(a.logger),
		sources.WithRecorder(a.collector),
		sources.WithBreaker(cfg.Sources.Breaker),
	}

	deps := planner.Deps{
		Tokenizer: tokenizer.New("cl100k_base"),
	}

	observers := workflow.Observers{a.collector}
	if meter, err := telemetry.NewNodeMeter(); err == nil {
		observers = append(observers, meter)
	} else {
		a.logger.Warn("node meter disabled", zap.Error(err))
	}
	deps.Observer = observers

	if cfg.LLM.APIKey != "" {
		a.provider = gemini.New(gemini.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, a.logger)

		gc := llm.DefaultGeneratorConfig()
		if cfg.LLM.Model != "" {
			gc.DefaultModel = cfg.LLM.Model
		}
		if cfg.LLM.Temperature > 0 {
			gc.Temperature = float32(cfg.LLM.Temperature)
		}
		if cfg.LLM.MaxTokens > 0 {
			gc.MaxTokens = cfg.LLM.MaxTokens
		}
		gc.MaxRetries = cfg.LLM.MaxRetries
		if cfg.Pipeline.CallTimeout > 0 {
			gc.CallTimeout = cfg.Pipeline.CallTimeout
		}
		deps.Generator = llm.NewGenerator(a.provider, gc, a.logger).WithRecorder(a.collector)
	} else {
		a.logger.Warn("no LLM API key; stages fall back to heuristics")
	}

	var searchers []planner.VenueSearcher
	if cfg.Sources.GooglePlaces.Enabled() {
		searchers = append(searchers, sources.NewGooglePlaces(cfg.Sources.GooglePlaces, opts...))
	}
	if cfg.Sources.Yelp.Enabled() {
		searchers = append(searchers, sources.NewYelp(cfg.Sources.Yelp, opts...))
	}
	if a.cache != nil {
		for i, s := range searchers {
			searchers[i] = planner.NewCachedSearcher(s, a.cache, cfg.Pipeline.SearchCacheTTL, a.logger)
		}
	}
	deps.Searchers = searchers

	// 没有 Firecrawl 密钥时直接抓取 HTML
	htmlScraper := sources.NewHTMLScraper(cfg.Sources.Firecrawl, opts...)
	if cfg.Sources.Firecrawl.Enabled() {
		deps.Scraper = sources.NewFallbackScraper(sources.NewFirecrawl(cfg.Sources, opts...), htmlScraper, a.logger)
	} else {
		deps.Scraper = htmlScraper
	}
	deps.Contacts = htmlScraper

	if cfg.Sources.Mapbox.Enabled() {
		deps.Router = sources.NewMapbox(cfg.Sources.Mapbox, opts...)
	}
	if cfg.Sources.OpenWeather.Enabled() {
		deps.Weather = sources.NewOpenWeather(cfg.Sources.OpenWeather, opts...)
	}
	if cfg.Sources.PredictHQ.Enabled() {
		deps.Events = sources.NewPredictHQ(cfg.Sources.PredictHQ, opts...)
	}

	if cfg.Identity.Enabled() {
		svc := identity.NewService(cfg.Identity, a.logger)
		deps.Profiles = svc
		deps.Consent = svc
		deps.Calendar = svc
	}

	if a.risks != nil {
		deps.Risks = a.risks
	}

	a.logger.Info("pipeline dependencies ready",
		zap.Bool("llm", deps.Generator != nil),
		zap.Int("searchers", len(searchers)),
		zap.Bool("search_cache", a.cache != nil),
		zap.Bool("identity", deps.Profiles != nil),
		zap.Bool("risk_log", deps.Risks != nil),
	)
	return deps
}

// rebuild 以新的管线参数创建规划器并原子替换
func (a *app) rebuild(pc planner.Config) error {
	p, err := planner.New(pc, a.deps, a.logger)
	if err != nil {
		return fmt.Errorf("build planner: %w", err)
	}
	a.current.Store(p)
	return nil
}

// planService 供 PlanHandler 在每个请求时取当前规划器
func (a *app) planService() handlers.PlanService {
	return a.current.Load()
}

// onReload 应用可热更新的字段；返回错误时配置管理器会自动回滚
func (a *app) onReload(_, newCfg *config.Config) error {
	if err := a.rebuild(newCfg.Pipeline); err != nil {
		return err
	}
	a.level.SetLevel(parseLevel(newCfg.Log.Level))
	a.logger.Info("configuration applied",
		zap.String("log_level", newCfg.Log.Level),
		zap.Int("max_retries", newCfg.Pipeline.MaxRetries),
		zap.String("veto_mode", newCfg.Pipeline.VetoMode),
	)
	return nil
}

// onRollback 在锁内调用，只使用事件携带的配置
func (a *app) onRollback(ev config.RollbackEvent) {
	a.logger.Warn("configuration rolled back",
		zap.Int("version", ev.Version),
		zap.String("reason", ev.Reason),
		zap.Error(ev.Error),
	)
	if ev.Restored == nil {
		return
	}
	if err := a.rebuild(ev.Restored.Pipeline); err != nil {
		a.logger.Error("rebuild after rollback failed", zap.Error(err))
		return
	}
	a.level.SetLevel(parseLevel(ev.Restored.Log.Level))
}

// registerChecks 为就绪探针登记依赖检查
func (a *app) registerChecks(h *handlers.HealthHandler) {
	if a.cache != nil {
		h.RegisterCheck(handlers.NewPingCheck("redis", a.cache.Ping))
	}
	if a.db != nil {
		h.RegisterCheck(handlers.NewPingCheck("database", a.db.Ping))
	}
	if a.provider != nil {
		provider := a.provider
		h.RegisterCheck(handlers.NewPingCheck("llm", func(ctx context.Context) error {
			status, err := provider.HealthCheck(ctx)
			if err != nil {
				return err
			}
			if !status.Healthy {
				return fmt.Errorf("%s unhealthy", provider.Name())
			}
			return nil
		}))
	}
}

// close 释放连接并刷新遥测
func (a *app) close(ctx context.Context) {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("close cache", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}
}
