package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/planner"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 收集 HTTP、管线节点、外部调用、缓存与数据库指标。
// 它同时实现 workflow.NodeObserver、sources.CallRecorder、
// llm.CallRecorder 与 cache.LookupRecorder。
type Collector struct {
	registry prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	nodeExecutionsTotal *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec

	plansTotal   *prometheus.CounterVec
	planRetries  prometheus.Histogram
	planResults  prometheus.Histogram
	vetoesTotal  prometheus.Counter
	plansRunning prometheus.Gauge

	externalCallsTotal   *prometheus.CounterVec
	externalCallDuration *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec

	dbConnectionsOpen prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 在 reg 上注册指标；reg 为 nil 时使用新的私有 Registry
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	c := &Collector{registry: reg, logger: logger.With(zap.String("component", "metrics"))}

	c.httpRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	c.httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	c.nodeExecutionsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_node_executions_total",
		Help:      "Pipeline node executions by node and status",
	}, []string{"node", "status"})

	c.nodeDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_node_duration_seconds",
		Help:      "Pipeline node duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"node"})

	c.plansTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plans_total",
		Help:      "Completed plans by outcome (ok, vetoed, exhausted, failed)",
	}, []string{"outcome"})

	c.planRetries = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "plan_retries",
		Help:      "Veto retries per plan",
		Buckets:   []float64{0, 1, 2, 3, 5},
	})

	c.planResults = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "plan_ranked_results",
		Help:      "Ranked venues returned per plan",
		Buckets:   []float64{0, 1, 3, 5, 10},
	})

	c.vetoesTotal = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "review_vetoes_total",
		Help:      "Plans whose final review still carried a veto",
	})

	c.plansRunning = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "plans_in_flight",
		Help:      "Plans currently running",
	})

	c.externalCallsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "external_calls_total",
		Help:      "Calls to external services by outcome",
	}, []string{"service", "outcome"})

	c.externalCallDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "external_call_duration_seconds",
		Help:      "External call duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"service"})

	c.cacheLookups = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_cache_lookups_total",
		Help:      "Search cache lookups by result (hit, miss)",
	}, []string{"result"})

	c.dbConnectionsOpen = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_open",
		Help:      "Open risk log database connections",
	})

	c.dbConnectionsIdle = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_idle",
		Help:      "Idle risk log database connections",
	})

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Handler 暴露 /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求；path 应为路由模板而非原始 URL
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveNode 实现 workflow.NodeObserver
func (c *Collector) ObserveNode(node string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.nodeExecutionsTotal.WithLabelValues(node, status).Inc()
	c.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
}

// RecordExternalCall 实现 sources.CallRecorder 与 llm.CallRecorder
func (c *Collector) RecordExternalCall(service, outcome string, duration time.Duration) {
	c.externalCallsTotal.WithLabelValues(service, outcome).Inc()
	c.externalCallDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCacheLookup 实现 cache.LookupRecorder
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// PlanStarted 标记一个规划开始，返回的函数在结束时调用
func (c *Collector) PlanStarted() func() {
	c.plansRunning.Inc()
	return c.plansRunning.Dec
}

// RecordPlan 记录一次规划的结果；res 为 nil 表示失败
func (c *Collector) RecordPlan(res *planner.Result) {
	if res == nil {
		c.plansTotal.WithLabelValues("failed").Inc()
		return
	}
	c.plansTotal.WithLabelValues(PlanOutcome(res)).Inc()
	c.planRetries.Observe(float64(res.RetryCount))
	c.planResults.Observe(float64(len(res.RankedResults)))
	if res.Veto {
		c.vetoesTotal.Inc()
	}
}

// PlanOutcome 将结果归类为 ok、vetoed 或 exhausted
func PlanOutcome(res *planner.Result) string {
	switch {
	case res.Exhausted:
		return "exhausted"
	case res.Veto:
		return "vetoed"
	default:
		return "ok"
	}
}

// RecordDBConnections 记录连接池状态
func (c *Collector) RecordDBConnections(open, idle int) {
	c.dbConnectionsOpen.Set(float64(open))
	c.dbConnectionsIdle.Set(float64(idle))
}

// statusCode 将 HTTP 状态码归类
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
