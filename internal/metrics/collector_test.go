package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/internal/cache"
	"github.com/BaSui01/pathfinder/llm"
	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/sources"
	"github.com/BaSui01/pathfinder/workflow"
)

var (
	_ workflow.NodeObserver = (*Collector)(nil)
	_ llm.CallRecorder      = (*Collector)(nil)
	_ sources.CallRecorder  = (*Collector)(nil)
	_ cache.LookupRecorder  = (*Collector)(nil)
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector_NilArgs(t *testing.T) {
	c := NewCollector("test", nil, nil)
	require.NotNil(t, c)
	assert.NotNil(t, c.registry)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/v1/plan", 200, 100*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/v1/plan", 201, 50*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/v1/plan", 400, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/plan", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/plan", "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpRequestDuration))
}

func TestCollector_ObserveNode(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveNode("discover", 2*time.Second, nil)
	c.ObserveNode("discover", time.Second, errors.New("boom"))
	c.ObserveNode("rank", 10*time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeExecutionsTotal.WithLabelValues("discover", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeExecutionsTotal.WithLabelValues("discover", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.nodeDuration))
}

func TestCollector_RecordExternalCall(t *testing.T) {
	c := newTestCollector(t)

	c.RecordExternalCall("yelp", "ok", 300*time.Millisecond)
	c.RecordExternalCall("yelp", "rate_limited", 20*time.Millisecond)
	c.RecordExternalCall("gemini", "ok", 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.externalCallsTotal.WithLabelValues("yelp", "rate_limited")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.externalCallsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(c.externalCallDuration))
}

func TestCollector_RecordCacheLookup(t *testing.T) {
	c := newTestCollector(t)

	c.RecordCacheLookup(true)
	c.RecordCacheLookup(true)
	c.RecordCacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")))
}

func TestCollector_RecordPlan(t *testing.T) {
	c := newTestCollector(t)

	c.RecordPlan(&planner.Result{RankedResults: make([]planner.RankedVenue, 3)})
	c.RecordPlan(&planner.Result{Veto: true, RetryCount: 2})
	c.RecordPlan(&planner.Result{Veto: true, Exhausted: true, RetryCount: 2})
	c.RecordPlan(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.plansTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.plansTotal.WithLabelValues("vetoed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.plansTotal.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.plansTotal.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.vetoesTotal))
}

func TestCollector_PlanStarted(t *testing.T) {
	c := newTestCollector(t)

	done1 := c.PlanStarted()
	done2 := c.PlanStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.plansRunning))
	done1()
	done2()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.plansRunning))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c := newTestCollector(t)
	c.RecordDBConnections(5, 3)
	assert.Equal(t, 5.0, testutil.ToFloat64(c.dbConnectionsOpen))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dbConnectionsIdle))
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t)
	c.RecordCacheLookup(true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_search_cache_lookups_total{result="hit"} 1`)
}

func TestPlanOutcome(t *testing.T) {
	tests := []struct {
		name string
		res  planner.Result
		want string
	}{
		{"accepted", planner.Result{}, "ok"},
		{"vetoed", planner.Result{Veto: true}, "vetoed"},
		{"exhausted", planner.Result{Veto: true, Exhausted: true}, "exhausted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanOutcome(&tt.res))
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"}, {204, "2xx"}, {301, "3xx"}, {404, "4xx"}, {429, "4xx"}, {500, "5xx"}, {503, "5xx"}, {100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
