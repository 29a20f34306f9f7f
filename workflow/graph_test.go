package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type loopState struct {
	trail   []string
	vetoes  int
	retries int
	cap     int
}

func appendNode(name string) NodeFunc[loopState] {
	return func(_ context.Context, s *loopState) error {
		s.trail = append(s.trail, name)
		return nil
	}
}

func buildLoopGraph(t *testing.T) *Graph[loopState] {
	t.Helper()
	g, err := NewBuilder[loopState]("loop").
		AddNode("plan", "planning", func(_ context.Context, s *loopState) error {
			if len(s.trail) > 0 {
				s.retries++
			}
			s.trail = append(s.trail, "plan")
			return nil
		}).
		AddNode("review", "reviewing", appendNode("review")).
		AddNode("finish", "done", appendNode("finish")).
		AddEdge("plan", "review").
		AddConditionalEdge("review", func(s *loopState) string {
			if s.vetoes > s.retries && s.retries < s.cap {
				return "plan"
			}
			return "finish"
		}, "plan", "finish").
		AddEdge("finish", End).
		SetEntry("plan").
		Build(zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestGraph_LinearAndConditional(t *testing.T) {
	g := buildLoopGraph(t)

	s := &loopState{vetoes: 1, cap: 3}
	report, err := g.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"plan", "review", "plan", "review", "finish"}, s.trail)
	assert.Equal(t, 2, report.Visits["plan"])
	assert.Len(t, report.Steps, 5)
	assert.NotEmpty(t, report.RunID)
}

func TestGraph_StreamEventsInOrder(t *testing.T) {
	g := buildLoopGraph(t)

	var mu sync.Mutex
	var events []StreamEvent
	ctx := WithStreamEmitter(context.Background(), func(e StreamEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	_, err := g.Run(ctx, &loopState{})
	require.NoError(t, err)

	var completes []string
	for _, e := range events {
		if e.Type == EventNodeComplete {
			completes = append(completes, e.NodeID+":"+e.Label)
		}
	}
	assert.Equal(t, []string{"plan:planning", "review:reviewing", "finish:done"}, completes)
	require.NotEmpty(t, events)
	assert.Equal(t, EventNodeStart, events[0].Type)
}

func TestGraph_StepLimit(t *testing.T) {
	g, err := NewBuilder[loopState]("spin").
		AddNode("a", "a", appendNode("a")).
		AddConditionalEdge("a", func(*loopState) string { return "a" }, "a").
		SetEntry("a").
		SetMaxSteps(5).
		Build(nil)
	require.NoError(t, err)

	s := &loopState{}
	_, err = g.Run(context.Background(), s)
	assert.ErrorIs(t, err, ErrStepLimit)
	assert.Len(t, s.trail, 5)
}

func TestGraph_NodeErrorPolicy(t *testing.T) {
	boom := errors.New("boom")

	g, err := NewBuilder[loopState]("errs").
		AddNode("soft", "soft", func(context.Context, *loopState) error { return boom }, WithContinueOnError[loopState]()).
		AddNode("hard", "hard", func(context.Context, *loopState) error { return boom }).
		AddEdge("soft", "hard").
		AddEdge("hard", End).
		SetEntry("soft").
		Build(nil)
	require.NoError(t, err)

	report, err := g.Run(context.Background(), &loopState{})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "node hard")
	require.Len(t, report.Steps, 2)
	assert.Equal(t, "boom", report.Steps[0].Err)
}

func TestGraph_PanicBecomesError(t *testing.T) {
	g, err := NewBuilder[loopState]("panic").
		AddNode("p", "p", func(context.Context, *loopState) error { panic("kaboom") }).
		AddEdge("p", End).
		SetEntry("p").
		Build(nil)
	require.NoError(t, err)

	_, err = g.Run(context.Background(), &loopState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestGraph_NodeTimeout(t *testing.T) {
	g, err := NewBuilder[loopState]("timeout").
		AddNode("slow", "slow", func(ctx context.Context, _ *loopState) error {
			<-ctx.Done()
			return ctx.Err()
		}, WithTimeout[loopState](10*time.Millisecond)).
		AddEdge("slow", End).
		SetEntry("slow").
		Build(nil)
	require.NoError(t, err)

	_, err = g.Run(context.Background(), &loopState{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGraph_UnknownRoute(t *testing.T) {
	g, err := NewBuilder[loopState]("route").
		AddNode("a", "a", appendNode("a")).
		AddConditionalEdge("a", func(*loopState) string { return "nowhere" }, End).
		SetEntry("a").
		Build(nil)
	require.NoError(t, err)

	_, err = g.Run(context.Background(), &loopState{})
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestBuilder_Validation(t *testing.T) {
	_, err := NewBuilder[loopState]("x").Build(nil)
	assert.Error(t, err, "missing entry")

	_, err = NewBuilder[loopState]("x").
		AddNode("a", "a", appendNode("a")).
		SetEntry("a").
		Build(nil)
	assert.ErrorContains(t, err, "no outgoing edge")

	_, err = NewBuilder[loopState]("x").
		AddNode("a", "a", appendNode("a")).
		AddEdge("a", "ghost").
		SetEntry("a").
		Build(nil)
	assert.ErrorContains(t, err, "unknown target")

	_, err = NewBuilder[loopState]("x").
		AddNode("a", "a", appendNode("a")).
		AddNode("a", "a", appendNode("a")).
		Build(nil)
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewBuilder[loopState]("x").
		AddNode(End, "end", appendNode("e")).
		Build(nil)
	assert.Error(t, err)
}

type observed struct {
	mu    sync.Mutex
	nodes []string
}

func (o *observed) ObserveNode(node string, _ time.Duration, _ error) {
	o.mu.Lock()
	o.nodes = append(o.nodes, node)
	o.mu.Unlock()
}

func TestGraph_Observer(t *testing.T) {
	obs := &observed{}
	g := buildLoopGraph(t).WithObserver(obs)
	_, err := g.Run(context.Background(), &loopState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"plan", "review", "finish"}, obs.nodes)
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &observed{}, &observed{}
	g := buildLoopGraph(t).WithObserver(Observers{a, nil, b})
	_, err := g.Run(context.Background(), &loopState{})
	require.NoError(t, err)
	assert.Equal(t, a.nodes, b.nodes)
	assert.Len(t, a.nodes, 3)
}
