package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// End is the terminal pseudo-node.
const End = "__end__"

// DefaultMaxSteps bounds a run when the builder does not set a limit.
const DefaultMaxSteps = 32

var (
	// ErrStepLimit is returned when a run exceeds its step budget.
	ErrStepLimit = errors.New("workflow step limit exceeded")
	// ErrUnknownRoute is returned when a router picks a target that was not declared.
	ErrUnknownRoute = errors.New("router returned undeclared target")
)

// NodeFunc reads and writes the shared state.
type NodeFunc[S any] func(ctx context.Context, state *S) error

// Router picks the next node from the current state.
type Router[S any] func(state *S) string

// LabelFunc renders a human-readable progress label once a node completes.
type LabelFunc[S any] func(state *S) string

// NodeObserver receives one observation per executed node.
type NodeObserver interface {
	ObserveNode(node string, duration time.Duration, err error)
}

// Observers fans one observation out to several observers; nil entries are skipped.
type Observers []NodeObserver

// ObserveNode implements NodeObserver.
func (obs Observers) ObserveNode(node string, duration time.Duration, err error) {
	for _, o := range obs {
		if o != nil {
			o.ObserveNode(node, duration, err)
		}
	}
}

type node[S any] struct {
	id              string
	label           LabelFunc[S]
	fn              NodeFunc[S]
	timeout         time.Duration
	continueOnError bool
}

// NodeOption configures a node.
type NodeOption[S any] func(*node[S])

// WithTimeout bounds a single node execution.
func WithTimeout[S any](d time.Duration) NodeOption[S] {
	return func(n *node[S]) { n.timeout = d }
}

// WithContinueOnError routes onward even if the node returned an error.
func WithContinueOnError[S any]() NodeOption[S] {
	return func(n *node[S]) { n.continueOnError = true }
}

// WithLabel sets a dynamic progress label.
func WithLabel[S any](fn LabelFunc[S]) NodeOption[S] {
	return func(n *node[S]) { n.label = fn }
}

type conditional[S any] struct {
	route   Router[S]
	targets map[string]struct{}
}

// Builder assembles a Graph.
type Builder[S any] struct {
	name     string
	nodes    map[string]*node[S]
	order    []string
	edges    map[string]string
	conds    map[string]conditional[S]
	entry    string
	maxSteps int
	errs     []error
}

// NewBuilder creates a graph builder.
func NewBuilder[S any](name string) *Builder[S] {
	return &Builder[S]{
		name:  name,
		nodes: make(map[string]*node[S]),
		edges: make(map[string]string),
		conds: make(map[string]conditional[S]),
	}
}

// AddNode registers a node; label is the static progress label.
func (b *Builder[S]) AddNode(id, label string, fn NodeFunc[S], opts ...NodeOption[S]) *Builder[S] {
	if id == "" || id == End {
		b.errs = append(b.errs, fmt.Errorf("invalid node id %q", id))
		return b
	}
	if _, dup := b.nodes[id]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate node %q", id))
		return b
	}
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("node %q has nil func", id))
		return b
	}
	static := label
	n := &node[S]{id: id, fn: fn, label: func(*S) string { return static }}
	for _, opt := range opts {
		opt(n)
	}
	b.nodes[id] = n
	b.order = append(b.order, id)
	return b
}

// AddEdge adds an unconditional edge.
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	if _, ok := b.edges[from]; ok {
		b.errs = append(b.errs, fmt.Errorf("node %q already has an edge", from))
	}
	if _, ok := b.conds[from]; ok {
		b.errs = append(b.errs, fmt.Errorf("node %q already has a conditional edge", from))
	}
	b.edges[from] = to
	return b
}

// AddConditionalEdge routes from a node via route; targets lists every allowed destination.
func (b *Builder[S]) AddConditionalEdge(from string, route Router[S], targets ...string) *Builder[S] {
	if route == nil || len(targets) == 0 {
		b.errs = append(b.errs, fmt.Errorf("conditional edge from %q needs a router and targets", from))
		return b
	}
	if _, ok := b.edges[from]; ok {
		b.errs = append(b.errs, fmt.Errorf("node %q already has an edge", from))
	}
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	b.conds[from] = conditional[S]{route: route, targets: set}
	return b
}

// SetEntry sets the entry node.
func (b *Builder[S]) SetEntry(id string) *Builder[S] {
	b.entry = id
	return b
}

// SetMaxSteps sets the run step budget.
func (b *Builder[S]) SetMaxSteps(n int) *Builder[S] {
	b.maxSteps = n
	return b
}

// Build validates the graph: entry present, every node has an outgoing edge
// and every target exists.
func (b *Builder[S]) Build(logger *zap.Logger) (*Graph[S], error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if b.entry == "" {
		return nil, fmt.Errorf("graph %s has no entry node", b.name)
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, fmt.Errorf("entry node not found: %s", b.entry)
	}
	exists := func(id string) bool {
		if id == End {
			return true
		}
		_, ok := b.nodes[id]
		return ok
	}
	for _, id := range b.order {
		to, hasEdge := b.edges[id]
		cond, hasCond := b.conds[id]
		switch {
		case hasEdge:
			if !exists(to) {
				return nil, fmt.Errorf("edge %s -> %s: unknown target", id, to)
			}
		case hasCond:
			for t := range cond.targets {
				if !exists(t) {
					return nil, fmt.Errorf("conditional edge %s -> %s: unknown target", id, t)
				}
			}
		default:
			return nil, fmt.Errorf("node %s has no outgoing edge", id)
		}
	}
	for from := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			return nil, fmt.Errorf("edge from unknown node %s", from)
		}
	}
	maxSteps := b.maxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph[S]{
		name:     b.name,
		nodes:    b.nodes,
		edges:    b.edges,
		conds:    b.conds,
		entry:    b.entry,
		maxSteps: maxSteps,
		logger:   logger.With(zap.String("component", "graph"), zap.String("graph", b.name)),
	}, nil
}

// Graph is an immutable compiled graph; safe for concurrent runs.
type Graph[S any] struct {
	name     string
	nodes    map[string]*node[S]
	edges    map[string]string
	conds    map[string]conditional[S]
	entry    string
	maxSteps int
	observer NodeObserver
	logger   *zap.Logger
}

// WithObserver attaches a node observer.
func (g *Graph[S]) WithObserver(o NodeObserver) *Graph[S] {
	g.observer = o
	return g
}

// StepRecord is one executed node.
type StepRecord struct {
	Step     int           `json:"step"`
	Node     string        `json:"node"`
	Label    string        `json:"label"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// RunReport summarizes a run.
type RunReport struct {
	RunID  string         `json:"run_id"`
	Steps  []StepRecord   `json:"steps"`
	Visits map[string]int `json:"visits"`
}

// Run executes the graph from its entry node until End.
func (g *Graph[S]) Run(ctx context.Context, state *S) (*RunReport, error) {
	if state == nil {
		return nil, fmt.Errorf("graph %s: nil state", g.name)
	}
	report := &RunReport{RunID: uuid.NewString(), Visits: make(map[string]int)}
	emit, _ := streamEmitterFromContext(ctx)
	tracer := otel.Tracer("pathfinder/workflow")

	g.logger.Debug("graph run started", zap.String("run_id", report.RunID), zap.String("entry", g.entry))

	current := g.entry
	for step := 1; current != End; step++ {
		if step > g.maxSteps {
			g.logger.Error("graph step limit exceeded",
				zap.String("run_id", report.RunID),
				zap.Int("max_steps", g.maxSteps),
			)
			return report, fmt.Errorf("%w: %d", ErrStepLimit, g.maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		n := g.nodes[current]
		report.Visits[n.id]++
		if emit != nil {
			emit(StreamEvent{Type: EventNodeStart, RunID: report.RunID, NodeID: n.id, Step: step})
		}

		spanCtx, span := tracer.Start(ctx, "node."+n.id)
		span.SetAttributes(attribute.String("graph", g.name), attribute.Int("step", step))
		start := time.Now()
		err := g.execNode(spanCtx, n, state)
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if g.observer != nil {
			g.observer.ObserveNode(n.id, elapsed, err)
		}

		label := n.label(state)
		rec := StepRecord{Step: step, Node: n.id, Label: label, Duration: elapsed}
		if err != nil {
			rec.Err = err.Error()
		}
		report.Steps = append(report.Steps, rec)

		if err != nil {
			if emit != nil {
				emit(StreamEvent{Type: EventNodeError, RunID: report.RunID, NodeID: n.id, Label: label, Step: step, Error: err})
			}
			if !n.continueOnError {
				g.logger.Error("node failed",
					zap.String("run_id", report.RunID),
					zap.String("node", n.id),
					zap.Error(err),
				)
				return report, fmt.Errorf("node %s: %w", n.id, err)
			}
			g.logger.Warn("node failed, continuing",
				zap.String("node", n.id),
				zap.Error(err),
			)
		}
		if emit != nil {
			emit(StreamEvent{Type: EventNodeComplete, RunID: report.RunID, NodeID: n.id, Label: label, Step: step})
		}

		next, rerr := g.next(n.id, state)
		if rerr != nil {
			return report, rerr
		}
		current = next
	}

	g.logger.Debug("graph run completed",
		zap.String("run_id", report.RunID),
		zap.Int("steps", len(report.Steps)),
	)
	return report, nil
}

func (g *Graph[S]) execNode(ctx context.Context, n *node[S], state *S) (err error) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node %s panicked: %v", n.id, r)
		}
	}()
	return n.fn(ctx, state)
}

func (g *Graph[S]) next(from string, state *S) (string, error) {
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	cond := g.conds[from]
	to := cond.route(state)
	if _, ok := cond.targets[to]; !ok {
		return "", fmt.Errorf("%w: %s -> %q", ErrUnknownRoute, from, to)
	}
	return to, nil
}
