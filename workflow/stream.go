package workflow

import "context"

// StreamEventType defines the type of workflow stream event.
type StreamEventType string

const (
	// EventNodeStart is emitted before a node begins execution.
	EventNodeStart StreamEventType = "node_start"
	// EventNodeComplete is emitted after a node finishes, before routing to the next one.
	EventNodeComplete StreamEventType = "node_complete"
	// EventNodeError is emitted when a node fails.
	EventNodeError StreamEventType = "node_error"
	// EventStepProgress is emitted for intermediate progress inside a node.
	EventStepProgress StreamEventType = "step_progress"
)

// StreamEvent carries information about a workflow execution event.
type StreamEvent struct {
	Type   StreamEventType `json:"type"`
	RunID  string          `json:"run_id,omitempty"`
	NodeID string          `json:"node_id,omitempty"`
	Label  string          `json:"label,omitempty"`
	Step   int             `json:"step,omitempty"`
	Data   any             `json:"data,omitempty"`
	Error  error           `json:"-"`
}

// StreamEmitter is a callback that receives workflow stream events.
type StreamEmitter func(StreamEvent)

// streamEmitterKey is the context key for StreamEmitter.
type streamEmitterKey struct{}

// WithStreamEmitter stores a StreamEmitter in the context.
func WithStreamEmitter(ctx context.Context, emitter StreamEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, streamEmitterKey{}, emitter)
}

// streamEmitterFromContext retrieves the StreamEmitter from context.
func streamEmitterFromContext(ctx context.Context) (StreamEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	emit, ok := ctx.Value(streamEmitterKey{}).(StreamEmitter)
	return emit, ok && emit != nil
}

// EmitProgress lets a running node report intermediate progress.
func EmitProgress(ctx context.Context, nodeID, label string, data any) {
	if emit, ok := streamEmitterFromContext(ctx); ok {
		emit(StreamEvent{Type: EventStepProgress, NodeID: nodeID, Label: label, Data: data})
	}
}
