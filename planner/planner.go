package planner

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/llm/tokenizer"
	"github.com/BaSui01/pathfinder/types"
	"github.com/BaSui01/pathfinder/workflow"
)

// Request is one planning request.
type Request struct {
	RawRequest string           `json:"raw_request"`
	Identity   string           `json:"identity,omitempty"`
	Overrides  *IntentOverrides `json:"overrides,omitempty"`
}

// Result is the terminal output of a plan.
type Result struct {
	PlanID          string                     `json:"plan_id"`
	RunID           string                     `json:"run_id,omitempty"`
	Intent          *Intent                    `json:"parsed_intent,omitempty"`
	ComplexityTier  string                     `json:"complexity_tier"`
	ActiveStages    StageSet                   `json:"active_stages"`
	StageWeights    map[StageID]float64        `json:"stage_weights"`
	PlanSource      string                     `json:"plan_source"`
	RankedResults   []RankedVenue              `json:"ranked_results"`
	GlobalConsensus string                     `json:"global_consensus"`
	EmailDraft      string                     `json:"email_draft,omitempty"`
	ActionRequest   *ActionRequest             `json:"action_request,omitempty"`
	Consent         *ConsentOutcome            `json:"consent,omitempty"`
	Isochrones      map[string]json.RawMessage `json:"isochrones,omitempty"`
	Veto            bool                       `json:"veto"`
	VetoReason      string                     `json:"veto_reason,omitempty"`
	RetryCount      int                        `json:"retry_count"`
	Exhausted       bool                       `json:"exhausted"`
	Steps           []workflow.StepRecord      `json:"steps,omitempty"`
}

// Stream event types.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

// Event is one item of a plan stream: a progress event per completed graph
// node, then exactly one result or error event.
type Event struct {
	Type   string  `json:"type"`
	PlanID string  `json:"plan_id"`
	Node   string  `json:"node,omitempty"`
	Label  string  `json:"label,omitempty"`
	Step   int     `json:"step,omitempty"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Deps are the collaborators; any may be nil and degrades to neutral output.
type Deps struct {
	Generator Generator
	Searchers []VenueSearcher
	Scraper   PageScraper
	Tokenizer tokenizer.Tokenizer
	Router    Router
	Weather   WeatherService
	Events    EventService
	Profiles  ProfileService
	Consent   ConsentService
	Contacts  ContactFinder
	Calendar  CalendarChecker
	Risks     RiskLog
	Observer  workflow.NodeObserver
}

// Planner runs the recommendation graph. Safe for concurrent use.
type Planner struct {
	cfg    Config
	graph  *workflow.Graph[State]
	logger *zap.Logger
}

// New wires the stages into the graph.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "planner"))

	graph, err := buildGraph(cfg, newStages(cfg, deps, logger), logger)
	if err != nil {
		return nil, err
	}
	if deps.Observer != nil {
		graph.WithObserver(deps.Observer)
	}
	return &Planner{cfg: cfg, graph: graph, logger: logger}, nil
}

// Plan runs the pipeline to completion. Stage failures degrade the result
// instead of failing the call; only an invalid request or a cancelled
// context returns an error.
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return p.run(ctx, req, uuid.NewString())
}

// Stream runs the pipeline in the background and reports progress.
// The channel is closed after the final result or error event.
func (p *Planner) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	planID := uuid.NewString()
	out := make(chan Event, 16)

	send := func(e Event) {
		select {
		case out <- e:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)
		streamCtx := workflow.WithStreamEmitter(ctx, func(e workflow.StreamEvent) {
			if e.Type != workflow.EventNodeComplete {
				return
			}
			send(Event{Type: EventProgress, PlanID: planID, Node: e.NodeID, Label: e.Label, Step: e.Step})
		})
		res, err := p.run(streamCtx, req, planID)
		if err != nil {
			send(Event{Type: EventError, PlanID: planID, Error: err.Error()})
			return
		}
		send(Event{Type: EventResult, PlanID: planID, Result: res})
	}()
	return out, nil
}

func newStages(cfg Config, deps Deps, logger *zap.Logger) stages {
	return stages{
		orchestrator:  NewOrchestrator(deps.Generator, deps.Profiles, cfg, logger),
		discovery:     NewDiscoveryStage(deps.Searchers, cfg, logger),
		aesthetic:     NewAestheticStage(deps.Generator, cfg, logger),
		cost:          NewCostStage(deps.Generator, deps.Scraper, deps.Tokenizer, cfg, logger),
		accessibility: NewAccessibilityStage(deps.Router, deps.Calendar, cfg, logger),
		filter:        NewFilterStage(cfg, logger),
		review:        NewReviewStage(deps.Generator, deps.Weather, deps.Events, deps.Risks, cfg, logger),
		synthesis:     NewSynthesisStage(deps.Generator, deps.Consent, cfg, logger).WithContacts(deps.Contacts),
	}
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.RawRequest) == "" {
		return types.NewInvalidRequestError("raw_request is required")
	}
	return nil
}

func (p *Planner) run(ctx context.Context, req Request, planID string) (*Result, error) {
	ctx = types.WithPlanID(ctx, planID)
	if req.Identity != "" {
		ctx = types.WithUserID(ctx, req.Identity)
	}
	logger := p.logger.With(zap.String("plan_id", planID))

	s := NewState(strings.TrimSpace(req.RawRequest), req.Identity, req.Overrides)
	report, err := p.graph.Run(ctx, s)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error("graph stopped early, returning partial results", zap.Error(err))
		if s.RankedResults == nil {
			// synthesis 未运行：按现有候选直接打分
			s.RankedResults = RankCandidates(s, p.cfg)
			s.Exhausted = s.Veto
		}
	}

	res := &Result{
		PlanID:          planID,
		Intent:          s.ParsedIntent,
		ComplexityTier:  s.ComplexityTier,
		ActiveStages:    s.ActiveStages,
		StageWeights:    s.StageWeights,
		PlanSource:      s.PlanSource,
		RankedResults:   s.RankedResults,
		GlobalConsensus: s.GlobalConsensus,
		EmailDraft:      s.EmailDraft,
		ActionRequest:   s.ActionRequest,
		Consent:         s.Consent,
		Isochrones:      s.Isochrones,
		Veto:            s.Veto,
		VetoReason:      s.VetoReason,
		RetryCount:      s.RetryCount,
		Exhausted:       s.Exhausted,
	}
	if res.RankedResults == nil {
		res.RankedResults = []RankedVenue{}
	}
	if report != nil {
		res.RunID = report.RunID
		res.Steps = report.Steps
	}
	logger.Info("plan complete",
		zap.Int("results", len(res.RankedResults)),
		zap.Int("retries", res.RetryCount),
		zap.Bool("exhausted", res.Exhausted),
	)
	return res, nil
}
