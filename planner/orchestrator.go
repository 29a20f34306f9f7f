package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/llm"
)

// Plan sources.
const (
	PlanSourceLLM       = "llm"
	PlanSourceHeuristic = "heuristic"
)

// profile preference → boosted stage
var profileBoosts = map[string]StageID{
	"budget_sensitive":    StageCost,
	"aesthetic_focused":   StageAesthetic,
	"mobility_needs":      StageAccessibility,
	"accessibility_needs": StageAccessibility,
	"risk_averse":         StageReview,
}

const profileBoost = 0.2

const orchestratorPrompt = `You plan group outings. Read the request and return ONLY a JSON object:
{
  "parsed_intent": {
    "activity": "<what the group wants to do>",
    "group_size": <integer, 1 if unknown>,
    "budget_tier": "low" | "medium" | "high",
    "location": "<city or neighbourhood>",
    "vibe_preference": "<requested style, empty if none>",
    "requires_oauth": <true if the user asks us to contact or email a venue>,
    "allowed_actions": ["send_email"] or []
  },
  "active_stages": [subset of "discovery", "aesthetic", "cost", "accessibility", "review"],
  "stage_weights": {"<stage>": <importance 0.0-1.0>}
}

Request: %s
`

const retryAddendum = `
A previous plan for this request was rejected: %s
Adjust the activity or location so the new plan avoids that problem.
`

// Orchestrator parses the request into an execution plan.
type Orchestrator struct {
	gen      Generator
	profiles ProfileService
	cfg      Config
	logger   *zap.Logger
}

// NewOrchestrator creates the entry stage.
func NewOrchestrator(gen Generator, profiles ProfileService, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gen:      gen,
		profiles: profiles,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// Run writes ParsedIntent, ComplexityTier, ActiveStages and StageWeights.
// Every pass after the first counts as a retry and clears downstream fields.
func (o *Orchestrator) Run(ctx context.Context, s *State) error {
	var vetoReason string
	if s.passes > 0 {
		vetoReason = s.VetoReason
		s.RetryCount++
		s.resetDownstream()
		o.logger.Info("replanning after veto",
			zap.Int("retry", s.RetryCount),
			zap.String("veto_reason", vetoReason),
		)
	}
	s.passes++

	plan, source := o.plan(ctx, s.RawRequest, vetoReason)
	applyOverrides(&plan.Intent, s.Overrides)

	if s.Identity != "" && o.profiles != nil && s.Profile == nil {
		profile, err := o.profiles.Profile(ctx, s.Identity)
		if err != nil {
			o.logger.Warn("profile lookup failed, using unboosted weights",
				zap.String("identity", s.Identity),
				zap.Error(err),
			)
		} else {
			s.Profile = profile
		}
	}
	if s.Profile != nil {
		applyProfileBoost(plan.Weights, s.Profile.Preferences)
	}

	intent := plan.Intent
	s.ParsedIntent = &intent
	s.ActiveStages = plan.Stages.Normalize()
	s.StageWeights = plan.Weights
	s.ComplexityTier = ComplexityTier(s.ActiveStages)
	s.PlanSource = source

	o.logger.Info("plan ready",
		zap.String("source", source),
		zap.String("activity", intent.Activity),
		zap.String("location", intent.Location),
		zap.String("tier", s.ComplexityTier),
		zap.Int("stages", len(s.ActiveStages)),
	)
	return nil
}

func (o *Orchestrator) plan(ctx context.Context, raw, vetoReason string) (HeuristicPlan, string) {
	if o.gen != nil {
		plan, err := o.planWithLLM(ctx, raw, vetoReason)
		if err == nil {
			return plan, PlanSourceLLM
		}
		o.logger.Warn("llm planning failed, falling back to heuristic", zap.Error(err))
	}
	return PlanHeuristically(raw, o.cfg.DefaultLocation), PlanSourceHeuristic
}

type llmIntent struct {
	Activity       string   `json:"activity"`
	GroupSize      int      `json:"group_size"`
	BudgetTier     string   `json:"budget_tier"`
	Budget         string   `json:"budget"`
	Location       string   `json:"location"`
	VibePreference string   `json:"vibe_preference"`
	OriginLat      *float64 `json:"origin_lat"`
	OriginLng      *float64 `json:"origin_lng"`
	RequiresOAuth  bool     `json:"requires_oauth"`
	AllowedActions []string `json:"allowed_actions"`
}

type llmPlan struct {
	ParsedIntent *llmIntent         `json:"parsed_intent"`
	ActiveStages []string           `json:"active_stages"`
	StageWeights map[string]float64 `json:"stage_weights"`
}

var errInvalidPlan = errors.New("invalid plan")

func (o *Orchestrator) planWithLLM(ctx context.Context, raw, vetoReason string) (HeuristicPlan, error) {
	prompt := fmt.Sprintf(orchestratorPrompt, raw)
	if vetoReason != "" {
		prompt += fmt.Sprintf(retryAddendum, vetoReason)
	}
	out, err := o.gen.Generate(ctx, prompt, llm.WithJSON())
	if err != nil {
		return HeuristicPlan{}, err
	}
	decoded, err := llm.DecodeJSON[llmPlan](out)
	if err != nil {
		return HeuristicPlan{}, err
	}
	return o.validatePlan(decoded)
}

func (o *Orchestrator) validatePlan(p llmPlan) (HeuristicPlan, error) {
	if p.ParsedIntent == nil || strings.TrimSpace(p.ParsedIntent.Activity) == "" {
		return HeuristicPlan{}, fmt.Errorf("%w: missing parsed_intent.activity", errInvalidPlan)
	}
	var stages StageSet
	for _, name := range p.ActiveStages {
		if id, ok := ParseStageID(strings.ToLower(strings.TrimSpace(name))); ok {
			stages = append(stages, id)
		}
	}
	if len(stages) == 0 {
		return HeuristicPlan{}, fmt.Errorf("%w: no known active_stages", errInvalidPlan)
	}
	stages = stages.Normalize()

	named := make(map[StageID]float64, len(p.StageWeights))
	for name, w := range p.StageWeights {
		if id, ok := ParseStageID(strings.ToLower(name)); ok {
			named[id] = clamp01(w)
		}
	}
	weights := map[StageID]float64{StageDiscovery: 1.0}
	for _, id := range stages[1:] {
		if w, ok := named[id]; ok {
			weights[id] = w
		} else {
			weights[id] = 0.5
		}
	}

	pi := p.ParsedIntent
	intent := Intent{
		Activity:       strings.TrimSpace(pi.Activity),
		GroupSize:      max(pi.GroupSize, 1),
		BudgetTier:     normalizeBudget(pi.BudgetTier, pi.Budget),
		Location:       strings.TrimSpace(pi.Location),
		VibePreference: strings.TrimSpace(pi.VibePreference),
		OriginLat:      pi.OriginLat,
		OriginLng:      pi.OriginLng,
		RequiresOAuth:  pi.RequiresOAuth,
		AllowedActions: pi.AllowedActions,
	}
	if intent.Location == "" {
		intent.Location = o.cfg.DefaultLocation
	}
	return HeuristicPlan{Intent: intent, Stages: stages, Weights: weights}, nil
}

func normalizeBudget(values ...string) string {
	for _, v := range values {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "low", "cheap", "$":
			return "low"
		case "medium", "moderate", "$$":
			return "medium"
		case "high", "expensive", "$$$", "$$$$":
			return "high"
		}
	}
	return "medium"
}

func applyOverrides(intent *Intent, ov *IntentOverrides) {
	if ov == nil {
		return
	}
	if ov.Activity != "" {
		intent.Activity = ov.Activity
	}
	if ov.GroupSize != nil && *ov.GroupSize > 0 {
		intent.GroupSize = *ov.GroupSize
	}
	if ov.BudgetTier != "" {
		intent.BudgetTier = normalizeBudget(ov.BudgetTier)
	}
	if ov.Location != "" {
		intent.Location = ov.Location
	}
	if ov.VibePreference != "" {
		intent.VibePreference = ov.VibePreference
	}
	if ov.OriginLat != nil && ov.OriginLng != nil {
		intent.OriginLat = ov.OriginLat
		intent.OriginLng = ov.OriginLng
	}
}

func applyProfileBoost(weights map[StageID]float64, prefs map[string]bool) {
	boosted := make(map[StageID]bool)
	for pref, stage := range profileBoosts {
		if !prefs[pref] || boosted[stage] {
			continue
		}
		boosted[stage] = true
		w, ok := weights[stage]
		if !ok {
			w = 0.5
		}
		weights[stage] = min(1.0, roundTo(w+profileBoost, 2))
	}
}
