package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/workflow"
)

// Graph node ids.
const (
	NodeOrchestrator = "orchestrator"
	NodeDiscovery    = "discovery"
	NodeAnalysis     = "analysis"
	NodeFilter       = "filter"
	NodeReview       = "review"
	NodeSynthesis    = "synthesis"
)

type stages struct {
	orchestrator  *Orchestrator
	discovery     *DiscoveryStage
	aesthetic     *AestheticStage
	cost          *CostStage
	accessibility *AccessibilityStage
	filter        *FilterStage
	review        *ReviewStage
	synthesis     *SynthesisStage
}

// gated skips a branch whose stage is not active in the current plan.
func gated(id StageID, run func(context.Context, *State) (func(*State), error)) func(context.Context, *State) (func(*State), error) {
	return func(ctx context.Context, s *State) (func(*State), error) {
		if !s.ActiveStages.Has(id) {
			return nil, nil
		}
		return run(ctx, s)
	}
}

// RouteAfterReview picks the node after review: back to the orchestrator
// while a veto is pending and retries remain, synthesis otherwise.
func RouteAfterReview(cfg Config) workflow.Router[State] {
	return func(s *State) string {
		if s.Veto && cfg.VetoMode == VetoModeRetry && s.RetryCount < cfg.MaxRetries {
			return NodeOrchestrator
		}
		return NodeSynthesis
	}
}

func buildGraph(cfg Config, st stages, logger *zap.Logger) (*workflow.Graph[State], error) {
	opts := func(label workflow.LabelFunc[State]) []workflow.NodeOption[State] {
		return []workflow.NodeOption[State]{
			workflow.WithTimeout[State](cfg.StageTimeout),
			workflow.WithContinueOnError[State](),
			workflow.WithLabel(label),
		}
	}

	analysis := workflow.Parallel[State](NodeAnalysis,
		workflow.Branch[State]{Name: string(StageAesthetic), Run: gated(StageAesthetic, st.aesthetic.Analyze)},
		workflow.Branch[State]{Name: string(StageCost), Run: gated(StageCost, st.cost.Analyze)},
		workflow.Branch[State]{Name: string(StageAccessibility), Run: gated(StageAccessibility, st.accessibility.Analyze)},
	)

	review := func(ctx context.Context, s *State) error {
		if !s.ActiveStages.Has(StageReview) {
			s.RiskFlags = map[string][]RiskFlag{}
			s.Veto, s.VetoReason = false, ""
			return nil
		}
		return st.review.Run(ctx, s)
	}

	synthesis := func(ctx context.Context, s *State) error {
		if s.Veto && cfg.VetoMode == VetoModeRetry {
			s.Exhausted = true
			logger.Warn("retry budget exhausted, returning best-effort results",
				zap.Int("retry_count", s.RetryCount),
				zap.String("veto_reason", s.VetoReason),
			)
		}
		return st.synthesis.Run(ctx, s)
	}

	return workflow.NewBuilder[State]("pathfinder").
		AddNode(NodeOrchestrator, "Planning", st.orchestrator.Run, opts(orchestratorLabel)...).
		AddNode(NodeDiscovery, "Discovering venues", st.discovery.Run, opts(discoveryLabel)...).
		AddNode(NodeAnalysis, "Analyzing venues", analysis, opts(analysisLabel)...).
		AddNode(NodeFilter, "Filtering venues", st.filter.Run, opts(filterLabel)...).
		AddNode(NodeReview, "Reviewing risks", review, opts(reviewLabel)...).
		AddNode(NodeSynthesis, "Ranking venues", synthesis, opts(synthesisLabel)...).
		AddEdge(NodeOrchestrator, NodeDiscovery).
		AddEdge(NodeDiscovery, NodeAnalysis).
		AddEdge(NodeAnalysis, NodeFilter).
		AddEdge(NodeFilter, NodeReview).
		AddConditionalEdge(NodeReview, RouteAfterReview(cfg), NodeOrchestrator, NodeSynthesis).
		AddEdge(NodeSynthesis, workflow.End).
		SetEntry(NodeOrchestrator).
		SetMaxSteps(cfg.EffectiveMaxSteps()).
		Build(logger)
}

func orchestratorLabel(s *State) string {
	intent := s.intent()
	prefix := "Planned"
	if s.RetryCount > 0 {
		prefix = fmt.Sprintf("Replanned (retry %d)", s.RetryCount)
	}
	return fmt.Sprintf("%s: %s in %s (%s, %d stages)", prefix, intent.Activity, intent.Location, s.ComplexityTier, len(s.ActiveStages))
}

func discoveryLabel(s *State) string {
	return fmt.Sprintf("Found %d candidate venues", len(s.Candidates))
}

func analysisLabel(s *State) string {
	return fmt.Sprintf("Analyzed %d venues (%d vibe, %d cost, %d travel)",
		len(s.Candidates), len(s.AestheticScores), len(s.CostProfiles), len(s.AccessibilityScores))
}

func filterLabel(s *State) string {
	if len(s.Filtered) == 0 {
		return fmt.Sprintf("Kept all %d candidates", len(s.Candidates))
	}
	return fmt.Sprintf("Kept %d of %d candidates after style filter", len(s.Candidates), len(s.Candidates)+len(s.Filtered))
}

func reviewLabel(s *State) string {
	if s.Veto {
		return "Plan vetoed: " + s.VetoReason
	}
	n := 0
	for _, flags := range s.RiskFlags {
		n += len(flags)
	}
	return fmt.Sprintf("Reviewed top venues, %d risks flagged", n)
}

func synthesisLabel(s *State) string {
	if len(s.RankedResults) == 0 {
		return "No venues to rank"
	}
	return fmt.Sprintf("Ranked %d venues, top pick %s", len(s.RankedResults), s.RankedResults[0].Venue.Name)
}
