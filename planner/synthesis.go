package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/llm"
	"github.com/BaSui01/pathfinder/workflow"
)

// FallbackConsensus is used when the consensus narrative cannot be generated.
const FallbackConsensus = "Based on the options, these venues are the strongest matches."

const explainPrompt = `Explain briefly why this venue fits the request.

Request: %s
Venue: %s (%s)
Address: %s
Vibe analysis: %s
Cost analysis: %s
Risk flags: %s

Return ONLY a JSON object:
{"why": "<1-2 sentences>", "watch_out": "<1 sentence, or empty string>"}
`

const consensusPrompt = `Compare the top venues for this group request and pick the best option,
weighing price, rating, risks and vibe.

Request: %s
Group size: %d
Top venues:
%s

Return ONLY a JSON object:
{"global_consensus": "<2-3 sentences>",
 "email_draft": "<a short professional email to the top venue asking about group availability and confirming pricing for the group size>"}
`

type explainReply struct {
	Why      string `json:"why"`
	WatchOut string `json:"watch_out"`
}

type consensusReply struct {
	GlobalConsensus string `json:"global_consensus"`
	EmailDraft      string `json:"email_draft"`
}

// SynthesisStage ranks candidates and writes the narrative outputs.
type SynthesisStage struct {
	gen      Generator
	consent  ConsentService
	contacts ContactFinder
	cfg      Config
	logger  *zap.Logger
}

// NewSynthesisStage creates the terminal stage.
func NewSynthesisStage(gen Generator, consent ConsentService, cfg Config, logger *zap.Logger) *SynthesisStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SynthesisStage{
		gen:     gen,
		consent: consent,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "synthesis")),
	}
}

// WithContacts sets the venue address lookup used by the consent flow.
func (st *SynthesisStage) WithContacts(c ContactFinder) *SynthesisStage {
	st.contacts = c
	return st
}

// Run writes RankedResults, GlobalConsensus, EmailDraft, ActionRequest and Consent.
func (st *SynthesisStage) Run(ctx context.Context, s *State) error {
	ranked := RankCandidates(s, st.cfg)
	s.RankedResults = ranked
	if len(ranked) == 0 {
		st.logger.Info("no candidates to rank")
		return nil
	}

	top := ranked[:min(st.cfg.ExplainTopK, len(ranked))]
	explanations := workflow.ForEach(ctx, top, 0, func(ctx context.Context, rv RankedVenue) explainReply {
		return st.explain(ctx, s, rv)
	})
	for i := range top {
		ranked[i].Why = explanations[i].Why
		ranked[i].WatchOut = explanations[i].WatchOut
	}

	s.GlobalConsensus, s.EmailDraft = st.consensus(ctx, s, top)

	intent := s.intent()
	if intent.RequiresOAuth && slices.Contains(intent.AllowedActions, "send_email") {
		s.ActionRequest = &ActionRequest{
			Type:   "oauth_consent",
			Reason: fmt.Sprintf("To automatically email %s for availability.", firstNonEmpty(top[0].Venue.Name, "the top venue")),
			Scopes: []string{"email.send"},
			Draft:  s.EmailDraft,
		}
		if st.cfg.Consent.Enabled && st.consent != nil && s.Identity != "" {
			s.Consent = st.runConsent(ctx, s, top[0].Venue)
		}
	}

	st.logger.Info("synthesis complete",
		zap.Int("ranked", len(ranked)),
		zap.Float64("top_score", ranked[0].Composite),
		zap.Bool("action_request", s.ActionRequest != nil),
	)
	return nil
}

func (st *SynthesisStage) explain(ctx context.Context, s *State, rv RankedVenue) explainReply {
	if st.gen == nil {
		return explainReply{}
	}
	id := rv.Venue.VenueID
	prompt := fmt.Sprintf(explainPrompt,
		s.RawRequest, rv.Venue.Name, rv.Venue.Category, rv.Venue.Address,
		jsonOr(s.AestheticScores[id], "N/A"),
		jsonOr(s.CostProfiles[id], "N/A"),
		jsonOr(s.RiskFlags[id], "None"),
	)
	out, err := st.gen.Generate(ctx, prompt, llm.WithJSON())
	if err != nil {
		st.logger.Warn("explanation failed", zap.String("venue_id", id), zap.Error(err))
		return explainReply{}
	}
	reply, err := llm.DecodeJSON[explainReply](out)
	if err != nil {
		st.logger.Warn("explanation malformed", zap.String("venue_id", id), zap.Error(err))
		return explainReply{}
	}
	return reply
}

func (st *SynthesisStage) consensus(ctx context.Context, s *State, top []RankedVenue) (string, string) {
	if st.gen == nil {
		return FallbackConsensus, ""
	}
	type summary struct {
		Rank     int     `json:"rank"`
		Name     string  `json:"name"`
		Score    float64 `json:"score"`
		Rating   float64 `json:"rating"`
		Price    string  `json:"price_range,omitempty"`
		Risks    int     `json:"risk_count"`
		WhyFits  string  `json:"why,omitempty"`
		Category string  `json:"category,omitempty"`
	}
	summaries := make([]summary, 0, len(top))
	for _, rv := range top {
		summaries = append(summaries, summary{
			Rank: rv.Rank, Name: rv.Venue.Name, Score: rv.Composite, Rating: rv.Venue.Rating,
			Price: rv.PriceRange, Risks: len(rv.Risks), WhyFits: rv.Why, Category: rv.Venue.Category,
		})
	}
	venues, _ := json.MarshalIndent(summaries, "", "  ")
	prompt := fmt.Sprintf(consensusPrompt, s.RawRequest, max(s.intent().GroupSize, 1), venues)

	out, err := st.gen.Generate(ctx, prompt, llm.WithJSON())
	if err != nil {
		st.logger.Warn("consensus generation failed", zap.Error(err))
		return FallbackConsensus, ""
	}
	reply, err := llm.DecodeJSON[consensusReply](out)
	if err != nil || reply.GlobalConsensus == "" {
		st.logger.Warn("consensus reply malformed", zap.Error(err))
		return FallbackConsensus, reply.EmailDraft
	}
	return reply.GlobalConsensus, reply.EmailDraft
}

func jsonOr(v any, fallback string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" || string(b) == "{}" || string(b) == "[]" {
		return fallback
	}
	return string(b)
}
