package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/pathfinder/llm"
	"github.com/BaSui01/pathfinder/workflow"
)

const reviewPrompt = `You are a critic trying to break a group outing plan. Find dealbreakers.

Activity: %s
Group size: %d
Venue: %s (%s)
Address: %s
Current weather: %s
Nearby events: %s

Return ONLY a JSON object:
{"risks": [{"type": "<weather|event|crowding|closure|safety|other>", "severity": "high" | "medium" | "low", "detail": "<one sentence>"}],
 "fast_fail": <true only if this venue is unusable for the activity right now>,
 "fast_fail_reason": "<why, empty if fast_fail is false>"}
`

type reviewReply struct {
	Risks []struct {
		Type     string `json:"type"`
		Severity string `json:"severity"`
		Detail   string `json:"detail"`
	} `json:"risks"`
	FastFail       bool   `json:"fast_fail"`
	FastFailReason string `json:"fast_fail_reason"`
}

type venueReview struct {
	flags    []RiskFlag
	fastFail bool
	reason   string
}

// ReviewStage is the adversarial critic over the top candidates.
type ReviewStage struct {
	gen     Generator
	weather WeatherService
	events  EventService
	risks   RiskLog
	cfg     Config
	logger  *zap.Logger
}

// NewReviewStage creates the review stage.
func NewReviewStage(gen Generator, weather WeatherService, events EventService, risks RiskLog, cfg Config, logger *zap.Logger) *ReviewStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewStage{
		gen:     gen,
		weather: weather,
		events:  events,
		risks:   risks,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "review")),
	}
}

// Run writes RiskFlags, Veto and VetoReason.
func (r *ReviewStage) Run(ctx context.Context, s *State) error {
	top := s.Candidates[:min(r.cfg.ReviewTopK, len(s.Candidates))]
	intent := s.intent()

	results := workflow.ForEach(ctx, top, 0, func(ctx context.Context, v Venue) venueReview {
		return r.reviewVenue(ctx, v, intent)
	})

	flags := make(map[string][]RiskFlag, len(top))
	for i, v := range top {
		flags[v.VenueID] = results[i].flags
		r.logHighRisks(ctx, v, results[i].flags, s.RawRequest)
	}
	s.RiskFlags = flags
	s.Veto = false
	s.VetoReason = ""

	switch {
	case len(s.Candidates) < r.cfg.MinViable:
		s.Veto = true
		s.VetoReason = fmt.Sprintf("only %d viable venue(s) found, need at least %d", len(s.Candidates), r.cfg.MinViable)
	case len(results) > 0 && results[0].fastFail:
		s.Veto = true
		s.VetoReason = firstNonEmpty(results[0].reason, fmt.Sprintf("top venue %s failed review", top[0].Name))
	}

	if s.Veto {
		// Veto is a control-flow signal, not a failure.
		r.logger.Info("plan vetoed",
			zap.String("veto_reason", s.VetoReason),
			zap.String("veto_mode", r.cfg.VetoMode),
			zap.Int("retry_count", s.RetryCount),
		)
	} else {
		r.logger.Info("review passed", zap.Int("reviewed", len(top)))
	}
	return nil
}

func (r *ReviewStage) reviewVenue(ctx context.Context, v Venue, intent Intent) venueReview {
	var (
		weather *Weather
		events  []NearbyEvent
		history []string
	)
	var g errgroup.Group
	if r.weather != nil {
		g.Go(func() error {
			callCtx, cancel := withCallTimeout(ctx, r.cfg.CallTimeout)
			defer cancel()
			w, err := r.weather.Current(callCtx, v.Point())
			if err != nil {
				r.logger.Warn("weather lookup failed", zap.String("venue_id", v.VenueID), zap.Error(err))
				return nil
			}
			weather = w
			return nil
		})
	}
	if r.events != nil {
		g.Go(func() error {
			callCtx, cancel := withCallTimeout(ctx, r.cfg.CallTimeout)
			defer cancel()
			ev, err := r.events.Nearby(callCtx, v.Point(), r.cfg.EventRadiusKm)
			if err != nil {
				r.logger.Warn("event lookup failed", zap.String("venue_id", v.VenueID), zap.Error(err))
				return nil
			}
			events = ev
			return nil
		})
	}
	if r.risks != nil {
		g.Go(func() error {
			callCtx, cancel := withCallTimeout(ctx, r.cfg.CallTimeout)
			defer cancel()
			h, err := r.risks.HistoricalRisks(callCtx, v.VenueID)
			if err != nil {
				r.logger.Warn("risk history lookup failed", zap.String("venue_id", v.VenueID), zap.Error(err))
				return nil
			}
			history = h
			return nil
		})
	}
	_ = g.Wait()

	review := r.critique(ctx, v, intent, weather, events)
	review.flags = MergeHistoricalRisks(review.flags, history)
	return review
}

func (r *ReviewStage) critique(ctx context.Context, v Venue, intent Intent, weather *Weather, events []NearbyEvent) venueReview {
	empty := venueReview{flags: []RiskFlag{}}
	if r.gen == nil {
		return empty
	}
	weatherJSON, eventsJSON := "unknown", "none"
	if weather != nil {
		b, _ := json.Marshal(weather)
		weatherJSON = string(b)
	}
	if len(events) > 0 {
		b, _ := json.Marshal(events)
		eventsJSON = string(b)
	}
	prompt := fmt.Sprintf(reviewPrompt, intent.Activity, max(intent.GroupSize, 1), v.Name, v.Category, v.Address, weatherJSON, eventsJSON)

	out, err := r.gen.Generate(ctx, prompt, llm.WithJSON())
	if err != nil {
		r.logger.Warn("review generation failed", zap.String("venue_id", v.VenueID), zap.Error(err))
		return empty
	}
	reply, err := llm.DecodeJSON[reviewReply](out)
	if err != nil {
		r.logger.Warn("review reply malformed", zap.String("venue_id", v.VenueID), zap.Error(err))
		return empty
	}

	flags := make([]RiskFlag, 0, len(reply.Risks))
	for _, risk := range reply.Risks {
		if strings.TrimSpace(risk.Detail) == "" {
			continue
		}
		flags = append(flags, RiskFlag{
			Type:     firstNonEmpty(strings.ToLower(risk.Type), "other"),
			Severity: normalizeSeverity(risk.Severity),
			Detail:   strings.TrimSpace(risk.Detail),
			Source:   RiskSourceReview,
		})
	}
	return venueReview{flags: flags, fastFail: reply.FastFail, reason: strings.TrimSpace(reply.FastFailReason)}
}

func (r *ReviewStage) logHighRisks(ctx context.Context, v Venue, flags []RiskFlag, query string) {
	if r.risks == nil {
		return
	}
	for _, f := range flags {
		if f.Severity != SeverityHigh || f.Source != RiskSourceReview {
			continue
		}
		err := r.risks.Append(ctx, RiskEntry{
			VenueID:      v.VenueID,
			VenueName:    v.Name,
			RiskType:     f.Type,
			Description:  f.Detail,
			Severity:     f.Severity,
			QueryContext: query,
		})
		if err != nil {
			r.logger.Warn("risk log append failed", zap.String("venue_id", v.VenueID), zap.Error(err))
		}
	}
}

// MergeHistoricalRisks appends prior descriptions as high-severity history
// flags, skipping any description already present.
func MergeHistoricalRisks(flags []RiskFlag, history []string) []RiskFlag {
	seen := make(map[string]bool, len(flags)+len(history))
	for _, f := range flags {
		seen[f.Detail] = true
	}
	for _, desc := range history {
		if desc == "" || seen[desc] {
			continue
		}
		seen[desc] = true
		flags = append(flags, RiskFlag{
			Type:     "historical",
			Severity: SeverityHigh,
			Detail:   desc,
			Source:   RiskSourceHistory,
		})
	}
	if flags == nil {
		flags = []RiskFlag{}
	}
	return flags
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityHigh, "critical", "severe":
		return SeverityHigh
	case SeverityMedium, "moderate":
		return SeverityMedium
	default:
		return SeverityLow
	}
}
