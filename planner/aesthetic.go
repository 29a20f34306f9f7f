package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/llm"
	"github.com/BaSui01/pathfinder/workflow"
)

// Aesthetic confidence labels.
const (
	AestheticFromImages   = "image"
	AestheticFromMetadata = "metadata"
	AestheticUnscored     = "unscored"
)

const aestheticPrompt = `Rate how well this venue matches the requested style.

Requested style: %s
Venue: %s
Category: %s
Address: %s
Rating: %.1f (%d reviews)
Photos attached: %d

Return ONLY a JSON object:
{"vibe_score": <0.0-1.0>, "primary_vibe": "<one or two words>", "labels": ["<label>", ...], "notes": "<one sentence>"}
`

type aestheticReply struct {
	VibeScore   *float64 `json:"vibe_score"`
	PrimaryVibe string   `json:"primary_vibe"`
	Labels      []string `json:"labels"`
	Notes       string   `json:"notes"`
}

// AestheticStage scores each candidate against the requested style.
type AestheticStage struct {
	gen    Generator
	cfg    Config
	logger *zap.Logger
}

// NewAestheticStage creates the aesthetic stage.
func NewAestheticStage(gen Generator, cfg Config, logger *zap.Logger) *AestheticStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AestheticStage{gen: gen, cfg: cfg, logger: logger.With(zap.String("component", "aesthetic"))}
}

// Analyze reads Candidates and returns the AestheticScores write.
func (a *AestheticStage) Analyze(ctx context.Context, s *State) (func(*State), error) {
	style := strings.TrimSpace(s.intent().VibePreference)
	if style == "" {
		style = a.cfg.DefaultStyle
	}

	results := workflow.ForEach(ctx, s.Candidates, a.cfg.Concurrency, func(ctx context.Context, v Venue) AestheticScore {
		return a.scoreVenue(ctx, v, style)
	})

	scores := make(map[string]AestheticScore, len(results))
	scored := 0
	for i, v := range s.Candidates {
		scores[v.VenueID] = results[i]
		if results[i].Score != nil {
			scored++
		}
	}
	a.logger.Info("aesthetic scoring complete",
		zap.String("style", style),
		zap.Int("scored", scored),
		zap.Int("venues", len(s.Candidates)),
	)
	return func(s *State) { s.AestheticScores = scores }, nil
}

func (a *AestheticStage) scoreVenue(ctx context.Context, v Venue, style string) AestheticScore {
	unscored := AestheticScore{Confidence: AestheticUnscored}
	if a.gen == nil {
		return unscored
	}
	photos := v.PhotoRefs
	if len(photos) > a.cfg.MaxPhotos {
		photos = photos[:a.cfg.MaxPhotos]
	}
	prompt := fmt.Sprintf(aestheticPrompt, style, v.Name, v.Category, v.Address, v.Rating, v.ReviewCount, len(photos))

	opts := []llm.GenerateOption{llm.WithJSON()}
	if len(photos) > 0 {
		opts = append(opts, llm.WithImages(photos...))
	}
	out, err := a.gen.Generate(ctx, prompt, opts...)
	if err != nil {
		a.logger.Warn("aesthetic scoring failed", zap.String("venue_id", v.VenueID), zap.Error(err))
		return unscored
	}
	reply, err := llm.DecodeJSON[aestheticReply](out)
	if err != nil || reply.VibeScore == nil {
		a.logger.Warn("aesthetic reply malformed", zap.String("venue_id", v.VenueID), zap.Error(err))
		return unscored
	}

	confidence := AestheticFromMetadata
	if len(photos) > 0 {
		confidence = AestheticFromImages
	}
	return AestheticScore{
		Score:       ptr(roundTo(clamp01(*reply.VibeScore), 3)),
		PrimaryVibe: reply.PrimaryVibe,
		Labels:      reply.Labels,
		Notes:       reply.Notes,
		Confidence:  confidence,
	}
}
