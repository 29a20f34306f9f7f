package planner

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// FilterCandidates drops venues scoring below threshold but never leaves
// fewer than floor venues: when it would, the best rejected venues are
// restored in descending score order. Unscored venues are never dropped.
// The result keeps the input order. removed lists the dropped venue ids.
func FilterCandidates(candidates []Venue, scores map[string]AestheticScore, threshold float64, floor int) (kept []Venue, removed []string) {
	type rejected struct {
		idx   int
		score float64
	}
	var rejects []rejected
	keep := make([]bool, len(candidates))
	keptCount := 0
	for i, v := range candidates {
		sc, ok := scores[v.VenueID]
		if !ok || sc.Score == nil || *sc.Score >= threshold {
			keep[i] = true
			keptCount++
			continue
		}
		rejects = append(rejects, rejected{idx: i, score: *sc.Score})
	}

	if keptCount < floor && len(rejects) > 0 {
		sort.SliceStable(rejects, func(i, j int) bool { return rejects[i].score > rejects[j].score })
		for _, r := range rejects {
			if keptCount >= floor {
				break
			}
			keep[r.idx] = true
			keptCount++
		}
	}

	kept = make([]Venue, 0, keptCount)
	for i, v := range candidates {
		if keep[i] {
			kept = append(kept, v)
		} else {
			removed = append(removed, v.VenueID)
		}
	}
	return kept, removed
}

// FilterStage is the serial pruning step run after the analysis join.
type FilterStage struct {
	cfg    Config
	logger *zap.Logger
}

// NewFilterStage creates the filter step.
func NewFilterStage(cfg Config, logger *zap.Logger) *FilterStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterStage{cfg: cfg, logger: logger.With(zap.String("component", "filter"))}
}

// Run prunes Candidates when the caller asked for a specific style.
func (f *FilterStage) Run(_ context.Context, s *State) error {
	if strings.TrimSpace(s.intent().VibePreference) == "" || len(s.AestheticScores) == 0 {
		return nil
	}
	before := len(s.Candidates)
	kept, removed := FilterCandidates(s.Candidates, s.AestheticScores, f.cfg.AestheticThreshold, f.cfg.AestheticFloor)
	s.Candidates = kept
	s.Filtered = removed
	if len(removed) > 0 {
		f.logger.Info("aesthetic filter pruned candidates",
			zap.Int("before", before),
			zap.Int("after", len(kept)),
			zap.Strings("removed", removed),
		)
	}
	return nil
}
