package planner

import "sort"

// NormalizeWeights rescales w to sum to 1. Negative components count as 0;
// an all-zero input falls back to defaults.
func NormalizeWeights(w, defaults Weights) Weights {
	w = Weights{Aesthetic: max(0, w.Aesthetic), Cost: max(0, w.Cost), Review: max(0, w.Review)}
	total := w.Aesthetic + w.Cost + w.Review
	if total <= 0 {
		w = defaults
		total = w.Aesthetic + w.Cost + w.Review
		if total <= 0 {
			return Weights{Aesthetic: 1.0 / 3, Cost: 1.0 / 3, Review: 1.0 / 3}
		}
	}
	return Weights{Aesthetic: w.Aesthetic / total, Cost: w.Cost / total, Review: w.Review / total}
}

// WeightsFromStages reads the synthesis weights from stage weights, using
// defaults for absent stages.
func WeightsFromStages(stage map[StageID]float64, defaults Weights) Weights {
	pick := func(id StageID, def float64) float64 {
		if v, ok := stage[id]; ok {
			return v
		}
		return def
	}
	return Weights{
		Aesthetic: pick(StageAesthetic, defaults.Aesthetic),
		Cost:      pick(StageCost, defaults.Cost),
		Review:    pick(StageReview, defaults.Review),
	}
}

// RiskScore is 1 minus the capped sum of per-severity penalties.
func RiskScore(flags []RiskFlag, p Penalties) float64 {
	penalty := 0.0
	for _, f := range flags {
		switch f.Severity {
		case SeverityHigh:
			penalty += p.High
		case SeverityMedium:
			penalty += p.Medium
		default:
			penalty += p.Low
		}
	}
	return 1.0 - min(penalty, p.Cap)
}

// CompositeScore combines the three sub-scores with normalized weights,
// clamped to [0,1] and rounded to 3 decimals.
func CompositeScore(aesthetic, value, risk float64, w Weights) float64 {
	c := w.Aesthetic*aesthetic + w.Cost*value + w.Review*risk
	return roundTo(clamp01(c), 3)
}

func venuePrice(v Venue) (price, confidence string) {
	price, confidence = ResolvePriceRange(v.GooglePrice, v.YelpPrice)
	if price == "" && v.PriceRange != "" {
		return v.PriceRange, "medium"
	}
	if price == "" {
		return "", ""
	}
	return price, confidence
}

// RankCandidates scores every candidate and sorts them descending; ties keep
// candidate order.
func RankCandidates(s *State, cfg Config) []RankedVenue {
	weights := NormalizeWeights(WeightsFromStages(s.StageWeights, cfg.Weights), cfg.Weights)
	ranked := make([]RankedVenue, 0, len(s.Candidates))
	for _, v := range s.Candidates {
		aestheticScore := 0.5
		var aestheticPtr *float64
		if a, ok := s.AestheticScores[v.VenueID]; ok && a.Score != nil {
			aestheticScore = *a.Score
			aestheticPtr = a.Score
		}
		value := 0.5
		var priceRange, priceConfidence string
		if c, ok := s.CostProfiles[v.VenueID]; ok {
			value = c.ValueScore
			priceRange, priceConfidence = c.PriceRange, c.PriceConfidence
		} else if priceRange, priceConfidence = venuePrice(v); priceRange != "" {
			// 没有成本画像时退回到价位信号
			value = PriceValueScore(priceRange, priceConfidence)
		}
		var access *float64
		if a, ok := s.AccessibilityScores[v.VenueID]; ok {
			access = ptr(a.Score)
		}
		flags := s.RiskFlags[v.VenueID]
		risk := RiskScore(flags, cfg.Penalties)

		ranked = append(ranked, RankedVenue{
			Venue:           v,
			Composite:       CompositeScore(aestheticScore, value, risk, weights),
			AestheticScore:  aestheticPtr,
			ValueScore:      value,
			RiskScore:       roundTo(risk, 3),
			Accessibility:   access,
			PriceRange:      priceRange,
			PriceConfidence: priceConfidence,
			Risks:           flags,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Composite > ranked[j].Composite })
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
