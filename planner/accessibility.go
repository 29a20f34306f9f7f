package planner

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/pathfinder/workflow"
)

// Accessibility scoring constants.
const (
	NeutralAccessScore   = 0.5
	MinAccessScore       = 0.1
	CalendarPenalty      = 0.3
	fullScoreMinutes     = 10.0
	zeroSlopeMinutes     = 55.0
	maxReasonableMinutes = 60.0
)

var modeKeywords = []struct {
	mode     TravelMode
	keywords []string
}{
	{ModeTransit, []string{"transit", "subway", "bus", "ttc", "public transport"}},
	{ModeWalking, []string{"walk", "walking", "on foot"}},
	{ModeCycling, []string{"bike", "cycling", "bicycle"}},
}

// ResolveTravelMode infers the travel mode from request keywords.
func ResolveTravelMode(raw string) TravelMode {
	normalized := normalizeRequest(raw)
	for _, m := range modeKeywords {
		if keywordHits(normalized, m.keywords) > 0 {
			return m.mode
		}
	}
	return ModeDriving
}

// AccessScore maps a travel duration in minutes to [0.1, 1]; nil → neutral.
func AccessScore(minutes *float64) float64 {
	if minutes == nil {
		return NeutralAccessScore
	}
	t := *minutes
	switch {
	case t <= fullScoreMinutes:
		return 1.0
	case t <= maxReasonableMinutes:
		return roundTo(max(MinAccessScore, 1.0-(t-fullScoreMinutes)/zeroSlopeMinutes), 2)
	default:
		return MinAccessScore
	}
}

// AccessibilityStage scores travel time from the group's origin.
type AccessibilityStage struct {
	router   Router
	calendar CalendarChecker
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

// NewAccessibilityStage creates the accessibility stage.
func NewAccessibilityStage(router Router, calendar CalendarChecker, cfg Config, logger *zap.Logger) *AccessibilityStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessibilityStage{
		router:   router,
		calendar: calendar,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "accessibility")),
	}
}

type accessResult struct {
	score     AccessibilityScore
	isochrone json.RawMessage
}

// Analyze reads Candidates and returns the AccessibilityScores and Isochrones write.
func (a *AccessibilityStage) Analyze(ctx context.Context, s *State) (func(*State), error) {
	intent := s.intent()
	origin := a.cfg.DefaultOrigin
	if intent.OriginLat != nil && intent.OriginLng != nil {
		origin = LatLng{Lat: *intent.OriginLat, Lng: *intent.OriginLng}
	}
	mode := ResolveTravelMode(s.RawRequest)

	results := workflow.ForEach(ctx, s.Candidates, a.cfg.Concurrency, func(ctx context.Context, v Venue) accessResult {
		return a.analyzeVenue(ctx, v, origin, mode)
	})
	conflict := a.calendarConflict(ctx, s.Identity)

	scores := make(map[string]AccessibilityScore, len(results))
	isochrones := make(map[string]json.RawMessage)
	for i, v := range s.Candidates {
		r := results[i]
		if conflict {
			r.score.Score = roundTo(max(MinAccessScore, r.score.Score-CalendarPenalty), 2)
			r.score.Status = AccessCalendarConflict
		}
		scores[v.VenueID] = r.score
		if len(r.isochrone) > 0 {
			isochrones[v.VenueID] = r.isochrone
		}
	}
	a.logger.Info("accessibility analysis complete",
		zap.String("mode", string(mode)),
		zap.Float64("origin_lat", origin.Lat),
		zap.Float64("origin_lng", origin.Lng),
		zap.Bool("calendar_conflict", conflict),
		zap.Int("venues", len(s.Candidates)),
	)
	return func(s *State) {
		s.AccessibilityScores = scores
		s.Isochrones = isochrones
	}, nil
}

func (a *AccessibilityStage) analyzeVenue(ctx context.Context, v Venue, origin LatLng, mode TravelMode) accessResult {
	res := accessResult{score: AccessibilityScore{Score: NeutralAccessScore, Mode: string(mode), Status: AccessNoData}}
	if a.router == nil {
		return res
	}

	var estimate *TravelEstimate
	var g errgroup.Group
	g.Go(func() error {
		callCtx, cancel := withCallTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()
		est, err := a.router.TravelTime(callCtx, origin, v.Point(), mode)
		if err != nil {
			a.logger.Warn("travel time failed", zap.String("venue_id", v.VenueID), zap.Error(err))
			return nil
		}
		estimate = est
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := withCallTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()
		poly, err := a.router.Isochrone(callCtx, v.Point(), mode, a.cfg.IsochroneMinutes)
		if err != nil {
			a.logger.Debug("isochrone failed", zap.String("venue_id", v.VenueID), zap.Error(err))
			return nil
		}
		res.isochrone = poly
		return nil
	})
	_ = g.Wait()

	if estimate == nil {
		return res
	}
	raw := estimate.DurationSeconds / 60
	minutes := roundTo(raw, 1)
	distance := estimate.DistanceMeters
	res.score = AccessibilityScore{
		Score:          AccessScore(&raw),
		TravelMinutes:  &minutes,
		DistanceMeters: &distance,
		Mode:           string(mode),
		Status:         AccessOK,
	}
	return res
}

func (a *AccessibilityStage) calendarConflict(ctx context.Context, identity string) bool {
	if a.calendar == nil || strings.TrimSpace(identity) == "" {
		return false
	}
	callCtx, cancel := withCallTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	start := a.now()
	busy, err := a.calendar.HasConflict(callCtx, identity, start, start.Add(a.cfg.CalendarWindow))
	if err != nil {
		a.logger.Warn("calendar check failed", zap.String("identity", identity), zap.Error(err))
		return false
	}
	return busy
}
