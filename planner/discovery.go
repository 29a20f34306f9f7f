package planner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/workflow"
)

const earthRadiusMeters = 6_371_000

// Haversine returns the great-circle distance in meters.
func Haversine(a, b LatLng) float64 {
	lat1, lng1 := a.Lat*math.Pi/180, a.Lng*math.Pi/180
	lat2, lng2 := b.Lat*math.Pi/180, b.Lng*math.Pi/180
	dlat := lat2 - lat1
	dlng := lng2 - lng1
	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return earthRadiusMeters * 2 * math.Asin(math.Sqrt(min(1, h)))
}

func venueKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// seedPriceSignal copies the source price into its source-specific field.
func seedPriceSignal(v Venue) Venue {
	switch v.Source {
	case SourceGooglePlaces:
		if v.GooglePrice == "" {
			v.GooglePrice = v.PriceRange
		}
	case SourceYelp:
		if v.YelpPrice == "" {
			v.YelpPrice = v.PriceRange
		}
	}
	return v
}

// Deduplicate collapses venues with the same normalized name within
// thresholdMeters. The higher-rated record survives at the position of the
// first-seen one, carrying the price signals of both.
func Deduplicate(venues []Venue, thresholdMeters float64) []Venue {
	kept := make([]Venue, 0, len(venues))
	for _, v := range venues {
		v = seedPriceSignal(v)
		merged := false
		for i := range kept {
			k := &kept[i]
			if venueKey(k.Name) != venueKey(v.Name) || Haversine(k.Point(), v.Point()) >= thresholdMeters {
				continue
			}
			google := firstNonEmpty(v.GooglePrice, k.GooglePrice)
			yelp := firstNonEmpty(v.YelpPrice, k.YelpPrice)
			if v.Rating > k.Rating {
				*k = v
			}
			k.GooglePrice = google
			k.YelpPrice = yelp
			merged = true
			break
		}
		if !merged {
			kept = append(kept, v)
		}
	}
	return kept
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// DiscoveryStage searches every source concurrently and merges the results.
type DiscoveryStage struct {
	searchers []VenueSearcher
	cfg       Config
	logger    *zap.Logger
}

// NewDiscoveryStage creates the discovery stage.
func NewDiscoveryStage(searchers []VenueSearcher, cfg Config, logger *zap.Logger) *DiscoveryStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscoveryStage{
		searchers: searchers,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "discovery")),
	}
}

// Run writes Candidates.
func (d *DiscoveryStage) Run(ctx context.Context, s *State) error {
	intent := s.intent()
	query := strings.TrimSpace(intent.Activity)
	if query == "" {
		query = strings.TrimSpace(s.RawRequest)
	}
	if query == "" {
		d.logger.Warn("no query to search, returning no candidates")
		s.Candidates = []Venue{}
		return nil
	}
	location := intent.Location
	if location == "" {
		location = d.cfg.DefaultLocation
	}

	results := workflow.ForEach(ctx, d.searchers, 0, func(ctx context.Context, src VenueSearcher) []Venue {
		callCtx, cancel := withCallTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
		venues, err := src.Search(callCtx, query, location, d.cfg.SourceLimit)
		if err != nil {
			d.logger.Warn("venue source failed",
				zap.String("source", src.Name()),
				zap.Error(err),
			)
			return nil
		}
		return venues
	})

	var all []Venue
	counts := make([]zap.Field, 0, len(results))
	for i, venues := range results {
		all = append(all, venues...)
		counts = append(counts, zap.Int(d.searchers[i].Name(), len(venues)))
	}

	unique := Deduplicate(all, d.cfg.DedupMeters)
	if len(unique) > d.cfg.CandidateCap {
		unique = unique[:d.cfg.CandidateCap]
	}
	s.Candidates = unique

	d.logger.Info("discovery complete",
		append(counts,
			zap.String("query", query),
			zap.Int("merged", len(all)),
			zap.Int("candidates", len(unique)),
		)...,
	)
	return nil
}

// CachedSearcher fronts a VenueSearcher with a JSON cache.
type CachedSearcher struct {
	inner  VenueSearcher
	cache  SearchCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSearcher wraps inner; a nil cache disables caching.
func NewCachedSearcher(inner VenueSearcher, cache SearchCache, ttl time.Duration, logger *zap.Logger) *CachedSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSearcher{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

// Name returns the wrapped source name.
func (c *CachedSearcher) Name() string { return c.inner.Name() }

// Search returns cached results when present, otherwise queries the source
// and caches non-empty results.
func (c *CachedSearcher) Search(ctx context.Context, query, location string, limit int) ([]Venue, error) {
	if c.cache == nil {
		return c.inner.Search(ctx, query, location, limit)
	}
	key := fmt.Sprintf("search:%s:%s:%s:%d", c.inner.Name(), venueKey(query), venueKey(location), limit)

	var cached []Venue
	if err := c.cache.GetJSON(ctx, key, &cached); err == nil {
		c.logger.Debug("search cache hit", zap.String("key", key))
		return cached, nil
	}

	venues, err := c.inner.Search(ctx, query, location, limit)
	if err != nil {
		return nil, err
	}
	if len(venues) > 0 {
		if err := c.cache.SetJSON(ctx, key, venues, c.ttl); err != nil {
			c.logger.Warn("search cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return venues, nil
}
