package risklog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/pathfinder/internal/database"
	"github.com/BaSui01/pathfinder/planner"
)

const (
	// DefaultQueryLimit caps Query when no limit is given.
	DefaultQueryLimit = 50
	summaryLatest     = 10
	writeRetries      = 3
)

// Store is the gorm-backed risk log.
type Store struct {
	pool   *database.PoolManager
	now    func() time.Time
	logger *zap.Logger
}

// NewStore creates a store on pool.
func NewStore(pool *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, now: time.Now, logger: logger.With(zap.String("component", "risklog"))}
}

// Append inserts one entry. Severity defaults to medium.
func (s *Store) Append(ctx context.Context, entry planner.RiskEntry) error {
	rec := Record{
		VenueID:      entry.VenueID,
		VenueName:    entry.VenueName,
		RiskType:     entry.RiskType,
		Description:  entry.Description,
		Severity:     entry.Severity,
		LoggedAt:     s.now().UTC(),
		QueryContext: entry.QueryContext,
	}
	if rec.Severity == "" {
		rec.Severity = planner.SeverityMedium
	}
	err := s.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		return err
	}
	s.logger.Debug("risk logged",
		zap.String("venue_id", rec.VenueID),
		zap.String("risk_type", rec.RiskType),
		zap.String("severity", rec.Severity),
	)
	return nil
}

// HistoricalRisks returns the distinct descriptions logged for a venue,
// newest first.
func (s *Store) HistoricalRisks(ctx context.Context, venueID string) ([]string, error) {
	recs, err := s.Query(ctx, Filter{VenueID: venueID})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(recs))
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		if seen[r.Description] {
			continue
		}
		seen[r.Description] = true
		out = append(out, r.Description)
	}
	return out, nil
}

// Query returns matching records, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 || limit > DefaultQueryLimit {
		limit = DefaultQueryLimit
	}
	q := s.scope(ctx, f)
	var recs []Record
	if err := q.Order("logged_at DESC").Order("id DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Summarize aggregates the log for venueID ("" for all venues).
func (s *Store) Summarize(ctx context.Context, venueID string) (*Summary, error) {
	sum := &Summary{VenueID: venueID, Breakdown: map[string]int{}, Risks: []Record{}}

	type typeCount struct {
		RiskType string
		N        int
	}
	var counts []typeCount
	err := s.scope(ctx, Filter{VenueID: venueID}).
		Select("risk_type, COUNT(*) AS n").
		Group("risk_type").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		sum.Breakdown[c.RiskType] = c.N
		sum.TotalRisks += int64(c.N)
	}
	if sum.TotalRisks == 0 {
		return sum, nil
	}

	latest, err := s.Query(ctx, Filter{VenueID: venueID, Limit: summaryLatest})
	if err != nil {
		return nil, err
	}
	sum.Risks = latest
	if len(latest) > 0 {
		t := latest[0].LoggedAt
		sum.MostRecent = &t
	}
	return sum, nil
}

func (s *Store) scope(ctx context.Context, f Filter) *gorm.DB {
	q := s.pool.DB().WithContext(ctx).Model(&Record{})
	if v := strings.TrimSpace(f.VenueID); v != "" {
		q = q.Where("venue_id = ?", v)
	}
	if t := strings.TrimSpace(f.RiskType); t != "" {
		q = q.Where("risk_type = ?", t)
	}
	return q
}

var _ planner.RiskLog = (*Store)(nil)
