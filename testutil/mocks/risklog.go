package mocks

import (
	"context"
	"slices"
	"sync"

	"github.com/BaSui01/pathfinder/planner"
)

// MockRiskLog 内存风险日志，实现 planner.RiskLog
type MockRiskLog struct {
	mu      sync.Mutex
	entries []planner.RiskEntry
}

// NewMockRiskLog 以已有条目初始化
func NewMockRiskLog(seed ...planner.RiskEntry) *MockRiskLog {
	return &MockRiskLog{entries: append([]planner.RiskEntry(nil), seed...)}
}

// Append 实现 planner.RiskLog
func (l *MockRiskLog) Append(ctx context.Context, e planner.RiskEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

// HistoricalRisks 实现 planner.RiskLog，按描述原文去重
func (l *MockRiskLog) HistoricalRisks(_ context.Context, venueID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.VenueID == venueID && !slices.Contains(out, e.Description) {
			out = append(out, e.Description)
		}
	}
	return out, nil
}

// Entries 返回全部条目
func (l *MockRiskLog) Entries() []planner.RiskEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]planner.RiskEntry(nil), l.entries...)
}

var (
	_ planner.Generator       = (*MockGenerator)(nil)
	_ planner.VenueSearcher   = (*MockSearcher)(nil)
	_ planner.PageScraper     = (*MockScraper)(nil)
	_ planner.Router          = (*MockRouter)(nil)
	_ planner.WeatherService  = (*MockWeather)(nil)
	_ planner.EventService    = (*MockEvents)(nil)
	_ planner.ProfileService  = (*MockIdentity)(nil)
	_ planner.ConsentService  = (*MockIdentity)(nil)
	_ planner.CalendarChecker = (*MockIdentity)(nil)
	_ planner.RiskLog         = (*MockRiskLog)(nil)
)
