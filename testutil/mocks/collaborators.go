package mocks

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/BaSui01/pathfinder/llm"
	"github.com/BaSui01/pathfinder/planner"
)

// =============================================================================
// 🤖 MockGenerator
// =============================================================================

// MockGenerator 按提示词子串分派回复，实现 planner.Generator。
// 未匹配的提示词返回 ErrMock，使各阶段走降级路径。
type MockGenerator struct {
	mu      sync.Mutex
	rules   []generatorRule
	prompts []string
}

type generatorRule struct {
	contains string
	reply    string
	err      error
}

// NewMockGenerator 创建空的 MockGenerator
func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

// On 提示词包含 substr 时返回 reply；先登记的规则优先
func (g *MockGenerator) On(substr, reply string) *MockGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, generatorRule{contains: substr, reply: reply})
	return g
}

// Fail 提示词包含 substr 时返回 err
func (g *MockGenerator) Fail(substr string, err error) *MockGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, generatorRule{contains: substr, err: err})
	return g
}

// Generate 实现 planner.Generator
func (g *MockGenerator) Generate(ctx context.Context, prompt string, _ ...llm.GenerateOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	for _, r := range g.rules {
		if strings.Contains(prompt, r.contains) {
			return r.reply, r.err
		}
	}
	return "", ErrMock
}

// Prompts 返回收到的提示词
func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// =============================================================================
// 🔍 场所来源与页面抓取
// =============================================================================

// MockSearcher 返回固定场所列表，实现 planner.VenueSearcher
type MockSearcher struct {
	name   string
	venues []planner.Venue
	err    error

	mu      sync.Mutex
	queries []string
}

// NewMockSearcher 创建名为 name 的来源
func NewMockSearcher(name string, venues ...planner.Venue) *MockSearcher {
	return &MockSearcher{name: name, venues: venues}
}

// WithError 每次搜索返回 err
func (s *MockSearcher) WithError(err error) *MockSearcher {
	s.err = err
	return s
}

// Name 实现 planner.VenueSearcher
func (s *MockSearcher) Name() string { return s.name }

// Search 实现 planner.VenueSearcher
func (s *MockSearcher) Search(_ context.Context, query, _ string, limit int) ([]planner.Venue, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := s.venues
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]planner.Venue(nil), out...), nil
}

// Queries 返回收到的查询
func (s *MockSearcher) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// MockScraper 以 URL → 文本表模拟页面，实现 planner.PageScraper
type MockScraper struct {
	Links []string
	Pages map[string]string
}

// DiscoverPages 实现 planner.PageScraper
func (s *MockScraper) DiscoverPages(context.Context, string) ([]string, error) {
	return s.Links, nil
}

// Scrape 实现 planner.PageScraper；未知 URL 返回空文本
func (s *MockScraper) Scrape(_ context.Context, url string) (string, error) {
	return s.Pages[url], nil
}

// MockContacts 按场所 ID 返回联系邮箱，未登记时返回 Default，实现 planner.ContactFinder
type MockContacts struct {
	ByVenue map[string]string
	Default string
}

// ContactEmail 实现 planner.ContactFinder
func (c *MockContacts) ContactEmail(_ context.Context, v planner.Venue) (string, error) {
	if addr, ok := c.ByVenue[v.VenueID]; ok {
		return addr, nil
	}
	return c.Default, nil
}

// =============================================================================
// 🗺️ 路线、天气与活动
// =============================================================================

// MockRouter 所有目的地返回同一耗时，实现 planner.Router
type MockRouter struct {
	Minutes float64
	Err     error
}

// TravelTime 实现 planner.Router
func (r *MockRouter) TravelTime(context.Context, planner.LatLng, planner.LatLng, planner.TravelMode) (*planner.TravelEstimate, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return &planner.TravelEstimate{DurationSeconds: r.Minutes * 60, DistanceMeters: r.Minutes * 400}, nil
}

// Isochrone 实现 planner.Router
func (r *MockRouter) Isochrone(context.Context, planner.LatLng, planner.TravelMode, int) (json.RawMessage, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return json.RawMessage(`{"type":"FeatureCollection","features":[]}`), nil
}

// MockWeather 返回固定天气，实现 planner.WeatherService
type MockWeather struct {
	Weather planner.Weather
}

// Current 实现 planner.WeatherService
func (w *MockWeather) Current(context.Context, planner.LatLng) (*planner.Weather, error) {
	out := w.Weather
	if out.Condition == "" {
		out.Condition = "Clear"
	}
	return &out, nil
}

// MockEvents 返回固定活动，实现 planner.EventService
type MockEvents struct {
	Events []planner.NearbyEvent
}

// Nearby 实现 planner.EventService
func (e *MockEvents) Nearby(context.Context, planner.LatLng, float64) ([]planner.NearbyEvent, error) {
	return e.Events, nil
}
