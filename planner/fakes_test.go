package planner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/pathfinder/llm"
)

var errFake = errors.New("fake failure")

// prompt kinds, matched on the first line of each prompt template
const (
	kindPlan      = "You plan group outings"
	kindAesthetic = "Rate how well"
	kindCost      = "Extract the cost"
	kindReview    = "You are a critic"
	kindExplain   = "Explain briefly"
	kindConsensus = "Compare the top venues"
)

type generatorFunc func(kind, prompt string) (string, error)

// scriptedGenerator dispatches on the prompt kind. Unscripted kinds fail.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[string]generatorFunc
	calls   map[string]int
	images  map[string]int
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		replies: make(map[string]generatorFunc),
		calls:   make(map[string]int),
		images:  make(map[string]int),
	}
}

func (g *scriptedGenerator) on(kind string, fn generatorFunc) *scriptedGenerator {
	g.replies[kind] = fn
	return g
}

func (g *scriptedGenerator) reply(kind, text string) *scriptedGenerator {
	return g.on(kind, func(string, string) (string, error) { return text, nil })
}

func (g *scriptedGenerator) fail(kind string) *scriptedGenerator {
	return g.on(kind, func(string, string) (string, error) { return "", errFake })
}

func (g *scriptedGenerator) count(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[kind]
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, _ ...llm.GenerateOption) (string, error) {
	kind := ""
	for _, k := range []string{kindPlan, kindAesthetic, kindCost, kindReview, kindExplain, kindConsensus} {
		if strings.HasPrefix(prompt, k) {
			kind = k
			break
		}
	}
	g.mu.Lock()
	g.calls[kind]++
	fn := g.replies[kind]
	g.mu.Unlock()
	if fn == nil {
		return "", errFake
	}
	return fn(kind, prompt)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

type fakeSearcher struct {
	name   string
	venues []Venue
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeSearcher) Name() string { return f.name }

func (f *fakeSearcher) Search(_ context.Context, _, _ string, limit int) ([]Venue, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := f.venues
	if len(out) > limit {
		out = out[:limit]
	}
	return append([]Venue(nil), out...), nil
}

type fakeScraper struct {
	links []string
	pages map[string]string
}

func (f *fakeScraper) DiscoverPages(context.Context, string) ([]string, error) {
	return f.links, nil
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (string, error) {
	text, ok := f.pages[url]
	if !ok {
		return "", errFake
	}
	return text, nil
}

type fakeRouter struct {
	minutes map[string]float64
}

func (f *fakeRouter) TravelTime(_ context.Context, _, dest LatLng, _ TravelMode) (*TravelEstimate, error) {
	m, ok := f.minutes[latLngKey(dest)]
	if !ok {
		return nil, errFake
	}
	return &TravelEstimate{DurationSeconds: m * 60, DistanceMeters: m * 500}, nil
}

func (f *fakeRouter) Isochrone(context.Context, LatLng, TravelMode, int) (json.RawMessage, error) {
	return json.RawMessage(`{"type":"FeatureCollection","features":[]}`), nil
}

func latLngKey(p LatLng) string {
	b, _ := json.Marshal(p)
	return string(b)
}

type fakeWeather struct {
	byVenue map[string]*Weather
}

func (f *fakeWeather) Current(_ context.Context, p LatLng) (*Weather, error) {
	if w, ok := f.byVenue[latLngKey(p)]; ok {
		return w, nil
	}
	return &Weather{Condition: "Clear"}, nil
}

type fakeEvents struct{ events []NearbyEvent }

func (f fakeEvents) Nearby(context.Context, LatLng, float64) ([]NearbyEvent, error) {
	return f.events, nil
}

type fakeProfiles struct {
	profile *Profile
	err     error
}

func (f *fakeProfiles) Profile(context.Context, string) (*Profile, error) {
	return f.profile, f.err
}

type fakeRiskLog struct {
	mu       sync.Mutex
	history  map[string][]string
	appended []RiskEntry
}

func (f *fakeRiskLog) Append(_ context.Context, e RiskEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, e)
	return nil
}

func (f *fakeRiskLog) HistoricalRisks(_ context.Context, venueID string) ([]string, error) {
	return f.history[venueID], nil
}

type fakeCalendar struct{ busy bool }

func (f fakeCalendar) HasConflict(context.Context, string, time.Time, time.Time) (bool, error) {
	return f.busy, nil
}

type fakeContacts struct {
	addr  string
	err   error
	calls int
}

func (f *fakeContacts) ContactEmail(context.Context, Venue) (string, error) {
	f.calls++
	return f.addr, f.err
}

type fakeConsent struct {
	mu       sync.Mutex
	statuses []ApprovalStatus
	polls    int
	sent     []EmailMessage
	sendErr  error
}

func (f *fakeConsent) RequestApproval(context.Context, string, string) (string, error) {
	return "req-1", nil
}

func (f *fakeConsent) PollApproval(ctx context.Context, _ string) (ApprovalStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	i := min(f.polls, len(f.statuses)-1)
	f.polls++
	return f.statuses[i], nil
}

func (f *fakeConsent) SendEmail(_ context.Context, _ string, msg EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal([]byte(raw), dest)
}

func (m *mapCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = mustJSON(value)
	return nil
}

func venue(id, name string, lat, lng, rating float64) Venue {
	return Venue{VenueID: id, Name: name, Lat: lat, Lng: lng, Rating: rating, Source: SourceGooglePlaces}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CallTimeout = time.Second
	cfg.StageTimeout = 5 * time.Second
	cfg.Consent.PollInterval = 5 * time.Millisecond
	cfg.Consent.Timeout = 200 * time.Millisecond
	return cfg
}
