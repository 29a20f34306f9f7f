package planner

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// weatherCritic fast-fails any venue reviewed under severe weather.
func weatherCritic() *scriptedGenerator {
	return newScriptedGenerator().on(kindReview, func(_, prompt string) (string, error) {
		if strings.Contains(prompt, `"severe":true`) {
			return `{"risks": [{"type": "weather", "severity": "HIGH", "detail": "Blizzard warning closes the rink."}],
			  "fast_fail": true, "fast_fail_reason": "Blizzard warning at the top venue."}`, nil
		}
		return `{"risks": [{"type": "crowding", "severity": "moderate", "detail": "Busy on weekends."}], "fast_fail": false}`, nil
	})
}

func reviewState(venues ...Venue) *State {
	s := NewState("skating with friends", "", nil)
	s.ParsedIntent = &Intent{Activity: "skating", GroupSize: 4}
	s.Candidates = venues
	return s
}

func TestReviewStage_SevereWeatherVetoesTopVenue(t *testing.T) {
	rink := venue("gp_rink", "Rink", 43.64, -79.38, 4.6)
	pond := venue("gp_pond", "Pond", 43.70, -79.40, 4.2)
	weather := &fakeWeather{byVenue: map[string]*Weather{
		latLngKey(rink.Point()): {Condition: "Snow", Severe: true},
	}}
	riskLog := &fakeRiskLog{}
	r := NewReviewStage(weatherCritic(), weather, fakeEvents{}, riskLog, testConfig(), nil)

	s := reviewState(rink, pond)
	require.NoError(t, r.Run(context.Background(), s))

	assert.True(t, s.Veto)
	assert.Equal(t, "Blizzard warning at the top venue.", s.VetoReason)
	require.Len(t, s.RiskFlags["gp_rink"], 1)
	assert.Equal(t, SeverityHigh, s.RiskFlags["gp_rink"][0].Severity)
	assert.Equal(t, SeverityMedium, s.RiskFlags["gp_pond"][0].Severity)

	require.Len(t, riskLog.appended, 1)
	assert.Equal(t, "gp_rink", riskLog.appended[0].VenueID)
	assert.Equal(t, "skating with friends", riskLog.appended[0].QueryContext)
}

func TestReviewStage_OnlyTopVenueFastFailVetoes(t *testing.T) {
	rink := venue("gp_rink", "Rink", 43.64, -79.38, 4.6)
	pond := venue("gp_pond", "Pond", 43.70, -79.40, 4.2)
	weather := &fakeWeather{byVenue: map[string]*Weather{
		latLngKey(pond.Point()): {Condition: "Snow", Severe: true},
	}}
	r := NewReviewStage(weatherCritic(), weather, nil, nil, testConfig(), nil)

	s := reviewState(rink, pond)
	require.NoError(t, r.Run(context.Background(), s))

	assert.False(t, s.Veto)
	assert.Empty(t, s.VetoReason)
	assert.Len(t, s.RiskFlags, 2)
}

func TestReviewStage_MinViable(t *testing.T) {
	r := NewReviewStage(weatherCritic(), nil, nil, nil, testConfig(), nil)

	t.Run("single candidate", func(t *testing.T) {
		s := reviewState(venue("gp_1", "Only", 0, 0, 4))
		require.NoError(t, r.Run(context.Background(), s))
		assert.True(t, s.Veto)
		assert.Contains(t, s.VetoReason, "only 1 viable")
	})

	t.Run("no candidates", func(t *testing.T) {
		s := reviewState()
		require.NoError(t, r.Run(context.Background(), s))
		assert.True(t, s.Veto)
		assert.Empty(t, s.RiskFlags)
	})
}

func TestReviewStage_ReviewsTopThreeOnly(t *testing.T) {
	gen := weatherCritic()
	r := NewReviewStage(gen, nil, nil, nil, testConfig(), nil)
	s := reviewState(
		venue("a", "A", 0, 0, 0), venue("b", "B", 0, 0, 0), venue("c", "C", 0, 0, 0),
		venue("d", "D", 0, 0, 0), venue("e", "E", 0, 0, 0),
	)
	require.NoError(t, r.Run(context.Background(), s))

	assert.Equal(t, 3, gen.count(kindReview))
	assert.Len(t, s.RiskFlags, 3)
	assert.NotContains(t, s.RiskFlags, "d")
}

func TestReviewStage_FailedCriticLeavesNoFlags(t *testing.T) {
	r := NewReviewStage(newScriptedGenerator().fail(kindReview), nil, nil, nil, testConfig(), nil)
	s := reviewState(venue("a", "A", 0, 0, 0), venue("b", "B", 0, 0, 0))
	require.NoError(t, r.Run(context.Background(), s))

	assert.False(t, s.Veto)
	assert.Equal(t, []RiskFlag{}, s.RiskFlags["a"])
}

func TestReviewStage_MergesHistory(t *testing.T) {
	riskLog := &fakeRiskLog{history: map[string][]string{
		"a": {"Busy on weekends.", "Roof leaks when it rains."},
	}}
	r := NewReviewStage(weatherCritic(), nil, nil, riskLog, testConfig(), nil)
	s := reviewState(venue("a", "A", 0, 0, 0), venue("b", "B", 0, 0, 0))
	require.NoError(t, r.Run(context.Background(), s))

	flags := s.RiskFlags["a"]
	require.Len(t, flags, 2)
	assert.Equal(t, RiskSourceReview, flags[0].Source)
	assert.Equal(t, RiskFlag{Type: "historical", Severity: SeverityHigh, Detail: "Roof leaks when it rains.", Source: RiskSourceHistory}, flags[1])
	assert.Empty(t, riskLog.appended, "history flags are not logged again")
}

func TestMergeHistoricalRisks(t *testing.T) {
	assert.Equal(t, []RiskFlag{}, MergeHistoricalRisks(nil, nil))

	got := MergeHistoricalRisks(nil, []string{"x", "", "x", "y"})
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].Detail)
	assert.Equal(t, "y", got[1].Detail)
}

func TestReviewStage_NearbyEventsReachCritic(t *testing.T) {
	rink := venue("gp_rink", "Rink", 43.64, -79.38, 4.6)
	pond := venue("gp_pond", "Pond", 43.70, -79.40, 4.2)
	events := fakeEvents{events: []NearbyEvent{{Title: "Leafs vs Habs", Category: "sports", Rank: 80}}}

	var prompts []string
	var mu sync.Mutex
	gen := newScriptedGenerator().on(kindReview, func(_, prompt string) (string, error) {
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return `{"risks": [], "fast_fail": false}`, nil
	})
	r := NewReviewStage(gen, nil, events, nil, testConfig(), nil)

	s := reviewState(rink, pond)
	require.NoError(t, r.Run(context.Background(), s))

	assert.False(t, s.Veto)
	require.Len(t, prompts, 2)
	for _, p := range prompts {
		assert.Contains(t, p, "Leafs vs Habs")
	}
}
