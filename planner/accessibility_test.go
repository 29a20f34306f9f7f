package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAccessScore(t *testing.T) {
	tests := []struct {
		name    string
		minutes *float64
		want    float64
	}{
		{"unknown", nil, 0.5},
		{"instant", ptr(0.0), 1.0},
		{"ten minutes", ptr(10.0), 1.0},
		{"half hour", ptr(30.0), 0.64},
		{"sixty minutes", ptr(60.0), 0.1},
		{"two hours", ptr(120.0), 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AccessScore(tt.minutes))
		})
	}
}

func TestAccessScore_BoundedAndMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Float64Range(0, 240).Draw(t, "a")
		b := rapid.Float64Range(0, 240).Draw(t, "b")
		if a > b {
			a, b = b, a
		}
		sa, sb := AccessScore(&a), AccessScore(&b)
		if sa < MinAccessScore || sa > 1 || sb < MinAccessScore || sb > 1 {
			t.Fatalf("score out of range: %v %v", sa, sb)
		}
		if sb > sa {
			t.Fatalf("longer trip scored higher: %v min=%v, %v min=%v", a, sa, b, sb)
		}
	})
}

func accessFixture() (*State, *fakeRouter) {
	near := venue("gp_near", "Near", 43.65, -79.38, 4)
	far := venue("gp_far", "Far", 43.80, -79.20, 4)
	lost := venue("gp_lost", "Lost", 44.00, -79.00, 4)
	router := &fakeRouter{minutes: map[string]float64{
		latLngKey(near.Point()): 8,
		latLngKey(far.Point()):  32.04,
	}}
	s := NewState("bowling by transit", "", nil)
	s.ParsedIntent = &Intent{Activity: "bowling"}
	s.Candidates = []Venue{near, far, lost}
	return s, router
}

func TestAccessibilityStage_ScoresVenues(t *testing.T) {
	s, router := accessFixture()
	a := NewAccessibilityStage(router, nil, testConfig(), nil)

	apply, err := a.Analyze(context.Background(), s)
	require.NoError(t, err)
	apply(s)

	near := s.AccessibilityScores["gp_near"]
	assert.Equal(t, 1.0, near.Score)
	assert.Equal(t, AccessOK, near.Status)
	assert.Equal(t, string(ModeTransit), near.Mode)
	require.NotNil(t, near.TravelMinutes)
	assert.Equal(t, 8.0, *near.TravelMinutes)

	far := s.AccessibilityScores["gp_far"]
	assert.Equal(t, 0.6, far.Score)
	assert.Equal(t, 32.0, *far.TravelMinutes)

	lost := s.AccessibilityScores["gp_lost"]
	assert.Equal(t, NeutralAccessScore, lost.Score)
	assert.Equal(t, AccessNoData, lost.Status)
	assert.Nil(t, lost.TravelMinutes)

	assert.Len(t, s.Isochrones, 3)
}

func TestAccessibilityStage_CalendarConflict(t *testing.T) {
	s, router := accessFixture()
	s.Identity = "auth0|user"
	a := NewAccessibilityStage(router, fakeCalendar{busy: true}, testConfig(), nil)
	a.now = func() time.Time { return time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC) }

	apply, err := a.Analyze(context.Background(), s)
	require.NoError(t, err)
	apply(s)

	assert.Equal(t, 0.7, s.AccessibilityScores["gp_near"].Score)
	assert.Equal(t, 0.3, s.AccessibilityScores["gp_far"].Score)
	assert.Equal(t, 0.2, s.AccessibilityScores["gp_lost"].Score)
	for _, sc := range s.AccessibilityScores {
		assert.Equal(t, AccessCalendarConflict, sc.Status)
	}
}

func TestAccessibilityStage_AnonymousSkipsCalendar(t *testing.T) {
	s, router := accessFixture()
	a := NewAccessibilityStage(router, fakeCalendar{busy: true}, testConfig(), nil)

	apply, err := a.Analyze(context.Background(), s)
	require.NoError(t, err)
	apply(s)

	assert.Equal(t, 1.0, s.AccessibilityScores["gp_near"].Score)
	assert.Equal(t, AccessOK, s.AccessibilityScores["gp_near"].Status)
}

func TestAccessibilityStage_NoRouter(t *testing.T) {
	s, _ := accessFixture()
	a := NewAccessibilityStage(nil, nil, testConfig(), nil)

	apply, err := a.Analyze(context.Background(), s)
	require.NoError(t, err)
	apply(s)

	require.Len(t, s.AccessibilityScores, 3)
	for _, sc := range s.AccessibilityScores {
		assert.Equal(t, NeutralAccessScore, sc.Score)
	}
	assert.Empty(t, s.Isochrones)
}
