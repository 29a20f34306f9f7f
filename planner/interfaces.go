package planner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/pathfinder/llm"
)

// Generator produces text from a prompt. Output may be malformed.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error)
}

// VenueSearcher is one external venue source.
type VenueSearcher interface {
	Name() string
	Search(ctx context.Context, query, location string, limit int) ([]Venue, error)
}

// PageScraper discovers and fetches website pages.
type PageScraper interface {
	DiscoverPages(ctx context.Context, url string) ([]string, error)
	// Scrape returns the page text, or "" when nothing could be fetched.
	Scrape(ctx context.Context, url string) (string, error)
}

// TravelMode is a routing profile.
type TravelMode string

const (
	ModeDriving TravelMode = "driving"
	ModeTransit TravelMode = "transit"
	ModeWalking TravelMode = "walking"
	ModeCycling TravelMode = "cycling"
)

// TravelEstimate is one origin → destination estimate.
type TravelEstimate struct {
	DurationSeconds float64
	DistanceMeters  float64
}

// Router provides travel times and isochrones.
type Router interface {
	TravelTime(ctx context.Context, origin, dest LatLng, mode TravelMode) (*TravelEstimate, error)
	Isochrone(ctx context.Context, point LatLng, mode TravelMode, minutes int) (json.RawMessage, error)
}

// Weather is the current conditions at a point.
type Weather struct {
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
	TempC       float64 `json:"temp_c"`
	WindSpeed   float64 `json:"wind_speed"`
	Severe      bool    `json:"severe"`
}

// WeatherService fetches weather.
type WeatherService interface {
	Current(ctx context.Context, point LatLng) (*Weather, error)
}

// NearbyEvent is a scheduled event close to a venue.
type NearbyEvent struct {
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Start      time.Time `json:"start"`
	Rank       int       `json:"rank"`
	Attendance int       `json:"attendance,omitempty"`
}

// EventService lists events near a point.
type EventService interface {
	Nearby(ctx context.Context, point LatLng, radiusKm float64) ([]NearbyEvent, error)
}

// Profile is the caller's identity profile.
type Profile struct {
	UserID      string          `json:"user_id"`
	Email       string          `json:"email,omitempty"`
	Name        string          `json:"name,omitempty"`
	Preferences map[string]bool `json:"preferences,omitempty"`
}

// ProfileService looks up caller profiles.
type ProfileService interface {
	Profile(ctx context.Context, userID string) (*Profile, error)
}

// EmailMessage is sent on behalf of the caller after consent.
type EmailMessage struct {
	To      string
	ReplyTo string
	Subject string
	Body    string
}

// ContactFinder resolves the public email address of a venue. An empty
// address with a nil error means none was published.
type ContactFinder interface {
	ContactEmail(ctx context.Context, venue Venue) (string, error)
}

// ConsentService drives out-of-band approval and the approved action.
type ConsentService interface {
	RequestApproval(ctx context.Context, userID, bindingMessage string) (requestID string, err error)
	PollApproval(ctx context.Context, requestID string) (ApprovalStatus, error)
	SendEmail(ctx context.Context, userID string, msg EmailMessage) error
}

// CalendarChecker reports whether the caller is busy in a window.
type CalendarChecker interface {
	HasConflict(ctx context.Context, userID string, start, end time.Time) (bool, error)
}

// RiskEntry is one risk appended to the persistent log.
type RiskEntry struct {
	VenueID      string
	VenueName    string
	RiskType     string
	Description  string
	Severity     string
	QueryContext string
}

// RiskLog persists high-severity risks across requests.
type RiskLog interface {
	Append(ctx context.Context, entry RiskEntry) error
	// HistoricalRisks returns prior descriptions for a venue, deduplicated by exact text.
	HistoricalRisks(ctx context.Context, venueID string) ([]string, error)
}

// SearchCache is a JSON cache for search results.
type SearchCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}
