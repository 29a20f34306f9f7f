package planner

import (
	"encoding/json"
	"slices"
)

// StageID identifies a pipeline stage.
type StageID string

const (
	StageDiscovery     StageID = "discovery"
	StageAesthetic     StageID = "aesthetic"
	StageCost          StageID = "cost"
	StageAccessibility StageID = "accessibility"
	StageReview        StageID = "review"
)

// AllStages lists every stage in canonical order.
var AllStages = []StageID{StageDiscovery, StageAesthetic, StageCost, StageAccessibility, StageReview}

// ParseStageID maps loose names such as "scout" or "critic" to a stage.
func ParseStageID(s string) (StageID, bool) {
	switch s {
	case "discovery", "scout":
		return StageDiscovery, true
	case "aesthetic", "vibe", "vibe_matcher":
		return StageAesthetic, true
	case "cost", "cost_analyst":
		return StageCost, true
	case "accessibility", "access", "access_analyst":
		return StageAccessibility, true
	case "review", "critic", "risk":
		return StageReview, true
	}
	return "", false
}

// StageSet is an ordered set of stages. Discovery is always a member once
// normalized.
type StageSet []StageID

// Has reports membership.
func (s StageSet) Has(id StageID) bool {
	return slices.Contains(s, id)
}

// Normalize returns the set in canonical order with discovery included and
// duplicates removed.
func (s StageSet) Normalize() StageSet {
	out := StageSet{StageDiscovery}
	for _, id := range AllStages[1:] {
		if s.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat" env:"LAT"`
	Lng float64 `json:"lng" yaml:"lng" env:"LNG"`
}

// Intent is the structured reading of a request.
type Intent struct {
	Activity       string   `json:"activity"`
	GroupSize      int      `json:"group_size"`
	BudgetTier     string   `json:"budget_tier"`
	Location       string   `json:"location"`
	VibePreference string   `json:"vibe_preference,omitempty"`
	OriginLat      *float64 `json:"origin_lat,omitempty"`
	OriginLng      *float64 `json:"origin_lng,omitempty"`
	RequiresOAuth  bool     `json:"requires_oauth,omitempty"`
	AllowedActions []string `json:"allowed_actions,omitempty"`
}

// IntentOverrides are caller-supplied values applied on top of the parsed intent.
type IntentOverrides struct {
	Activity       string   `json:"activity,omitempty"`
	GroupSize      *int     `json:"group_size,omitempty"`
	BudgetTier     string   `json:"budget_tier,omitempty" validate:"omitempty,oneof=low medium high"`
	Location       string   `json:"location,omitempty"`
	VibePreference string   `json:"vibe_preference,omitempty"`
	OriginLat      *float64 `json:"origin_lat,omitempty" validate:"omitempty,latitude"`
	OriginLng      *float64 `json:"origin_lng,omitempty" validate:"omitempty,longitude"`
}

// Venue is a discovered place. VenueID, Lat and Lng never change after discovery.
type Venue struct {
	VenueID     string   `json:"venue_id"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"review_count"`
	Category    string   `json:"category"`
	PhotoRefs   []string `json:"photo_refs,omitempty"`
	Website     string   `json:"website,omitempty"`
	Source      string   `json:"source"`
	PriceRange  string   `json:"price_range,omitempty"`
	GooglePrice string   `json:"google_price,omitempty"`
	YelpPrice   string   `json:"yelp_price,omitempty"`
}

// Point returns the venue coordinate.
func (v Venue) Point() LatLng { return LatLng{Lat: v.Lat, Lng: v.Lng} }

// AestheticScore is the vibe annotation. Score is nil when the venue could
// not be scored.
type AestheticScore struct {
	Score       *float64 `json:"vibe_score"`
	PrimaryVibe string   `json:"primary_vibe,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Confidence  string   `json:"confidence"`
}

// HiddenFee is one itemized extra cost.
type HiddenFee struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// CostProfile is the cost annotation.
type CostProfile struct {
	BaseCost        float64     `json:"base_cost"`
	HiddenFees      []HiddenFee `json:"hidden_fees"`
	TotalCost       float64     `json:"total_cost"`
	PerPerson       float64     `json:"per_person"`
	ValueScore      float64     `json:"value_score"`
	Confidence      string      `json:"confidence"`
	Notes           string      `json:"notes"`
	PriceRange      string      `json:"price_range,omitempty"`
	PriceConfidence string      `json:"price_confidence,omitempty"`
	Sources         []string    `json:"sources,omitempty"`
}

// Accessibility statuses.
const (
	AccessOK               = "OK"
	AccessNoData           = "NO_DATA"
	AccessCalendarConflict = "CALENDAR_CONFLICT"
)

// AccessibilityScore is the travel annotation.
type AccessibilityScore struct {
	Score          float64  `json:"score"`
	TravelMinutes  *float64 `json:"travel_min,omitempty"`
	DistanceMeters *float64 `json:"distance_m,omitempty"`
	Mode           string   `json:"travel_mode"`
	Status         string   `json:"status"`
}

// Risk severities and sources.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"

	RiskSourceReview  = "review"
	RiskSourceHistory = "history"
)

// RiskFlag is one flagged risk for a venue.
type RiskFlag struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
	Source   string `json:"source"`
}

// RankedVenue is one entry of the terminal ranking.
type RankedVenue struct {
	Rank            int        `json:"rank"`
	Venue           Venue      `json:"venue"`
	Composite       float64    `json:"composite_score"`
	AestheticScore  *float64   `json:"vibe_score"`
	ValueScore      float64    `json:"value_score"`
	RiskScore       float64    `json:"risk_score"`
	Accessibility   *float64   `json:"accessibility_score,omitempty"`
	PriceRange      string     `json:"price_range,omitempty"`
	PriceConfidence string     `json:"price_confidence,omitempty"`
	Risks           []RiskFlag `json:"risks,omitempty"`
	Why             string     `json:"why"`
	WatchOut        string     `json:"watch_out"`
}

// ActionRequest asks the caller for consent before acting on their behalf.
type ActionRequest struct {
	Type   string   `json:"type"`
	Reason string   `json:"reason"`
	Scopes []string `json:"scopes"`
	Draft  string   `json:"draft"`
}

// ApprovalStatus is the state of an out-of-band consent request.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalError    ApprovalStatus = "error"
	ApprovalTimeout  ApprovalStatus = "timeout"
)

// ConsentOutcome reports the consent handshake.
type ConsentOutcome struct {
	Status    ApprovalStatus `json:"status"`
	RequestID string         `json:"request_id,omitempty"`
	Sent      bool           `json:"sent"`
	Detail    string         `json:"detail,omitempty"`
}

// State is the record threaded through every stage. Each field has a single
// writer stage; Candidates is additionally pruned by the filter step.
type State struct {
	RawRequest string           `json:"raw_request"`
	Identity   string           `json:"identity,omitempty"`
	Overrides  *IntentOverrides `json:"overrides,omitempty"`
	Profile    *Profile         `json:"-"`

	ParsedIntent   *Intent             `json:"parsed_intent,omitempty"`
	ComplexityTier string              `json:"complexity_tier,omitempty"`
	ActiveStages   StageSet            `json:"active_stages,omitempty"`
	StageWeights   map[StageID]float64 `json:"stage_weights,omitempty"`
	PlanSource     string              `json:"plan_source,omitempty"`

	Candidates          []Venue                       `json:"candidates"`
	AestheticScores     map[string]AestheticScore     `json:"aesthetic_scores,omitempty"`
	CostProfiles        map[string]CostProfile        `json:"cost_profiles,omitempty"`
	AccessibilityScores map[string]AccessibilityScore `json:"accessibility_scores,omitempty"`
	Isochrones          map[string]json.RawMessage    `json:"isochrones,omitempty"`
	RiskFlags           map[string][]RiskFlag         `json:"risk_flags,omitempty"`
	Filtered            []string                      `json:"filtered,omitempty"`

	Veto       bool   `json:"veto"`
	VetoReason string `json:"veto_reason,omitempty"`

	RankedResults   []RankedVenue   `json:"ranked_results"`
	GlobalConsensus string          `json:"global_consensus,omitempty"`
	EmailDraft      string          `json:"email_draft,omitempty"`
	ActionRequest   *ActionRequest  `json:"action_request,omitempty"`
	Consent         *ConsentOutcome `json:"consent,omitempty"`

	RetryCount int  `json:"retry_count"`
	Exhausted  bool `json:"exhausted"`

	passes int
}

// NewState seeds a fresh state for one request.
func NewState(raw, identity string, overrides *IntentOverrides) *State {
	return &State{
		RawRequest:    raw,
		Identity:      identity,
		Overrides:     overrides,
		Candidates:    []Venue{},
		RankedResults: []RankedVenue{},
	}
}

// resetDownstream clears every field written after the orchestrator so a
// retried plan never sees annotations from the vetoed pass.
func (s *State) resetDownstream() {
	s.Candidates = []Venue{}
	s.AestheticScores = nil
	s.CostProfiles = nil
	s.AccessibilityScores = nil
	s.Isochrones = nil
	s.RiskFlags = nil
	s.Filtered = nil
	s.Veto = false
	s.VetoReason = ""
	s.RankedResults = []RankedVenue{}
	s.GlobalConsensus = ""
	s.EmailDraft = ""
	s.ActionRequest = nil
	s.Consent = nil
}

func (s *State) intent() Intent {
	if s.ParsedIntent == nil {
		return Intent{}
	}
	return *s.ParsedIntent
}

// Venue sources.
const (
	SourceGooglePlaces = "google_places"
	SourceYelp         = "yelp"
)
