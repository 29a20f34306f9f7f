package planner

import (
	"fmt"
	"time"
)

// Veto modes.
const (
	VetoModeRetry   = "retry"
	VetoModeLogOnly = "log_only"
)

// Weights are the synthesis weights for aesthetic, cost and review.
type Weights struct {
	Aesthetic float64 `yaml:"aesthetic" json:"aesthetic" env:"AESTHETIC"`
	Cost      float64 `yaml:"cost" json:"cost" env:"COST"`
	Review    float64 `yaml:"review" json:"review" env:"REVIEW"`
}

// Penalties are the per-severity risk penalties and their cap.
type Penalties struct {
	High   float64 `yaml:"high" json:"high" env:"HIGH"`
	Medium float64 `yaml:"medium" json:"medium" env:"MEDIUM"`
	Low    float64 `yaml:"low" json:"low" env:"LOW"`
	Cap    float64 `yaml:"cap" json:"cap" env:"CAP"`
}

// ConsentConfig configures the approval handshake after synthesis.
type ConsentConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" env:"POLL_INTERVAL"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

// Config holds the pipeline tunables.
type Config struct {
	MaxRetries int    `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	VetoMode   string `yaml:"veto_mode" json:"veto_mode" env:"VETO_MODE"`
	MaxSteps   int    `yaml:"max_steps" json:"max_steps" env:"MAX_STEPS"`

	StageTimeout time.Duration `yaml:"stage_timeout" json:"stage_timeout" env:"STAGE_TIMEOUT"`
	CallTimeout  time.Duration `yaml:"call_timeout" json:"call_timeout" env:"CALL_TIMEOUT"`
	Concurrency  int           `yaml:"concurrency" json:"concurrency" env:"CONCURRENCY"`

	DefaultLocation string        `yaml:"default_location" json:"default_location" env:"DEFAULT_LOCATION"`
	DefaultOrigin   LatLng        `yaml:"default_origin" json:"default_origin" env:"DEFAULT_ORIGIN"`
	DefaultStyle    string        `yaml:"default_style" json:"default_style" env:"DEFAULT_STYLE"`
	SourceLimit     int           `yaml:"source_limit" json:"source_limit" env:"SOURCE_LIMIT"`
	CandidateCap    int           `yaml:"candidate_cap" json:"candidate_cap" env:"CANDIDATE_CAP"`
	DedupMeters     float64       `yaml:"dedup_meters" json:"dedup_meters" env:"DEDUP_METERS"`
	SearchCacheTTL  time.Duration `yaml:"search_cache_ttl" json:"search_cache_ttl" env:"SEARCH_CACHE_TTL"`

	AestheticThreshold float64 `yaml:"aesthetic_threshold" json:"aesthetic_threshold" env:"AESTHETIC_THRESHOLD"`
	AestheticFloor     int     `yaml:"aesthetic_floor" json:"aesthetic_floor" env:"AESTHETIC_FLOOR"`
	MaxPhotos          int     `yaml:"max_photos" json:"max_photos" env:"MAX_PHOTOS"`

	PricingPages      int `yaml:"pricing_pages" json:"pricing_pages" env:"PRICING_PAGES"`
	ScrapeTokenBudget int `yaml:"scrape_token_budget" json:"scrape_token_budget" env:"SCRAPE_TOKEN_BUDGET"`

	IsochroneMinutes int           `yaml:"isochrone_minutes" json:"isochrone_minutes" env:"ISOCHRONE_MINUTES"`
	CalendarWindow   time.Duration `yaml:"calendar_window" json:"calendar_window" env:"CALENDAR_WINDOW"`

	ReviewTopK    int     `yaml:"review_top_k" json:"review_top_k" env:"REVIEW_TOP_K"`
	MinViable     int     `yaml:"min_viable" json:"min_viable" env:"MIN_VIABLE"`
	EventRadiusKm float64 `yaml:"event_radius_km" json:"event_radius_km" env:"EVENT_RADIUS_KM"`
	ExplainTopK   int     `yaml:"explain_top_k" json:"explain_top_k" env:"EXPLAIN_TOP_K"`

	Weights   Weights   `yaml:"weights" json:"weights" env:"WEIGHTS"`
	Penalties Penalties `yaml:"penalties" json:"penalties" env:"PENALTIES"`

	Consent ConsentConfig `yaml:"consent" json:"consent" env:"CONSENT"`
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   2,
		VetoMode:     VetoModeRetry,
		MaxSteps:     32,
		StageTimeout: 2 * time.Minute,
		CallTimeout:  30 * time.Second,
		Concurrency:  8,

		DefaultLocation: "Toronto",
		DefaultOrigin:   LatLng{Lat: 43.6426, Lng: -79.3871},
		DefaultStyle:    "neutral, welcoming",
		SourceLimit:     8,
		CandidateCap:    10,
		DedupMeters:     100,
		SearchCacheTTL:  time.Hour,

		AestheticThreshold: 0.4,
		AestheticFloor:     3,
		MaxPhotos:          3,

		PricingPages:      3,
		ScrapeTokenBudget: 6000,

		IsochroneMinutes: 30,
		CalendarWindow:   3 * time.Hour,

		ReviewTopK:    3,
		MinViable:     2,
		EventRadiusKm: 2,
		ExplainTopK:   3,

		Weights:   Weights{Aesthetic: 0.33, Cost: 0.40, Review: 0.27},
		Penalties: Penalties{High: 0.3, Medium: 0.15, Low: 0.05, Cap: 0.5},

		Consent: ConsentConfig{
			PollInterval: 2 * time.Second,
			Timeout:      2 * time.Minute,
		},
	}
}

// Validate checks the tunables.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.VetoMode != VetoModeRetry && c.VetoMode != VetoModeLogOnly {
		return fmt.Errorf("veto_mode must be %q or %q, got %q", VetoModeRetry, VetoModeLogOnly, c.VetoMode)
	}
	if c.CandidateCap <= 0 {
		return fmt.Errorf("candidate_cap must be positive")
	}
	if c.AestheticThreshold < 0 || c.AestheticThreshold > 1 {
		return fmt.Errorf("aesthetic_threshold must be in [0,1]")
	}
	if c.Weights.Aesthetic < 0 || c.Weights.Cost < 0 || c.Weights.Review < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if c.Penalties.Cap < 0 || c.Penalties.Cap > 1 {
		return fmt.Errorf("penalty cap must be in [0,1]")
	}
	if need := c.requiredSteps(); c.EffectiveMaxSteps() < need {
		return fmt.Errorf("max_steps %d cannot fit %d retries (need %d)", c.MaxSteps, c.MaxRetries, need)
	}
	return nil
}

// requiredSteps is the worst-case walk: five nodes per pass, plus synthesis.
func (c Config) requiredSteps() int {
	return 5*(c.MaxRetries+1) + 1
}

// EffectiveMaxSteps is the step limit handed to the graph. Zero or negative
// MaxSteps derives the limit from MaxRetries.
func (c Config) EffectiveMaxSteps() int {
	if c.MaxSteps > 0 {
		return c.MaxSteps
	}
	return c.requiredSteps()
}
