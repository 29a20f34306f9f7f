package sources

import "time"

// ServiceConfig is the common configuration of one external API.
type ServiceConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Enabled reports whether the service has credentials.
func (c ServiceConfig) Enabled() bool { return c.APIKey != "" }

// BreakerConfig tunes the per-client circuit breaker.
type BreakerConfig struct {
	// 连续失败多少次后熔断
	ConsecutiveFailures uint32 `yaml:"consecutive_failures" env:"CONSECUTIVE_FAILURES"`
	// 熔断打开后多久进入半开
	OpenTimeout time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"`
	// 半开状态允许的探测请求数
	HalfOpenRequests uint32 `yaml:"half_open_requests" env:"HALF_OPEN_REQUESTS"`
	// 闭合状态统计窗口
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// Config groups every external source.
type Config struct {
	GooglePlaces ServiceConfig `yaml:"google_places" env:"GOOGLE_PLACES"`
	Yelp         ServiceConfig `yaml:"yelp" env:"YELP"`
	Firecrawl    ServiceConfig `yaml:"firecrawl" env:"FIRECRAWL"`
	Mapbox       ServiceConfig `yaml:"mapbox" env:"MAPBOX"`
	OpenWeather  ServiceConfig `yaml:"openweather" env:"OPENWEATHER"`
	PredictHQ    ServiceConfig `yaml:"predicthq" env:"PREDICTHQ"`

	// Firecrawl 每秒请求数与突发上限
	ScrapeRatePerSecond float64 `yaml:"scrape_rate_per_second" env:"SCRAPE_RATE_PER_SECOND"`
	ScrapeBurst         int     `yaml:"scrape_burst" env:"SCRAPE_BURST"`
	// 429 时的最大尝试次数
	ScrapeAttempts int `yaml:"scrape_attempts" env:"SCRAPE_ATTEMPTS"`

	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`
}

// DefaultConfig returns the public endpoints with conservative limits.
func DefaultConfig() Config {
	return Config{
		GooglePlaces: ServiceConfig{BaseURL: "https://places.googleapis.com", Timeout: 15 * time.Second},
		Yelp:         ServiceConfig{BaseURL: "https://api.yelp.com", Timeout: 15 * time.Second},
		Firecrawl:    ServiceConfig{BaseURL: "https://api.firecrawl.dev", Timeout: 30 * time.Second},
		Mapbox:       ServiceConfig{BaseURL: "https://api.mapbox.com", Timeout: 10 * time.Second},
		OpenWeather:  ServiceConfig{BaseURL: "https://api.openweathermap.org", Timeout: 10 * time.Second},
		PredictHQ:    ServiceConfig{BaseURL: "https://api.predicthq.com", Timeout: 10 * time.Second},

		ScrapeRatePerSecond: 2,
		ScrapeBurst:         4,
		ScrapeAttempts:      3,

		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
			HalfOpenRequests:    1,
			Interval:            time.Minute,
		},
	}
}
