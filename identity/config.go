package identity

import "time"

// Config configures the Auth0 tenant and Google API access.
type Config struct {
	Domain       string        `yaml:"domain" env:"DOMAIN"`
	ClientID     string        `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"CLIENT_SECRET"`
	Audience     string        `yaml:"audience" env:"AUDIENCE"`
	Connection   string        `yaml:"connection" env:"CONNECTION"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	GoogleURL    string        `yaml:"google_url" env:"GOOGLE_URL"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DefaultConfig returns a config with no tenant set.
func DefaultConfig() Config {
	return Config{
		Connection: "google-oauth2",
		GoogleURL:  "https://www.googleapis.com",
		Timeout:    10 * time.Second,
	}
}

// Enabled reports whether a tenant is configured.
func (c Config) Enabled() bool {
	return c.Domain != "" && c.ClientID != "" && c.ClientSecret != ""
}

func (c Config) tenantURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://" + c.Domain
}

func (c Config) managementAudience() string {
	return "https://" + c.Domain + "/api/v2/"
}
