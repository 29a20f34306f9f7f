package risklog

import "time"

// Record is one row of the risk_log table.
type Record struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	VenueID      string    `gorm:"size:255;not null;index:idx_risk_log_venue" json:"venue_id"`
	VenueName    string    `gorm:"size:255" json:"venue_name"`
	RiskType     string    `gorm:"size:64;not null;index:idx_risk_log_type" json:"risk_type"`
	Description  string    `gorm:"type:text;not null" json:"description"`
	Severity     string    `gorm:"size:16;not null;default:medium" json:"severity"`
	LoggedAt     time.Time `gorm:"not null;index:idx_risk_log_logged_at" json:"logged_at"`
	QueryContext string    `gorm:"type:text" json:"query_context,omitempty"`
}

// TableName implements gorm's tabler.
func (Record) TableName() string { return "risk_log" }

// Filter narrows a query. Empty fields match everything.
type Filter struct {
	VenueID  string
	RiskType string
	Limit    int
}

// Summary aggregates the log for one venue, or for all venues.
type Summary struct {
	VenueID    string         `json:"venue_id,omitempty"`
	TotalRisks int64          `json:"total_risks"`
	Breakdown  map[string]int `json:"risk_breakdown"`
	MostRecent *time.Time     `json:"most_recent,omitempty"`
	Risks      []Record       `json:"risks"`
}
