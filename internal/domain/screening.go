package domain

import (
	"time"
)

// ScreeningRule is a configurable watch rule evaluated against each
// newly composed score and its evidence. Triggered rules publish alert
// events for external notifiers; the engine never delivers notifications
// itself. Expressions are CEL and must return bool.
type ScreeningRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	Severity    string    `json:"severity"` // "info", "warning", "critical"
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ScreeningMatch is one triggered rule for one calculation.
type ScreeningMatch struct {
	RuleID    string  `json:"ruleId"`
	RuleName  string  `json:"ruleName"`
	Severity  string  `json:"severity"`
	PatientID string  `json:"patientId"`
	ScoreID   string  `json:"scoreId"`
	Score     float64 `json:"score"`
	RiskLevel string  `json:"riskLevel"`
}

// Screening severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
