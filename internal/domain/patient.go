package domain

import (
	"time"
)

// Patient is the enrollment record the engine scores against.
// Clinical and administrative workflows own every field except the two
// projection columns, which the Score Recorder keeps in sync with the
// most recent RiskScore row: both nil, or both set.
type Patient struct {
	ID        string `json:"id"`
	UIC       string `json:"uic"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`

	// "active", "inactive", "transferred_out", ...
	Status string `json:"status"`

	FacilityID string `json:"facilityId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	// Projection of the latest risk_scores row.
	CurrentRiskScore *float64   `json:"currentRiskScore,omitempty"`
	LastCalculatedAt *time.Time `json:"lastCalculatedAt,omitempty"`
}

// ClinicalVisit is one care encounter. Read-only to the engine.
type ClinicalVisit struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	VisitDate time.Time `json:"visitDate"`
	VisitType string    `json:"visitType"` // "ordinary", "follow_up", "emergency"
}

// Visit type values recognized by the aggregator.
const (
	VisitTypeOrdinary  = "ordinary"
	VisitTypeFollowUp  = "follow_up"
	VisitTypeEmergency = "emergency"
)

// Prescription is a medication order. Read-only to the engine.
type Prescription struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patientId"`
	Medication string    `json:"medication"`
	Status     string    `json:"status"` // "active", "completed", "cancelled"
	CreatedAt  time.Time `json:"createdAt"`
}

// Prescription status values.
const (
	PrescriptionActive    = "active"
	PrescriptionCompleted = "completed"
	PrescriptionCancelled = "cancelled"
)

// AdherenceRecord is a per-dose adherence observation. The engine only
// reads records inside the trailing 90-day window.
type AdherenceRecord struct {
	ID                  string    `json:"id"`
	PatientID           string    `json:"patientId"`
	AdherenceDate       time.Time `json:"adherenceDate"`
	AdherencePercentage float64   `json:"adherencePercentage"`
	Taken               bool      `json:"taken"`
}

// ARTRegimenDrug carries per-drug missed-dose counters for a regimen.
// Supplementary adherence signal; recorded as evidence, never scored
// on its own.
type ARTRegimenDrug struct {
	ID          string `json:"id"`
	RegimenID   string `json:"regimenId"`
	DrugName    string `json:"drugName"`
	MissedDoses int    `json:"missedDoses"`
}

// LabResult is a single reported lab value. Result values may be numeric
// or textual ("Undetectable", "< 20"); the evaluator decides which.
type LabResult struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patientId"`
	TestCode    string    `json:"testCode"`
	TestName    string    `json:"testName"`
	ResultValue string    `json:"resultValue"`
	Unit        string    `json:"unit,omitempty"`
	ReportedAt  time.Time `json:"reportedAt"`
	IsCritical  bool      `json:"isCritical"`
}

// Appointment is a scheduled encounter. Read-only to the engine.
type Appointment struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patientId"`
	ScheduledStart time.Time `json:"scheduledStart"`
	Status         string    `json:"status"` // "scheduled", "completed", "cancelled", "no_show"
}

// Appointment status values recognized by the aggregator.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no_show"
)

// HighRiskPatient is one row of the high-risk listing: the projection
// fields joined with patient identity, classified with the same tier
// mapping as every other read.
type HighRiskPatient struct {
	PatientID        string     `json:"patientId"`
	UIC              string     `json:"uic"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	FacilityID       string     `json:"facilityId,omitempty"`
	CurrentRiskScore float64    `json:"currentRiskScore"`
	RiskLevel        string     `json:"riskLevel"`
	LastCalculatedAt *time.Time `json:"lastCalculatedAt,omitempty"`
}
