package domain

import (
	"math"
	"time"
)

// RiskScore is the engine's sole owned entity: one immutable row per
// calculation. Ordering for "most recent" is calculated_on descending,
// tie-broken by id descending (most recently inserted wins).
type RiskScore struct {
	ID             string      `json:"recordId"`
	PatientID      string      `json:"patientId"`
	Score          float64     `json:"score"` // 0-100, one decimal
	RiskLevel      string      `json:"riskLevel"`
	RiskFactors    RiskFactors `json:"riskFactors"`
	Recommendation string      `json:"recommendation"`
	CalculatedBy   *string     `json:"calculatedBy,omitempty"` // nil for automated runs
	CalculatedOn   time.Time   `json:"calculatedOn"`
}

// RiskFactors is the durable evidence trail stored with each score.
// Key names are fixed so dashboards and patient views can render the
// payload without engine-specific coupling. Optional sub-objects are
// omitted when the source domain carried no data.
type RiskFactors struct {
	VisitCount                int     `json:"visitCount"`
	PrescriptionCount         int     `json:"prescriptionCount"`
	TotalAppointments         int     `json:"totalAppointments"`
	CompletedAppointments     int     `json:"completedAppointments"`
	MissedAppointments        int     `json:"missedAppointments"`
	DaysSinceLastVisit        int     `json:"daysSinceLastVisit"`
	VisitFrequency            float64 `json:"visitFrequency"`
	MedicationAdherence       float64 `json:"medicationAdherence"`
	MissedDoseRate            float64 `json:"missedDoseRate"`
	ARTMissedDoses            int     `json:"artMissedDoses"`
	AppointmentMissedRate     float64 `json:"appointmentMissedRate"`
	AppointmentAttendanceRate float64 `json:"appointmentAttendanceRate"`
	DaysSinceLastLab          int     `json:"daysSinceLastLab"`
	CriticalLabsCount         int     `json:"criticalLabsCount"`

	CD4Trend                  *CD4Trend         `json:"cd4Trend,omitempty"`
	ViralLoad                 *ViralLoadReading `json:"viralLoad,omitempty"`
	EmergencyVisitRate        *float64          `json:"emergencyVisitRate,omitempty"`
	PrescriptionCancelledRate *float64          `json:"prescriptionCancelledRate,omitempty"`
	NoActivePrescriptions     bool              `json:"noActivePrescriptions,omitempty"`
}

// CD4Trend records the latest CD4 reading and, when two or more results
// exist, the change against the prior one.
type CD4Trend struct {
	Latest        float64  `json:"latest"`
	Previous      *float64 `json:"previous"`
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"changePercent,omitempty"`
}

// ViralLoadReading records the latest viral load. Textual results such
// as "Undetectable" or "< 20" keep Value as text with Numeric zero.
type ViralLoadReading struct {
	Value   any     `json:"value"` // float64 or "Undetectable"
	Numeric float64 `json:"numeric"`
}

// Risk tiers, descending. Non-overlapping and exhaustive over [0,100].
const (
	RiskHigh       = "HIGH"
	RiskMediumHigh = "MEDIUM-HIGH"
	RiskMedium     = "MEDIUM"
	RiskLowMedium  = "LOW-MEDIUM"
	RiskLow        = "LOW"
)

// RiskLevelFor classifies a score into its tier. The mapping is a pure
// function of the score and is applied identically wherever a score is
// displayed, not only at calculation time.
func RiskLevelFor(score float64) string {
	switch {
	case score >= 70:
		return RiskHigh
	case score >= 50:
		return RiskMediumHigh
	case score >= 40:
		return RiskMedium
	case score >= 20:
		return RiskLowMedium
	default:
		return RiskLow
	}
}

// RecommendationFor returns the canned recommendation for a tier.
func RecommendationFor(level string) string {
	switch level {
	case RiskHigh:
		return "HIGH RISK DETECTED. Immediate intervention required. " +
			"Schedule urgent follow-up appointment, review medication adherence, " +
			"conduct comprehensive assessment, and consider additional support services. " +
			"Monitor closely and provide intensive case management."
	case RiskMediumHigh:
		return "Moderate to high risk detected. Schedule follow-up appointment within 2 weeks, " +
			"review medication adherence, provide additional counseling, and consider support services. " +
			"Monitor patient closely."
	case RiskMedium:
		return "Moderate risk detected. Schedule follow-up appointment, " +
			"review medication adherence, and provide additional counseling if needed. " +
			"Monitor patient progress."
	case RiskLowMedium:
		return "Low to moderate risk. Continue current treatment plan. " +
			"Maintain regular appointments and medication adherence. " +
			"Provide routine monitoring and support."
	default:
		return "Low risk. Continue current treatment plan. " +
			"Maintain regular appointments and medication adherence. " +
			"Continue routine monitoring."
	}
}

// ClampScore bounds a raw point total to [0,100] at one decimal.
func ClampScore(raw float64) float64 {
	s := Round1(raw)
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Round1 rounds to one decimal digit.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
