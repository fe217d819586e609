package domain

import (
	"time"
)

// Snapshot is the normalized view of a patient's clinical history that
// the factor evaluator scores against. One snapshot is one logical read:
// it is either complete or the aggregation failed, never partial.
type Snapshot struct {
	PatientID  string    `json:"patientId"`
	EnrolledAt time.Time `json:"enrolledAt"`
	TakenAt    time.Time `json:"takenAt"`

	Visits        VisitStats        `json:"visits"`
	Prescriptions PrescriptionStats `json:"prescriptions"`
	Adherence     AdherenceStats    `json:"adherence"`
	ART           ARTStats          `json:"art"`
	Appointments  AppointmentStats  `json:"appointments"`

	// Up to the 20 most recent lab results, newest first.
	RecentLabs []LabResult `json:"recentLabs"`
}

// VisitStats summarizes the clinical_visits domain.
type VisitStats struct {
	Count          int        `json:"count"`
	LastVisitDate  *time.Time `json:"lastVisitDate,omitempty"`
	FirstVisitDate *time.Time `json:"firstVisitDate,omitempty"`
	FollowUpCount  int        `json:"followUpCount"`
	EmergencyCount int        `json:"emergencyCount"`
}

// PrescriptionStats summarizes the prescriptions domain.
type PrescriptionStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// AdherenceStats summarizes medication_adherence over the trailing
// 90-day window. AverageAdherence is nil when the window is empty.
type AdherenceStats struct {
	AverageAdherence *float64   `json:"averageAdherence,omitempty"`
	Records          int        `json:"records"`
	MissedDoses      int        `json:"missedDoses"`
	LastRecordDate   *time.Time `json:"lastRecordDate,omitempty"`
}

// ARTStats summarizes active ART regimens.
type ARTStats struct {
	ActiveRegimens   int `json:"activeRegimens"`
	TotalMissedDoses int `json:"totalMissedDoses"`
}

// AppointmentStats summarizes the appointments domain.
type AppointmentStats struct {
	Total         int        `json:"total"`
	Completed     int        `json:"completed"`
	Cancelled     int        `json:"cancelled"`
	NoShow        int        `json:"noShow"`
	LastScheduled *time.Time `json:"lastScheduled,omitempty"`
}

// SnapshotLabLimit caps how many recent lab results enter a snapshot.
const SnapshotLabLimit = 20
