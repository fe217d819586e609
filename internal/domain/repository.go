// Package domain defines the core interfaces and types for the ARPA engine.
package domain

import (
	"context"
	"time"
)

// PatientSource resolves patient identity and registration fields.
type PatientSource interface {
	GetPatient(ctx context.Context, patientID string) (*Patient, error)
}

// VisitSource summarizes the clinical-visit history of a patient.
type VisitSource interface {
	VisitStats(ctx context.Context, patientID string) (*VisitStats, error)
}

// PrescriptionSource summarizes prescription orders by status.
type PrescriptionSource interface {
	PrescriptionStats(ctx context.Context, patientID string) (*PrescriptionStats, error)
}

// AdherenceSource summarizes medication adherence over the trailing
// 90-day window.
type AdherenceSource interface {
	AdherenceStats(ctx context.Context, patientID string) (*AdherenceStats, error)
}

// ARTSource summarizes missed doses across active ART regimens.
type ARTSource interface {
	ARTStats(ctx context.Context, patientID string) (*ARTStats, error)
}

// LabSource returns the most recent lab results, newest first.
type LabSource interface {
	RecentLabResults(ctx context.Context, patientID string, limit int) ([]LabResult, error)
}

// AppointmentSource summarizes appointment attendance.
type AppointmentSource interface {
	AppointmentStats(ctx context.Context, patientID string) (*AppointmentStats, error)
}

// ClinicalSources is the capability set the aggregator reads from. Each
// domain can evolve its storage independently behind its narrow interface.
type ClinicalSources interface {
	PatientSource
	VisitSource
	PrescriptionSource
	AdherenceSource
	ARTSource
	LabSource
	AppointmentSource
}

// Repository is the persistence interface for the engine and its
// supporting plumbing.
type Repository interface {
	ClinicalSources

	// CreateRiskScore inserts an immutable risk-score row and updates the
	// patient projection in one transaction: both writes or neither.
	CreateRiskScore(ctx context.Context, score *RiskScore) error

	// CurrentScore returns the most recent risk score joined with the
	// projection, or nil (no error) when none has been calculated.
	CurrentScore(ctx context.Context, patientID string) (*RiskScore, error)

	// ScoreHistory returns up to limit records, most recent first
	// (calculated_on descending, id descending).
	ScoreHistory(ctx context.Context, patientID string, limit int) ([]*RiskScore, error)

	// HighRiskPatients lists active patients whose projected score is at
	// or above threshold, highest first.
	HighRiskPatients(ctx context.Context, threshold float64, limit int) ([]*HighRiskPatient, error)

	// Clinical-data writes used by the surrounding application and by
	// fixtures; the engine itself never calls these.
	CreatePatient(ctx context.Context, p *Patient) error
	AddClinicalVisit(ctx context.Context, v *ClinicalVisit) error
	AddPrescription(ctx context.Context, p *Prescription) error
	AddAdherenceRecord(ctx context.Context, r *AdherenceRecord) error
	AddARTRegimen(ctx context.Context, patientID, regimenID, status string, drugs []ARTRegimenDrug) error
	AddLabResult(ctx context.Context, lr *LabResult) error
	AddAppointment(ctx context.Context, a *Appointment) error

	// Screening rule configuration.
	SaveScreeningRule(ctx context.Context, rule *ScreeningRule) error
	ListScreeningRules(ctx context.Context) ([]*ScreeningRule, error)
	DeleteScreeningRule(ctx context.Context, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
