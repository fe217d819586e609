// Package aggregate builds the normalized patient snapshot the factor
// evaluator scores against.
package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/openclinic/arpa/internal/domain"
)

// Aggregator reads the six clinical domains through their narrow
// source interfaces and produces one snapshot per patient.
type Aggregator struct {
	sources domain.ClinicalSources
}

// New creates an aggregator over the given capability set.
func New(sources domain.ClinicalSources) *Aggregator {
	return &Aggregator{sources: sources}
}

// Snapshot aggregates a patient's clinical history. The patient lookup
// runs first: an unknown identifier returns ErrPatientNotFound before
// any domain query executes. Any domain read failure aborts the whole
// aggregation as a DataSourceError; no partial snapshot is returned.
func (a *Aggregator) Snapshot(ctx context.Context, patientID string) (*domain.Snapshot, error) {
	patient, err := a.sources.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, domain.ErrPatientNotFound) {
			return nil, err
		}
		return nil, &domain.DataSourceError{Domain: "patients", Err: err}
	}

	snap := &domain.Snapshot{
		PatientID:  patient.ID,
		EnrolledAt: patient.CreatedAt,
		TakenAt:    time.Now().UTC(),
	}

	visits, err := a.sources.VisitStats(ctx, patientID)
	if err != nil {
		return nil, &domain.DataSourceError{Domain: "visits", Err: err}
	}
	snap.Visits = *visits

	prescriptions, err := a.sources.PrescriptionStats(ctx, patientID)
	if err != nil {
		return nil, &domain.DataSourceError{Domain: "prescriptions", Err: err}
	}
	snap.Prescriptions = *prescriptions

	adherence, err := a.sources.AdherenceStats(ctx, patientID)
	if err != nil {
		return nil, &domain.DataSourceError{Domain: "adherence", Err: err}
	}
	snap.Adherence = *adherence

	art, err := a.sources.ARTStats(ctx, patientID)
	if err != nil {
		return nil, &domain.DataSourceError{Domain: "art", Err: err}
	}
	snap.ART = *art

	labs, err := a.sources.RecentLabResults(ctx, patientID, domain.SnapshotLabLimit)
	if err != nil {
		return nil, &domain.DataSourceError{Domain: "labs", Err: err}
	}
	snap.RecentLabs = labs

	appointments, err := a.sources.AppointmentStats(ctx, patientID)
	if err != nil {
		return nil, &domain.DataSourceError{Domain: "appointments", Err: err}
	}
	snap.Appointments = *appointments

	return snap, nil
}
