// Package repository provides data persistence for the ARPA engine.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openclinic/arpa/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// adherenceWindowDays is the trailing window for adherence statistics.
const adherenceWindowDays = 90

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// GetPatient retrieves a patient with projection fields.
func (r *SQLRepository) GetPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	if patientID == "" {
		return nil, fmt.Errorf("%w: patientID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, uic, first_name, last_name, status, facility_id,
		       created_at, current_risk_score, last_calculated_at
		FROM patients
		WHERE id = ?
	`

	var p domain.Patient
	var facility sql.NullString
	var score sql.NullFloat64
	var calculated sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), patientID).Scan(
		&p.ID, &p.UIC, &p.FirstName, &p.LastName, &p.Status,
		&facility, &p.CreatedAt, &score, &calculated,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}

	p.FacilityID = facility.String
	if score.Valid {
		p.CurrentRiskScore = &score.Float64
	}
	if calculated.Valid {
		t := calculated.Time
		p.LastCalculatedAt = &t
	}

	return &p, nil
}

// VisitStats summarizes the clinical-visit history of a patient.
func (r *SQLRepository) VisitStats(ctx context.Context, patientID string) (*domain.VisitStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(CASE WHEN visit_type = 'follow_up' THEN 1 END),
		       COUNT(CASE WHEN visit_type = 'emergency' THEN 1 END)
		FROM clinical_visits
		WHERE patient_id = ?
	`

	var stats domain.VisitStats
	err := r.db.QueryRowContext(ctx, r.rebind(query), patientID).Scan(
		&stats.Count, &stats.FollowUpCount, &stats.EmergencyCount,
	)
	if err != nil {
		return nil, err
	}

	if stats.Count > 0 {
		last, err := r.boundaryDate(ctx, "clinical_visits", "visit_date", patientID, "DESC")
		if err != nil {
			return nil, err
		}
		first, err := r.boundaryDate(ctx, "clinical_visits", "visit_date", patientID, "ASC")
		if err != nil {
			return nil, err
		}
		stats.LastVisitDate = last
		stats.FirstVisitDate = first
	}

	return &stats, nil
}

// PrescriptionStats summarizes prescription orders by status.
func (r *SQLRepository) PrescriptionStats(ctx context.Context, patientID string) (*domain.PrescriptionStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(CASE WHEN status = 'active' THEN 1 END),
		       COUNT(CASE WHEN status = 'completed' THEN 1 END),
		       COUNT(CASE WHEN status = 'cancelled' THEN 1 END)
		FROM prescriptions
		WHERE patient_id = ?
	`

	var stats domain.PrescriptionStats
	err := r.db.QueryRowContext(ctx, r.rebind(query), patientID).Scan(
		&stats.Total, &stats.Active, &stats.Completed, &stats.Cancelled,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// AdherenceStats summarizes adherence over the trailing 90-day window.
func (r *SQLRepository) AdherenceStats(ctx context.Context, patientID string) (*domain.AdherenceStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -adherenceWindowDays)

	query := `
		SELECT AVG(adherence_percentage),
		       COUNT(*),
		       COUNT(CASE WHEN taken = 0 THEN 1 END)
		FROM medication_adherence
		WHERE patient_id = ? AND adherence_date >= ?
	`

	var stats domain.AdherenceStats
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, r.rebind(query), patientID, cutoff).Scan(
		&avg, &stats.Records, &stats.MissedDoses,
	)
	if err != nil {
		return nil, err
	}

	if avg.Valid {
		stats.AverageAdherence = &avg.Float64
	}

	if stats.Records > 0 {
		lastQuery := `
			SELECT adherence_date FROM medication_adherence
			WHERE patient_id = ? AND adherence_date >= ?
			ORDER BY adherence_date DESC
			LIMIT 1
		`
		var last time.Time
		if err := r.db.QueryRowContext(ctx, r.rebind(lastQuery), patientID, cutoff).Scan(&last); err != nil {
			return nil, err
		}
		stats.LastRecordDate = &last
	}

	return &stats, nil
}

// ARTStats summarizes missed doses across active ART regimens.
func (r *SQLRepository) ARTStats(ctx context.Context, patientID string) (*domain.ARTStats, error) {
	query := `
		SELECT COUNT(DISTINCT ar.id), COALESCE(SUM(ard.missed_doses), 0)
		FROM art_regimens ar
		LEFT JOIN art_regimen_drugs ard ON ard.regimen_id = ar.id
		WHERE ar.patient_id = ? AND ar.status = 'active'
	`

	var stats domain.ARTStats
	err := r.db.QueryRowContext(ctx, r.rebind(query), patientID).Scan(
		&stats.ActiveRegimens, &stats.TotalMissedDoses,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// RecentLabResults returns the most recent lab results, newest first.
func (r *SQLRepository) RecentLabResults(ctx context.Context, patientID string, limit int) ([]domain.LabResult, error) {
	if limit <= 0 {
		limit = domain.SnapshotLabLimit
	}

	query := `
		SELECT id, patient_id, test_code, test_name, result_value, unit,
		       reported_at, is_critical
		FROM lab_results
		WHERE patient_id = ?
		ORDER BY reported_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.LabResult
	for rows.Next() {
		var lr domain.LabResult
		var unit sql.NullString
		var critical int

		if err := rows.Scan(
			&lr.ID, &lr.PatientID, &lr.TestCode, &lr.TestName,
			&lr.ResultValue, &unit, &lr.ReportedAt, &critical,
		); err != nil {
			return nil, err
		}

		lr.Unit = unit.String
		lr.IsCritical = critical == 1
		results = append(results, lr)
	}

	return results, rows.Err()
}

// AppointmentStats summarizes appointment attendance.
func (r *SQLRepository) AppointmentStats(ctx context.Context, patientID string) (*domain.AppointmentStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(CASE WHEN status = 'completed' THEN 1 END),
		       COUNT(CASE WHEN status = 'cancelled' THEN 1 END),
		       COUNT(CASE WHEN status = 'no_show' THEN 1 END)
		FROM appointments
		WHERE patient_id = ?
	`

	var stats domain.AppointmentStats
	err := r.db.QueryRowContext(ctx, r.rebind(query), patientID).Scan(
		&stats.Total, &stats.Completed, &stats.Cancelled, &stats.NoShow,
	)
	if err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		last, err := r.boundaryDate(ctx, "appointments", "scheduled_start", patientID, "DESC")
		if err != nil {
			return nil, err
		}
		stats.LastScheduled = last
	}

	return &stats, nil
}

// boundaryDate selects the newest or oldest value of a timestamp column
// for one patient. Aggregate MAX/MIN is avoided because it strips the
// column type some drivers rely on for time scanning.
func (r *SQLRepository) boundaryDate(ctx context.Context, table, column, patientID, dir string) (*time.Time, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE patient_id = ? ORDER BY %s %s LIMIT 1",
		column, table, column, dir,
	)

	var t time.Time
	err := r.db.QueryRowContext(ctx, r.rebind(query), patientID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateRiskScore inserts an immutable risk-score row and updates the
// patient projection in a single transaction. The store never reflects
// the new record without the synchronized projection, or vice versa.
func (r *SQLRepository) CreateRiskScore(ctx context.Context, score *domain.RiskScore) error {
	if score == nil || score.PatientID == "" {
		return fmt.Errorf("%w: patientID is required", ErrInvalidInput)
	}

	factors, err := json.Marshal(score.RiskFactors)
	if err != nil {
		return &domain.PersistenceError{Op: "marshal risk factors", Err: err}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "begin", Err: err}
	}

	insert := `
		INSERT INTO risk_scores (
			id, patient_id, score, risk_factors, recommendation,
			calculated_by, calculated_on
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var calculatedBy sql.NullString
	if score.CalculatedBy != nil {
		calculatedBy = sql.NullString{String: *score.CalculatedBy, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, r.rebind(insert),
		score.ID, score.PatientID, score.Score, string(factors),
		score.Recommendation, calculatedBy, score.CalculatedOn,
	); err != nil {
		tx.Rollback()
		return &domain.PersistenceError{Op: "insert risk score", Err: err}
	}

	update := `
		UPDATE patients
		SET current_risk_score = ?, last_calculated_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, r.rebind(update),
		score.Score, score.CalculatedOn, score.PatientID,
	)
	if err != nil {
		tx.Rollback()
		return &domain.PersistenceError{Op: "update projection", Err: err}
	}

	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		tx.Rollback()
		if err == nil {
			err = domain.ErrPatientNotFound
		}
		return &domain.PersistenceError{Op: "update projection", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit", Err: err}
	}

	return nil
}

// CurrentScore returns the most recent risk score for a patient, or nil
// when none has been calculated yet.
func (r *SQLRepository) CurrentScore(ctx context.Context, patientID string) (*domain.RiskScore, error) {
	query := `
		SELECT id, patient_id, score, risk_factors, recommendation,
		       calculated_by, calculated_on
		FROM risk_scores
		WHERE patient_id = ?
		ORDER BY calculated_on DESC, id DESC
		LIMIT 1
	`

	score, err := r.scanRiskScore(r.db.QueryRowContext(ctx, r.rebind(query), patientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return score, err
}

// ScoreHistory returns up to limit records, most recent first.
func (r *SQLRepository) ScoreHistory(ctx context.Context, patientID string, limit int) ([]*domain.RiskScore, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, patient_id, score, risk_factors, recommendation,
		       calculated_by, calculated_on
		FROM risk_scores
		WHERE patient_id = ?
		ORDER BY calculated_on DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []*domain.RiskScore
	for rows.Next() {
		score, err := r.scanRiskScore(rows)
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}

	return scores, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanRiskScore(row rowScanner) (*domain.RiskScore, error) {
	var score domain.RiskScore
	var factors string
	var calculatedBy sql.NullString

	if err := row.Scan(
		&score.ID, &score.PatientID, &score.Score, &factors,
		&score.Recommendation, &calculatedBy, &score.CalculatedOn,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(factors), &score.RiskFactors); err != nil {
		return nil, fmt.Errorf("failed to parse risk factors for %s: %w", score.ID, err)
	}

	if calculatedBy.Valid {
		score.CalculatedBy = &calculatedBy.String
	}

	// Tier is derived, never stored, so a reclassification of a stored
	// score always reproduces the same tier.
	score.RiskLevel = domain.RiskLevelFor(score.Score)

	return &score, nil
}

// HighRiskPatients lists active patients at or above threshold, highest
// score first.
func (r *SQLRepository) HighRiskPatients(ctx context.Context, threshold float64, limit int) ([]*domain.HighRiskPatient, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, uic, first_name, last_name, facility_id,
		       current_risk_score, last_calculated_at
		FROM patients
		WHERE current_risk_score >= ? AND status = 'active'
		ORDER BY current_risk_score DESC, last_calculated_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*domain.HighRiskPatient
	for rows.Next() {
		var p domain.HighRiskPatient
		var facility sql.NullString
		var calculated sql.NullTime

		if err := rows.Scan(
			&p.PatientID, &p.UIC, &p.FirstName, &p.LastName,
			&facility, &p.CurrentRiskScore, &calculated,
		); err != nil {
			return nil, err
		}

		p.FacilityID = facility.String
		if calculated.Valid {
			t := calculated.Time
			p.LastCalculatedAt = &t
		}
		p.RiskLevel = domain.RiskLevelFor(p.CurrentRiskScore)
		patients = append(patients, &p)
	}

	return patients, rows.Err()
}

// CreatePatient stores a patient record.
func (r *SQLRepository) CreatePatient(ctx context.Context, p *domain.Patient) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO patients (
			id, uic, first_name, last_name, status, facility_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	status := p.Status
	if status == "" {
		status = "active"
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.UIC, p.FirstName, p.LastName, status, p.FacilityID, p.CreatedAt,
	)
	return err
}

// AddClinicalVisit stores a clinical visit.
func (r *SQLRepository) AddClinicalVisit(ctx context.Context, v *domain.ClinicalVisit) error {
	query := `INSERT INTO clinical_visits (id, patient_id, visit_date, visit_type) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), v.ID, v.PatientID, v.VisitDate, v.VisitType)
	return err
}

// AddPrescription stores a prescription order.
func (r *SQLRepository) AddPrescription(ctx context.Context, p *domain.Prescription) error {
	query := `INSERT INTO prescriptions (id, patient_id, medication, status, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), p.ID, p.PatientID, p.Medication, p.Status, p.CreatedAt)
	return err
}

// AddAdherenceRecord stores a per-dose adherence observation.
func (r *SQLRepository) AddAdherenceRecord(ctx context.Context, rec *domain.AdherenceRecord) error {
	taken := 0
	if rec.Taken {
		taken = 1
	}
	query := `
		INSERT INTO medication_adherence (id, patient_id, adherence_date, adherence_percentage, taken)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.PatientID, rec.AdherenceDate, rec.AdherencePercentage, taken,
	)
	return err
}

// AddARTRegimen stores a regimen with its drugs in one transaction.
func (r *SQLRepository) AddARTRegimen(ctx context.Context, patientID, regimenID, status string, drugs []domain.ARTRegimenDrug) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	regimenQuery := `INSERT INTO art_regimens (id, patient_id, status) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, r.rebind(regimenQuery), regimenID, patientID, status); err != nil {
		tx.Rollback()
		return err
	}

	drugQuery := `INSERT INTO art_regimen_drugs (id, regimen_id, drug_name, missed_doses) VALUES (?, ?, ?, ?)`
	for _, d := range drugs {
		if _, err := tx.ExecContext(ctx, r.rebind(drugQuery), d.ID, regimenID, d.DrugName, d.MissedDoses); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// AddLabResult stores a lab result.
func (r *SQLRepository) AddLabResult(ctx context.Context, lr *domain.LabResult) error {
	critical := 0
	if lr.IsCritical {
		critical = 1
	}
	query := `
		INSERT INTO lab_results (id, patient_id, test_code, test_name, result_value, unit, reported_at, is_critical)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		lr.ID, lr.PatientID, lr.TestCode, lr.TestName, lr.ResultValue, lr.Unit, lr.ReportedAt, critical,
	)
	return err
}

// AddAppointment stores an appointment.
func (r *SQLRepository) AddAppointment(ctx context.Context, a *domain.Appointment) error {
	query := `INSERT INTO appointments (id, patient_id, scheduled_start, status) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), a.ID, a.PatientID, a.ScheduledStart, a.Status)
	return err
}

// SaveScreeningRule stores a screening rule.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, rule *domain.ScreeningRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, name, description, expression, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Severity, enabled, now, now,
	)
	return err
}

// ListScreeningRules retrieves all enabled screening rules.
func (r *SQLRepository) ListScreeningRules(ctx context.Context) ([]*domain.ScreeningRule, error) {
	query := `
		SELECT id, name, description, expression, severity, enabled, created_at, updated_at
		FROM screening_rules
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreeningRule
	for rows.Next() {
		var rule domain.ScreeningRule
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Expression,
			&rule.Severity, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteScreeningRule soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteScreeningRule(ctx context.Context, ruleID string) error {
	query := `
		UPDATE screening_rules
		SET enabled = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
