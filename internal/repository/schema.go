package repository

// Schema definitions for the ARPA database.
// Compatible with both SQLite and PostgreSQL.

const schemaPatients = `
CREATE TABLE IF NOT EXISTS patients (
    id TEXT PRIMARY KEY,
    uic TEXT NOT NULL,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    facility_id TEXT,
    created_at TIMESTAMP NOT NULL,
    current_risk_score REAL,
    last_calculated_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_patients_status ON patients(status);
CREATE INDEX IF NOT EXISTS idx_patients_risk ON patients(current_risk_score);
`

const schemaClinicalVisits = `
CREATE TABLE IF NOT EXISTS clinical_visits (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL,
    visit_date TIMESTAMP NOT NULL,
    visit_type TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_visits_patient ON clinical_visits(patient_id);
CREATE INDEX IF NOT EXISTS idx_visits_date ON clinical_visits(patient_id, visit_date);
`

const schemaPrescriptions = `
CREATE TABLE IF NOT EXISTS prescriptions (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL,
    medication TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prescriptions_patient ON prescriptions(patient_id);
CREATE INDEX IF NOT EXISTS idx_prescriptions_status ON prescriptions(patient_id, status);
`

const schemaMedicationAdherence = `
CREATE TABLE IF NOT EXISTS medication_adherence (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL,
    adherence_date TIMESTAMP NOT NULL,
    adherence_percentage REAL NOT NULL,
    taken INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_adherence_patient ON medication_adherence(patient_id, adherence_date);
`

const schemaARTRegimens = `
CREATE TABLE IF NOT EXISTS art_regimens (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL,
    status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS art_regimen_drugs (
    id TEXT PRIMARY KEY,
    regimen_id TEXT NOT NULL,
    drug_name TEXT NOT NULL,
    missed_doses INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_art_regimens_patient ON art_regimens(patient_id, status);
CREATE INDEX IF NOT EXISTS idx_art_drugs_regimen ON art_regimen_drugs(regimen_id);
`

const schemaLabResults = `
CREATE TABLE IF NOT EXISTS lab_results (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL,
    test_code TEXT NOT NULL,
    test_name TEXT NOT NULL,
    result_value TEXT NOT NULL,
    unit TEXT,
    reported_at TIMESTAMP NOT NULL,
    is_critical INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_labs_patient ON lab_results(patient_id, reported_at);
`

const schemaAppointments = `
CREATE TABLE IF NOT EXISTS appointments (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL,
    scheduled_start TIMESTAMP NOT NULL,
    status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments(patient_id);
CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(patient_id, status);
`

// schemaRiskScores is the append-only calculation log. Rows are never
// updated or deleted; "most recent" reads order by calculated_on then id.
const schemaRiskScores = `
CREATE TABLE IF NOT EXISTS risk_scores (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL,
    score REAL NOT NULL,
    risk_factors TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    calculated_by TEXT,
    calculated_on TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_scores_patient ON risk_scores(patient_id, calculated_on);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'warning',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPatients,
		schemaClinicalVisits,
		schemaPrescriptions,
		schemaMedicationAdherence,
		schemaARTRegimens,
		schemaLabResults,
		schemaAppointments,
		schemaRiskScores,
		schemaScreeningRules,
	}
}
