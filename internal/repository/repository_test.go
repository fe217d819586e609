package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/openclinic/arpa/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	f, err := os.CreateTemp("", "arpa-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: f.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func createTestPatient(t *testing.T, repo domain.Repository) string {
	t.Helper()

	id := uuid.New().String()
	err := repo.CreatePatient(context.Background(), &domain.Patient{
		ID:        id,
		UIC:       "TEST-0001",
		FirstName: "Ama",
		LastName:  "Mensah",
		Status:    "active",
		CreatedAt: time.Now().UTC().AddDate(-1, 0, 0),
	})
	if err != nil {
		t.Fatalf("failed to create patient: %v", err)
	}
	return id
}

func TestGetPatient(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		id := createTestPatient(t, repo)

		p, err := repo.GetPatient(ctx, id)
		if err != nil {
			t.Fatalf("GetPatient failed: %v", err)
		}
		if p.ID != id || p.UIC != "TEST-0001" {
			t.Errorf("unexpected patient: %+v", p)
		}
		if p.CurrentRiskScore != nil || p.LastCalculatedAt != nil {
			t.Error("projection fields should be nil before any calculation")
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetPatient(ctx, uuid.New().String())
		if !errors.Is(err, domain.ErrPatientNotFound) {
			t.Errorf("expected ErrPatientNotFound, got %v", err)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := repo.GetPatient(ctx, "")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestClinicalStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	patientID := createTestPatient(t, repo)
	now := time.Now().UTC()

	t.Run("visit stats", func(t *testing.T) {
		dates := []struct {
			daysAgo   int
			visitType string
		}{
			{10, domain.VisitTypeFollowUp},
			{50, domain.VisitTypeEmergency},
			{90, domain.VisitTypeOrdinary},
		}
		for _, d := range dates {
			err := repo.AddClinicalVisit(ctx, &domain.ClinicalVisit{
				ID:        uuid.New().String(),
				PatientID: patientID,
				VisitDate: now.AddDate(0, 0, -d.daysAgo),
				VisitType: d.visitType,
			})
			if err != nil {
				t.Fatalf("AddClinicalVisit failed: %v", err)
			}
		}

		stats, err := repo.VisitStats(ctx, patientID)
		if err != nil {
			t.Fatalf("VisitStats failed: %v", err)
		}
		if stats.Count != 3 || stats.FollowUpCount != 1 || stats.EmergencyCount != 1 {
			t.Errorf("unexpected counts: %+v", stats)
		}
		if stats.LastVisitDate == nil || stats.FirstVisitDate == nil {
			t.Fatal("expected boundary dates to be populated")
		}
		if !stats.LastVisitDate.After(*stats.FirstVisitDate) {
			t.Errorf("last visit %v should be after first %v", stats.LastVisitDate, stats.FirstVisitDate)
		}
	})

	t.Run("prescription stats", func(t *testing.T) {
		statuses := []string{
			domain.PrescriptionActive,
			domain.PrescriptionCompleted,
			domain.PrescriptionCancelled,
			domain.PrescriptionCancelled,
		}
		for _, s := range statuses {
			err := repo.AddPrescription(ctx, &domain.Prescription{
				ID:         uuid.New().String(),
				PatientID:  patientID,
				Medication: "TDF/3TC/DTG",
				Status:     s,
				CreatedAt:  now,
			})
			if err != nil {
				t.Fatalf("AddPrescription failed: %v", err)
			}
		}

		stats, err := repo.PrescriptionStats(ctx, patientID)
		if err != nil {
			t.Fatalf("PrescriptionStats failed: %v", err)
		}
		if stats.Total != 4 || stats.Active != 1 || stats.Completed != 1 || stats.Cancelled != 2 {
			t.Errorf("unexpected counts: %+v", stats)
		}
	})

	t.Run("adherence stats respect trailing window", func(t *testing.T) {
		records := []struct {
			daysAgo    int
			percentage float64
			taken      bool
		}{
			{5, 90, true},
			{30, 70, false},
			{200, 10, false}, // outside the 90-day window
		}
		for _, rec := range records {
			err := repo.AddAdherenceRecord(ctx, &domain.AdherenceRecord{
				ID:                  uuid.New().String(),
				PatientID:           patientID,
				AdherenceDate:       now.AddDate(0, 0, -rec.daysAgo),
				AdherencePercentage: rec.percentage,
				Taken:               rec.taken,
			})
			if err != nil {
				t.Fatalf("AddAdherenceRecord failed: %v", err)
			}
		}

		stats, err := repo.AdherenceStats(ctx, patientID)
		if err != nil {
			t.Fatalf("AdherenceStats failed: %v", err)
		}
		if stats.Records != 2 {
			t.Errorf("expected 2 records inside window, got %d", stats.Records)
		}
		if stats.MissedDoses != 1 {
			t.Errorf("expected 1 missed dose inside window, got %d", stats.MissedDoses)
		}
		if stats.AverageAdherence == nil || *stats.AverageAdherence != 80 {
			t.Errorf("expected average 80, got %v", stats.AverageAdherence)
		}
		if stats.LastRecordDate == nil {
			t.Error("expected last record date")
		}
	})

	t.Run("art stats count only active regimens", func(t *testing.T) {
		active := []domain.ARTRegimenDrug{
			{ID: uuid.New().String(), DrugName: "Dolutegravir", MissedDoses: 3},
			{ID: uuid.New().String(), DrugName: "Lamivudine", MissedDoses: 2},
		}
		if err := repo.AddARTRegimen(ctx, patientID, uuid.New().String(), "active", active); err != nil {
			t.Fatalf("AddARTRegimen failed: %v", err)
		}

		stopped := []domain.ARTRegimenDrug{
			{ID: uuid.New().String(), DrugName: "Efavirenz", MissedDoses: 10},
		}
		if err := repo.AddARTRegimen(ctx, patientID, uuid.New().String(), "stopped", stopped); err != nil {
			t.Fatalf("AddARTRegimen failed: %v", err)
		}

		stats, err := repo.ARTStats(ctx, patientID)
		if err != nil {
			t.Fatalf("ARTStats failed: %v", err)
		}
		if stats.ActiveRegimens != 1 {
			t.Errorf("expected 1 active regimen, got %d", stats.ActiveRegimens)
		}
		if stats.TotalMissedDoses != 5 {
			t.Errorf("expected 5 missed doses from active regimens, got %d", stats.TotalMissedDoses)
		}
	})

	t.Run("recent labs newest first with limit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			err := repo.AddLabResult(ctx, &domain.LabResult{
				ID:          uuid.New().String(),
				PatientID:   patientID,
				TestCode:    "CD4",
				TestName:    "CD4 Count",
				ResultValue: fmt.Sprintf("%d", 400+i),
				ReportedAt:  now.AddDate(0, 0, -i*30),
			})
			if err != nil {
				t.Fatalf("AddLabResult failed: %v", err)
			}
		}

		labs, err := repo.RecentLabResults(ctx, patientID, 3)
		if err != nil {
			t.Fatalf("RecentLabResults failed: %v", err)
		}
		if len(labs) != 3 {
			t.Fatalf("expected 3 labs, got %d", len(labs))
		}
		for i := 1; i < len(labs); i++ {
			if labs[i].ReportedAt.After(labs[i-1].ReportedAt) {
				t.Errorf("labs not ordered newest first at index %d", i)
			}
		}
	})

	t.Run("appointment stats", func(t *testing.T) {
		statuses := []string{
			domain.AppointmentCompleted,
			domain.AppointmentCompleted,
			domain.AppointmentNoShow,
			domain.AppointmentCancelled,
		}
		for i, s := range statuses {
			err := repo.AddAppointment(ctx, &domain.Appointment{
				ID:             uuid.New().String(),
				PatientID:      patientID,
				ScheduledStart: now.AddDate(0, 0, -i*14),
				Status:         s,
			})
			if err != nil {
				t.Fatalf("AddAppointment failed: %v", err)
			}
		}

		stats, err := repo.AppointmentStats(ctx, patientID)
		if err != nil {
			t.Fatalf("AppointmentStats failed: %v", err)
		}
		if stats.Total != 4 || stats.Completed != 2 || stats.NoShow != 1 || stats.Cancelled != 1 {
			t.Errorf("unexpected counts: %+v", stats)
		}
		if stats.LastScheduled == nil {
			t.Error("expected last scheduled date")
		}
	})

	t.Run("empty history", func(t *testing.T) {
		emptyID := createTestPatient(t, repo)

		stats, err := repo.VisitStats(ctx, emptyID)
		if err != nil {
			t.Fatalf("VisitStats failed: %v", err)
		}
		if stats.Count != 0 || stats.LastVisitDate != nil {
			t.Errorf("expected empty visit stats, got %+v", stats)
		}

		adh, err := repo.AdherenceStats(ctx, emptyID)
		if err != nil {
			t.Fatalf("AdherenceStats failed: %v", err)
		}
		if adh.AverageAdherence != nil {
			t.Errorf("expected nil average for empty window, got %v", adh.AverageAdherence)
		}
	})
}

func newScore(patientID string, score float64, on time.Time) *domain.RiskScore {
	return &domain.RiskScore{
		ID:             uuid.New().String(),
		PatientID:      patientID,
		Score:          score,
		RiskLevel:      domain.RiskLevelFor(score),
		RiskFactors:    domain.RiskFactors{VisitCount: 3, DaysSinceLastVisit: 45},
		Recommendation: domain.RecommendationFor(domain.RiskLevelFor(score)),
		CalculatedOn:   on,
	}
}

func TestCreateRiskScore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("persists record and projection together", func(t *testing.T) {
		patientID := createTestPatient(t, repo)
		on := time.Now().UTC()

		score := newScore(patientID, 55.5, on)
		actor := "clinician-1"
		score.CalculatedBy = &actor

		if err := repo.CreateRiskScore(ctx, score); err != nil {
			t.Fatalf("CreateRiskScore failed: %v", err)
		}

		current, err := repo.CurrentScore(ctx, patientID)
		if err != nil {
			t.Fatalf("CurrentScore failed: %v", err)
		}
		if current == nil {
			t.Fatal("expected a current score")
		}
		if current.Score != 55.5 || current.RiskLevel != domain.RiskMediumHigh {
			t.Errorf("unexpected score: %+v", current)
		}
		if current.CalculatedBy == nil || *current.CalculatedBy != "clinician-1" {
			t.Errorf("expected calculatedBy clinician-1, got %v", current.CalculatedBy)
		}
		if current.RiskFactors.DaysSinceLastVisit != 45 {
			t.Errorf("risk factors did not round-trip: %+v", current.RiskFactors)
		}

		p, err := repo.GetPatient(ctx, patientID)
		if err != nil {
			t.Fatalf("GetPatient failed: %v", err)
		}
		if p.CurrentRiskScore == nil || *p.CurrentRiskScore != 55.5 {
			t.Errorf("projection score not synced: %v", p.CurrentRiskScore)
		}
		if p.LastCalculatedAt == nil {
			t.Error("projection timestamp not synced")
		}
	})

	t.Run("unknown patient rolls back", func(t *testing.T) {
		missing := uuid.New().String()
		err := repo.CreateRiskScore(ctx, newScore(missing, 60, time.Now().UTC()))
		if err == nil {
			t.Fatal("expected error for unknown patient")
		}

		var pe *domain.PersistenceError
		if !errors.As(err, &pe) {
			t.Errorf("expected PersistenceError, got %T", err)
		}
		if !errors.Is(err, domain.ErrPatientNotFound) {
			t.Errorf("expected wrapped ErrPatientNotFound, got %v", err)
		}

		// The insert must not survive the rollback
		current, err := repo.CurrentScore(ctx, missing)
		if err != nil {
			t.Fatalf("CurrentScore failed: %v", err)
		}
		if current != nil {
			t.Error("orphan risk score row survived rollback")
		}
	})

	t.Run("missing patient id rejected", func(t *testing.T) {
		err := repo.CreateRiskScore(ctx, &domain.RiskScore{ID: uuid.New().String()})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestCurrentScoreAndHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	patientID := createTestPatient(t, repo)
	base := time.Now().UTC().Add(-24 * time.Hour)

	t.Run("no scores yet", func(t *testing.T) {
		current, err := repo.CurrentScore(ctx, patientID)
		if err != nil {
			t.Fatalf("CurrentScore failed: %v", err)
		}
		if current != nil {
			t.Errorf("expected nil current score, got %+v", current)
		}

		history, err := repo.ScoreHistory(ctx, patientID, 10)
		if err != nil {
			t.Fatalf("ScoreHistory failed: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("expected empty history, got %d records", len(history))
		}
	})

	scores := []float64{30, 45, 72}
	for i, s := range scores {
		if err := repo.CreateRiskScore(ctx, newScore(patientID, s, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("CreateRiskScore failed: %v", err)
		}
	}

	t.Run("current is most recent", func(t *testing.T) {
		current, err := repo.CurrentScore(ctx, patientID)
		if err != nil {
			t.Fatalf("CurrentScore failed: %v", err)
		}
		if current == nil || current.Score != 72 {
			t.Errorf("expected score 72, got %+v", current)
		}
	})

	t.Run("history ordered most recent first", func(t *testing.T) {
		history, err := repo.ScoreHistory(ctx, patientID, 10)
		if err != nil {
			t.Fatalf("ScoreHistory failed: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("expected 3 records, got %d", len(history))
		}
		want := []float64{72, 45, 30}
		for i, w := range want {
			if history[i].Score != w {
				t.Errorf("history[%d] = %.1f, want %.1f", i, history[i].Score, w)
			}
		}
	})

	t.Run("history honors limit", func(t *testing.T) {
		history, err := repo.ScoreHistory(ctx, patientID, 2)
		if err != nil {
			t.Fatalf("ScoreHistory failed: %v", err)
		}
		if len(history) != 2 {
			t.Errorf("expected 2 records, got %d", len(history))
		}
	})

	t.Run("tie broken by id descending", func(t *testing.T) {
		same := base.Add(10 * time.Hour)
		first := newScore(patientID, 10, same)
		second := newScore(patientID, 20, same)
		// Force a known id ordering for the tie
		first.ID = "00000000-0000-0000-0000-000000000001"
		second.ID = "00000000-0000-0000-0000-000000000002"

		if err := repo.CreateRiskScore(ctx, first); err != nil {
			t.Fatalf("CreateRiskScore failed: %v", err)
		}
		if err := repo.CreateRiskScore(ctx, second); err != nil {
			t.Fatalf("CreateRiskScore failed: %v", err)
		}

		current, err := repo.CurrentScore(ctx, patientID)
		if err != nil {
			t.Fatalf("CurrentScore failed: %v", err)
		}
		if current.ID != second.ID {
			t.Errorf("expected tie to resolve to id %s, got %s", second.ID, current.ID)
		}
	})
}

func TestHighRiskPatients(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []struct {
		score  float64
		status string
	}{
		{85, "active"},
		{55, "active"},
		{30, "active"},
		{90, "transferred_out"}, // excluded despite high score
	}

	for i, s := range seed {
		id := uuid.New().String()
		err := repo.CreatePatient(ctx, &domain.Patient{
			ID:        id,
			UIC:       fmt.Sprintf("HR-%04d", i),
			FirstName: "Test",
			LastName:  fmt.Sprintf("Patient%d", i),
			Status:    s.status,
			CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("CreatePatient failed: %v", err)
		}
		if err := repo.CreateRiskScore(ctx, newScore(id, s.score, now)); err != nil {
			t.Fatalf("CreateRiskScore failed: %v", err)
		}
	}

	patients, err := repo.HighRiskPatients(ctx, 50, 10)
	if err != nil {
		t.Fatalf("HighRiskPatients failed: %v", err)
	}

	if len(patients) != 2 {
		t.Fatalf("expected 2 high-risk active patients, got %d", len(patients))
	}
	if patients[0].CurrentRiskScore != 85 || patients[1].CurrentRiskScore != 55 {
		t.Errorf("expected highest score first: %+v", patients)
	}
	if patients[0].RiskLevel != domain.RiskHigh {
		t.Errorf("expected HIGH tier, got %s", patients[0].RiskLevel)
	}
	if patients[1].RiskLevel != domain.RiskMediumHigh {
		t.Errorf("expected MEDIUM-HIGH tier, got %s", patients[1].RiskLevel)
	}
}

func TestScreeningRuleStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := &domain.ScreeningRule{
		ID:         uuid.New().String(),
		Name:       "high-score-alert",
		Expression: "score >= 70.0",
		Severity:   domain.SeverityCritical,
		Enabled:    true,
	}

	t.Run("save and list", func(t *testing.T) {
		if err := repo.SaveScreeningRule(ctx, rule); err != nil {
			t.Fatalf("SaveScreeningRule failed: %v", err)
		}

		rules, err := repo.ListScreeningRules(ctx)
		if err != nil {
			t.Fatalf("ListScreeningRules failed: %v", err)
		}
		if len(rules) != 1 || rules[0].Name != "high-score-alert" {
			t.Errorf("unexpected rules: %+v", rules)
		}
	})

	t.Run("upsert replaces expression", func(t *testing.T) {
		rule.Expression = "score >= 80.0"
		if err := repo.SaveScreeningRule(ctx, rule); err != nil {
			t.Fatalf("SaveScreeningRule upsert failed: %v", err)
		}

		rules, err := repo.ListScreeningRules(ctx)
		if err != nil {
			t.Fatalf("ListScreeningRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("upsert must not duplicate, got %d rules", len(rules))
		}
		if rules[0].Expression != "score >= 80.0" {
			t.Errorf("expression not updated: %s", rules[0].Expression)
		}
	})

	t.Run("disabled rules excluded from listing", func(t *testing.T) {
		disabled := &domain.ScreeningRule{
			ID:         uuid.New().String(),
			Name:       "disabled-rule",
			Expression: "score >= 0.0",
			Severity:   domain.SeverityInfo,
			Enabled:    false,
		}
		if err := repo.SaveScreeningRule(ctx, disabled); err != nil {
			t.Fatalf("SaveScreeningRule failed: %v", err)
		}

		rules, err := repo.ListScreeningRules(ctx)
		if err != nil {
			t.Fatalf("ListScreeningRules failed: %v", err)
		}
		for _, r := range rules {
			if r.ID == disabled.ID {
				t.Error("disabled rule leaked into listing")
			}
		}
	})

	t.Run("soft delete", func(t *testing.T) {
		if err := repo.DeleteScreeningRule(ctx, rule.ID); err != nil {
			t.Fatalf("DeleteScreeningRule failed: %v", err)
		}

		rules, err := repo.ListScreeningRules(ctx)
		if err != nil {
			t.Fatalf("ListScreeningRules failed: %v", err)
		}
		for _, r := range rules {
			if r.ID == rule.ID {
				t.Error("deleted rule still listed")
			}
		}
	})

	t.Run("delete missing rule", func(t *testing.T) {
		err := repo.DeleteScreeningRule(ctx, uuid.New().String())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCreateRiskScoreFailures(t *testing.T) {
	t.Run("begin fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New failed: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

		repo := &SQLRepository{db: db, driver: "sqlite"}
		err = repo.CreateRiskScore(context.Background(), newScore(uuid.New().String(), 50, time.Now().UTC()))

		var pe *domain.PersistenceError
		if !errors.As(err, &pe) {
			t.Fatalf("expected PersistenceError, got %T: %v", err, err)
		}
		if pe.Op != "begin" {
			t.Errorf("expected op begin, got %s", pe.Op)
		}
	})

	t.Run("insert fails and rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New failed: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO risk_scores").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		repo := &SQLRepository{db: db, driver: "sqlite"}
		err = repo.CreateRiskScore(context.Background(), newScore(uuid.New().String(), 50, time.Now().UTC()))

		var pe *domain.PersistenceError
		if !errors.As(err, &pe) {
			t.Fatalf("expected PersistenceError, got %T: %v", err, err)
		}
		if pe.Op != "insert risk score" {
			t.Errorf("expected op insert risk score, got %s", pe.Op)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("projection update touches no row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New failed: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO risk_scores").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE patients").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		repo := &SQLRepository{db: db, driver: "sqlite"}
		err = repo.CreateRiskScore(context.Background(), newScore(uuid.New().String(), 50, time.Now().UTC()))

		if !errors.Is(err, domain.ErrPatientNotFound) {
			t.Errorf("expected wrapped ErrPatientNotFound, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("commit fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New failed: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO risk_scores").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE patients").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(errors.New("commit aborted"))

		repo := &SQLRepository{db: db, driver: "sqlite"}
		err = repo.CreateRiskScore(context.Background(), newScore(uuid.New().String(), 50, time.Now().UTC()))

		var pe *domain.PersistenceError
		if !errors.As(err, &pe) {
			t.Fatalf("expected PersistenceError, got %T: %v", err, err)
		}
		if pe.Op != "commit" {
			t.Errorf("expected op commit, got %s", pe.Op)
		}
	})
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		query  string
		want   string
	}{
		{"sqlite", "SELECT * FROM patients WHERE id = ?", "SELECT * FROM patients WHERE id = ?"},
		{"postgres", "SELECT * FROM patients WHERE id = ?", "SELECT * FROM patients WHERE id = $1"},
		{"postgres", "INSERT INTO t (a, b, c) VALUES (?, ?, ?)", "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"},
		{"postgres", "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		r := &SQLRepository{driver: tt.driver}
		if got := r.rebind(tt.query); got != tt.want {
			t.Errorf("rebind(%s, %q) = %q, want %q", tt.driver, tt.query, got, tt.want)
		}
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
