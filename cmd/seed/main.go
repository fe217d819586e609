// Seed tool for loading synthetic patient histories into a local
// database and scoring them.
//
// Usage:
//
//	go run cmd/seed/main.go -db ./arpa.db -patients 50
//
// This tool:
//  1. Generates synthetic patients across engagement profiles
//  2. Writes their clinical histories through the repository
//  3. Calculates a risk score for each patient
//  4. Prints the resulting tier distribution
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/openclinic/arpa/internal/arpa"
	"github.com/openclinic/arpa/internal/domain"
	"github.com/openclinic/arpa/internal/repository"
)

// profile controls how engaged a synthetic patient's history looks.
type profile struct {
	name          string
	visitGapDays  [2]int // min, max days since last visit
	visitCount    [2]int
	adherence     [2]float64
	noShowPercent [2]int
	labGapDays    [2]int
	cd4           [2]int
	viralLoad     [2]int
	undetectable  bool
	hasActiveMeds bool
}

var profiles = []profile{
	{
		name:          "stable",
		visitGapDays:  [2]int{7, 30},
		visitCount:    [2]int{8, 20},
		adherence:     [2]float64{95, 100},
		noShowPercent: [2]int{0, 5},
		labGapDays:    [2]int{14, 60},
		cd4:           [2]int{500, 900},
		undetectable:  true,
		hasActiveMeds: true,
	},
	{
		name:          "slipping",
		visitGapDays:  [2]int{60, 120},
		visitCount:    [2]int{4, 10},
		adherence:     [2]float64{75, 90},
		noShowPercent: [2]int{10, 30},
		labGapDays:    [2]int{90, 150},
		cd4:           [2]int{300, 500},
		viralLoad:     [2]int{50, 400},
		hasActiveMeds: true,
	},
	{
		name:          "critical",
		visitGapDays:  [2]int{180, 360},
		visitCount:    [2]int{1, 4},
		adherence:     [2]float64{40, 70},
		noShowPercent: [2]int{40, 70},
		labGapDays:    [2]int{180, 360},
		cd4:           [2]int{80, 250},
		viralLoad:     [2]int{1200, 50000},
		hasActiveMeds: false,
	},
}

func main() {
	dbPath := flag.String("db", "./arpa.db", "Path to SQLite database")
	patients := flag.Int("patients", 30, "Number of patients to generate")
	seed := flag.Int64("seed", 42, "Random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: *dbPath,
	})
	if err != nil {
		fmt.Printf("ERROR: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	engine := arpa.New(repo, nil, nil, nil)
	ctx := context.Background()

	fmt.Printf("Seeding %d patients into %s\n\n", *patients, *dbPath)

	tiers := map[string]int{}
	start := time.Now()

	for i := 0; i < *patients; i++ {
		p := profiles[i%len(profiles)]
		patientID, err := seedPatient(ctx, repo, rng, p, i)
		if err != nil {
			fmt.Printf("ERROR: failed to seed patient %d: %v\n", i, err)
			os.Exit(1)
		}

		score, err := engine.Calculate(ctx, patientID, nil)
		if err != nil {
			fmt.Printf("ERROR: failed to score patient %s: %v\n", patientID, err)
			os.Exit(1)
		}

		tiers[score.RiskLevel]++
		fmt.Printf("  %-10s %-38s score %6.1f  %s\n", p.name, patientID, score.Score, score.RiskLevel)
	}

	fmt.Printf("\nTier distribution (%d patients in %v):\n", *patients, time.Since(start).Round(time.Millisecond))
	for _, tier := range []string{domain.RiskHigh, domain.RiskMediumHigh, domain.RiskMedium, domain.RiskLowMedium, domain.RiskLow} {
		fmt.Printf("  %-12s %d\n", tier, tiers[tier])
	}
}

func seedPatient(ctx context.Context, repo domain.Repository, rng *rand.Rand, p profile, n int) (string, error) {
	now := time.Now().UTC()
	patientID := uuid.New().String()

	patient := &domain.Patient{
		ID:         patientID,
		UIC:        fmt.Sprintf("SEED-%04d", n),
		FirstName:  "Synthetic",
		LastName:   fmt.Sprintf("Patient%04d", n),
		Status:     "active",
		FacilityID: "facility-seed",
		CreatedAt:  now.AddDate(-2, 0, 0),
	}
	if err := repo.CreatePatient(ctx, patient); err != nil {
		return "", err
	}

	// Visits, newest gap drawn from the profile
	visitCount := between(rng, p.visitCount)
	lastGap := between(rng, p.visitGapDays)
	for v := 0; v < visitCount; v++ {
		visitType := domain.VisitTypeFollowUp
		if rng.Intn(10) == 0 {
			visitType = domain.VisitTypeEmergency
		}
		visit := &domain.ClinicalVisit{
			ID:        uuid.New().String(),
			PatientID: patientID,
			VisitType: visitType,
			VisitDate: now.AddDate(0, 0, -(lastGap + v*45)),
		}
		if err := repo.AddClinicalVisit(ctx, visit); err != nil {
			return "", err
		}
	}

	// Prescriptions
	status := domain.PrescriptionActive
	if !p.hasActiveMeds {
		status = domain.PrescriptionCompleted
	}
	rx := &domain.Prescription{
		ID:         uuid.New().String(),
		PatientID:  patientID,
		Medication: "TDF/3TC/DTG",
		Status:     status,
		CreatedAt:  now.AddDate(0, -6, 0),
	}
	if err := repo.AddPrescription(ctx, rx); err != nil {
		return "", err
	}

	// Adherence records inside the 90-day window
	for d := 0; d < 10; d++ {
		adherence := betweenFloat(rng, p.adherence)
		rec := &domain.AdherenceRecord{
			ID:                  uuid.New().String(),
			PatientID:           patientID,
			AdherenceDate:       now.AddDate(0, 0, -(d*7 + 1)),
			AdherencePercentage: adherence,
			Taken:               adherence >= 80,
		}
		if err := repo.AddAdherenceRecord(ctx, rec); err != nil {
			return "", err
		}
	}

	// ART regimen with missed doses scaled to adherence
	missed := int((100 - p.adherence[0]) / 10)
	drugs := []domain.ARTRegimenDrug{
		{ID: uuid.New().String(), DrugName: "Dolutegravir", MissedDoses: missed},
		{ID: uuid.New().String(), DrugName: "Lamivudine", MissedDoses: missed},
	}
	regimenStatus := "active"
	if !p.hasActiveMeds {
		regimenStatus = "stopped"
	}
	if err := repo.AddARTRegimen(ctx, patientID, uuid.New().String(), regimenStatus, drugs); err != nil {
		return "", err
	}

	// Labs: CD4 pair and a viral load
	labGap := between(rng, p.labGapDays)
	cd4Latest := between(rng, p.cd4)
	labs := []*domain.LabResult{
		{
			ID:          uuid.New().String(),
			PatientID:   patientID,
			TestCode:    "CD4",
			TestName:    "CD4 Count",
			ResultValue: fmt.Sprintf("%d", cd4Latest),
			ReportedAt:  now.AddDate(0, 0, -labGap),
		},
		{
			ID:          uuid.New().String(),
			PatientID:   patientID,
			TestCode:    "CD4",
			TestName:    "CD4 Count",
			ResultValue: fmt.Sprintf("%d", cd4Latest+between(rng, [2]int{-80, 80})),
			ReportedAt:  now.AddDate(0, 0, -(labGap + 120)),
		},
	}
	vl := &domain.LabResult{
		ID:         uuid.New().String(),
		PatientID:  patientID,
		TestCode:   "VL",
		TestName:   "Viral Load",
		ReportedAt: now.AddDate(0, 0, -labGap),
	}
	if p.undetectable {
		vl.ResultValue = "Undetectable"
	} else {
		vl.ResultValue = fmt.Sprintf("%d", between(rng, p.viralLoad))
		vl.IsCritical = between(rng, p.viralLoad) > 1000
	}
	labs = append(labs, vl)
	for _, lab := range labs {
		if err := repo.AddLabResult(ctx, lab); err != nil {
			return "", err
		}
	}

	// Appointments with the profile's no-show rate
	total := 10
	noShow := total * between(rng, p.noShowPercent) / 100
	for a := 0; a < total; a++ {
		apptStatus := domain.AppointmentCompleted
		if a < noShow {
			apptStatus = domain.AppointmentNoShow
		}
		appt := &domain.Appointment{
			ID:             uuid.New().String(),
			PatientID:      patientID,
			ScheduledStart: now.AddDate(0, 0, -(a*30 + 5)),
			Status:         apptStatus,
		}
		if err := repo.AddAppointment(ctx, appt); err != nil {
			return "", err
		}
	}

	return patientID, nil
}

func between(rng *rand.Rand, r [2]int) int {
	if r[1] <= r[0] {
		return r[0]
	}
	return r[0] + rng.Intn(r[1]-r[0])
}

func betweenFloat(rng *rand.Rand, r [2]float64) float64 {
	if r[1] <= r[0] {
		return r[0]
	}
	return r[0] + rng.Float64()*(r[1]-r[0])
}
