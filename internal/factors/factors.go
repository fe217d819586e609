// Package factors converts a patient snapshot into named risk-factor
// contributions under fixed threshold ladders. Every function here is
// pure: the same snapshot always produces the same contributions and
// the same evidence.
package factors

import (
	"strconv"
	"strings"
	"time"

	"github.com/openclinic/arpa/internal/domain"
)

// Factor names used in contributions and logs.
const (
	FactorVisitRecency     = "visit_recency"
	FactorAdherenceLevel   = "adherence_level"
	FactorMissedDoseRate   = "missed_dose_rate"
	FactorNoShowRate       = "no_show_rate"
	FactorLowAttendance    = "low_attendance"
	FactorLabRecency       = "lab_recency"
	FactorCD4Level         = "cd4_level"
	FactorCD4Decline       = "cd4_decline"
	FactorViralLoad        = "viral_load"
	FactorEmergencyRate    = "emergency_visit_rate"
	FactorCancellationRate = "prescription_cancellation_rate"
	FactorNoActiveScripts  = "no_active_prescriptions"
)

// defaultRecencyDays is assumed when a patient has no visit or lab
// history at all.
const defaultRecencyDays = 365

// Contribution is one factor's additive share of the composed score.
// Points are never negative; nothing is ever subtracted.
type Contribution struct {
	Factor string
	Points float64
}

// Evaluate runs all factor ladders over a snapshot. It returns the
// non-zero contributions and the complete evidence trail. Thresholds
// are exclusive lower bounds: a value equal to a bound stays in the
// lower band.
func Evaluate(snap *domain.Snapshot) ([]Contribution, domain.RiskFactors) {
	var contribs []Contribution
	add := func(factor string, points float64) {
		if points > 0 {
			contribs = append(contribs, Contribution{Factor: factor, Points: points})
		}
	}

	evidence := domain.RiskFactors{
		VisitCount:            snap.Visits.Count,
		PrescriptionCount:     snap.Prescriptions.Total,
		TotalAppointments:     snap.Appointments.Total,
		CompletedAppointments: snap.Appointments.Completed,
		MissedAppointments:    snap.Appointments.NoShow,
	}

	add(FactorVisitRecency, visitRecency(snap, &evidence))
	add(FactorAdherenceLevel, adherenceLevel(snap, &evidence))
	add(FactorMissedDoseRate, missedDoseRate(snap, &evidence))
	add(FactorNoShowRate, noShowRate(snap, &evidence))
	add(FactorLowAttendance, lowAttendance(snap, &evidence))
	add(FactorLabRecency, labRecency(snap, &evidence))

	cd4Points, cd4Trend := cd4Level(snap)
	add(FactorCD4Level, cd4Points)
	add(FactorCD4Decline, cd4Decline(cd4Trend))
	evidence.CD4Trend = cd4Trend

	add(FactorViralLoad, viralLoad(snap, &evidence))
	add(FactorEmergencyRate, emergencyVisitRate(snap, &evidence))
	add(FactorCancellationRate, cancellationRate(snap, &evidence))
	add(FactorNoActiveScripts, noActivePrescriptions(snap, &evidence))

	return contribs, evidence
}

// visitRecency scores days since the last visit; patients with no
// visits at all are treated as 365 days out of care.
func visitRecency(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	days := defaultRecencyDays
	if snap.Visits.LastVisitDate != nil {
		days = daysBetween(*snap.Visits.LastVisitDate, snap.TakenAt)
	}
	ev.DaysSinceLastVisit = days
	ev.VisitFrequency = visitFrequency(snap)

	switch {
	case days > 180:
		return 25
	case days > 90:
		return 20
	case days > 60:
		return 15
	case days > 30:
		return 10
	case days > 14:
		return 5
	}
	return 0
}

// visitFrequency is visits per month of enrollment, one decimal.
func visitFrequency(snap *domain.Snapshot) float64 {
	if snap.Visits.Count == 0 {
		return 0
	}
	months := daysBetween(snap.EnrolledAt, snap.TakenAt) / 30
	if months < 1 {
		months = 1
	}
	return domain.Round1(float64(snap.Visits.Count) / float64(months))
}

// adherenceLevel scores the 90-day average adherence percentage. The
// ladder applies only when the window holds at least one record; an
// empty window records zero evidence and contributes nothing.
func adherenceLevel(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	percent := 0.0
	if snap.Adherence.AverageAdherence != nil {
		percent = *snap.Adherence.AverageAdherence
	}
	ev.MedicationAdherence = domain.Round1(percent)
	ev.ARTMissedDoses = snap.ART.TotalMissedDoses

	if snap.Adherence.Records == 0 {
		return 0
	}

	switch {
	case percent < 70:
		return 30
	case percent < 80:
		return 25
	case percent < 90:
		return 15
	case percent < 95:
		return 10
	case percent < 100:
		return 5
	}
	return 0
}

func missedDoseRate(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	rate := 0.0
	if snap.Adherence.Records > 0 {
		rate = float64(snap.Adherence.MissedDoses) / float64(snap.Adherence.Records) * 100
	}
	ev.MissedDoseRate = domain.Round1(rate)

	switch {
	case rate > 30:
		return 15
	case rate > 20:
		return 10
	case rate > 10:
		return 5
	}
	return 0
}

func noShowRate(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	rate := 0.0
	if snap.Appointments.Total > 0 {
		rate = float64(snap.Appointments.NoShow) / float64(snap.Appointments.Total) * 100
	}
	ev.AppointmentMissedRate = domain.Round1(rate)

	switch {
	case rate > 40:
		return 25
	case rate > 30:
		return 20
	case rate > 20:
		return 15
	case rate > 10:
		return 10
	case rate > 5:
		return 5
	}
	return 0
}

// lowAttendance adds a flat bonus when fewer than half of more than
// three appointments were completed.
func lowAttendance(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	rate := 0.0
	if snap.Appointments.Total > 0 {
		rate = float64(snap.Appointments.Completed) / float64(snap.Appointments.Total) * 100
	}
	ev.AppointmentAttendanceRate = domain.Round1(rate)

	if rate < 50 && snap.Appointments.Total > 3 {
		return 15
	}
	return 0
}

func labRecency(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	days := defaultRecencyDays
	if len(snap.RecentLabs) > 0 {
		days = daysBetween(snap.RecentLabs[0].ReportedAt, snap.TakenAt)
	}
	ev.DaysSinceLastLab = days

	critical := 0
	for _, lr := range snap.RecentLabs {
		if lr.IsCritical {
			critical++
		}
	}
	ev.CriticalLabsCount = critical

	switch {
	case days > 180:
		return 20
	case days > 120:
		return 15
	case days > 90:
		return 10
	case days > 60:
		return 5
	}
	return 0
}

// cd4Level scores the latest CD4 result. With two or more readings the
// trend sub-fields are populated and a separate decline factor applies;
// with a single reading a reduced ladder is used; with none the trend
// evidence is skipped entirely.
func cd4Level(snap *domain.Snapshot) (float64, *domain.CD4Trend) {
	results := filterLabs(snap.RecentLabs, func(lr domain.LabResult) bool {
		return containsFold(lr.TestCode, "cd4") || containsFold(lr.TestName, "cd4")
	})

	switch {
	case len(results) >= 2:
		latest := parseLeadingFloat(results[0].ResultValue)
		previous := parseLeadingFloat(results[1].ResultValue)
		change := latest - previous
		changePercent := 0.0
		if previous > 0 {
			changePercent = change / previous * 100
		}
		changePercent = domain.Round1(changePercent)

		trend := &domain.CD4Trend{
			Latest:        latest,
			Previous:      &previous,
			Change:        &change,
			ChangePercent: &changePercent,
		}

		switch {
		case latest < 200:
			return 20, trend
		case latest < 350:
			return 10, trend
		case latest < 500:
			return 5, trend
		}
		return 0, trend

	case len(results) == 1:
		latest := parseLeadingFloat(results[0].ResultValue)
		trend := &domain.CD4Trend{Latest: latest}

		switch {
		case latest < 200:
			return 15, trend
		case latest < 350:
			return 8, trend
		}
		return 0, trend
	}

	return 0, nil
}

// cd4Decline scores the percentage drop against the prior reading.
func cd4Decline(trend *domain.CD4Trend) float64 {
	if trend == nil || trend.ChangePercent == nil {
		return 0
	}
	switch {
	case *trend.ChangePercent < -20:
		return 15
	case *trend.ChangePercent < -10:
		return 10
	}
	return 0
}

// viralLoad scores the latest viral-load result. Textual results such
// as "Undetectable" or "< 20" contribute nothing and are recorded as
// undetectable evidence.
func viralLoad(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	results := filterLabs(snap.RecentLabs, func(lr domain.LabResult) bool {
		return containsFold(lr.TestCode, "vl") ||
			containsFold(lr.TestCode, "viral") ||
			containsFold(lr.TestName, "viral load")
	})
	if len(results) == 0 {
		return 0
	}

	text := strings.ToLower(results[0].ResultValue)
	if strings.Contains(text, "undetectable") || strings.Contains(text, "<") {
		ev.ViralLoad = &domain.ViralLoadReading{Value: "Undetectable", Numeric: 0}
		return 0
	}

	value := parseLeadingFloat(results[0].ResultValue)
	ev.ViralLoad = &domain.ViralLoadReading{Value: value, Numeric: value}

	switch {
	case value > 1000:
		return 25
	case value > 500:
		return 20
	case value > 200:
		return 15
	case value > 50:
		return 10
	case value > 20:
		return 5
	}
	return 0
}

func emergencyVisitRate(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	if snap.Visits.EmergencyCount == 0 {
		return 0
	}

	rate := 0.0
	if snap.Visits.Count > 0 {
		rate = float64(snap.Visits.EmergencyCount) / float64(snap.Visits.Count) * 100
	}
	rounded := domain.Round1(rate)
	ev.EmergencyVisitRate = &rounded

	switch {
	case rate > 30:
		return 15
	case rate > 20:
		return 10
	case rate > 10:
		return 5
	}
	return 0
}

func cancellationRate(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	if snap.Prescriptions.Cancelled == 0 {
		return 0
	}

	rate := 0.0
	if snap.Prescriptions.Total > 0 {
		rate = float64(snap.Prescriptions.Cancelled) / float64(snap.Prescriptions.Total) * 100
	}
	rounded := domain.Round1(rate)
	ev.PrescriptionCancelledRate = &rounded

	switch {
	case rate > 30:
		return 10
	case rate > 20:
		return 7
	case rate > 10:
		return 5
	}
	return 0
}

// noActivePrescriptions flags patients with visit history but no
// active medication orders.
func noActivePrescriptions(snap *domain.Snapshot, ev *domain.RiskFactors) float64 {
	if snap.Prescriptions.Active == 0 && snap.Visits.Count > 0 {
		ev.NoActivePrescriptions = true
		return 10
	}
	return 0
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

func filterLabs(labs []domain.LabResult, keep func(domain.LabResult) bool) []domain.LabResult {
	var out []domain.LabResult
	for _, lr := range labs {
		if keep(lr) {
			out = append(out, lr)
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// parseLeadingFloat reads the leading numeric prefix of a result value
// ("350", "350 cells/mm3", "12.5"); anything without one parses as 0.
func parseLeadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDot := false
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' {
			end++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			end++
			continue
		}
		if (c == '-' || c == '+') && end == 0 {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimRight(s[:end], "."), 64)
	if err != nil {
		return 0
	}
	return v
}
