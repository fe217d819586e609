// Package arpa implements the Automated Risk Prediction Algorithm
// engine. It aggregates a patient's clinical history, evaluates the
// factor ladders, composes the final tiered score, and records the
// result with its downstream notifications.
package arpa

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openclinic/arpa/internal/aggregate"
	"github.com/openclinic/arpa/internal/domain"
	"github.com/openclinic/arpa/internal/factors"
	"github.com/openclinic/arpa/internal/screening"
)

// Defaults for read operations.
const (
	DefaultHistoryLimit   = 10
	DefaultHighRiskCutoff = 50.0
	currentScoreTTL       = 5 * time.Minute
	engineVersion         = "arpa-1.0"
)

// Engine ties the scoring pipeline together. The repository write is
// the only step that can fail a calculation once a snapshot exists;
// cache, event, and screening steps are best effort.
type Engine struct {
	aggregator *aggregate.Aggregator
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	screener   *screening.Engine
}

// New creates a scoring engine. Cache, bus, and screener may be nil;
// the corresponding steps are skipped.
func New(repo domain.Repository, cache domain.Cache, bus domain.EventBus, screener *screening.Engine) *Engine {
	return &Engine{
		aggregator: aggregate.New(repo),
		repo:       repo,
		cache:      cache,
		bus:        bus,
		screener:   screener,
	}
}

// ScoreCalculatedEvent is published on every persisted calculation.
type ScoreCalculatedEvent struct {
	ScoreID      string    `json:"scoreId"`
	PatientID    string    `json:"patientId"`
	Score        float64   `json:"score"`
	RiskLevel    string    `json:"riskLevel"`
	CalculatedBy *string   `json:"calculatedBy,omitempty"`
	CalculatedOn time.Time `json:"calculatedOn"`
	DurationMs   int64     `json:"durationMs"`
	Version      string    `json:"version"`
}

// AuditEvent describes the projection change a calculation caused.
type AuditEvent struct {
	Action     string    `json:"action"`
	PatientID  string    `json:"patientId"`
	ScoreID    string    `json:"scoreId"`
	Actor      *string   `json:"actor,omitempty"`
	OldScore   *float64  `json:"oldScore"`
	OldLevel   *string   `json:"oldLevel"`
	NewScore   float64   `json:"newScore"`
	NewLevel   string    `json:"newLevel"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Calculate runs the full pipeline for one patient and returns the
// persisted score record. calculatedBy is nil for automated runs.
func (e *Engine) Calculate(ctx context.Context, patientID string, calculatedBy *string) (*domain.RiskScore, error) {
	start := time.Now()

	snap, err := e.aggregator.Snapshot(ctx, patientID)
	if err != nil {
		return nil, err
	}

	// Prior record is only needed for the audit trail; a read failure
	// here must not block the calculation.
	var prior *domain.RiskScore
	if prev, err := e.repo.CurrentScore(ctx, patientID); err != nil {
		slog.Warn("prior score lookup failed", "patient_id", patientID, "error", err)
	} else {
		prior = prev
	}

	contribs, evidence := factors.Evaluate(snap)

	raw := 0.0
	for _, c := range contribs {
		raw += c.Points
	}

	score := &domain.RiskScore{
		ID:           uuid.New().String(),
		PatientID:    patientID,
		Score:        domain.ClampScore(raw),
		RiskFactors:  evidence,
		CalculatedBy: calculatedBy,
		CalculatedOn: time.Now().UTC(),
	}
	score.RiskLevel = domain.RiskLevelFor(score.Score)
	score.Recommendation = domain.RecommendationFor(score.RiskLevel)

	if err := e.repo.CreateRiskScore(ctx, score); err != nil {
		return nil, err
	}

	slog.Info("risk score calculated",
		"patient_id", patientID,
		"score_id", score.ID,
		"score", score.Score,
		"risk_level", score.RiskLevel,
		"factors", len(contribs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	e.refreshCache(ctx, score)
	e.publishCalculated(ctx, score, time.Since(start).Milliseconds())
	e.publishAudit(ctx, score, prior)
	e.runScreening(ctx, score)

	return score, nil
}

// CurrentScore returns a patient's most recent score record, or nil
// when the patient exists but has never been scored.
func (e *Engine) CurrentScore(ctx context.Context, patientID string) (*domain.RiskScore, error) {
	if _, err := e.repo.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	if e.cache != nil {
		if cached, err := e.cache.GetCurrentScore(ctx, patientID); err != nil {
			slog.Warn("current score cache read failed", "patient_id", patientID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	score, err := e.repo.CurrentScore(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if score != nil {
		e.refreshCache(ctx, score)
	}
	return score, nil
}

// History returns a patient's score records, most recent first. A
// non-positive limit falls back to the default page size.
func (e *Engine) History(ctx context.Context, patientID string, limit int) ([]*domain.RiskScore, error) {
	if _, err := e.repo.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return e.repo.ScoreHistory(ctx, patientID, limit)
}

// HighRisk lists active patients at or above the cutoff, highest
// first. A non-positive cutoff uses the default of 50.
func (e *Engine) HighRisk(ctx context.Context, cutoff float64, limit int) ([]*domain.HighRiskPatient, error) {
	if cutoff <= 0 {
		cutoff = DefaultHighRiskCutoff
	}
	return e.repo.HighRiskPatients(ctx, cutoff, limit)
}

func (e *Engine) refreshCache(ctx context.Context, score *domain.RiskScore) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetCurrentScore(ctx, score.PatientID, score, currentScoreTTL); err != nil {
		slog.Warn("current score cache write failed", "patient_id", score.PatientID, "error", err)
	}
}

func (e *Engine) publishCalculated(ctx context.Context, score *domain.RiskScore, durationMs int64) {
	if e.bus == nil {
		return
	}

	event := ScoreCalculatedEvent{
		ScoreID:      score.ID,
		PatientID:    score.PatientID,
		Score:        score.Score,
		RiskLevel:    score.RiskLevel,
		CalculatedBy: score.CalculatedBy,
		CalculatedOn: score.CalculatedOn,
		DurationMs:   durationMs,
		Version:      engineVersion,
	}
	e.publish(ctx, domain.TopicScoreCalculated, event)
}

func (e *Engine) publishAudit(ctx context.Context, score *domain.RiskScore, prior *domain.RiskScore) {
	if e.bus == nil {
		return
	}

	event := AuditEvent{
		Action:     "risk_score.calculated",
		PatientID:  score.PatientID,
		ScoreID:    score.ID,
		Actor:      score.CalculatedBy,
		NewScore:   score.Score,
		NewLevel:   score.RiskLevel,
		OccurredAt: score.CalculatedOn,
	}
	if prior != nil {
		event.OldScore = &prior.Score
		event.OldLevel = &prior.RiskLevel
	}
	e.publish(ctx, domain.TopicAudit, event)
}

// runScreening evaluates the watch rules against the new record and
// publishes an alert per match.
func (e *Engine) runScreening(ctx context.Context, score *domain.RiskScore) {
	if e.screener == nil {
		return
	}

	matches, err := e.screener.Evaluate(score)
	if err != nil {
		slog.Warn("screening evaluation failed", "patient_id", score.PatientID, "error", err)
		return
	}

	for _, m := range matches {
		slog.Info("screening rule matched",
			"rule_id", m.RuleID,
			"severity", m.Severity,
			"patient_id", m.PatientID,
			"score", m.Score,
		)
		e.publish(ctx, domain.TopicRiskAlert, m)
	}
}

// publish emits best-effort: failures are logged, never returned.
func (e *Engine) publish(ctx context.Context, topic string, payload any) {
	if e.bus == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("event payload marshal failed", "topic", topic, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, topic, data); err != nil {
		slog.Warn("event publish failed", "topic", topic, "error", err)
	}
}
