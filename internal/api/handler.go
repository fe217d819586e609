package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openclinic/arpa/internal/arpa"
	"github.com/openclinic/arpa/internal/domain"
	"github.com/openclinic/arpa/internal/screening"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	engine   *arpa.Engine
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	screener *screening.Engine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(engine *arpa.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, screener *screening.Engine, version string) *Handler {
	return &Handler{
		engine:   engine,
		repo:     repo,
		cache:    cache,
		bus:      bus,
		screener: screener,
		version:  version,
	}
}

// CalculateRiskScore handles POST /patients/{id}/risk-score.
// It runs the full scoring pipeline and returns the persisted record.
func (h *Handler) CalculateRiskScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "id")

	if patientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "patient id is required",
		})
		return
	}

	score, err := h.engine.Calculate(ctx, patientID, GetActorID(ctx))
	if err != nil {
		h.writeError(w, patientID, err)
		return
	}

	writeJSON(w, http.StatusCreated, score)
}

// GetCurrentScore handles GET /patients/{id}/risk-score.
// An unscored patient returns a null current score, not an error.
func (h *Handler) GetCurrentScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "id")

	if patientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "patient id is required",
		})
		return
	}

	score, err := h.engine.CurrentScore(ctx, patientID)
	if err != nil {
		h.writeError(w, patientID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patientId": patientID,
		"current":   score,
	})
}

// GetScoreHistory handles GET /patients/{id}/risk-score/history.
func (h *Handler) GetScoreHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "id")

	if patientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "patient id is required",
		})
		return
	}

	limit := queryInt(r, "limit", 0)
	history, err := h.engine.History(ctx, patientID, limit)
	if err != nil {
		h.writeError(w, patientID, err)
		return
	}

	if history == nil {
		history = []*domain.RiskScore{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patientId": patientID,
		"history":   history,
		"count":     len(history),
	})
}

// ListHighRisk handles GET /patients/high-risk.
func (h *Handler) ListHighRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cutoff := queryFloat(r, "threshold", 0)
	limit := queryInt(r, "limit", 0)

	patients, err := h.engine.HighRisk(ctx, cutoff, limit)
	if err != nil {
		h.writeError(w, "", err)
		return
	}

	if patients == nil {
		patients = []*domain.HighRiskPatient{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patients": patients,
		"count":    len(patients),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListScreeningRules returns all loaded screening rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /screening/rules/reload.
func (h *Handler) ListScreeningRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.screener.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetScreeningRule retrieves a screening rule by ID from the loaded set.
func (h *Handler) GetScreeningRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.screener.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "screening rule not found",
	})
}

// CreateScreeningRuleRequest is the request body for creating a rule.
type CreateScreeningRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
}

// CreateScreeningRule creates a new screening rule and saves it to the
// database. After saving, call POST /screening/rules/reload to apply.
func (h *Handler) CreateScreeningRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateScreeningRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityWarning
	}
	switch severity {
	case domain.SeverityInfo, domain.SeverityWarning, domain.SeverityCritical:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "severity must be info, warning, or critical",
		})
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	rule := &domain.ScreeningRule{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    severity,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Validate CEL expression before persisting
	if err := h.screener.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveScreeningRule(ctx, rule); err != nil {
		slog.Error("failed to save screening rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save screening rule",
		})
		return
	}

	slog.Info("screening rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /screening/rules/reload to apply changes.",
	})
}

// DeleteScreeningRule disables a rule and reloads the engine.
func (h *Handler) DeleteScreeningRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if err := h.repo.DeleteScreeningRule(ctx, ruleID); err != nil {
		slog.Error("failed to delete screening rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "screening rule not found",
		})
		return
	}

	// Auto-reload after delete
	dbRules, err := h.repo.ListScreeningRules(ctx)
	if err != nil {
		slog.Error("failed to reload screening rules after delete", "error", err)
	} else if err := h.screener.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload screening engine after delete", "error", err)
	} else {
		slog.Info("screening rules auto-reloaded after delete", "count", len(dbRules))
	}

	slog.Info("screening rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Screening rule deleted and engine reloaded.",
	})
}

// ReloadScreeningRules reloads all enabled rules from the database into
// the engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadScreeningRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListScreeningRules(ctx)
	if err != nil {
		slog.Error("failed to list screening rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load screening rules from database",
		})
		return
	}

	if err := h.screener.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload screening rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload screening rules: " + err.Error(),
		})
		return
	}

	slog.Info("screening rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "screening rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// writeError maps pipeline errors to HTTP responses. Unknown patients
// are the caller's fault, upstream domain read failures are bad
// gateways, and persistence failures are internal.
func (h *Handler) writeError(w http.ResponseWriter, patientID string, err error) {
	var srcErr *domain.DataSourceError
	var perErr *domain.PersistenceError

	switch {
	case errors.Is(err, domain.ErrPatientNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "patient not found",
		})

	case errors.As(err, &srcErr):
		slog.Error("clinical data source failed",
			"patient_id", patientID,
			"domain", srcErr.Domain,
			"error", err,
		)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "clinical data source unavailable",
			"domain": srcErr.Domain,
		})

	case errors.As(err, &perErr):
		slog.Error("risk score persistence failed",
			"patient_id", patientID,
			"op", perErr.Op,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to record risk score",
		})

	default:
		slog.Error("request failed", "patient_id", patientID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryFloat(r *http.Request, name string, fallback float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
