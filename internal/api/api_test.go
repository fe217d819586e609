package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openclinic/arpa/internal/arpa"
	"github.com/openclinic/arpa/internal/bus"
	"github.com/openclinic/arpa/internal/cache"
	"github.com/openclinic/arpa/internal/domain"
	"github.com/openclinic/arpa/internal/repository"
	"github.com/openclinic/arpa/internal/screening"
)

type testServer struct {
	srv  *Server
	repo domain.Repository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	f, err := os.CreateTemp("", "arpa-api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: f.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	screener, err := screening.NewEngine()
	if err != nil {
		t.Fatalf("failed to create screening engine: %v", err)
	}

	engine := arpa.New(repo, c, b, screener)
	srv := NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0}, engine, repo, c, b, screener, "test")

	return &testServer{srv: srv, repo: repo}
}

func (ts *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("failed to decode response %s: %v", rec.Body.String(), err)
	}
}

func (ts *testServer) createPatient(t *testing.T) string {
	t.Helper()

	id := uuid.New().String()
	err := ts.repo.CreatePatient(context.Background(), &domain.Patient{
		ID:        id,
		UIC:       "API-0001",
		FirstName: "Abena",
		LastName:  "Boateng",
		Status:    "active",
		CreatedAt: time.Now().UTC().AddDate(-1, 0, 0),
	})
	if err != nil {
		t.Fatalf("failed to create patient: %v", err)
	}
	return id
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	t.Run("health", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/health", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body map[string]string
		decode(t, rec, &body)
		if body["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", body["status"])
		}
		if body["version"] != "test" {
			t.Errorf("expected version test, got %s", body["version"])
		}
	})

	t.Run("ready", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/ready", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func TestCalculateRiskScoreEndpoint(t *testing.T) {
	ts := newTestServer(t)

	t.Run("success", func(t *testing.T) {
		patientID := ts.createPatient(t)

		rec := ts.request(t, http.MethodPost, "/patients/"+patientID+"/risk-score", nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var score domain.RiskScore
		decode(t, rec, &score)
		if score.PatientID != patientID {
			t.Errorf("unexpected patient: %s", score.PatientID)
		}
		if score.Score != 45 || score.RiskLevel != domain.RiskMedium {
			t.Errorf("expected 45/MEDIUM for empty history, got %.1f/%s", score.Score, score.RiskLevel)
		}
		if score.Recommendation == "" {
			t.Error("expected a recommendation")
		}
	})

	t.Run("unknown patient", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/patients/"+uuid.New().String()+"/risk-score", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("actor header flows to record", func(t *testing.T) {
		patientID := ts.createPatient(t)

		req := httptest.NewRequest(http.MethodPost, "/patients/"+patientID+"/risk-score", nil)
		req.Header.Set("X-Actor-ID", "clinician-9")
		rec := httptest.NewRecorder()
		ts.srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}

		var score domain.RiskScore
		decode(t, rec, &score)
		if score.CalculatedBy == nil || *score.CalculatedBy != "clinician-9" {
			t.Errorf("expected calculatedBy clinician-9, got %v", score.CalculatedBy)
		}
	})
}

func TestGetCurrentScoreEndpoint(t *testing.T) {
	ts := newTestServer(t)

	t.Run("unscored patient returns null current", func(t *testing.T) {
		patientID := ts.createPatient(t)

		rec := ts.request(t, http.MethodGet, "/patients/"+patientID+"/risk-score", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			PatientID string           `json:"patientId"`
			Current   *json.RawMessage `json:"current"`
		}
		decode(t, rec, &body)
		if body.PatientID != patientID {
			t.Errorf("unexpected patient id: %s", body.PatientID)
		}
		if body.Current != nil && string(*body.Current) != "null" {
			t.Errorf("expected null current, got %s", *body.Current)
		}
	})

	t.Run("scored patient", func(t *testing.T) {
		patientID := ts.createPatient(t)
		ts.request(t, http.MethodPost, "/patients/"+patientID+"/risk-score", nil)

		rec := ts.request(t, http.MethodGet, "/patients/"+patientID+"/risk-score", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			Current *domain.RiskScore `json:"current"`
		}
		decode(t, rec, &body)
		if body.Current == nil || body.Current.Score != 45 {
			t.Errorf("unexpected current score: %+v", body.Current)
		}
	})

	t.Run("unknown patient", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/patients/"+uuid.New().String()+"/risk-score", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestScoreHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	patientID := ts.createPatient(t)

	t.Run("empty history", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/patients/"+patientID+"/risk-score/history", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			History []*domain.RiskScore `json:"history"`
			Count   int                 `json:"count"`
		}
		decode(t, rec, &body)
		if body.Count != 0 || body.History == nil {
			t.Errorf("expected empty non-null history, got %+v", body)
		}
	})

	for i := 0; i < 3; i++ {
		ts.request(t, http.MethodPost, "/patients/"+patientID+"/risk-score", nil)
	}

	t.Run("with records and limit", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/patients/"+patientID+"/risk-score/history?limit=2", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			History []*domain.RiskScore `json:"history"`
			Count   int                 `json:"count"`
		}
		decode(t, rec, &body)
		if body.Count != 2 || len(body.History) != 2 {
			t.Errorf("expected 2 records, got %+v", body)
		}
	})
}

func TestHighRiskEndpoint(t *testing.T) {
	ts := newTestServer(t)
	patientID := ts.createPatient(t)
	ts.request(t, http.MethodPost, "/patients/"+patientID+"/risk-score", nil)

	t.Run("default threshold excludes a medium score", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/patients/high-risk", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			Patients []*domain.HighRiskPatient `json:"patients"`
			Count    int                       `json:"count"`
		}
		decode(t, rec, &body)
		if body.Count != 0 || body.Patients == nil {
			t.Errorf("expected empty non-null listing, got %+v", body)
		}
	})

	t.Run("lower threshold includes the patient", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/patients/high-risk?threshold=40", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			Patients []*domain.HighRiskPatient `json:"patients"`
			Count    int                       `json:"count"`
		}
		decode(t, rec, &body)
		if body.Count != 1 || body.Patients[0].PatientID != patientID {
			t.Errorf("unexpected listing: %+v", body)
		}
	})
}

func TestScreeningRuleEndpoints(t *testing.T) {
	ts := newTestServer(t)

	t.Run("create rejects invalid expression", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/screening/rules", CreateScreeningRuleRequest{
			Name:       "broken",
			Expression: "score >=>",
			Enabled:    true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("create rejects non-bool expression", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/screening/rules", CreateScreeningRuleRequest{
			Name:       "arithmetic",
			Expression: "score + 1.0",
			Enabled:    true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("create rejects bad severity", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/screening/rules", CreateScreeningRuleRequest{
			Name:       "bad-severity",
			Expression: "score >= 70.0",
			Severity:   "fatal",
			Enabled:    true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("create requires name and expression", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/screening/rules", CreateScreeningRuleRequest{
			Name: "no-expression",
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	var ruleID string

	t.Run("create and reload", func(t *testing.T) {
		rec := ts.request(t, http.MethodPost, "/screening/rules", CreateScreeningRuleRequest{
			Name:       "high-score",
			Expression: "score >= 70.0",
			Severity:   domain.SeverityCritical,
			Enabled:    true,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var body struct {
			Rule domain.ScreeningRule `json:"rule"`
		}
		decode(t, rec, &body)
		if body.Rule.ID == "" {
			t.Fatal("expected a generated rule id")
		}
		ruleID = body.Rule.ID

		rec = ts.request(t, http.MethodPost, "/screening/rules/reload", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 on reload, got %d", rec.Code)
		}
	})

	t.Run("list and get loaded rule", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/screening/rules", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			Rules []*domain.ScreeningRule `json:"rules"`
			Count int                     `json:"count"`
		}
		decode(t, rec, &body)
		if body.Count != 1 || body.Rules[0].Name != "high-score" {
			t.Errorf("unexpected listing: %+v", body)
		}

		rec = ts.request(t, http.MethodGet, "/screening/rules/"+ruleID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		rec = ts.request(t, http.MethodGet, "/screening/rules/"+uuid.New().String(), nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for unknown rule, got %d", rec.Code)
		}
	})

	t.Run("delete reloads the engine", func(t *testing.T) {
		rec := ts.request(t, http.MethodDelete, "/screening/rules/"+ruleID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		rec = ts.request(t, http.MethodGet, "/screening/rules", nil)
		var body struct {
			Count int `json:"count"`
		}
		decode(t, rec, &body)
		if body.Count != 0 {
			t.Errorf("expected no loaded rules after delete, got %d", body.Count)
		}
	})

	t.Run("delete unknown rule", func(t *testing.T) {
		rec := ts.request(t, http.MethodDelete, "/screening/rules/"+uuid.New().String(), nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}
