package screening

import (
	"testing"
	"time"

	"github.com/openclinic/arpa/internal/domain"
)

func newRule(id, expression string) *domain.ScreeningRule {
	return &domain.ScreeningRule{
		ID:         id,
		Name:       id,
		Expression: expression,
		Severity:   domain.SeverityWarning,
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

func highScore() *domain.RiskScore {
	return &domain.RiskScore{
		ID:        "score-1",
		PatientID: "patient-1",
		Score:     82.5,
		RiskLevel: domain.RiskHigh,
		RiskFactors: domain.RiskFactors{
			DaysSinceLastVisit:  210,
			MedicationAdherence: 55,
			MissedDoseRate:      35,
		},
	}
}

func TestValidateRule(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	t.Run("valid expression", func(t *testing.T) {
		if err := engine.ValidateRule(newRule("r1", "score >= 70.0")); err != nil {
			t.Errorf("valid rule rejected: %v", err)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		if err := engine.ValidateRule(newRule("r2", "score >=> 70")); err == nil {
			t.Error("expected compile error")
		}
	})

	t.Run("unknown variable", func(t *testing.T) {
		if err := engine.ValidateRule(newRule("r3", "velocity > 10.0")); err == nil {
			t.Error("expected error for undeclared variable")
		}
	})

	t.Run("non-bool output rejected", func(t *testing.T) {
		if err := engine.ValidateRule(newRule("r4", "score + 1.0")); err == nil {
			t.Error("expected rejection of non-bool expression")
		}
	})

	t.Run("nil rule", func(t *testing.T) {
		if err := engine.ValidateRule(nil); err == nil {
			t.Error("expected error for nil rule")
		}
	})

	t.Run("validation does not load", func(t *testing.T) {
		if engine.RuleCount() != 0 {
			t.Errorf("ValidateRule must not load rules, count = %d", engine.RuleCount())
		}
	})
}

func TestEvaluate(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rules := []*domain.ScreeningRule{
		newRule("high-score", "score >= 70.0"),
		newRule("lost-to-followup", `evidence.daysSinceLastVisit >= 180 && risk_level == "HIGH"`),
		newRule("never-fires", "score > 100.0"),
	}
	if err := engine.ReloadRules(rules); err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}

	matches, err := engine.Evaluate(highScore())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}

	byRule := map[string]domain.ScreeningMatch{}
	for _, m := range matches {
		byRule[m.RuleID] = m
	}
	if _, ok := byRule["high-score"]; !ok {
		t.Error("high-score rule did not fire")
	}
	if _, ok := byRule["lost-to-followup"]; !ok {
		t.Error("lost-to-followup rule did not fire on evidence payload")
	}
	if _, ok := byRule["never-fires"]; ok {
		t.Error("never-fires rule matched unexpectedly")
	}

	for _, m := range matches {
		if m.PatientID != "patient-1" || m.ScoreID != "score-1" {
			t.Errorf("match missing score identity: %+v", m)
		}
		if m.Score != 82.5 || m.RiskLevel != domain.RiskHigh {
			t.Errorf("match missing score values: %+v", m)
		}
	}
}

func TestEvaluateNoRules(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	matches, err := engine.Evaluate(highScore())
	if err != nil {
		t.Errorf("Evaluate with no rules returned error: %v", err)
	}
	if matches != nil {
		t.Errorf("expected no matches, got %+v", matches)
	}
}

func TestEvaluateRuleErrorDoesNotStopOthers(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rules := []*domain.ScreeningRule{
		// Compiles, but fails at eval time: the evidence map has no such key
		newRule("broken", `evidence.noSuchField > 1.0`),
		newRule("high-score", "score >= 70.0"),
	}
	if err := engine.ReloadRules(rules); err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}

	matches, err := engine.Evaluate(highScore())
	if err == nil {
		t.Error("expected an evaluation error from the broken rule")
	}
	if len(matches) != 1 || matches[0].RuleID != "high-score" {
		t.Errorf("healthy rule should still match, got %+v", matches)
	}
}

func TestReloadRules(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	t.Run("skips disabled rules", func(t *testing.T) {
		disabled := newRule("disabled", "score >= 0.0")
		disabled.Enabled = false

		err := engine.ReloadRules([]*domain.ScreeningRule{
			newRule("enabled", "score >= 50.0"),
			disabled,
		})
		if err != nil {
			t.Fatalf("ReloadRules failed: %v", err)
		}
		if engine.RuleCount() != 1 {
			t.Errorf("expected 1 loaded rule, got %d", engine.RuleCount())
		}
	})

	t.Run("compile failure keeps previous set", func(t *testing.T) {
		err := engine.ReloadRules([]*domain.ScreeningRule{
			newRule("bad", "score >=>"),
		})
		if err == nil {
			t.Fatal("expected compile error")
		}
		if engine.RuleCount() != 1 {
			t.Errorf("previous rule set must survive a failed reload, count = %d", engine.RuleCount())
		}
	})

	t.Run("replaces the loaded set", func(t *testing.T) {
		err := engine.ReloadRules([]*domain.ScreeningRule{
			newRule("a", "score >= 10.0"),
			newRule("b", "score >= 20.0"),
		})
		if err != nil {
			t.Fatalf("ReloadRules failed: %v", err)
		}
		if engine.RuleCount() != 2 {
			t.Errorf("expected 2 rules after reload, got %d", engine.RuleCount())
		}
	})
}

func TestLoadRuleAndClose(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.LoadRule(newRule("single", "score >= 40.0")); err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}
	if engine.RuleCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RuleCount())
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "single" {
		t.Errorf("unexpected loaded rules: %+v", loaded)
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if engine.RuleCount() != 0 {
		t.Errorf("expected 0 rules after Close, got %d", engine.RuleCount())
	}
}
