package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

func TestRollbackRequiresPreviousVersion(t *testing.T) {
	rules := &fakeRules{byID: map[string]*domain.MappingRule{
		"rule-1": regexRule("rule-1", 1),
	}}
	engine := NewRollbackEngine(rules, &fakeRollbacks{last: map[string]*domain.RollbackLog{}}, &fakeNotifier{}, time.Hour)

	_, err := engine.Rollback(context.Background(), "rule-1", domain.TriggerManual, "test", 0.8, 0.9)
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for first version, got %v", err)
	}
}

func TestRollbackCooldownBlocksRepeat(t *testing.T) {
	rules := &fakeRules{byID: map[string]*domain.MappingRule{
		"rule-1": regexRule("rule-1", 3),
	}}
	rollbacks := &fakeRollbacks{last: map[string]*domain.RollbackLog{
		"rule-1": {ID: "rb-1", RuleID: "rule-1", CreatedAt: time.Now().UTC().Add(-5 * time.Minute)},
	}}
	engine := NewRollbackEngine(rules, rollbacks, &fakeNotifier{}, time.Hour)

	_, err := engine.Rollback(context.Background(), "rule-1", domain.TriggerAuto, "accuracy drop", 0.8, 0.95)
	if !domain.IsKind(err, domain.ErrCooldownActive) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	if len(rollbacks.executed) != 0 {
		t.Fatalf("cooldown must prevent the rollback write, got %+v", rollbacks.executed)
	}
}

func TestRollbackAppendsRestoredVersion(t *testing.T) {
	previousPattern := domain.ExtractionPattern{Method: domain.MethodKeyword, Keywords: []string{"Invoice No"}}
	rules := &fakeRules{
		byID: map[string]*domain.MappingRule{
			"rule-1": regexRule("rule-1", 3),
		},
		versions: map[int]*domain.RuleVersion{
			2: {RuleID: "rule-1", Version: 2, Pattern: previousPattern, ValidationPattern: `INV-\d+`},
		},
	}
	rollbacks := &fakeRollbacks{last: map[string]*domain.RollbackLog{}}
	notifier := &fakeNotifier{}
	engine := NewRollbackEngine(rules, rollbacks, notifier, time.Hour)

	log, err := engine.Rollback(context.Background(), "rule-1", domain.TriggerAuto, "accuracy drop", 0.80, 0.95)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if log.FromVersion != 3 || log.ToVersion != 4 {
		t.Fatalf("expected rollback v3 -> v4, got %+v", log)
	}
	if log.AccuracyBefore != 0.80 || log.AccuracyAfter != 0.95 {
		t.Fatalf("expected accuracy pair in log, got %+v", log)
	}

	if len(rollbacks.restored) != 1 {
		t.Fatalf("expected one restored version, got %d", len(rollbacks.restored))
	}
	restored := rollbacks.restored[0]
	// History stays append-only: the restore is a brand new version that
	// copies the previous definition, never a counter rewind.
	if restored.Version != 4 {
		t.Fatalf("expected restored version 4, got %d", restored.Version)
	}
	if restored.Pattern.Method != domain.MethodKeyword || restored.ValidationPattern != `INV-\d+` {
		t.Fatalf("expected previous definition restored, got %+v", restored)
	}

	if len(notifier.published) != 1 || notifier.published[0].Type != "RULE_AUTO_ROLLBACK" {
		t.Fatalf("expected rollback notification, got %+v", notifier.published)
	}
}
