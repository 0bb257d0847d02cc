package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

func TestSampleAggregatesVerifiedAndAccurateCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	store := &ApplicationStore{db: db}

	since := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectQuery("FROM rule_applications").
		WithArgs("rule-1", 3, since).
		WillReturnRows(sqlmock.NewRows([]string{"verified", "accurate"}).AddRow(20, 17))

	sample, err := store.Sample(context.Background(), "rule-1", 3, since)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if sample.Verified != 20 || sample.Accurate != 17 {
		t.Fatalf("expected 20/17, got %d/%d", sample.Verified, sample.Accurate)
	}
	if got := sample.Accuracy(); got != 0.85 {
		t.Fatalf("expected accuracy 0.85, got %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLastForRuleReturnsNilWithoutHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	store := &RollbackStore{db: db}

	mock.ExpectQuery("FROM rollback_logs").
		WithArgs("rule-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	log, err := store.LastForRule(context.Background(), "rule-1")
	if err != nil {
		t.Fatalf("LastForRule() error = %v", err)
	}
	if log != nil {
		t.Fatalf("expected nil log, got %+v", log)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestExecuteRollbackRejectsConcurrentVersionBump(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	store := &RollbackStore{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM mapping_rules").
		WithArgs("rule-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))
	mock.ExpectRollback()

	log := domain.RollbackLog{
		ID:          "rb-1",
		RuleID:      "rule-1",
		FromVersion: 3,
		ToVersion:   4,
		Trigger:     domain.TriggerAuto,
		Reason:      "accuracy drop",
		CreatedAt:   time.Now().UTC(),
	}
	restored := domain.RuleVersion{
		RuleID:    "rule-1",
		Version:   4,
		Pattern:   domain.ExtractionPattern{Method: domain.MethodRegex, Pattern: `INV-\d+`},
		CreatedAt: log.CreatedAt,
	}
	err = store.ExecuteRollback(context.Background(), log, restored)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
