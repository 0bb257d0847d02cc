package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/core/ports"
)

// RollbackEngine reverts a rule's active definition to its previous
// version. The rollback itself becomes a new version so the history stays
// fully auditable. Attempts for the same rule are serialized and guarded by
// a cooldown window.
type RollbackEngine struct {
	rules     ports.RuleStore
	rollbacks ports.RollbackStore
	notifier  ports.NotificationSink

	cooldown time.Duration
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRollbackEngine(
	rules ports.RuleStore,
	rollbacks ports.RollbackStore,
	notifier ports.NotificationSink,
	cooldown time.Duration,
) *RollbackEngine {
	return &RollbackEngine{
		rules:     rules,
		rollbacks: rollbacks,
		notifier:  notifier,
		cooldown:  cooldown,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (e *RollbackEngine) ruleLock(ruleID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[ruleID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[ruleID] = lock
	}
	return lock
}

// Rollback reverts ruleID to its previous version's definition.
// accuracyBefore/accuracyAfter are the measured accuracy of the version
// being rolled back and of the version being restored.
func (e *RollbackEngine) Rollback(
	ctx context.Context,
	ruleID string,
	trigger domain.RollbackTrigger,
	reason string,
	accuracyBefore, accuracyAfter float64,
) (*domain.RollbackLog, error) {
	lock := e.ruleLock(ruleID)
	lock.Lock()
	defer lock.Unlock()

	rule, err := e.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("load rule: %w", err)
	}
	if rule.Version < 2 {
		return nil, domain.WrapError(domain.ErrValidation, "rollback", errors.New("rule has no previous version"))
	}

	now := e.now().UTC()
	last, err := e.rollbacks.LastForRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("check rollback history: %w", err)
	}
	if last != nil && now.Sub(last.CreatedAt) < e.cooldown {
		return nil, domain.WrapError(
			domain.ErrCooldownActive,
			"rollback",
			fmt.Errorf("last rollback for rule %s at %s", ruleID, last.CreatedAt.Format(time.RFC3339)),
		)
	}

	previous, err := e.rules.GetVersion(ctx, ruleID, rule.Version-1)
	if err != nil {
		return nil, fmt.Errorf("load previous version: %w", err)
	}

	restored := domain.RuleVersion{
		RuleID:            ruleID,
		Version:           rule.Version + 1,
		Pattern:           previous.Pattern,
		ValidationPattern: previous.ValidationPattern,
		Note:              fmt.Sprintf("rollback of v%d, restores v%d", rule.Version, previous.Version),
		CreatedBy:         string(trigger),
		CreatedAt:         now,
	}
	log := domain.RollbackLog{
		ID:             uuid.NewString(),
		RuleID:         ruleID,
		FromVersion:    rule.Version,
		ToVersion:      restored.Version,
		Trigger:        trigger,
		Reason:         reason,
		AccuracyBefore: accuracyBefore,
		AccuracyAfter:  accuracyAfter,
		CreatedAt:      now,
	}
	if err := e.rollbacks.ExecuteRollback(ctx, log, restored); err != nil {
		return nil, fmt.Errorf("execute rollback: %w", err)
	}

	notification := domain.Notification{
		Type:  "RULE_AUTO_ROLLBACK",
		Title: "Mapping rule rolled back",
		Message: fmt.Sprintf(
			"Rule %s (%s) rolled back v%d -> v%d, accuracy drop %.2f",
			rule.FieldLabel, ruleID, log.FromVersion, log.ToVersion, accuracyAfter-accuracyBefore,
		),
		Data: map[string]any{
			"ruleId":         ruleID,
			"ruleName":       rule.FieldLabel,
			"fromVersion":    log.FromVersion,
			"toVersion":      log.ToVersion,
			"trigger":        string(trigger),
			"accuracyBefore": accuracyBefore,
			"accuracyAfter":  accuracyAfter,
		},
	}
	if err := e.notifier.Publish(ctx, notification); err != nil {
		slog.Warn("rollback_notification_failed", "rule_id", ruleID, "error", err)
	}

	return &log, nil
}
