package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/core/ports"
)

// MonitorConfig tunes the scheduled accuracy pass.
type MonitorConfig struct {
	WindowHours   int
	MinSampleSize int
	DropThreshold float64
	MaxParallel   int
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		WindowHours:   24,
		MinSampleSize: 10,
		DropThreshold: 0.10,
		MaxParallel:   4,
	}
}

func (c MonitorConfig) normalize() MonitorConfig {
	out := c
	def := DefaultMonitorConfig()
	if out.WindowHours <= 0 {
		out.WindowHours = def.WindowHours
	}
	if out.MinSampleSize <= 0 {
		out.MinSampleSize = def.MinSampleSize
	}
	if out.DropThreshold <= 0 {
		out.DropThreshold = def.DropThreshold
	}
	if out.MaxParallel <= 0 {
		out.MaxParallel = def.MaxParallel
	}
	return out
}

// AccuracyMonitorUseCase aggregates verified rule applications into
// per-version accuracy and triggers the rollback engine when a rule's
// current version regresses against its predecessor. A pass never overlaps
// with itself; rules are evaluated in parallel with per-rule failure
// isolation.
type AccuracyMonitorUseCase struct {
	rules    ports.RuleStore
	apps     ports.ApplicationStore
	engine   *RollbackEngine
	cfg      MonitorConfig
	now      func() time.Time
	passLock sync.Mutex
}

func NewAccuracyMonitorUseCase(
	rules ports.RuleStore,
	apps ports.ApplicationStore,
	engine *RollbackEngine,
	cfg MonitorConfig,
) *AccuracyMonitorUseCase {
	return &AccuracyMonitorUseCase{
		rules:  rules,
		apps:   apps,
		engine: engine,
		cfg:    cfg.normalize(),
		now:    time.Now,
	}
}

// ComputeAccuracy returns the accurate fraction among verified applications
// of one rule version within the window. Below MinSampleSize it returns
// ErrInsufficientData: a skip signal, not a failure.
func (uc *AccuracyMonitorUseCase) ComputeAccuracy(ctx context.Context, ruleID string, version, windowHours int) (float64, error) {
	since := uc.now().UTC().Add(-time.Duration(windowHours) * time.Hour)
	sample, err := uc.apps.Sample(ctx, ruleID, version, since)
	if err != nil {
		return 0, fmt.Errorf("sample rule applications: %w", err)
	}
	if sample.Verified < uc.cfg.MinSampleSize {
		return 0, domain.WrapError(
			domain.ErrInsufficientData,
			"compute accuracy",
			fmt.Errorf("rule %s v%d has %d verified samples, need %d", ruleID, version, sample.Verified, uc.cfg.MinSampleSize),
		)
	}
	return sample.Accuracy(), nil
}

// DetectAccuracyDrop compares the rule's current version against its
// immediately preceding version. Both versions use the same wall-clock
// window; only applications tagged with the respective version count.
func (uc *AccuracyMonitorUseCase) DetectAccuracyDrop(ctx context.Context, ruleID string) (*domain.AccuracyDropResult, error) {
	rule, err := uc.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("load rule: %w", err)
	}

	result := &domain.AccuracyDropResult{
		RuleID:          ruleID,
		CurrentVersion:  rule.Version,
		PreviousVersion: rule.Version - 1,
	}
	if rule.Version < 2 {
		result.PreviousVersion = 0
		result.SkipReason = "no previous version"
		return result, nil
	}

	since := uc.now().UTC().Add(-time.Duration(uc.cfg.WindowHours) * time.Hour)
	current, err := uc.apps.Sample(ctx, ruleID, rule.Version, since)
	if err != nil {
		return nil, fmt.Errorf("sample current version: %w", err)
	}
	previous, err := uc.apps.Sample(ctx, ruleID, rule.Version-1, since)
	if err != nil {
		return nil, fmt.Errorf("sample previous version: %w", err)
	}

	result.CurrentSamples = current.Verified
	result.PreviousSamples = previous.Verified
	result.CurrentAccuracy = current.Accuracy()
	result.PreviousAccuracy = previous.Accuracy()

	if current.Verified < uc.cfg.MinSampleSize || previous.Verified < uc.cfg.MinSampleSize {
		result.SkipReason = "insufficient data"
		return result, nil
	}

	result.Drop = previous.Accuracy() - current.Accuracy()
	result.ShouldRollback = result.Drop >= uc.cfg.DropThreshold
	return result, nil
}

// RunMonitoringPass evaluates every active rule once. A concurrent trigger
// while a pass is running is rejected, not queued.
func (uc *AccuracyMonitorUseCase) RunMonitoringPass(ctx context.Context) (*domain.MonitoringResult, error) {
	if !uc.passLock.TryLock() {
		return nil, domain.WrapError(domain.ErrConflict, "monitoring pass", fmt.Errorf("a pass is already running"))
	}
	defer uc.passLock.Unlock()

	started := uc.now().UTC()
	rules, err := uc.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	result := &domain.MonitoringResult{
		StartedAt:      started,
		RuleAccuracies: make(map[string]float64),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, uc.cfg.MaxParallel)
	)
	for _, rule := range rules {
		wg.Add(1)
		sem <- struct{}{}
		go func(rule domain.MappingRule) {
			defer wg.Done()
			defer func() { <-sem }()

			drop, rolledBack, skipped, ruleErr := uc.evaluateRule(ctx, rule)

			mu.Lock()
			defer mu.Unlock()
			result.RulesProcessed++
			if ruleErr == nil && !skipped && drop != nil {
				result.RuleAccuracies[rule.ID] = drop.CurrentAccuracy
			}
			if skipped {
				result.RulesSkipped++
			}
			if rolledBack {
				result.RulesRolledBack++
			}
			if ruleErr != nil {
				result.Errors = append(result.Errors, domain.RuleMonitorError{
					RuleID: rule.ID,
					Err:    ruleErr.Error(),
				})
			}
		}(rule)
	}
	wg.Wait()

	result.FinishedAt = uc.now().UTC()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	return result, nil
}

// evaluateRule isolates one rule's evaluation so a single failure cannot
// abort the pass. A cooldown-suppressed rollback is reported as an error
// entry, never a silent no-op.
func (uc *AccuracyMonitorUseCase) evaluateRule(ctx context.Context, rule domain.MappingRule) (drop *domain.AccuracyDropResult, rolledBack, skipped bool, err error) {
	drop, err = uc.DetectAccuracyDrop(ctx, rule.ID)
	if err != nil {
		return nil, false, false, err
	}
	if drop.SkipReason != "" {
		return drop, false, true, nil
	}
	if !drop.ShouldRollback {
		return drop, false, false, nil
	}

	reason := fmt.Sprintf(
		"accuracy dropped %.2f (v%d %.2f -> v%d %.2f) over %dh window",
		drop.Drop, drop.PreviousVersion, drop.PreviousAccuracy,
		drop.CurrentVersion, drop.CurrentAccuracy, uc.cfg.WindowHours,
	)
	_, err = uc.engine.Rollback(ctx, rule.ID, domain.TriggerAuto, reason, drop.CurrentAccuracy, drop.PreviousAccuracy)
	if err != nil {
		return drop, false, false, err
	}
	return drop, true, false, nil
}
