package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/core/ports"
)

// IntakeUseCase scores and routes a document that finished extraction:
// persist the extraction snapshot, compute weighted confidence, assign the
// processing path, enqueue review work and record rule applications for the
// accuracy monitor.
type IntakeUseCase struct {
	docs  ports.DocumentStore
	queue ports.QueueStore
	apps  ports.ApplicationStore
	calc  *ConfidenceCalculator
	rt    *ProcessingRouter

	criticalFields []string
	historyWindow  time.Duration
	now            func() time.Time
}

func NewIntakeUseCase(
	docs ports.DocumentStore,
	queue ports.QueueStore,
	apps ports.ApplicationStore,
	criticalFields []string,
	historyWindow time.Duration,
) *IntakeUseCase {
	return &IntakeUseCase{
		docs:           docs,
		queue:          queue,
		apps:           apps,
		calc:           NewConfidenceCalculator(),
		rt:             NewProcessingRouter(),
		criticalFields: criticalFields,
		historyWindow:  historyWindow,
		now:            time.Now,
	}
}

func (uc *IntakeUseCase) IntakeExtracted(ctx context.Context, extracted domain.ExtractedDocument) (*ports.IntakeResult, error) {
	if extracted.DocumentID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "intake", errors.New("document id is required"))
	}
	if extracted.Fields == nil {
		return nil, domain.WrapError(domain.ErrValidation, "intake", errors.New("extraction field map is required"))
	}

	now := uc.now().UTC()
	doc := &domain.Document{
		ID:        extracted.DocumentID,
		CompanyID: extracted.CompanyID,
		DocType:   extracted.DocType,
		Status:    domain.StatusExtracted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := uc.docs.SaveExtraction(ctx, doc.ID, extracted.Fields, extracted.Stats); err != nil {
		return nil, fmt.Errorf("save extraction snapshot: %w", err)
	}

	histories := uc.loadHistories(ctx, extracted.Fields)
	confidence := uc.calc.CalculateWeightedDocumentConfidence(extracted.Fields, uc.criticalFields, histories)

	decision := uc.routeDocument(extracted, confidence)
	status := domain.StatusPendingReview
	if decision.Path == domain.PathAutoApprove {
		status = domain.StatusAutoApproved
	}

	if err := uc.docs.SetRouting(ctx, doc.ID, decision.Path, confidence.OverallScore, status); err != nil {
		return nil, fmt.Errorf("set routing: %w", err)
	}
	if status != domain.StatusAutoApproved {
		entry := &domain.QueueEntry{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Path:       decision.Path,
			Priority:   decision.Priority,
			EnteredAt:  now,
			Status:     domain.QueuePending,
		}
		if err := uc.queue.Enqueue(ctx, entry); err != nil {
			return nil, fmt.Errorf("enqueue document: %w", err)
		}
	}

	if err := uc.recordApplications(ctx, extracted, now); err != nil {
		return nil, fmt.Errorf("record rule applications: %w", err)
	}

	return &ports.IntakeResult{
		DocumentID: doc.ID,
		Confidence: confidence,
		Path:       decision.Path,
		Priority:   decision.Priority,
		Status:     status,
	}, nil
}

// routeDocument applies the confidence router, except for documents that
// failed identification upstream: those always go to manual review.
func (uc *IntakeUseCase) routeDocument(extracted domain.ExtractedDocument, confidence domain.DocumentConfidenceResult) RoutingDecision {
	if !extracted.Identified {
		return RoutingDecision{
			Path:     domain.PathManualRequired,
			Priority: PriorityForScore(confidence.OverallScore),
		}
	}
	return uc.rt.Route(confidence)
}

// loadHistories fetches the verified track record for every rule-produced
// field. History is an enrichment: a lookup failure downgrades that field
// to the default historical factor instead of failing intake.
func (uc *IntakeUseCase) loadHistories(ctx context.Context, fields map[string]domain.FieldExtraction) map[string]domain.FieldHistory {
	histories := make(map[string]domain.FieldHistory)
	since := uc.now().UTC().Add(-uc.historyWindow)
	for name, extraction := range fields {
		if extraction.RuleID == "" || !extraction.HasValue() {
			continue
		}
		sample, err := uc.apps.Sample(ctx, extraction.RuleID, extraction.RuleVersion, since)
		if err != nil || sample.Verified == 0 {
			continue
		}
		histories[name] = domain.FieldHistory{
			Accuracy:   sample.Accuracy(),
			SampleSize: sample.Verified,
		}
	}
	return histories
}

func (uc *IntakeUseCase) recordApplications(ctx context.Context, extracted domain.ExtractedDocument, now time.Time) error {
	for name, extraction := range extracted.Fields {
		if extraction.RuleID == "" || !extraction.HasValue() {
			continue
		}
		app := domain.RuleApplication{
			ID:          uuid.NewString(),
			RuleID:      extraction.RuleID,
			RuleVersion: extraction.RuleVersion,
			DocumentID:  extracted.DocumentID,
			FieldName:   name,
			Extracted:   *extraction.Value,
			CreatedAt:   now,
		}
		if err := uc.apps.Append(ctx, app); err != nil {
			return err
		}
	}
	return nil
}
