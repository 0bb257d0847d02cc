package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/core/ports"
)

// ReviewWorkflow drives a document through human review: corrections,
// escalation and resolution. Input shape is validated before any write; the
// stateful guards run inside the store's transaction under a document row
// lock. Notification, audit and rule-suggestion evaluation are best-effort
// background tasks and never fail the primary operation.
type ReviewWorkflow struct {
	store       ports.ReviewStore
	escalations ports.EscalationReader
	corrections ports.CorrectionReader
	rules       ports.RuleStore
	identity    ports.Identity
	notifier    ports.NotificationSink
	audit       ports.AuditSink
	tasks       ports.TaskRunner

	suggestionThreshold int
	suggestionWindow    time.Duration
	now                 func() time.Time
}

func NewReviewWorkflow(
	store ports.ReviewStore,
	escalations ports.EscalationReader,
	corrections ports.CorrectionReader,
	rules ports.RuleStore,
	identity ports.Identity,
	notifier ports.NotificationSink,
	audit ports.AuditSink,
	tasks ports.TaskRunner,
	suggestionThreshold int,
	suggestionWindow time.Duration,
) *ReviewWorkflow {
	return &ReviewWorkflow{
		store:               store,
		escalations:         escalations,
		corrections:         corrections,
		rules:               rules,
		identity:            identity,
		notifier:            notifier,
		audit:               audit,
		tasks:               tasks,
		suggestionThreshold: suggestionThreshold,
		suggestionWindow:    suggestionWindow,
		now:                 time.Now,
	}
}

func (wf *ReviewWorkflow) Correct(ctx context.Context, req ports.CorrectRequest) (*ports.CorrectResult, error) {
	corrections, err := wf.buildCorrections(req.DocumentID, req.Corrections, req.ActorID)
	if err != nil {
		return nil, err
	}

	outcome, err := wf.store.ApplyCorrections(ctx, req.DocumentID, corrections)
	if err != nil {
		return nil, fmt.Errorf("apply corrections: %w", err)
	}

	triggered := 0
	for _, correction := range outcome.Corrections {
		if correction.Type != domain.CorrectionNormal {
			continue
		}
		triggered++
		wf.submitSuggestionEvaluation(outcome.CompanyID, correction)
	}
	wf.submitAudit(req.ActorID, "document.correct", "document", req.DocumentID, map[string]any{
		"fields": outcome.ModifiedFields,
	})

	return &ports.CorrectResult{
		CorrectionCount:          len(outcome.Corrections),
		ModifiedFields:           outcome.ModifiedFields,
		RuleSuggestionsTriggered: triggered,
	}, nil
}

func (wf *ReviewWorkflow) buildCorrections(documentID string, requested []ports.FieldCorrection, actorID string) ([]domain.Correction, error) {
	if documentID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "correct", errors.New("document id is required"))
	}
	if actorID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "correct", errors.New("actor id is required"))
	}
	if len(requested) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "correct", errors.New("corrections list is empty"))
	}

	now := wf.now().UTC()
	corrections := make([]domain.Correction, 0, len(requested))
	for _, fc := range requested {
		if fc.FieldName == "" {
			return nil, domain.WrapError(domain.ErrValidation, "correct", errors.New("correction field name is required"))
		}
		correctionType := fc.Type
		if correctionType == "" {
			correctionType = domain.CorrectionNormal
		}
		if correctionType != domain.CorrectionNormal && correctionType != domain.CorrectionException {
			return nil, domain.WrapError(domain.ErrValidation, "correct", fmt.Errorf("unknown correction type %q", fc.Type))
		}
		corrections = append(corrections, domain.Correction{
			ID:             uuid.NewString(),
			DocumentID:     documentID,
			FieldName:      fc.FieldName,
			CorrectedValue: fc.CorrectedValue,
			Type:           correctionType,
			CorrectedBy:    actorID,
			CreatedAt:      now,
		})
	}
	return corrections, nil
}

func (wf *ReviewWorkflow) Escalate(ctx context.Context, req ports.EscalateRequest) (*ports.EscalateResult, error) {
	if req.DocumentID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "escalate", errors.New("document id is required"))
	}
	if req.ActorID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "escalate", errors.New("actor id is required"))
	}
	if !domain.ValidEscalationReason(req.Reason) {
		return nil, domain.WrapError(domain.ErrValidation, "escalate", fmt.Errorf("unknown escalation reason %q", req.Reason))
	}
	if domain.ReasonRequiresDetail(req.Reason) && req.ReasonDetail == "" {
		return nil, domain.WrapError(domain.ErrValidation, "escalate", fmt.Errorf("reason %q requires detail", req.Reason))
	}

	esc := &domain.Escalation{
		ID:           uuid.NewString(),
		DocumentID:   req.DocumentID,
		Reason:       req.Reason,
		ReasonDetail: req.ReasonDetail,
		Status:       domain.EscalationOpen,
		EscalatedBy:  req.ActorID,
		CreatedAt:    wf.now().UTC(),
	}
	reviewNotes := "escalated: " + string(req.Reason)
	if req.ReasonDetail != "" {
		reviewNotes += ": " + req.ReasonDetail
	}
	if err := wf.store.CreateEscalation(ctx, esc, reviewNotes); err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}

	wf.submitNotification(domain.Notification{
		Type:    "document_escalated",
		Title:   "Document escalated",
		Message: fmt.Sprintf("Document %s escalated (%s)", req.DocumentID, req.Reason),
		Data: map[string]any{
			"documentId":   req.DocumentID,
			"escalationId": esc.ID,
			"reason":       string(req.Reason),
		},
	})
	wf.submitAudit(req.ActorID, "document.escalate", "escalation", esc.ID, map[string]any{
		"documentId": req.DocumentID,
		"reason":     string(req.Reason),
	})

	return &ports.EscalateResult{EscalationID: esc.ID}, nil
}

func (wf *ReviewWorkflow) Resolve(ctx context.Context, req ports.ResolveRequest) (*ports.ResolveResult, error) {
	if req.EscalationID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "resolve", errors.New("escalation id is required"))
	}
	if req.ActorID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "resolve", errors.New("actor id is required"))
	}
	if !domain.ValidResolutionDecision(req.Decision) {
		return nil, domain.WrapError(domain.ErrValidation, "resolve", fmt.Errorf("unknown decision %q", req.Decision))
	}
	if req.Decision == domain.DecisionCorrected && len(req.Corrections) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "resolve", errors.New("decision corrected requires corrections"))
	}

	elevated, err := wf.identity.CanResolveEscalations(ctx, req.ActorID)
	if err != nil {
		return nil, fmt.Errorf("check resolve permission: %w", err)
	}
	if !elevated {
		return nil, domain.WrapError(domain.ErrUnauthorized, "resolve", errors.New("resolve escalations permission required"))
	}

	esc, err := wf.escalations.GetByID(ctx, req.EscalationID)
	if err != nil {
		return nil, fmt.Errorf("load escalation: %w", err)
	}

	var corrections []domain.Correction
	if len(req.Corrections) > 0 {
		corrections, err = wf.buildCorrections(esc.DocumentID, req.Corrections, req.ActorID)
		if err != nil {
			return nil, err
		}
	}
	if req.Suggestion != nil && req.Suggestion.Pattern != nil {
		if err := req.Suggestion.Pattern.Validate(); err != nil {
			return nil, err
		}
	}

	outcome, err := wf.store.ResolveEscalation(ctx, ports.ResolveParams{
		EscalationID: req.EscalationID,
		ResolvedBy:   req.ActorID,
		Decision:     req.Decision,
		Notes:        req.Notes,
		Corrections:  corrections,
		Suggestion:   req.Suggestion,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve escalation: %w", err)
	}

	wf.submitNotification(domain.Notification{
		Type:    "escalation_resolved",
		Title:   "Escalation resolved",
		Message: fmt.Sprintf("Escalation %s resolved: %s", req.EscalationID, req.Decision),
		Data: map[string]any{
			"documentId":   outcome.DocumentID,
			"escalationId": req.EscalationID,
			"decision":     string(req.Decision),
		},
	})
	wf.submitAudit(req.ActorID, "escalation.resolve", "escalation", req.EscalationID, map[string]any{
		"documentId": outcome.DocumentID,
		"decision":   string(req.Decision),
	})

	return &ports.ResolveResult{
		DocumentID:       outcome.DocumentID,
		Decision:         outcome.Decision,
		ResolvedAt:       outcome.ResolvedAt,
		RuleSuggestionID: outcome.SuggestionID,
	}, nil
}

// submitSuggestionEvaluation checks in the background whether accumulated
// corrections for the (company, field) pairing justify proposing a rule.
func (wf *ReviewWorkflow) submitSuggestionEvaluation(companyID string, correction domain.Correction) {
	wf.tasks.Submit("rule_suggestion_evaluation", func(ctx context.Context) {
		if companyID == "" {
			return
		}
		since := wf.now().UTC().Add(-wf.suggestionWindow)
		count, err := wf.corrections.CountByCompanyField(ctx, companyID, correction.FieldName, since)
		if err != nil {
			slog.Warn("rule_suggestion_count_failed", "company_id", companyID, "field", correction.FieldName, "error", err)
			return
		}
		if count < wf.suggestionThreshold {
			return
		}
		suggestion := &domain.RuleSuggestion{
			ID:               uuid.NewString(),
			CompanyID:        companyID,
			FieldName:        correction.FieldName,
			SuggestedValue:   correction.CorrectedValue,
			SourceDocumentID: correction.DocumentID,
			SampleCount:      count,
			Status:           domain.SuggestionPending,
			CreatedBy:        correction.CorrectedBy,
			CreatedAt:        wf.now().UTC(),
		}
		if err := wf.rules.CreateSuggestion(ctx, suggestion); err != nil {
			slog.Warn("rule_suggestion_create_failed", "company_id", companyID, "field", correction.FieldName, "error", err)
		}
	})
}

func (wf *ReviewWorkflow) submitNotification(n domain.Notification) {
	wf.tasks.Submit("notify", func(ctx context.Context) {
		if err := wf.notifier.Publish(ctx, n); err != nil {
			slog.Warn("notification_failed", "type", n.Type, "error", err)
		}
	})
}

func (wf *ReviewWorkflow) submitAudit(actor, action, entityType, entityID string, detail map[string]any) {
	event := domain.AuditEvent{
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		At:         wf.now().UTC(),
		Detail:     detail,
	}
	wf.tasks.Submit("audit", func(ctx context.Context) {
		if err := wf.audit.Record(ctx, event); err != nil {
			slog.Warn("audit_record_failed", "action", action, "entity_id", entityID, "error", err)
		}
	})
}
