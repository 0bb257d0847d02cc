package ports

import (
	"context"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

// FieldCorrection is one requested field fix inside a Correct or Resolve
// call.
type FieldCorrection struct {
	FieldName      string                `json:"fieldName"`
	CorrectedValue string                `json:"correctedValue"`
	Type           domain.CorrectionType `json:"correctionType,omitempty"`
}

type CorrectRequest struct {
	DocumentID  string
	Corrections []FieldCorrection
	ActorID     string
}

type CorrectResult struct {
	CorrectionCount          int      `json:"correctionCount"`
	ModifiedFields           []string `json:"modifiedFields"`
	RuleSuggestionsTriggered int      `json:"ruleSuggestionsTriggered"`
}

type EscalateRequest struct {
	DocumentID   string
	Reason       domain.EscalationReason
	ReasonDetail string
	ActorID      string
}

type EscalateResult struct {
	EscalationID string `json:"escalationId"`
}

type ResolveRequest struct {
	EscalationID string
	Decision     domain.ResolutionDecision
	Corrections  []FieldCorrection
	Notes        string
	Suggestion   *domain.RuleSuggestion
	ActorID      string
}

type ResolveResult struct {
	DocumentID       string                    `json:"documentId"`
	Decision         domain.ResolutionDecision `json:"decision"`
	ResolvedAt       time.Time                 `json:"resolvedAt"`
	RuleSuggestionID string                    `json:"ruleSuggestionId,omitempty"`
}

// ReviewService is the inbound contract for the review workflow state
// machine.
type ReviewService interface {
	Correct(ctx context.Context, req CorrectRequest) (*CorrectResult, error)
	Escalate(ctx context.Context, req EscalateRequest) (*EscalateResult, error)
	Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error)
}

type IntakeResult struct {
	DocumentID string                          `json:"documentId"`
	Confidence domain.DocumentConfidenceResult `json:"confidence"`
	Path       domain.ProcessingPath           `json:"processingPath"`
	Priority   int                             `json:"priority"`
	Status     domain.DocumentStatus           `json:"status"`
}

// DocumentIntake scores and routes freshly extracted documents.
type DocumentIntake interface {
	IntakeExtracted(ctx context.Context, doc domain.ExtractedDocument) (*IntakeResult, error)
}

// ScanMapper turns a raw scan into an extracted document by running the
// active mapping rules against it.
type ScanMapper interface {
	MapScanned(ctx context.Context, raw domain.RawDocument) (*domain.ExtractedDocument, error)
}

// AccuracyMonitor is the inbound contract for the scheduled rule-accuracy
// pass and its drop detector.
type AccuracyMonitor interface {
	RunMonitoringPass(ctx context.Context) (*domain.MonitoringResult, error)
	DetectAccuracyDrop(ctx context.Context, ruleID string) (*domain.AccuracyDropResult, error)
}

// DocumentReader is the inbound read model for document state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetExtraction(ctx context.Context, id string) (map[string]domain.FieldExtraction, error)
}

// QueueReader serves the reviewer-facing work queue.
type QueueReader interface {
	NextPending(ctx context.Context, limit int) ([]domain.QueueEntry, error)
}
