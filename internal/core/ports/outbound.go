package ports

import (
	"context"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

// DocumentStore persists document state and the extraction snapshot.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetRouting(ctx context.Context, id string, path domain.ProcessingPath, score float64, status domain.DocumentStatus) error
	SaveExtraction(ctx context.Context, id string, fields map[string]domain.FieldExtraction, stats domain.ExtractionStats) error
	GetExtraction(ctx context.Context, id string) (map[string]domain.FieldExtraction, error)
}

// QueueStore persists processing queue entries. Dequeue order follows
// priority DESC, entered_at ASC.
type QueueStore interface {
	Enqueue(ctx context.Context, entry *domain.QueueEntry) error
	NextPending(ctx context.Context, limit int) ([]domain.QueueEntry, error)
}

// CorrectionOutcome reports what an atomic correction write changed.
type CorrectionOutcome struct {
	DocumentID     string
	CompanyID      string
	ModifiedFields []string
	Corrections    []domain.Correction
	NewStatus      domain.DocumentStatus
}

// ResolveParams carries everything the atomic resolve step writes.
type ResolveParams struct {
	EscalationID string
	ResolvedBy   string
	Decision     domain.ResolutionDecision
	Notes        string
	Corrections  []domain.Correction
	Suggestion   *domain.RuleSuggestion
}

type ResolveOutcome struct {
	DocumentID   string
	Decision     domain.ResolutionDecision
	ResolvedAt   time.Time
	SuggestionID string
	Changes      []domain.FieldChange
}

// ReviewStore executes the state-changing review operations. Every method
// is one transaction: it re-checks the state-machine guards under a
// document row lock and either commits all of its writes or none.
type ReviewStore interface {
	// ApplyCorrections overwrites the named fields (value, confidence 100,
	// manual source), appends Correction records with the prior values,
	// marks matching rule applications inaccurate and moves a
	// pending_review document to in_review.
	ApplyCorrections(ctx context.Context, documentID string, corrections []domain.Correction) (*CorrectionOutcome, error)

	// CreateEscalation opens the escalation, sets the document to
	// escalated and completes its queue entry with the given notes.
	// Fails with ErrConflict when an open escalation already exists.
	CreateEscalation(ctx context.Context, esc *domain.Escalation, reviewNotes string) error

	// ResolveEscalation closes an open escalation, maps the decision onto
	// the document status, persists corrections and the review record,
	// marks unverified rule applications for the document accurate and
	// stores the optional rule suggestion.
	ResolveEscalation(ctx context.Context, params ResolveParams) (*ResolveOutcome, error)
}

// EscalationReader serves non-transactional escalation reads.
type EscalationReader interface {
	GetByID(ctx context.Context, id string) (*domain.Escalation, error)
	GetOpenByDocument(ctx context.Context, documentID string) (*domain.Escalation, error)
}

// CorrectionReader aggregates corrections for rule-suggestion evaluation.
type CorrectionReader interface {
	CountByCompanyField(ctx context.Context, companyID, fieldName string, since time.Time) (int, error)
}

// RuleStore persists mapping rules and their append-only version history.
type RuleStore interface {
	ListActive(ctx context.Context) ([]domain.MappingRule, error)
	GetByID(ctx context.Context, id string) (*domain.MappingRule, error)
	GetVersion(ctx context.Context, ruleID string, version int) (*domain.RuleVersion, error)
	CreateSuggestion(ctx context.Context, suggestion *domain.RuleSuggestion) error
}

// ApplicationStore persists rule applications, append-only.
type ApplicationStore interface {
	Append(ctx context.Context, app domain.RuleApplication) error
	// Sample aggregates verified applications for one rule version with
	// created_at >= since.
	Sample(ctx context.Context, ruleID string, version int, since time.Time) (domain.AccuracySample, error)
}

// RollbackStore guards and executes rule rollbacks.
type RollbackStore interface {
	LastForRule(ctx context.Context, ruleID string) (*domain.RollbackLog, error)
	// ExecuteRollback atomically appends the restored definition as a new
	// rule version, bumps the rule's active version and writes the
	// rollback log.
	ExecuteRollback(ctx context.Context, log domain.RollbackLog, restored domain.RuleVersion) error
}

// ExtractionProvider maps raw OCR output onto structured document fields
// using the active mapping rules.
type ExtractionProvider interface {
	MapFields(ocrText string, rules []domain.MappingRule, azureData map[string]any, companyID string) (map[string]domain.FieldExtraction, map[string]domain.UnmappedFieldDetail, domain.ExtractionStats)
}

// EventQueue transports scan and extraction events between services.
type EventQueue interface {
	PublishDocumentScanned(ctx context.Context, raw domain.RawDocument) error
	SubscribeDocumentScanned(ctx context.Context, handler func(context.Context, domain.RawDocument) error) error
	PublishDocumentExtracted(ctx context.Context, doc domain.ExtractedDocument) error
	SubscribeDocumentExtracted(ctx context.Context, handler func(context.Context, domain.ExtractedDocument) error) error
}

// NotificationSink accepts operator notifications, fire-and-forget.
type NotificationSink interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// AuditSink accepts structured audit events, fire-and-forget.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// Identity answers permission questions for acting users.
type Identity interface {
	CanResolveEscalations(ctx context.Context, userID string) (bool, error)
}

// TaskRunner runs best-effort side effects decoupled from the caller's
// transaction. Submitted tasks own their error handling.
type TaskRunner interface {
	Submit(name string, fn func(context.Context))
}
