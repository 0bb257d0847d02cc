package domain

import "time"

type ProcessingPath string

const (
	PathAutoApprove    ProcessingPath = "auto_approve"
	PathQuickReview    ProcessingPath = "quick_review"
	PathFullReview     ProcessingPath = "full_review"
	PathManualRequired ProcessingPath = "manual_required"
)

type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueCompleted QueueStatus = "completed"
)

// QueueEntry is one document awaiting reviewer action. Dequeue order is
// priority DESC, entered_at ASC.
type QueueEntry struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	Path        ProcessingPath `json:"processing_path"`
	Priority    int            `json:"priority"`
	EnteredAt   time.Time      `json:"entered_at"`
	Status      QueueStatus    `json:"status"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	ReviewNotes string         `json:"review_notes,omitempty"`
}

type CorrectionType string

const (
	CorrectionNormal    CorrectionType = "normal"
	CorrectionException CorrectionType = "exception"
)

// Correction is an immutable record of one human field fix.
type Correction struct {
	ID             string         `json:"id"`
	DocumentID     string         `json:"document_id"`
	FieldName      string         `json:"field_name"`
	OriginalValue  *string        `json:"original_value"`
	CorrectedValue string         `json:"corrected_value"`
	Type           CorrectionType `json:"correction_type"`
	CorrectedBy    string         `json:"corrected_by"`
	CreatedAt      time.Time      `json:"created_at"`
}

type EscalationReason string

const (
	ReasonUnclearDocument   EscalationReason = "unclear_document"
	ReasonDataInconsistency EscalationReason = "data_inconsistency"
	ReasonRuleConflict      EscalationReason = "rule_conflict"
	ReasonCompliance        EscalationReason = "compliance"
	ReasonOther             EscalationReason = "other"
)

// ReasonRequiresDetail reports whether the reason needs free-form detail
// text. The self-describing reasons do not.
func ReasonRequiresDetail(reason EscalationReason) bool {
	switch reason {
	case ReasonDataInconsistency, ReasonOther:
		return true
	default:
		return false
	}
}

func ValidEscalationReason(reason EscalationReason) bool {
	switch reason {
	case ReasonUnclearDocument, ReasonDataInconsistency, ReasonRuleConflict, ReasonCompliance, ReasonOther:
		return true
	default:
		return false
	}
}

type EscalationStatus string

const (
	EscalationOpen      EscalationStatus = "open"
	EscalationResolved  EscalationStatus = "resolved"
	EscalationCancelled EscalationStatus = "cancelled"
)

// Escalation hands a document to a higher-privilege reviewer. A document
// holds at most one open escalation at a time.
type Escalation struct {
	ID           string           `json:"id"`
	DocumentID   string           `json:"document_id"`
	Reason       EscalationReason `json:"reason"`
	ReasonDetail string           `json:"reason_detail,omitempty"`
	Status       EscalationStatus `json:"status"`
	EscalatedBy  string           `json:"escalated_by"`
	ResolvedBy   string           `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
	Resolution   string           `json:"resolution,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

type ResolutionDecision string

const (
	DecisionApproved  ResolutionDecision = "approved"
	DecisionCorrected ResolutionDecision = "corrected"
	DecisionRejected  ResolutionDecision = "rejected"
)

func ValidResolutionDecision(d ResolutionDecision) bool {
	switch d {
	case DecisionApproved, DecisionCorrected, DecisionRejected:
		return true
	default:
		return false
	}
}

// DocumentStatusForDecision maps a resolution decision to the terminal
// document status. A corrected document still counts as approved.
func DocumentStatusForDecision(d ResolutionDecision) DocumentStatus {
	if d == DecisionRejected {
		return StatusFailed
	}
	return StatusApproved
}

// FieldChange captures a before/after pair inside a review record.
type FieldChange struct {
	FieldName string  `json:"field_name"`
	Before    *string `json:"before"`
	After     string  `json:"after"`
}

// ReviewRecord is the audit trail of an escalation resolution.
type ReviewRecord struct {
	ID           string             `json:"id"`
	DocumentID   string             `json:"document_id"`
	EscalationID string             `json:"escalation_id"`
	ReviewedBy   string             `json:"reviewed_by"`
	Decision     ResolutionDecision `json:"decision"`
	Notes        string             `json:"notes,omitempty"`
	Changes      []FieldChange      `json:"changes,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Notification is the fire-and-forget payload for the notification sink.
type Notification struct {
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// AuditEvent is the fire-and-forget payload for the audit sink.
type AuditEvent struct {
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	IP         string         `json:"ip,omitempty"`
	At         time.Time      `json:"at"`
	Detail     map[string]any `json:"detail,omitempty"`
}
