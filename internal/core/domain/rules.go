package domain

import (
	"errors"
	"time"
)

// ExtractionPattern is the tagged pattern variant attached to a mapping
// rule. Exactly the fields for Method are meaningful; Validate enforces
// that on the trust boundary so untyped JSON never reaches the mappers.
type ExtractionPattern struct {
	Method ExtractionMethod `json:"method" yaml:"method"`

	// regex
	Pattern    string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Flags      string `json:"flags,omitempty" yaml:"flags,omitempty"`
	GroupIndex int    `json:"groupIndex,omitempty" yaml:"groupIndex,omitempty"`

	// keyword
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	MaxDistance int      `json:"maxDistance,omitempty" yaml:"maxDistance,omitempty"`

	// azure_field
	AzureFieldName  string `json:"azureFieldName,omitempty" yaml:"azureFieldName,omitempty"`
	FallbackPattern string `json:"fallbackPattern,omitempty" yaml:"fallbackPattern,omitempty"`

	// position
	Page   int          `json:"page,omitempty" yaml:"page,omitempty"`
	Region *BoundingBox `json:"region,omitempty" yaml:"region,omitempty"`

	ConfidenceBoost float64 `json:"confidenceBoost,omitempty" yaml:"confidenceBoost,omitempty"`
}

func (p ExtractionPattern) Validate() error {
	switch p.Method {
	case MethodRegex:
		if p.Pattern == "" {
			return WrapError(ErrValidation, "pattern", errors.New("regex pattern is required"))
		}
	case MethodKeyword:
		if len(p.Keywords) == 0 {
			return WrapError(ErrValidation, "pattern", errors.New("keyword list is required"))
		}
	case MethodAzureField:
		if p.AzureFieldName == "" {
			return WrapError(ErrValidation, "pattern", errors.New("azure field name is required"))
		}
	case MethodPosition:
		if p.Region == nil {
			return WrapError(ErrValidation, "pattern", errors.New("position region is required"))
		}
	case MethodLLM:
		// no pattern payload
	default:
		return WrapError(ErrValidation, "pattern", errors.New("unknown extraction method: "+string(p.Method)))
	}
	return nil
}

// MappingRule extracts one field. Version points at the active definition in
// the append-only version history; rollback appends a new version rather
// than rewinding the counter.
type MappingRule struct {
	ID                string            `json:"id"`
	CompanyID         string            `json:"company_id,omitempty"`
	FieldName         string            `json:"field_name"`
	FieldLabel        string            `json:"field_label"`
	Pattern           ExtractionPattern `json:"pattern"`
	Priority          int               `json:"priority"`
	IsRequired        bool              `json:"is_required"`
	ValidationPattern string            `json:"validation_pattern,omitempty"`
	Category          string            `json:"category,omitempty"`
	Version           int               `json:"version"`
	Active            bool              `json:"active"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// RuleVersion is one immutable entry of a rule's definition history.
type RuleVersion struct {
	RuleID            string            `json:"rule_id"`
	Version           int               `json:"version"`
	Pattern           ExtractionPattern `json:"pattern"`
	ValidationPattern string            `json:"validation_pattern,omitempty"`
	Note              string            `json:"note,omitempty"`
	CreatedBy         string            `json:"created_by,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// RuleApplication records one rule producing one field value. IsAccurate
// stays nil until a human verifies or corrects the value. Append-only.
type RuleApplication struct {
	ID          string     `json:"id"`
	RuleID      string     `json:"rule_id"`
	RuleVersion int        `json:"rule_version"`
	DocumentID  string     `json:"document_id"`
	FieldName   string     `json:"field_name"`
	Extracted   string     `json:"extracted_value"`
	IsAccurate  *bool      `json:"is_accurate"`
	VerifiedBy  string     `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AccuracySample aggregates verified rule applications for one version.
type AccuracySample struct {
	Verified int `json:"verified"`
	Accurate int `json:"accurate"`
}

// Accuracy returns the accurate fraction. Callers must check Verified
// against the configured minimum sample size first.
func (s AccuracySample) Accuracy() float64 {
	if s.Verified == 0 {
		return 0
	}
	return float64(s.Accurate) / float64(s.Verified)
}

type RollbackTrigger string

const (
	TriggerAuto      RollbackTrigger = "auto"
	TriggerManual    RollbackTrigger = "manual"
	TriggerEmergency RollbackTrigger = "emergency"
)

// RollbackLog is the immutable record of one rule rollback.
type RollbackLog struct {
	ID             string          `json:"id"`
	RuleID         string          `json:"rule_id"`
	FromVersion    int             `json:"from_version"`
	ToVersion      int             `json:"to_version"`
	Trigger        RollbackTrigger `json:"trigger"`
	Reason         string          `json:"reason"`
	AccuracyBefore float64         `json:"accuracy_before"`
	AccuracyAfter  float64         `json:"accuracy_after"`
	CreatedAt      time.Time       `json:"created_at"`
}

type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// RuleSuggestion proposes a new or changed mapping rule, produced from
// accumulated corrections or an escalation resolution.
type RuleSuggestion struct {
	ID               string             `json:"id"`
	CompanyID        string             `json:"company_id"`
	FieldName        string             `json:"field_name"`
	Pattern          *ExtractionPattern `json:"pattern,omitempty"`
	SuggestedValue   string             `json:"suggested_value,omitempty"`
	SourceDocumentID string             `json:"source_document_id,omitempty"`
	SourceEscalation string             `json:"source_escalation_id,omitempty"`
	SampleCount      int                `json:"sample_count"`
	Status           SuggestionStatus   `json:"status"`
	CreatedBy        string             `json:"created_by,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// AccuracyDropResult compares a rule's current version against its
// immediately preceding one over the same wall-clock window.
type AccuracyDropResult struct {
	RuleID           string  `json:"rule_id"`
	CurrentVersion   int     `json:"current_version"`
	PreviousVersion  int     `json:"previous_version"`
	CurrentAccuracy  float64 `json:"current_accuracy"`
	PreviousAccuracy float64 `json:"previous_accuracy"`
	CurrentSamples   int     `json:"current_samples"`
	PreviousSamples  int     `json:"previous_samples"`
	Drop             float64 `json:"drop"`
	ShouldRollback   bool    `json:"should_rollback"`
	SkipReason       string  `json:"skip_reason,omitempty"`
}

// RuleMonitorError isolates one rule's failure inside a monitoring pass.
type RuleMonitorError struct {
	RuleID string `json:"rule_id"`
	Err    string `json:"error"`
}

type MonitoringResult struct {
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	Duration        time.Duration      `json:"duration"`
	RulesProcessed  int                `json:"rules_processed"`
	RulesSkipped    int                `json:"rules_skipped"`
	RulesRolledBack int                `json:"rules_rolled_back"`
	RuleAccuracies  map[string]float64 `json:"rule_accuracies,omitempty"`
	Errors          []RuleMonitorError `json:"errors,omitempty"`
}
