package domain

import "time"

type ExtractionMethod string

const (
	MethodAzureField ExtractionMethod = "azure_field"
	MethodRegex      ExtractionMethod = "regex"
	MethodKeyword    ExtractionMethod = "keyword"
	MethodPosition   ExtractionMethod = "position"
	MethodLLM        ExtractionMethod = "llm"
)

// ConfidenceSource is the trust tier that produced a field value.
type ConfidenceSource string

const (
	SourceTier1  ConfidenceSource = "tier1" // universal mapping rules
	SourceTier2  ConfidenceSource = "tier2" // company-specific rules
	SourceTier3  ConfidenceSource = "tier3" // LLM classification
	SourceAzure  ConfidenceSource = "azure" // Azure Document Intelligence
	SourceManual ConfidenceSource = "manual" // human correction, highest trust
)

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type FieldPosition struct {
	Page        int          `json:"page"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
}

// FieldExtraction is one extracted field of a document. Value is nil when
// extraction produced nothing usable; RawValue keeps the unnormalized text.
type FieldExtraction struct {
	FieldName        string           `json:"fieldName"`
	Value            *string          `json:"value"`
	RawValue         string           `json:"rawValue,omitempty"`
	Confidence       float64          `json:"confidence,omitempty"`
	Source           ConfidenceSource `json:"source,omitempty"`
	ExtractionMethod ExtractionMethod `json:"extractionMethod"`
	RuleID           string           `json:"ruleId,omitempty"`
	RuleVersion      int              `json:"ruleVersion,omitempty"`
	IsValidated      *bool            `json:"isValidated,omitempty"`
	ValidationError  string           `json:"validationError,omitempty"`
	Position         *FieldPosition   `json:"position,omitempty"`
}

// HasValue reports whether the field carries a non-empty extracted value.
func (f FieldExtraction) HasValue() bool {
	return f.Value != nil && *f.Value != ""
}

type DocumentStatus string

const (
	StatusExtracted      DocumentStatus = "extracted"
	StatusAutoApproved   DocumentStatus = "auto_approved"
	StatusPendingReview  DocumentStatus = "pending_review"
	StatusInReview       DocumentStatus = "in_review"
	StatusEscalated      DocumentStatus = "escalated"
	StatusApproved       DocumentStatus = "approved"
	StatusFailed         DocumentStatus = "failed"
	StatusResolved       DocumentStatus = "resolved"
	StatusManualRequired DocumentStatus = "manual_required"
)

type DocumentType string

const (
	DocTypeInvoice DocumentType = "invoice"
	DocTypeWaybill DocumentType = "waybill"
)

type Document struct {
	ID             string         `json:"id"`
	CompanyID      string         `json:"company_id,omitempty"`
	DocType        DocumentType   `json:"doc_type"`
	Status         DocumentStatus `json:"status"`
	OverallScore   float64        `json:"overall_score,omitempty"`
	ProcessingPath ProcessingPath `json:"processing_path,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ExtractionStats summarizes one document's extraction run. Recovered from
// the upstream mapping service's statistics block.
type ExtractionStats struct {
	TotalFields       int     `json:"totalFields"`
	MappedFields      int     `json:"mappedFields"`
	UnmappedFields    int     `json:"unmappedFields"`
	AverageConfidence float64 `json:"averageConfidence"`
	ProcessingTimeMS  int64   `json:"processingTimeMs"`
	RulesApplied      int     `json:"rulesApplied"`
}

// UnmappedFieldDetail records why a field stayed unmapped and which
// extraction methods were attempted.
type UnmappedFieldDetail struct {
	Reason   string   `json:"reason"`
	Attempts []string `json:"attempts"`
}

// RawDocument is the event payload for a scan that still needs field
// mapping: OCR text plus the raw Azure Document Intelligence payload.
type RawDocument struct {
	DocumentID string         `json:"documentId"`
	CompanyID  string         `json:"companyId,omitempty"`
	DocType    DocumentType   `json:"docType"`
	OCRText    string         `json:"ocrText"`
	AzureData  map[string]any `json:"azureData,omitempty"`
	ScannedAt  time.Time      `json:"scannedAt"`
}

// ExtractedDocument is the event payload handed over by the extraction
// pipeline when a document finishes field mapping.
type ExtractedDocument struct {
	DocumentID  string                     `json:"documentId"`
	CompanyID   string                     `json:"companyId,omitempty"`
	DocType     DocumentType               `json:"docType"`
	Identified  bool                       `json:"identified"`
	Fields      map[string]FieldExtraction `json:"fields"`
	Stats       ExtractionStats            `json:"stats"`
	ExtractedAt time.Time                  `json:"extractedAt"`
}
