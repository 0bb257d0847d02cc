package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/core/ports"
)

// ReviewStore runs the state-changing review operations. Each public method
// is a single transaction that re-checks the state-machine guards under a
// SELECT ... FOR UPDATE document lock, so concurrent reviewers serialize on
// the row and either commit everything or nothing.
type ReviewStore struct {
	db *sql.DB
}

func NewReviewStore(db *sql.DB) *ReviewStore {
	return &ReviewStore{db: db}
}

func (s *ReviewStore) ApplyCorrections(ctx context.Context, documentID string, corrections []domain.Correction) (*ports.CorrectionOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin corrections tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	doc, err := lockDocument(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.status != domain.StatusPendingReview && doc.status != domain.StatusInReview {
		return nil, domain.WrapError(
			domain.ErrConflict,
			"apply corrections",
			fmt.Errorf("document %s is %s, corrections need pending_review or in_review", documentID, doc.status),
		)
	}

	applied, _, err := applyFieldCorrections(ctx, tx, documentID, corrections)
	if err != nil {
		return nil, err
	}

	newStatus := doc.status
	if doc.status == domain.StatusPendingReview {
		newStatus = domain.StatusInReview
		if err := setDocumentStatus(ctx, tx, documentID, newStatus); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit corrections tx: %w", err)
	}
	return &ports.CorrectionOutcome{
		DocumentID:     documentID,
		CompanyID:      doc.companyID,
		ModifiedFields: applied.modifiedFields,
		Corrections:    applied.corrections,
		NewStatus:      newStatus,
	}, nil
}

func (s *ReviewStore) CreateEscalation(ctx context.Context, esc *domain.Escalation, reviewNotes string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin escalation tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	doc, err := lockDocument(ctx, tx, esc.DocumentID)
	if err != nil {
		return err
	}
	if doc.status != domain.StatusPendingReview && doc.status != domain.StatusInReview {
		return domain.WrapError(
			domain.ErrConflict,
			"create escalation",
			fmt.Errorf("document %s is %s, escalation needs pending_review or in_review", esc.DocumentID, doc.status),
		)
	}

	var existing string
	err = tx.QueryRowContext(ctx, `
SELECT id FROM escalations WHERE document_id = $1 AND status = $2
`, esc.DocumentID, string(domain.EscalationOpen)).Scan(&existing)
	switch {
	case err == nil:
		return domain.WrapError(
			domain.ErrConflict,
			"create escalation",
			fmt.Errorf("document %s already has open escalation %s", esc.DocumentID, existing),
		)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check open escalation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO escalations (id, document_id, reason, reason_detail, status, escalated_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		esc.ID, esc.DocumentID, string(esc.Reason), esc.ReasonDetail,
		string(esc.Status), esc.EscalatedBy, esc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}

	if err := setDocumentStatus(ctx, tx, esc.DocumentID, domain.StatusEscalated); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
UPDATE processing_queue
SET status = $2, completed_at = $3, review_notes = $4
WHERE document_id = $1 AND status = $5
`, esc.DocumentID, string(domain.QueueCompleted), time.Now().UTC(), reviewNotes, string(domain.QueuePending))
	if err != nil {
		return fmt.Errorf("complete queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit escalation tx: %w", err)
	}
	return nil
}

func (s *ReviewStore) ResolveEscalation(ctx context.Context, params ports.ResolveParams) (*ports.ResolveOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolve tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
SELECT id, document_id, status FROM escalations WHERE id = $1 FOR UPDATE
`, params.EscalationID)
	var escID, documentID, escStatus string
	if err := row.Scan(&escID, &documentID, &escStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "resolve escalation", fmt.Errorf("id=%s", params.EscalationID))
		}
		return nil, fmt.Errorf("lock escalation: %w", err)
	}
	if domain.EscalationStatus(escStatus) != domain.EscalationOpen {
		return nil, domain.WrapError(
			domain.ErrConflict,
			"resolve escalation",
			fmt.Errorf("escalation %s is %s, not open", escID, escStatus),
		)
	}

	doc, err := lockDocument(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}

	var changes []domain.FieldChange
	if len(params.Corrections) > 0 {
		_, fieldChanges, err := applyFieldCorrections(ctx, tx, documentID, params.Corrections)
		if err != nil {
			return nil, err
		}
		changes = fieldChanges
	}

	resolvedAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
UPDATE escalations
SET status = $2, resolved_by = $3, resolved_at = $4, resolution = $5
WHERE id = $1
`, escID, string(domain.EscalationResolved), params.ResolvedBy, resolvedAt, params.Notes)
	if err != nil {
		return nil, fmt.Errorf("close escalation: %w", err)
	}

	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("marshal field changes: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO review_records (id, document_id, escalation_id, reviewed_by, decision, notes, changes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, uuid.NewString(), documentID, escID, params.ResolvedBy, string(params.Decision), params.Notes, changesJSON, resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("insert review record: %w", err)
	}

	// A non-rejected resolution confirms every field the reviewer left
	// untouched, so remaining unverified applications count as accurate.
	if params.Decision != domain.DecisionRejected {
		_, err = tx.ExecContext(ctx, `
UPDATE rule_applications
SET is_accurate = TRUE, verified_by = $2, verified_at = $3
WHERE document_id = $1 AND is_accurate IS NULL
`, documentID, params.ResolvedBy, resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("confirm rule applications: %w", err)
		}
	}

	if err := setDocumentStatus(ctx, tx, documentID, domain.DocumentStatusForDecision(params.Decision)); err != nil {
		return nil, err
	}

	suggestionID := ""
	if params.Suggestion != nil && doc.companyID != "" {
		sg := params.Suggestion
		patternJSON, err := json.Marshal(sg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("marshal suggestion pattern: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO rule_suggestions (id, company_id, field_name, pattern, suggested_value, source_document_id, source_escalation_id, sample_count, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			sg.ID, doc.companyID, sg.FieldName, patternJSON, sg.SuggestedValue,
			documentID, escID, sg.SampleCount, string(sg.Status), sg.CreatedBy, resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert rule suggestion: %w", err)
		}
		suggestionID = sg.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resolve tx: %w", err)
	}
	return &ports.ResolveOutcome{
		DocumentID:   documentID,
		Decision:     params.Decision,
		ResolvedAt:   resolvedAt,
		SuggestionID: suggestionID,
		Changes:      changes,
	}, nil
}

type lockedDocument struct {
	companyID string
	status    domain.DocumentStatus
}

func lockDocument(ctx context.Context, tx *sql.Tx, documentID string) (*lockedDocument, error) {
	row := tx.QueryRowContext(ctx, `
SELECT company_id, status FROM documents WHERE id = $1 FOR UPDATE
`, documentID)
	var doc lockedDocument
	var status string
	if err := row.Scan(&doc.companyID, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "lock document", fmt.Errorf("id=%s", documentID))
		}
		return nil, fmt.Errorf("lock document: %w", err)
	}
	doc.status = domain.DocumentStatus(status)
	return &doc, nil
}

func setDocumentStatus(ctx context.Context, tx *sql.Tx, documentID string, status domain.DocumentStatus) error {
	_, err := tx.ExecContext(ctx, `
UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1
`, documentID, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

type appliedCorrections struct {
	modifiedFields []string
	corrections    []domain.Correction
}

// applyFieldCorrections mutates the extraction snapshot inside the caller's
// transaction. Unknown field names reject the whole batch before any write.
func applyFieldCorrections(ctx context.Context, tx *sql.Tx, documentID string, corrections []domain.Correction) (*appliedCorrections, []domain.FieldChange, error) {
	row := tx.QueryRowContext(ctx, `
SELECT fields FROM extractions WHERE document_id = $1 FOR UPDATE
`, documentID)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, domain.WrapError(domain.ErrNotFound, "load extraction", fmt.Errorf("document_id=%s", documentID))
		}
		return nil, nil, fmt.Errorf("lock extraction: %w", err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, nil, err
	}

	var unknown []string
	for _, c := range corrections {
		if _, ok := fields[c.FieldName]; !ok {
			unknown = append(unknown, c.FieldName)
		}
	}
	if len(unknown) > 0 {
		return nil, nil, domain.WrapError(
			domain.ErrUnknownField,
			"apply corrections",
			fmt.Errorf("fields not present in extraction: %s", strings.Join(unknown, ", ")),
		)
	}

	now := time.Now().UTC()
	applied := &appliedCorrections{
		modifiedFields: make([]string, 0, len(corrections)),
		corrections:    make([]domain.Correction, 0, len(corrections)),
	}
	changes := make([]domain.FieldChange, 0, len(corrections))
	validated := true
	for _, c := range corrections {
		field := fields[c.FieldName]

		c.OriginalValue = field.Value
		changes = append(changes, domain.FieldChange{
			FieldName: c.FieldName,
			Before:    field.Value,
			After:     c.CorrectedValue,
		})

		corrected := c.CorrectedValue
		field.Value = &corrected
		field.Confidence = 100
		field.Source = domain.SourceManual
		field.IsValidated = &validated
		field.ValidationError = ""
		fields[c.FieldName] = field

		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO corrections (id, document_id, field_name, original_value, corrected_value, correction_type, corrected_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
			c.ID, documentID, c.FieldName, c.OriginalValue, c.CorrectedValue,
			string(c.Type), c.CorrectedBy, c.CreatedAt,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("insert correction: %w", err)
		}

		// The corrected value proves the rule-extracted one was wrong.
		_, err = tx.ExecContext(ctx, `
UPDATE rule_applications
SET is_accurate = FALSE, verified_by = $3, verified_at = $4
WHERE document_id = $1 AND field_name = $2 AND is_accurate IS NULL
`, documentID, c.FieldName, c.CorrectedBy, now)
		if err != nil {
			return nil, nil, fmt.Errorf("mark rule application inaccurate: %w", err)
		}

		applied.modifiedFields = append(applied.modifiedFields, c.FieldName)
		applied.corrections = append(applied.corrections, c)
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal corrected fields: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
UPDATE extractions SET fields = $2, updated_at = $3 WHERE document_id = $1
`, documentID, fieldsJSON, now)
	if err != nil {
		return nil, nil, fmt.Errorf("save corrected fields: %w", err)
	}
	return applied, changes, nil
}

// EscalationStore serves escalation reads outside the review transactions.
type EscalationStore struct {
	db *sql.DB
}

func NewEscalationStore(db *sql.DB) *EscalationStore {
	return &EscalationStore{db: db}
}

func (s *EscalationStore) GetByID(ctx context.Context, id string) (*domain.Escalation, error) {
	return scanEscalation(s.db.QueryRowContext(ctx, escalationQuery+`WHERE id = $1`, id), "get escalation", id)
}

func (s *EscalationStore) GetOpenByDocument(ctx context.Context, documentID string) (*domain.Escalation, error) {
	row := s.db.QueryRowContext(ctx, escalationQuery+`WHERE document_id = $1 AND status = $2`, documentID, string(domain.EscalationOpen))
	return scanEscalation(row, "get open escalation", documentID)
}

const escalationQuery = `
SELECT id, document_id, reason, reason_detail, status, escalated_by, resolved_by, resolved_at, resolution, created_at
FROM escalations
`

func scanEscalation(row *sql.Row, op, id string) (*domain.Escalation, error) {
	var esc domain.Escalation
	var reason, status string
	var detail, resolvedBy, resolution sql.NullString
	err := row.Scan(
		&esc.ID, &esc.DocumentID, &reason, &detail, &status,
		&esc.EscalatedBy, &resolvedBy, &esc.ResolvedAt, &resolution, &esc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan escalation: %w", err)
	}
	esc.Reason = domain.EscalationReason(reason)
	esc.Status = domain.EscalationStatus(status)
	esc.ReasonDetail = detail.String
	esc.ResolvedBy = resolvedBy.String
	esc.Resolution = resolution.String
	return &esc, nil
}

// CorrectionStore aggregates correction history for rule-suggestion
// evaluation.
type CorrectionStore struct {
	db *sql.DB
}

func NewCorrectionStore(db *sql.DB) *CorrectionStore {
	return &CorrectionStore{db: db}
}

func (s *CorrectionStore) CountByCompanyField(ctx context.Context, companyID, fieldName string, since time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM corrections c
JOIN documents d ON d.id = c.document_id
WHERE d.company_id = $1 AND c.field_name = $2 AND c.created_at >= $3
`, companyID, fieldName, since)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count corrections: %w", err)
	}
	return count, nil
}
