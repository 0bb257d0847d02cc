package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (id, company_id, doc_type, status, overall_score, processing_path, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		doc.ID, doc.CompanyID, string(doc.DocType), string(doc.Status), doc.OverallScore,
		string(doc.ProcessingPath), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *DocumentStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, company_id, doc_type, status, overall_score, processing_path, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var docType, status, path string
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &docType, &status, &doc.OverallScore,
		&path, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.DocType = domain.DocumentType(docType)
	doc.Status = domain.DocumentStatus(status)
	doc.ProcessingPath = domain.ProcessingPath(path)
	return &doc, nil
}

func (s *DocumentStore) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireRowAffected(result, "document", id)
}

func (s *DocumentStore) SetRouting(ctx context.Context, id string, path domain.ProcessingPath, score float64, status domain.DocumentStatus) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE documents
SET processing_path = $2, overall_score = $3, status = $4, updated_at = $5
WHERE id = $1
`, id, string(path), score, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set document routing: %w", err)
	}
	return requireRowAffected(result, "document", id)
}

func (s *DocumentStore) SaveExtraction(ctx context.Context, id string, fields map[string]domain.FieldExtraction, stats domain.ExtractionStats) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal extraction fields: %w", err)
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal extraction stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO extractions (document_id, fields, stats, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (document_id) DO UPDATE SET fields = EXCLUDED.fields, stats = EXCLUDED.stats, updated_at = EXCLUDED.updated_at
`, id, fieldsJSON, statsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	return nil
}

func (s *DocumentStore) GetExtraction(ctx context.Context, id string) (map[string]domain.FieldExtraction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT fields FROM extractions WHERE document_id = $1`, id)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get extraction", fmt.Errorf("document_id=%s", id))
		}
		return nil, fmt.Errorf("scan extraction: %w", err)
	}
	return decodeFields(raw)
}

// decodeFields validates the stored JSON blob back into the typed field
// map on every read, so untyped JSON never crosses into the core.
func decodeFields(raw []byte) (map[string]domain.FieldExtraction, error) {
	var fields map[string]domain.FieldExtraction
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal extraction fields: %w", err)
	}
	return fields, nil
}

func requireRowAffected(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update "+entity, fmt.Errorf("id=%s", id))
	}
	return nil
}
