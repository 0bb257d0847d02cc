package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

type QueueStore struct {
	db *sql.DB
}

func NewQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

func (s *QueueStore) Enqueue(ctx context.Context, entry *domain.QueueEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO processing_queue (id, document_id, processing_path, priority, entered_at, status, review_notes)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		entry.ID, entry.DocumentID, string(entry.Path), entry.Priority,
		entry.EnteredAt, string(entry.Status), entry.ReviewNotes,
	)
	if err != nil {
		return fmt.Errorf("enqueue document: %w", err)
	}
	return nil
}

// NextPending lists pending entries in dequeue order: priority DESC,
// entered_at ASC.
func (s *QueueStore) NextPending(ctx context.Context, limit int) ([]domain.QueueEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, processing_path, priority, entered_at, status, completed_at, review_notes
FROM processing_queue
WHERE status = $1
ORDER BY priority DESC, entered_at ASC
LIMIT $2
`, string(domain.QueuePending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending queue entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QueueEntry, 0, limit)
	for rows.Next() {
		var entry domain.QueueEntry
		var path, status string
		var notes sql.NullString
		err := rows.Scan(
			&entry.ID, &entry.DocumentID, &path, &entry.Priority,
			&entry.EnteredAt, &status, &entry.CompletedAt, &notes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entry.Path = domain.ProcessingPath(path)
		entry.Status = domain.QueueStatus(status)
		entry.ReviewNotes = notes.String
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}
	return out, nil
}
