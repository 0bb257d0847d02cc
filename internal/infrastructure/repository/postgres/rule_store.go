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

type RuleStore struct {
	db *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

const ruleQuery = `
SELECT id, company_id, field_name, field_label, pattern, priority, is_required, validation_pattern, category, version, active, created_at, updated_at
FROM mapping_rules
`

func (s *RuleStore) ListActive(ctx context.Context) ([]domain.MappingRule, error) {
	rows, err := s.db.QueryContext(ctx, ruleQuery+`WHERE active = TRUE ORDER BY priority DESC, field_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var out []domain.MappingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

func (s *RuleStore) GetByID(ctx context.Context, id string) (*domain.MappingRule, error) {
	rows, err := s.db.QueryContext(ctx, ruleQuery+`WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get rule: %w", err)
		}
		return nil, domain.WrapError(domain.ErrNotFound, "get rule", fmt.Errorf("id=%s", id))
	}
	return scanRule(rows)
}

func scanRule(rows *sql.Rows) (*domain.MappingRule, error) {
	var rule domain.MappingRule
	var companyID, validationPattern, category sql.NullString
	var patternJSON []byte
	err := rows.Scan(
		&rule.ID, &companyID, &rule.FieldName, &rule.FieldLabel, &patternJSON,
		&rule.Priority, &rule.IsRequired, &validationPattern, &category,
		&rule.Version, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	if err := json.Unmarshal(patternJSON, &rule.Pattern); err != nil {
		return nil, fmt.Errorf("unmarshal rule pattern: %w", err)
	}
	if err := rule.Pattern.Validate(); err != nil {
		return nil, fmt.Errorf("stored pattern for rule %s: %w", rule.ID, err)
	}
	rule.CompanyID = companyID.String
	rule.ValidationPattern = validationPattern.String
	rule.Category = category.String
	return &rule, nil
}

func (s *RuleStore) GetVersion(ctx context.Context, ruleID string, version int) (*domain.RuleVersion, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT rule_id, version, pattern, validation_pattern, note, created_by, created_at
FROM mapping_rule_versions
WHERE rule_id = $1 AND version = $2
`, ruleID, version)

	var rv domain.RuleVersion
	var patternJSON []byte
	var validationPattern, note, createdBy sql.NullString
	err := row.Scan(&rv.RuleID, &rv.Version, &patternJSON, &validationPattern, &note, &createdBy, &rv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get rule version", fmt.Errorf("rule=%s version=%d", ruleID, version))
		}
		return nil, fmt.Errorf("scan rule version: %w", err)
	}
	if err := json.Unmarshal(patternJSON, &rv.Pattern); err != nil {
		return nil, fmt.Errorf("unmarshal version pattern: %w", err)
	}
	rv.ValidationPattern = validationPattern.String
	rv.Note = note.String
	rv.CreatedBy = createdBy.String
	return &rv, nil
}

func (s *RuleStore) CreateSuggestion(ctx context.Context, suggestion *domain.RuleSuggestion) error {
	patternJSON, err := json.Marshal(suggestion.Pattern)
	if err != nil {
		return fmt.Errorf("marshal suggestion pattern: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO rule_suggestions (id, company_id, field_name, pattern, suggested_value, source_document_id, source_escalation_id, sample_count, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		suggestion.ID, suggestion.CompanyID, suggestion.FieldName, patternJSON,
		suggestion.SuggestedValue, suggestion.SourceDocumentID, suggestion.SourceEscalation,
		suggestion.SampleCount, string(suggestion.Status), suggestion.CreatedBy, suggestion.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rule suggestion: %w", err)
	}
	return nil
}

type ApplicationStore struct {
	db *sql.DB
}

func NewApplicationStore(db *sql.DB) *ApplicationStore {
	return &ApplicationStore{db: db}
}

func (s *ApplicationStore) Append(ctx context.Context, app domain.RuleApplication) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO rule_applications (id, rule_id, rule_version, document_id, field_name, extracted_value, is_accurate, verified_by, verified_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		app.ID, app.RuleID, app.RuleVersion, app.DocumentID, app.FieldName,
		app.Extracted, app.IsAccurate, app.VerifiedBy, app.VerifiedAt, app.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append rule application: %w", err)
	}
	return nil
}

// Sample counts verified applications and the accurate subset in one query,
// scoped to a rule version and the monitoring window.
func (s *ApplicationStore) Sample(ctx context.Context, ruleID string, version int, since time.Time) (domain.AccuracySample, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FILTER (WHERE is_accurate IS NOT NULL),
       COUNT(*) FILTER (WHERE is_accurate = TRUE)
FROM rule_applications
WHERE rule_id = $1 AND rule_version = $2 AND created_at >= $3
`, ruleID, version, since)

	var sample domain.AccuracySample
	if err := row.Scan(&sample.Verified, &sample.Accurate); err != nil {
		return domain.AccuracySample{}, fmt.Errorf("sample rule applications: %w", err)
	}
	return sample, nil
}

type RollbackStore struct {
	db *sql.DB
}

func NewRollbackStore(db *sql.DB) *RollbackStore {
	return &RollbackStore{db: db}
}

func (s *RollbackStore) LastForRule(ctx context.Context, ruleID string) (*domain.RollbackLog, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, rule_id, from_version, to_version, trigger, reason, accuracy_before, accuracy_after, created_at
FROM rollback_logs
WHERE rule_id = $1
ORDER BY created_at DESC
LIMIT 1
`, ruleID)

	var log domain.RollbackLog
	var trigger string
	err := row.Scan(
		&log.ID, &log.RuleID, &log.FromVersion, &log.ToVersion, &trigger,
		&log.Reason, &log.AccuracyBefore, &log.AccuracyAfter, &log.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan rollback log: %w", err)
	}
	log.Trigger = domain.RollbackTrigger(trigger)
	return &log, nil
}

// ExecuteRollback appends the restored definition as a new version, bumps
// the rule's active version and writes the log, all in one transaction. The
// rule row lock plus the from-version re-check defends against a concurrent
// rule edit between the engine's read and this write.
func (s *RollbackStore) ExecuteRollback(ctx context.Context, log domain.RollbackLog, restored domain.RuleVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollback tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var currentVersion int
	row := tx.QueryRowContext(ctx, `SELECT version FROM mapping_rules WHERE id = $1 FOR UPDATE`, log.RuleID)
	if err := row.Scan(&currentVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "rollback rule", fmt.Errorf("id=%s", log.RuleID))
		}
		return fmt.Errorf("lock rule: %w", err)
	}
	if currentVersion != log.FromVersion {
		return domain.WrapError(
			domain.ErrConflict,
			"rollback rule",
			fmt.Errorf("rule %s is at v%d, rollback targets v%d", log.RuleID, currentVersion, log.FromVersion),
		)
	}

	patternJSON, err := json.Marshal(restored.Pattern)
	if err != nil {
		return fmt.Errorf("marshal restored pattern: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO mapping_rule_versions (rule_id, version, pattern, validation_pattern, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		restored.RuleID, restored.Version, patternJSON, restored.ValidationPattern,
		restored.Note, restored.CreatedBy, restored.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert restored version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE mapping_rules
SET pattern = $2, validation_pattern = $3, version = $4, updated_at = $5
WHERE id = $1
`, restored.RuleID, patternJSON, restored.ValidationPattern, restored.Version, restored.CreatedAt)
	if err != nil {
		return fmt.Errorf("update rule definition: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO rollback_logs (id, rule_id, from_version, to_version, trigger, reason, accuracy_before, accuracy_after, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		log.ID, log.RuleID, log.FromVersion, log.ToVersion, string(log.Trigger),
		log.Reason, log.AccuracyBefore, log.AccuracyAfter, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rollback log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback tx: %w", err)
	}
	return nil
}
