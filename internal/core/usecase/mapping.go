package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/core/ports"
)

// MappingUseCase runs the rule-based field mapper over a raw scan. It loads
// the active rules once per document so every field sees the same rule
// snapshot.
type MappingUseCase struct {
	rules    ports.RuleStore
	provider ports.ExtractionProvider
	now      func() time.Time
}

func NewMappingUseCase(rules ports.RuleStore, provider ports.ExtractionProvider) *MappingUseCase {
	return &MappingUseCase{
		rules:    rules,
		provider: provider,
		now:      time.Now,
	}
}

func (uc *MappingUseCase) MapScanned(ctx context.Context, raw domain.RawDocument) (*domain.ExtractedDocument, error) {
	if raw.DocumentID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "map scanned", errors.New("document id is required"))
	}
	if raw.OCRText == "" && len(raw.AzureData) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "map scanned", errors.New("ocr text or azure payload is required"))
	}

	rules, err := uc.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	fields, _, stats := uc.provider.MapFields(raw.OCRText, rules, raw.AzureData, raw.CompanyID)

	return &domain.ExtractedDocument{
		DocumentID:  raw.DocumentID,
		CompanyID:   raw.CompanyID,
		DocType:     raw.DocType,
		Identified:  raw.DocType != "",
		Fields:      fields,
		Stats:       stats,
		ExtractedAt: uc.now().UTC(),
	}, nil
}
