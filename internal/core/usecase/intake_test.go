package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

type fakeDocuments struct {
	created    []*domain.Document
	extraction map[string]domain.FieldExtraction
	routedPath domain.ProcessingPath
	routedTo   domain.DocumentStatus
	score      float64
}

func (f *fakeDocuments) Create(_ context.Context, doc *domain.Document) error {
	f.created = append(f.created, doc)
	return nil
}

func (f *fakeDocuments) GetByID(_ context.Context, _ string) (*domain.Document, error) {
	return nil, domain.WrapError(domain.ErrNotFound, "get document", errNotFoundFixture)
}

func (f *fakeDocuments) UpdateStatus(_ context.Context, _ string, _ domain.DocumentStatus, _ string) error {
	return nil
}

func (f *fakeDocuments) SetRouting(_ context.Context, _ string, path domain.ProcessingPath, score float64, status domain.DocumentStatus) error {
	f.routedPath = path
	f.score = score
	f.routedTo = status
	return nil
}

func (f *fakeDocuments) SaveExtraction(_ context.Context, _ string, fields map[string]domain.FieldExtraction, _ domain.ExtractionStats) error {
	f.extraction = fields
	return nil
}

func (f *fakeDocuments) GetExtraction(_ context.Context, _ string) (map[string]domain.FieldExtraction, error) {
	return f.extraction, nil
}

type fakeQueueEntries struct {
	entries []domain.QueueEntry
}

func (f *fakeQueueEntries) Enqueue(_ context.Context, entry *domain.QueueEntry) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeQueueEntries) NextPending(_ context.Context, _ int) ([]domain.QueueEntry, error) {
	return f.entries, nil
}

func highConfidenceField(name string) domain.FieldExtraction {
	return domain.FieldExtraction{
		FieldName:        name,
		Value:            strPtr("INV-001"),
		Confidence:       98,
		ExtractionMethod: domain.MethodAzureField,
		RuleID:           "rule-1",
		RuleVersion:      2,
		IsValidated:      boolPtr(true),
	}
}

func newIntakeFixture() (*IntakeUseCase, *fakeDocuments, *fakeQueueEntries, *fakeApplications) {
	docs := &fakeDocuments{}
	queue := &fakeQueueEntries{}
	apps := &fakeApplications{samples: map[sampleKey]domain.AccuracySample{}}
	uc := NewIntakeUseCase(docs, queue, apps, []string{"invoice_number", "total_amount"}, 30*24*time.Hour)
	return uc, docs, queue, apps
}

func TestIntakeValidatesEvent(t *testing.T) {
	uc, _, _, _ := newIntakeFixture()

	_, err := uc.IntakeExtracted(context.Background(), domain.ExtractedDocument{
		Fields: map[string]domain.FieldExtraction{},
	})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing document id, got %v", err)
	}

	_, err = uc.IntakeExtracted(context.Background(), domain.ExtractedDocument{DocumentID: "doc-1"})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing field map, got %v", err)
	}
}

func TestIntakeAutoApproveSkipsQueue(t *testing.T) {
	uc, docs, queue, apps := newIntakeFixture()

	result, err := uc.IntakeExtracted(context.Background(), domain.ExtractedDocument{
		DocumentID: "doc-1",
		DocType:    domain.DocTypeInvoice,
		Identified: true,
		Fields: map[string]domain.FieldExtraction{
			"invoice_number": highConfidenceField("invoice_number"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.StatusAutoApproved || result.Path != domain.PathAutoApprove {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(queue.entries) != 0 {
		t.Fatalf("auto-approved documents must not enter the review queue, got %+v", queue.entries)
	}
	if docs.routedTo != domain.StatusAutoApproved {
		t.Fatalf("expected auto_approved routing status, got %s", docs.routedTo)
	}
	if len(apps.appended) != 1 || apps.appended[0].RuleID != "rule-1" || apps.appended[0].RuleVersion != 2 {
		t.Fatalf("expected one rule application record, got %+v", apps.appended)
	}
	if apps.appended[0].IsAccurate != nil {
		t.Fatalf("fresh applications must stay unverified")
	}
}

func TestIntakeLowConfidenceEntersQueue(t *testing.T) {
	uc, _, queue, _ := newIntakeFixture()

	result, err := uc.IntakeExtracted(context.Background(), domain.ExtractedDocument{
		DocumentID: "doc-2",
		DocType:    domain.DocTypeWaybill,
		Identified: true,
		Fields: map[string]domain.FieldExtraction{
			"gross_weight": {
				FieldName:        "gross_weight",
				Value:            strPtr("1250"),
				Confidence:       45,
				ExtractionMethod: domain.MethodKeyword,
				IsValidated:      boolPtr(false),
				ValidationError:  "weight format mismatch",
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.StatusPendingReview || result.Path != domain.PathFullReview {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(queue.entries) != 1 {
		t.Fatalf("expected one queue entry, got %d", len(queue.entries))
	}
	entry := queue.entries[0]
	if entry.DocumentID != "doc-2" || entry.Status != domain.QueuePending {
		t.Fatalf("unexpected queue entry: %+v", entry)
	}
	if entry.Priority != PriorityForScore(result.Confidence.OverallScore) {
		t.Fatalf("expected inverted-score priority, got %d", entry.Priority)
	}
}

func TestIntakeUnidentifiedRequiresManualReview(t *testing.T) {
	uc, _, queue, _ := newIntakeFixture()

	result, err := uc.IntakeExtracted(context.Background(), domain.ExtractedDocument{
		DocumentID: "doc-3",
		Identified: false,
		Fields: map[string]domain.FieldExtraction{
			"invoice_number": highConfidenceField("invoice_number"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// High confidence never overrides a failed identification.
	if result.Path != domain.PathManualRequired || result.Status != domain.StatusPendingReview {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(queue.entries) != 1 || queue.entries[0].Path != domain.PathManualRequired {
		t.Fatalf("expected manual_required queue entry, got %+v", queue.entries)
	}
}

func TestIntakeUsesVerifiedHistory(t *testing.T) {
	uc, _, _, apps := newIntakeFixture()
	// A poor verified track record must pull the score down from the
	// 85-point default blend.
	apps.samples[sampleKey{"rule-1", 2}] = domain.AccuracySample{Verified: 100, Accurate: 40}

	withHistory, err := uc.IntakeExtracted(context.Background(), domain.ExtractedDocument{
		DocumentID: "doc-4",
		Identified: true,
		Fields: map[string]domain.FieldExtraction{
			"invoice_number": highConfidenceField("invoice_number"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 98*0.30 + 100*0.30 + 100*0.25 + 40*0.15 = 90.40
	if withHistory.Confidence.OverallScore != 90.40 {
		t.Fatalf("expected history-adjusted score 90.40, got %v", withHistory.Confidence.OverallScore)
	}
}
