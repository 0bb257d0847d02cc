package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/core/ports"
)

type fakeReviewStore struct {
	applyFn    func(ctx context.Context, documentID string, corrections []domain.Correction) (*ports.CorrectionOutcome, error)
	escalateFn func(ctx context.Context, esc *domain.Escalation, reviewNotes string) error
	resolveFn  func(ctx context.Context, params ports.ResolveParams) (*ports.ResolveOutcome, error)
}

func (f *fakeReviewStore) ApplyCorrections(ctx context.Context, documentID string, corrections []domain.Correction) (*ports.CorrectionOutcome, error) {
	return f.applyFn(ctx, documentID, corrections)
}

func (f *fakeReviewStore) CreateEscalation(ctx context.Context, esc *domain.Escalation, reviewNotes string) error {
	return f.escalateFn(ctx, esc, reviewNotes)
}

func (f *fakeReviewStore) ResolveEscalation(ctx context.Context, params ports.ResolveParams) (*ports.ResolveOutcome, error) {
	return f.resolveFn(ctx, params)
}

type fakeEscalations struct {
	byID map[string]*domain.Escalation
}

func (f *fakeEscalations) GetByID(_ context.Context, id string) (*domain.Escalation, error) {
	esc, ok := f.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get escalation", errNotFoundFixture)
	}
	return esc, nil
}

func (f *fakeEscalations) GetOpenByDocument(_ context.Context, _ string) (*domain.Escalation, error) {
	return nil, domain.WrapError(domain.ErrNotFound, "get escalation", errNotFoundFixture)
}

type fakeCorrections struct {
	count int
	err   error
}

func (f *fakeCorrections) CountByCompanyField(_ context.Context, _, _ string, _ time.Time) (int, error) {
	return f.count, f.err
}

type fakeRules struct {
	active      []domain.MappingRule
	byID        map[string]*domain.MappingRule
	versions    map[int]*domain.RuleVersion
	suggestions []*domain.RuleSuggestion
}

func (f *fakeRules) ListActive(_ context.Context) ([]domain.MappingRule, error) {
	return f.active, nil
}

func (f *fakeRules) GetByID(_ context.Context, id string) (*domain.MappingRule, error) {
	rule, ok := f.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get rule", errNotFoundFixture)
	}
	return rule, nil
}

func (f *fakeRules) GetVersion(_ context.Context, _ string, version int) (*domain.RuleVersion, error) {
	v, ok := f.versions[version]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get rule version", errNotFoundFixture)
	}
	return v, nil
}

func (f *fakeRules) CreateSuggestion(_ context.Context, suggestion *domain.RuleSuggestion) error {
	f.suggestions = append(f.suggestions, suggestion)
	return nil
}

type fakeIdentity struct {
	allowed bool
	err     error
}

func (f *fakeIdentity) CanResolveEscalations(_ context.Context, _ string) (bool, error) {
	return f.allowed, f.err
}

type fakeNotifier struct {
	published []domain.Notification
	err       error
}

func (f *fakeNotifier) Publish(_ context.Context, n domain.Notification) error {
	f.published = append(f.published, n)
	return f.err
}

type fakeAudit struct {
	recorded []domain.AuditEvent
}

func (f *fakeAudit) Record(_ context.Context, event domain.AuditEvent) error {
	f.recorded = append(f.recorded, event)
	return nil
}

// inlineRunner executes submitted tasks synchronously so tests can assert
// on their side effects without timing games.
type inlineRunner struct{}

func (inlineRunner) Submit(_ string, fn func(context.Context)) {
	fn(context.Background())
}

var errNotFoundFixture = errors.New("not in fixture")

func newWorkflowFixture(store *fakeReviewStore) (*ReviewWorkflow, *fakeRules, *fakeNotifier, *fakeAudit, *fakeCorrections) {
	rules := &fakeRules{}
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	corrections := &fakeCorrections{}
	escalations := &fakeEscalations{byID: map[string]*domain.Escalation{
		"esc-1": {
			ID:         "esc-1",
			DocumentID: "doc-1",
			Status:     domain.EscalationOpen,
		},
	}}
	wf := NewReviewWorkflow(
		store,
		escalations,
		corrections,
		rules,
		&fakeIdentity{allowed: true},
		notifier,
		audit,
		inlineRunner{},
		3,
		30*24*time.Hour,
	)
	return wf, rules, notifier, audit, corrections
}

func TestCorrectValidatesInput(t *testing.T) {
	wf, _, _, _, _ := newWorkflowFixture(&fakeReviewStore{})

	cases := []ports.CorrectRequest{
		{Corrections: []ports.FieldCorrection{{FieldName: "a", CorrectedValue: "1"}}, ActorID: "r-1"},
		{DocumentID: "doc-1", Corrections: []ports.FieldCorrection{{FieldName: "a"}}},
		{DocumentID: "doc-1", ActorID: "r-1"},
		{DocumentID: "doc-1", ActorID: "r-1", Corrections: []ports.FieldCorrection{{CorrectedValue: "1"}}},
		{DocumentID: "doc-1", ActorID: "r-1", Corrections: []ports.FieldCorrection{{FieldName: "a", Type: "typo"}}},
	}
	for i, req := range cases {
		if _, err := wf.Correct(context.Background(), req); !domain.IsKind(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestCorrectTriggersRuleSuggestion(t *testing.T) {
	store := &fakeReviewStore{
		applyFn: func(_ context.Context, documentID string, corrections []domain.Correction) (*ports.CorrectionOutcome, error) {
			return &ports.CorrectionOutcome{
				DocumentID:     documentID,
				CompanyID:      "acme",
				ModifiedFields: []string{"invoice_number"},
				Corrections:    corrections,
				NewStatus:      domain.StatusInReview,
			}, nil
		},
	}
	wf, rules, _, audit, corrections := newWorkflowFixture(store)
	corrections.count = 5

	result, err := wf.Correct(context.Background(), ports.CorrectRequest{
		DocumentID:  "doc-1",
		ActorID:     "reviewer-1",
		Corrections: []ports.FieldCorrection{{FieldName: "invoice_number", CorrectedValue: "INV-002"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CorrectionCount != 1 || result.RuleSuggestionsTriggered != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if len(rules.suggestions) != 1 {
		t.Fatalf("expected one rule suggestion, got %d", len(rules.suggestions))
	}
	suggestion := rules.suggestions[0]
	if suggestion.CompanyID != "acme" || suggestion.FieldName != "invoice_number" || suggestion.SampleCount != 5 {
		t.Fatalf("unexpected suggestion: %+v", suggestion)
	}
	if suggestion.Status != domain.SuggestionPending {
		t.Fatalf("expected pending suggestion, got %s", suggestion.Status)
	}
	if len(audit.recorded) != 1 || audit.recorded[0].Action != "document.correct" {
		t.Fatalf("expected correction audit event, got %+v", audit.recorded)
	}
}

func TestCorrectBelowThresholdCreatesNoSuggestion(t *testing.T) {
	store := &fakeReviewStore{
		applyFn: func(_ context.Context, documentID string, corrections []domain.Correction) (*ports.CorrectionOutcome, error) {
			return &ports.CorrectionOutcome{DocumentID: documentID, CompanyID: "acme", Corrections: corrections}, nil
		},
	}
	wf, rules, _, _, corrections := newWorkflowFixture(store)
	corrections.count = 2

	_, err := wf.Correct(context.Background(), ports.CorrectRequest{
		DocumentID:  "doc-1",
		ActorID:     "reviewer-1",
		Corrections: []ports.FieldCorrection{{FieldName: "invoice_number", CorrectedValue: "INV-002"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules.suggestions) != 0 {
		t.Fatalf("expected no suggestion below threshold, got %d", len(rules.suggestions))
	}
}

func TestEscalateValidatesReason(t *testing.T) {
	wf, _, _, _, _ := newWorkflowFixture(&fakeReviewStore{})

	_, err := wf.Escalate(context.Background(), ports.EscalateRequest{
		DocumentID: "doc-1", ActorID: "r-1", Reason: "because",
	})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown reason, got %v", err)
	}

	_, err = wf.Escalate(context.Background(), ports.EscalateRequest{
		DocumentID: "doc-1", ActorID: "r-1", Reason: domain.ReasonDataInconsistency,
	})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing detail, got %v", err)
	}
}

func TestEscalateWritesNotesAndNotifies(t *testing.T) {
	var gotNotes string
	store := &fakeReviewStore{
		escalateFn: func(_ context.Context, esc *domain.Escalation, reviewNotes string) error {
			gotNotes = reviewNotes
			if esc.Status != domain.EscalationOpen {
				t.Fatalf("expected open escalation, got %s", esc.Status)
			}
			return nil
		},
	}
	wf, _, notifier, audit, _ := newWorkflowFixture(store)

	result, err := wf.Escalate(context.Background(), ports.EscalateRequest{
		DocumentID:   "doc-1",
		ActorID:      "reviewer-1",
		Reason:       domain.ReasonOther,
		ReasonDetail: "stamp covers the totals block",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EscalationID == "" {
		t.Fatalf("expected escalation id in result")
	}
	if gotNotes != "escalated: other: stamp covers the totals block" {
		t.Fatalf("unexpected review notes: %q", gotNotes)
	}
	if len(notifier.published) != 1 || notifier.published[0].Type != "document_escalated" {
		t.Fatalf("expected escalation notification, got %+v", notifier.published)
	}
	if len(audit.recorded) != 1 || audit.recorded[0].Action != "document.escalate" {
		t.Fatalf("expected escalation audit event, got %+v", audit.recorded)
	}
}

func TestResolveCorrectedRequiresCorrections(t *testing.T) {
	wf, _, _, _, _ := newWorkflowFixture(&fakeReviewStore{})

	_, err := wf.Resolve(context.Background(), ports.ResolveRequest{
		EscalationID: "esc-1",
		ActorID:      "supervisor-1",
		Decision:     domain.DecisionCorrected,
	})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveRequiresElevatedActor(t *testing.T) {
	wf, _, _, _, _ := newWorkflowFixture(&fakeReviewStore{})
	wf.identity = &fakeIdentity{allowed: false}

	_, err := wf.Resolve(context.Background(), ports.ResolveRequest{
		EscalationID: "esc-1",
		ActorID:      "reviewer-1",
		Decision:     domain.DecisionApproved,
	})
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestResolvePropagatesOutcome(t *testing.T) {
	resolvedAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store := &fakeReviewStore{
		resolveFn: func(_ context.Context, params ports.ResolveParams) (*ports.ResolveOutcome, error) {
			if params.EscalationID != "esc-1" || params.Decision != domain.DecisionCorrected {
				t.Fatalf("unexpected resolve params: %+v", params)
			}
			if len(params.Corrections) != 1 || params.Corrections[0].DocumentID != "doc-1" {
				t.Fatalf("expected corrections bound to the escalated document, got %+v", params.Corrections)
			}
			return &ports.ResolveOutcome{
				DocumentID:   "doc-1",
				Decision:     params.Decision,
				ResolvedAt:   resolvedAt,
				SuggestionID: "sug-1",
			}, nil
		},
	}
	wf, _, notifier, _, _ := newWorkflowFixture(store)

	result, err := wf.Resolve(context.Background(), ports.ResolveRequest{
		EscalationID: "esc-1",
		ActorID:      "supervisor-1",
		Decision:     domain.DecisionCorrected,
		Corrections:  []ports.FieldCorrection{{FieldName: "total_amount", CorrectedValue: "1250.00"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DocumentID != "doc-1" || result.RuleSuggestionID != "sug-1" || !result.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(notifier.published) != 1 || notifier.published[0].Type != "escalation_resolved" {
		t.Fatalf("expected resolution notification, got %+v", notifier.published)
	}
}

func TestResolveRejectsInvalidSuggestionPattern(t *testing.T) {
	wf, _, _, _, _ := newWorkflowFixture(&fakeReviewStore{})

	_, err := wf.Resolve(context.Background(), ports.ResolveRequest{
		EscalationID: "esc-1",
		ActorID:      "supervisor-1",
		Decision:     domain.DecisionApproved,
		Suggestion: &domain.RuleSuggestion{
			FieldName: "total_amount",
			Pattern:   &domain.ExtractionPattern{Method: domain.MethodRegex},
		},
	})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty regex pattern, got %v", err)
	}
}
