package usecase

import (
	"testing"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

func confidenceWithScore(score float64) domain.DocumentConfidenceResult {
	return domain.DocumentConfidenceResult{
		OverallScore:   score,
		Level:          domain.LevelForScore(score),
		Recommendation: domain.RecommendationForScore(score),
	}
}

func TestRouteByRecommendation(t *testing.T) {
	router := NewProcessingRouter()

	tests := []struct {
		score    float64
		path     domain.ProcessingPath
		priority int
	}{
		{97.15, domain.PathAutoApprove, 3},
		{95.0, domain.PathAutoApprove, 5},
		{92.0, domain.PathQuickReview, 8},
		{80.0, domain.PathQuickReview, 20},
		{79.99, domain.PathFullReview, 20},
		{41.5, domain.PathFullReview, 58},
	}
	for _, tt := range tests {
		decision := router.Route(confidenceWithScore(tt.score))
		if decision.Path != tt.path {
			t.Fatalf("score %v: expected path %s, got %s", tt.score, tt.path, decision.Path)
		}
		if decision.Priority != tt.priority {
			t.Fatalf("score %v: expected priority %d, got %d", tt.score, tt.priority, decision.Priority)
		}
	}
}

func TestPriorityForScoreClamps(t *testing.T) {
	if got := PriorityForScore(0); got != 100 {
		t.Fatalf("expected priority 100 for zero score, got %d", got)
	}
	if got := PriorityForScore(100); got != 1 {
		t.Fatalf("expected priority floor 1 for perfect score, got %d", got)
	}
	if got := PriorityForScore(99.6); got != 1 {
		t.Fatalf("expected rounding before inversion, got %d", got)
	}
}
