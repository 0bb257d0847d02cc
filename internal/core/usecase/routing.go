package usecase

import (
	"math"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

// RoutingDecision is the processing path and queue priority assigned to a
// scored document.
type RoutingDecision struct {
	Path     domain.ProcessingPath `json:"path"`
	Priority int                   `json:"priority"`
}

// ProcessingRouter maps a document confidence result onto a processing
// path. Pure and stateless. The manual_required path is assigned upstream
// of scoring, for documents that failed identification entirely, and never
// by this router.
type ProcessingRouter struct{}

func NewProcessingRouter() *ProcessingRouter {
	return &ProcessingRouter{}
}

func (r *ProcessingRouter) Route(confidence domain.DocumentConfidenceResult) RoutingDecision {
	var path domain.ProcessingPath
	switch confidence.Recommendation {
	case domain.RecommendAutoApprove:
		path = domain.PathAutoApprove
	case domain.RecommendQuickReview:
		path = domain.PathQuickReview
	default:
		path = domain.PathFullReview
	}
	return RoutingDecision{
		Path:     path,
		Priority: PriorityForScore(confidence.OverallScore),
	}
}

// PriorityForScore inverts the confidence score so the most uncertain
// documents surface first. Clamped to [1,100].
func PriorityForScore(score float64) int {
	priority := 100 - int(math.Round(score))
	if priority < 1 {
		priority = 1
	}
	if priority > 100 {
		priority = 100
	}
	return priority
}
