package domain

// Factor weights. They must sum to exactly 1.0; the calculator tests pin
// this invariant.
const (
	WeightOCR                = 0.30
	WeightRuleMatch          = 0.30
	WeightFormatValidation   = 0.25
	WeightHistoricalAccuracy = 0.15
)

// Display-level thresholds. Routing uses its own stricter thresholds below.
const (
	LevelHighThreshold   = 90.0
	LevelMediumThreshold = 70.0
)

// Routing thresholds, intentionally separate from display levels: a field
// can read "high" on screen while its document still goes to quick review.
const (
	RouteAutoApproveThreshold = 95.0
	RouteQuickReviewThreshold = 80.0
)

// Critical-field penalties applied by the weighted document calculation.
const (
	CriticalLowPenalty    = 5.0
	CriticalMediumPenalty = 2.0
)

const (
	// DefaultOCRConfidence stands in when the extractor reported nothing.
	DefaultOCRConfidence = 80.0
	// DefaultHistoricalAccuracy stands in until enough verified samples exist.
	DefaultHistoricalAccuracy = 85.0
	// HistoryFullTrustSamples is where the historical blend reaches full weight.
	HistoryFullTrustSamples = 100
)

type ConfidenceLevel string

const (
	LevelHigh   ConfidenceLevel = "high"
	LevelMedium ConfidenceLevel = "medium"
	LevelLow    ConfidenceLevel = "low"
)

type Recommendation string

const (
	RecommendAutoApprove Recommendation = "auto_approve"
	RecommendQuickReview Recommendation = "quick_review"
	RecommendFullReview  Recommendation = "full_review"
)

// ConfidenceFactors are the four dimensionless scores in [0,100] that feed
// the weighted sum. Derived on demand, never persisted.
type ConfidenceFactors struct {
	OCRConfidence      float64 `json:"ocrConfidence"`
	RuleMatchScore     float64 `json:"ruleMatchScore"`
	FormatValidation   float64 `json:"formatValidation"`
	HistoricalAccuracy float64 `json:"historicalAccuracy"`
}

// FactorContribution is one factor's share of the final score.
type FactorContribution struct {
	RawScore     float64 `json:"rawScore"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

type FieldConfidenceResult struct {
	Score     float64                       `json:"score"`
	Level     ConfidenceLevel               `json:"level"`
	Breakdown map[string]FactorContribution `json:"breakdown"`
}

type DocumentConfidenceStats struct {
	TotalFields  int     `json:"totalFields"`
	ScoredFields int     `json:"scoredFields"`
	EmptyFields  int     `json:"emptyFields"`
	HighCount    int     `json:"highCount"`
	MediumCount  int     `json:"mediumCount"`
	LowCount     int     `json:"lowCount"`
	MinScore     float64 `json:"minScore"`
	MaxScore     float64 `json:"maxScore"`
}

type DocumentConfidenceResult struct {
	OverallScore   float64                          `json:"overallScore"`
	Level          ConfidenceLevel                  `json:"level"`
	Recommendation Recommendation                   `json:"recommendation"`
	Stats          DocumentConfidenceStats          `json:"stats"`
	Fields         map[string]FieldConfidenceResult `json:"fields"`
}

// FieldHistory is the verified track record of a (rule, field) pairing.
// Accuracy is a fraction in [0,1] as produced by the accuracy monitor.
type FieldHistory struct {
	Accuracy   float64 `json:"accuracy"`
	SampleSize int     `json:"sampleSize"`
}

func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= LevelHighThreshold:
		return LevelHigh
	case score >= LevelMediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

func RecommendationForScore(score float64) Recommendation {
	switch {
	case score >= RouteAutoApproveThreshold:
		return RecommendAutoApprove
	case score >= RouteQuickReviewThreshold:
		return RecommendQuickReview
	default:
		return RecommendFullReview
	}
}
