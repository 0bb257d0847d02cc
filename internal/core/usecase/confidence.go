package usecase

import (
	"math"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

// ConfidenceCalculator derives multi-factor confidence scores for extracted
// fields and whole documents. All methods are pure and safe for concurrent
// use.
type ConfidenceCalculator struct{}

func NewConfidenceCalculator() *ConfidenceCalculator {
	return &ConfidenceCalculator{}
}

// methodBaseScore is the rule-match base per extraction method. Total over
// the enum: unknown methods get the conservative default arm.
func methodBaseScore(method domain.ExtractionMethod) float64 {
	switch method {
	case domain.MethodAzureField:
		return 95
	case domain.MethodRegex:
		return 85
	case domain.MethodLLM:
		return 75
	case domain.MethodKeyword:
		return 70
	case domain.MethodPosition:
		return 65
	default:
		return 50
	}
}

const ruleMatchBonus = 5

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ocrConfidenceFactor(extraction domain.FieldExtraction) float64 {
	if extraction.Confidence > 0 {
		return clampScore(extraction.Confidence)
	}
	return domain.DefaultOCRConfidence
}

func ruleMatchFactor(extraction domain.FieldExtraction) float64 {
	score := methodBaseScore(extraction.ExtractionMethod)
	if extraction.RuleID != "" {
		score += ruleMatchBonus
	}
	return clampScore(score)
}

func formatValidationFactor(extraction domain.FieldExtraction) float64 {
	score := 100.0
	if extraction.IsValidated != nil && !*extraction.IsValidated {
		score -= 40
	}
	if extraction.ValidationError != "" {
		score -= 20
	}
	// Extraction produced raw text but normalization yielded no value.
	if extraction.Value == nil && extraction.RawValue != "" {
		score -= 30
	}
	return clampScore(score)
}

// historicalAccuracyFactor blends the verified track record with the
// default, ramping linearly to full trust at HistoryFullTrustSamples.
func historicalAccuracyFactor(history *domain.FieldHistory) float64 {
	if history == nil || history.SampleSize <= 0 {
		return domain.DefaultHistoricalAccuracy
	}
	weight := float64(history.SampleSize) / float64(domain.HistoryFullTrustSamples)
	if weight > 1 {
		weight = 1
	}
	accuracy := clampScore(history.Accuracy * 100)
	return clampScore(accuracy*weight + domain.DefaultHistoricalAccuracy*(1-weight))
}

func deriveFactors(extraction domain.FieldExtraction, history *domain.FieldHistory) domain.ConfidenceFactors {
	if !extraction.HasValue() {
		return domain.ConfidenceFactors{}
	}
	return domain.ConfidenceFactors{
		OCRConfidence:      ocrConfidenceFactor(extraction),
		RuleMatchScore:     ruleMatchFactor(extraction),
		FormatValidation:   formatValidationFactor(extraction),
		HistoricalAccuracy: historicalAccuracyFactor(history),
	}
}

// CalculateFieldConfidence turns one field extraction plus its optional
// history into a weighted score with a per-factor breakdown.
func (c *ConfidenceCalculator) CalculateFieldConfidence(extraction domain.FieldExtraction, history *domain.FieldHistory) domain.FieldConfidenceResult {
	factors := deriveFactors(extraction, history)

	sum := factors.OCRConfidence*domain.WeightOCR +
		factors.RuleMatchScore*domain.WeightRuleMatch +
		factors.FormatValidation*domain.WeightFormatValidation +
		factors.HistoricalAccuracy*domain.WeightHistoricalAccuracy
	score := round2(sum)

	return domain.FieldConfidenceResult{
		Score: score,
		Level: domain.LevelForScore(score),
		Breakdown: map[string]domain.FactorContribution{
			"ocrConfidence":      contribution(factors.OCRConfidence, domain.WeightOCR),
			"ruleMatchScore":     contribution(factors.RuleMatchScore, domain.WeightRuleMatch),
			"formatValidation":   contribution(factors.FormatValidation, domain.WeightFormatValidation),
			"historicalAccuracy": contribution(factors.HistoricalAccuracy, domain.WeightHistoricalAccuracy),
		},
	}
}

func contribution(raw, weight float64) domain.FactorContribution {
	return domain.FactorContribution{
		RawScore:     raw,
		Weight:       weight,
		Contribution: round2(raw * weight),
	}
}

// CalculateDocumentConfidence scores every field and averages the non-empty
// ones. Empty fields count in stats.TotalFields but stay out of both the
// numerator and the denominator.
func (c *ConfidenceCalculator) CalculateDocumentConfidence(fields map[string]domain.FieldExtraction, histories map[string]domain.FieldHistory) domain.DocumentConfidenceResult {
	results := make(map[string]domain.FieldConfidenceResult, len(fields))
	stats := domain.DocumentConfidenceStats{TotalFields: len(fields)}

	var sum float64
	for name, extraction := range fields {
		var history *domain.FieldHistory
		if h, ok := histories[name]; ok {
			history = &h
		}
		result := c.CalculateFieldConfidence(extraction, history)
		results[name] = result

		if !extraction.HasValue() {
			stats.EmptyFields++
			continue
		}

		stats.ScoredFields++
		sum += result.Score
		if stats.ScoredFields == 1 || result.Score < stats.MinScore {
			stats.MinScore = result.Score
		}
		if result.Score > stats.MaxScore {
			stats.MaxScore = result.Score
		}
		switch result.Level {
		case domain.LevelHigh:
			stats.HighCount++
		case domain.LevelMedium:
			stats.MediumCount++
		default:
			stats.LowCount++
		}
	}

	var overall float64
	if stats.ScoredFields > 0 {
		overall = round2(sum / float64(stats.ScoredFields))
	}

	return domain.DocumentConfidenceResult{
		OverallScore:   overall,
		Level:          domain.LevelForScore(overall),
		Recommendation: domain.RecommendationForScore(overall),
		Stats:          stats,
		Fields:         results,
	}
}

// CalculateWeightedDocumentConfidence applies the critical-field penalty on
// top of the plain document score: 5 points per critical field at low
// level, 2 per critical field at medium. A document with an excellent
// average but a garbled invoice total must not auto-approve.
func (c *ConfidenceCalculator) CalculateWeightedDocumentConfidence(fields map[string]domain.FieldExtraction, criticalFields []string, histories map[string]domain.FieldHistory) domain.DocumentConfidenceResult {
	result := c.CalculateDocumentConfidence(fields, histories)

	var penalty float64
	for _, name := range criticalFields {
		fieldResult, ok := result.Fields[name]
		if !ok {
			continue
		}
		switch fieldResult.Level {
		case domain.LevelLow:
			penalty += domain.CriticalLowPenalty
		case domain.LevelMedium:
			penalty += domain.CriticalMediumPenalty
		}
	}
	if penalty == 0 {
		return result
	}

	adjusted := round2(result.OverallScore - penalty)
	if adjusted < 0 {
		adjusted = 0
	}
	result.OverallScore = adjusted
	result.Level = domain.LevelForScore(adjusted)
	result.Recommendation = domain.RecommendationForScore(adjusted)
	return result
}
