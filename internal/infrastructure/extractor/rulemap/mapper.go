package rulemap

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

// Base confidence per extraction method. Azure Document Intelligence reads
// fields directly, regex matches are reliable, keyword proximity and
// positional reads depend on layout, LLM output varies the most.
var baseConfidence = map[domain.ExtractionMethod]float64{
	domain.MethodAzureField: 90,
	domain.MethodRegex:      85,
	domain.MethodKeyword:    75,
	domain.MethodPosition:   70,
	domain.MethodLLM:        60,
}

// Mapper extracts document fields from OCR text and Azure invoice data by
// applying mapping rules. Rules for the same field run in priority order;
// the first extraction that yields a value wins.
type Mapper struct {
	logger *slog.Logger
}

func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{logger: logger}
}

// MapFields runs every rule group against the inputs. companyID selects the
// confidence tier: company-specific rule sets report tier2, universal ones
// tier1. Per-rule failures are logged and skipped so one broken pattern
// cannot sink the whole document.
func (m *Mapper) MapFields(
	ocrText string,
	rules []domain.MappingRule,
	azureData map[string]any,
	companyID string,
) (map[string]domain.FieldExtraction, map[string]domain.UnmappedFieldDetail, domain.ExtractionStats) {
	start := time.Now()

	byField := make(map[string][]domain.MappingRule)
	order := make([]string, 0)
	for _, rule := range rules {
		if _, seen := byField[rule.FieldName]; !seen {
			order = append(order, rule.FieldName)
		}
		byField[rule.FieldName] = append(byField[rule.FieldName], rule)
	}

	fields := make(map[string]domain.FieldExtraction, len(byField))
	unmapped := make(map[string]domain.UnmappedFieldDetail)
	rulesApplied := 0

	for _, fieldName := range order {
		fieldRules := byField[fieldName]
		sort.SliceStable(fieldRules, func(i, j int) bool {
			return fieldRules[i].Priority > fieldRules[j].Priority
		})

		extraction, ok := m.extractField(fieldName, fieldRules, ocrText, azureData, companyID)
		if !ok {
			attempts := make([]string, 0, len(fieldRules))
			for _, rule := range fieldRules {
				attempts = append(attempts, string(rule.Pattern.Method))
			}
			unmapped[fieldName] = domain.UnmappedFieldDetail{
				Reason:   "no_matching_rule",
				Attempts: attempts,
			}
			continue
		}
		fields[fieldName] = extraction
		rulesApplied++
	}

	stats := buildStats(fields, len(byField), time.Since(start), rulesApplied)
	return fields, unmapped, stats
}

func (m *Mapper) extractField(
	fieldName string,
	rules []domain.MappingRule,
	ocrText string,
	azureData map[string]any,
	companyID string,
) (domain.FieldExtraction, bool) {
	for _, rule := range rules {
		var (
			extraction domain.FieldExtraction
			ok         bool
			err        error
		)
		switch rule.Pattern.Method {
		case domain.MethodAzureField:
			extraction, ok = m.extractAzureField(rule, azureData)
		case domain.MethodRegex:
			extraction, ok, err = m.extractRegex(rule, ocrText, companyID)
		case domain.MethodKeyword:
			extraction, ok = m.extractKeyword(rule, ocrText, companyID)
		case domain.MethodPosition:
			// Positional extraction needs page geometry the OCR feed does
			// not carry yet.
			m.logger.Debug("position_extraction_skipped", "field", fieldName, "rule_id", rule.ID)
			continue
		default:
			continue
		}
		if err != nil {
			m.logger.Warn("extraction_error",
				"field", fieldName,
				"method", string(rule.Pattern.Method),
				"rule_id", rule.ID,
				"error", err,
			)
			continue
		}
		if ok && extraction.HasValue() {
			return extraction, true
		}
	}
	return domain.FieldExtraction{}, false
}

func (m *Mapper) extractAzureField(rule domain.MappingRule, azureData map[string]any) (domain.FieldExtraction, bool) {
	if len(azureData) == 0 || rule.Pattern.AzureFieldName == "" {
		return domain.FieldExtraction{}, false
	}
	raw, ok := azureFieldValue(azureData, rule.Pattern.AzureFieldName)
	if !ok {
		return domain.FieldExtraction{}, false
	}
	return m.buildExtraction(rule, raw, domain.SourceAzure), true
}

func (m *Mapper) extractRegex(rule domain.MappingRule, ocrText, companyID string) (domain.FieldExtraction, bool, error) {
	re, err := compilePattern(rule.Pattern.Pattern, rule.Pattern.Flags)
	if err != nil {
		return domain.FieldExtraction{}, false, fmt.Errorf("compile pattern: %w", err)
	}

	match := re.FindStringSubmatch(ocrText)
	if match == nil {
		return domain.FieldExtraction{}, false, nil
	}
	raw := match[0]
	if idx := rule.Pattern.GroupIndex; idx > 0 && idx < len(match) {
		raw = match[idx]
	}
	if raw == "" {
		return domain.FieldExtraction{}, false, nil
	}
	return m.buildExtraction(rule, raw, tierSource(companyID)), true, nil
}

func (m *Mapper) extractKeyword(rule domain.MappingRule, ocrText, companyID string) (domain.FieldExtraction, bool) {
	maxDistance := rule.Pattern.MaxDistance
	if maxDistance <= 0 {
		maxDistance = 50
	}
	textLower := strings.ToLower(ocrText)

	for _, keyword := range rule.Pattern.Keywords {
		idx := strings.Index(textLower, strings.ToLower(keyword))
		if idx < 0 {
			continue
		}

		start := idx + len(keyword)
		end := start + maxDistance
		if end > len(ocrText) {
			end = len(ocrText)
		}
		raw := valueAfterKeyword(ocrText[start:end])
		if raw == "" {
			continue
		}
		return m.buildExtraction(rule, raw, tierSource(companyID)), true
	}
	return domain.FieldExtraction{}, false
}

// buildExtraction normalizes, validates and scores one raw value.
func (m *Mapper) buildExtraction(rule domain.MappingRule, raw string, source domain.ConfidenceSource) domain.FieldExtraction {
	confidence := baseConfidence[rule.Pattern.Method] + rule.Pattern.ConfidenceBoost
	if confidence > 100 {
		confidence = 100
	}

	normalized := normalizeValue(raw, rule.FieldName)
	isValid, validationErr := m.validateValue(normalized, rule.ValidationPattern)

	return domain.FieldExtraction{
		FieldName:        rule.FieldName,
		Value:            &normalized,
		RawValue:         raw,
		Confidence:       confidence,
		Source:           source,
		ExtractionMethod: rule.Pattern.Method,
		RuleID:           rule.ID,
		RuleVersion:      rule.Version,
		IsValidated:      &isValid,
		ValidationError:  validationErr,
	}
}

// validateValue checks the value against the rule's optional anchored
// pattern. A pattern that fails to compile counts as a pass: a broken rule
// must not reject otherwise good extractions.
func (m *Mapper) validateValue(value, validationPattern string) (bool, string) {
	if validationPattern == "" || value == "" {
		return true, ""
	}
	re, err := regexp.Compile("^(?:" + validationPattern + ")")
	if err != nil {
		m.logger.Warn("invalid_validation_pattern", "pattern", validationPattern, "error", err)
		return true, ""
	}
	if re.MatchString(value) {
		return true, ""
	}
	return false, "Value does not match pattern: " + validationPattern
}

func tierSource(companyID string) domain.ConfidenceSource {
	if companyID != "" {
		return domain.SourceTier2
	}
	return domain.SourceTier1
}

func compilePattern(pattern, flags string) (*regexp.Regexp, error) {
	var prefix strings.Builder
	for _, flag := range []struct {
		letter string
		expr   string
	}{
		{"i", "i"}, {"m", "m"}, {"s", "s"},
	} {
		if strings.Contains(flags, flag.letter) {
			prefix.WriteString(flag.expr)
		}
	}
	if prefix.Len() > 0 {
		pattern = "(?" + prefix.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

// valueAfterKeyword pulls the value following a matched keyword: skip
// separators, take up to the end of line or the next hard delimiter, trim
// trailing punctuation.
func valueAfterKeyword(context string) string {
	context = strings.TrimLeft(context, " :：\t\n")
	if context == "" {
		return ""
	}
	match := valueAfterKeywordRe.FindStringSubmatch(context)
	if match == nil {
		return ""
	}
	return trailingPunctRe.ReplaceAllString(strings.TrimSpace(match[1]), "")
}

var (
	valueAfterKeywordRe = regexp.MustCompile(`^([^\n\r|]{1,100})`)
	trailingPunctRe     = regexp.MustCompile(`[,;:\s]+$`)
)

// azureFieldValue resolves a field from the Azure invoice payload. Fields
// usually sit under a "fields" object holding {value, content} wrappers;
// lookup falls back to case-insensitive matching.
func azureFieldValue(azureData map[string]any, fieldName string) (string, bool) {
	fields := azureData
	if nested, ok := azureData["fields"].(map[string]any); ok {
		fields = nested
	}

	if value, ok := fields[fieldName]; ok {
		return unwrapAzureValue(value)
	}
	for key, value := range fields {
		if strings.EqualFold(key, fieldName) {
			return unwrapAzureValue(value)
		}
	}
	return "", false
}

func unwrapAzureValue(value any) (string, bool) {
	switch v := value.(type) {
	case map[string]any:
		if s, ok := v["value"].(string); ok && s != "" {
			return s, true
		}
		if s, ok := v["content"].(string); ok && s != "" {
			return s, true
		}
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func buildStats(fields map[string]domain.FieldExtraction, totalFields int, elapsed time.Duration, rulesApplied int) domain.ExtractionStats {
	stats := domain.ExtractionStats{
		TotalFields:      totalFields,
		MappedFields:     len(fields),
		UnmappedFields:   totalFields - len(fields),
		ProcessingTimeMS: elapsed.Milliseconds(),
		RulesApplied:     rulesApplied,
	}
	if len(fields) > 0 {
		total := 0.0
		for _, field := range fields {
			total += field.Confidence
		}
		avg := total / float64(len(fields))
		stats.AverageConfidence = math.Round(avg*100) / 100
	}
	return stats
}
