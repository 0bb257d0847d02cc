package rulemap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dateLayouts = []struct {
		re     *regexp.Regexp
		layout string
	}{
		{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "2006-01-02"},
		{regexp.MustCompile(`\d{2}/\d{2}/\d{4}`), "01/02/2006"},
		{regexp.MustCompile(`\d{2}-\d{2}-\d{4}`), "01-02-2006"},
		{regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`), "02.01.2006"},
	}
	monthNameDateRe = regexp.MustCompile(`(?i)(\d{1,2})\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(\d{4})`)

	amountCharsRe = regexp.MustCompile(`[^\d.,\-]`)
	weightUnitRe  = regexp.MustCompile(`(?i)(kg|lb|lbs|kgs|g|gram|grams)\.?`)
	numberRe      = regexp.MustCompile(`[\d.,]+`)
)

var monthNumbers = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04",
	"may": "05", "jun": "06", "jul": "07", "aug": "08",
	"sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

// normalizeValue canonicalizes a raw extraction by field-name convention:
// dates to YYYY-MM-DD, monetary amounts to plain two-decimal numbers,
// weights to unit-stripped amounts. Anything unrecognized passes through
// trimmed.
func normalizeValue(value, fieldName string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	lower := strings.ToLower(fieldName)

	if strings.Contains(lower, "date") {
		if normalized := normalizeDate(value); normalized != "" {
			return normalized
		}
	}
	for _, keyword := range []string{"amount", "charge", "fee", "cost", "total", "price", "duty", "tax"} {
		if strings.Contains(lower, keyword) {
			if normalized := normalizeAmount(value); normalized != "" {
				return normalized
			}
			break
		}
	}
	if strings.Contains(lower, "weight") {
		if normalized := normalizeWeight(value); normalized != "" {
			return normalized
		}
	}
	return value
}

func normalizeDate(value string) string {
	for _, candidate := range dateLayouts {
		match := candidate.re.FindString(value)
		if match == "" {
			continue
		}
		parsed, err := time.Parse(candidate.layout, match)
		if err != nil {
			continue
		}
		return parsed.Format("2006-01-02")
	}

	if match := monthNameDateRe.FindStringSubmatch(value); match != nil {
		day := match[1]
		if len(day) == 1 {
			day = "0" + day
		}
		month, ok := monthNumbers[strings.ToLower(match[2])]
		if !ok {
			month = "01"
		}
		return match[3] + "-" + month + "-" + day
	}
	return ""
}

// normalizeAmount strips currency symbols and resolves the comma ambiguity:
// with both separators present the comma is thousands; a lone comma
// followed by at most two digits is a decimal point.
func normalizeAmount(value string) string {
	cleaned := amountCharsRe.ReplaceAllString(value, "")
	if cleaned == "" {
		return ""
	}

	switch {
	case strings.Contains(cleaned, ",") && strings.Contains(cleaned, "."):
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case strings.Contains(cleaned, ","):
		parts := strings.Split(cleaned, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%.2f", amount)
}

func normalizeWeight(value string) string {
	cleaned := strings.TrimSpace(weightUnitRe.ReplaceAllString(value, ""))
	match := numberRe.FindString(cleaned)
	if match == "" {
		return ""
	}
	return normalizeAmount(match)
}
