package rulemap

import (
	"testing"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

func regexRule(id, fieldName, pattern string, priority int) domain.MappingRule {
	return domain.MappingRule{
		ID:        id,
		FieldName: fieldName,
		Pattern:   domain.ExtractionPattern{Method: domain.MethodRegex, Pattern: pattern, GroupIndex: 1},
		Priority:  priority,
		Version:   1,
	}
}

func TestMapFieldsExtractsWithRegex(t *testing.T) {
	mapper := NewMapper(nil)
	ocr := "Invoice No: INV-2024-001\nTotal Amount: USD 1,234.56"

	rules := []domain.MappingRule{
		regexRule("rule-1", "invoice_number", `Invoice No:\s*(\S+)`, 10),
		regexRule("rule-2", "total_amount", `Total Amount:\s*USD\s*([\d,.]+)`, 10),
	}
	fields, unmapped, stats := mapper.MapFields(ocr, rules, nil, "")

	if len(unmapped) != 0 {
		t.Fatalf("expected no unmapped fields, got %v", unmapped)
	}
	inv := fields["invoice_number"]
	if inv.Value == nil || *inv.Value != "INV-2024-001" {
		t.Fatalf("expected INV-2024-001, got %v", inv.Value)
	}
	if inv.Source != domain.SourceTier1 {
		t.Fatalf("expected tier1 source, got %s", inv.Source)
	}
	if inv.Confidence != 85 {
		t.Fatalf("expected base regex confidence 85, got %v", inv.Confidence)
	}
	amount := fields["total_amount"]
	if amount.Value == nil || *amount.Value != "1234.56" {
		t.Fatalf("expected normalized amount 1234.56, got %v", amount.Value)
	}
	if stats.MappedFields != 2 || stats.TotalFields != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AverageConfidence != 85 {
		t.Fatalf("expected average confidence 85, got %v", stats.AverageConfidence)
	}
}

func TestMapFieldsPrefersHigherPriorityRule(t *testing.T) {
	mapper := NewMapper(nil)
	ocr := "Ref A-1 Ref B-2"

	rules := []domain.MappingRule{
		regexRule("rule-low", "reference", `Ref (B-\d)`, 1),
		regexRule("rule-high", "reference", `Ref (A-\d)`, 9),
	}
	fields, _, _ := mapper.MapFields(ocr, rules, nil, "")

	ref := fields["reference"]
	if ref.Value == nil || *ref.Value != "A-1" {
		t.Fatalf("expected high priority rule to win, got %v", ref.Value)
	}
	if ref.RuleID != "rule-high" {
		t.Fatalf("expected rule-high, got %s", ref.RuleID)
	}
}

func TestMapFieldsFallsThroughBrokenPattern(t *testing.T) {
	mapper := NewMapper(nil)
	ocr := "Shipment SHP-77"

	rules := []domain.MappingRule{
		regexRule("rule-broken", "shipment", `Shipment ((`, 9),
		regexRule("rule-ok", "shipment", `Shipment (\S+)`, 1),
	}
	fields, unmapped, _ := mapper.MapFields(ocr, rules, nil, "")

	if len(unmapped) != 0 {
		t.Fatalf("expected fallback extraction, got unmapped %v", unmapped)
	}
	shp := fields["shipment"]
	if shp.Value == nil || *shp.Value != "SHP-77" {
		t.Fatalf("expected SHP-77, got %v", shp.Value)
	}
	if shp.RuleID != "rule-ok" {
		t.Fatalf("expected rule-ok, got %s", shp.RuleID)
	}
}

func TestMapFieldsKeywordProximity(t *testing.T) {
	mapper := NewMapper(nil)
	ocr := "Gross Weight: 1,250 kg\nCarrier: Maersk"

	rules := []domain.MappingRule{
		{
			ID:        "rule-kw",
			FieldName: "gross_weight",
			Pattern: domain.ExtractionPattern{
				Method:   domain.MethodKeyword,
				Keywords: []string{"Gross Weight"},
			},
			Version: 2,
		},
	}
	fields, _, _ := mapper.MapFields(ocr, rules, nil, "company-1")

	weight := fields["gross_weight"]
	if weight.Value == nil || *weight.Value != "1250.00" {
		t.Fatalf("expected 1250.00, got %v", weight.Value)
	}
	if weight.Confidence != 75 {
		t.Fatalf("expected keyword base confidence 75, got %v", weight.Confidence)
	}
	if weight.Source != domain.SourceTier2 {
		t.Fatalf("expected tier2 for company rules, got %s", weight.Source)
	}
	if weight.RuleVersion != 2 {
		t.Fatalf("expected rule version 2, got %d", weight.RuleVersion)
	}
}

func TestMapFieldsAzureFieldLookup(t *testing.T) {
	mapper := NewMapper(nil)

	azure := map[string]any{
		"fields": map[string]any{
			"InvoiceTotal": map[string]any{"value": "842.10"},
		},
	}
	rules := []domain.MappingRule{
		{
			ID:        "rule-azure",
			FieldName: "total_amount",
			Pattern: domain.ExtractionPattern{
				Method:          domain.MethodAzureField,
				AzureFieldName:  "invoicetotal",
				ConfidenceBoost: 20,
			},
			Version: 1,
		},
	}
	fields, _, _ := mapper.MapFields("", rules, azure, "")

	total := fields["total_amount"]
	if total.Value == nil || *total.Value != "842.10" {
		t.Fatalf("expected 842.10, got %v", total.Value)
	}
	if total.Source != domain.SourceAzure {
		t.Fatalf("expected azure source, got %s", total.Source)
	}
	if total.Confidence != 100 {
		t.Fatalf("expected boost capped at 100, got %v", total.Confidence)
	}
}

func TestMapFieldsRecordsUnmappedAttempts(t *testing.T) {
	mapper := NewMapper(nil)

	rules := []domain.MappingRule{
		regexRule("rule-1", "vessel_name", `Vessel:\s*(\S+)`, 5),
		{
			ID:        "rule-2",
			FieldName: "vessel_name",
			Pattern:   domain.ExtractionPattern{Method: domain.MethodKeyword, Keywords: []string{"Vessel"}},
		},
	}
	fields, unmapped, stats := mapper.MapFields("no shipping data here", rules, nil, "")

	if len(fields) != 0 {
		t.Fatalf("expected no extraction, got %v", fields)
	}
	detail, ok := unmapped["vessel_name"]
	if !ok {
		t.Fatalf("expected unmapped detail for vessel_name")
	}
	if detail.Reason != "no_matching_rule" {
		t.Fatalf("expected no_matching_rule, got %s", detail.Reason)
	}
	if len(detail.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %v", detail.Attempts)
	}
	if stats.UnmappedFields != 1 {
		t.Fatalf("expected 1 unmapped field, got %d", stats.UnmappedFields)
	}
}

func TestMapFieldsValidationFailureIsRecorded(t *testing.T) {
	mapper := NewMapper(nil)

	rules := []domain.MappingRule{
		{
			ID:                "rule-1",
			FieldName:         "invoice_number",
			Pattern:           domain.ExtractionPattern{Method: domain.MethodRegex, Pattern: `No:\s*(\S+)`, GroupIndex: 1},
			ValidationPattern: `INV-\d{4}-\d{3}$`,
			Version:           1,
		},
	}
	fields, _, _ := mapper.MapFields("No: BAD-FORMAT", rules, nil, "")

	inv := fields["invoice_number"]
	if inv.IsValidated == nil || *inv.IsValidated {
		t.Fatalf("expected validation failure, got %v", inv.IsValidated)
	}
	if inv.ValidationError == "" {
		t.Fatalf("expected validation error message")
	}
	if inv.Value == nil || *inv.Value != "BAD-FORMAT" {
		t.Fatalf("value must be kept despite failed validation, got %v", inv.Value)
	}
}

func TestNormalizeDateFormats(t *testing.T) {
	cases := map[string]string{
		"2024-12-18":  "2024-12-18",
		"12/18/2024":  "2024-12-18",
		"12-18-2024":  "2024-12-18",
		"18.12.2024":  "2024-12-18",
		"18 Dec 2024": "2024-12-18",
		"5 Jan 2025":  "2025-01-05",
	}
	for input, want := range cases {
		if got := normalizeValue(input, "invoice_date"); got != want {
			t.Errorf("normalizeValue(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeAmountHeuristics(t *testing.T) {
	cases := map[string]string{
		"USD 1,234.56": "1234.56",
		"1234,56":      "1234.56",
		"1,234":        "1234.00",
		"$99":          "99.00",
	}
	for input, want := range cases {
		if got := normalizeValue(input, "total_amount"); got != want {
			t.Errorf("normalizeValue(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeWeightStripsUnits(t *testing.T) {
	if got := normalizeValue("120.5 kg", "gross_weight"); got != "120.50" {
		t.Fatalf("expected 120.50, got %q", got)
	}
	if got := normalizeValue("2,000 lbs", "net_weight"); got != "2000.00" {
		t.Fatalf("expected 2000.00, got %q", got)
	}
}
