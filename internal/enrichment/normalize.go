package enrichment

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"listing_enricher/internal/models"
)

// maxFallbackDescription bounds the raw text kept when a response has no
// usable JSON object
const maxFallbackDescription = 500

// Normalize turns a provider's raw completion into a complete result. It
// never fails: text without a JSON object becomes a placeholder result that
// carries the text as its description.
func Normalize(raw string) models.EnrichmentResult {
	if fields, ok := decodeObject(strings.TrimSpace(raw)); ok {
		return fromFields(fields)
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if fields, ok := decodeObject(raw[start : end+1]); ok {
			return fromFields(fields)
		}
	}

	result := models.DefaultEnrichmentResult()
	if text := strings.TrimSpace(raw); text != "" {
		result.Description = truncate(text, maxFallbackDescription)
		result.Defaulted = slices.DeleteFunc(result.Defaulted, func(f string) bool {
			return f == models.FieldDescription
		})
	}
	return result
}

func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func fromFields(fields map[string]any) models.EnrichmentResult {
	var defaulted []string
	pick := func(fallback string, keys ...string) string {
		for _, k := range keys {
			if s := stringify(fields[k]); s != "" {
				return s
			}
		}
		defaulted = append(defaulted, keys[0])
		return fallback
	}

	points := sellingPoints(fields[models.FieldSellingPoints])

	result := models.EnrichmentResult{
		Title:           pick(models.DefaultTitle, models.FieldTitle),
		Description:     pick(models.DefaultDescription, models.FieldDescription),
		Condition:       pick(models.DefaultCondition, models.FieldCondition),
		Category:        pick(models.DefaultCategory, models.FieldCategory),
		Brand:           pick(models.DefaultBrand, models.FieldBrand),
		Material:        pick(models.DefaultMaterial, models.FieldMaterial),
		Color:           pick(models.DefaultColor, models.FieldColor),
		CountryOfOrigin: pick(models.DefaultCountryOfOrigin, models.FieldCountryOfOrigin, "country"),
		ValueRange:      pick(models.DefaultValueRange, models.FieldValueRange),
		SellingPoints:   points,
	}
	if len(points) == 0 {
		result.SellingPoints = models.DefaultSellingPoints()
		defaulted = append(defaulted, models.FieldSellingPoints)
	}
	result.Defaulted = defaulted
	return result
}

// stringify renders a decoded JSON value as trimmed text. Objects and null
// render empty.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func sellingPoints(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			raw = append(raw, stringify(item))
		}
	case string:
		raw = strings.FieldsFunc(t, func(r rune) bool {
			return r == '\n' || r == ';'
		})
	default:
		if s := stringify(t); s != "" {
			raw = []string{s}
		}
	}

	points := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(p), "-*•"))
		if p != "" {
			points = append(points, p)
		}
	}
	return points
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
