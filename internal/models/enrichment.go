package models

import "slices"

// Canonical enrichment keys, in prompt order.
const (
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldCondition       = "condition"
	FieldCategory        = "category"
	FieldBrand           = "brand"
	FieldMaterial        = "material"
	FieldColor           = "color"
	FieldCountryOfOrigin = "country_of_origin"
	FieldValueRange      = "value_range"
	FieldSellingPoints   = "selling_points"
)

// CanonicalFields lists the ten keys of an EnrichmentResult.
var CanonicalFields = []string{
	FieldTitle,
	FieldDescription,
	FieldCondition,
	FieldCategory,
	FieldBrand,
	FieldMaterial,
	FieldColor,
	FieldCountryOfOrigin,
	FieldValueRange,
	FieldSellingPoints,
}

// Placeholder values used when a provider omits a field.
const (
	DefaultTitle           = "Item (AI Analysis)"
	DefaultDescription     = "No description available."
	DefaultCondition       = "Good"
	DefaultCategory        = "Collectibles"
	DefaultBrand           = "Unknown"
	DefaultMaterial        = "Mixed Materials"
	DefaultColor           = "Multicolor"
	DefaultCountryOfOrigin = "Unknown"
	DefaultValueRange      = "$10-50"
)

// DefaultSellingPoints returns a fresh copy of the placeholder selling points.
func DefaultSellingPoints() []string {
	return []string{"Vintage item", "Good condition"}
}

// EnrichmentRequest asks a provider to describe an item from its images.
type EnrichmentRequest struct {
	UserID     string   `json:"user_id" validate:"required,max=128"`
	ProviderID string   `json:"provider_id" validate:"required"`
	ImageRefs  []string `json:"image_refs" validate:"required,min=1,max=24,dive,required"`
	UserNote   string   `json:"user_note" validate:"max=2000"`
}

// EnrichmentResult is the canonical schema every provider response is
// normalized into. After normalization no field is empty.
type EnrichmentResult struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Condition       string   `json:"condition"`
	Category        string   `json:"category"`
	Brand           string   `json:"brand"`
	Material        string   `json:"material"`
	Color           string   `json:"color"`
	CountryOfOrigin string   `json:"country_of_origin"`
	ValueRange      string   `json:"value_range"`
	SellingPoints   []string `json:"selling_points"`

	// Defaulted names the canonical fields that hold a placeholder because
	// the provider left them out. It is not part of the wire format.
	Defaulted []string `json:"-"`
}

// IsDefaulted reports whether field holds a placeholder rather than a
// provider value.
func (r EnrichmentResult) IsDefaulted(field string) bool {
	return slices.Contains(r.Defaulted, field)
}

// DefaultEnrichmentResult returns a result made entirely of placeholders.
func DefaultEnrichmentResult() EnrichmentResult {
	return EnrichmentResult{
		Title:           DefaultTitle,
		Description:     DefaultDescription,
		Condition:       DefaultCondition,
		Category:        DefaultCategory,
		Brand:           DefaultBrand,
		Material:        DefaultMaterial,
		Color:           DefaultColor,
		CountryOfOrigin: DefaultCountryOfOrigin,
		ValueRange:      DefaultValueRange,
		SellingPoints:   DefaultSellingPoints(),
		Defaulted:       slices.Clone(CanonicalFields),
	}
}
