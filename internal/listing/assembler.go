// Package listing assembles marketplace listing payloads from an inventory
// row and an optional AI enrichment, and keeps the resulting drafts.
package listing

import (
	"strings"
	"time"

	"listing_enricher/internal/models"
)

const untitled = "Untitled Item"

// Option configures an Assembler
type Option func(*Assembler)

// WithClock replaces time.Now for the auction end time
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// Assembler merges inventory data, enrichment and marketplace configuration
type Assembler struct {
	cfg MarketplaceConfig
	now func() time.Time
}

// NewAssembler creates an assembler. cfg is completed with built-in
// defaults where unset.
func NewAssembler(cfg MarketplaceConfig, opts ...Option) *Assembler {
	a := &Assembler{cfg: cfg.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective marketplace configuration
func (a *Assembler) Config() MarketplaceConfig {
	return a.cfg
}

// Assemble builds the listing payload. Enrichment values win unless the
// normalizer filled them with a placeholder, then the row's values, then
// configured defaults. With a
// fixed clock the output depends only on the inputs.
func (a *Assembler) Assemble(row models.InventoryRow, enrichment *models.EnrichmentResult) models.ListingPayload {
	d := a.cfg.Defaults
	e := enrichment
	if e == nil {
		e = &models.EnrichmentResult{}
	}

	title := firstOf(ai(e, models.FieldTitle, e.Title), row.Title, untitled)
	description := firstOf(ai(e, models.FieldDescription, e.Description), row.Description, title)

	aspects := map[string][]string{
		"Brand":                         {firstOf(ai(e, models.FieldBrand, e.Brand), row.Brand, d.DefaultBrand)},
		"Type":                          {firstOf(row.Type, d.DefaultType)},
		"Material":                      {firstOf(ai(e, models.FieldMaterial, e.Material), row.Material, d.DefaultMaterial)},
		"Color":                         {firstOf(ai(e, models.FieldColor, e.Color), row.Color, d.DefaultColor)},
		"Country/Region of Manufacture": {firstOf(ai(e, models.FieldCountryOfOrigin, e.CountryOfOrigin), row.Country, d.DefaultCountry)},
	}

	quantity := row.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	payload := models.ListingPayload{
		Product: models.ListingProduct{
			Title:       truncateRunes(title, d.MaxTitleLength),
			Description: description,
			Aspects:     aspects,
			ImageURLs:   ResolveImages(row.PhotoFiles, d.ImageBaseURL, d.MaxImages),
		},
		Availability: models.ListingAvailability{
			ShipToLocationAvailability: models.ShipToLocationAvailability{Quantity: quantity},
		},
		Condition: a.conditionID(
			ai(e, models.FieldCondition, e.Condition),
			row.Condition,
			e.Condition,
		),
		PackageWeightAndSize: models.PackageWeightAndSize{
			Weight: models.Weight{Value: d.DefaultWeight, Unit: d.DefaultWeightUnit},
		},
		Price: models.ListingPrice{
			Value:    a.price(e, row),
			Currency: d.Currency,
		},
		Format:        d.Format,
		MarketplaceID: d.MarketplaceID,
		CategoryID: a.categoryID(
			ai(e, models.FieldCategory, e.Category),
			row.Category,
			e.Category,
		),
		ListingPolicies: models.ListingPolicies{
			FulfillmentPolicyID: a.cfg.Policies.FulfillmentPolicyID,
			PaymentPolicyID:     a.cfg.Policies.PaymentPolicyID,
			ReturnPolicyID:      a.cfg.Policies.ReturnPolicyID,
		},
		Auction: models.ListingAuction{
			EndTime: a.now().UTC().AddDate(0, 0, d.AuctionDurationDays).Format(time.RFC3339),
		},
	}

	return payload
}

func (a *Assembler) conditionID(candidates ...string) string {
	for _, c := range candidates {
		if id, ok := a.cfg.ConditionMappings[strings.ToLower(strings.TrimSpace(c))]; ok && c != "" {
			return id
		}
	}
	return a.cfg.Defaults.DefaultCondition
}

func (a *Assembler) categoryID(candidates ...string) string {
	for _, c := range candidates {
		if id, ok := a.cfg.CategoryMappings[c]; ok && c != "" {
			return id
		}
	}
	return a.cfg.Defaults.DefaultCategory
}

func (a *Assembler) price(e *models.EnrichmentResult, row models.InventoryRow) float64 {
	if vr := ai(e, models.FieldValueRange, e.ValueRange); vr != "" {
		if p := ExtractPrice(vr); p > 0 {
			return p
		}
	}
	return roundCents(row.EstimatedPrice)
}

// ai returns the enrichment value of field, or "" when it is a placeholder
func ai(e *models.EnrichmentResult, field, value string) string {
	if e.IsDefaulted(field) {
		return ""
	}
	return strings.TrimSpace(value)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
