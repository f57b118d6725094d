package listing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"listing_enricher/internal/apperr"
)

// MarketplaceConfig is the read-only mapping document used to assemble
// listings. JSON documents are accepted too since YAML is a superset.
type MarketplaceConfig struct {
	CategoryMappings  map[string]string `yaml:"category_mappings" json:"category_mappings"`
	ConditionMappings map[string]string `yaml:"condition_mappings" json:"condition_mappings"`
	Defaults          Defaults          `yaml:"defaults" json:"defaults"`
	Policies          Policies          `yaml:"policies" json:"policies"`
}

// Defaults are the literal fallbacks of the assembler
type Defaults struct {
	DefaultCategory     string  `yaml:"default_category" json:"default_category"`
	DefaultCondition    string  `yaml:"default_condition" json:"default_condition"`
	DefaultBrand        string  `yaml:"default_brand" json:"default_brand"`
	DefaultType         string  `yaml:"default_type" json:"default_type"`
	DefaultMaterial     string  `yaml:"default_material" json:"default_material"`
	DefaultColor        string  `yaml:"default_color" json:"default_color"`
	DefaultCountry      string  `yaml:"default_country" json:"default_country"`
	DefaultWeight       float64 `yaml:"default_weight" json:"default_weight"`
	DefaultWeightUnit   string  `yaml:"default_weight_unit" json:"default_weight_unit"`
	Currency            string  `yaml:"currency" json:"currency"`
	MarketplaceID       string  `yaml:"marketplace_id" json:"marketplace_id"`
	Format              string  `yaml:"format" json:"format"`
	MaxTitleLength      int     `yaml:"max_title_length" json:"max_title_length"`
	MaxImages           int     `yaml:"max_images" json:"max_images"`
	AuctionDurationDays int     `yaml:"auction_duration_days" json:"auction_duration_days"`
	ImageBaseURL        string  `yaml:"image_base_url" json:"image_base_url"`
}

// Policies are marketplace policy identifiers passed through verbatim
type Policies struct {
	FulfillmentPolicyID string `yaml:"fulfillment_policy_id" json:"fulfillment_policy_id"`
	PaymentPolicyID     string `yaml:"payment_policy_id" json:"payment_policy_id"`
	ReturnPolicyID      string `yaml:"return_policy_id" json:"return_policy_id"`
}

// DefaultMarketplaceConfig returns the built-in configuration
func DefaultMarketplaceConfig() MarketplaceConfig {
	return MarketplaceConfig{
		CategoryMappings: map[string]string{},
		ConditionMappings: map[string]string{
			"new":       "NEW",
			"very good": "VERY_GOOD",
			"good":      "GOOD",
			"fair":      "FAIR",
			"poor":      "POOR",
		},
		Defaults: Defaults{
			DefaultCategory:     "45100",
			DefaultCondition:    "GOOD",
			DefaultBrand:        "Unbranded",
			DefaultType:         "Collectible",
			DefaultMaterial:     "Mixed Materials",
			DefaultColor:        "Multicolor",
			DefaultCountry:      "Unknown",
			DefaultWeight:       1.0,
			DefaultWeightUnit:   "POUND",
			Currency:            "USD",
			MarketplaceID:       "EBAY_US",
			Format:              "AUCTION",
			MaxTitleLength:      80,
			MaxImages:           12,
			AuctionDurationDays: 7,
		},
		Policies: Policies{
			FulfillmentPolicyID: "FREIGHT_SHIPPING",
			PaymentPolicyID:     "PAYMENT_IMMEDIATE",
			ReturnPolicyID:      "RETURN_30_DAYS",
		},
	}
}

// LoadMarketplaceConfig reads the document at path. A missing or unreadable
// document yields the built-in configuration together with a Configuration
// error the caller is expected to log and continue past.
func LoadMarketplaceConfig(path string) (MarketplaceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultMarketplaceConfig(), apperr.Configuration(fmt.Sprintf("marketplace config %s unavailable, using built-in defaults", path), err)
	}
	return ParseMarketplaceConfig(data)
}

// ParseMarketplaceConfig decodes a YAML or JSON document. Unset values keep
// their built-in defaults.
func ParseMarketplaceConfig(data []byte) (MarketplaceConfig, error) {
	var doc MarketplaceConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return DefaultMarketplaceConfig(), apperr.Configuration("marketplace config is not valid YAML or JSON, using built-in defaults", err)
	}
	return doc.withDefaults(), nil
}

func (c MarketplaceConfig) withDefaults() MarketplaceConfig {
	def := DefaultMarketplaceConfig()

	out := MarketplaceConfig{
		CategoryMappings:  make(map[string]string, len(c.CategoryMappings)),
		ConditionMappings: make(map[string]string),
		Defaults:          c.Defaults,
		Policies:          c.Policies,
	}

	for k, v := range c.CategoryMappings {
		out.CategoryMappings[k] = v
	}

	conditions := c.ConditionMappings
	if len(conditions) == 0 {
		conditions = def.ConditionMappings
	}
	for k, v := range conditions {
		out.ConditionMappings[strings.ToLower(strings.TrimSpace(k))] = v
	}

	d := &out.Defaults
	orString(&d.DefaultCategory, def.Defaults.DefaultCategory)
	orString(&d.DefaultCondition, def.Defaults.DefaultCondition)
	orString(&d.DefaultBrand, def.Defaults.DefaultBrand)
	orString(&d.DefaultType, def.Defaults.DefaultType)
	orString(&d.DefaultMaterial, def.Defaults.DefaultMaterial)
	orString(&d.DefaultColor, def.Defaults.DefaultColor)
	orString(&d.DefaultCountry, def.Defaults.DefaultCountry)
	orString(&d.DefaultWeightUnit, def.Defaults.DefaultWeightUnit)
	orString(&d.Currency, def.Defaults.Currency)
	orString(&d.MarketplaceID, def.Defaults.MarketplaceID)
	orString(&d.Format, def.Defaults.Format)
	if d.DefaultWeight <= 0 {
		d.DefaultWeight = def.Defaults.DefaultWeight
	}
	if d.MaxTitleLength <= 0 {
		d.MaxTitleLength = def.Defaults.MaxTitleLength
	}
	if d.MaxImages <= 0 {
		d.MaxImages = def.Defaults.MaxImages
	}
	if d.AuctionDurationDays <= 0 {
		d.AuctionDurationDays = def.Defaults.AuctionDurationDays
	}

	p := &out.Policies
	orString(&p.FulfillmentPolicyID, def.Policies.FulfillmentPolicyID)
	orString(&p.PaymentPolicyID, def.Policies.PaymentPolicyID)
	orString(&p.ReturnPolicyID, def.Policies.ReturnPolicyID)

	return out
}

func orString(dst *string, fallback string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = fallback
	}
}
