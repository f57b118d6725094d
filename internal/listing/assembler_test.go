package listing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/models"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func sampleRow() models.InventoryRow {
	return models.InventoryRow{
		SKU:            "SKU-1",
		Title:          "Old jacket",
		Description:    "Leather jacket from the attic.",
		Quantity:       2,
		Condition:      "Very Good",
		Category:       "Clothing > Jackets",
		PhotoFiles:     []string{"jacket/front.jpg", "https://cdn.example.com/back.jpg"},
		EstimatedPrice: 42.129,
		Brand:          "Levi's",
		Type:           "Jacket",
	}
}

func sampleEnrichment() *models.EnrichmentResult {
	r := models.DefaultEnrichmentResult()
	r.Title = "Vintage Jacket"
	r.Description = "Brown suede jacket with fringe."
	r.Condition = "Fair"
	r.Material = "Suede"
	r.ValueRange = "$20-40"
	r.Defaulted = []string{
		models.FieldBrand,
		models.FieldCategory,
		models.FieldColor,
		models.FieldCountryOfOrigin,
		models.FieldSellingPoints,
	}
	return &r
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$10-50", 30},
		{"$25.50", 25.5},
		{"$10-$50", 30},
		{"no price info", 0},
		{"25.50", 25.5},
		{"10 - 15", 12.5},
		{"$1,200 – $1,500", 1350},
		{"around $19.999", 20},
		{"$10.10-$10.15", 10.13},
		{"", 0},
		{"price 25 dollars", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPrice(tt.in))
		})
	}
}

func TestAssemble_EnrichmentWins(t *testing.T) {
	cfg := DefaultMarketplaceConfig()
	cfg.CategoryMappings = map[string]string{"Clothing > Jackets": "57988"}
	cfg.Defaults.ImageBaseURL = "https://images.example.com/items"

	a := NewAssembler(cfg, WithClock(fixedClock))
	p := a.Assemble(sampleRow(), sampleEnrichment())

	assert.Equal(t, "Vintage Jacket", p.Product.Title)
	assert.Equal(t, "Brown suede jacket with fringe.", p.Product.Description)
	assert.Equal(t, []string{"Levi's"}, p.Product.Aspects["Brand"], "placeholder brand falls back to the row")
	assert.Equal(t, []string{"Jacket"}, p.Product.Aspects["Type"])
	assert.Equal(t, []string{"Suede"}, p.Product.Aspects["Material"])
	assert.Equal(t, []string{"Multicolor"}, p.Product.Aspects["Color"])
	assert.Equal(t, []string{"Unknown"}, p.Product.Aspects["Country/Region of Manufacture"])

	assert.Equal(t, "FAIR", p.Condition)
	assert.Equal(t, "57988", p.CategoryID)
	assert.Equal(t, 30.0, p.Price.Value)
	assert.Equal(t, "USD", p.Price.Currency)
	assert.Equal(t, 2, p.Availability.ShipToLocationAvailability.Quantity)
	assert.Equal(t, []string{
		"https://images.example.com/items/jacket/front.jpg",
		"https://cdn.example.com/back.jpg",
	}, p.Product.ImageURLs)
	assert.Equal(t, "2024-06-08T09:30:00Z", p.Auction.EndTime)
	assert.Equal(t, "AUCTION", p.Format)
	assert.Equal(t, "EBAY_US", p.MarketplaceID)
	assert.Equal(t, "FREIGHT_SHIPPING", p.ListingPolicies.FulfillmentPolicyID)
	assert.Equal(t, 1.0, p.PackageWeightAndSize.Weight.Value)
	assert.Equal(t, "POUND", p.PackageWeightAndSize.Weight.Unit)
}

func TestAssemble_InventoryOnly(t *testing.T) {
	a := NewAssembler(DefaultMarketplaceConfig(), WithClock(fixedClock))
	p := a.Assemble(sampleRow(), nil)

	assert.Equal(t, "Old jacket", p.Product.Title)
	assert.Equal(t, "VERY_GOOD", p.Condition)
	assert.Equal(t, "45100", p.CategoryID)
	assert.Equal(t, 42.13, p.Price.Value)
	assert.Equal(t, []string{"Mixed Materials"}, p.Product.Aspects["Material"])
	assert.Equal(t, []string{"jacket/front.jpg", "https://cdn.example.com/back.jpg"}, p.Product.ImageURLs)
}

func TestAssemble_LiteralDefaults(t *testing.T) {
	a := NewAssembler(DefaultMarketplaceConfig(), WithClock(fixedClock))
	p := a.Assemble(models.InventoryRow{}, nil)

	assert.Equal(t, untitled, p.Product.Title)
	assert.Equal(t, untitled, p.Product.Description)
	assert.Equal(t, "GOOD", p.Condition)
	assert.Equal(t, "45100", p.CategoryID)
	assert.Zero(t, p.Price.Value)
	assert.Equal(t, 1, p.Availability.ShipToLocationAvailability.Quantity)
	assert.Equal(t, []string{"Unbranded"}, p.Product.Aspects["Brand"])
	assert.Empty(t, p.Product.ImageURLs)
}

func TestAssemble_PlaceholderEnrichment(t *testing.T) {
	a := NewAssembler(DefaultMarketplaceConfig(), WithClock(fixedClock))
	placeholder := models.DefaultEnrichmentResult()

	p := a.Assemble(sampleRow(), &placeholder)
	assert.Equal(t, "Old jacket", p.Product.Title)
	assert.Equal(t, "VERY_GOOD", p.Condition, "row condition beats the placeholder")
	assert.Equal(t, 42.13, p.Price.Value, "placeholder value range is ignored")

	// With nothing else available the placeholder condition still maps
	p = a.Assemble(models.InventoryRow{}, &placeholder)
	assert.Equal(t, "GOOD", p.Condition)
}

func TestAssemble_ProviderValuesEqualToPlaceholdersWin(t *testing.T) {
	cfg := DefaultMarketplaceConfig()
	cfg.CategoryMappings = map[string]string{"Collectibles": "1", "Clothing > Jackets": "57988"}
	a := NewAssembler(cfg, WithClock(fixedClock))

	// Every field came from the provider, some happen to match a placeholder
	e := models.DefaultEnrichmentResult()
	e.Title = "Vintage Jacket"
	e.Defaulted = nil

	row := sampleRow()
	row.Condition = "New"
	row.EstimatedPrice = 0

	p := a.Assemble(row, &e)
	assert.Equal(t, "GOOD", p.Condition)
	assert.Equal(t, 30.0, p.Price.Value)
	assert.Equal(t, "1", p.CategoryID)
	assert.Equal(t, []string{"Unknown"}, p.Product.Aspects["Brand"])
	assert.Equal(t, "No description available.", p.Product.Description)
}

func TestAssemble_TitleTruncatedToRunes(t *testing.T) {
	a := NewAssembler(DefaultMarketplaceConfig(), WithClock(fixedClock))
	e := sampleEnrichment()
	e.Title = strings.Repeat("ü", 100)

	p := a.Assemble(sampleRow(), e)
	assert.Equal(t, 80, len([]rune(p.Product.Title)))
}

func TestAssemble_MaxImages(t *testing.T) {
	cfg := DefaultMarketplaceConfig()
	cfg.Defaults.MaxImages = 3
	row := sampleRow()
	row.PhotoFiles = []string{"a.jpg", " ", "b.jpg", "c.jpg", "d.jpg"}

	p := NewAssembler(cfg, WithClock(fixedClock)).Assemble(row, nil)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, p.Product.ImageURLs)
}

func TestAssemble_Idempotent(t *testing.T) {
	a := NewAssembler(DefaultMarketplaceConfig(), WithClock(fixedClock))
	row, e := sampleRow(), sampleEnrichment()

	first, err := json.Marshal(a.Assemble(row, e))
	require.NoError(t, err)
	second, err := json.Marshal(a.Assemble(row, e))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestResolveImages(t *testing.T) {
	got := ResolveImages([]string{"a b.jpg", "/rooted.jpg", "http://x.test/y.jpg", "C:\\photos\\z.jpg"}, "https://img.test/base/", 0)
	assert.Equal(t, []string{
		"https://img.test/base/a%20b.jpg",
		"https://img.test/base/rooted.jpg",
		"http://x.test/y.jpg",
		"C:\\photos\\z.jpg",
	}, got)

	assert.Equal(t, []string{"a.jpg"}, ResolveImages([]string{"a.jpg"}, "not a url", 0))
}

func TestLoadMarketplaceConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "marketplace.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
category_mappings:
  "Clothing > Jackets": "57988"
condition_mappings:
  New: NEW
  Used: USED_EXCELLENT
defaults:
  default_category: "99"
  max_images: 4
policies:
  return_policy_id: NO_RETURNS
`), 0o644))

		cfg, err := LoadMarketplaceConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "57988", cfg.CategoryMappings["Clothing > Jackets"])
		assert.Equal(t, "USED_EXCELLENT", cfg.ConditionMappings["used"])
		assert.NotContains(t, cfg.ConditionMappings, "fair")
		assert.Equal(t, "99", cfg.Defaults.DefaultCategory)
		assert.Equal(t, 4, cfg.Defaults.MaxImages)
		assert.Equal(t, 80, cfg.Defaults.MaxTitleLength)
		assert.Equal(t, "NO_RETURNS", cfg.Policies.ReturnPolicyID)
		assert.Equal(t, "PAYMENT_IMMEDIATE", cfg.Policies.PaymentPolicyID)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "marketplace.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"category_mappings": {"Toys": "220"}, "defaults": {"currency": "EUR"}}`), 0o644))

		cfg, err := LoadMarketplaceConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "220", cfg.CategoryMappings["Toys"])
		assert.Equal(t, "EUR", cfg.Defaults.Currency)
		assert.Equal(t, "VERY_GOOD", cfg.ConditionMappings["very good"])
	})

	t.Run("missing file", func(t *testing.T) {
		cfg, err := LoadMarketplaceConfig(filepath.Join(dir, "nope.yaml"))
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
		assert.Equal(t, DefaultMarketplaceConfig(), cfg)
	})

	t.Run("unparseable", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("category_mappings: [unclosed"), 0o644))

		cfg, err := LoadMarketplaceConfig(path)
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
		assert.Equal(t, "45100", cfg.Defaults.DefaultCategory)
	})
}
