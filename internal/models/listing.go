package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRow is one item of the seller's inventory sheet.
type InventoryRow struct {
	SKU            string   `json:"sku,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Quantity       int      `json:"quantity" validate:"gte=0"`
	Condition      string   `json:"condition"`
	Category       string   `json:"category"`
	PhotoFiles     []string `json:"photo_files,omitempty"`
	EstimatedPrice float64  `json:"estimated_price" validate:"gte=0"`
	Brand          string   `json:"brand,omitempty"`
	Type           string   `json:"type,omitempty"`
	Material       string   `json:"material,omitempty"`
	Color          string   `json:"color,omitempty"`
	Country        string   `json:"country,omitempty"`
}

// ListingPayload is the marketplace-ready listing body.
type ListingPayload struct {
	Product              ListingProduct       `json:"product"`
	Availability         ListingAvailability  `json:"availability"`
	Condition            string               `json:"condition"`
	PackageWeightAndSize PackageWeightAndSize `json:"packageWeightAndSize"`
	Price                ListingPrice         `json:"price"`
	Format               string               `json:"format"`
	MarketplaceID        string               `json:"marketplaceId"`
	CategoryID           string               `json:"categoryId"`
	ListingPolicies      ListingPolicies      `json:"listingPolicies"`
	Auction              ListingAuction       `json:"auction"`
}

type ListingProduct struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Aspects     map[string][]string `json:"aspects"`
	ImageURLs   []string            `json:"imageUrls,omitempty"`
}

type ListingAvailability struct {
	ShipToLocationAvailability ShipToLocationAvailability `json:"shipToLocationAvailability"`
}

type ShipToLocationAvailability struct {
	Quantity int `json:"quantity"`
}

type PackageWeightAndSize struct {
	Weight Weight `json:"weight"`
}

type Weight struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type ListingPrice struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

type ListingPolicies struct {
	FulfillmentPolicyID string `json:"fulfillmentPolicyId"`
	PaymentPolicyID     string `json:"paymentPolicyId"`
	ReturnPolicyID      string `json:"returnPolicyId"`
}

type ListingAuction struct {
	EndTime string `json:"endTime"`
}

// ListingStatus is the lifecycle state of a stored listing.
type ListingStatus string

const (
	ListingStatusDraft   ListingStatus = "draft"
	ListingStatusActive  ListingStatus = "active"
	ListingStatusSold    ListingStatus = "sold"
	ListingStatusExpired ListingStatus = "expired"
	ListingStatusDeleted ListingStatus = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusDraft, ListingStatusActive, ListingStatusSold, ListingStatusExpired, ListingStatusDeleted:
		return true
	}
	return false
}

// EnrichmentFailure records why a listing was built without AI data.
type EnrichmentFailure struct {
	Kind     string `json:"kind"`
	Provider string `json:"provider,omitempty"`
	Message  string `json:"message"`
}

// ListingDraft is a built listing persisted for a user.
type ListingDraft struct {
	ID              uuid.UUID          `json:"id"`
	UserID          string             `json:"user_id"`
	SKU             string             `json:"sku,omitempty"`
	Status          ListingStatus      `json:"status"`
	ProviderID      string             `json:"provider_id,omitempty"`
	Payload         ListingPayload     `json:"payload"`
	Enrichment      *EnrichmentResult  `json:"enrichment,omitempty"`
	EnrichmentError *EnrichmentFailure `json:"enrichment_error,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
