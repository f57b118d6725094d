package listing

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/models"
	"listing_enricher/internal/storage"
	"listing_enricher/internal/utils"
)

// ListingsTable holds ListingDraft records keyed by id
const ListingsTable = "listings"

// Enricher produces an enrichment for a request
type Enricher interface {
	Enrich(ctx context.Context, req models.EnrichmentRequest) (models.EnrichmentResult, error)
}

// BuildRequest describes one listing to build. Images default to the row's
// photo files; Provider is optional.
type BuildRequest struct {
	Provider string              `json:"provider,omitempty"`
	Row      models.InventoryRow `json:"row"`
	Images   []string            `json:"images,omitempty"`
	Note     string              `json:"note,omitempty"`
}

// Builder enriches, assembles and persists listing drafts
type Builder struct {
	enricher  Enricher
	assembler *Assembler
	store     storage.RecordStore
	now       func() time.Time
	logger    *utils.Logger
}

// NewBuilder creates a builder. enricher may be nil, in which case every
// listing is built from inventory data only.
func NewBuilder(enricher Enricher, assembler *Assembler, store storage.RecordStore) *Builder {
	return &Builder{
		enricher:  enricher,
		assembler: assembler,
		store:     store,
		now:       time.Now,
		logger:    utils.NewLogger("listing"),
	}
}

// Build creates a draft for userID. A missing credential downgrades the
// draft to inventory data and is recorded on it; other enrichment failures
// are returned.
func (b *Builder) Build(ctx context.Context, userID string, req BuildRequest) (models.ListingDraft, error) {
	if userID == "" {
		return models.ListingDraft{}, apperr.InvalidRequest("user_id is required")
	}

	draft := models.ListingDraft{
		ID:         uuid.New(),
		UserID:     userID,
		SKU:        req.Row.SKU,
		Status:     models.ListingStatusDraft,
		ProviderID: req.Provider,
	}

	if req.Provider != "" && b.enricher != nil {
		images := req.Images
		if len(images) == 0 {
			images = req.Row.PhotoFiles
		}

		result, err := b.enricher.Enrich(ctx, models.EnrichmentRequest{
			UserID:     userID,
			ProviderID: req.Provider,
			ImageRefs:  images,
			UserNote:   req.Note,
		})
		switch {
		case err == nil:
			draft.Enrichment = &result
		case errors.Is(err, apperr.ErrCredentialMissing):
			b.logger.Info("No credential configured, building from inventory data", "user_id", userID, "provider", req.Provider)
			draft.EnrichmentError = &models.EnrichmentFailure{
				Kind:     string(apperr.KindCredentialMissing),
				Provider: req.Provider,
				Message:  err.Error(),
			}
		default:
			return models.ListingDraft{}, err
		}
	}

	draft.Payload = b.assembler.Assemble(req.Row, draft.Enrichment)

	now := b.now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	if err := b.put(ctx, draft); err != nil {
		return models.ListingDraft{}, err
	}

	b.logger.Info("Listing draft created", "user_id", userID, "listing_id", draft.ID, "enriched", draft.Enrichment != nil)
	return draft, nil
}

func (b *Builder) put(ctx context.Context, draft models.ListingDraft) error {
	if err := storage.PutJSON(ctx, b.store, ListingsTable, draft.ID.String(), draft); err != nil {
		return apperr.Storage("listing write", err)
	}
	return nil
}

// Get returns one of the user's drafts
func (b *Builder) Get(ctx context.Context, userID string, id uuid.UUID) (models.ListingDraft, error) {
	draft, err := storage.GetJSON[models.ListingDraft](ctx, b.store, ListingsTable, id.String())
	if errors.Is(err, storage.ErrRecordNotFound) {
		return models.ListingDraft{}, apperr.NotFound("listing")
	}
	if err != nil {
		return models.ListingDraft{}, apperr.Storage("listing read", err)
	}
	if draft.UserID != userID {
		return models.ListingDraft{}, apperr.NotFound("listing")
	}
	return draft, nil
}

// List returns the user's drafts, oldest first
func (b *Builder) List(ctx context.Context, userID string) ([]models.ListingDraft, error) {
	drafts, err := storage.QueryJSON(ctx, b.store, ListingsTable, func(d models.ListingDraft) bool {
		return d.UserID == userID
	})
	if err != nil {
		return nil, apperr.Storage("listing query", err)
	}

	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt.Before(drafts[j].CreatedAt)
	})
	return drafts, nil
}

// UpdateStatus moves a draft to another lifecycle state
func (b *Builder) UpdateStatus(ctx context.Context, userID string, id uuid.UUID, status models.ListingStatus) (models.ListingDraft, error) {
	if !status.Valid() {
		return models.ListingDraft{}, apperr.InvalidRequest("unknown listing status " + string(status))
	}

	draft, err := b.Get(ctx, userID, id)
	if err != nil {
		return models.ListingDraft{}, err
	}

	draft.Status = status
	draft.UpdatedAt = b.now().UTC()
	if err := b.put(ctx, draft); err != nil {
		return models.ListingDraft{}, err
	}
	return draft, nil
}

// Delete removes one of the user's drafts
func (b *Builder) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if _, err := b.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := b.store.Delete(ctx, ListingsTable, id.String()); err != nil {
		return apperr.Storage("listing delete", err)
	}
	return nil
}

// DeleteUser removes every draft of the user and returns how many
func (b *Builder) DeleteUser(ctx context.Context, userID string) (int, error) {
	drafts, err := b.List(ctx, userID)
	if err != nil {
		return 0, err
	}

	for _, d := range drafts {
		if err := b.store.Delete(ctx, ListingsTable, d.ID.String()); err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
			return 0, apperr.Storage("listing delete", err)
		}
	}
	return len(drafts), nil
}
