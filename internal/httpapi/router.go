// Package httpapi exposes providers, credentials, usage, enrichment and
// listing drafts over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/config"
	"listing_enricher/internal/listing"
	"listing_enricher/internal/middleware"
	"listing_enricher/internal/models"
	"listing_enricher/internal/providers"
	"listing_enricher/internal/utils"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// Catalog describes the supported providers
type Catalog interface {
	List() []providers.Descriptor
	Describe(provider string) (providers.Descriptor, error)
	ValidateKeyFormat(provider, candidate string) bool
}

// CredentialStore manages a user's provider credentials
type CredentialStore interface {
	Store(ctx context.Context, userID, provider, secret string) error
	Status(ctx context.Context, userID, provider string) (models.CredentialStatus, error)
	Delete(ctx context.Context, userID, provider string) error
	DeleteUser(ctx context.Context, userID string) (int, error)
}

// UsageReporter reports today's quota usage
type UsageReporter interface {
	StatsFor(ctx context.Context, userID, provider string) (models.UsageStats, error)
}

// Enricher runs one enrichment
type Enricher interface {
	Enrich(ctx context.Context, req models.EnrichmentRequest) (models.EnrichmentResult, error)
}

// Assembler turns a row and an optional enrichment into a payload
type Assembler interface {
	Assemble(row models.InventoryRow, enrichment *models.EnrichmentResult) models.ListingPayload
}

// Listings keeps a user's listing drafts
type Listings interface {
	Build(ctx context.Context, userID string, req listing.BuildRequest) (models.ListingDraft, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (models.ListingDraft, error)
	List(ctx context.Context, userID string) ([]models.ListingDraft, error)
	UpdateStatus(ctx context.Context, userID string, id uuid.UUID, status models.ListingStatus) (models.ListingDraft, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	DeleteUser(ctx context.Context, userID string) (int, error)
}

// EventLister returns a user's usage events, oldest first
type EventLister func(ctx context.Context, userID string) ([]models.UsageEvent, error)

// HealthChecker is run by GET /health. Name appears in the response.
type HealthChecker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Catalog     Catalog
	Credentials CredentialStore
	Usage       UsageReporter
	Enricher    Enricher
	Assembler   Assembler
	Listings    Listings
	Health      []HealthChecker

	// Events is optional; without it GET /api/me/events is not served
	Events EventLister
}

// Server holds the handlers
type Server struct {
	deps   Dependencies
	cfg    *config.Config
	logger *utils.Logger
}

// NewRouter creates an HTTP handler with every route registered
func NewRouter(cfg *config.Config, deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil || deps.Credentials == nil || deps.Usage == nil ||
		deps.Enricher == nil || deps.Assembler == nil || deps.Listings == nil {
		return nil, apperr.Configuration("http router is missing a dependency", nil)
	}

	s := &Server{deps: deps, cfg: cfg, logger: utils.NewLogger("http")}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	return middleware.RequestLogMiddleware(s.logger)(mux), nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/providers", s.handleListProviders)
	mux.HandleFunc("GET /api/providers/{provider}", s.handleGetProvider)
	mux.HandleFunc("POST /api/providers/{provider}/validate", s.handleValidateKey)

	// Bearer token required
	user := middleware.UserJWTMiddleware(s.cfg)
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, user(h))
	}

	protected("PUT /api/me/credentials/{provider}", s.handlePutCredential)
	protected("GET /api/me/credentials/{provider}", s.handleGetCredential)
	protected("DELETE /api/me/credentials/{provider}", s.handleDeleteCredential)
	protected("GET /api/me/usage/{provider}", s.handleUsage)
	protected("POST /api/me/enrich", s.handleEnrich)
	protected("POST /api/listings/assemble", s.handleAssemble)
	protected("POST /api/me/listings", s.handleCreateListing)
	protected("GET /api/me/listings", s.handleListListings)
	protected("GET /api/me/listings/{id}", s.handleGetListing)
	protected("PATCH /api/me/listings/{id}", s.handleUpdateListing)
	protected("DELETE /api/me/listings/{id}", s.handleDeleteListing)
	protected("DELETE /api/me", s.handleDeleteMe)
	if s.deps.Events != nil {
		protected("GET /api/me/events", s.handleListEvents)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.deps.Health))
	status := http.StatusOK
	for _, hc := range s.deps.Health {
		if err := hc.Check(r.Context()); err != nil {
			s.logger.Warn("Health check failed", "component", hc.Name, "error", err)
			checks[hc.Name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	utils.RespondWithJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}

// userID returns the authenticated user. The middleware guarantees it.
func userID(r *http.Request) string {
	id, _ := middleware.GetUserID(r.Context())
	return id
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperr.InvalidRequest(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return apperr.InvalidRequest("request body is empty")
		default:
			return apperr.InvalidRequest("invalid JSON body: " + err.Error())
		}
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidRequest("listing id must be a UUID")
	}
	return id, nil
}
