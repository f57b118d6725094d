package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/auth"
	"listing_enricher/internal/config"
	"listing_enricher/internal/enrichment"
	"listing_enricher/internal/listing"
	"listing_enricher/internal/models"
	"listing_enricher/internal/providers"
	"listing_enricher/internal/quota"
	"listing_enricher/internal/storage"
	"listing_enricher/internal/utils"
	"listing_enricher/internal/vault"
)

const (
	openAIKey = "sk-abcdefghijklmnopqrstuvwxy"
	pngImage  = "data:image/png;base64,iVBORw0KGgo="
)

type testServer struct {
	handler http.Handler
	cfg     *config.Config
	calls   *atomic.Int32
}

func newTestServer(t *testing.T, dailyLimit int) *testServer {
	t.Helper()

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:   []byte("http-test-secret"),
			Issuer:   "listing-enricher",
			TokenTTL: time.Hour,
		},
	}

	calls := &atomic.Int32{}
	adapter := providers.AdapterFunc(func(ctx context.Context, images []providers.Image, prompt, credential string) (string, error) {
		calls.Add(1)
		if credential != openAIKey {
			return "", &providers.CallError{Provider: providers.OpenAI, StatusCode: 401, Body: "bad key"}
		}
		return `{"title":"Vintage Jacket","description":"Brown suede jacket.","value_range":"$20-40"}`, nil
	})

	registry := providers.NewRegistry(providers.Config{
		Overrides: map[string]providers.Override{providers.OpenAI: {DailyLimit: dailyLimit}},
	}).WithAdapter(providers.OpenAI, adapter)

	store := storage.NewMemoryStore()
	v, err := vault.Open(vault.NewMemoryKeySource(nil), store, registry)
	require.NoError(t, err)

	tracker := quota.NewTracker(quota.NewStoreCounters(store), registry)

	enricher, err := enrichment.NewRouter(enrichment.Config{
		Catalog:     registry,
		Quota:       tracker,
		Credentials: v,
		Images:      enrichment.NewImageLoader(enrichment.LoaderConfig{Root: t.TempDir()}),
	})
	require.NoError(t, err)

	assembler := listing.NewAssembler(listing.DefaultMarketplaceConfig())
	builder := listing.NewBuilder(enricher, assembler, store)

	handler, err := NewRouter(cfg, Dependencies{
		Catalog:     registry,
		Credentials: v,
		Usage:       tracker,
		Enricher:    enricher,
		Assembler:   assembler,
		Listings:    builder,
		Health: []HealthChecker{
			{Name: "store", Check: func(ctx context.Context) error { return nil }},
		},
		Events: func(ctx context.Context, userID string) ([]models.UsageEvent, error) {
			return storage.ListUsageEvents(ctx, store, userID)
		},
	})
	require.NoError(t, err)

	return &testServer{handler: handler, cfg: cfg, calls: calls}
}

func (s *testServer) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		token, _, err := auth.GenerateUserToken(user, s.cfg)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody[map[string]interface{}](t, w)["status"])
}

func TestProviders_Public(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(t, http.MethodGet, "/api/providers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[struct {
		Providers []providers.Descriptor `json:"providers"`
	}](t, w)
	assert.Len(t, list.Providers, 5)

	w = s.do(t, http.MethodGet, "/api/providers/anthropic", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, providers.Anthropic, decodeBody[providers.Descriptor](t, w).ID)

	w = s.do(t, http.MethodGet, "/api/providers/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_provider", decodeBody[utils.ErrorResponse](t, w).Kind)

	w = s.do(t, http.MethodPost, "/api/providers/openai/validate", "", ValidateKeyRequest{Key: openAIKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody[map[string]interface{}](t, w)["valid"])

	w = s.do(t, http.MethodPost, "/api/providers/openai/validate", "", ValidateKeyRequest{Key: "short"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody[map[string]interface{}](t, w)["valid"])
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t, 0)
	for _, path := range []string{"/api/me/usage/openai", "/api/me/listings", "/api/me/credentials/openai"} {
		w := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestCredentialsLifecycle(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(t, http.MethodGet, "/api/me/credentials/openai", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeBody[models.CredentialStatus](t, w).Configured)

	w = s.do(t, http.MethodPut, "/api/me/credentials/openai", "alice", PutCredentialRequest{Key: "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "credential_format", decodeBody[utils.ErrorResponse](t, w).Kind)

	w = s.do(t, http.MethodPut, "/api/me/credentials/openai", "alice", PutCredentialRequest{Key: openAIKey})
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeBody[models.CredentialStatus](t, w)
	assert.True(t, status.Configured)
	assert.NotContains(t, w.Body.String(), openAIKey, "secrets are never echoed")

	// Another user sees nothing
	w = s.do(t, http.MethodGet, "/api/me/credentials/openai", "bob", nil)
	assert.False(t, decodeBody[models.CredentialStatus](t, w).Configured)

	w = s.do(t, http.MethodDelete, "/api/me/credentials/openai", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, "/api/me/credentials/openai", "alice", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestEnrich_EndToEnd(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(t, http.MethodPost, "/api/me/enrich", "alice", EnrichRequest{Provider: "openai", Images: []string{pngImage}})
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	errBody := decodeBody[utils.ErrorResponse](t, w)
	assert.Equal(t, "credential_missing", errBody.Kind)
	assert.Equal(t, "openai", errBody.Provider)
	assert.Zero(t, s.calls.Load())

	w = s.do(t, http.MethodPut, "/api/me/credentials/openai", "alice", PutCredentialRequest{Key: openAIKey})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/me/usage/openai", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decodeBody[models.UsageStats](t, w).Used)

	w = s.do(t, http.MethodPost, "/api/me/enrich", "alice", EnrichRequest{Provider: "openai", Images: []string{pngImage}, Note: "vintage jacket"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeBody[models.EnrichmentResult](t, w)
	assert.Equal(t, "Vintage Jacket", result.Title)
	assert.Equal(t, models.DefaultBrand, result.Brand)

	w = s.do(t, http.MethodGet, "/api/me/usage/openai", "alice", nil)
	assert.Equal(t, 1, decodeBody[models.UsageStats](t, w).Used)
}

func TestEnrich_QuotaExceeded(t *testing.T) {
	s := newTestServer(t, 1)

	w := s.do(t, http.MethodPut, "/api/me/credentials/openai", "alice", PutCredentialRequest{Key: openAIKey})
	require.Equal(t, http.StatusOK, w.Code)

	req := EnrichRequest{Provider: "openai", Images: []string{pngImage}}
	w = s.do(t, http.MethodPost, "/api/me/enrich", "alice", req)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/me/enrich", "alice", req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decodeBody[utils.ErrorResponse](t, w)
	assert.Equal(t, "quota_exceeded", body.Kind)
	assert.Equal(t, 1, body.Limit)
	assert.Equal(t, 1, body.Used)
	assert.Equal(t, int32(1), s.calls.Load(), "exhausted quota never reaches the provider")
}

func TestEnrich_InvalidBodies(t *testing.T) {
	s := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/me/enrich", bytes.NewBufferString("{not json"))
	token, _, err := auth.GenerateUserToken("alice", s.cfg)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/me/enrich", "alice", EnrichRequest{Provider: "openai"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "images are required")

	w = s.do(t, http.MethodPost, "/api/me/enrich", "alice", EnrichRequest{Provider: "nope", Images: []string{pngImage}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssemble(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(t, http.MethodPost, "/api/listings/assemble", "alice", AssembleRequest{
		Row: models.InventoryRow{SKU: "A1", Title: "Lamp", Condition: "New", EstimatedPrice: 12.5},
	})
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody[models.ListingPayload](t, w)
	assert.Equal(t, "Lamp", payload.Product.Title)
	assert.Equal(t, "NEW", payload.Condition)
	assert.Equal(t, 12.5, payload.Price.Value)
}

func TestListingsLifecycle(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(t, http.MethodPut, "/api/me/credentials/openai", "alice", PutCredentialRequest{Key: openAIKey})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/me/listings", "alice", listing.BuildRequest{
		Provider: "openai",
		Row:      models.InventoryRow{SKU: "J1", Title: "Old jacket", PhotoFiles: []string{pngImage}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	draft := decodeBody[models.ListingDraft](t, w)
	assert.Equal(t, "Vintage Jacket", draft.Payload.Product.Title)
	assert.Equal(t, 30.0, draft.Payload.Price.Value)

	w = s.do(t, http.MethodGet, "/api/me/listings", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody[map[string]interface{}](t, w)["count"])

	path := "/api/me/listings/" + draft.ID.String()

	w = s.do(t, http.MethodGet, path, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPatch, path, "alice", UpdateListingRequest{Status: models.ListingStatusActive})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ListingStatusActive, decodeBody[models.ListingDraft](t, w).Status)

	w = s.do(t, http.MethodPatch, path, "alice", UpdateListingRequest{Status: "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/me/listings/not-a-uuid", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, path, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteMe(t *testing.T) {
	s := newTestServer(t, 0)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/me/credentials/openai", "alice", PutCredentialRequest{Key: openAIKey}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/me/listings", "alice", listing.BuildRequest{Row: models.InventoryRow{Title: "Lamp"}}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/me/listings", "alice", listing.BuildRequest{Row: models.InventoryRow{Title: "Chair"}}).Code)

	w := s.do(t, http.MethodDelete, "/api/me", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := decodeBody[map[string]int](t, w)
	assert.Equal(t, 1, counts["credentials_deleted"])
	assert.Equal(t, 2, counts["listings_deleted"])

	w = s.do(t, http.MethodGet, "/api/me/credentials/openai", "alice", nil)
	assert.False(t, decodeBody[models.CredentialStatus](t, w).Configured)
}

func TestListEvents(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.do(t, http.MethodGet, "/api/me/events", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[struct {
		Events []models.UsageEvent `json:"events"`
		Count  int                 `json:"count"`
	}](t, w)
	assert.Zero(t, body.Count)
	assert.NotNil(t, body.Events)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.QuotaExceeded("openai", 1, 1), http.StatusTooManyRequests},
		{apperr.RateLimited("openai", 10), http.StatusTooManyRequests},
		{apperr.CredentialMissing("u", "openai"), http.StatusPreconditionFailed},
		{apperr.ProviderCall("openai", 500, "", nil), http.StatusBadGateway},
		{apperr.Storage("x", errors.New("down")), http.StatusServiceUnavailable},
		{apperr.NotFound("listing"), http.StatusNotFound},
		{errors.New("opaque"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestProviderErrorBody(t *testing.T) {
	s := &Server{logger: utils.NewLogger("http-test")}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/me/enrich", nil)

	s.respondWithAppError(w, r, apperr.ProviderCall("anthropic", 503, "<html>overloaded</html>", errors.New("secret detail")))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeBody[utils.ErrorResponse](t, w)
	assert.Equal(t, "provider_call_failed", body.Kind)
	assert.Equal(t, "anthropic", body.Provider)
	assert.Equal(t, 503, body.Status)
	assert.NotContains(t, body.Error, "secret detail")

	w = httptest.NewRecorder()
	s.respondWithAppError(w, r, errors.New("raw database error"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "raw database error")
}
