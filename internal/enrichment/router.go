// Package enrichment turns item images into a canonical listing description
// by routing one request to the user's chosen AI provider.
//
// A request is admitted against the daily quota and the per-minute provider
// limit before any network I/O. The user's credential is decrypted only for
// the duration of the call, and whatever text the provider returns is
// normalized into a complete EnrichmentResult. Quota is consumed only when
// the provider call succeeds.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/models"
	"listing_enricher/internal/providers"
	"listing_enricher/internal/quota"
	"listing_enricher/internal/ratelimit"
	"listing_enricher/internal/utils"
)

// DefaultCallTimeout bounds one provider round trip
const DefaultCallTimeout = 45 * time.Second

// Catalog describes providers and hands out their adapters
type Catalog interface {
	Describe(provider string) (providers.Descriptor, error)
	Adapter(provider string) (providers.Adapter, error)
	RateLimitPerMinute(provider string) int
}

// CredentialSource returns a user's decrypted provider secret
type CredentialSource interface {
	Retrieve(ctx context.Context, userID, provider string) (string, error)
}

// UsageRecorder accepts usage audit events
type UsageRecorder interface {
	Enqueue(ctx context.Context, event models.UsageEvent) error
}

// Config holds the collaborators of a Router. Limiter and Usage are
// optional.
type Config struct {
	Catalog     Catalog
	Quota       *quota.Tracker
	Credentials CredentialSource
	Images      *ImageLoader
	Limiter     ratelimit.Limiter
	Usage       UsageRecorder
	CallTimeout time.Duration
}

// Router executes enrichment requests
type Router struct {
	catalog     Catalog
	quota       *quota.Tracker
	credentials CredentialSource
	images      *ImageLoader
	limiter     ratelimit.Limiter
	usage       UsageRecorder
	timeout     time.Duration
	validate    *validator.Validate
	logger      *utils.Logger
}

// NewRouter creates a router
func NewRouter(cfg Config) (*Router, error) {
	if cfg.Catalog == nil || cfg.Quota == nil || cfg.Credentials == nil {
		return nil, apperr.Configuration("enrichment router requires a provider catalog, a quota tracker and a credential source", nil)
	}
	if cfg.Images == nil {
		cfg.Images = NewImageLoader(LoaderConfig{})
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewNoopLimiter()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	return &Router{
		catalog:     cfg.Catalog,
		quota:       cfg.Quota,
		credentials: cfg.Credentials,
		images:      cfg.Images,
		limiter:     cfg.Limiter,
		usage:       cfg.Usage,
		timeout:     cfg.CallTimeout,
		validate:    newValidator(),
		logger:      utils.NewLogger("enrichment"),
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Enrich runs one enrichment request to completion
func (r *Router) Enrich(ctx context.Context, req models.EnrichmentRequest) (models.EnrichmentResult, error) {
	if err := r.validate.Struct(req); err != nil {
		return models.EnrichmentResult{}, apperr.InvalidRequest(validationMessage(err))
	}

	provider := req.ProviderID
	descriptor, err := r.catalog.Describe(provider)
	if err != nil {
		return models.EnrichmentResult{}, err
	}
	adapter, err := r.catalog.Adapter(provider)
	if err != nil {
		return models.EnrichmentResult{}, err
	}

	reservation, err := r.quota.Acquire(ctx, req.UserID, provider)
	if err != nil {
		return models.EnrichmentResult{}, err
	}
	defer reservation.Release()

	perMinute := r.catalog.RateLimitPerMinute(provider)
	allowed, err := r.limiter.Allow(ctx, provider+":"+req.UserID, perMinute)
	if err != nil {
		return models.EnrichmentResult{}, apperr.Storage("rate limit check", err)
	}
	if !allowed {
		r.logger.Info("Rate limited", "user_id", req.UserID, "provider", provider, "limit", perMinute)
		return models.EnrichmentResult{}, apperr.RateLimited(provider, perMinute)
	}

	credential, err := r.credentials.Retrieve(ctx, req.UserID, provider)
	if err != nil {
		return models.EnrichmentResult{}, err
	}

	images, err := r.images.Load(ctx, req.ImageRefs, descriptor.InlineImages)
	if err != nil {
		return models.EnrichmentResult{}, err
	}

	start := time.Now()
	raw, err := r.call(ctx, adapter, images, BuildPrompt(req.UserNote), credential)
	latency := time.Since(start)

	if err != nil {
		callErr := providerCallError(provider, err)
		r.logger.Warn("Provider call failed", "user_id", req.UserID, "provider", provider, "status", callErr.StatusCode, "latency_ms", latency.Milliseconds())
		r.recordUsage(ctx, req, descriptor, len(images), latency, callErr)
		return models.EnrichmentResult{}, callErr
	}

	result := Normalize(raw)

	if err := reservation.Commit(ctx); err != nil {
		r.logger.Error("Failed to record usage", "user_id", req.UserID, "provider", provider, "error", err)
		r.recordUsage(ctx, req, descriptor, len(images), latency, err)
		return models.EnrichmentResult{}, err
	}

	r.logger.Info("Enrichment completed", "user_id", req.UserID, "provider", provider, "images", len(images), "latency_ms", latency.Milliseconds())
	r.recordUsage(ctx, req, descriptor, len(images), latency, nil)
	return result, nil
}

func (r *Router) call(ctx context.Context, adapter providers.Adapter, images []providers.Image, prompt, credential string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return adapter.Call(ctx, images, prompt, credential)
}

// providerCallError keeps the status and body excerpt of a failed call.
// Failures without an HTTP response carry status 0.
func providerCallError(provider string, err error) *apperr.Error {
	var callErr *providers.CallError
	if errors.As(err, &callErr) {
		return apperr.ProviderCall(provider, callErr.StatusCode, callErr.Body, err)
	}
	return apperr.ProviderCall(provider, 0, "", err)
}

// recordUsage queues the audit event of one attempted call. Failures are
// logged only.
func (r *Router) recordUsage(ctx context.Context, req models.EnrichmentRequest, d providers.Descriptor, imageCount int, latency time.Duration, callErr error) {
	if r.usage == nil {
		return
	}

	event := models.UsageEvent{
		UserID:     req.UserID,
		ProviderID: req.ProviderID,
		Model:      d.ModelID,
		Success:    callErr == nil,
		ImageCount: imageCount,
		LatencyMS:  latency.Milliseconds(),
	}
	if callErr != nil {
		event.ErrorKind = string(apperr.KindOf(callErr))
		event.ErrorMessage = callErr.Error()
	}

	if err := r.usage.Enqueue(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("Failed to queue usage event", "user_id", req.UserID, "provider", req.ProviderID, "error", err)
	}
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s needs at least %s entries", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s exceeds the maximum of %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
