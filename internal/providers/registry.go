// Package providers describes the supported AI vision backends and holds one
// adapter per backend.
//
// The set of backends is closed: openai, anthropic, google, local (Ollama)
// and custom (any OpenAI-compatible server). Descriptors are built once at
// start-up from defaults plus configuration overrides and never change.
package providers

import (
	"net/http"
	"time"

	"listing_enricher/internal/apperr"
)

// Override replaces selected descriptor fields. Zero values keep the default.
type Override struct {
	EndpointBase       string
	ModelID            string
	MaxTokens          int
	RateLimitPerMinute int
	DailyLimit         int
}

// Config controls how the registry is built
type Config struct {
	// HTTPClient is shared by all adapters; nil builds one with a 60s backstop
	HTTPClient *http.Client

	// Overrides are keyed by provider id
	Overrides map[string]Override

	// LocalAllowedHosts are the extra hosts a stored local endpoint may name
	LocalAllowedHosts []string
}

// Registry holds the immutable descriptors and adapters
type Registry struct {
	descriptors map[string]Descriptor
	adapters    map[string]Adapter
}

// NewRegistry builds the registry from defaults and overrides
func NewRegistry(cfg Config) *Registry {
	client := cfg.HTTPClient
	if client == nil {
		client = NewHTTPClient(60 * time.Second)
	}

	descriptors := defaultDescriptors()
	for id, o := range cfg.Overrides {
		d, ok := descriptors[id]
		if !ok {
			continue
		}
		if o.EndpointBase != "" {
			d.EndpointBase = o.EndpointBase
		}
		if o.ModelID != "" {
			d.ModelID = o.ModelID
		}
		if o.MaxTokens > 0 {
			d.MaxTokens = o.MaxTokens
		}
		if o.RateLimitPerMinute > 0 {
			d.RateLimitPerMinute = o.RateLimitPerMinute
		}
		if o.DailyLimit > 0 {
			d.DailyLimit = o.DailyLimit
		}
		descriptors[id] = d
	}

	return &Registry{
		descriptors: descriptors,
		adapters: map[string]Adapter{
			OpenAI:    NewOpenAIAdapter(descriptors[OpenAI], client),
			Anthropic: NewAnthropicAdapter(descriptors[Anthropic], client),
			Google:    NewGoogleAdapter(descriptors[Google], client),
			Local:     NewLocalAdapter(descriptors[Local], client, cfg.LocalAllowedHosts...),
			Custom:    NewOpenAIAdapter(descriptors[Custom], client),
		},
	}
}

// WithAdapter returns a copy of the registry with provider's adapter
// replaced. Descriptors are shared.
func (r *Registry) WithAdapter(provider string, adapter Adapter) *Registry {
	adapters := make(map[string]Adapter, len(r.adapters))
	for id, a := range r.adapters {
		adapters[id] = a
	}
	adapters[provider] = adapter
	return &Registry{descriptors: r.descriptors, adapters: adapters}
}

// Known reports whether provider is one of the supported backends
func (r *Registry) Known(provider string) bool {
	_, ok := r.descriptors[provider]
	return ok
}

// Describe returns the descriptor of provider
func (r *Registry) Describe(provider string) (Descriptor, error) {
	d, ok := r.descriptors[provider]
	if !ok {
		return Descriptor{}, apperr.UnknownProvider(provider)
	}
	return d, nil
}

// List returns all descriptors in a stable order
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(order))
	for _, id := range order {
		out = append(out, r.descriptors[id])
	}
	return out
}

// ValidateKeyFormat applies the provider's format heuristic. It never makes
// a network call; unknown providers are never valid.
func (r *Registry) ValidateKeyFormat(provider, candidate string) bool {
	d, ok := r.descriptors[provider]
	if !ok || d.validate == nil {
		return false
	}
	return d.validate(candidate)
}

// DailyLimit returns the provider's daily request limit, 0 if unknown
func (r *Registry) DailyLimit(provider string) int {
	return r.descriptors[provider].DailyLimit
}

// RateLimitPerMinute returns the provider's per-minute limit, 0 if unknown
func (r *Registry) RateLimitPerMinute(provider string) int {
	return r.descriptors[provider].RateLimitPerMinute
}

// Adapter returns the adapter of provider
func (r *Registry) Adapter(provider string) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, apperr.UnknownProvider(provider)
	}
	return a, nil
}
