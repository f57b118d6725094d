package providers

import (
	"net/url"
	"strings"
)

// Provider identifiers
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Google    = "google"
	Local     = "local"
	Custom    = "custom"
)

// order is the stable listing order
var order = []string{OpenAI, Anthropic, Google, Local, Custom}

// KeyValidator reports whether a candidate credential looks plausible
type KeyValidator func(candidate string) bool

// Descriptor is the static description of one AI backend
type Descriptor struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"display_name"`
	EndpointBase       string `json:"endpoint_base"`
	ModelID            string `json:"model_id"`
	MaxTokens          int    `json:"max_tokens"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	DailyLimit         int    `json:"daily_limit"`

	// InlineImages is true when remote images must be downloaded and sent
	// as bytes; false when the backend fetches them by URL.
	InlineImages bool `json:"inline_images"`

	validate KeyValidator
}

func defaultDescriptors() map[string]Descriptor {
	return map[string]Descriptor{
		OpenAI: {
			ID:                 OpenAI,
			DisplayName:        "OpenAI GPT-4 Vision",
			EndpointBase:       "https://api.openai.com/v1",
			ModelID:            "gpt-4o",
			MaxTokens:          1000,
			RateLimitPerMinute: 5,
			DailyLimit:         100,
			InlineImages:       true,
			validate:           prefixed("sk-", 20),
		},
		Anthropic: {
			ID:                 Anthropic,
			DisplayName:        "Claude 3 Vision",
			EndpointBase:       "https://api.anthropic.com/v1",
			ModelID:            "claude-3-sonnet-20240229",
			MaxTokens:          1000,
			RateLimitPerMinute: 5,
			DailyLimit:         100,
			InlineImages:       true,
			validate:           prefixed("sk-ant-", 20),
		},
		Google: {
			ID:                 Google,
			DisplayName:        "Google Gemini Vision",
			EndpointBase:       "https://generativelanguage.googleapis.com/v1beta",
			ModelID:            "gemini-pro-vision",
			MaxTokens:          1000,
			RateLimitPerMinute: 15,
			DailyLimit:         1500,
			InlineImages:       true,
			validate:           longerThan(20),
		},
		Local: {
			ID:                 Local,
			DisplayName:        "Local Ollama (LLaVA)",
			EndpointBase:       "http://localhost:11434",
			ModelID:            "llava",
			MaxTokens:          1000,
			RateLimitPerMinute: 999,
			DailyLimit:         99999,
			InlineImages:       true,
			validate:           isEndpointURL,
		},
		Custom: {
			ID:                 Custom,
			DisplayName:        "Custom OpenAI-compatible",
			MaxTokens:          1000,
			RateLimitPerMinute: 10,
			DailyLimit:         500,
			InlineImages:       false,
			validate:           longerThan(10),
		},
	}
}

func prefixed(prefix string, minLen int) KeyValidator {
	return func(candidate string) bool {
		return strings.HasPrefix(candidate, prefix) && len(candidate) > minLen
	}
}

func longerThan(n int) KeyValidator {
	return func(candidate string) bool {
		return len(candidate) > n
	}
}

// isEndpointURL accepts absolute http(s) URLs; the local backend's
// "credential" is where it listens
func isEndpointURL(candidate string) bool {
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
