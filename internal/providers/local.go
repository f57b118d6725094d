package providers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// ErrEndpointNotAllowed is returned when a stored local endpoint names a
// host outside the allow-list
var ErrEndpointNotAllowed = errors.New("local endpoint host is not allowed")

// LocalAdapter calls an Ollama server's generate endpoint. The stored
// credential is the server URL; the descriptor's endpoint is the fallback.
// A stored URL is only followed when its host is the descriptor's own or
// one of the allowed hosts, so users cannot aim the server at arbitrary
// internal addresses.
type LocalAdapter struct {
	descriptor   Descriptor
	client       *http.Client
	allowedHosts map[string]bool
}

// NewLocalAdapter creates an adapter for descriptor. allowedHosts entries
// are host or host:port.
func NewLocalAdapter(descriptor Descriptor, client *http.Client, allowedHosts ...string) *LocalAdapter {
	allowed := make(map[string]bool, len(allowedHosts)+1)
	if u, err := url.Parse(descriptor.EndpointBase); err == nil && u.Host != "" {
		allowed[strings.ToLower(u.Host)] = true
	}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = true
		}
	}
	return &LocalAdapter{descriptor: descriptor, client: client, allowedHosts: allowed}
}

type ollamaRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (a *LocalAdapter) Call(ctx context.Context, images []Image, prompt, credential string) (string, error) {
	d := a.descriptor

	endpoint := d.EndpointBase
	if isEndpointURL(credential) {
		if !a.allowed(credential) {
			return "", &CallError{Provider: d.ID, Err: ErrEndpointNotAllowed}
		}
		endpoint = credential
	}

	req := ollamaRequest{
		Model:  d.ModelID,
		Prompt: prompt,
		Stream: false,
	}
	for _, img := range images {
		req.Images = append(req.Images, img.Base64())
	}

	var resp ollamaResponse
	if err := postJSON(ctx, a.client, d.ID, strings.TrimRight(endpoint, "/")+"/api/generate", noAuth{}, nil, req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (a *LocalAdapter) allowed(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return a.allowedHosts[strings.ToLower(u.Host)] || a.allowedHosts[strings.ToLower(u.Hostname())]
}
