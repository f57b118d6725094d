package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of a backend response is read
const maxResponseBytes = 4 << 20

// Image is one picture handed to an adapter. Data is set for inlined images;
// URL is set for images the backend should fetch itself.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
}

// DataURL returns the image as a base64 data: URL
func (img Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", img.mimeType(), base64.StdEncoding.EncodeToString(img.Data))
}

// Base64 returns the raw image bytes base64 encoded
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

func (img Image) mimeType() string {
	if img.MIMEType == "" {
		return "image/jpeg"
	}
	return img.MIMEType
}

// Adapter performs exactly one request/response round trip with a backend
// and returns the raw text the model produced.
type Adapter interface {
	Call(ctx context.Context, images []Image, prompt, credential string) (string, error)
}

// AdapterFunc lets a function act as an Adapter
type AdapterFunc func(ctx context.Context, images []Image, prompt, credential string) (string, error)

func (f AdapterFunc) Call(ctx context.Context, images []Image, prompt, credential string) (string, error) {
	return f(ctx, images, prompt, credential)
}

// CallError describes a failed backend round trip. StatusCode is 0 when no
// HTTP response was received.
type CallError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s call failed: status=%d, body=%s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// NewHTTPClient returns the client shared by all adapters. Per-call deadlines
// come from the context; Timeout is only a backstop.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends body as JSON, applies auth and decodes a 2xx response into
// out. Any other outcome is a *CallError.
func postJSON(ctx context.Context, client *http.Client, provider, url string, auth Authenticator, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &CallError{Provider: provider, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &CallError{Provider: provider, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	authCtx, err := auth.Authenticate(ctx)
	if err != nil {
		return &CallError{Provider: provider, Err: fmt.Errorf("authentication failed: %w", err)}
	}
	if err := authCtx.ApplyToRequest(ctx, httpReq); err != nil {
		return &CallError{Provider: provider, Err: fmt.Errorf("failed to apply auth: %w", err)}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return &CallError{Provider: provider, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &CallError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &CallError{Provider: provider, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &CallError{Provider: provider, StatusCode: resp.StatusCode, Body: string(respBody), Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
