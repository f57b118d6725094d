package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter calls the Anthropic messages API
type AnthropicAdapter struct {
	descriptor Descriptor
	client     *http.Client
}

// NewAnthropicAdapter creates an adapter for descriptor
func NewAnthropicAdapter(descriptor Descriptor, client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{descriptor: descriptor, client: client}
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
}

func (a *AnthropicAdapter) Call(ctx context.Context, images []Image, prompt, credential string) (string, error) {
	d := a.descriptor

	blocks := make([]anthropicBlock, 0, len(images)+1)
	for _, img := range images {
		blocks = append(blocks, anthropicBlock{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: img.mimeType(),
				Data:      img.Base64(),
			},
		})
	}
	blocks = append(blocks, anthropicBlock{Type: "text", Text: prompt})

	req := anthropicRequest{
		Model:     d.ModelID,
		MaxTokens: d.MaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: blocks}},
	}

	var resp anthropicResponse
	auth := NewHeaderKeyAuth(credential, "x-api-key", "")
	headers := map[string]string{"anthropic-version": anthropicVersion}
	if err := postJSON(ctx, a.client, d.ID, strings.TrimRight(d.EndpointBase, "/")+"/messages", auth, headers, req, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &CallError{Provider: d.ID, StatusCode: http.StatusOK, Err: errors.New("no text content in response")}
	}
	return sb.String(), nil
}
