package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GoogleAdapter calls the Gemini generateContent endpoint
type GoogleAdapter struct {
	descriptor Descriptor
	client     *http.Client
}

// NewGoogleAdapter creates an adapter for descriptor
func NewGoogleAdapter(descriptor Descriptor, client *http.Client) *GoogleAdapter {
	return &GoogleAdapter{descriptor: descriptor, client: client}
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (a *GoogleAdapter) Call(ctx context.Context, images []Image, prompt, credential string) (string, error) {
	d := a.descriptor

	parts := []geminiPart{{Text: prompt}}
	for _, img := range images {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{MimeType: img.mimeType(), Data: img.Base64()},
		})
	}

	var req geminiRequest
	req.Contents = []geminiContent{{Parts: parts}}
	req.GenerationConfig.MaxOutputTokens = d.MaxTokens

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(d.EndpointBase, "/"), url.PathEscape(d.ModelID))

	var resp geminiResponse
	if err := postJSON(ctx, a.client, d.ID, endpoint, NewQueryKeyAuth(credential, "key"), nil, req, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", &CallError{Provider: d.ID, StatusCode: http.StatusOK, Err: errors.New("no candidates in response")}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
