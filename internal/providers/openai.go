package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to the OpenAI chat completions API, or to any server
// speaking the same protocol when used for the custom backend.
type OpenAIAdapter struct {
	descriptor Descriptor
	client     *http.Client
}

// NewOpenAIAdapter creates an adapter for descriptor
func NewOpenAIAdapter(descriptor Descriptor, client *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{descriptor: descriptor, client: client}
}

// Call sends one chat completion with the prompt and images as a single
// multi-content user message
func (a *OpenAIAdapter) Call(ctx context.Context, images []Image, prompt, credential string) (string, error) {
	d := a.descriptor
	if d.EndpointBase == "" {
		return "", &CallError{Provider: d.ID, Err: fmt.Errorf("no endpoint configured")}
	}

	config := openai.DefaultConfig(credential)
	config.BaseURL = d.EndpointBase
	config.HTTPClient = a.client
	client := openai.NewClientWithConfig(config)

	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: prompt,
		},
	}
	for _, img := range images {
		url := img.URL
		if len(img.Data) > 0 || url == "" {
			url = img.DataURL()
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    url,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model: d.ModelID,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		MaxTokens: d.MaxTokens,
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", openAICallError(d.ID, err)
	}

	if len(resp.Choices) == 0 {
		return "", &CallError{Provider: d.ID, StatusCode: http.StatusOK, Err: errors.New("no choices in response")}
	}

	return resp.Choices[0].Message.Content, nil
}

// openAICallError maps go-openai's error types onto CallError
func openAICallError(provider string, err error) *CallError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &CallError{Provider: provider, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &CallError{Provider: provider, StatusCode: reqErr.HTTPStatusCode, Body: body, Err: err}
	}

	return &CallError{Provider: provider, Err: err}
}
