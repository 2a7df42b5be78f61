package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/ai"
)

const maxTokens = 4096

type Client struct {
	*openai.Client
	Model string
}

// NewClient connects to api.openai.com (or baseURL when set, mostly for tests).
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// NewAzureClient connects to an Azure OpenAI resource; model is the deployment name.
func NewAzureClient(apiKey, endpoint, deployment, apiVersion string) *Client {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: deployment}
}

func (c *Client) Complete(ctx context.Context, system string, parts ...ai.Part) (string, error) {
	model := c.Model
	if model == "" {
		model = openai.GPT4o
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	for _, p := range parts {
		if p.ImageURL != "" {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: p.ImageURL, Detail: openai.ImageURLDetailAuto},
			})
			continue
		}
		user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: p.Text,
		})
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			user,
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %s", ai.ErrQuotaExceeded, apiErr.Message)
		}
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ai.ErrEmptyCompletion
	}

	// yang dipakai hanya pesan terakhir
	return resp.Choices[len(resp.Choices)-1].Message.Content, nil
}
