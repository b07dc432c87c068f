package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/abdhe/frame-insight/pkg/apierr"
)

// AzureOpenAIConfig configures the Azure OpenAI completions client.
type AzureOpenAIConfig struct {
	Endpoint   string // e.g. https://my-resource.openai.azure.com/
	Deployment string
	APIVersion string
	Timeout    time.Duration
	Client     *http.Client
}

// AzureOpenAIProvider implements Provider for Azure OpenAI's legacy
// completions endpoint.
type AzureOpenAIProvider struct {
	client     *http.Client
	endpoint   string
	deployment string
	apiVersion string
}

// NewAzureOpenAIProvider creates a new Azure OpenAI provider.
func NewAzureOpenAIProvider(cfg AzureOpenAIConfig) *AzureOpenAIProvider {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2022-12-01"
	}
	if cfg.Deployment == "" {
		cfg.Deployment = "gpt-35-turbo"
	}
	return &AzureOpenAIProvider{
		client:     newClient(cfg.Client, cfg.Timeout),
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		deployment: cfg.Deployment,
		apiVersion: cfg.APIVersion,
	}
}

func (a *AzureOpenAIProvider) Name() string { return "azure" }

type azureCompletionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int32   `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature"`
}

type azureCompletionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int32 `json:"prompt_tokens"`
		CompletionTokens int32 `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *AzureOpenAIProvider) Infer(ctx context.Context, req Request) (Response, error) {
	body := azureCompletionRequest{
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("azure: marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/openai/deployments/%s/completions?api-version=%s", a.endpoint, a.deployment, a.apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(jsonBody))
	if err != nil {
		return Response{}, apierr.Transport(a.Name(), fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", req.APIKey)

	var resp azureCompletionResponse
	if err := do(a.client, a.Name(), httpReq, &resp); err != nil {
		return Response{}, err
	}

	if len(resp.Choices) == 0 {
		return Response{}, apierr.Provider(a.Name(), http.StatusOK, "no choices returned")
	}

	return Response{
		Text:         resp.Choices[0].Text,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
