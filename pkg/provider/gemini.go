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

// GeminiConfig configures the Gemini generateContent client.
type GeminiConfig struct {
	BaseURL string // defaults to https://generativelanguage.googleapis.com/v1beta
	Timeout time.Duration
	Client  *http.Client
}

// GeminiProvider implements the Provider interface for Google's Gemini API.
type GeminiProvider struct {
	client  *http.Client
	baseURL string
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiProvider{
		client:  newClient(cfg.Client, cfg.Timeout),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (g *GeminiProvider) Name() string { return "gemini" }

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int32   `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int32 `json:"promptTokenCount"`
		CandidatesTokenCount int32 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Infer performs a generateContent call. Gemini's candidates play the role
// of the other providers' choices.
func (g *GeminiProvider) Infer(ctx context.Context, req Request) (Response, error) {
	u := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, req.Model)

	body := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: req.Prompt}}},
		},
		GenerationConfig: &geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("gemini: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(jsonBody))
	if err != nil {
		return Response{}, apierr.Transport(g.Name(), fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	var gemResp geminiResponse
	if err := do(g.client, g.Name(), httpReq, &gemResp); err != nil {
		return Response{}, err
	}

	if len(gemResp.Candidates) == 0 || len(gemResp.Candidates[0].Content.Parts) == 0 {
		return Response{}, apierr.Provider(g.Name(), http.StatusOK, "no candidates returned")
	}

	var text strings.Builder
	for _, p := range gemResp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	return Response{
		Text:         text.String(),
		PromptTokens: gemResp.UsageMetadata.PromptTokenCount,
		OutputTokens: gemResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}
