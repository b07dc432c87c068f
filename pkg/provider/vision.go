package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abdhe/frame-insight/pkg/apierr"
)

// AzureVisionConfig configures the Azure AI Vision image analysis client.
type AzureVisionConfig struct {
	Endpoint   string // e.g. https://my-resource.cognitiveservices.azure.com/
	Key        string
	APIVersion string
	Timeout    time.Duration
	Client     *http.Client
}

// AzureVisionProvider implements VisionProvider against the image analysis
// REST API.
type AzureVisionProvider struct {
	client     *http.Client
	endpoint   string
	key        string
	apiVersion string
}

// NewAzureVisionProvider creates a new vision provider.
func NewAzureVisionProvider(cfg AzureVisionConfig) *AzureVisionProvider {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-10-01"
	}
	return &AzureVisionProvider{
		client:     newClient(cfg.Client, cfg.Timeout),
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		key:        cfg.Key,
		apiVersion: cfg.APIVersion,
	}
}

func (a *AzureVisionProvider) Name() string { return "vision" }

// Analyze posts the raw image with the requested features as query
// parameters.
func (a *AzureVisionProvider) Analyze(ctx context.Context, image []byte, req VisionRequest) (VisionResult, error) {
	if len(req.Features) == 0 {
		return VisionResult{}, apierr.Provider(a.Name(), 0, "no features requested")
	}

	q := url.Values{}
	q.Set("api-version", a.apiVersion)
	q.Set("features", strings.Join(req.Features, ","))
	if req.Language != "" {
		q.Set("language", req.Language)
	}
	q.Set("gender-neutral-caption", strconv.FormatBool(req.GenderNeutralCaption))

	u := fmt.Sprintf("%s/computervision/imageanalysis:analyze?%s", a.endpoint, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(image))
	if err != nil {
		return VisionResult{}, apierr.Transport(a.Name(), fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.key)

	var result VisionResult
	if err := do(a.client, a.Name(), httpReq, &result); err != nil {
		return VisionResult{}, err
	}
	return result, nil
}
