package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/abdhe/frame-insight/pkg/apierr"
)

// RelayConfig configures the client for a remote /generate_text endpoint.
type RelayConfig struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// RelayClient forwards an analysis record to another instance of the
// service and returns the text it generated.
type RelayClient struct {
	client *http.Client
	url    string
}

// NewRelayClient creates a relay client.
func NewRelayClient(cfg RelayConfig) *RelayClient {
	return &RelayClient{
		client: newClient(cfg.Client, cfg.Timeout),
		url:    cfg.URL,
	}
}

func (r *RelayClient) Name() string { return "relay" }

type relayResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Forward POSTs payload as JSON and returns the generated_text field.
func (r *RelayClient) Forward(ctx context.Context, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("relay: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", apierr.Transport(r.Name(), fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out relayResponse
	if err := do(r.client, r.Name(), httpReq, &out); err != nil {
		// A 429 from the remote means its own backoff already ran out.
		if apierr.Is(err, apierr.KindRateLimited) {
			return "", apierr.TerminalRateLimit(r.Name(), 1, err)
		}
		return "", err
	}
	return out.GeneratedText, nil
}
