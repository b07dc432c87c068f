package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abdhe/frame-insight/pkg/apierr"
	"github.com/abdhe/frame-insight/pkg/metrics"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 8 << 20

// errorEnvelope matches {"error": {"code": ..., "message": ...}} as well as
// {"error": "text"}.
type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

type errorDetail struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// do sends req and decodes a JSON body into out, mapping every failure onto
// the apierr taxonomy.
func do(client *http.Client, name string, req *http.Request, out any) error {
	err := send(client, name, req, out)
	outcome := "success"
	if err != nil {
		kind, _ := apierr.KindOf(err)
		outcome = kind.String()
	}
	metrics.ProviderRequestsTotal.WithLabelValues(name, outcome).Inc()
	return err
}

func send(client *http.Client, name string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return apierr.Transport(name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apierr.Transport(name, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return apierr.RateLimited(name, retryAfter(resp.Header))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, ok := errorMessage(body)
		if !ok {
			msg = strings.TrimSpace(string(body))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return apierr.Provider(name, resp.StatusCode, msg)
	}

	if msg, ok := errorMessage(body); ok {
		return apierr.Provider(name, resp.StatusCode, msg)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apierr.Provider(name, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

// errorMessage extracts the message of an error envelope, if body has one.
func errorMessage(body []byte) (string, bool) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 || string(env.Error) == "null" {
		return "", false
	}

	var text string
	if err := json.Unmarshal(env.Error, &text); err == nil {
		return text, true
	}

	var detail errorDetail
	if err := json.Unmarshal(env.Error, &detail); err == nil {
		switch {
		case detail.Message != "" && detail.Code != nil:
			return fmt.Sprintf("%v: %s", detail.Code, detail.Message), true
		case detail.Message != "":
			return detail.Message, true
		}
	}
	return string(env.Error), true
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func newClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
