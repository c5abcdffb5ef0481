package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxErrorBodyBytes     = 1024
)

// httpClient holds what the three collaborator clients have in common: a
// base URL, an HTTP client with a request timeout, and a logger-friendly
// service name for error messages.
type httpClient struct {
	baseURL string
	httpc   *http.Client
	name    string
}

func newHTTPClient(name, baseURL string, timeout time.Duration) httpClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		name:    name,
	}
}

// postJSON sends body to path and decodes the response into out.
// Non-2xx statuses are returned as errors with a bounded body excerpt.
func (c httpClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call %s service: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%s service returned %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

// Health probes the service's /health endpoint.
func (c httpClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build %s health request: %w", c.name, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s health check: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s health check returned %d", c.name, resp.StatusCode)
	}
	return nil
}
