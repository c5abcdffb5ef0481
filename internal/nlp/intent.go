package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// IntentClient calls the intent classification service over HTTP.
type IntentClient struct {
	httpClient
}

// NewIntentClient creates a client for the intent service at baseURL.
func NewIntentClient(baseURL string, timeout time.Duration) (*IntentClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("intent base URL is required")
	}
	return &IntentClient{httpClient: newHTTPClient("intent", baseURL, timeout)}, nil
}

type intentRequest struct {
	Query string `json:"query"`
}

type intentResponse struct {
	Success bool            `json:"success"`
	Intent  json.RawMessage `json:"intent"`
}

// PredictIntent sends the query to POST /predict_intent. The service may
// return the intent as a plain string or a structured object; structured
// results are returned as their JSON text.
func (c *IntentClient) PredictIntent(ctx context.Context, query string) (string, error) {
	var resp intentResponse
	if err := c.postJSON(ctx, "/predict_intent", intentRequest{Query: query}, &resp); err != nil {
		return "", err
	}
	if len(resp.Intent) == 0 {
		return "", fmt.Errorf("intent service returned no intent")
	}

	var s string
	if err := json.Unmarshal(resp.Intent, &s); err == nil {
		return s, nil
	}
	return string(resp.Intent), nil
}
