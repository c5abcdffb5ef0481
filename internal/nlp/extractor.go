package nlp

import (
	"context"
	"fmt"
	"time"
)

// ExtractorClient calls the slot extraction service over HTTP.
type ExtractorClient struct {
	httpClient
}

// NewExtractorClient creates a client for the extraction service at baseURL.
func NewExtractorClient(baseURL string, timeout time.Duration) (*ExtractorClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("extractor base URL is required")
	}
	return &ExtractorClient{httpClient: newHTTPClient("extraction", baseURL, timeout)}, nil
}

type extractRequest struct {
	Query string `json:"query"`
}

type extractResponse struct {
	Success bool            `json:"success"`
	Slots   []ExtractedSlot `json:"slots"`
}

// ExtractSlots sends the composed prompt to POST /extract_slots.
func (c *ExtractorClient) ExtractSlots(ctx context.Context, query string) (*ExtractResult, error) {
	var resp extractResponse
	if err := c.postJSON(ctx, "/extract_slots", extractRequest{Query: query}, &resp); err != nil {
		return nil, err
	}
	return &ExtractResult{Slots: resp.Slots}, nil
}
