package nlp

import (
	"context"
	"fmt"
	"time"
)

// RetrievalClient calls the retrieval answering (RAG) service over HTTP.
type RetrievalClient struct {
	httpClient
}

// NewRetrievalClient creates a client for the retrieval service at baseURL.
func NewRetrievalClient(baseURL string, timeout time.Duration) (*RetrievalClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("retrieval base URL is required")
	}
	return &RetrievalClient{httpClient: newHTTPClient("retrieval", baseURL, timeout)}, nil
}

// Query sends the aggregation payload to POST /query.
func (c *RetrievalClient) Query(ctx context.Context, req RetrievalRequest) (*RetrievalAnswer, error) {
	var answer RetrievalAnswer
	if err := c.postJSON(ctx, "/query", req, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}
