// Package nlp provides clients for the external AI services the dialogue
// depends on: slot extraction, intent classification, and retrieval
// answering.
package nlp

import "context"

// SlotExtractor derives slot name/value pairs from a free-text prompt.
type SlotExtractor interface {
	// ExtractSlots sends the composed question/answer prompt to the
	// extraction service and returns the raw extraction records.
	ExtractSlots(ctx context.Context, query string) (*ExtractResult, error)
}

// IntentClassifier derives a classification label from a text query.
type IntentClassifier interface {
	// PredictIntent returns the intent for the query. Structured results
	// are returned stringified.
	PredictIntent(ctx context.Context, query string) (string, error)
}

// Retriever answers an aggregated query against the knowledge base.
type Retriever interface {
	// Query runs the retrieval pipeline over the collected slots, intent
	// and transcript.
	Query(ctx context.Context, req RetrievalRequest) (*RetrievalAnswer, error)
}

// Ensure the HTTP clients implement the collaborator contracts.
var (
	_ SlotExtractor    = (*ExtractorClient)(nil)
	_ IntentClassifier = (*IntentClient)(nil)
	_ Retriever        = (*RetrievalClient)(nil)
)

// ExtractedSlot is one record in an extraction response. Value is nil when
// the service saw no information for the slot.
type ExtractedSlot struct {
	SlotName string  `json:"slot_name"`
	Value    *string `json:"value"`
}

// ExtractResult is the extraction service response body.
type ExtractResult struct {
	Slots []ExtractedSlot `json:"slots"`
}

// Flatten converts the record list into a name→value map, dropping records
// with an absent value. Unknown names are kept; the merge engine filters
// them against the schema.
func (r *ExtractResult) Flatten() map[string]string {
	if r == nil {
		return map[string]string{}
	}
	flat := make(map[string]string, len(r.Slots))
	for _, s := range r.Slots {
		if s.SlotName == "" || s.Value == nil {
			continue
		}
		flat[s.SlotName] = *s.Value
	}
	return flat
}

// RetrievalRequest is the aggregation payload sent to the retrieval service
// once every slot is filled.
type RetrievalRequest struct {
	UserID    string            `json:"userId"`
	UserQuery string            `json:"user_query"`
	Slots     map[string]string `json:"slots"`
	Intent    string            `json:"intent"`
	Logs      string            `json:"logs"`
}

// RetrievalAnswer is the retrieval service response.
type RetrievalAnswer struct {
	UserID      string         `json:"userId,omitempty"`
	Answer      string         `json:"answer"`
	ContextUsed map[string]any `json:"context_used"`
}
