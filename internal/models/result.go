package models

import "encoding/json"

// SearchResult is one caller-facing hit: the record reference, its score, and its 1-based rank.
type SearchResult struct {
	Reference string          `json:"reference"`
	Score     float64         `json:"score"`
	Rank      int             `json:"rank"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SearchResponse is the response for a query. Results keep the order the store assigned.
type SearchResponse struct {
	Collection string          `json:"collection"`
	Results    []*SearchResult `json:"results"`
	Total      int             `json:"total"`
	TopK       int             `json:"top_k"`
	QueryTime  int64           `json:"query_time_ms"`
	// Text is set when the query was embedded from text.
	Text string `json:"text,omitempty"`
}
