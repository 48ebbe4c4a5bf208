// Package keyword provides Bleve implementation of TextIndex.
package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const textField = "text"

// BleveIndex implements TextIndex using an in-memory Bleve index. It is rebuilt from stored
// payloads at startup, so nothing is written to disk.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates an empty in-memory index.
func NewBleveIndex() (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "bayes" matches "Bayes" exactly.
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = false
	docMapping.AddFieldMappingsAt(textField, textFieldMapping)
	im.DefaultMapping = docMapping
	im.DefaultField = textField

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// payloadText joins every string value in a payload, in key order, nested objects and arrays included.
func payloadText(v any, sb *strings.Builder) {
	switch t := v.(type) {
	case string:
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			payloadText(t[k], sb)
		}
	case []any:
		for _, el := range t {
			payloadText(el, sb)
		}
	}
}

func document(payload map[string]any) (map[string]any, bool) {
	var sb strings.Builder
	payloadText(payload, &sb)
	if sb.Len() == 0 {
		return nil, false
	}
	return map[string]any{textField: sb.String()}, true
}

// Index indexes a payload by id. Payloads without strings are removed from the index.
func (b *BleveIndex) Index(ctx context.Context, id string, payload map[string]any) error {
	doc, ok := document(payload)
	if !ok {
		return b.index.Delete(id)
	}
	return b.index.Index(id, doc)
}

// IndexBatch applies many index and delete operations in one Bleve batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, payloads map[string]map[string]any) error {
	batch := b.index.NewBatch()
	for id, payload := range payloads {
		doc, ok := document(payload)
		if !ok {
			batch.Delete(id)
			continue
		}
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("failed to index %q: %w", id, err)
		}
	}
	return b.index.Batch(batch)
}

// Delete removes documents from the index.
func (b *BleveIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 1 {
		return b.index.Delete(ids[0])
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Match runs a conjunctive match query and returns every hit.
func (b *BleveIndex) Match(ctx context.Context, text string, opts *MatchOptions) (map[string]float64, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 || strings.TrimSpace(text) == "" {
		return map[string]float64{}, nil
	}
	fuzziness := 0
	if opts != nil {
		fuzziness = opts.Fuzziness
	}
	var q blevequery.Query
	if fuzziness > 0 {
		q = buildFuzzyQuery(text, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(textField)
		mq.SetOperator(blevequery.MatchQueryOperatorAnd)
		q = mq
	}
	req := bleve.NewSearchRequest(q)
	req.Size = int(count)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make(map[string]float64, len(results.Hits))
	for _, hit := range results.Hits {
		out[hit.ID] = hit.Score
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a conjunction of FuzzyQueries, one per term.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if fuzziness > 2 {
		fuzziness = 2
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(textField)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
