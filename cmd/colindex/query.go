package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/colindex/internal/cli"
	"github.com/hyperjump/colindex/internal/models"
)

func (a *app) searchCmd() *cobra.Command {
	var (
		collection string
		vector     string
		filter     string
		textFilter string
		topK       int
	)
	cmd := &cobra.Command{
		Use:   "search [text...]",
		Short: "Rank a collection's records against a text or vector query",
		Long: `Rank a collection's records against a query.

The query is either text (all remaining arguments joined by spaces), embedded
according to the collection's layout, or an explicit --vector in JSON.`,
		Example: `  colindex search -c docs machine learning
  colindex search -c docs --vector '[[0.1, 0.2], [0.3, 0.4]]' --top-k 3
  colindex search -c docs invoice --filter '{"must": [{"key": "lang", "match": "en"}]}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("top-k") && topK <= 0 {
				return fmt.Errorf("%w: --top-k must be positive, got %d", models.ErrConfiguration, topK)
			}
			q, err := buildSearchQuery(collection, args, vector, filter, textFilter, topK)
			if err != nil {
				return err
			}
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			resp, err := b.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			return cli.WriteSearchResults(a.out, resp, a.format)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&collection, "collection", "c", "", "collection to search (required)")
	f.StringVar(&vector, "vector", "", "query vector or vector set as JSON")
	f.StringVar(&filter, "filter", "", "payload filter as JSON: {\"must\": [...], \"must_not\": [...]}")
	f.StringVar(&textFilter, "text-filter", "", "only match records whose payload text contains these terms")
	f.IntVarP(&topK, "top-k", "k", 0, "number of results (default from the server or config)")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

// buildSearchQuery joins text args into the query text and decodes the JSON flags.
func buildSearchQuery(collection string, args []string, vector, filter, textFilter string, topK int) (*models.SearchQuery, error) {
	q := &models.SearchQuery{
		Collection: collection,
		Text:       strings.TrimSpace(strings.Join(args, " ")),
		TopK:       topK,
	}
	if vector != "" {
		if err := json.Unmarshal([]byte(vector), &q.Vectors); err != nil {
			return nil, fmt.Errorf("--vector: %w", err)
		}
	}
	if filter != "" {
		q.Filter = &models.Filter{}
		if err := json.Unmarshal([]byte(filter), q.Filter); err != nil {
			return nil, fmt.Errorf("%w: --filter: %v", models.ErrConfiguration, err)
		}
	}
	if textFilter != "" {
		if q.Filter == nil {
			q.Filter = &models.Filter{}
		}
		q.Filter.Text = textFilter
	}
	return q, nil
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show collections, record counts, and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			status, err := b.Status(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteStatus(a.out, status, a.format)
		},
	}
}
