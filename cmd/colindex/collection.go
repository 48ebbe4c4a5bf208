package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/colindex/internal/cli"
	"github.com/hyperjump/colindex/internal/models"
)

func (a *app) collectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"collections"},
		Short:   "Create, inspect, and delete collections",
	}
	cmd.AddCommand(a.collectionCreateCmd(), a.collectionDeleteCmd(), a.collectionDescribeCmd(), a.collectionListCmd())
	return cmd
}

func (a *app) collectionCreateCmd() *cobra.Command {
	var (
		cfg          models.CollectionConfig
		metric       string
		layout       string
		quantization string
		multiplier   int
		recreate     bool
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection (an equivalent existing one is kept)",
		Example: `  colindex collection create docs --dimensions 128 --layout multi
  colindex collection create docs --dimensions 128 --layout multi --quantization binary --recreate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Name = args[0]
			cfg.Metric = models.Metric(metric)
			cfg.Layout = models.Layout(layout)
			if quantization != "" {
				cfg.Quantization = &models.QuantizationPolicy{
					Type:              models.QuantizationType(quantization),
					RescoreMultiplier: multiplier,
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			info, err := b.CreateCollection(cmd.Context(), cfg, recreate)
			if err != nil {
				return err
			}
			return cli.WriteCollectionInfo(a.out, info, a.format)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&cfg.Dimensions, "dimensions", "d", 0, "vector dimensionality (required)")
	f.StringVar(&metric, "metric", string(models.MetricCosine), "similarity: cosine, dot, or euclid")
	f.StringVar(&layout, "layout", string(models.LayoutSingle), "single or multi (max-sim over vector sets)")
	f.StringVar(&quantization, "quantization", "", "resident quantization: none or binary")
	f.IntVar(&multiplier, "rescore-multiplier", 0, "candidates kept per result before exact rescoring (default 4)")
	f.BoolVar(&recreate, "recreate", false, "drop an existing collection of the same name first")
	_ = cmd.MarkFlagRequired("dimensions")
	return cmd
}

func (a *app) collectionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a collection and all its records",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.DeleteCollection(cmd.Context(), args[0]); err != nil {
				return err
			}
			if a.format == cli.OutputJSON {
				_, err = fmt.Fprintf(a.out, "{\"deleted\": %q}\n", args[0])
				return err
			}
			_, err = fmt.Fprintf(a.out, "Deleted collection %s\n", args[0])
			return err
		},
	}
}

func (a *app) collectionDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name>",
		Short: "Show a collection's configuration and record count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			info, err := b.Collection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cli.WriteCollectionInfo(a.out, info, a.format)
		},
	}
}

func (a *app) collectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List collections",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			infos, err := b.Collections(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteCollections(a.out, infos, a.format)
		},
	}
}
