package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/colindex/internal/cli"
	"github.com/hyperjump/colindex/internal/extract"
	"github.com/hyperjump/colindex/internal/indexer"
	"github.com/hyperjump/colindex/internal/upload"
)

func (a *app) uploadCmd() *cobra.Command {
	var (
		collection  string
		batchSize   int
		concurrency int
		rate        float64
	)
	cmd := &cobra.Command{
		Use:   "upload <records.jsonl>",
		Short: "Upload records from a JSON Lines file (- for stdin)",
		Long: `Upload records from a JSON Lines file, one record per line:

  {"id": 1, "vector": [[0.1, 0.2], [0.3, 0.4]], "payload": {"title": "a"}}

"id" may be a string or a non-negative integer; records without one get a random
UUID. Records are sent in batches concurrently; failed batches are retried and
reported at the end.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.Upload.Options
			if cmd.Flags().Changed("batch-size") {
				opts.BatchSize = batchSize
			}
			if cmd.Flags().Changed("concurrency") {
				opts.MaxConcurrentBatches = concurrency
			}
			if cmd.Flags().Changed("rate") {
				opts.RatePerSecond = rate
			}
			return a.runUpload(cmd.Context(), collection, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&collection, "collection", "c", "", "target collection (required)")
	f.IntVar(&batchSize, "batch-size", 0, "records per batch (overrides config)")
	f.IntVar(&concurrency, "concurrency", 0, "batches in flight (overrides config)")
	f.Float64Var(&rate, "rate", 0, "max batches dispatched per second, 0 for unlimited")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func (a *app) runUpload(parent context.Context, collection, path string, opts upload.Options) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	b, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()
	info, err := b.Collection(ctx, collection)
	if err != nil {
		return err
	}
	opts.Dimensions = info.Dimensions

	tracker, stopTracker := a.newTracker(ctx)
	up, err := upload.New(b, opts, upload.WithLogger(a.logger), upload.WithObserver(tracker))
	if err != nil {
		stopTracker()
		return err
	}

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	records, wait := upload.DecodeRecords(readCtx, r)
	report, uploadErr := up.Upload(ctx, collection, records)
	stopReading()
	decodeErr := wait()
	stopTracker()

	if report != nil {
		if err := cli.WriteUploadReport(a.out, report, a.format); err != nil {
			return err
		}
		return errors.Join(uploadErr, decodeErr, report.Err())
	}
	return errors.Join(uploadErr, decodeErr)
}

func (a *app) indexCmd() *cobra.Command {
	var (
		collection string
		extensions []string
		remove     bool
	)
	cmd := &cobra.Command{
		Use:   "index <file|dir>...",
		Short: "Extract, embed, and upload files (text, Markdown, PDF)",
		Long: `Extract text units from files, embed them with the configured embedder, and
upload one record per unit. Directories are walked recursively and filtered by
--ext. Re-indexing a file replaces its previous records; --remove deletes them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("ext") {
				extensions = a.cfg.Watch.Extensions
			}
			return a.runIndex(cmd.Context(), collection, args, extensions, remove)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&collection, "collection", "c", "", "target collection (required)")
	f.StringSliceVar(&extensions, "ext", nil, "file extensions to index in directories (default from config)")
	f.BoolVar(&remove, "remove", false, "remove the records of the given files instead")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func (a *app) runIndex(parent context.Context, collection string, paths, extensions []string, remove bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	tracker, stopTracker := a.newTracker(ctx)
	defer stopTracker()
	up, err := upload.New(b, a.cfg.Upload.Options, upload.WithLogger(a.logger), upload.WithObserver(tracker))
	if err != nil {
		return err
	}
	idx := indexer.NewIndexer(b, up, a.newEmbedder(),
		extract.NewExtractor(a.cfg.Extract.ChunkSize, a.cfg.Extract.ChunkOverlap),
		indexer.WithLogger(a.logger))

	for _, path := range paths {
		if remove {
			n, err := idx.RemoveFile(ctx, collection, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Removed %d records of %s\n", n, path)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			n, err := idx.IndexDirectory(ctx, collection, path, extensions)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Indexed %d files under %s\n", n, path)
		default:
			n, err := idx.IndexFile(ctx, collection, path, nil)
			if err != nil {
				return err
			}
			a.logger.Debug("indexed file", zap.String("path", path), zap.Int("units", n))
			fmt.Fprintf(a.out, "Indexed %d units from %s\n", n, path)
		}
	}
	return nil
}
