// Package main is the colindex CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/colindex/internal/cli"
	"github.com/hyperjump/colindex/internal/config"
	"github.com/hyperjump/colindex/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/colindex/config.yaml"

func main() {
	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries the global flags and what is derived from them for one invocation.
type app struct {
	configPath string
	serverURL  string
	output     string
	debug      bool

	out    io.Writer
	cfg    *config.Config
	logger *zap.Logger
	format cli.OutputFormat
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, logger: zap.NewNop()}
	root := &cobra.Command{
		Use:   "colindex",
		Short: "Multi-vector index and retrieval engine",
		Long: `colindex stores collections of single vectors or token vector sets and ranks them
by max-sim late interaction.

Commands run against the local database unless --server (or COLINDEX_SERVER_URL)
points at a running "colindex server".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", defaultConfigPath, "path to config file")
	pf.StringVar(&a.serverURL, "server", "", "colindex server URL (default: use the local database)")
	pf.StringVarP(&a.output, "output", "o", string(cli.OutputText), "output format: text or json")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		a.serverCmd(),
		a.collectionCmd(),
		a.uploadCmd(),
		a.indexCmd(),
		a.searchCmd(),
		a.statusCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv("."); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(resolveConfigPath(a.configPath, cmd.Flags().Changed("config")))
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.Client.URL = a.serverURL
	}
	if a.debug {
		cfg.Debug = true
	}
	format, err := cli.ParseOutputFormat(a.output)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.format = format
	a.logger = logger
	return nil
}

// resolveConfigPath prefers ./config.yaml over the installed default so running from a project
// directory picks up the project's config. An explicit --config is always used as given.
func resolveConfigPath(path string, explicit bool) string {
	if explicit || path != defaultConfigPath {
		return path
	}
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, "config.yaml")
		if _, err := os.Stat(local); err == nil {
			return local
		}
	}
	return path
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.out, "colindex %s\n", version)
			return err
		},
	}
}
