package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"mfetl/internal/platform/config"
	"mfetl/internal/platform/logger"
	"mfetl/internal/registry"
	"mfetl/internal/resolver"
)

type options struct {
	registryURL  string
	registryFile string
	rulesFile    string
	threshold    float64
	timeout      time.Duration
	logLevel     string
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "fundresolve",
		Short:         "Resolve mutual fund names against the AMFI scheme registry",
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.registryURL, "registry-url", config.DefaultRegistryURL, "NAVAll.txt URL")
	flags.StringVar(&opts.registryFile, "registry-file", "", "local NAVAll.txt file, takes precedence over --registry-url")
	flags.StringVar(&opts.rulesFile, "rules", "", "YAML resolution rules overriding the built-in set")
	flags.Float64Var(&opts.threshold, "threshold", 0.60, "word overlap threshold for fuzzy matching")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "registry download timeout")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")

	root.AddCommand(newResolveCommand(out, opts), newSchemesCommand(out, opts))
	return root
}

func newResolveCommand(out io.Writer, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <fund name>...",
		Short: "Resolve fund names to scheme codes and provider search terms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := resolver.Load(opts.rulesFile, opts.threshold)
			if err != nil {
				return err
			}
			snap, err := loadSnapshot(cmd.Context(), opts)
			if err != nil {
				return err
			}
			results := make([]resolver.Result, len(args))
			for i, name := range args {
				results[i] = res.Resolve(name, snap)
			}
			return writeJSON(out, results)
		},
	}
}

func newSchemesCommand(out io.Writer, opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "schemes <query>",
		Short: "List registry schemes whose name contains the query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return errors.New("--limit must be positive")
			}
			snap, err := loadSnapshot(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writeJSON(out, registry.SearchSchemes(snap, args[0], limit))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", registry.DefaultSearchLimit, "maximum schemes to list")
	return cmd
}

func loadSnapshot(ctx context.Context, opts *options) (*registry.Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	log := logger.NewWithWriter(os.Stderr, opts.logLevel, "text")
	source := registry.NewSource(opts.registryFile, opts.registryURL, opts.timeout, 0, log)
	snap, err := source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return snap, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
