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

	"github.com/JakeFAU/parts-catalog-crawler/internal/config"
	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/parts-catalog-crawler/internal/logging"
)

type rootOptions struct {
	configPath string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   config.AppName,
		Short: "Mirror a phone-parts catalog into a local store",
		Long: `partscrawler discovers the catalog's navigation menu, crawls every model
page, keeps the listings that are replacement parts and reconciles them with
the previous snapshot. serve exposes the stored catalog over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/partscrawler/config.yaml)")
	cmd.AddCommand(newCrawlCmd(opts), newServeCmd(opts))
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, newRootCmd(), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", config.AppName, describe(err))
		return 1
	}
	return 0
}

// describe prefixes err with what an operator should look at first.
func describe(err error) string {
	var navErr *crawler.NavigationNotFoundError
	var setupErr *crawler.SetupError
	switch {
	case errors.As(err, &navErr):
		return "site structure changed: " + err.Error()
	case errors.Is(err, context.Canceled):
		return "run interrupted: " + err.Error()
	case errors.As(err, &setupErr):
		return "network/driver failure: " + err.Error()
	default:
		return err.Error()
	}
}

// setup loads configuration, letting changed flags of cmd override it, and
// builds the logger.
func setup(cmd *cobra.Command, opts *rootOptions) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func syncLogger(logger *zap.Logger) {
	// Sync fails on non-file stderr; nothing useful can be done with it.
	_ = logger.Sync()
}
