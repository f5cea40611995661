package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/parts-catalog-crawler/internal/api"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stored catalog over HTTP",
		Long: `serve exposes the navigation, the parts snapshot and the latest changeset
as JSON, read from the configured store, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root)
		},
	}
	cmd.Flags().Int("port", 0, "listen port (default 3100)")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions) error {
	cfg, logger, err := setup(cmd, root)
	if err != nil {
		return err
	}
	defer syncLogger(logger)
	ctx := cmd.Context()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()

	srv := api.NewServer(store, logger.Named("api"))
	if err := srv.ListenAndServe(ctx, net.JoinHostPort("", strconv.Itoa(cfg.Server.Port))); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
