package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/app"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		headful  bool
		maxPages int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest the table, resuming from the checkpoint if one exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg
			if headful {
				cfg.Harvest.Headless = false
			}
			if cmd.Flags().Changed("max-pages") {
				if maxPages < 0 {
					return fmt.Errorf("--max-pages must be >= 0")
				}
				cfg.Harvest.MaxPages = maxPages
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, c.appOpts...)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer func() {
				if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
					a.Logger().Warn("Failed to close application services", zap.Error(cerr))
				}
			}()

			sum, err := a.Harvest(ctx)
			if err != nil {
				return fmt.Errorf("run harvester: %w", err)
			}
			if sum.Interrupted {
				a.Logger().Info("Harvest interrupted; rerun to resume", zap.Int("page", sum.LastPage))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages (0 = all)")
	return cmd
}
