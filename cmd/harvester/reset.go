package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/store"
)

func newResetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove the checkpoint so the next run starts at page 1; results are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store.Load(c.cfg.StoreConfig(), zap.NewNop())
			if err != nil {
				return fmt.Errorf("load store: %w", err)
			}
			if err := s.Reset(); err != nil {
				return fmt.Errorf("reset checkpoint: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s removed; %d records kept\n", c.cfg.Harvest.CheckpointFile, s.Len())
			return nil
		},
	}
}
