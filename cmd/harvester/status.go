package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/harvest"
	"github.com/JakeFAU/tender-harvester/internal/store"
)

type statusReport struct {
	ResultsFile    string              `json:"results_file"`
	CheckpointFile string              `json:"checkpoint_file"`
	Records        int                 `json:"records"`
	Checkpoint     *harvest.Checkpoint `json:"checkpoint"`
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the record count and checkpoint without starting a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store.Load(c.cfg.StoreConfig(), zap.NewNop())
			if err != nil {
				return fmt.Errorf("load store: %w", err)
			}
			report := statusReport{
				ResultsFile:    c.cfg.Harvest.ResultsFile,
				CheckpointFile: c.cfg.Harvest.CheckpointFile,
				Records:        s.Len(),
			}
			if cp, ok := s.Resume(); ok {
				report.Checkpoint = &cp
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write status: %w", err)
			}
			return nil
		},
	}
}
