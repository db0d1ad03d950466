package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/tender-harvester/internal/app"
	"github.com/JakeFAU/tender-harvester/internal/config"
)

// cli carries state shared by the subcommands.
type cli struct {
	out     io.Writer
	cfgFile string
	envFile string
	cfg     config.Config
	// appOpts are passed to app.New; tests use them to swap the browser.
	appOpts []app.Option
}

// newRootCmd creates and configures the root command.
func newRootCmd(out io.Writer, opts ...app.Option) *cobra.Command {
	c := &cli{out: out, appOpts: opts}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Resumable harvester for the eTenders opportunities table.",
		Long: `harvester walks the paginated eTenders opportunities table in a headless
browser, expands every row's detail panel and writes deduplicated tender
records to a JSON snapshot. A checkpoint after every row lets an interrupted
run resume where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return c.loadConfig()
		},
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	cmd.AddCommand(newRunCmd(c), newStatusCmd(c), newResetCmd(c))
	return cmd
}

func (c *cli) loadConfig() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}
