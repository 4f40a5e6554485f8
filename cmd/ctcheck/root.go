package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lamproae/checkedthreads/internal/replay"
)

var (
	flagConfig        string
	flagPrintCommands bool
	flagOutput        string
	flagMaxStackDepth int

	cfg Config
)

var rootCmd = &cobra.Command{
	Use:   "ctcheck",
	Short: "Race-detection oracle for checkedthreads traces",
	Long: `ctcheck replays recorded memory-access traces of checkedthreads
programs through the race-detection oracle and reports every byte that
one worker wrote and another worker touched within the same parallel
region.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if flagConfig != "" {
			loaded, err := loadConfig(flagConfig)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		// Flags set on the command line override the file.
		if cmd.Flags().Changed("print-commands") {
			cfg.PrintCommands = flagPrintCommands
		}
		if cmd.Flags().Changed("output") {
			cfg.Output = flagOutput
		}
		if cmd.Flags().Changed("max-stack-depth") {
			cfg.MaxStackDepth = flagMaxStackDepth
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to a ctcheck YAML config file")
	pf.BoolVar(&flagPrintCommands, "print-commands", false,
		"print commands issued by the checkedthreads runtime")
	pf.StringVar(&flagOutput, "output", "", "diagnostics destination (default stderr)")
	pf.IntVar(&flagMaxStackDepth, "max-stack-depth", 0,
		"maximum stack frames per diagnostic (default 20)")
}

// replayOptions translates the effective configuration into replay
// options, opening the output destination if one was configured. The
// returned closer is nil when diagnostics go to stderr.
func replayOptions() (replay.Options, io.Closer, error) {
	opts := replay.Options{
		PrintCommands: cfg.PrintCommands,
		MaxStackDepth: cfg.MaxStackDepth,
	}
	if cfg.Output == "" {
		return opts, nil, nil
	}
	f, err := os.Create(cfg.Output)
	if err != nil {
		return opts, nil, fmt.Errorf("opening output: %w", err)
	}
	opts.Output = f
	return opts, f, nil
}
