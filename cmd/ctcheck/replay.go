package main

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lamproae/checkedthreads/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace>...",
	Short: "Replay one or more trace files through the oracle",
	Long: `Replay runs each trace file through its own oracle instance. Traces
are independent (one instrumented run each), so multiple files replay
concurrently; diagnostics are buffered per file and never interleave.

The exit status is 1 when any trace produced races or warnings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	baseOpts, closer, err := replayOptions()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	dest := baseOpts.Output
	if dest == nil {
		dest = os.Stderr
	}

	var (
		mu    sync.Mutex
		dirty bool
	)
	var g errgroup.Group
	for _, path := range args {
		path := path
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening trace: %w", err)
			}
			defer f.Close()

			var buf bytes.Buffer
			opts := baseOpts
			opts.Output = &buf
			res, err := replay.Run(f, path, opts)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			dest.Write(buf.Bytes())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events, %d race(s), %d warning(s)\n",
				res.File, res.Lines, res.Races, res.Warnings)
			if res.Races > 0 || res.Warnings > 0 {
				dirty = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("races or protocol warnings detected")
	}
	return nil
}
