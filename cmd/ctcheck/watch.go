package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lamproae/checkedthreads/internal/replay"
)

var watchCmd = &cobra.Command{
	Use:   "watch <trace>",
	Short: "Re-replay a trace whenever it changes",
	Long: `Watch replays the trace once, then again on every change to the file.
Useful while debugging the command protocol: regenerate the trace and
the fresh verdict appears immediately. Interrupt to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]
	baseOpts, closer, err := replayOptions()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	replayOnce := func() {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "ctcheck: %v\n", err)
			return
		}
		defer f.Close()
		res, err := replay.Run(f, path, baseOpts)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "ctcheck: %v\n", err)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events, %d race(s), %d warning(s)\n",
			res.File, res.Lines, res.Races, res.Warnings)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and trace generators
	// typically replace the file, which drops a file-level watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	replayOnce()
	abs, _ := filepath.Abs(path)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			evAbs, _ := filepath.Abs(ev.Name)
			if evAbs != abs {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				replayOnce()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "ctcheck: watch: %v\n", err)
		}
	}
}
