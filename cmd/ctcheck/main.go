// Package main implements the ctcheck CLI.
//
// ctcheck replays recorded memory-access traces of checkedthreads
// programs through the race-detection oracle. Traces use the textual
// event format of the reference instrumentation host (one I/L/S/M event
// per line) extended with command and stack directives, so a trace can
// exercise the full covert command protocol offline.
//
// Usage:
//
//	ctcheck replay trace1.log trace2.log   # replay traces, report races
//	ctcheck watch trace.log                # re-replay whenever the file changes
//	ctcheck version                        # show version information
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ctcheck:", err)
		os.Exit(1)
	}
}
