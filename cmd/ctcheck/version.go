package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lamproae/checkedthreads/check"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		info := check.GetInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "ctcheck %s\n", info.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "algorithm: %s\n", info.Algorithm)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
