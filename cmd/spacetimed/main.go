// Command spacetimed runs a spacetimekv replica and provides a CLI client
// for its HTTP inspection/authoring surface.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "spacetimed"}

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(headsCmd)
	rootCmd.AddCommand(gateCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
