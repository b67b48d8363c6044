package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var headsCmd = &cobra.Command{
	Use:   "heads",
	Short: "list the current concurrency frontier of a running replica",
	RunE:  runHeads,
}

func runHeads(cmd *cobra.Command, _ []string) error {
	resp, err := apiGet("/heads")
	if err != nil {
		return err
	}
	heads, _ := resp["heads"].([]any)
	for _, h := range heads {
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", h)
	}
	return nil
}
