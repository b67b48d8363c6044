package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gateCmd = &cobra.Command{Use: "gate", Short: "inspect the physics gate of a running replica"}
var gateStatusCmd = &cobra.Command{Use: "status", Short: "show the number of messages withheld behind the light cone", RunE: runGateStatus}

func init() {
	gateCmd.AddCommand(gateStatusCmd)
}

func runGateStatus(cmd *cobra.Command, _ []string) error {
	resp, err := apiGet("/gate/pending")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pending: %v\n", resp["pending"])
	return nil
}
