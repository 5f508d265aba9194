package main

import (
	"fmt"

	"github.com/lthibault/peerwire/pkg/message"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show peerwire and protocol versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "peerwire version %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "protocol version %d\n", message.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
