package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vinodismyname/sectorspace/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Build()
		fmt.Fprintf(cmd.OutOrStdout(), "sectorspace %s", info.Version)
		if info.Revision != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s", info.Revision)
			if info.Modified {
				fmt.Fprint(cmd.OutOrStdout(), ", modified")
			}
			fmt.Fprint(cmd.OutOrStdout(), ")")
		}
		if info.GoVersion != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " %s", info.GoVersion)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
