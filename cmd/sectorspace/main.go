package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sectorspace",
	Short: "Sector space and Covid-19 exposure analysis",
	Long: `sectorspace ranks sectors by their exposure to the Covid-19 shock, builds
the sector space from sector co-occurrence and ranks the diversification
options of highly exposed sectors, month by month.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
