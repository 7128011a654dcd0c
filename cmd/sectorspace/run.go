package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/pipeline"
	"github.com/vinodismyname/sectorspace/internal/security"
	"github.com/vinodismyname/sectorspace/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the batch analysis pipeline",
	Long: `Load the activity, search-trend and sector edge tables named by the
pipeline configuration, run every analysis stage and write the results
workbook, optional CSVs and the run manifest.

Settings come from --config (YAML) and SECTORSPACE_* environment variables,
e.g. SECTORSPACE_OUTPUT_WORKBOOK. When SECTORSPACE_ALLOWED_DIRS is set every
input and output path must sit inside one of those directories.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

var runConfigPath string

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Pipeline YAML configuration (environment only when empty)")
	rootCmd.AddCommand(runCmd)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}
	logger, err := telemetry.NewLogger(cfg.Log, "sectorspace", cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var opts []pipeline.Option
	if strings.TrimSpace(os.Getenv(security.AllowedDirsEnv)) != "" {
		sec, err := security.NewManagerFromEnv()
		if err != nil {
			return fmt.Errorf("invalid %s: %w", security.AllowedDirsEnv, err)
		}
		logger.Info().Strs("allowed_dirs", sec.AllowedDirectories()).Msg("security allow-list configured")
		opts = append(opts, pipeline.WithPathValidator(sec))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := pipeline.NewRunner(logger, opts...).Run(ctx, *cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d locations, %d sectors, %d months\n", m.RunID, m.Counts.Locations, m.Counts.Sectors, m.Counts.Months)
	fmt.Fprintf(out, "sector space: %d nodes, %d tree + %d extra edges\n", m.Counts.NetworkNodes, m.Counts.TreeEdges, m.Counts.ExtraEdges)
	fmt.Fprintf(out, "diversification: %d ranked rows, %d warnings\n", m.Counts.DiversifiedRows, len(m.Warnings))
	for _, p := range m.Outputs {
		fmt.Fprintf(out, "wrote %s\n", p)
	}
	return nil
}
