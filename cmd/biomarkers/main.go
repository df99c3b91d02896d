// Command biomarkers runs the microbiome biomarker analysis described by a
// YAML configuration file: cohort ingestion, presence/absence recoding,
// Kaplan-Meier estimation per risk group, the shadow-feature relevance
// filter, and univariate Cox models for the confirmed genera.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/cohort"
	"github.com/UEA-Cancer-Genetics-Lab/2023-MMB-masterclass-biomarkers/pipeline"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "biomarkers",
	Short: "Microbiome biomarker discovery for censored survival outcomes",
	Long: `biomarkers analyses a 16S cohort against a right-censored clinical
outcome.  Genus abundances are recoded to presence/absence, survival is
summarized per risk group, and a shadow-feature relevance filter selects the
genera whose presence carries prognostic signal.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full analysis and write the report",
	RunE: func(cmd *cobra.Command, args []string) error {

		cfg, err := pipeline.Load(configPath)
		if err != nil {
			return err
		}

		rep, err := pipeline.New(cfg, logger).Run(cmd.Context())
		if err != nil {
			return err
		}

		if err := rep.WriteFiles(cfg.Output, cfg.Plots); err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), rep.String())
		logger.Info("wrote report", zap.String("dir", cfg.Output), zap.String("run", rep.RunID))

		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Summarize the cohort without running the analysis",
	RunE: func(cmd *cobra.Command, args []string) error {

		cfg, err := pipeline.Load(configPath)
		if err != nil {
			return err
		}

		co, err := loadCohort(cfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Samples: %d\n", co.NumSamples())
		fmt.Fprintf(out, "Events:  %d\n", co.NumEvents())
		fmt.Fprintf(out, "Genera:  %d\n", len(co.Genera))

		counts := make(map[string]int)
		for _, label := range co.RiskLabels {
			counts[label]++
		}
		for _, label := range cohort.RiskLevels {
			if counts[label] > 0 {
				fmt.Fprintf(out, "  %-13s %d\n", label, counts[label])
			}
		}

		return nil
	},
}

func loadCohort(cfg *pipeline.Config) (*cohort.Cohort, error) {

	clf, err := os.Open(cfg.Clinical)
	if err != nil {
		return nil, fmt.Errorf("open clinical table: %w", err)
	}
	defer clf.Close()

	cl, err := cohort.ReadClinical(clf, nil)
	if err != nil {
		return nil, err
	}

	cmf, err := os.Open(cfg.Community)
	if err != nil {
		return nil, fmt.Errorf("open community table: %w", err)
	}
	defer cmf.Close()

	cm, err := cohort.ReadCommunity(cmf, nil)
	if err != nil {
		return nil, err
	}

	return cohort.Merge(cl, cm)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the run configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(describeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
