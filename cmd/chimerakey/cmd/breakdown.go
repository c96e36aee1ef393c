package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/ChimeraKey/pkg/chimera"
	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
	"github.com/ChrisMcGann/ChimeraKey/pkg/filter"
	"github.com/ChrisMcGann/ChimeraKey/pkg/isolation"
	"github.com/ChrisMcGann/ChimeraKey/pkg/logger"
	"github.com/ChrisMcGann/ChimeraKey/pkg/writer/sqlite"
	tsvwriter "github.com/ChrisMcGann/ChimeraKey/pkg/writer/tsv"
)

var (
	// Flags for breakdown command
	inputFiles  []string
	dataset     string
	condition   string
	spectraDir  string
	outputFile  string
	tsvFile     string
	override    bool
	maxQValue   float64
	workers     int
	openTimeout time.Duration
)

func init() {
	breakdownCmd.Flags().StringSliceVarP(&inputFiles, "in", "i", nil, "Identification TSV file (repeatable, required)")
	breakdownCmd.Flags().StringVar(&dataset, "dataset", "", "Dataset name (default: first input file name)")
	breakdownCmd.Flags().StringVar(&condition, "condition", "default", "Condition name")
	breakdownCmd.Flags().StringVar(&spectraDir, "spectra-dir", "", "Directory holding mzML spectra files (empty = rank by score only)")
	breakdownCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output SQLite database (required)")
	breakdownCmd.Flags().StringVar(&tsvFile, "tsv", "", "Also write breakdown records to this TSV file")
	breakdownCmd.Flags().BoolVar(&override, "override", false, "Recompute and replace an existing output database")
	breakdownCmd.Flags().Float64Var(&maxQValue, "max-qvalue", filter.OnePercentFDR, "Keep identifications at or below this q-value (0 = no limit)")
	breakdownCmd.Flags().IntVar(&workers, "workers", 0, "Spectra files processed concurrently (0 = number of CPUs)")
	breakdownCmd.Flags().DurationVar(&openTimeout, "open-timeout", 2*time.Minute, "Give up on a spectra file that takes longer to open (0 = no limit)")

	breakdownCmd.MarkFlagRequired("in")
	breakdownCmd.MarkFlagRequired("out")
}

var breakdownCmd = &cobra.Command{
	Use:   "breakdown",
	Short: "Classify chimeric identifications and store the breakdown",
	Long: `Group identifications by spectrum, pick each spectrum's parent identification
and classify the rest as duplicates, unique forms or unique proteins. Records
are produced at PSM level and, after collapsing each proteoform to its best
scoring identification, at peptide level.

Examples:
  # Rank by score only
  chimerakey breakdown --in psms.tsv --out results.sqlite

  # Rank by distance to the isolation window center
  chimerakey breakdown --in psms.tsv --spectra-dir raw/ --out results.sqlite --tsv results.tsv`,
	RunE: runBreakdown,
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	log := logger.GetDefault()

	cfg := &filter.Config{MaxQValue: maxQValue}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if !override {
		done, err := sqlite.Complete(outputFile)
		if done {
			fmt.Printf("%s already exists, skipping (use --override to recompute)\n", outputFile)
			return nil
		}
		if err != nil {
			log.Warn("existing output database is unusable, recomputing", "file", outputFile, "error", err)
		}
	}

	ids, err := readInputs(inputFiles)
	if err != nil {
		return err
	}
	if dataset == "" {
		dataset = defaultDataset(inputFiles)
	}

	filtered := cfg.Apply(ids)
	fmt.Printf("Analyzing %s/%s...\n", dataset, condition)
	fmt.Printf("Identifications: %d (%d passing q-value %g)\n", len(ids), len(filtered), maxQValue)

	var resolver *isolation.Resolver
	if spectraDir != "" {
		resolver = isolation.NewResolver(&isolation.MzMLSource{Dir: spectraDir}, isolation.Options{
			OpenTimeout: openTimeout,
			Logger:      log,
		})
		defer resolver.Close()
		fmt.Printf("Spectra directory: %s\n", spectraDir)
	}

	analyzer := chimera.NewAnalyzer(chimera.Options{
		Dataset:   dataset,
		Condition: condition,
		Resolver:  resolver,
		Workers:   workers,
		Logger:    log,
	})
	start := time.Now()
	res, err := analyzer.Run(cmd.Context(), filtered)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	log.Info("analysis complete", "records", len(res.Records), "elapsed", time.Since(start))

	// The database appears at --out only after every output was written.
	writer, err := sqlite.NewStagedWriter(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output database: %w", err)
	}
	defer writer.Abort()

	writer.SetDescription(fmt.Sprintf("%s/%s", dataset, condition))
	if err := writer.WriteRecords(res.Records); err != nil {
		return err
	}
	if err := writer.WriteCounting(chimera.CountChimeras(ids, filtered, dataset, condition)); err != nil {
		return err
	}
	if err := writer.WriteResultCounts(chimera.CountResultsByFile(ids, *cfg, dataset, condition)); err != nil {
		return err
	}

	if tsvFile != "" {
		if err := tsvwriter.WriteFile(tsvFile, res.Records); err != nil {
			return err
		}
	}

	if err := writer.Publish(); err != nil {
		return fmt.Errorf("failed to finalize database: %w", err)
	}

	fmt.Printf("\nBreakdown complete!\n")
	fmt.Printf("%s records: %d\n", core.ResultTypePsm, res.Count(core.ResultTypePsm))
	fmt.Printf("%s records: %d\n", core.ResultTypePeptide, res.Count(core.ResultTypePeptide))
	if res.Skipped > 0 {
		fmt.Printf("Skipped: %d identifications (validation errors)\n", res.Skipped)
	}
	for _, f := range res.Unavailable {
		fmt.Printf("Unavailable spectra file: %s (isolation m/z not used)\n", f)
	}
	fmt.Printf("Output: %s\n", outputFile)
	if tsvFile != "" {
		fmt.Printf("TSV: %s\n", tsvFile)
	}

	return nil
}
