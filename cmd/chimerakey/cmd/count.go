package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/ChimeraKey/pkg/chimera"
	"github.com/ChrisMcGann/ChimeraKey/pkg/filter"
	tsvwriter "github.com/ChrisMcGann/ChimeraKey/pkg/writer/tsv"
)

var (
	// Flags for count command
	countInputs    []string
	countDataset   string
	countCondition string
	countQValue    float64
	countOut       string
)

func init() {
	countCmd.Flags().StringSliceVarP(&countInputs, "in", "i", nil, "Identification TSV file (repeatable, required)")
	countCmd.Flags().StringVar(&countDataset, "dataset", "", "Dataset name (default: first input file name)")
	countCmd.Flags().StringVar(&countCondition, "condition", "default", "Condition name")
	countCmd.Flags().Float64Var(&countQValue, "max-qvalue", filter.OnePercentFDR, "q-value threshold for the filtered counts")
	countCmd.Flags().StringVar(&countOut, "tsv", "", "Also write the chimera counts to this TSV file")

	countCmd.MarkFlagRequired("in")
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count spectra by IDs per spectrum and distinct results",
	Long: `Tally spectra by the number of identifications they carry, over all
identifications and over those passing the q-value threshold, and count the
distinct PSMs, proteoforms and proteins per file.`,
	RunE: runCount,
}

func runCount(cmd *cobra.Command, args []string) error {
	cfg := filter.Config{MaxQValue: countQValue}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ids, err := readInputs(countInputs)
	if err != nil {
		return err
	}
	if countDataset == "" {
		countDataset = defaultDataset(countInputs)
	}

	rows := chimera.CountChimeras(ids, cfg.Apply(ids), countDataset, countCondition)
	fmt.Printf("%8s %10s %10s\n", "IDs", "Spectra", "Filtered")
	for _, row := range rows {
		fmt.Printf("%8d %10d %10d\n", row.IdsPerSpectrum, row.Count, row.FilteredCount)
	}

	fmt.Printf("\n%-30s %8s %12s %10s %8s %12s %10s\n", "File", "PSMs", "Proteoforms", "Proteins", "PSMs*", "Proteoforms*", "Proteins*")
	for _, c := range chimera.CountResultsByFile(ids, cfg, countDataset, countCondition) {
		fmt.Printf("%-30s %8d %12d %10d %8d %12d %10d\n", c.FileName,
			c.PsmCount, c.ProteoformCount, c.ProteinCount,
			c.OnePercentPsmCount, c.OnePercentProteoformCount, c.OnePercentProteinCount)
	}
	fmt.Printf("* q-value <= %g\n", countQValue)

	if countOut != "" {
		if err := tsvwriter.WriteFile(countOut, rows); err != nil {
			return err
		}
		fmt.Printf("Output: %s\n", countOut)
	}
	return nil
}
