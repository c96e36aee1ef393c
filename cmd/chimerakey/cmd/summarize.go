package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/ChimeraKey/pkg/breakdown"
	"github.com/ChrisMcGann/ChimeraKey/pkg/chimera"
	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
	"github.com/ChrisMcGann/ChimeraKey/pkg/writer/sqlite"
	tsvwriter "github.com/ChrisMcGann/ChimeraKey/pkg/writer/tsv"
)

var (
	// Flags for summarize command
	summaryDatasets   []string
	summaryConditions []string
	summaryBy         string
	relative          bool
	topDown           bool
	distributions     bool
	maxMultiplicity   int
)

func init() {
	summarizeCmd.Flags().StringSliceVar(&summaryDatasets, "dataset", nil, "Only include these datasets (repeatable)")
	summarizeCmd.Flags().StringSliceVar(&summaryConditions, "condition", nil, "Only include these conditions (repeatable)")
	summarizeCmd.Flags().StringVar(&summaryBy, "by", "both", "Compare by: dataset, condition, or both")
	summarizeCmd.Flags().BoolVar(&relative, "relative", false, "Report targets and decoys as percentages")
	summarizeCmd.Flags().BoolVar(&topDown, "top-down", false, "Label results as PrSM/Proteoform")
	summarizeCmd.Flags().BoolVar(&distributions, "distributions", false, "Also print charge and mass distributions")
	summarizeCmd.Flags().IntVar(&maxMultiplicity, "max-ids", 0, "Extend tables to at least this many IDs per spectrum")
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [database|tsv]...",
	Short: "Summarize breakdown results by IDs per spectrum",
	Long: `Print, for each result type, the isolated species, unique proteins, unique
forms and decoys per number of identifications per spectrum, followed by the
target and decoy totals.

Several breakdown databases (or breakdown TSV files) can be given. Their
records are compared by dataset and/or condition, every table spans the same
range of IDs per spectrum, and an "All" view merges every input.

Examples:
  chimerakey summarize a.sqlite b.sqlite --by dataset
  chimerakey summarize results.tsv --relative`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSummarize,
}

// summaryInput is everything loaded from the summarize arguments.
type summaryInput struct {
	records  []core.BreakdownRecord
	counting []chimera.CountingRow
	results  []chimera.ResultCounts
}

func loadSummaryInput(paths []string, datasets, conditions []string) (*summaryInput, error) {
	in := &summaryInput{}
	sel := breakdown.Filter{Datasets: datasets, Conditions: conditions}

	for _, path := range paths {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".tsv", ".txt":
			records, err := tsvwriter.ReadFile(path)
			if err != nil {
				return nil, err
			}
			in.records = append(in.records, sel.Apply(records)...)
		default:
			if err := in.readStore(path, &sel); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return in, nil
}

func (in *summaryInput) readStore(path string, sel *breakdown.Filter) error {
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Records(&sqlite.Query{Datasets: sel.Datasets, Conditions: sel.Conditions})
	if err != nil {
		return err
	}
	in.records = append(in.records, records...)

	keep := func(ds, cond string) bool {
		return sel.Matches(&core.BreakdownRecord{Dataset: ds, Condition: cond})
	}
	counting, err := store.Counting()
	if err != nil {
		return err
	}
	for _, row := range counting {
		if keep(row.Dataset, row.Condition) {
			in.counting = append(in.counting, row)
		}
	}
	results, err := store.ResultCounts()
	if err != nil {
		return err
	}
	for _, row := range results {
		if keep(row.Dataset, row.Condition) {
			in.results = append(in.results, row)
		}
	}
	return nil
}

// comparisonLabel returns how records are split for comparison.
func comparisonLabel(by string) (func(*core.BreakdownRecord) string, error) {
	switch by {
	case "dataset":
		return func(r *core.BreakdownRecord) string { return r.Dataset }, nil
	case "condition":
		return func(r *core.BreakdownRecord) string { return r.Condition }, nil
	case "both":
		return func(r *core.BreakdownRecord) string { return r.Dataset + "/" + r.Condition }, nil
	default:
		return nil, fmt.Errorf("invalid comparison '%s', must be dataset, condition or both", by)
	}
}

// typeView holds the aligned views of one result type.
type typeView struct {
	Type        core.ResultType
	Records     []core.BreakdownRecord
	Comparisons []breakdown.Comparison
	All         []breakdown.AbsoluteRow
}

// buildViews splits records by type and label. Every table of every type spans
// 1..max IDs per spectrum over all records, so rows line up across tables.
func buildViews(records []core.BreakdownRecord, label func(*core.BreakdownRecord) string, minMax int) ([]typeView, breakdown.Options) {
	opts := breakdown.Options{MaxMultiplicity: max(minMax, breakdown.MaxMultiplicity(records))}

	var views []typeView
	for _, typ := range []core.ResultType{core.ResultTypePsm, core.ResultTypePeptide} {
		f := breakdown.Filter{Type: typ}
		selected := f.Apply(records)
		if len(selected) == 0 {
			continue
		}
		views = append(views, typeView{
			Type:        typ,
			Records:     selected,
			Comparisons: breakdown.CompareBy(selected, label, opts),
			All:         breakdown.Absolute(selected, opts),
		})
	}
	return views, opts
}

func runSummarize(cmd *cobra.Command, args []string) error {
	label, err := comparisonLabel(summaryBy)
	if err != nil {
		return err
	}
	in, err := loadSummaryInput(args, summaryDatasets, summaryConditions)
	if err != nil {
		return err
	}
	if len(in.records) == 0 {
		return fmt.Errorf("no breakdown records selected")
	}

	out := cmd.OutOrStdout()
	views, opts := buildViews(in.records, label, maxMultiplicity)
	for _, v := range views {
		name := v.Type.Label(topDown)
		for _, c := range v.Comparisons {
			printAbsolute(out, fmt.Sprintf("%s %s", name, c.Label), c.Rows)
		}
		if len(v.Comparisons) > 1 {
			printAbsolute(out, fmt.Sprintf("%s All", name), v.All)
		}

		unit := ""
		if relative {
			unit = " (%)"
		}
		fmt.Fprintf(out, "\n%s targets and decoys\n", name)
		fmt.Fprintf(out, "%8s %12s %12s\n", "IDs", "Targets"+unit, "Decoys"+unit)
		for _, row := range breakdown.TargetDecoy(v.Records, relative, opts) {
			fmt.Fprintf(out, "%8d %12.2f %12.2f\n", row.IdsPerSpectrum, row.Targets, row.Decoys)
		}

		if distributions {
			fmt.Fprintf(out, "\n%8s %12s %12s %14s %14s\n", "IDs", "MeanCharge", "SDCharge", "MedianMass", "MeanMass")
			for _, row := range breakdown.Distributions(v.Records, opts) {
				if row.Charge.N == 0 {
					continue
				}
				fmt.Fprintf(out, "%8d %12.2f %12.2f %14.4f %14.4f\n",
					row.IdsPerSpectrum, row.Charge.Mean, row.Charge.StdDev, row.Mass.Median, row.Mass.Mean)
			}
		}
	}

	if len(in.counting) > 0 {
		fmt.Fprintf(out, "\nSpectra by IDs per spectrum\n")
		fmt.Fprintf(out, "%-24s %8s %10s %10s\n", "Comparison", "IDs", "Spectra", "Filtered")
		for _, row := range in.counting {
			fmt.Fprintf(out, "%-24s %8d %10d %10d\n", row.Dataset+"/"+row.Condition, row.IdsPerSpectrum, row.Count, row.FilteredCount)
		}
	}
	if len(in.results) > 0 {
		fmt.Fprintf(out, "\n%-24s %-30s %8s %12s %10s\n", "Comparison", "File", "PSMs", "Proteoforms", "Proteins")
		for _, c := range in.results {
			fmt.Fprintf(out, "%-24s %-30s %8d %12d %10d\n", c.Dataset+"/"+c.Condition, c.FileName,
				c.PsmCount, c.ProteoformCount, c.ProteinCount)
		}
	}

	return nil
}

func printAbsolute(out io.Writer, title string, rows []breakdown.AbsoluteRow) {
	groups := 0
	for _, row := range rows {
		groups += row.Groups
	}
	fmt.Fprintf(out, "\n%s (%d spectra)\n", title, groups)
	fmt.Fprintf(out, "%8s %8s %10s %14s %12s %8s\n", "IDs", "Groups", "Isolated", "UniqueProtein", "UniqueForm", "Decoy")
	for _, row := range rows {
		fmt.Fprintf(out, "%8d %8d %10d %14d %12d %8d\n",
			row.IdsPerSpectrum, row.Groups, row.Parent, row.UniqueProteins, row.UniqueForms, row.Decoys)
	}
}
