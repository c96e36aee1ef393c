package breakdown

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

// Summary describes a sample of per-identification values.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
	Median float64
	Min    float64
	Max    float64
}

// Summarize computes a Summary of x. x is not modified.
func Summarize(x []float64) Summary {
	if len(x) == 0 {
		return Summary{Mean: math.NaN(), StdDev: math.NaN(), Median: math.NaN(), Min: math.NaN(), Max: math.NaN()}
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	s := Summary{N: len(sorted), Min: sorted[0], Max: sorted[len(sorted)-1]}
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if len(sorted) == 1 {
		s.Mean = sorted[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	return s
}

// DistributionRow summarizes the charges and masses of every member of the
// groups of one multiplicity, decoys included.
type DistributionRow struct {
	IdsPerSpectrum int
	Charge         Summary
	Mass           Summary
}

// Distributions summarizes the charges and masses carried by records per
// multiplicity. Records carry one charge and mass per member, targets and
// decoys alike; filter decoy-free records first for target-only figures.
func Distributions(records []core.BreakdownRecord, opts Options) []DistributionRow {
	bs := fold(records, opts.Workers, true)
	keys := bs.multiplicities(opts.MaxMultiplicity)

	rows := make([]DistributionRow, 0, len(keys))
	for _, k := range keys {
		var charges, masses []float64
		if b, ok := bs[k]; ok {
			charges, masses = b.charges, b.masses
		}
		rows = append(rows, DistributionRow{
			IdsPerSpectrum: k,
			Charge:         Summarize(charges),
			Mass:           Summarize(masses),
		})
	}
	return rows
}
