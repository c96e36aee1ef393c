package chimera

import (
	"sort"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
	"github.com/ChrisMcGann/ChimeraKey/pkg/filter"
	"github.com/ChrisMcGann/ChimeraKey/pkg/group"
)

// CountingRow is the number of spectra with a given number of identifications.
type CountingRow struct {
	Dataset        string `csv:"Dataset"`
	Condition      string `csv:"Condition"`
	IdsPerSpectrum int    `csv:"IdsPerSpectra"`
	Count          int    `csv:"Count"`
	FilteredCount  int    `csv:"OnePercentCount"`
}

// CountChimeras tallies spectra by multiplicity over all identifications and
// over the filtered subset. Invalid identifications are ignored, as in
// Analyzer.Run. Rows are in ascending multiplicity.
func CountChimeras(all, filtered []*core.Identification, dataset, condition string) []CountingRow {
	all, _ = Valid(all)
	filtered, _ = Valid(filtered)
	_, allCounts := group.Sizes(group.By(all, group.SameSpectrum))
	_, filteredCounts := group.Sizes(group.By(filtered, group.SameSpectrum))

	keys := make(map[int]struct{})
	for k := range allCounts {
		keys[k] = struct{}{}
	}
	for k := range filteredCounts {
		keys[k] = struct{}{}
	}
	sizes := make([]int, 0, len(keys))
	for k := range keys {
		sizes = append(sizes, k)
	}
	sort.Ints(sizes)

	rows := make([]CountingRow, 0, len(sizes))
	for _, size := range sizes {
		rows = append(rows, CountingRow{
			Dataset:        dataset,
			Condition:      condition,
			IdsPerSpectrum: size,
			Count:          allCounts[size],
			FilteredCount:  filteredCounts[size],
		})
	}
	return rows
}

// ResultCounts holds target PSM, proteoform and protein counts.
type ResultCounts struct {
	Dataset                   string `csv:"DatasetName"`
	Condition                 string `csv:"Condition"`
	FileName                  string `csv:"FileName"`
	PsmCount                  int    `csv:"PsmCount"`
	ProteoformCount           int    `csv:"PeptideCount"`
	ProteinCount              int    `csv:"ProteinGroupCount"`
	OnePercentPsmCount        int    `csv:"OnePercentPsmCount"`
	OnePercentProteoformCount int    `csv:"OnePercentPeptideCount"`
	OnePercentProteinCount    int    `csv:"OnePercentProteinGroupCount"`
}

// CountResults counts distinct targets among all identifications and among
// those passing cfg. Decoys and invalid identifications are never counted.
func CountResults(ids []*core.Identification, cfg filter.Config) ResultCounts {
	ids, _ = Valid(ids)
	targets := (&filter.Config{ExcludeDecoys: true}).Apply(ids)
	cfg.ExcludeDecoys = true
	filtered := cfg.Apply(ids)

	return ResultCounts{
		PsmCount:                  len(targets),
		ProteoformCount:           group.Count(targets, group.SameProteoform),
		ProteinCount:              group.Count(targets, group.SameProtein),
		OnePercentPsmCount:        len(filtered),
		OnePercentProteoformCount: group.Count(filtered, group.SameProteoform),
		OnePercentProteinCount:    group.Count(filtered, group.SameProtein),
	}
}

// CountResultsByFile counts results per spectra file, in first-occurrence order.
func CountResultsByFile(ids []*core.Identification, cfg filter.Config, dataset, condition string) []ResultCounts {
	ids, _ = Valid(ids)
	files := group.By(ids, group.SameFile)
	out := make([]ResultCounts, 0, len(files))
	for _, f := range files {
		counts := CountResults(f.Members, cfg)
		counts.Dataset = dataset
		counts.Condition = condition
		counts.FileName = f.First().FileName
		out = append(out, counts)
	}
	return out
}
