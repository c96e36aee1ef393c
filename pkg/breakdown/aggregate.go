// Package breakdown aggregates chimera breakdown records by identifications per
// spectrum.
//
// Every view enumerates multiplicities contiguously and in ascending order
// starting at 1; multiplicities without groups are present with zero counts so
// views of different datasets stay index-aligned.
package breakdown

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

// Filter selects records. Empty fields match everything.
type Filter struct {
	Datasets   []string
	Conditions []string
	Type       core.ResultType
}

// Matches reports whether r passes the filter.
func (f *Filter) Matches(r *core.BreakdownRecord) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if len(f.Datasets) > 0 && !contains(f.Datasets, r.Dataset) {
		return false
	}
	if len(f.Conditions) > 0 && !contains(f.Conditions, r.Condition) {
		return false
	}
	return true
}

// Apply returns the matching records in input order.
func (f *Filter) Apply(records []core.BreakdownRecord) []core.BreakdownRecord {
	var out []core.BreakdownRecord
	for i := range records {
		if f.Matches(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Options configures aggregation
type Options struct {
	// MaxMultiplicity extends the views to at least this multiplicity.
	MaxMultiplicity int
	// Workers bounds the parallel fold (0 = GOMAXPROCS).
	Workers int
}

// AbsoluteRow sums classification counts over all groups of one multiplicity.
type AbsoluteRow struct {
	IdsPerSpectrum int
	Groups         int
	Parent         int // isolated species: parents and their duplicates
	UniqueProteins int
	UniqueForms    int
	Decoys         int
}

// Members returns the number of identifications the row accounts for.
func (r AbsoluteRow) Members() int {
	return r.Parent + r.UniqueProteins + r.UniqueForms + r.Decoys
}

// TargetDecoyRow holds target and decoy totals of one multiplicity, either as
// raw counts or as percentages of their sum.
type TargetDecoyRow struct {
	IdsPerSpectrum int
	Targets        float64
	Decoys         float64
}

type bucket struct {
	groups         int
	targets        int
	decoys         int
	parent         int
	uniqueProteins int
	uniqueForms    int
	charges        []float64
	masses         []float64
}

func (b *bucket) add(r *core.BreakdownRecord, keepDistributions bool) {
	b.groups++
	b.targets += r.TargetCount
	b.decoys += r.DecoyCount
	b.parent += r.Parent()
	b.uniqueProteins += r.UniqueProteins
	b.uniqueForms += r.UniqueForms
	if keepDistributions {
		for _, c := range r.Charges {
			b.charges = append(b.charges, float64(c))
		}
		b.masses = append(b.masses, r.Masses...)
	}
}

func (b *bucket) merge(o *bucket) {
	b.groups += o.groups
	b.targets += o.targets
	b.decoys += o.decoys
	b.parent += o.parent
	b.uniqueProteins += o.uniqueProteins
	b.uniqueForms += o.uniqueForms
	b.charges = append(b.charges, o.charges...)
	b.masses = append(b.masses, o.masses...)
}

type buckets map[int]*bucket

func (bs buckets) get(k int) *bucket {
	b, ok := bs[k]
	if !ok {
		b = &bucket{}
		bs[k] = b
	}
	return b
}

// minChunk keeps small inputs on a single goroutine.
const minChunk = 4096

// fold reduces records into buckets keyed by multiplicity. Chunks are folded
// concurrently and merged in chunk order, so distributions keep record order.
func fold(records []core.BreakdownRecord, workers int, keepDistributions bool) buckets {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (len(records) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	var parts []buckets
	for start := 0; start < len(records); start += chunk {
		parts = append(parts, nil)
	}

	var g errgroup.Group
	for i := range parts {
		start := i * chunk
		end := min(start+chunk, len(records))
		g.Go(func() error {
			bs := make(buckets)
			for j := start; j < end; j++ {
				bs.get(records[j].IdsPerSpectrum).add(&records[j], keepDistributions)
			}
			parts[i] = bs
			return nil
		})
	}
	g.Wait()

	out := make(buckets)
	for _, part := range parts {
		for k, b := range part {
			out.get(k).merge(b)
		}
	}
	return out
}

// multiplicities returns 1..max(observed, floor).
func (bs buckets) multiplicities(floor int) []int {
	top := floor
	for k := range bs {
		if k > top {
			top = k
		}
	}
	keys := make([]int, 0, top)
	for k := 1; k <= top; k++ {
		keys = append(keys, k)
	}
	return keys
}

// Absolute sums isolated species, unique proteins, unique forms and decoys per
// multiplicity.
func Absolute(records []core.BreakdownRecord, opts Options) []AbsoluteRow {
	bs := fold(records, opts.Workers, false)
	keys := bs.multiplicities(opts.MaxMultiplicity)

	rows := make([]AbsoluteRow, 0, len(keys))
	for _, k := range keys {
		row := AbsoluteRow{IdsPerSpectrum: k}
		if b, ok := bs[k]; ok {
			row.Groups = b.groups
			row.Parent = b.parent
			row.UniqueProteins = b.uniqueProteins
			row.UniqueForms = b.uniqueForms
			row.Decoys = b.decoys
		}
		rows = append(rows, row)
	}
	return rows
}

// TargetDecoy totals targets and decoys per multiplicity. With relative set,
// each is a percentage of targets+decoys for that multiplicity; empty
// multiplicities are 0 in both.
func TargetDecoy(records []core.BreakdownRecord, relative bool, opts Options) []TargetDecoyRow {
	bs := fold(records, opts.Workers, false)
	keys := bs.multiplicities(opts.MaxMultiplicity)

	rows := make([]TargetDecoyRow, 0, len(keys))
	for _, k := range keys {
		row := TargetDecoyRow{IdsPerSpectrum: k}
		if b, ok := bs[k]; ok {
			v := []float64{float64(b.targets), float64(b.decoys)}
			if total := floats.Sum(v); relative && total > 0 {
				floats.Scale(100/total, v)
			}
			row.Targets, row.Decoys = v[0], v[1]
		}
		rows = append(rows, row)
	}
	return rows
}

// MaxMultiplicity returns the largest multiplicity across record sets, for
// aligning views of several comparisons.
func MaxMultiplicity(sets ...[]core.BreakdownRecord) int {
	top := 0
	for _, set := range sets {
		for i := range set {
			if set[i].IdsPerSpectrum > top {
				top = set[i].IdsPerSpectrum
			}
		}
	}
	return top
}

// Comparison is one labelled absolute view within an aligned comparison.
type Comparison struct {
	Label string
	Rows  []AbsoluteRow
}

// CompareBy splits records by label and returns absolute views aligned to a
// shared multiplicity range, sorted by label.
func CompareBy(records []core.BreakdownRecord, label func(*core.BreakdownRecord) string, opts Options) []Comparison {
	sets := make(map[string][]core.BreakdownRecord)
	for i := range records {
		l := label(&records[i])
		sets[l] = append(sets[l], records[i])
	}

	labels := make([]string, 0, len(sets))
	for l := range sets {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	opts.MaxMultiplicity = max(opts.MaxMultiplicity, MaxMultiplicity(records))
	out := make([]Comparison, 0, len(labels))
	for _, l := range labels {
		out = append(out, Comparison{Label: l, Rows: Absolute(sets[l], opts)})
	}
	return out
}
