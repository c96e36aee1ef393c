package breakdown

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

func record(dataset string, typ core.ResultType, n, decoys, uf, up int) core.BreakdownRecord {
	targets := n - decoys
	dup := 0
	if targets > 0 {
		dup = targets - 1 - uf - up
	}
	return core.BreakdownRecord{
		Dataset:        dataset,
		Condition:      "c",
		FileName:       "f",
		Type:           typ,
		IdsPerSpectrum: n,
		TargetCount:    targets,
		DecoyCount:     decoys,
		DuplicateCount: dup,
		UniqueForms:    uf,
		UniqueProteins: up,
		IsolationMz:    core.NoIsolationMz,
	}
}

func sample() []core.BreakdownRecord {
	return []core.BreakdownRecord{
		record("A", core.ResultTypePsm, 1, 0, 0, 0),
		record("A", core.ResultTypePsm, 1, 1, 0, 0),
		record("A", core.ResultTypePsm, 3, 0, 1, 1),
		record("A", core.ResultTypePsm, 3, 1, 0, 1),
		record("A", core.ResultTypePeptide, 2, 0, 1, 0),
		record("B", core.ResultTypePsm, 5, 0, 2, 2),
	}
}

func TestFilter(t *testing.T) {
	f := Filter{Datasets: []string{"A"}, Type: core.ResultTypePsm}
	if got := len(f.Apply(sample())); got != 4 {
		t.Errorf("Expected 4 records, got %d", got)
	}
	f = Filter{Conditions: []string{"other"}}
	if got := len(f.Apply(sample())); got != 0 {
		t.Errorf("Expected no records, got %d", got)
	}
	f = Filter{}
	if got := len(f.Apply(sample())); got != len(sample()) {
		t.Errorf("Empty filter dropped records: %d", got)
	}
}

func TestAbsolute(t *testing.T) {
	f := Filter{Datasets: []string{"A"}, Type: core.ResultTypePsm}
	rows := Absolute(f.Apply(sample()), Options{})

	want := []AbsoluteRow{
		{IdsPerSpectrum: 1, Groups: 2, Parent: 1, Decoys: 1},
		{IdsPerSpectrum: 2},
		{IdsPerSpectrum: 3, Groups: 2, Parent: 2, UniqueForms: 1, UniqueProteins: 2, Decoys: 1},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAbsoluteReconciles(t *testing.T) {
	records := sample()
	members := map[int]int{}
	for _, r := range records {
		members[r.IdsPerSpectrum] += r.IdsPerSpectrum
	}
	for _, row := range Absolute(records, Options{}) {
		if row.Members() != members[row.IdsPerSpectrum] {
			t.Errorf("multiplicity %d: row accounts for %d members, records hold %d",
				row.IdsPerSpectrum, row.Members(), members[row.IdsPerSpectrum])
		}
		if row.Members() != row.Groups*row.IdsPerSpectrum {
			t.Errorf("multiplicity %d: %d members in %d groups", row.IdsPerSpectrum, row.Members(), row.Groups)
		}
	}
}

func TestAlignment(t *testing.T) {
	a := (&Filter{Datasets: []string{"A"}}).Apply(sample())
	b := (&Filter{Datasets: []string{"B"}}).Apply(sample())
	top := MaxMultiplicity(a, b)
	if top != 5 {
		t.Fatalf("Expected max multiplicity 5, got %d", top)
	}

	ra := Absolute(a, Options{MaxMultiplicity: top})
	rb := Absolute(b, Options{MaxMultiplicity: top})
	if len(ra) != 5 || len(rb) != 5 {
		t.Fatalf("Views not aligned: %d vs %d rows", len(ra), len(rb))
	}
	for i := range ra {
		if ra[i].IdsPerSpectrum != i+1 || rb[i].IdsPerSpectrum != i+1 {
			t.Errorf("Row %d has multiplicities %d and %d", i, ra[i].IdsPerSpectrum, rb[i].IdsPerSpectrum)
		}
	}

	cmps := CompareBy(sample(), func(r *core.BreakdownRecord) string { return r.Dataset }, Options{})
	if len(cmps) != 2 || cmps[0].Label != "A" || cmps[1].Label != "B" {
		t.Fatalf("Unexpected comparisons %+v", cmps)
	}
	if len(cmps[0].Rows) != 5 || len(cmps[1].Rows) != 5 {
		t.Errorf("Comparisons not aligned")
	}
	if rows := Absolute(nil, Options{}); len(rows) != 0 {
		t.Errorf("Expected no rows for empty input, got %d", len(rows))
	}
}

func TestTargetDecoy(t *testing.T) {
	f := Filter{Datasets: []string{"A"}, Type: core.ResultTypePsm}
	records := f.Apply(sample())

	abs := TargetDecoy(records, false, Options{})
	want := []TargetDecoyRow{
		{IdsPerSpectrum: 1, Targets: 1, Decoys: 1},
		{IdsPerSpectrum: 2},
		{IdsPerSpectrum: 3, Targets: 5, Decoys: 1},
	}
	if diff := cmp.Diff(want, abs); diff != "" {
		t.Errorf("absolute mismatch (-want +got):\n%s", diff)
	}

	rel := TargetDecoy(records, true, Options{})
	want = []TargetDecoyRow{
		{IdsPerSpectrum: 1, Targets: 50, Decoys: 50},
		{IdsPerSpectrum: 2},
		{IdsPerSpectrum: 3, Targets: 500.0 / 6, Decoys: 100.0 / 6},
	}
	if diff := cmp.Diff(want, rel, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("relative mismatch (-want +got):\n%s", diff)
	}
}

func TestParallelFold(t *testing.T) {
	var records []core.BreakdownRecord
	for i := 0; i < 3*minChunk+17; i++ {
		records = append(records, record("A", core.ResultTypePsm, 1+i%4, i%2, 0, 0))
	}
	serial := Absolute(records, Options{Workers: 1})
	for _, w := range []int{2, 3, 8} {
		if diff := cmp.Diff(serial, Absolute(records, Options{Workers: w})); diff != "" {
			t.Errorf("workers=%d mismatch (-serial +parallel):\n%s", w, diff)
		}
	}
}

func TestDistributions(t *testing.T) {
	a := record("A", core.ResultTypePsm, 2, 0, 1, 0)
	a.Charges = core.IntList{2, 4}
	a.Masses = core.FloatList{1000, 3000}
	b := record("A", core.ResultTypePsm, 1, 0, 0, 0)
	b.Charges = core.IntList{3}
	b.Masses = core.FloatList{1500}

	rows := Distributions([]core.BreakdownRecord{a, b}, Options{})
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if s := rows[0].Charge; s.N != 1 || s.Mean != 3 || s.StdDev != 0 {
		t.Errorf("Unexpected singleton summary %+v", s)
	}
	s := rows[1].Mass
	if s.N != 2 || s.Mean != 2000 || s.Min != 1000 || s.Max != 3000 {
		t.Errorf("Unexpected mass summary %+v", s)
	}
	if math.Abs(s.StdDev-math.Sqrt2*1000) > 1e-9 {
		t.Errorf("Expected sample std dev %f, got %f", math.Sqrt2*1000, s.StdDev)
	}
	if empty := Summarize(nil); empty.N != 0 || !math.IsNaN(empty.Mean) {
		t.Errorf("Unexpected empty summary %+v", empty)
	}
}

func TestDistributionsIncludeDecoys(t *testing.T) {
	r := record("A", core.ResultTypePsm, 2, 1, 0, 0)
	r.Charges = core.IntList{2, 5}
	r.Masses = core.FloatList{1000, 5000}

	rows := Distributions([]core.BreakdownRecord{r}, Options{})
	if s := rows[1].Charge; s.N != 2 || s.Max != 5 {
		t.Errorf("Expected the decoy charge in the summary, got %+v", s)
	}
	if s := rows[1].Mass; s.N != 2 || s.Mean != 3000 {
		t.Errorf("Expected the decoy mass in the summary, got %+v", s)
	}
}
