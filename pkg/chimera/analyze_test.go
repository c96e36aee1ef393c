package chimera

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
	"github.com/ChrisMcGann/ChimeraKey/pkg/isolation"
	"github.com/ChrisMcGann/ChimeraKey/pkg/logger"
)

type mapHandle map[int]float64

func (h mapHandle) IsolationMz(scan int) (float64, bool, error) {
	mz, ok := h[scan]
	return mz, ok, nil
}

func (h mapHandle) Close() error { return nil }

type mapSource struct {
	files map[string]mapHandle
	fail  map[string]bool
}

func (s *mapSource) Open(_ context.Context, file string) (isolation.Handle, error) {
	if s.fail[file] {
		return nil, errors.New("corrupt spectra file")
	}
	h, ok := s.files[file]
	if !ok {
		return nil, fmt.Errorf("no spectra file %s", file)
	}
	return h, nil
}

func id(file string, scan int, seq, acc string, mz, score float64) *core.Identification {
	return &core.Identification{
		FileName:              file,
		ScanNumber:            scan,
		BaseSequence:          seq,
		Modifications:         "[]",
		Accession:             acc,
		Score:                 score,
		Probability:           0.5,
		Charge:                2,
		MonoisotopicMass:      core.MassFromMz(mz, 2),
		MostAbundantIsotopeMz: mz,
	}
}

// chimera builds a spectrum whose parent depends on isolation: AAA is closest
// to 500 but BBB has the best score.
func chimera(file string, scan int) []*core.Identification {
	return []*core.Identification{
		id(file, scan, "AAA", "P1", 500.0, 0.01),
		id(file, scan, "BBB", "P2", 520.0, 0.001),
		id(file, scan, "AAA", "P1", 500.1, 0.1),
	}
}

func findRecord(t *testing.T, recs []core.BreakdownRecord, file string, scan int, typ core.ResultType) core.BreakdownRecord {
	t.Helper()
	for _, r := range recs {
		if r.FileName == file && r.ScanNumber == scan && r.Type == typ {
			return r
		}
	}
	t.Fatalf("no %s record for %s:%d", typ, file, scan)
	return core.BreakdownRecord{}
}

func TestAnalyzerResolverDegradation(t *testing.T) {
	src := &mapSource{
		files: map[string]mapHandle{"Y": {1: 500.0}},
		fail:  map[string]bool{"X": true},
	}
	resolver := isolation.NewResolver(src, isolation.Options{Logger: logger.Nop()})
	defer resolver.Close()

	var ids []*core.Identification
	ids = append(ids, chimera("X", 1)...)
	ids = append(ids, chimera("Y", 1)...)

	a := NewAnalyzer(Options{Dataset: "D", Condition: "C", Resolver: resolver, Workers: 2, Logger: logger.Nop()})
	res, err := a.Run(context.Background(), ids)
	if err != nil {
		t.Fatal(err)
	}

	x := findRecord(t, res.Records, "X", 1, core.ResultTypePsm)
	if x.IsolationMz != core.NoIsolationMz {
		t.Errorf("Expected sentinel isolation for X, got %v", x.IsolationMz)
	}
	// Score-only: BBB is the parent, both AAA are unique proteins.
	if got := countsOf(x); got != (counts{targets: 3, proteins: 2}) {
		t.Errorf("X counts %+v", got)
	}

	y := findRecord(t, res.Records, "Y", 1, core.ResultTypePsm)
	if y.IsolationMz != 500.0 {
		t.Errorf("Expected isolation 500 for Y, got %v", y.IsolationMz)
	}
	if got := countsOf(y); got != (counts{targets: 3, dup: 1, proteins: 1}) {
		t.Errorf("Y counts %+v", got)
	}

	if diff := cmp.Diff([]string{"X"}, res.Unavailable); diff != "" {
		t.Errorf("Unavailable mismatch (-want +got):\n%s", diff)
	}
	if y.Dataset != "D" || y.Condition != "C" {
		t.Errorf("Expected dataset and condition on records, got %q %q", y.Dataset, y.Condition)
	}
}

func TestAnalyzerPeptideLevelCollapsesProteoforms(t *testing.T) {
	ids := chimera("Y", 1)
	// A better-scoring AAA/P1 on another scan takes the proteoform away from scan 1.
	ids = append(ids, id("Y", 2, "AAA", "P1", 500.0, 0.0001))

	a := NewAnalyzer(Options{Logger: logger.Nop()})
	res, err := a.Run(context.Background(), ids)
	if err != nil {
		t.Fatal(err)
	}

	if res.Count(core.ResultTypePsm) != 2 || res.Count(core.ResultTypePeptide) != 2 {
		t.Fatalf("Expected 2 PSM and 2 peptide records, got %+v", res.Records)
	}
	pep1 := findRecord(t, res.Records, "Y", 1, core.ResultTypePeptide)
	if pep1.IdsPerSpectrum != 1 || pep1.Masses[0] != core.MassFromMz(520.0, 2) {
		t.Errorf("Expected only BBB left on scan 1, got %+v", pep1)
	}
	pep2 := findRecord(t, res.Records, "Y", 2, core.ResultTypePeptide)
	if pep2.IdsPerSpectrum != 1 {
		t.Errorf("Expected AAA on scan 2, got %+v", pep2)
	}

	// PSM groups come first. Peptide groups follow the first occurrence of
	// their proteoform, and AAA/P1 is represented by scan 2.
	var order []string
	for _, r := range res.Records {
		order = append(order, fmt.Sprintf("%s:%d", r.Type, r.ScanNumber))
	}
	want := []string{"Psm:1", "Psm:2", "Peptide:2", "Peptide:1"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("record order mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzerSkipsInvalid(t *testing.T) {
	ids := chimera("Y", 1)
	bad := id("Y", 1, "", "P1", 500, 0.01)
	ids = append(ids, bad, id("", 3, "CCC", "P3", 500, 0.01))

	a := NewAnalyzer(Options{Logger: logger.Nop()})
	res, err := a.Run(context.Background(), ids)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", res.Skipped)
	}
	psm := findRecord(t, res.Records, "Y", 1, core.ResultTypePsm)
	if psm.IdsPerSpectrum != 3 {
		t.Errorf("Expected invalid identification excluded from group, got multiplicity %d", psm.IdsPerSpectrum)
	}
}

func randomStore(seed int64, n int) []*core.Identification {
	rng := rand.New(rand.NewSource(seed))
	var ids []*core.Identification
	for i := 0; i < n; i++ {
		x := id(
			fmt.Sprintf("file%d", rng.Intn(4)),
			rng.Intn(60)+1,
			fmt.Sprintf("SEQ%d", rng.Intn(15)),
			fmt.Sprintf("P%d", rng.Intn(6)),
			400+rng.Float64()*200,
			float64(rng.Intn(5))/100,
		)
		x.Modifications = fmt.Sprintf("[%d]", rng.Intn(2))
		x.Probability = float64(rng.Intn(3)) / 2
		x.IsDecoy = rng.Intn(6) == 0
		ids = append(ids, x)
	}
	return ids
}

func TestAnalyzerInvariantsAndPartition(t *testing.T) {
	ids := randomStore(11, 800)
	a := NewAnalyzer(Options{Workers: 3, Logger: logger.Nop()})
	res, err := a.Run(context.Background(), ids)
	if err != nil {
		t.Fatal(err)
	}

	psmMembers := 0
	seen := make(map[core.SpectrumKey]bool)
	for _, r := range res.Records {
		if err := r.CheckInvariants(); err != nil {
			t.Error(err)
		}
		if r.Type != core.ResultTypePsm {
			continue
		}
		if seen[r.Key()] {
			t.Errorf("spectrum %s grouped twice", r.Key())
		}
		seen[r.Key()] = true
		psmMembers += r.IdsPerSpectrum
	}
	if psmMembers != len(ids) {
		t.Errorf("Expected %d PSM members, got %d", len(ids), psmMembers)
	}
}

func TestAnalyzerDeterministic(t *testing.T) {
	ids := randomStore(23, 600)
	src := &mapSource{files: map[string]mapHandle{}, fail: map[string]bool{"file3": true}}
	for f := 0; f < 3; f++ {
		h := mapHandle{}
		for scan := 1; scan <= 60; scan += 2 {
			h[scan] = 400 + float64(scan)*3
		}
		src.files[fmt.Sprintf("file%d", f)] = h
	}

	run := func(workers int) []core.BreakdownRecord {
		resolver := isolation.NewResolver(src, isolation.Options{Logger: logger.Nop()})
		defer resolver.Close()
		a := NewAnalyzer(Options{Resolver: resolver, Workers: workers, Logger: logger.Nop()})
		res, err := a.Run(context.Background(), ids)
		if err != nil {
			t.Fatal(err)
		}
		return res.Records
	}

	first := run(1)
	for _, workers := range []int{2, 8} {
		if diff := cmp.Diff(first, run(workers)); diff != "" {
			t.Errorf("workers=%d differs from sequential run (-want +got):\n%s", workers, diff)
		}
	}
}

func TestAnalyzerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAnalyzer(Options{Logger: logger.Nop()})
	if _, err := a.Run(ctx, chimera("Y", 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
