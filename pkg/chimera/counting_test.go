package chimera

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
	"github.com/ChrisMcGann/ChimeraKey/pkg/filter"
	"github.com/ChrisMcGann/ChimeraKey/pkg/logger"
)

func TestCountChimeras(t *testing.T) {
	all := append(chimera("Y", 1), id("Y", 2, "CCC", "P3", 600, 0.01), id("Y", 3, "DDD", "P4", 600, 0.01))
	for _, x := range all {
		x.QValue = 0.001
	}
	all[1].QValue = 0.5
	all[2].QValue = 0.5

	filtered := (&filter.Config{MaxQValue: filter.OnePercentFDR}).Apply(all)
	rows := CountChimeras(all, filtered, "D", "C")

	want := []CountingRow{
		{Dataset: "D", Condition: "C", IdsPerSpectrum: 1, Count: 2, FilteredCount: 3},
		{Dataset: "D", Condition: "C", IdsPerSpectrum: 3, Count: 1, FilteredCount: 0},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCountResults(t *testing.T) {
	ids := []*core.Identification{
		id("a", 1, "AAA", "P1", 500, 0.01),
		id("a", 2, "AAA", "P1", 500, 0.01),
		id("a", 3, "AAAK", "P1", 500, 0.01),
		id("a", 4, "BBB", "P2", 500, 0.01),
		id("b", 1, "CCC", "P3", 500, 0.01),
		id("b", 2, "EEE", "DECOY_P1", 500, 0.01),
	}
	ids[5].IsDecoy = true
	ids[3].QValue = 0.05

	got := CountResults(ids, filter.Config{MaxQValue: filter.OnePercentFDR})
	want := ResultCounts{
		PsmCount:                  5,
		ProteoformCount:           4,
		ProteinCount:              3,
		OnePercentPsmCount:        4,
		OnePercentProteoformCount: 3,
		OnePercentProteinCount:    2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	byFile := CountResultsByFile(ids, filter.Config{}, "D", "C")
	if len(byFile) != 2 || byFile[0].FileName != "a" || byFile[1].FileName != "b" {
		t.Fatalf("Unexpected per-file counts %+v", byFile)
	}
	if byFile[0].PsmCount != 4 || byFile[1].PsmCount != 1 || byFile[1].Dataset != "D" {
		t.Errorf("Unexpected per-file counts %+v", byFile)
	}
}

func TestCountingIgnoresInvalidIdentifications(t *testing.T) {
	bad := id("Y", 1, "", "P9", 650, 0.01)
	ids := append(chimera("Y", 1), bad)

	rows := CountChimeras(ids, ids, "D", "C")
	want := []CountingRow{{Dataset: "D", Condition: "C", IdsPerSpectrum: 3, Count: 1, FilteredCount: 1}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	byFile := CountResultsByFile(ids, filter.Config{}, "D", "C")
	if len(byFile) != 1 || byFile[0].PsmCount != 3 || byFile[0].ProteinCount != 2 {
		t.Errorf("Unexpected per-file counts %+v", byFile)
	}

	res, err := NewAnalyzer(Options{Logger: logger.Nop()}).Run(context.Background(), ids)
	if err != nil {
		t.Fatal(err)
	}
	rec := findRecord(t, res.Records, "Y", 1, core.ResultTypePsm)
	if rec.IdsPerSpectrum != rows[0].IdsPerSpectrum {
		t.Errorf("Breakdown multiplicity %d disagrees with counting multiplicity %d",
			rec.IdsPerSpectrum, rows[0].IdsPerSpectrum)
	}
}

func TestValid(t *testing.T) {
	good := id("a", 1, "AAA", "P1", 500, 0.01)
	noScan := id("a", 0, "AAA", "P1", 500, 0.01)
	noAcc := id("a", 2, "AAA", "", 500, 0.01)

	valid, invalid := Valid([]*core.Identification{noScan, good, noAcc})
	if len(valid) != 1 || valid[0] != good {
		t.Errorf("Expected only the well-formed identification, got %v", valid)
	}
	if len(invalid) != 2 || invalid[0] != noScan || invalid[1] != noAcc {
		t.Errorf("Expected invalid identifications in input order, got %v", invalid)
	}
}
