package tsv

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/ChimeraKey/pkg/chimera"
	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

func TestWriteRecords(t *testing.T) {
	records := []core.BreakdownRecord{
		{
			Dataset: "D", Condition: "C", FileName: "a.mzML", ScanNumber: 7,
			Type: core.ResultTypePsm, IdsPerSpectrum: 2, TargetCount: 2,
			UniqueForms: 1, IsolationMz: 501.25,
			Charges: core.IntList{2, 3}, Masses: core.FloatList{1000.5, 1500},
		},
		{
			Dataset: "D", Condition: "C", FileName: "a.mzML", ScanNumber: 8,
			Type: core.ResultTypePsm, IdsPerSpectrum: 1, DecoyCount: 1,
			IsolationMz: core.NoIsolationMz,
		},
	}

	var buf bytes.Buffer
	if err := Write(&buf, records); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Dataset\tCondition\tFileName\tMs2ScanNumber\tType\tIdsPerSpectra") {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "\t2;3\t") {
		t.Errorf("Expected joined charges in %q", lines[1])
	}

	got, err := ReadRecords(&buf)
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if diff := cmp.Diff(records, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counting.tsv")
	rows := []chimera.CountingRow{{Dataset: "D", Condition: "C", IdsPerSpectrum: 1, Count: 3, FilteredCount: 2}}
	if err := WriteFile(path, rows); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := WriteFile(filepath.Join(t.TempDir(), "missing", "x.tsv"), rows); err == nil {
		t.Error("Expected error creating file in a missing directory")
	}
}
