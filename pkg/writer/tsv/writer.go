// Package tsv writes and reads breakdown records as tab-separated text.
package tsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

func newWriter(w io.Writer) *gocsv.SafeCSVWriter {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return gocsv.NewSafeCSVWriter(cw)
}

// Write writes rows with a header line. rows must be a slice of structs with
// csv tags, e.g. []core.BreakdownRecord or []chimera.CountingRow.
func Write(w io.Writer, rows interface{}) error {
	out := newWriter(w)
	if err := gocsv.MarshalCSV(rows, out); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	out.Flush()
	return out.Error()
}

// WriteFile creates path and writes rows to it.
func WriteFile(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadRecords reads breakdown records written by Write.
func ReadRecords(r io.Reader) ([]core.BreakdownRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true

	var records []core.BreakdownRecord
	if err := gocsv.UnmarshalCSV(cr, &records); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}

// ReadFile reads breakdown records from the file at path.
func ReadFile(path string) ([]core.BreakdownRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
