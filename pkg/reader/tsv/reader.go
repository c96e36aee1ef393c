// Package tsv provides streaming readers for tab-delimited identification result files
package tsv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

// RequiredColumns must be present in the header of an identification file.
var RequiredColumns = []string{
	"File", "Scan", "Sequence", "Modifications", "Accession", "Decoy",
	"Score", "Probability", "Charge", "Mass",
}

// identificationRow is one line of an identification file
type identificationRow struct {
	File                  string  `csv:"File"`
	Scan                  int     `csv:"Scan"`
	Sequence              string  `csv:"Sequence"`
	Modifications         string  `csv:"Modifications"`
	Accession             string  `csv:"Accession"`
	Decoy                 string  `csv:"Decoy"`
	Score                 float64 `csv:"Score"`
	Probability           float64 `csv:"Probability"`
	QValue                float64 `csv:"QValue"`
	Charge                int     `csv:"Charge"`
	Mass                  float64 `csv:"Mass"`
	MostAbundantIsotopeMz float64 `csv:"MostAbundantIsotopeMz"`
}

// Reader provides streaming access to identification files
type Reader struct {
	um      *gocsv.Unmarshaller
	lineNum int
	current *core.Identification
	err     error
}

// NewReader creates a new identification reader. The header line is read and
// checked for the required columns immediately.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && header != "") {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(header), br))
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	um, err := gocsv.NewUnmarshaller(cr, identificationRow{})
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	return &Reader{um: um, lineNum: 1}, nil
}

func checkHeader(header string) error {
	present := make(map[string]bool)
	for _, col := range strings.Split(strings.TrimRight(header, "\r\n"), "\t") {
		present[strings.TrimSpace(col)] = true
	}
	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Next advances to the next identification. Returns false when no more identifications or error.
func (r *Reader) Next() bool {
	r.current = nil
	if r.err != nil {
		return false
	}

	rec, err := r.um.Read()
	if err != nil {
		if err != io.EOF {
			r.err = fmt.Errorf("line %d: %w", r.lineNum+1, err)
		}
		return false
	}
	r.lineNum++

	var row identificationRow
	switch v := rec.(type) {
	case identificationRow:
		row = v
	case *identificationRow:
		row = *v
	default:
		r.err = fmt.Errorf("line %d: unexpected record type %T", r.lineNum, rec)
		return false
	}

	decoy, err := parseDecoy(row.Decoy)
	if err != nil {
		r.err = fmt.Errorf("line %d: %w", r.lineNum, err)
		return false
	}

	r.current = &core.Identification{
		FileName:              strings.TrimSpace(row.File),
		ScanNumber:            row.Scan,
		BaseSequence:          strings.TrimSpace(row.Sequence),
		Modifications:         strings.TrimSpace(row.Modifications),
		Accession:             strings.TrimSpace(row.Accession),
		IsDecoy:               decoy,
		Score:                 row.Score,
		Probability:           row.Probability,
		QValue:                row.QValue,
		Charge:                row.Charge,
		MonoisotopicMass:      row.Mass,
		MostAbundantIsotopeMz: row.MostAbundantIsotopeMz,
	}
	return true
}

// parseDecoy accepts Y/N flags, and D/T/C target-decoy-contaminant labels.
func parseDecoy(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Y", "YES", "TRUE", "D":
		return true, nil
	case "N", "NO", "FALSE", "T", "C", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid decoy flag '%s'", s)
	}
}

// Identification returns the current identification
func (r *Reader) Identification() *core.Identification {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// ReadAll reads every identification from r.
func ReadAll(r io.Reader) ([]*core.Identification, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var ids []*core.Identification
	for reader.Next() {
		ids = append(ids, reader.Identification())
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ReadFile reads every identification from the file at path.
func ReadFile(path string) ([]*core.Identification, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	ids, err := ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ids, nil
}
