package core

import (
	"fmt"
	"strconv"
	"strings"
)

// NoIsolationMz is recorded when no isolation center was resolved for a spectrum,
// whether the instrument did not record one or the spectra file was unavailable.
const NoIsolationMz = -1.0

// ResultType is the level a chimera group was built at.
type ResultType string

const (
	ResultTypePsm     ResultType = "Psm"
	ResultTypePeptide ResultType = "Peptide"
)

// ParseResultType parses "psm" or "peptide" (case-insensitive). "prsm" and
// "proteoform" are accepted as top-down aliases.
func ParseResultType(s string) (ResultType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "psm", "prsm":
		return ResultTypePsm, nil
	case "peptide", "proteoform":
		return ResultTypePeptide, nil
	default:
		return "", fmt.Errorf("unknown result type '%s', must be psm or peptide", s)
	}
}

// Label returns the display label for the result type.
func (t ResultType) Label(topDown bool) string {
	switch {
	case t == ResultTypePsm && topDown:
		return "PrSM"
	case t == ResultTypePsm:
		return "PSM"
	case topDown:
		return "Proteoform"
	default:
		return "Peptide"
	}
}

// IntList is an int slice persisted as a ';' joined string.
type IntList []int

func (l IntList) MarshalCSV() (string, error) {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ";"), nil
}

func (l *IntList) UnmarshalCSV(s string) error {
	*l = nil
	if s == "" {
		return nil
	}
	for _, part := range strings.Split(s, ";") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("invalid integer '%s': %w", part, err)
		}
		*l = append(*l, v)
	}
	return nil
}

// FloatList is a float64 slice persisted as a ';' joined string.
type FloatList []float64

func (l FloatList) MarshalCSV() (string, error) {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ";"), nil
}

func (l *FloatList) UnmarshalCSV(s string) error {
	*l = nil
	if s == "" {
		return nil
	}
	for _, part := range strings.Split(s, ";") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return fmt.Errorf("invalid number '%s': %w", part, err)
		}
		*l = append(*l, v)
	}
	return nil
}

// BreakdownRecord is the classified summary of one chimera group.
type BreakdownRecord struct {
	Dataset        string     `csv:"Dataset"`
	Condition      string     `csv:"Condition"`
	FileName       string     `csv:"FileName"`
	ScanNumber     int        `csv:"Ms2ScanNumber"`
	Type           ResultType `csv:"Type"`
	IdsPerSpectrum int        `csv:"IdsPerSpectra"`
	TargetCount    int        `csv:"TargetCount"`
	DecoyCount     int        `csv:"DecoyCount"`
	DuplicateCount int        `csv:"DuplicateCount"`
	UniqueForms    int        `csv:"UniqueForms"`
	UniqueProteins int        `csv:"UniqueProteins"`
	IsolationMz    float64    `csv:"IsolationMz"`
	Charges        IntList    `csv:"Charges"`
	Masses         FloatList  `csv:"Masses"`
}

// Key returns the spectrum key of the record.
func (r *BreakdownRecord) Key() SpectrumKey {
	return SpectrumKey{FileName: r.FileName, ScanNumber: r.ScanNumber}
}

// Parent returns the number of isolated species in the group: the parent
// together with its duplicates. Groups without targets have none.
func (r *BreakdownRecord) Parent() int {
	return r.TargetCount - r.UniqueForms - r.UniqueProteins
}

// HasIsolationMz reports whether an isolation center was resolved.
func (r *BreakdownRecord) HasIsolationMz() bool {
	return r.IsolationMz != NoIsolationMz
}

// CheckInvariants verifies the count relations every classified group must hold.
func (r *BreakdownRecord) CheckInvariants() error {
	if r.TargetCount+r.DecoyCount != r.IdsPerSpectrum {
		return fmt.Errorf("%s: targets %d + decoys %d != multiplicity %d",
			r.Key(), r.TargetCount, r.DecoyCount, r.IdsPerSpectrum)
	}
	classified := r.DuplicateCount + r.UniqueForms + r.UniqueProteins
	switch {
	case r.IdsPerSpectrum == 1 || r.TargetCount == 0:
		if classified != 0 {
			return fmt.Errorf("%s: %d members classified without a parent", r.Key(), classified)
		}
	case classified != r.TargetCount-1:
		return fmt.Errorf("%s: classified %d, expected %d", r.Key(), classified, r.TargetCount-1)
	}
	return nil
}
