// Package core provides the intermediate representation (IR) models and validation logic
// for identification results and chimera breakdown records used by ChimeraKey.
package core

import (
	"fmt"
	"math"
	"strings"
)

// Identification represents a single accepted peptide or proteoform spectrum match.
type Identification struct {
	// Spectrum identity
	FileName   string // Spectra file name without extension
	ScanNumber int    // One-based MS2 scan number

	// Sequence identity
	BaseSequence  string // Sequence without modifications
	Modifications string // Modification description, compared verbatim
	Accession     string // Protein or proteoform accession
	IsDecoy       bool

	// Ranking
	Score       float64 // Lower is better (E-value, p-value)
	Probability float64 // Higher is better
	QValue      float64

	// Precursor
	Charge                int
	MonoisotopicMass      float64
	MostAbundantIsotopeMz float64 // 0 when not reported
}

// SpectrumKey identifies the MS2 spectrum an identification was made from.
type SpectrumKey struct {
	FileName   string
	ScanNumber int
}

func (k SpectrumKey) String() string {
	return fmt.Sprintf("%s:%d", k.FileName, k.ScanNumber)
}

// ValidationError represents an error found during identification validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks that an identification carries every field grouping and
// classification depend on.
func (id *Identification) Validate() error {
	var errs []string

	if id.FileName == "" {
		errs = append(errs, "file name is required")
	}
	if id.ScanNumber <= 0 {
		errs = append(errs, "scan number must be positive")
	}
	if id.BaseSequence == "" {
		errs = append(errs, "sequence is required")
	}
	if id.Accession == "" {
		errs = append(errs, "accession is required")
	}
	if math.IsNaN(id.Score) || math.IsInf(id.Score, 0) {
		errs = append(errs, "score must be finite")
	}
	if math.IsNaN(id.Probability) || math.IsInf(id.Probability, 0) {
		errs = append(errs, "probability must be finite")
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Identification",
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}

// Key returns the spectrum key of the identification.
func (id *Identification) Key() SpectrumKey {
	return SpectrumKey{FileName: id.FileName, ScanNumber: id.ScanNumber}
}

// PrecursorMz returns the most abundant isotope m/z, falling back to the
// monoisotopic m/z computed from mass and charge when it was not reported.
// The fallback sits up to a few isotope spacings below the most abundant
// peak for large precursors, which shifts their distance to the isolation
// window center. Without a positive charge there is no m/z and it returns 0.
func (id *Identification) PrecursorMz() float64 {
	if id.MostAbundantIsotopeMz > 0 {
		return id.MostAbundantIsotopeMz
	}
	return MzFromMass(id.MonoisotopicMass, id.Charge)
}

// Name returns the identification name in format "File:Scan/Sequence"
func (id *Identification) Name() string {
	return fmt.Sprintf("%s:%d/%s", id.FileName, id.ScanNumber, id.BaseSequence)
}
