// Package chimera groups identifications by spectrum, selects a parent for
// every chimeric spectrum and classifies the remaining identifications
// relative to it.
package chimera

import (
	"fmt"
	"math"
	"sort"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
	"github.com/ChrisMcGann/ChimeraKey/pkg/group"
	"github.com/ChrisMcGann/ChimeraKey/pkg/isolation"
)

// Class is the outcome of comparing a non-parent identification to the parent.
type Class int

const (
	Duplicate     Class = iota // same base sequence and modifications
	UniqueForm                 // same protein, different form
	UniqueProtein              // different protein
)

func (c Class) String() string {
	switch c {
	case Duplicate:
		return "duplicate"
	case UniqueForm:
		return "unique-form"
	case UniqueProtein:
		return "unique-protein"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Compare classifies id against parent; the first matching rule wins.
func Compare(parent, id *core.Identification) Class {
	switch {
	case id.BaseSequence == parent.BaseSequence && id.Modifications == parent.Modifications:
		return Duplicate
	case id.Accession == parent.Accession:
		return UniqueForm
	default:
		return UniqueProtein
	}
}

// Rank returns the non-decoy members ordered by parent precedence: closest
// precursor m/z to the isolation center when hasIsolation, then lowest score,
// then highest probability. Members that tie on every criterion keep input
// order.
func Rank(members []*core.Identification, isolationMz float64, hasIsolation bool) []*core.Identification {
	var ranked []*core.Identification
	for _, m := range members {
		if !m.IsDecoy {
			ranked = append(ranked, m)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if hasIsolation {
			da := math.Abs(a.PrecursorMz() - isolationMz)
			db := math.Abs(b.PrecursorMz() - isolationMz)
			if da != db {
				return da < db
			}
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		return a.Probability > b.Probability
	})
	return ranked
}

// Classify builds the breakdown record of one spectrum group. lookup is only
// consulted for chimeric groups and may be nil, in which case ranking uses
// scores alone.
//
// The parent is fixed once chosen: every other candidate is compared with the
// parent, never with its predecessor in rank order.
func Classify(g *group.Group, typ core.ResultType, lookup isolation.LookupFunc) core.BreakdownRecord {
	first := g.First()
	rec := core.BreakdownRecord{
		FileName:       first.FileName,
		ScanNumber:     first.ScanNumber,
		Type:           typ,
		IdsPerSpectrum: g.Len(),
		IsolationMz:    core.NoIsolationMz,
		Charges:        make(core.IntList, 0, g.Len()),
		Masses:         make(core.FloatList, 0, g.Len()),
	}
	for _, m := range g.Members {
		if m.IsDecoy {
			rec.DecoyCount++
		} else {
			rec.TargetCount++
		}
		rec.Charges = append(rec.Charges, m.Charge)
		rec.Masses = append(rec.Masses, m.MonoisotopicMass)
	}

	if g.Len() == 1 {
		return rec
	}

	isolationMz, hasIsolation := core.NoIsolationMz, false
	if lookup != nil {
		isolationMz, hasIsolation = lookup(first.ScanNumber)
		if hasIsolation {
			rec.IsolationMz = isolationMz
		}
	}

	ranked := Rank(g.Members, isolationMz, hasIsolation)
	if len(ranked) == 0 {
		return rec
	}
	if len(ranked) != rec.TargetCount {
		panic(fmt.Sprintf("chimera: %s ranked %d candidates for %d targets",
			rec.Key(), len(ranked), rec.TargetCount))
	}

	parent := ranked[0]
	for _, m := range ranked[1:] {
		switch Compare(parent, m) {
		case Duplicate:
			rec.DuplicateCount++
		case UniqueForm:
			rec.UniqueForms++
		case UniqueProtein:
			rec.UniqueProteins++
		}
	}
	return rec
}

// Parent returns the parent identification of a group, or nil when the group
// has no target members.
func Parent(g *group.Group, isolationMz float64, hasIsolation bool) *core.Identification {
	ranked := Rank(g.Members, isolationMz, hasIsolation)
	if len(ranked) == 0 {
		return nil
	}
	return ranked[0]
}
