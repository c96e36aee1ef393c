// Package group partitions identifications into equivalence classes.
//
// The same grouping algorithm serves every equivalence notion the analysis
// needs (same spectrum, same proteoform, same protein); the notion is injected
// as an Equivalence value.
package group

import (
	"sort"
	"strconv"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

// Equivalence decides when two identifications belong to the same group.
// Key must return equal strings exactly for equivalent identifications.
type Equivalence struct {
	Name string
	Key  func(id *core.Identification) string
}

// Members of the key are joined with a separator that cannot occur in
// sequences or accessions read from tab-delimited files.
const sep = "\t"

var (
	// SameSpectrum groups identifications made from one MS2 scan.
	SameSpectrum = Equivalence{
		Name: "spectrum",
		Key: func(id *core.Identification) string {
			return id.FileName + sep + strconv.Itoa(id.ScanNumber)
		},
	}

	// SameProteoform groups identifications of one base sequence on one protein.
	SameProteoform = Equivalence{
		Name: "proteoform",
		Key: func(id *core.Identification) string {
			return id.BaseSequence + sep + id.Accession
		},
	}

	// SameProtein groups identifications sharing a protein accession.
	SameProtein = Equivalence{
		Name: "protein",
		Key: func(id *core.Identification) string {
			return id.Accession
		},
	}

	// SameFile groups identifications from one spectra file.
	SameFile = Equivalence{
		Name: "file",
		Key: func(id *core.Identification) string {
			return id.FileName
		},
	}
)

// Group is a non-empty set of equivalent identifications in input order.
type Group struct {
	Key     string
	Members []*core.Identification
}

// Len returns the number of members.
func (g *Group) Len() int {
	return len(g.Members)
}

// First returns the first member in input order.
func (g *Group) First() *core.Identification {
	return g.Members[0]
}

// By partitions ids under eq. Groups are returned in first-occurrence order of
// their key and members keep their input order. Every input appears in exactly
// one group.
func By(ids []*core.Identification, eq Equivalence) []*Group {
	index := make(map[string]int)
	var groups []*Group

	for _, id := range ids {
		key := eq.Key(id)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, &Group{Key: key})
		}
		groups[i].Members = append(groups[i].Members, id)
	}

	return groups
}

// Count returns the number of distinct groups under eq without materializing them.
func Count(ids []*core.Identification, eq Equivalence) int {
	seen := make(map[string]struct{})
	for _, id := range ids {
		seen[eq.Key(id)] = struct{}{}
	}
	return len(seen)
}

// Less orders two identifications; it reports whether a ranks before b.
type Less func(a, b *core.Identification) bool

// BestScore ranks by ascending score, then descending probability.
func BestScore(a, b *core.Identification) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Probability > b.Probability
}

// Representatives returns the best member of each group under less, in group
// order. Ties keep the earlier member.
func Representatives(groups []*Group, less Less) []*core.Identification {
	reps := make([]*core.Identification, 0, len(groups))
	for _, g := range groups {
		best := g.Members[0]
		for _, m := range g.Members[1:] {
			if less(m, best) {
				best = m
			}
		}
		reps = append(reps, best)
	}
	return reps
}

// Sizes returns, for each group size, how many groups have that size, in
// ascending size order.
func Sizes(groups []*Group) (sizes []int, counts map[int]int) {
	counts = make(map[int]int)
	for _, g := range groups {
		if _, ok := counts[g.Len()]; !ok {
			sizes = append(sizes, g.Len())
		}
		counts[g.Len()]++
	}
	sort.Ints(sizes)
	return sizes, counts
}
