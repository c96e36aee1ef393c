package chimera

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
	"github.com/ChrisMcGann/ChimeraKey/pkg/group"
	"github.com/ChrisMcGann/ChimeraKey/pkg/isolation"
	"github.com/ChrisMcGann/ChimeraKey/pkg/logger"
)

// Options configures an Analyzer
type Options struct {
	Dataset   string
	Condition string
	// Resolver supplies isolation centers; nil ranks by score alone.
	Resolver *isolation.Resolver
	// Workers bounds the number of spectra files processed concurrently
	// (0 = GOMAXPROCS).
	Workers int
	Logger  logger.Logger
}

// Result is the output of one analysis pass.
type Result struct {
	Records     []core.BreakdownRecord
	Skipped     int      // identifications failing validation
	Unavailable []string // spectra files whose isolation lookups were degraded
}

// Count returns the number of records of the given type.
func (r *Result) Count(typ core.ResultType) int {
	n := 0
	for i := range r.Records {
		if r.Records[i].Type == typ {
			n++
		}
	}
	return n
}

// Analyzer runs the grouping and classification pass over one identification store.
type Analyzer struct {
	opts Options
	log  logger.Logger
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(opts Options) *Analyzer {
	return &Analyzer{opts: opts, log: logger.OrDefault(opts.Logger)}
}

// Run classifies every spectrum in ids.
//
// Identifications failing validation are excluded and counted. Spectra files
// are processed concurrently, each inside one resolver scope; within a file
// the PSM-level records are followed by the peptide-level records. Record
// order is deterministic: files in first-occurrence order, then groups in
// first-occurrence order.
func (a *Analyzer) Run(ctx context.Context, ids []*core.Identification) (*Result, error) {
	res := &Result{}

	valid, invalid := Valid(ids)
	for _, id := range invalid {
		a.log.Debug("skipping identification", "name", id.Name(), "error", id.Validate())
	}
	res.Skipped = len(invalid)
	if res.Skipped > 0 {
		a.log.Warn("skipped invalid identifications", "count", res.Skipped,
			"dataset", a.opts.Dataset, "condition", a.opts.Condition)
	}

	files := group.By(valid, group.SameFile)
	perFile := make([][]core.BreakdownRecord, len(files))

	workers := a.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, file := range files {
		g.Go(func() error {
			recs, err := a.runFile(gctx, file)
			if err != nil {
				return fmt.Errorf("file %s: %w", file.First().FileName, err)
			}
			perFile[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, recs := range perFile {
		res.Records = append(res.Records, recs...)
	}
	if a.opts.Resolver != nil {
		res.Unavailable = a.opts.Resolver.Unavailable()
	}
	return res, nil
}

// Valid splits ids into those passing Identification.Validate and those
// failing it, both in input order. Invalid identifications take no part in
// grouping or counting.
func Valid(ids []*core.Identification) (valid, invalid []*core.Identification) {
	valid = make([]*core.Identification, 0, len(ids))
	for _, id := range ids {
		if id.Validate() != nil {
			invalid = append(invalid, id)
			continue
		}
		valid = append(valid, id)
	}
	return valid, invalid
}

func (a *Analyzer) runFile(ctx context.Context, file *group.Group) ([]core.BreakdownRecord, error) {
	name := file.First().FileName
	if a.opts.Resolver == nil {
		return a.classifyFile(ctx, file.Members, nil)
	}

	var recs []core.BreakdownRecord
	err := a.opts.Resolver.Scope(ctx, name, func(lookup isolation.LookupFunc) error {
		var err error
		recs, err = a.classifyFile(ctx, file.Members, lookup)
		return err
	})
	if err != nil && recs == nil {
		return nil, err
	}
	if err != nil {
		// Records are complete; only releasing the spectra file failed.
		a.log.Warn("failed to release spectra file", "file", name, "error", err)
	}
	return recs, nil
}

func (a *Analyzer) classifyFile(ctx context.Context, members []*core.Identification, lookup isolation.LookupFunc) ([]core.BreakdownRecord, error) {
	psms := group.By(members, group.SameSpectrum)
	proteoforms := group.Representatives(group.By(members, group.SameProteoform), group.BestScore)
	peptides := group.By(proteoforms, group.SameSpectrum)

	recs := make([]core.BreakdownRecord, 0, len(psms)+len(peptides))
	for _, level := range []struct {
		typ    core.ResultType
		groups []*group.Group
	}{
		{core.ResultTypePsm, psms},
		{core.ResultTypePeptide, peptides},
	} {
		for _, g := range level.groups {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec := Classify(g, level.typ, lookup)
			rec.Dataset = a.opts.Dataset
			rec.Condition = a.opts.Condition
			recs = append(recs, rec)
		}
	}

	a.log.Debug("classified spectra file", "file", members[0].FileName,
		"psm_groups", len(psms), "peptide_groups", len(peptides))
	return recs, nil
}
