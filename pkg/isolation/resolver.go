// Package isolation resolves the precursor isolation center of MS2 scans.
//
// A Resolver opens each spectra file at most once per analysis pass. Any
// failure while opening or querying a file marks that file unavailable for the
// rest of the pass; callers then rank chimeras by score alone. Lookups on one
// file are serialized, lookups on different files may run concurrently.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
	"github.com/ChrisMcGann/ChimeraKey/pkg/logger"
)

// ErrUnavailable is returned for files whose spectra could not be read.
var ErrUnavailable = errors.New("isolation: spectra file unavailable")

// ErrScanNotFound may be returned by a Handle for a scan the file lacks. The
// resolver treats it as a miss and keeps the file available.
var ErrScanNotFound = errors.New("isolation: scan not found")

// Source opens spectra files.
type Source interface {
	Open(ctx context.Context, file string) (Handle, error)
}

// Handle is an open spectra file. Handles are not safe for concurrent use.
type Handle interface {
	// IsolationMz returns the isolation center of a scan. ok is false when the
	// scan has no recorded isolation window or does not exist.
	IsolationMz(scan int) (mz float64, ok bool, err error)
	Close() error
}

// LookupFunc returns the isolation center of a scan in the current file.
type LookupFunc func(scan int) (mz float64, ok bool)

// Options configures a Resolver
type Options struct {
	OpenTimeout time.Duration // 0 = no timeout
	Logger      logger.Logger
}

type scanResult struct {
	mz float64
	ok bool
}

type fileState struct {
	mu          sync.Mutex
	handle      Handle
	opened      bool
	released    bool
	unavailable bool
	err         error
	cache       map[int]scanResult
}

// Resolver looks up isolation centers through a Source.
type Resolver struct {
	source Source
	opts   Options
	log    logger.Logger

	mu    sync.Mutex
	files map[string]*fileState
}

// NewResolver creates a resolver. A nil source reports every file unavailable.
func NewResolver(source Source, opts Options) *Resolver {
	return &Resolver{
		source: source,
		opts:   opts,
		log:    logger.OrDefault(opts.Logger),
		files:  make(map[string]*fileState),
	}
}

func (r *Resolver) state(file string) *fileState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.files[file]
	if !ok {
		s = &fileState{cache: make(map[int]scanResult)}
		r.files[file] = s
	}
	return s
}

// Lookup returns the isolation center of scan in file. ok is false when the
// scan has none or the file is unavailable.
func (r *Resolver) Lookup(ctx context.Context, file string, scan int) (float64, bool) {
	s := r.state(file)
	s.mu.Lock()
	defer s.mu.Unlock()

	if res, ok := s.cache[scan]; ok {
		return res.mz, res.ok
	}
	if s.unavailable || s.released {
		return core.NoIsolationMz, false
	}

	if !s.opened {
		s.opened = true
		h, err := r.open(ctx, file)
		if err != nil {
			r.degrade(file, s, err)
			return core.NoIsolationMz, false
		}
		s.handle = h
	}

	mz, ok, err := lookup(s.handle, scan)
	if errors.Is(err, ErrScanNotFound) {
		ok, err = false, nil
	}
	if err != nil {
		r.degrade(file, s, fmt.Errorf("scan %d: %w", scan, err))
		return core.NoIsolationMz, false
	}
	if !ok {
		mz = core.NoIsolationMz
	}
	s.cache[scan] = scanResult{mz: mz, ok: ok}
	return mz, ok
}

// Release closes the handle of file. Later lookups only see cached scans.
func (r *Resolver) Release(file string) error {
	s := r.state(file)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return r.closeHandle(file, s)
}

// Scope runs fn with a lookup bound to file and releases the file afterwards,
// whether fn succeeds or not.
func (r *Resolver) Scope(ctx context.Context, file string, fn func(LookupFunc) error) (err error) {
	defer func() {
		if cerr := r.Release(file); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(func(scan int) (float64, bool) {
		return r.Lookup(ctx, file, scan)
	})
}

// Close releases every open handle.
func (r *Resolver) Close() error {
	r.mu.Lock()
	names := make([]string, 0, len(r.files))
	for name := range r.files {
		names = append(names, name)
	}
	r.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := r.Release(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unavailable returns the files that were degraded, sorted by name.
func (r *Resolver) Unavailable() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for name, s := range r.files {
		s.mu.Lock()
		if s.unavailable {
			out = append(out, name)
		}
		s.mu.Unlock()
	}
	sort.Strings(out)
	return out
}

// Err returns the failure that degraded file, or nil.
func (r *Resolver) Err(file string) error {
	s := r.state(file)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (r *Resolver) degrade(file string, s *fileState, err error) {
	s.unavailable = true
	s.err = fmt.Errorf("%w: %s: %w", ErrUnavailable, file, err)
	r.log.Warn("isolation lookup unavailable, ranking by score", "file", file, "error", err)
	if cerr := r.closeHandle(file, s); cerr != nil {
		r.log.Debug("close after failure", "file", file, "error", cerr)
	}
}

func (r *Resolver) closeHandle(file string, s *fileState) error {
	if s.handle == nil {
		return nil
	}
	h := s.handle
	s.handle = nil
	if err := h.Close(); err != nil {
		return fmt.Errorf("failed to close spectra file %s: %w", file, err)
	}
	return nil
}

type openResult struct {
	handle Handle
	err    error
}

// open calls the source, converting panics to errors and honoring OpenTimeout.
func (r *Resolver) open(ctx context.Context, file string) (Handle, error) {
	if r.source == nil {
		return nil, errors.New("no spectra source configured")
	}
	if r.opts.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.OpenTimeout)
		defer cancel()
	}

	ch := make(chan openResult, 1)
	go func() {
		var res openResult
		defer func() {
			if p := recover(); p != nil {
				res = openResult{err: fmt.Errorf("panic opening spectra file: %v", p)}
			}
			ch <- res
		}()
		res.handle, res.err = r.source.Open(ctx, file)
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.handle == nil {
			return nil, errors.New("source returned no handle")
		}
		return res.handle, nil
	case <-ctx.Done():
		// The open may still complete; release whatever it produces.
		go func() {
			if res := <-ch; res.handle != nil {
				res.handle.Close()
			}
		}()
		return nil, fmt.Errorf("opening spectra file: %w", ctx.Err())
	}
}

func lookup(h Handle, scan int) (mz float64, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic reading scan: %v", p)
		}
	}()
	return h.IsolationMz(scan)
}
