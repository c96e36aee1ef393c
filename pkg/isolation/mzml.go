package isolation

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// CV terms read from mzML precursor lists
const (
	cvIsolationWindowTarget = "MS:1000827" // isolation window target m/z
	cvMSLevel               = "MS:1000511"
)

// DefaultExtensions are tried, in order, when locating a spectra file.
var DefaultExtensions = []string{".mzML", ".mzml"}

// MzMLSource opens mzML spectra files from a directory.
type MzMLSource struct {
	Dir        string
	Extensions []string // nil = DefaultExtensions
}

// Locate returns the path of the spectra file for a result file name.
func (s *MzMLSource) Locate(file string) (string, error) {
	exts := s.Extensions
	if exts == nil {
		exts = DefaultExtensions
	}
	var candidates []string
	if filepath.Ext(file) != "" {
		candidates = append(candidates, filepath.Join(s.Dir, file))
	}
	for _, ext := range exts {
		candidates = append(candidates, filepath.Join(s.Dir, file+ext))
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("no spectra file for %s in %s: %w", file, s.Dir, os.ErrNotExist)
}

// Open reads the isolation windows of every scan in the file.
func (s *MzMLSource) Open(ctx context.Context, file string) (Handle, error) {
	path, err := s.Locate(file)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spectra file: %w", err)
	}
	defer f.Close()

	index, err := ReadIsolationIndex(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return index, nil
}

// cvParam is an mzML controlled vocabulary term
type cvParam struct {
	Accession string `xml:"accession,attr"`
	Value     string `xml:"value,attr"`
}

type precursor struct {
	IsolationWindow struct {
		CvPar []cvParam `xml:"cvParam"`
	} `xml:"isolationWindow"`
}

// spectrum holds the parts of an mzML spectrum element we need; peak arrays
// are skipped by the decoder.
type spectrum struct {
	Index     int         `xml:"index,attr"`
	ID        string      `xml:"id,attr"`
	CvPar     []cvParam   `xml:"cvParam"`
	Precursor []precursor `xml:"precursorList>precursor"`
}

// IsolationIndex maps one-based scan numbers to isolation window centers.
type IsolationIndex struct {
	isolation map[int]float64
	msLevel   map[int]int
}

// ErrDuplicateScan means two spectra in one file share a scan number
var ErrDuplicateScan = errors.New("mzML: duplicate scan number")

// ReadIsolationIndex stream-decodes mzML from reader. indexedmzML wrappers and
// everything outside spectrum elements are skipped.
func ReadIsolationIndex(ctx context.Context, reader io.Reader) (*IsolationIndex, error) {
	index := &IsolationIndex{
		isolation: make(map[int]float64),
		msLevel:   make(map[int]int),
	}

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	sawMzML := false
	for n := 0; ; {
		t, err := d.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		start, ok := t.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "mzML":
			sawMzML = true
		case "spectrum":
			var spec spectrum
			if err := d.DecodeElement(&spec, &start); err != nil {
				return nil, err
			}
			if err := index.add(&spec); err != nil {
				return nil, err
			}
			n++
			if n%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
		}
	}

	if !sawMzML {
		return nil, errors.New("mzML: no mzML element found")
	}
	return index, nil
}

func (x *IsolationIndex) add(spec *spectrum) error {
	scan := scanNumber(spec.ID, spec.Index)
	if _, dup := x.msLevel[scan]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateScan, scan)
	}

	level := 1
	for _, cv := range spec.CvPar {
		if cv.Accession == cvMSLevel {
			if v, err := strconv.Atoi(cv.Value); err == nil {
				level = v
			}
		}
	}
	x.msLevel[scan] = level

	// Only the first precursor is used, as for the scan's own isolation.
	if len(spec.Precursor) == 0 {
		return nil
	}
	for _, cv := range spec.Precursor[0].IsolationWindow.CvPar {
		if cv.Accession != cvIsolationWindowTarget {
			continue
		}
		mz, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return fmt.Errorf("scan %d: invalid isolation window target '%s': %w", scan, cv.Value, err)
		}
		x.isolation[scan] = mz
	}
	return nil
}

// scanNumber takes the scan number from a native id such as
// "controllerType=0 controllerNumber=1 scan=17", else uses index+1.
func scanNumber(id string, index int) int {
	for _, field := range strings.Fields(id) {
		if v, ok := strings.CutPrefix(field, "scan="); ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return index + 1
}

// IsolationMz implements Handle.
func (x *IsolationIndex) IsolationMz(scan int) (float64, bool, error) {
	if x.isolation == nil {
		return 0, false, errors.New("mzML: index closed")
	}
	mz, ok := x.isolation[scan]
	return mz, ok, nil
}

// MSLevel returns the MS level of a scan and whether the scan exists.
func (x *IsolationIndex) MSLevel(scan int) (int, bool) {
	level, ok := x.msLevel[scan]
	return level, ok
}

// NumSpecs returns the number of spectra read.
func (x *IsolationIndex) NumSpecs() int {
	return len(x.msLevel)
}

// Close implements Handle.
func (x *IsolationIndex) Close() error {
	x.isolation = nil
	x.msLevel = nil
	return nil
}
