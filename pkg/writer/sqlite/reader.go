package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ChrisMcGann/ChimeraKey/pkg/chimera"
	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

// Store gives read access to a breakdown database.
type Store struct {
	db *sql.DB
}

// Open opens an existing breakdown database read-only.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db, err := sql.Open("sqlite3", dsn(path, "ro"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Complete reports whether path holds a finished breakdown database, i.e. one
// whose header row was written by Finalize. A missing file is not complete and
// not an error.
func Complete(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	s, err := Open(path)
	if err != nil {
		return false, err
	}
	defer s.Close()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM HeaderTable`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return n > 0, nil
}

// Records returns the breakdown records matching q in insertion order. A nil
// query returns every record.
func (s *Store) Records(q *Query) ([]core.BreakdownRecord, error) {
	if q == nil {
		q = &Query{}
	}
	where, args := q.where()
	rows, err := s.db.Query(`
		SELECT Dataset, Condition, FileName, Ms2ScanNumber, Type,
			IdsPerSpectra, TargetCount, DecoyCount, DuplicateCount,
			UniqueForms, UniqueProteins, IsolationMz, blobCharges, blobMasses
		FROM BreakdownTable`+where+` ORDER BY RecordId`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []core.BreakdownRecord
	for rows.Next() {
		var (
			r       core.BreakdownRecord
			typ     string
			charges []byte
			masses  []byte
		)
		if err := rows.Scan(
			&r.Dataset, &r.Condition, &r.FileName, &r.ScanNumber, &typ,
			&r.IdsPerSpectrum, &r.TargetCount, &r.DecoyCount, &r.DuplicateCount,
			&r.UniqueForms, &r.UniqueProteins, &r.IsolationMz, &charges, &masses,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Type = core.ResultType(typ)
		if r.Charges, err = decodeInt32s(charges); err != nil {
			return nil, fmt.Errorf("record %s: %w", r.Key(), err)
		}
		if r.Masses, err = decodeFloat64s(masses); err != nil {
			return nil, fmt.Errorf("record %s: %w", r.Key(), err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counting returns the stored chimera counting rows.
func (s *Store) Counting() ([]chimera.CountingRow, error) {
	rows, err := s.db.Query(`
		SELECT Dataset, Condition, IdsPerSpectra, Count, OnePercentIdCount
		FROM CountingTable ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query counting: %w", err)
	}
	defer rows.Close()

	var out []chimera.CountingRow
	for rows.Next() {
		var c chimera.CountingRow
		if err := rows.Scan(&c.Dataset, &c.Condition, &c.IdsPerSpectrum, &c.Count, &c.FilteredCount); err != nil {
			return nil, fmt.Errorf("failed to scan counting row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResultCounts returns the stored per-file result counts.
func (s *Store) ResultCounts() ([]chimera.ResultCounts, error) {
	rows, err := s.db.Query(`
		SELECT Dataset, Condition, FileName, PsmCount, ProteoformCount, ProteinCount,
			OnePercentPsmCount, OnePercentProteoformCount, OnePercentProteinCount
		FROM ResultCountTable ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query result counts: %w", err)
	}
	defer rows.Close()

	var out []chimera.ResultCounts
	for rows.Next() {
		var c chimera.ResultCounts
		if err := rows.Scan(
			&c.Dataset, &c.Condition, &c.FileName, &c.PsmCount, &c.ProteoformCount, &c.ProteinCount,
			&c.OnePercentPsmCount, &c.OnePercentProteoformCount, &c.OnePercentProteinCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReadRecords is a convenience wrapper that opens path and returns the records
// matching q.
func ReadRecords(path string, q *Query) ([]core.BreakdownRecord, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Records(q)
}

// Query selects stored breakdown records.
type Query struct {
	Datasets   []string
	Conditions []string
	Type       core.ResultType
}

func (q *Query) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	in := func(col string, values []string) {
		if len(values) == 0 {
			return
		}
		clauses = append(clauses, col+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")+")")
		for _, v := range values {
			args = append(args, v)
		}
	}
	in("Dataset", q.Datasets)
	in("Condition", q.Conditions)
	if q.Type != "" {
		clauses = append(clauses, "Type = ?")
		args = append(args, string(q.Type))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
