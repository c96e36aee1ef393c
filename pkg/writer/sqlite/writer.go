// Package sqlite provides SQLite storage for chimera breakdown results
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/ChimeraKey/pkg/chimera"
	"github.com/ChrisMcGann/ChimeraKey/pkg/core"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	// Date format for MaintenanceTable
	maintenanceDateFormat = "2006 01 02"

	schemaVersion = 1
)

// ErrExists is returned when the output database exists and override is off.
var ErrExists = errors.New("output database already exists")

// Writer handles writing breakdown results to SQLite database files
type Writer struct {
	db           *sql.DB
	outputPath   string
	recordStmt   *sql.Stmt
	countingStmt *sql.Stmt
	resultStmt   *sql.Stmt
	recordID     int
	description  string
	finalized    bool
	closed       bool

	// finalPath is set for staged writers: the database is built at
	// outputPath and renamed to finalPath by Publish.
	finalPath string
	published bool
}

// NewWriter creates a new SQLite writer. An existing file at outputPath is
// replaced when override is set and rejected with ErrExists otherwise.
func NewWriter(outputPath string, override bool) (*Writer, error) {
	if _, err := os.Stat(outputPath); err == nil {
		if !override {
			return nil, fmt.Errorf("%w: %s", ErrExists, outputPath)
		}
		if err := os.Remove(outputPath); err != nil {
			return nil, fmt.Errorf("failed to remove existing database: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(outputPath, "rwc"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		recordID:   1,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// NewStagedWriter builds a database that only appears at path once Publish
// succeeds. Until then it is written to path + ".partial", which Abort removes.
func NewStagedWriter(path string) (*Writer, error) {
	staging := path + ".partial"
	if err := os.Remove(staging); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale staging database: %w", err)
	}
	w, err := NewWriter(staging, false)
	if err != nil {
		return nil, err
	}
	w.finalPath = path
	return w, nil
}

// dsn builds a go-sqlite3 URI for path. The path is escaped so that '?', '#'
// and '%' in file names are not taken as URI syntax.
func dsn(path, mode string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=" + mode
}

// SetDescription sets the text stored in the header row on Finalize.
func (w *Writer) SetDescription(s string) {
	w.description = s
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS BreakdownTable (
		RecordId INTEGER PRIMARY KEY,
		Dataset TEXT,
		Condition TEXT,
		FileName TEXT,
		Ms2ScanNumber INTEGER,
		Type TEXT,
		IdsPerSpectra INTEGER,
		TargetCount INTEGER,
		DecoyCount INTEGER,
		DuplicateCount INTEGER,
		UniqueForms INTEGER,
		UniqueProteins INTEGER,
		IsolationMz DOUBLE,
		blobCharges BLOB,
		blobMasses BLOB
	);

	CREATE INDEX IF NOT EXISTS BreakdownByGroup
		ON BreakdownTable (Dataset, Condition, Type, IdsPerSpectra);

	CREATE TABLE IF NOT EXISTS CountingTable (
		Dataset TEXT,
		Condition TEXT,
		IdsPerSpectra INTEGER,
		Count INTEGER,
		OnePercentIdCount INTEGER
	);

	CREATE TABLE IF NOT EXISTS ResultCountTable (
		Dataset TEXT,
		Condition TEXT,
		FileName TEXT,
		PsmCount INTEGER,
		ProteoformCount INTEGER,
		ProteinCount INTEGER,
		OnePercentPsmCount INTEGER,
		OnePercentProteoformCount INTEGER,
		OnePercentProteinCount INTEGER
	);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		LastModifiedDate TEXT,
		Description TEXT
	);

	CREATE TABLE IF NOT EXISTS MaintenanceTable (
		CreationDate TEXT,
		NoofRecords INTEGER,
		Description TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.recordStmt, err = w.db.Prepare(`
		INSERT INTO BreakdownTable (
			RecordId, Dataset, Condition, FileName, Ms2ScanNumber, Type,
			IdsPerSpectra, TargetCount, DecoyCount, DuplicateCount,
			UniqueForms, UniqueProteins, IsolationMz, blobCharges, blobMasses
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare breakdown statement: %w", err)
	}

	w.countingStmt, err = w.db.Prepare(`
		INSERT INTO CountingTable (
			Dataset, Condition, IdsPerSpectra, Count, OnePercentIdCount
		) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare counting statement: %w", err)
	}

	w.resultStmt, err = w.db.Prepare(`
		INSERT INTO ResultCountTable (
			Dataset, Condition, FileName, PsmCount, ProteoformCount, ProteinCount,
			OnePercentPsmCount, OnePercentProteoformCount, OnePercentProteinCount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare result count statement: %w", err)
	}

	return nil
}

// WriteRecord writes a single breakdown record to the database
func (w *Writer) WriteRecord(r *core.BreakdownRecord) error {
	_, err := w.recordStmt.Exec(
		w.recordID,
		r.Dataset,
		r.Condition,
		r.FileName,
		r.ScanNumber,
		string(r.Type),
		r.IdsPerSpectrum,
		r.TargetCount,
		r.DecoyCount,
		r.DuplicateCount,
		r.UniqueForms,
		r.UniqueProteins,
		r.IsolationMz,
		encodeInt32s(r.Charges),
		encodeFloat64s(r.Masses),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record %s: %w", r.Key(), err)
	}

	w.recordID++
	return nil
}

// WriteRecords writes records in a single transaction.
func (w *Writer) WriteRecords(records []core.BreakdownRecord) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt := tx.Stmt(w.recordStmt)
	defer stmt.Close()

	next := w.recordID
	for i := range records {
		r := &records[i]
		_, err := stmt.Exec(
			next, r.Dataset, r.Condition, r.FileName, r.ScanNumber, string(r.Type),
			r.IdsPerSpectrum, r.TargetCount, r.DecoyCount, r.DuplicateCount,
			r.UniqueForms, r.UniqueProteins, r.IsolationMz,
			encodeInt32s(r.Charges), encodeFloat64s(r.Masses),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert record %s: %w", r.Key(), err)
		}
		next++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	w.recordID = next
	return nil
}

// WriteCounting writes chimera counting rows.
func (w *Writer) WriteCounting(rows []chimera.CountingRow) error {
	for _, row := range rows {
		if _, err := w.countingStmt.Exec(row.Dataset, row.Condition, row.IdsPerSpectrum, row.Count, row.FilteredCount); err != nil {
			return fmt.Errorf("failed to insert counting row: %w", err)
		}
	}
	return nil
}

// WriteResultCounts writes per-file result counts.
func (w *Writer) WriteResultCounts(rows []chimera.ResultCounts) error {
	for _, c := range rows {
		_, err := w.resultStmt.Exec(
			c.Dataset, c.Condition, c.FileName,
			c.PsmCount, c.ProteoformCount, c.ProteinCount,
			c.OnePercentPsmCount, c.OnePercentProteoformCount, c.OnePercentProteinCount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result count: %w", err)
		}
	}
	return nil
}

// encodeFloat64s encodes values as a little-endian float64 blob
func encodeFloat64s(values []float64) []byte {
	if len(values) == 0 {
		return nil
	}
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeFloat64s(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("float64 blob length %d is not a multiple of 8", len(buf))
	}
	if len(buf) == 0 {
		return nil, nil
	}
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

// encodeInt32s encodes values as a little-endian int32 blob
func encodeInt32s(values []int) []byte {
	if len(values) == 0 {
		return nil
	}
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(v)))
	}
	return buf
}

func decodeInt32s(buf []byte) ([]int, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("int32 blob length %d is not a multiple of 4", len(buf))
	}
	if len(buf) == 0 {
		return nil, nil
	}
	out := make([]int, len(buf)/4)
	for i := range out {
		out[i] = int(int32(binary.LittleEndian.Uint32(buf[i*4:])))
	}
	return out, nil
}

// Finalize writes the header and maintenance tables and closes the database
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	now := time.Now()
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, LastModifiedDate, Description)
		VALUES (?, ?, ?, ?)
	`, schemaVersion, now.Format(headerDateFormat), now.Format(headerDateFormat), w.description)
	if err != nil {
		w.close()
		return fmt.Errorf("failed to insert header: %w", err)
	}

	_, err = w.db.Exec(`
		INSERT INTO MaintenanceTable (CreationDate, NoofRecords, Description)
		VALUES (?, ?, ?)
	`, now.Format(maintenanceDateFormat), w.recordID-1, "")
	if err != nil {
		w.close()
		return fmt.Errorf("failed to insert maintenance: %w", err)
	}

	return w.close()
}

func (w *Writer) close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	for _, stmt := range []*sql.Stmt{w.recordStmt, w.countingStmt, w.resultStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize)
func (w *Writer) Close() error {
	return w.Finalize()
}

// Publish finalizes a staged database and renames it into place, replacing
// any file already there. For unstaged writers it is Finalize.
func (w *Writer) Publish() error {
	if err := w.Finalize(); err != nil {
		return err
	}
	if w.finalPath == "" || w.published {
		return nil
	}
	if err := os.Rename(w.outputPath, w.finalPath); err != nil {
		return fmt.Errorf("failed to publish database: %w", err)
	}
	w.published = true
	return nil
}

// Abort closes the database without a header and removes the file being
// written. It is a no-op after Publish, so it can be deferred.
func (w *Writer) Abort() error {
	if w.published {
		return nil
	}
	w.finalized = true
	if err := w.close(); err != nil {
		return err
	}
	if err := os.Remove(w.outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove unfinished database: %w", err)
	}
	return nil
}
