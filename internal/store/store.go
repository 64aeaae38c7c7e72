// Package store persists datasets and fit results in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/kartoza/econometric-lab/internal/classify"
	"github.com/kartoza/econometric-lab/internal/dataset"
	"github.com/kartoza/econometric-lab/internal/results"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when no document has the requested id
	ErrNotFound = errors.New("not found")

	// ErrCorrupt is returned when a stored dataset fails its integrity checks
	ErrCorrupt = errors.New("stored dataset is corrupt")
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	meta       TEXT NOT NULL,
	codec      TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	payload    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	id          TEXT PRIMARY KEY,
	analysis_id TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	doc         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS results_analysis_id ON results (analysis_id);
`

// DatasetRecord is an uploaded dataset with its classification
type DatasetRecord struct {
	ID             string
	Filename       string
	Classification classify.Classification
	Timestamp      time.Time
	Data           *dataset.Dataset
}

// datasetMeta is the JSON metadata column of the datasets table
type datasetMeta struct {
	Rows    int                  `json:"rows"`
	Columns []string             `json:"columns"`
	Types   []dataset.ColumnType `json:"types"`
	classify.Classification
}

// Store is a two-collection document store backed by SQLite
type Store struct {
	db    *sql.DB
	codec Codec
}

// Open opens (creating if needed) the SQLite database at path. Dataset
// payloads are written with codec; existing rows are read with the codec
// they were written with.
func Open(path string, codec Codec) (*Store, error) {
	if codec == nil {
		codec = ZstdCodec{}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema in %s: %w", path, err)
	}

	log.Printf("Opened store: %s (codec %s)", path, codec.Name())
	return &Store{db: db, codec: codec}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertDataset stores rec, assigning an id and timestamp when they are
// unset. The row payload is compressed and checksummed.
func (s *Store) InsertDataset(ctx context.Context, rec *DatasetRecord) error {
	if rec.Data == nil {
		return fmt.Errorf("dataset record has no data")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	meta, err := json.Marshal(datasetMeta{
		Rows:           rec.Data.Rows(),
		Columns:        rec.Data.Columns(),
		Types:          rec.Data.Types(),
		Classification: rec.Classification,
	})
	if err != nil {
		return fmt.Errorf("failed to encode dataset metadata: %w", err)
	}

	raw, err := json.Marshal(rec.Data.Cells())
	if err != nil {
		return fmt.Errorf("failed to encode dataset rows: %w", err)
	}
	payload, err := s.codec.Compress(raw)
	if err != nil {
		return fmt.Errorf("failed to compress dataset rows: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, filename, created_at, meta, codec, checksum, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, rec.Timestamp.Format(time.RFC3339Nano), string(meta),
		s.codec.Name(), checksum(payload), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dataset %s: %w", rec.ID, err)
	}
	return nil
}

// FindDataset loads a dataset by id and verifies that its payload matches
// its checksum and declared shape.
func (s *Store) FindDataset(ctx context.Context, id string) (*DatasetRecord, error) {
	var (
		filename, created, metaJSON, codecName, sum string
		payload                                     []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT filename, created_at, meta, codec, checksum, payload FROM datasets WHERE id = ?`, id,
	).Scan(&filename, &created, &metaJSON, &codecName, &sum, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset %s: %w", id, err)
	}

	if checksum(payload) != sum {
		return nil, fmt.Errorf("dataset %s: %w: checksum mismatch", id, ErrCorrupt)
	}

	var meta datasetMeta
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("dataset %s: %w: bad metadata: %v", id, ErrCorrupt, err)
	}

	codec, err := CodecByName(codecName)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w: %v", id, ErrCorrupt, err)
	}
	raw, err := codec.Decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w: %v", id, ErrCorrupt, err)
	}

	var cells [][]string
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, fmt.Errorf("dataset %s: %w: bad payload: %v", id, ErrCorrupt, err)
	}
	if len(cells) != meta.Rows {
		return nil, fmt.Errorf("dataset %s: %w: %d rows stored, %d declared", id, ErrCorrupt, len(cells), meta.Rows)
	}
	for i, row := range cells {
		if len(row) != len(meta.Columns) {
			return nil, fmt.Errorf("dataset %s: %w: row %d has %d fields, %d columns declared",
				id, ErrCorrupt, i+1, len(row), len(meta.Columns))
		}
	}

	data, err := dataset.NewTyped(filename, meta.Columns, meta.Types, cells)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w: %v", id, ErrCorrupt, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w: bad timestamp %q", id, ErrCorrupt, created)
	}

	return &DatasetRecord{
		ID:             id,
		Filename:       filename,
		Classification: meta.Classification,
		Timestamp:      ts,
		Data:           data,
	}, nil
}

// InsertResult stores a fit result document
func (s *Store) InsertResult(ctx context.Context, res *results.FitResult) error {
	doc, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", res.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, analysis_id, created_at, doc) VALUES (?, ?, ?, ?)`,
		res.ID, res.AnalysisID, res.Timestamp.Format(time.RFC3339Nano), string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result %s: %w", res.ID, err)
	}
	return nil
}

// FindResult loads a fit result document by id
func (s *Store) FindResult(ctx context.Context, id string) (*results.FitResult, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM results WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result %s: %w", id, err)
	}

	var res results.FitResult
	if err := json.Unmarshal([]byte(doc), &res); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", id, err)
	}
	return &res, nil
}

// Counts returns the number of stored datasets and results
func (s *Store) Counts(ctx context.Context) (datasets, fits int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM datasets`).Scan(&datasets); err != nil {
		return 0, 0, fmt.Errorf("failed to count datasets: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM results`).Scan(&fits); err != nil {
		return 0, 0, fmt.Errorf("failed to count results: %w", err)
	}
	return datasets, fits, nil
}

func checksum(payload []byte) string {
	return strconv.FormatUint(xxhash.Sum64(payload), 16)
}
