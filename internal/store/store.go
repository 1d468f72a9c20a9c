// Package store keeps completed readings in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/models"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("reading not found")

// MaxRecent caps the number of rows Recent returns.
const MaxRecent = 200

// Reading is one successful analysis.
type Reading struct {
	ID         int64                `json:"id"`
	RequestID  string               `json:"requestId"`
	CreatedAt  time.Time            `json:"createdAt"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	WhitePoint models.Point         `json:"whitePoint"`
	Scale      imaging.ScaleFactors `json:"scale"`
	Samples    []models.ColorSample `json:"colour"`
}

// Store is a handle on the readings database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	white_x INTEGER NOT NULL,
	white_y INTEGER NOT NULL,
	scale_r REAL NOT NULL,
	scale_g REAL NOT NULL,
	scale_b REAL NOT NULL,
	samples_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_request_id ON readings(request_id);`

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores r and returns its new id. CreatedAt defaults to now.
func (s *Store) Insert(ctx context.Context, r *Reading) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	samples, err := json.Marshal(r.Samples)
	if err != nil {
		return 0, fmt.Errorf("cannot encode samples: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (
			request_id, created_at, width, height, white_x, white_y, scale_r, scale_g, scale_b, samples_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.Width,
		r.Height,
		r.WhitePoint.X,
		r.WhitePoint.Y,
		r.Scale.R,
		r.Scale.G,
		r.Scale.B,
		string(samples),
	)
	if err != nil {
		return 0, fmt.Errorf("cannot insert reading %s: %w", r.RequestID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("cannot read reading id: %w", err)
	}
	r.ID = id
	return id, nil
}

const selectColumns = `SELECT id, request_id, created_at, width, height, white_x, white_y,
	scale_r, scale_g, scale_b, samples_json FROM readings`

// Get returns the reading with the given id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Reading, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Recent returns up to limit readings, newest first. limit is clamped to
// [1, MaxRecent].
func (s *Store) Recent(ctx context.Context, limit int) ([]*Reading, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxRecent {
		limit = MaxRecent
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("cannot query readings: %w", err)
	}
	defer rows.Close()

	readings := make([]*Reading, 0, limit)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cannot read readings: %w", err)
	}
	return readings, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(row scanner) (*Reading, error) {
	var (
		r         Reading
		createdAt string
		samples   string
	)
	err := row.Scan(&r.ID, &r.RequestID, &createdAt, &r.Width, &r.Height,
		&r.WhitePoint.X, &r.WhitePoint.Y, &r.Scale.R, &r.Scale.G, &r.Scale.B, &samples)
	if err != nil {
		return nil, err
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("reading %d has bad created_at %q: %w", r.ID, createdAt, err)
	}
	if err := json.Unmarshal([]byte(samples), &r.Samples); err != nil {
		return nil, fmt.Errorf("reading %d has bad samples: %w", r.ID, err)
	}
	return &r, nil
}
