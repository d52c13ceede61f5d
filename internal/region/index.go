package region

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"voxelstream/internal/coords"
)

// Entry is one row of the region index.
type Entry struct {
	Region     coords.Vec3i
	Chunks     int
	Bytes      int64
	Compressed bool
	SavedAt    time.Time
}

// Index is a sqlite table of saved regions, used for listing a save
// directory without opening every file.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("region: empty index path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS regions (
		rx INTEGER NOT NULL,
		ry INTEGER NOT NULL,
		rz INTEGER NOT NULL,
		chunks INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		compressed INTEGER NOT NULL,
		saved_at INTEGER NOT NULL,
		PRIMARY KEY (rx, ry, rz)
	);`)
	return err
}

// Record inserts or replaces the row for e.Region.
func (idx *Index) Record(ctx context.Context, e Entry) error {
	_, err := idx.db.ExecContext(ctx, `INSERT INTO regions (rx, ry, rz, chunks, bytes, compressed, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rx, ry, rz) DO UPDATE SET
			chunks = excluded.chunks,
			bytes = excluded.bytes,
			compressed = excluded.compressed,
			saved_at = excluded.saved_at`,
		e.Region.X, e.Region.Y, e.Region.Z, e.Chunks, e.Bytes, e.Compressed, e.SavedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record region %v: %w", e.Region, err)
	}
	return nil
}

// Get returns the row for r.
func (idx *Index) Get(ctx context.Context, r coords.Vec3i) (Entry, bool, error) {
	row := idx.db.QueryRowContext(ctx,
		`SELECT chunks, bytes, compressed, saved_at FROM regions WHERE rx = ? AND ry = ? AND rz = ?`,
		r.X, r.Y, r.Z)
	e := Entry{Region: r}
	var savedAt int64
	switch err := row.Scan(&e.Chunks, &e.Bytes, &e.Compressed, &savedAt); err {
	case nil:
		e.SavedAt = time.UnixMilli(savedAt)
		return e, true, nil
	case sql.ErrNoRows:
		return Entry{}, false, nil
	default:
		return Entry{}, false, err
	}
}

// List returns every row ordered by coordinate.
func (idx *Index) List(ctx context.Context) ([]Entry, error) {
	rows, err := idx.db.QueryContext(ctx,
		`SELECT rx, ry, rz, chunks, bytes, compressed, saved_at FROM regions ORDER BY rx, ry, rz`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var savedAt int64
		if err := rows.Scan(&e.Region.X, &e.Region.Y, &e.Region.Z, &e.Chunks, &e.Bytes, &e.Compressed, &savedAt); err != nil {
			return nil, err
		}
		e.SavedAt = time.UnixMilli(savedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Forget deletes the row for r.
func (idx *Index) Forget(ctx context.Context, r coords.Vec3i) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM regions WHERE rx = ? AND ry = ? AND rz = ?`, r.X, r.Y, r.Z)
	return err
}

// Close closes the database.
func (idx *Index) Close() error {
	return idx.db.Close()
}
