package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/coreman2200/pixelwall/internal/pixel"
)

// Store persists one serialized cell array per room id. Durability is
// best-effort: reload falls back to an all-unset canvas on any problem.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open initializes the SQLite database at path, creating parent
// directories as needed.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path, log: log}, nil
}

// Init applies pragmas and schema.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	ddl := `CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		cells TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveCells upserts the room's cell array.
func (s *Store) SaveCells(ctx context.Context, roomID string, cells []pixel.Cell) error {
	data, err := pixel.MarshalCells(cells)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms(id, cells, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET cells=excluded.cells, updated_at=excluded.updated_at;
	`, roomID, string(data), time.Now().UnixMilli())
	return err
}

// LoadCells returns the room's persisted cells, or an all-unset array
// of length n when the row is absent, corrupt, or the wrong size.
func (s *Store) LoadCells(ctx context.Context, roomID string, n int) ([]pixel.Cell, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT cells FROM rooms WHERE id = ?;`, roomID).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return pixel.NewCells(n), nil
	case err != nil:
		return nil, err
	}
	cells, err := pixel.UnmarshalCells([]byte(raw))
	if err != nil || len(cells) != n {
		s.log.Warn().Err(err).Str("room", roomID).Int("len", len(cells)).
			Msg("discarding unusable persisted state")
		return pixel.NewCells(n), nil
	}
	return cells, nil
}
