package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the API can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger.With().Str("component", "sqlite").Logger(), now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.Info().Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			kind       TEXT    NOT NULL,
			key        TEXT    NOT NULL,
			fields     TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_updated ON records(kind, updated_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, kind Kind, key string, fields Fields) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixNano()
	_, err = s.db.ExecContext(ctx, `INSERT INTO records (kind, key, fields, created_at, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(kind, key) DO UPDATE SET
			fields = json_patch(records.fields, excluded.fields),
			updated_at = excluded.updated_at`,
		string(kind), key, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", kind, key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, fields, created_at, updated_at
		FROM records WHERE kind = ? ORDER BY updated_at DESC, key LIMIT ?`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec              Record
			raw              string
			created, updated int64
		)
		if err := rows.Scan(&rec.Key, &raw, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		if err := json.Unmarshal([]byte(raw), &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", kind, rec.Key, err)
		}
		rec.Kind = kind
		rec.CreatedAt = time.Unix(0, created).UTC()
		rec.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.logger.Info().Msg("closing sqlite store")
	return s.db.Close()
}
