package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresStore persists records to PostgreSQL as JSONB.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects to dsn, pings and runs migrations.
func NewPostgresStore(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger.With().Str("component", "postgres").Logger()}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.logger.Info().Msg("postgres store connected")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			kind       VARCHAR(16)  NOT NULL,
			key        VARCHAR(255) NOT NULL,
			fields     JSONB        NOT NULL,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			PRIMARY KEY (kind, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_updated ON records(kind, updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, kind Kind, key string, fields Fields) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, key, err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO records (kind, key, fields)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (kind, key) DO UPDATE SET
			fields = records.fields || EXCLUDED.fields,
			updated_at = NOW()`,
		string(kind), key, string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", kind, key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT key, fields, created_at, updated_at
		FROM records WHERE kind = $1 ORDER BY updated_at DESC, key LIMIT $2`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec Record
			raw []byte
		)
		if err := rows.Scan(&rec.Key, &raw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		if err := json.Unmarshal(raw, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", kind, rec.Key, err)
		}
		rec.Kind = kind
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	s.logger.Info().Msg("postgres store closed")
	return nil
}
