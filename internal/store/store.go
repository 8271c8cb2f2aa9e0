package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS ladder_responses (
	id              uuid PRIMARY KEY,
	run_id          uuid NOT NULL,
	source          text NOT NULL,
	file            text NOT NULL,
	session_id      text NOT NULL,
	participant     text NOT NULL,
	family_response text NOT NULL DEFAULT '',
	reason          text NOT NULL DEFAULT '',
	categories      jsonb NOT NULL DEFAULT '[]',
	created_at      timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ladder_responses_run_idx ON ladder_responses (run_id);
CREATE INDEX IF NOT EXISTS ladder_responses_session_idx ON ladder_responses (session_id);`

// EnsureSchema creates the ladder_responses table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
