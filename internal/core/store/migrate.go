package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS limiter_state (
		endpoint TEXT PRIMARY KEY,
		effective_max INTEGER NOT NULL,
		consecutive_429 INTEGER NOT NULL DEFAULT 0,
		backoff_until INTEGER,
		last_429_at INTEGER,
		day TEXT NOT NULL DEFAULT '',
		day_count INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_limiter_state_updated ON limiter_state(updated_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
