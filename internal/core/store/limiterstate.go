package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pacelens/pacelens/internal/core"
)

// GetLimiterState returns the persisted limiter state for an endpoint, or nil
// when none has been stored.
func (s *Store) GetLimiterState(ctx context.Context, endpoint string) (*core.LimiterState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	var (
		effectiveMax   int
		consecutive429 int
		backoffUntil   sql.NullInt64
		last429At      sql.NullInt64
		day            string
		dayCount       int
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT effective_max, consecutive_429, backoff_until, last_429_at, day, day_count
		FROM limiter_state
		WHERE endpoint = ?
	`, endpoint)

	if err := row.Scan(&effectiveMax, &consecutive429, &backoffUntil, &last429At, &day, &dayCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch limiter state: %w", err)
	}

	state := &core.LimiterState{
		EffectiveMax:   effectiveMax,
		Consecutive429: consecutive429,
		Day:            day,
		DayCount:       dayCount,
	}

	if backoffUntil.Valid {
		value := time.Unix(backoffUntil.Int64, 0).UTC()
		state.BackoffUntil = &value
	}
	if last429At.Valid {
		value := time.Unix(last429At.Int64, 0).UTC()
		state.Last429At = &value
	}

	return state, nil
}

// PutLimiterState persists limiter state for an endpoint.
func (s *Store) PutLimiterState(ctx context.Context, endpoint string, state core.LimiterState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}

	var backoffUntil sql.NullInt64
	if state.BackoffUntil != nil {
		backoffUntil = sql.NullInt64{Int64: state.BackoffUntil.UTC().Unix(), Valid: true}
	}

	var last429At sql.NullInt64
	if state.Last429At != nil {
		last429At = sql.NullInt64{Int64: state.Last429At.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO limiter_state (endpoint, effective_max, consecutive_429, backoff_until, last_429_at, day, day_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			effective_max = excluded.effective_max,
			consecutive_429 = excluded.consecutive_429,
			backoff_until = excluded.backoff_until,
			last_429_at = excluded.last_429_at,
			day = excluded.day,
			day_count = excluded.day_count,
			updated_at = excluded.updated_at
	`, endpoint, state.EffectiveMax, state.Consecutive429, backoffUntil, last429At, state.Day, state.DayCount, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store limiter state: %w", err)
	}

	return nil
}
