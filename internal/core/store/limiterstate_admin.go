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

type LimiterStateEntry struct {
	Endpoint string
	State    core.LimiterState
}

type StateQuery struct {
	All      bool
	Endpoint string
	Prefix   string
}

func (q StateQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Endpoint) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --endpoint, or --prefix")
}

func (q StateQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if endpoint := strings.TrimSpace(q.Endpoint); endpoint != "" {
		return "WHERE endpoint = ?", []any{endpoint}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE endpoint LIKE ?", []any{prefix + "%"}, nil
}

func (s *Store) ListLimiterStates(ctx context.Context, q StateQuery) ([]LimiterStateEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT endpoint, effective_max, consecutive_429, backoff_until, last_429_at, day, day_count
		FROM limiter_state
		%s
		ORDER BY endpoint
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list limiter states: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []LimiterStateEntry{}
	for rows.Next() {
		var (
			endpoint       string
			effectiveMax   int
			consecutive429 int
			backoffUntil   sql.NullInt64
			last429At      sql.NullInt64
			day            string
			dayCount       int
		)
		if err := rows.Scan(&endpoint, &effectiveMax, &consecutive429, &backoffUntil, &last429At, &day, &dayCount); err != nil {
			return nil, fmt.Errorf("scan limiter states: %w", err)
		}

		state := core.LimiterState{
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

		entries = append(entries, LimiterStateEntry{Endpoint: endpoint, State: state})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list limiter states: %w", err)
	}

	return entries, nil
}

func (s *Store) CountLimiterStates(ctx context.Context, q StateQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM limiter_state
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count limiter states: %w", err)
	}
	return count, nil
}

func (s *Store) ResetLimiterStates(ctx context.Context, q StateQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM limiter_state
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset limiter states: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset limiter states: %w", err)
	}
	return affected, nil
}
