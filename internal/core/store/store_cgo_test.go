//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pacelens/pacelens/internal/config"
	"github.com/pacelens/pacelens/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	store := openTestStore(t)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.CheckHealth(context.Background()))
}

func TestLimiterStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	missing, err := store.GetLimiterState(ctx, "api.example.com")
	require.NoError(t, err)
	require.Nil(t, missing)

	backoff := time.Date(2026, 3, 14, 10, 0, 2, 0, time.UTC)
	state := core.LimiterState{
		EffectiveMax:   5,
		Consecutive429: 2,
		BackoffUntil:   &backoff,
		Day:            "2026-03-14",
		DayCount:       17,
	}

	require.NoError(t, store.PutLimiterState(ctx, "api.example.com", state))

	got, err := store.GetLimiterState(ctx, "api.example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 5, got.EffectiveMax)
	require.Equal(t, 2, got.Consecutive429)
	require.NotNil(t, got.BackoffUntil)
	require.Equal(t, backoff.Unix(), got.BackoffUntil.Unix())
	require.Nil(t, got.Last429At)
	require.Equal(t, "2026-03-14", got.Day)
	require.Equal(t, 17, got.DayCount)

	// Upsert overwrites in place.
	state.EffectiveMax = 7
	state.BackoffUntil = nil
	require.NoError(t, store.PutLimiterState(ctx, "api.example.com", state))

	got, err = store.GetLimiterState(ctx, "api.example.com")
	require.NoError(t, err)
	require.Equal(t, 7, got.EffectiveMax)
	require.Nil(t, got.BackoffUntil)
}

func TestLimiterStateAdminQueries(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, endpoint := range []string{"api.openai.com", "api.x.ai", "rdap.example.net"} {
		require.NoError(t, store.PutLimiterState(ctx, endpoint, core.LimiterState{EffectiveMax: 9}))
	}

	entries, err := store.ListLimiterStates(ctx, StateQuery{All: true})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "api.openai.com", entries[0].Endpoint)

	count, err := store.CountLimiterStates(ctx, StateQuery{Prefix: "api."})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	deleted, err := store.ResetLimiterStates(ctx, StateQuery{Endpoint: "api.x.ai"})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	count, err = store.CountLimiterStates(ctx, StateQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
