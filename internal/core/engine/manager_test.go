package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pacelens/pacelens/internal/core"
)

type memoryStateStore struct {
	state map[string]core.LimiterState
}

func (m *memoryStateStore) GetLimiterState(ctx context.Context, endpoint string) (*core.LimiterState, error) {
	if m.state == nil {
		return nil, nil
	}
	if val, ok := m.state[endpoint]; ok {
		return &val, nil
	}
	return nil, nil
}

func (m *memoryStateStore) PutLimiterState(ctx context.Context, endpoint string, state core.LimiterState) error {
	if m.state == nil {
		m.state = make(map[string]core.LimiterState)
	}
	m.state[endpoint] = state
	return nil
}

func TestManagerCreatesLimiterOnFirstUse(t *testing.T) {
	m := NewManager(map[string]Config{
		"api.example.com": {MaxRequests: 4, MinRequests: 2, Window: 10 * time.Second},
	})

	l, err := m.Limiter("api.example.com")
	require.NoError(t, err)
	require.Equal(t, 4, l.EffectiveMax())

	again, err := m.Limiter("api.example.com")
	require.NoError(t, err)
	require.Same(t, l, again)
}

func TestManagerUnknownEndpointGetsDefaults(t *testing.T) {
	m := NewManager(nil)

	l, err := m.Limiter("api.unknown.example")
	require.NoError(t, err)
	require.Equal(t, DefaultMaxRequests, l.EffectiveMax())
}

func TestManagerRejectsEmptyEndpoint(t *testing.T) {
	m := NewManager(nil)

	_, err := m.Limiter("  ")
	require.Error(t, err)
}

func TestManagerReport(t *testing.T) {
	m := NewManager(nil)

	require.NoError(t, m.Report("api.example.com", core.OutcomeRateLimited))
	status, ok := m.Status("api.example.com")
	require.True(t, ok)
	require.Equal(t, DefaultMaxRequests-2, status.EffectiveMax)
	require.True(t, status.InBackoff)

	require.NoError(t, m.Report("api.example.com", core.OutcomeSuccess))
	status, _ = m.Status("api.example.com")
	require.Equal(t, DefaultMaxRequests-1, status.EffectiveMax)

	require.Error(t, m.Report("api.example.com", core.Outcome("bogus")))
}

func TestManagerStatusesSorted(t *testing.T) {
	m := NewManager(nil)

	for _, endpoint := range []string{"c.example", "a.example", "b.example"} {
		_, err := m.Limiter(endpoint)
		require.NoError(t, err)
	}

	statuses := m.Statuses()
	require.Len(t, statuses, 3)
	require.Equal(t, "a.example", statuses[0].Endpoint)
	require.Equal(t, "b.example", statuses[1].Endpoint)
	require.Equal(t, "c.example", statuses[2].Endpoint)
}

func TestManagerStatusMissingEndpoint(t *testing.T) {
	m := NewManager(nil)

	_, ok := m.Status("never.seen.example")
	require.False(t, ok)
}

func TestManagerHydrateAndFlush(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := &memoryStateStore{state: map[string]core.LimiterState{
		"api.example.com": {EffectiveMax: 5, Consecutive429: 1, DayCount: 7, Day: "2026-03-14"},
	}}

	m := NewManager(map[string]Config{
		"api.example.com": {MaxRequests: 9, MinRequests: 3, Window: time.Minute},
	})
	m.Clock = func() time.Time { return now }

	require.NoError(t, m.Hydrate(context.Background(), store))

	l, err := m.Limiter("api.example.com")
	require.NoError(t, err)
	require.Equal(t, 5, l.EffectiveMax())
	require.Equal(t, 7, l.TodayCount())

	l.ReportSuccess()
	require.NoError(t, m.Flush(context.Background(), store))
	require.Equal(t, 6, store.state["api.example.com"].EffectiveMax)
	require.Zero(t, store.state["api.example.com"].Consecutive429)
}
