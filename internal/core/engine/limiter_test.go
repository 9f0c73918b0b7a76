package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pacelens/pacelens/internal/core"
)

// coreState builds a minimal persisted state with the given ceiling.
func coreState(effectiveMax int) core.LimiterState {
	return core.LimiterState{EffectiveMax: effectiveMax}
}

func TestNewAdaptiveLimiterDefaults(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultMaxRequests, l.EffectiveMax())
	require.False(t, l.InBackoff())
	require.Zero(t, l.TodayCount())
	require.Zero(t, l.Pending())
}

func TestNewAdaptiveLimiterValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"negative max", Config{MaxRequests: -1}},
		{"negative min", Config{MinRequests: -2}},
		{"min above max", Config{MaxRequests: 3, MinRequests: 5}},
		{"negative window", Config{Window: -time.Second}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAdaptiveLimiter(tc.cfg)
			require.Error(t, err)
		})
	}
}

func TestConfigValidateAppliesDefaults(t *testing.T) {
	require.NoError(t, Config{}.Validate())
	require.NoError(t, Config{MaxRequests: 12, MinRequests: 4, Window: 30 * time.Second}.Validate())

	// A max below the default min only fails once defaults are filled in.
	require.Error(t, Config{MaxRequests: 2}.Validate())
	require.Error(t, Config{MinRequests: 15}.Validate())
	require.Error(t, Config{MaxRequests: -1}.Validate())
}

func TestAcquireUnderCeilingIsImmediate(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 5, MinRequests: 2, Window: time.Minute})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	require.Less(t, time.Since(start), 200*time.Millisecond)
	require.Equal(t, 5, l.TodayCount())
}

func TestAcquireBlocksWhenWindowFull(t *testing.T) {
	window := 500 * time.Millisecond
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 2, MinRequests: 1, Window: window})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	require.Less(t, elapsed, 2*window)
}

func TestReportRateLimitedFloorsCeiling(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 9, MinRequests: 3, Window: time.Minute})
	require.NoError(t, err)

	l.ReportRateLimited()
	require.Equal(t, 7, l.EffectiveMax())
	l.ReportRateLimited()
	require.Equal(t, 5, l.EffectiveMax())
	l.ReportRateLimited()
	require.Equal(t, 3, l.EffectiveMax())
	l.ReportRateLimited()
	require.Equal(t, 3, l.EffectiveMax())
}

func TestReportSuccessCapsCeiling(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 9, MinRequests: 3, Window: time.Minute})
	require.NoError(t, err)

	l.ReportSuccess()
	require.Equal(t, 9, l.EffectiveMax())

	l.ReportRateLimited()
	require.Equal(t, 7, l.EffectiveMax())
	l.ReportSuccess()
	require.Equal(t, 8, l.EffectiveMax())
	l.ReportSuccess()
	l.ReportSuccess()
	require.Equal(t, 9, l.EffectiveMax())
}

func TestCeilingStaysInBoundsUnderConcurrentReports(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 9, MinRequests: 3, Window: time.Minute})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (worker+j)%3 == 0 {
					l.ReportRateLimited()
				} else {
					l.ReportSuccess()
				}
			}
		}(i)
	}
	wg.Wait()

	eff := l.EffectiveMax()
	require.GreaterOrEqual(t, eff, 3)
	require.LessOrEqual(t, eff, 9)
}

func TestBackoffGrowsExponentially(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l, err := NewAdaptiveLimiter(Config{Clock: func() time.Time { return now }})
	require.NoError(t, err)

	l.ReportRateLimited()
	require.Equal(t, now.Add(2*time.Second), l.State().BackoffUntil.UTC())

	l.ReportRateLimited()
	require.Equal(t, now.Add(4*time.Second), l.State().BackoffUntil.UTC())

	l.ReportRateLimited()
	require.Equal(t, now.Add(8*time.Second), l.State().BackoffUntil.UTC())
}

func TestBackoffExpires(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l, err := NewAdaptiveLimiter(Config{Clock: func() time.Time { return now }})
	require.NoError(t, err)

	l.ReportRateLimited()
	require.True(t, l.InBackoff())

	now = now.Add(3 * time.Second)
	require.False(t, l.InBackoff())
}

func TestSuccessDoesNotClearBackoff(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l, err := NewAdaptiveLimiter(Config{Clock: func() time.Time { return now }})
	require.NoError(t, err)

	l.ReportRateLimited()
	l.ReportSuccess()

	require.True(t, l.InBackoff())
	require.Zero(t, l.State().Consecutive429)

	// The next 429 starts a fresh run: 2^1 again.
	l.ReportRateLimited()
	require.Equal(t, now.Add(2*time.Second), l.State().BackoffUntil.UTC())
}

func TestBackoffDelaysAcquire(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 5, MinRequests: 1, Window: time.Minute})
	require.NoError(t, err)

	// Pull the gate forward so the test does not sleep a full 2^1 seconds.
	l.mu.Lock()
	l.backoffUntil = time.Now().Add(300 * time.Millisecond)
	l.mu.Unlock()

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestTodayCountRollsOverAtUTCMidnight(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	l, err := NewAdaptiveLimiter(Config{Clock: func() time.Time { return now }})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	require.Equal(t, 2, l.TodayCount())

	// Status reads never bump the counter.
	_ = l.Status()
	require.Equal(t, 2, l.TodayCount())

	now = now.Add(2 * time.Minute) // past midnight UTC
	require.Equal(t, 0, l.TodayCount())

	require.NoError(t, l.Acquire(context.Background()))
	require.Equal(t, 1, l.TodayCount())
}

func TestPendingCountObservableMidFlight(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 1, MinRequests: 1, Window: 400 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background()) }()

	require.Eventually(t, func() bool { return l.Pending() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, <-done)
	require.Zero(t, l.Pending())
}

func TestWaitersAdmittedInArrivalOrder(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 1, MinRequests: 1, Window: 400 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))

	order := make(chan int, 3)
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			order <- id
		}(i)
		// Stagger arrivals so queue order is deterministic.
		require.Eventually(t, func() bool { return l.Pending() == i }, time.Second, time.Millisecond)
	}
	wg.Wait()
	close(order)

	var got []int
	for id := range order {
		got = append(got, id)
	}
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestCancelledWaitLeavesStateClean(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 1, MinRequests: 1, Window: time.Minute})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Zero(t, l.Pending())
	require.Equal(t, 1, l.TodayCount())
	require.Equal(t, 1, l.Status().WindowOccupied)
}

func TestCancelledWaiterDoesNotBlockOthers(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 1, MinRequests: 1, Window: 500 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- l.Acquire(ctx) }()
	require.Eventually(t, func() bool { return l.Pending() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- l.Acquire(context.Background()) }()
	require.Eventually(t, func() bool { return l.Pending() == 2 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	// The remaining waiter still gets the slot once the window frees.
	require.NoError(t, <-second)
}

func TestSuccessReportWakesSleepingWaiter(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 2, MinRequests: 1, Window: time.Minute})
	require.NoError(t, err)

	// Start with a shrunken ceiling so one admission saturates the window.
	l.LoadState(coreState(1))
	require.NoError(t, l.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background()) }()
	require.Eventually(t, func() bool { return l.Pending() == 1 }, time.Second, time.Millisecond)

	// Ceiling recovery must reach the waiter immediately, not after its
	// next scheduled poll.
	l.ReportSuccess()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by the success report")
	}
}

func TestStateRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l, err := NewAdaptiveLimiter(Config{Clock: func() time.Time { return now }})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))
	l.ReportRateLimited()
	l.ReportRateLimited()

	state := l.State()
	require.Equal(t, 5, state.EffectiveMax)
	require.Equal(t, 2, state.Consecutive429)
	require.NotNil(t, state.BackoffUntil)
	require.Equal(t, 1, state.DayCount)
	require.Equal(t, "2026-03-14", state.Day)

	restored, err := NewAdaptiveLimiter(Config{Clock: func() time.Time { return now }})
	require.NoError(t, err)
	restored.LoadState(state)

	require.Equal(t, 5, restored.EffectiveMax())
	require.True(t, restored.InBackoff())
	require.Equal(t, 1, restored.TodayCount())
}

func TestLoadStateClampsCeiling(t *testing.T) {
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 6, MinRequests: 4, Window: time.Minute})
	require.NoError(t, err)

	l.LoadState(coreState(9))
	require.Equal(t, 6, l.EffectiveMax())

	l.LoadState(coreState(1))
	require.Equal(t, 4, l.EffectiveMax())
}

func TestStatusSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l, err := NewAdaptiveLimiter(Config{MaxRequests: 4, MinRequests: 2, Window: 30 * time.Second, Clock: func() time.Time { return now }})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))
	l.ReportRateLimited()

	status := l.Status()
	require.Equal(t, 2, status.EffectiveMax)
	require.Equal(t, 4, status.ConfiguredMax)
	require.Equal(t, 2, status.ConfiguredMin)
	require.Equal(t, 30.0, status.WindowSeconds)
	require.Equal(t, 1, status.WindowOccupied)
	require.True(t, status.InBackoff)
	require.Equal(t, 1, status.Consecutive429)
	require.Equal(t, 1, status.TodayCount)

	// Entries fall out of the snapshot once the window slides past them.
	now = now.Add(31 * time.Second)
	require.Equal(t, 0, l.Status().WindowOccupied)
}
