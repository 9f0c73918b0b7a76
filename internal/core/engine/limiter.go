package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pacelens/pacelens/internal/core"
)

// Limiter configuration defaults, chosen conservatively for AI provider APIs.
const (
	DefaultMaxRequests = 9
	DefaultMinRequests = 3
	DefaultWindow      = time.Minute
)

// maxBackoffShift bounds the exponential backoff so the shift cannot overflow.
const maxBackoffShift = 20

// Config describes one adaptive limiter.
type Config struct {
	// MaxRequests is the nominal per-window ceiling.
	MaxRequests int
	// MinRequests is the floor the adaptive ceiling may never drop below.
	MinRequests int
	// Window is the trailing interval over which admissions are counted.
	Window time.Duration
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxRequests == 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.MinRequests == 0 {
		c.MinRequests = DefaultMinRequests
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Validate reports whether the configuration would be accepted by
// NewAdaptiveLimiter once zero fields take the package defaults. It lets
// callers reject bad limits at startup instead of on first use.
func (c Config) Validate() error {
	return c.withDefaults().validate()
}

func (c Config) validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", c.MaxRequests)
	}
	if c.MinRequests <= 0 {
		return fmt.Errorf("min requests must be positive, got %d", c.MinRequests)
	}
	if c.MinRequests > c.MaxRequests {
		return fmt.Errorf("min requests %d exceeds max requests %d", c.MinRequests, c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	return nil
}

// AdaptiveLimiter admits calls to one remote endpoint under a sliding window,
// shrinking its ceiling when the endpoint reports throttling and growing it
// back on success. It is safe for concurrent use; waiters are admitted in
// arrival order.
//
// The limiter never fails an admission: Acquire only delays, and returns an
// error solely when the caller's context is cancelled.
type AdaptiveLimiter struct {
	cfg Config

	mu             sync.Mutex
	timestamps     []time.Time
	effectiveMax   int
	consecutive429 int
	backoffUntil   time.Time
	last429At      time.Time
	dayCount       int
	day            string // UTC calendar day owning dayCount
	waiters        []*waiter
}

// waiter is one suspended Acquire call. wake is buffered so a poke never
// blocks the poker.
type waiter struct {
	wake chan struct{}
}

// NewAdaptiveLimiter validates the configuration and returns a limiter with
// its ceiling at MaxRequests. Zero fields take the package defaults.
func NewAdaptiveLimiter(cfg Config) (*AdaptiveLimiter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("limiter config: %w", err)
	}

	l := &AdaptiveLimiter{
		cfg:          cfg,
		effectiveMax: cfg.MaxRequests,
	}
	return l, nil
}

func (l *AdaptiveLimiter) now() time.Time {
	if l.cfg.Clock != nil {
		return l.cfg.Clock()
	}
	return time.Now()
}

// Acquire blocks until the caller may issue its remote call, then records the
// admission and returns nil. The only error it returns is ctx.Err() when the
// context is cancelled mid-wait; a cancelled wait leaves no trace in the
// window or counters.
func (l *AdaptiveLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()

	// Fast path: nobody queued and a slot free right now.
	if len(l.waiters) == 0 {
		now := l.now()
		l.prune(now)
		if l.delayLocked(now) == 0 {
			l.admit(now)
			l.mu.Unlock()
			return nil
		}
	}

	w := &waiter{wake: make(chan struct{}, 1)}
	l.waiters = append(l.waiters, w)

	for {
		now := l.now()
		l.prune(now)

		atHead := l.waiters[0] == w

		var delay time.Duration
		if atHead {
			delay = l.delayLocked(now)
			if delay == 0 {
				l.admit(now)
				l.dequeue(w)
				l.wakeHead()
				l.mu.Unlock()
				return nil
			}
		}
		l.mu.Unlock()

		// The head sleeps until the earliest instant a slot could free up;
		// everyone behind it sleeps until poked. Reports and dequeues poke
		// the head early, and every wake re-enters the loop from the top so
		// a ceiling shrunk mid-wait is honored.
		var timeout <-chan time.Time
		var timer *time.Timer
		if atHead {
			timer = time.NewTimer(delay)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			l.mu.Lock()
			l.dequeue(w)
			l.wakeHead()
			l.mu.Unlock()
			return ctx.Err()
		case <-timeout:
		case <-w.wake:
			if timer != nil {
				timer.Stop()
			}
		}

		l.mu.Lock()
	}
}

// ReportRateLimited records server-side throttling feedback: the ceiling drops
// by two (floored at MinRequests) and an exponential backoff gate opens.
// Concurrent reports accumulate; each lengthens the backoff.
func (l *AdaptiveLimiter) ReportRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.effectiveMax -= 2
	if l.effectiveMax < l.cfg.MinRequests {
		l.effectiveMax = l.cfg.MinRequests
	}

	l.consecutive429++
	shift := l.consecutive429
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	now := l.now()
	l.last429At = now
	l.backoffUntil = now.Add(time.Duration(1<<shift) * time.Second)
	l.wakeHead()
}

// ReportSuccess records a call that completed without throttling: the ceiling
// recovers by one (capped at MaxRequests) and the consecutive-429 run resets.
// An in-flight backoff window keeps running until it elapses on its own.
func (l *AdaptiveLimiter) ReportSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.effectiveMax++
	if l.effectiveMax > l.cfg.MaxRequests {
		l.effectiveMax = l.cfg.MaxRequests
	}
	l.consecutive429 = 0
	l.wakeHead()
}

// EffectiveMax returns the ceiling currently in force.
func (l *AdaptiveLimiter) EffectiveMax() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.effectiveMax
}

// InBackoff reports whether a rejection-imposed delay is active.
func (l *AdaptiveLimiter) InBackoff() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoffUntil.After(l.now())
}

// TodayCount returns the number of admissions granted during the current UTC
// calendar day. Reading does not mutate the counter.
func (l *AdaptiveLimiter) TodayCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.day != utcDay(l.now()) {
		return 0
	}
	return l.dayCount
}

// Pending returns the number of callers currently suspended in Acquire.
func (l *AdaptiveLimiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

// Status returns a consistent snapshot of the limiter.
func (l *AdaptiveLimiter) Status() core.LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	status := core.LimiterStatus{
		EffectiveMax:   l.effectiveMax,
		ConfiguredMax:  l.cfg.MaxRequests,
		ConfiguredMin:  l.cfg.MinRequests,
		WindowSeconds:  l.cfg.Window.Seconds(),
		WindowOccupied: len(l.timestamps),
		InBackoff:      l.backoffUntil.After(now),
		Consecutive429: l.consecutive429,
		Pending:        len(l.waiters),
	}
	if !l.backoffUntil.IsZero() {
		until := l.backoffUntil
		status.BackoffUntil = &until
	}
	if l.day == utcDay(now) {
		status.TodayCount = l.dayCount
	}
	return status
}

// State exports the persistable part of the limiter for the store.
func (l *AdaptiveLimiter) State() core.LimiterState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := core.LimiterState{
		EffectiveMax:   l.effectiveMax,
		Consecutive429: l.consecutive429,
		DayCount:       l.dayCount,
		Day:            l.day,
	}
	if !l.backoffUntil.IsZero() {
		until := l.backoffUntil
		state.BackoffUntil = &until
	}
	if !l.last429At.IsZero() {
		at := l.last429At
		state.Last429At = &at
	}
	return state
}

// LoadState restores previously persisted adaptive state. The ceiling is
// clamped into the configured bounds in case the configuration changed
// between runs; a stale daily counter is dropped.
func (l *AdaptiveLimiter) LoadState(state core.LimiterState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.effectiveMax = state.EffectiveMax
	if l.effectiveMax > l.cfg.MaxRequests {
		l.effectiveMax = l.cfg.MaxRequests
	}
	if l.effectiveMax < l.cfg.MinRequests {
		l.effectiveMax = l.cfg.MinRequests
	}

	l.consecutive429 = state.Consecutive429
	if state.BackoffUntil != nil {
		l.backoffUntil = *state.BackoffUntil
	} else {
		l.backoffUntil = time.Time{}
	}
	if state.Last429At != nil {
		l.last429At = *state.Last429At
	} else {
		l.last429At = time.Time{}
	}

	if state.Day == utcDay(l.now()) {
		l.day = state.Day
		l.dayCount = state.DayCount
	} else {
		l.day = ""
		l.dayCount = 0
	}
	l.wakeHead()
}

// delayLocked returns how long the head waiter must sleep before the next
// re-check, or zero when admission may proceed now. Backoff takes precedence
// over window occupancy. Callers hold the lock and have pruned the window.
func (l *AdaptiveLimiter) delayLocked(now time.Time) time.Duration {
	if l.backoffUntil.After(now) {
		return l.backoffUntil.Sub(now)
	}
	if len(l.timestamps) < l.effectiveMax {
		return 0
	}
	return l.timestamps[0].Add(l.cfg.Window).Sub(now)
}

// admit records an admission at now. Callers hold the lock.
func (l *AdaptiveLimiter) admit(now time.Time) {
	l.timestamps = append(l.timestamps, now)

	day := utcDay(now)
	if l.day != day {
		l.day = day
		l.dayCount = 0
	}
	l.dayCount++
}

// prune drops window entries older than the trailing window. Callers hold
// the lock.
func (l *AdaptiveLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	idx := 0
	for idx < len(l.timestamps) && !l.timestamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[idx:]...)
	}
}

// dequeue removes w from the waiter queue, wherever it sits. Callers hold
// the lock.
func (l *AdaptiveLimiter) dequeue(w *waiter) {
	for i, queued := range l.waiters {
		if queued == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

// wakeHead pokes the front waiter so it re-evaluates immediately. Callers
// hold the lock.
func (l *AdaptiveLimiter) wakeHead() {
	if len(l.waiters) == 0 {
		return
	}
	select {
	case l.waiters[0].wake <- struct{}{}:
	default:
	}
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
