package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pacelens/pacelens/internal/core"
)

// Manager owns one AdaptiveLimiter per remote endpoint, creating limiters on
// first use from configured per-endpoint limits.
type Manager struct {
	Limits map[string]Config
	Clock  func() time.Time

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// StateStore persists limiter state between runs.
type StateStore interface {
	GetLimiterState(ctx context.Context, endpoint string) (*core.LimiterState, error)
	PutLimiterState(ctx context.Context, endpoint string, state core.LimiterState) error
}

// DefaultLimits provides conservative defaults per endpoint.
var DefaultLimits = map[string]Config{
	"generativelanguage.googleapis.com": {MaxRequests: 9, MinRequests: 3, Window: time.Minute},
	"api.openai.com":                    {MaxRequests: 9, MinRequests: 3, Window: time.Minute},
	"api.x.ai":                          {MaxRequests: 9, MinRequests: 3, Window: time.Minute},
}

// NewManager returns a manager using the supplied per-endpoint limits on top
// of DefaultLimits.
func NewManager(limits map[string]Config) *Manager {
	merged := make(map[string]Config, len(DefaultLimits)+len(limits))
	for endpoint, cfg := range DefaultLimits {
		merged[endpoint] = cfg
	}
	for endpoint, cfg := range limits {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			continue
		}
		merged[endpoint] = cfg
	}

	return &Manager{
		Limits:   merged,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// Limiter returns the limiter for an endpoint, creating it on first use.
// Unknown endpoints get the package defaults.
func (m *Manager) Limiter(endpoint string) (*AdaptiveLimiter, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.limiters[endpoint]; ok {
		return l, nil
	}

	cfg, ok := m.Limits[endpoint]
	if !ok {
		cfg = Config{}
	}
	cfg.Clock = m.Clock

	l, err := NewAdaptiveLimiter(cfg)
	if err != nil {
		return nil, fmt.Errorf("limiter for %s: %w", endpoint, err)
	}
	m.limiters[endpoint] = l
	return l, nil
}

// Report forwards an outcome report to the endpoint's limiter.
func (m *Manager) Report(endpoint string, outcome core.Outcome) error {
	l, err := m.Limiter(endpoint)
	if err != nil {
		return err
	}

	switch outcome {
	case core.OutcomeSuccess:
		l.ReportSuccess()
	case core.OutcomeRateLimited:
		l.ReportRateLimited()
	default:
		return fmt.Errorf("unknown outcome: %q", outcome)
	}
	return nil
}

// Statuses returns a snapshot per instantiated limiter, ordered by endpoint.
func (m *Manager) Statuses() []core.LimiterStatus {
	m.mu.Lock()
	endpoints := make([]string, 0, len(m.limiters))
	for endpoint := range m.limiters {
		endpoints = append(endpoints, endpoint)
	}
	limiters := make([]*AdaptiveLimiter, 0, len(endpoints))
	sort.Strings(endpoints)
	for _, endpoint := range endpoints {
		limiters = append(limiters, m.limiters[endpoint])
	}
	m.mu.Unlock()

	statuses := make([]core.LimiterStatus, 0, len(limiters))
	for i, l := range limiters {
		status := l.Status()
		status.Endpoint = endpoints[i]
		statuses = append(statuses, status)
	}
	return statuses
}

// Status returns the snapshot for a single endpoint, or false if no limiter
// has been instantiated for it.
func (m *Manager) Status(endpoint string) (core.LimiterStatus, bool) {
	m.mu.Lock()
	l, ok := m.limiters[strings.TrimSpace(endpoint)]
	m.mu.Unlock()
	if !ok {
		return core.LimiterStatus{}, false
	}

	status := l.Status()
	status.Endpoint = strings.TrimSpace(endpoint)
	return status, true
}

// Hydrate loads persisted limiter state for every configured endpoint.
// Missing rows are not an error; the limiter simply starts fresh.
func (m *Manager) Hydrate(ctx context.Context, store StateStore) error {
	if store == nil {
		return nil
	}

	for endpoint := range m.Limits {
		state, err := store.GetLimiterState(ctx, endpoint)
		if err != nil {
			return fmt.Errorf("hydrate %s: %w", endpoint, err)
		}
		if state == nil {
			continue
		}
		l, err := m.Limiter(endpoint)
		if err != nil {
			return err
		}
		l.LoadState(*state)
	}
	return nil
}

// Flush persists the current state of every instantiated limiter.
func (m *Manager) Flush(ctx context.Context, store StateStore) error {
	if store == nil {
		return nil
	}

	m.mu.Lock()
	limiters := make(map[string]*AdaptiveLimiter, len(m.limiters))
	for endpoint, l := range m.limiters {
		limiters[endpoint] = l
	}
	m.mu.Unlock()

	for endpoint, l := range limiters {
		if err := store.PutLimiterState(ctx, endpoint, l.State()); err != nil {
			return fmt.Errorf("flush %s: %w", endpoint, err)
		}
	}
	return nil
}
