package core

import "time"

// LimiterState captures the adaptive state of one endpoint limiter in a form
// that survives process restarts. Window timestamps are deliberately not
// persisted: a trailing window shorter than typical downtime is stale by the
// time the process comes back.
type LimiterState struct {
	EffectiveMax   int        `json:"effective_max"`
	Consecutive429 int        `json:"consecutive_429"`
	BackoffUntil   *time.Time `json:"backoff_until,omitempty"`
	Last429At      *time.Time `json:"last_429_at,omitempty"`
	DayCount       int        `json:"day_count"`
	Day            string     `json:"day"` // UTC calendar day, YYYY-MM-DD
}

// LimiterStatus is a point-in-time snapshot of a limiter, including the
// transient fields that LimiterState leaves out.
type LimiterStatus struct {
	Endpoint       string     `json:"endpoint"`
	EffectiveMax   int        `json:"effective_max"`
	ConfiguredMax  int        `json:"configured_max"`
	ConfiguredMin  int        `json:"configured_min"`
	WindowSeconds  float64    `json:"window_seconds"`
	WindowOccupied int        `json:"window_occupied"`
	InBackoff      bool       `json:"in_backoff"`
	BackoffUntil   *time.Time `json:"backoff_until,omitempty"`
	Consecutive429 int        `json:"consecutive_429"`
	TodayCount     int        `json:"today_count"`
	Pending        int        `json:"pending"`
}

// Outcome describes how a remote call ended, as reported by the caller.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRateLimited Outcome = "rate_limited"
)
