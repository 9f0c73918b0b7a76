// Package output renders limiter status snapshots for the CLI in table,
// JSON, or markdown form.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/pacelens/pacelens/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders limiter statuses.
type Formatter interface {
	FormatStatuses(statuses []core.LimiterStatus) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// ceilingLabel shows the adaptive ceiling against its configured bounds.
func ceilingLabel(s core.LimiterStatus) string {
	return fmt.Sprintf("%d of %d (min %d)", s.EffectiveMax, s.ConfiguredMax, s.ConfiguredMin)
}

// windowLabel shows current occupancy against the ceiling and window length.
func windowLabel(s core.LimiterStatus) string {
	return fmt.Sprintf("%d/%d in %s", s.WindowOccupied, s.EffectiveMax, formatWindow(s.WindowSeconds))
}

// backoffLabel shows the remaining backoff, or "-" when none is active.
func backoffLabel(s core.LimiterStatus, now time.Time) string {
	if !s.InBackoff || s.BackoffUntil == nil {
		return "-"
	}
	remaining := s.BackoffUntil.Sub(now).Round(time.Second)
	if remaining <= 0 {
		return "-"
	}
	return remaining.String()
}

func formatWindow(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	return d.String()
}
