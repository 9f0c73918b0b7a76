package output

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pacelens/pacelens/internal/core"
)

// TableFormatter renders statuses as an ASCII table.
type TableFormatter struct{}

// FormatStatuses renders limiter statuses as a table.
func (f *TableFormatter) FormatStatuses(statuses []core.LimiterStatus) (string, error) {
	now := time.Now()

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Endpoint", "Ceiling", "Window", "Backoff", "429 Run", "Today", "Pending"})

	for _, s := range statuses {
		t.AppendRow(table.Row{
			s.Endpoint,
			ceilingLabel(s),
			windowLabel(s),
			backoffLabel(s, now),
			s.Consecutive429,
			s.TodayCount,
			s.Pending,
		})
	}

	return t.Render(), nil
}
