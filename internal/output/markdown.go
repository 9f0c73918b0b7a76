package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/pacelens/pacelens/internal/core"
)

// MarkdownFormatter renders statuses as a markdown table.
type MarkdownFormatter struct{}

// FormatStatuses renders limiter statuses as Markdown.
func (f *MarkdownFormatter) FormatStatuses(statuses []core.LimiterStatus) (string, error) {
	now := time.Now()

	var sb strings.Builder
	sb.WriteString("## Endpoint limiters\n\n")
	sb.WriteString("| Endpoint | Ceiling | Window | Backoff | 429 Run | Today | Pending |\n")
	sb.WriteString("|----------|---------|--------|---------|---------|-------|--------|\n")

	for _, s := range statuses {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %d | %d |\n",
			escapeMarkdownCell(s.Endpoint),
			escapeMarkdownCell(ceilingLabel(s)),
			escapeMarkdownCell(windowLabel(s)),
			escapeMarkdownCell(backoffLabel(s, now)),
			s.Consecutive429,
			s.TodayCount,
			s.Pending,
		))
	}

	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
