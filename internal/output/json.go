package output

import (
	"encoding/json"

	"github.com/pacelens/pacelens/internal/core"
)

// JSONFormatter renders statuses as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatStatuses renders limiter statuses as a JSON array.
func (f *JSONFormatter) FormatStatuses(statuses []core.LimiterStatus) (string, error) {
	if statuses == nil {
		statuses = []core.LimiterStatus{}
	}

	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(statuses, "", "  ")
	} else {
		data, err = json.Marshal(statuses)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
