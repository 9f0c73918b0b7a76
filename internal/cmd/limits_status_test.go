package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacelens/pacelens/internal/core"
	"github.com/pacelens/pacelens/internal/core/engine"
	"github.com/pacelens/pacelens/internal/output"
)

func TestConfiguredStatusesCoversAllEndpoints(t *testing.T) {
	manager := engine.NewManager(map[string]engine.Config{
		"api.custom.dev": {MaxRequests: 6, MinRequests: 3, Window: 30 * time.Second},
	})

	statuses, err := configuredStatuses(manager)
	require.NoError(t, err)
	require.Len(t, statuses, len(manager.Limits))

	endpoints := make([]string, len(statuses))
	for i, s := range statuses {
		endpoints[i] = s.Endpoint
	}
	assert.Contains(t, endpoints, "api.custom.dev")
	assert.Contains(t, endpoints, "api.openai.com")
	assert.IsIncreasing(t, endpoints)
}

func TestConfiguredStatusesReflectReports(t *testing.T) {
	manager := engine.NewManager(nil)
	require.NoError(t, manager.Report("api.openai.com", core.OutcomeRateLimited))

	statuses, err := configuredStatuses(manager)
	require.NoError(t, err)

	var found core.LimiterStatus
	for _, s := range statuses {
		if s.Endpoint == "api.openai.com" {
			found = s
		}
	}
	assert.Equal(t, 7, found.EffectiveMax)
	assert.True(t, found.InBackoff)
}

func TestConfiguredStatusesRenderInEveryFormat(t *testing.T) {
	manager := engine.NewManager(nil)
	statuses, err := configuredStatuses(manager)
	require.NoError(t, err)

	for _, format := range []output.Format{output.FormatTable, output.FormatJSON, output.FormatMarkdown} {
		rendered, err := output.NewFormatter(format).FormatStatuses(statuses)
		require.NoError(t, err, format)
		assert.Contains(t, rendered, "api.openai.com", format)
	}
}
