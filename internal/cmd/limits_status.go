package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pacelens/pacelens/internal/config"
	"github.com/pacelens/pacelens/internal/core"
	"github.com/pacelens/pacelens/internal/core/engine"
	"github.com/pacelens/pacelens/internal/output"
)

var (
	limitsStatusOutput string
	limitsStatusOut    string
	limitsStatusOutDir string
)

var limitsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the adaptive status of every configured endpoint",
	Long: `Status renders a snapshot of every configured endpoint: the adaptive
ceiling, window occupancy, backoff state, and today's request count.
Persisted state from previous runs is loaded before rendering, so the
snapshot reflects where each limiter left off.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(limitsStatusOutput)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		cfg := appConfig
		if cfg == nil {
			cfg = config.Get()
		}

		manager := engine.NewManager(engineLimits(cfg))
		if err := manager.Hydrate(cmd.Context(), db); err != nil {
			return err
		}

		statuses, err := configuredStatuses(manager)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatStatuses(statuses)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(limitsStatusOut)
		outDir := strings.TrimSpace(limitsStatusOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}
		if outDir != "" {
			var err error
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("limits.status.%s", outputExtension(format)))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

// configuredStatuses instantiates a limiter for every configured endpoint so
// the snapshot covers endpoints that have not been hit yet, then returns the
// manager's ordered status list.
func configuredStatuses(m *engine.Manager) ([]core.LimiterStatus, error) {
	for endpoint := range m.Limits {
		if _, err := m.Limiter(endpoint); err != nil {
			return nil, err
		}
	}
	return m.Statuses(), nil
}

func init() {
	limitsStatusCmd.Flags().StringVar(&limitsStatusOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	limitsStatusCmd.Flags().StringVar(&limitsStatusOut, "out", "", "Write output to a file (default stdout)")
	limitsStatusCmd.Flags().StringVar(&limitsStatusOutDir, "out-dir", "", "Write output to a directory")
}
