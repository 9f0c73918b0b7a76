// Package cmd implements the pacelens command line interface.
package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pacelens/pacelens/internal/config"
	"github.com/pacelens/pacelens/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}

	// appConfig is the configuration loaded during initConfig.
	appConfig *config.Config
)

// SetVersionInfo is called by the main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pacelens",
	Short: "Adaptive request pacing for rate limited APIs",
	Long: `pacelens paces outbound requests against rate limited endpoints.

Each endpoint gets an adaptive sliding-window limiter: the ceiling shrinks
when the remote answers 429 and recovers on success, with exponential
backoff between bursts of rejections.

Use the subcommands to perform specific operations.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/pacelens/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig initializes the CLI logger and loads configuration.
func initConfig() {
	observability.InitCLILogger("pacelens", verbose)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load configuration", err)
	}
	appConfig = cfg

	if verbose {
		observability.CLILogger.Debug("Configuration loaded",
			zap.String("store_driver", cfg.Store.Driver),
			zap.Int("limit_overrides", len(cfg.Limits)))
	}
}
