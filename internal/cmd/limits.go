package cmd

import "github.com/spf13/cobra"

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage persisted limiter state",
}

func init() {
	limitsCmd.AddCommand(limitsListCmd)
	limitsCmd.AddCommand(limitsStatusCmd)
	limitsCmd.AddCommand(limitsResetCmd)
	rootCmd.AddCommand(limitsCmd)
}
