package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "leakwatch",
	Short: "Clipboard-to-network exfiltration detector",
	Long: "Correlates browser clipboard activity with outbound HTTP traffic,\n" +
		"raises operator-resolvable alerts for suspicious flows, and enforces\n" +
		"domain and extension blocks at the gate.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
