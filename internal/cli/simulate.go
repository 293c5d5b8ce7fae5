package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecovive/leakwatch/internal/client"
)

var (
	simServer  string
	simTarget  string
	simPage    string
	simSnippet string
	simDelay   time.Duration
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simServer, "server", "http://localhost:8080", "Server base URL")
	simulateCmd.Flags().StringVar(&simTarget, "target", "exfil.example", "Destination host for the synthetic request")
	simulateCmd.Flags().StringVar(&simPage, "page", "mail.example", "Page the synthetic copy happens on")
	simulateCmd.Flags().StringVar(&simSnippet, "snippet", "account 4411-2210", "Clipboard text to report")
	simulateCmd.Flags().DurationVar(&simDelay, "delay", time.Second, "Gap between the copy and the request")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Send a synthetic copy-then-upload sequence to a running server",
	Long: "Reports a clipboard copy and, after a short delay, an outbound\n" +
		"request to the target host. With the delay inside the correlation\n" +
		"window the request comes back flagged; watchers see the alert.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := client.New(simServer)

	payload := map[string]string{
		"type":    "copy",
		"snippet": simSnippet,
		"page":    simPage,
	}
	if err := c.Report(ctx, payload); err != nil {
		return err
	}
	fmt.Printf("reported copy on %s\n", simPage)

	time.Sleep(simDelay)

	admitted, reason, err := c.Traffic(ctx, simTarget, "simulated upload body")
	if err != nil {
		return err
	}
	if admitted {
		fmt.Printf("request to %s admitted\n", simTarget)
	} else {
		fmt.Printf("request to %s rejected: %s\n", simTarget, reason)
	}
	return nil
}
