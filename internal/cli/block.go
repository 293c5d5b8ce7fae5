package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecovive/leakwatch/internal/blocklist"
	"github.com/ecovive/leakwatch/internal/client"
	"github.com/ecovive/leakwatch/internal/model"
	"github.com/ecovive/leakwatch/internal/state"
)

var (
	blockServer   string
	blockStateDir string
)

func init() {
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
	for _, c := range []*cobra.Command{blockCmd, unblockCmd} {
		c.Flags().StringVar(&blockServer, "server", "http://localhost:8080", "Server base URL")
		c.Flags().StringVar(&blockStateDir, "state-dir", state.DefaultDir(), "Directory for persisted watcher state")
	}
}

var blockCmd = &cobra.Command{
	Use:   "block <domain>",
	Short: "Block a destination domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBlockAction(model.ActionBlockDomain, args[0])
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <domain>",
	Short: "Remove a domain block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBlockAction(model.ActionUnblockDomain, args[0])
	},
}

func runBlockAction(action, domain string) error {
	host := blocklist.BareHost(domain)
	if host == "" {
		return fmt.Errorf("empty domain")
	}

	c := client.New(blockServer)
	ack, err := c.Do(context.Background(), model.ActionRequest{Action: action, Domain: host})
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("server refused %s for %q", action, host)
	}

	// Keep the local watcher state in step with the server.
	if store, err := state.New(blockStateDir); err == nil {
		if set, err := store.LoadBlockedDomains(); err == nil {
			if action == model.ActionBlockDomain {
				set[host] = true
			} else {
				delete(set, host)
			}
			if err := store.SaveBlockedDomains(set); err != nil {
				fmt.Fprintf(os.Stderr, "warning: local state not updated: %v\n", err)
			}
		}
	}

	fmt.Printf("%s: %s\n", action, host)
	return nil
}
