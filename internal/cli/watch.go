package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ecovive/leakwatch/internal/alerts"
	"github.com/ecovive/leakwatch/internal/client"
	"github.com/ecovive/leakwatch/internal/model"
	"github.com/ecovive/leakwatch/internal/risk"
	"github.com/ecovive/leakwatch/internal/state"
)

var (
	watchServer   string
	watchStateDir string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:8080", "Server base URL")
	watchCmd.Flags().StringVar(&watchStateDir, "state-dir", state.DefaultDir(), "Directory for persisted watcher state")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream events and manage alerts interactively",
	Long: "Connects to a running server, streams its broadcasts, and raises\n" +
		"an alert for every correlated flow. Alerts are resolved from the\n" +
		"prompt: block the destination, block the source extension, or allow.",
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	store, err := state.New(watchStateDir)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}

	c := client.New(watchServer)
	mgr, err := alerts.New(store, c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- c.Stream(ctx, func(msg model.Message) {
			mgr.HandleMessage(msg)
			printEvent(mgr, msg)
		})
	}()

	fmt.Fprintf(os.Stderr, "watching %s  (type 'help' for commands)\n", watchServer)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case err := <-streamErr:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := dispatch(ctx, mgr, line); quit {
				return nil
			}
		}
	}
}

func printEvent(mgr *alerts.Manager, msg model.Message) {
	switch msg.Type {
	case model.MsgProxyEvent:
		if msg.Correlation == nil || msg.Network == nil {
			return
		}
		active := mgr.Active()
		if len(active) == 0 {
			return
		}
		a := active[0]
		fmt.Printf("ALERT [%s] %s  %s  confidence %.2f  (%s)\n",
			shortID(a.ID), a.Risk, a.Event.Host, a.Correlation.Confidence, a.Correlation.Clipboard.Page)
	case model.MsgBlockedAttempt:
		if msg.Network != nil {
			fmt.Printf("BLOCKED %s\n", msg.Network.Host)
		}
	case model.MsgBlockedDomain:
		fmt.Printf("DOMAIN BLOCKED %s\n", msg.Domain)
	}
}

func dispatch(ctx context.Context, mgr *alerts.Manager, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "quit", "exit", "q":
		return true

	case "help":
		fmt.Print(watchHelp)

	case "list":
		level := risk.Risk("")
		query := ""
		if arg == "low" || arg == "med" || arg == "high" {
			level = risk.Risk(arg)
		} else {
			query = arg
		}
		for _, a := range mgr.Filter(level, query) {
			fmt.Printf("  [%s] %-4s %-30s %.2f  %s\n",
				shortID(a.ID), a.Risk, a.Event.Host, a.Correlation.Confidence,
				a.CreatedAt.Format("15:04:05"))
		}

	case "block":
		resolve(mgr, arg, func(id string) error { return mgr.ResolveBlockDomain(ctx, id) })

	case "ext":
		resolve(mgr, arg, func(id string) error { return mgr.ResolveBlockExtension(ctx, id) })

	case "allow":
		resolve(mgr, arg, func(id string) error { mgr.ResolveAllow(id); return nil })

	case "blocked":
		for _, d := range mgr.BlockedDomains() {
			fmt.Printf("  %s\n", d)
		}

	case "attempts":
		for _, ev := range mgr.BlockedAttempts() {
			fmt.Printf("  %s  %s\n", ev.Timestamp.Format("15:04:05"), ev.Host)
		}

	case "stats":
		st := mgr.Stats()
		fmt.Printf("  events %d  correlated %d  blocked %d  active %d  resolved %d\n",
			st.TotalEvents, st.Correlated, st.BlockedAttempts, st.ActiveAlerts, st.ResolvedAlerts)
		for _, d := range st.TopDestinations {
			fmt.Printf("  %4d  %s\n", d.Hits, d.Host)
		}
		for day, n := range st.WeeklyCounts {
			fmt.Printf("  %s  %d alerts\n", day, n)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (try 'help')\n", fields[0])
	}
	return false
}

const watchHelp = `  list [risk|query]   active alerts, optionally filtered
  block <id>          resolve: block the destination domain
  ext <id>            resolve: block the source extension
  allow <id>          resolve: allow the traffic
  blocked             locally known blocked domains
  attempts            recent rejected requests
  stats               session summary
  quit                exit
`

// resolve expands a short id prefix to a full alert id and applies fn.
func resolve(mgr *alerts.Manager, prefix string, fn func(id string) error) {
	if prefix == "" {
		fmt.Fprintln(os.Stderr, "alert id required")
		return
	}
	var match string
	for _, a := range mgr.Active() {
		if strings.HasPrefix(a.ID, prefix) {
			if match != "" {
				fmt.Fprintf(os.Stderr, "ambiguous id %q\n", prefix)
				return
			}
			match = a.ID
		}
	}
	if match == "" {
		fmt.Fprintf(os.Stderr, "no active alert matching %q\n", prefix)
		return
	}
	if err := fn(match); err != nil {
		fmt.Fprintf(os.Stderr, "resolve failed: %v\n", err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
