package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecovive/leakwatch/internal/server"
)

var (
	servePort      int
	serveBlocklist string
	serveAuditLog  string
	serveWindow    time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP listen port")
	serveCmd.Flags().StringVar(&serveBlocklist, "blocklist", "", "Path to blocklist seed YAML")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to decision log JSONL file")
	serveCmd.Flags().DurationVar(&serveWindow, "window", 0, "Correlation window (default 5s)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the detection server",
	Long: "Runs the leakwatch server: ingests clipboard and proxy events,\n" +
		"correlates them, enforces the blocklist, and broadcasts events to\n" +
		"connected watchers. Supports hot-reload of the blocklist seed file.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := server.Config{
		Port:          servePort,
		BlocklistPath: serveBlocklist,
		AuditLogPath:  serveAuditLog,
		Window:        serveWindow,
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if serveBlocklist != "" {
		reloader, err := server.NewReloader(srv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		} else {
			go reloader.Run(ctx)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "leakwatch server listening on :%d\n", servePort)
	if serveBlocklist != "" {
		fmt.Fprintf(os.Stderr, "Blocklist: %s (hot-reload enabled)\n", serveBlocklist)
	}
	if serveAuditLog != "" {
		fmt.Fprintf(os.Stderr, "Decision log: %s\n", serveAuditLog)
	}

	return srv.Start(ctx)
}
