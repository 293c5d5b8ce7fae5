// Package server exposes the enforcement side over HTTP: ingestion
// endpoints for the extension and the traffic inspection point, the
// operator command API, and the WebSocket subscriber channel.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecovive/leakwatch/internal/audit"
	"github.com/ecovive/leakwatch/internal/blocklist"
	"github.com/ecovive/leakwatch/internal/clipstore"
	"github.com/ecovive/leakwatch/internal/correlate"
	"github.com/ecovive/leakwatch/internal/gate"
	"github.com/ecovive/leakwatch/internal/hub"
)

// Config holds server configuration.
type Config struct {
	Port          int
	BlocklistPath string
	AuditLogPath  string
	Window        time.Duration
}

// Server wires the event store, blocklist, correlation engine, gate, and
// broadcast hub behind the HTTP surface. Inbound requests and operator
// commands are processed to completion one at a time; only hub delivery to
// individual subscribers runs concurrently.
type Server struct {
	cfg       Config
	blocklist *blocklist.Blocklist
	clipboard *clipstore.Store
	gate      *gate.Gate
	hub       *hub.Hub
	auditLog  *audit.Log
	registry  *prometheus.Registry

	seq sync.Mutex // the single logical sequencer
	srv *http.Server
	now func() time.Time
}

// New creates a Server, loading the blocklist seed file and opening the
// decision log when configured.
func New(cfg Config) (*Server, error) {
	bl, err := blocklist.Load(cfg.BlocklistPath)
	if err != nil {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("open decision log: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	store := clipstore.New(cfg.Window)
	h := hub.New()

	s := &Server{
		cfg:       cfg,
		blocklist: bl,
		clipboard: store,
		gate:      gate.New(bl, correlate.New(store), h, auditLog, gate.NewMetrics(registry)),
		hub:       h,
		auditLog:  auditLog,
		registry:  registry,
		now:       time.Now,
	}

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.Router(),
	}
	return s, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/extension-event", s.handleExtensionEvent)
	r.Post("/proxy-log", s.handleProxyLog)
	r.Post("/action", s.handleAction)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// Start begins listening. Blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// ReloadBlocklist re-reads the seed file and swaps the enforcement set.
// Called by the file watcher on seed changes.
func (s *Server) ReloadBlocklist() error {
	if s.cfg.BlocklistPath == "" {
		return nil
	}
	fresh, err := blocklist.Load(s.cfg.BlocklistPath)
	if err != nil {
		return fmt.Errorf("reload blocklist: %w", err)
	}

	s.seq.Lock()
	defer s.seq.Unlock()
	s.blocklist.Replace(fresh.Snapshot())
	return nil
}

// Close disconnects subscribers and closes the decision log.
func (s *Server) Close() error {
	s.hub.Close()
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}
