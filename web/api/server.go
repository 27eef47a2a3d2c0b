package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/node"
	"github.com/hochfrequenz/claude-code-node/internal/runstore"
)

// Runner executes one batch of records
type Runner interface {
	Execute(ctx context.Context, host node.Host) ([]domain.OutputItem, error)
}

// RunnerFactory builds a runner reporting finished records to observer
type RunnerFactory func(observer node.Observer) Runner

// Settings is the host configuration applied to every request
type Settings struct {
	Claude         *credentials.ClaudeCodeAPI
	MCPServers     map[string]*credentials.MCPServer
	ContinueOnFail bool
}

// Server is the HTTP API server
type Server struct {
	newRunner RunnerFactory
	store     *runstore.Store
	settings  Settings
	logger    *slog.Logger
	addr      string
	mux       *http.ServeMux
	sseHub    *SSEHub
}

// NewServer creates a new API server. store may be nil, which disables history.
func NewServer(newRunner RunnerFactory, store *runstore.Store, settings Settings, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		newRunner: newRunner,
		store:     store,
		settings:  settings,
		logger:    logger,
		addr:      addr,
		mux:       http.NewServeMux(),
		sseHub:    NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/execute", s.executeHandler())
	s.mux.HandleFunc("/api/node", s.nodeHandler())
	s.mux.HandleFunc("/api/credentials", s.credentialsHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.sseHub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeStatusJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeStatusJSON(w, code, map[string]string{"error": message})
}
