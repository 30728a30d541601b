// Package httpserver wires the monitoring gateway onto HTTP: the
// token-protected POST /mcp JSON-RPC endpoint plus the public health and
// discovery endpoints.
//
// POST / deliberately does not alias /mcp; unrouted paths fall through to
// a JSON 404.
package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/auth"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/config"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/logging"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/rpc"
)

// Server serves the gateway HTTP surface.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	gate       *auth.Gate
	dispatcher rpc.Dispatcher
	name       string
	version    string
}

// New creates the HTTP server wiring.
func New(cfg *config.Config, logger *slog.Logger, gate *auth.Gate, dispatcher rpc.Dispatcher, name, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		logger:     logger,
		gate:       gate,
		dispatcher: dispatcher,
		name:       name,
		version:    version,
	}
}

// Handler builds the route table wrapped in the request-summary
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /.well-known/mcp", s.handleDiscovery)
	mux.HandleFunc("POST /mcp", s.handleMCP)
	mux.HandleFunc("/", s.handleNotFound)

	return s.requestLogging(mux)
}

// Run serves until ctx is canceled, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Server.BindAddress(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":         s.name,
		"version":      s.version,
		"mcp_endpoint": "/mcp",
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, apperr.NotFound("not_found", "unknown endpoint"))
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if _, appErr := s.gate.Authenticate(r); appErr != nil {
		s.writeError(w, appErr)
		return
	}

	ctx := logging.WithCorrelationID(r.Context(), newCorrelationID())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		s.writeError(w, apperr.Validation("invalid_body", "failed to read request body"))
		return
	}

	outcome := rpc.Handle(ctx, body, s.dispatcher)
	if outcome.Empty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if outcome.Batch {
		writeJSON(w, http.StatusOK, outcome.Responses)
		return
	}
	writeJSON(w, http.StatusOK, outcome.Responses[0])
}

func (s *Server) writeError(w http.ResponseWriter, appErr *apperr.Error) {
	writeJSON(w, appErr.HTTPStatus(), appErr.HTTPBody())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newCorrelationID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf[:])
}
