// Package mcp implements the Model Context Protocol engine: the static
// method registry, capability negotiation, and routing of tools/* and
// resources/* calls into the query layer.
//
// Supported methods: initialize, ping, tools/list, tools/call,
// resources/list, resources/read. Anything else resolves to a JSON-RPC
// method-not-found error.
package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/metrics"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/query"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/rpc"

	"log/slog"
)

// SupportedProtocolVersions lists the protocol revisions this server
// speaks, preferred first. The first entry is the negotiation fallback.
var SupportedProtocolVersions = []string{"2024-11-05"}

type methodHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Server is the MCP dispatch engine. It is immutable after construction
// and safe for concurrent use.
type Server struct {
	name    string
	version string
	queries *query.Service
	logger  *slog.Logger
	monitor *metrics.Monitor
	methods map[string]methodHandler
}

// NewServer builds the engine with its static method table.
func NewServer(name, version string, queries *query.Service, logger *slog.Logger, monitor *metrics.Monitor) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if monitor == nil {
		monitor = metrics.NewMonitor()
	}

	s := &Server{
		name:    name,
		version: version,
		queries: queries,
		logger:  logger,
		monitor: monitor,
	}
	s.methods = map[string]methodHandler{
		"initialize":     s.handleInitialize,
		"ping":           s.handlePing,
		"tools/list":     s.handleToolsList,
		"tools/call":     s.handleToolsCall,
		"resources/list": s.handleResourcesList,
		"resources/read": s.handleResourcesRead,
	}
	return s
}

// Dispatch implements rpc.Dispatcher. Every handled method emits one audit
// record with the method name, redacted parameters, and outcome.
func (s *Server) Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	handler, ok := s.methods[method]
	if !ok {
		return nil, rpc.NewError(rpc.CodeMethodNotFound, "Method not found")
	}

	start := time.Now()
	result, err := handler(ctx, params)
	duration := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		err = apperr.ToRPC(err)
	}
	s.monitor.ObserveMethod(method, duration, err == nil)
	s.logger.InfoContext(ctx, "mcp action audited",
		"method", method,
		"params", RedactParams(params),
		"outcome", outcome,
		"duration_ms", duration.Milliseconds(),
	)

	if err != nil {
		return nil, err
	}
	return result, nil
}

type initializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ClientInfo      json.RawMessage `json:"clientInfo"`
	Capabilities    json.RawMessage `json:"capabilities"`
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "Invalid params")
	}
	var decoded initializeParams
	if err := json.Unmarshal(params, &decoded); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "Invalid params")
	}
	if decoded.ProtocolVersion == "" || len(decoded.ClientInfo) == 0 || len(decoded.Capabilities) == 0 {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "Invalid params")
	}

	return map[string]interface{}{
		"protocolVersion": negotiateProtocolVersion(decoded.ProtocolVersion),
		"serverInfo": map[string]interface{}{
			"name":    s.name,
			"version": s.version,
		},
		// Capability flags mirror the implemented feature set exactly: no
		// change notifications, no subscriptions, no prompts.
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{
				"listChanged": false,
			},
			"resources": map[string]interface{}{
				"subscribe":   false,
				"listChanged": false,
			},
		},
	}, nil
}

// negotiateProtocolVersion prefers an exact match with the client offer
// and falls back to the server default otherwise.
func negotiateProtocolVersion(offered string) string {
	for _, supported := range SupportedProtocolVersions {
		if offered == supported {
			return supported
		}
	}
	return SupportedProtocolVersions[0]
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return map[string]interface{}{}, nil
}
