package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/auth"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/config"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/httpserver"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/logging"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/mcp"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/metrics"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/query"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/systemd"
)

var (
	bindAddr string
	bindPort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitoring gateway",
	Long: `Start the monitoring gateway which provides:
- POST /mcp            JSON-RPC endpoint (bearer-token protected)
- GET  /health         public liveness check
- GET  /.well-known/mcp public discovery document

Configuration comes from the environment (MCP_API_TOKEN, BIND_ADDR,
BIND_PORT, MCP_ALLOWED_CIDR, MCP_TRUSTED_PROXIES) or an optional YAML
file.`,
	Example: `  # Start with defaults (127.0.0.1:8080)
  MCP_API_TOKEN=$(cat /etc/mcp/token) systemd-monitoring-mcp serve

  # Bind elsewhere and restrict callers
  MCP_ALLOWED_CIDR=10.0.0.0/8 systemd-monitoring-mcp serve --bind-addr 0.0.0.0 --bind-port 9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&bindAddr, "bind-addr", "", "listen address (overrides config)")
	serveCmd.Flags().IntVar(&bindPort, "bind-port", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if verbose {
		cfg.Logging.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if bindAddr != "" {
		cfg.Server.BindAddr = bindAddr
	}
	if bindPort != 0 {
		cfg.Server.BindPort = bindPort
	}

	logger, err := logging.NewServerLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	adapterLogger, err := logging.NewAdapterLogger(cfg.Logging, "systemd")
	if err != nil {
		return fmt.Errorf("error creating adapter logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := systemd.Probe(probeCtx); err != nil {
		logger.Warn("systemd availability probe failed; queries may fail", "error", err)
	}
	cancel()

	monitor := metrics.NewMonitor()
	gate, err := auth.NewGate(&cfg.Auth, logger.Logger, monitor)
	if err != nil {
		return fmt.Errorf("error creating access gate: %w", err)
	}

	queries := query.NewService(
		systemd.NewUnitLister(adapterLogger.Logger),
		systemd.NewJournalReader(adapterLogger.Logger),
		cfg.Query.AdapterTimeout,
		adapterLogger.Logger,
	)
	engine := mcp.NewServer(AppName, AppVersion, queries, logger.Logger, monitor)
	server := httpserver.New(cfg, logger.Logger, gate, engine, AppName, AppVersion)

	logger.Info("server starting",
		"bind_addr", cfg.Server.BindAddr,
		"bind_port", cfg.Server.BindPort,
		"ip_allowlist", cfg.Auth.AllowedNet() != nil,
		"trusted_proxies", len(cfg.Auth.ProxyNets()),
	)

	err = server.Run(ctx)

	monitor.LogSummary(logger.Logger)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
