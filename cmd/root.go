package cmd

import (
	"github.com/spf13/cobra"
)

// AppName and AppVersion identify the server in serverInfo and discovery
// responses. AppVersion is overridable via ldflags.
const AppName = "systemd-monitoring-mcp"

var AppVersion = "1.0.0"

var (
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "systemd-monitoring-mcp",
	Short: "Monitoring gateway exposing systemd status and journald logs over MCP",
	Long: `systemd-monitoring-mcp is a single-host monitoring gateway. It exposes
systemd service-unit status and journald log records through an MCP
(JSON-RPC) endpoint protected by bearer-token authentication and an
optional source-IP allowlist.

All state is read-only: the server never starts, stops, or otherwise
mutates units.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml or /etc/systemd-monitoring-mcp/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
