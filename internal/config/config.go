// Package config provides configuration management for the monitoring
// gateway.
//
// Configuration is loaded in order of precedence (highest to lowest):
// 1. Environment variables (the MCP_*/BIND_* contract below)
// 2. Configuration file (YAML)
// 3. Default values
//
// Environment contract:
//
//	MCP_API_TOKEN        required bearer token, at least 16 characters
//	BIND_ADDR            listen address (default 127.0.0.1)
//	BIND_PORT            listen port (default 8080)
//	MCP_ALLOWED_CIDR     optional source-IP allowlist range
//	MCP_TRUSTED_PROXIES  optional comma-separated proxy IPs/CIDRs whose
//	                     X-Forwarded-For header is honored
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinTokenLength is the minimum accepted MCP_API_TOKEN length. Startup
// fails below it.
const MinTokenLength = 16

// Config represents the complete gateway configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Query   QueryConfig   `mapstructure:"query" yaml:"query"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	BindAddr        string        `mapstructure:"bind_addr" yaml:"bind_addr"`
	BindPort        int           `mapstructure:"bind_port" yaml:"bind_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// AuthConfig contains the access-control gate settings.
type AuthConfig struct {
	APIToken       string   `mapstructure:"api_token" yaml:"api_token"`
	AllowedCIDR    string   `mapstructure:"allowed_cidr" yaml:"allowed_cidr"`
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`

	allowedNet *netip.Prefix
	proxyNets  []netip.Prefix
}

// QueryConfig bounds adapter calls made by the query layer.
type QueryConfig struct {
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout" yaml:"adapter_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`
	Verbose    bool   `mapstructure:"verbose" yaml:"verbose"`
}

// AllowedNet returns the parsed allowlist range, or nil when IP filtering
// is disabled.
func (a *AuthConfig) AllowedNet() *netip.Prefix {
	return a.allowedNet
}

// ProxyNets returns the parsed trusted proxy ranges.
func (a *AuthConfig) ProxyNets() []netip.Prefix {
	return a.proxyNets
}

// BindAddress returns the host:port string the HTTP server listens on.
func (s *ServerConfig) BindAddress() string {
	return fmt.Sprintf("%s:%d", s.BindAddr, s.BindPort)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddr:        "127.0.0.1",
			BindPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Query: QueryConfig{
			AdapterTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "text",
			Verbose: false,
		},
	}
}

// LoadConfig loads configuration from file, environment, and defaults.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// The env names are a fixed external contract, so they are bound
	// explicitly instead of derived from the key paths.
	mustBindEnv(v, "auth.api_token", "MCP_API_TOKEN")
	mustBindEnv(v, "auth.allowed_cidr", "MCP_ALLOWED_CIDR")
	mustBindEnv(v, "auth.trusted_proxies", "MCP_TRUSTED_PROXIES")
	mustBindEnv(v, "server.bind_addr", "BIND_ADDR")
	mustBindEnv(v, "server.bind_port", "BIND_PORT")
	mustBindEnv(v, "logging.level", "MCP_LOG_LEVEL")
	mustBindEnv(v, "logging.format", "MCP_LOG_FORMAT")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/systemd-monitoring-mcp")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if configFile != "" {
				return nil, fmt.Errorf("config file not found: %s", configFile)
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func mustBindEnv(v *viper.Viper, key, env string) {
	if err := v.BindEnv(key, env); err != nil {
		panic(fmt.Sprintf("config: bind %s: %v", env, err))
	}
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("server.bind_addr", defaults.Server.BindAddr)
	v.SetDefault("server.bind_port", defaults.Server.BindPort)
	v.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", defaults.Server.MaxBodyBytes)

	v.SetDefault("query.adapter_timeout", defaults.Query.AdapterTimeout)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.output_file", defaults.Logging.OutputFile)
	v.SetDefault("logging.verbose", defaults.Logging.Verbose)
}

// validateConfig validates settings and parses the network ranges into
// their typed forms.
func validateConfig(config *Config) error {
	config.Auth.APIToken = strings.TrimSpace(config.Auth.APIToken)
	if config.Auth.APIToken == "" {
		return fmt.Errorf("MCP_API_TOKEN is required")
	}
	if len(config.Auth.APIToken) < MinTokenLength {
		return fmt.Errorf("MCP_API_TOKEN must be at least %d characters", MinTokenLength)
	}

	if config.Server.BindPort < 1 || config.Server.BindPort > 65535 {
		return fmt.Errorf("bind port must be 1-65535, got %d", config.Server.BindPort)
	}
	if config.Server.BindAddr == "" {
		return fmt.Errorf("bind address must not be empty")
	}

	if cidr := strings.TrimSpace(config.Auth.AllowedCIDR); cidr != "" {
		prefix, err := parsePrefix(cidr)
		if err != nil {
			return fmt.Errorf("MCP_ALLOWED_CIDR: %w", err)
		}
		config.Auth.allowedNet = &prefix
	}

	for _, raw := range splitProxyList(config.Auth.TrustedProxies) {
		prefix, err := parsePrefix(raw)
		if err != nil {
			return fmt.Errorf("MCP_TRUSTED_PROXIES: %w", err)
		}
		config.Auth.proxyNets = append(config.Auth.proxyNets, prefix)
	}

	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format %q", config.Logging.Format)
	}

	return nil
}

// parsePrefix accepts either a CIDR range or a bare IP address (treated
// as a /32 or /128).
func parsePrefix(raw string) (netip.Prefix, error) {
	raw = strings.TrimSpace(raw)
	if prefix, err := netip.ParsePrefix(raw); err == nil {
		return prefix.Masked(), nil
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}
	return netip.Prefix{}, fmt.Errorf("%q must be an IP or CIDR range", raw)
}

// splitProxyList flattens entries so that a single comma-separated env
// value and a YAML list both work.
func splitProxyList(entries []string) []string {
	var out []string
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
