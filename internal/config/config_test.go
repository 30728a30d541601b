package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validToken satisfies the minimum length check.
const validToken = "0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.BindAddr != "127.0.0.1" {
		t.Errorf("Expected bind addr 127.0.0.1, got %s", cfg.Server.BindAddr)
	}
	if cfg.Server.BindPort != 8080 {
		t.Errorf("Expected bind port 8080, got %d", cfg.Server.BindPort)
	}
	if cfg.Server.BindAddress() != "127.0.0.1:8080" {
		t.Errorf("Expected bind address 127.0.0.1:8080, got %s", cfg.Server.BindAddress())
	}
	if cfg.Query.AdapterTimeout != 30*time.Second {
		t.Errorf("Expected adapter timeout 30s, got %v", cfg.Query.AdapterTimeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Auth.AllowedNet() != nil {
		t.Error("Expected IP filtering disabled by default")
	}
	if len(cfg.Auth.ProxyNets()) != 0 {
		t.Errorf("Expected no trusted proxies by default, got %v", cfg.Auth.ProxyNets())
	}
}

func TestLoadConfigMissingToken(t *testing.T) {
	os.Unsetenv("MCP_API_TOKEN")

	_, err := LoadConfig("")
	if err == nil {
		t.Fatal("Expected error for missing MCP_API_TOKEN")
	}
	if !strings.Contains(err.Error(), "MCP_API_TOKEN") {
		t.Errorf("Expected token error, got %v", err)
	}
}

func TestLoadConfigShortToken(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", "short")

	_, err := LoadConfig("")
	if err == nil {
		t.Fatal("Expected error for short token")
	}
	if !strings.Contains(err.Error(), "at least 16") {
		t.Errorf("Expected minimum length error, got %v", err)
	}
}

func TestLoadConfigTokenWhitespaceTrimmed(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", "  "+validToken+"  ")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Auth.APIToken != validToken {
		t.Errorf("Expected trimmed token, got %q", cfg.Auth.APIToken)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)
	t.Setenv("BIND_ADDR", "0.0.0.0")
	t.Setenv("BIND_PORT", "9000")
	t.Setenv("MCP_LOG_LEVEL", "debug")
	t.Setenv("MCP_LOG_FORMAT", "json")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.BindAddr != "0.0.0.0" || cfg.Server.BindPort != 9000 {
		t.Errorf("Expected 0.0.0.0:9000, got %s", cfg.Server.BindAddress())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadConfigInvalidPort(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)
	t.Setenv("BIND_PORT", "70000")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("Expected error for out-of-range port")
	}
}

func TestLoadConfigAllowedCIDR(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)
	t.Setenv("MCP_ALLOWED_CIDR", "10.0.0.0/8")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	allowed := cfg.Auth.AllowedNet()
	if allowed == nil {
		t.Fatal("Expected allowlist to be parsed")
	}
	if !allowed.Contains(netip.MustParseAddr("10.20.30.40")) {
		t.Error("Expected 10.20.30.40 inside 10.0.0.0/8")
	}
	if allowed.Contains(netip.MustParseAddr("192.168.1.1")) {
		t.Error("Expected 192.168.1.1 outside 10.0.0.0/8")
	}
}

func TestLoadConfigBareIPAllowlist(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)
	t.Setenv("MCP_ALLOWED_CIDR", "192.168.1.5")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	allowed := cfg.Auth.AllowedNet()
	if allowed == nil || allowed.Bits() != 32 {
		t.Fatalf("Expected /32 prefix for bare IP, got %v", allowed)
	}
	if !allowed.Contains(netip.MustParseAddr("192.168.1.5")) {
		t.Error("Expected exact address match")
	}
}

func TestLoadConfigInvalidCIDR(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)
	t.Setenv("MCP_ALLOWED_CIDR", "not-a-range")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("Expected error for malformed CIDR")
	}
}

func TestLoadConfigTrustedProxies(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)
	t.Setenv("MCP_TRUSTED_PROXIES", "10.0.0.1, 172.16.0.0/12")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	nets := cfg.Auth.ProxyNets()
	if len(nets) != 2 {
		t.Fatalf("Expected 2 proxy ranges, got %d: %v", len(nets), nets)
	}
	if !nets[0].Contains(netip.MustParseAddr("10.0.0.1")) {
		t.Errorf("Expected first range to match 10.0.0.1, got %v", nets[0])
	}
	if !nets[1].Contains(netip.MustParseAddr("172.20.5.5")) {
		t.Errorf("Expected second range to match 172.20.5.5, got %v", nets[1])
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  bind_addr: "0.0.0.0"
  bind_port: 8765
query:
  adapter_timeout: 5s
logging:
  level: warn
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.BindAddress() != "0.0.0.0:8765" {
		t.Errorf("Expected 0.0.0.0:8765, got %s", cfg.Server.BindAddress())
	}
	if cfg.Query.AdapterTimeout != 5*time.Second {
		t.Errorf("Expected adapter timeout 5s, got %v", cfg.Query.AdapterTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected level warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestLoadConfigInvalidFormat(t *testing.T) {
	t.Setenv("MCP_API_TOKEN", validToken)
	t.Setenv("MCP_LOG_FORMAT", "xml")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("Expected error for unsupported log format")
	}
}
