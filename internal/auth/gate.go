// Package auth implements the access-control gate every /mcp request
// passes before envelope parsing: bearer token authentication and
// source-IP allow-listing with trusted-proxy resolution.
//
// Token comparison is constant time with respect to the token content: the
// configured token and the presented one are both folded through a keyed
// SHA-256 HMAC with a per-process random key, and the digests are compared
// with hmac.Equal. Comparison time does not depend on the position of the
// first mismatched byte or on the presented length.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/config"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/metrics"
)

// Context is the gate verdict for one request. Consumed once, never
// stored.
type Context struct {
	Authenticated bool
	ClientIP      netip.Addr
}

// Gate holds the immutable gate configuration. Safe for concurrent use.
type Gate struct {
	macKey   []byte
	tokenMAC []byte
	allowed  *netip.Prefix
	proxies  []netip.Prefix
	logger   *slog.Logger
	monitor  *metrics.Monitor
}

// NewGate builds the gate from the validated auth configuration.
func NewGate(cfg *config.AuthConfig, logger *slog.Logger, monitor *metrics.Monitor) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if monitor == nil {
		monitor = metrics.NewMonitor()
	}

	macKey := make([]byte, 32)
	if _, err := rand.Read(macKey); err != nil {
		return nil, fmt.Errorf("failed to generate comparison key: %w", err)
	}

	mac := hmac.New(sha256.New, macKey)
	mac.Write([]byte(cfg.APIToken))

	return &Gate{
		macKey:   macKey,
		tokenMAC: mac.Sum(nil),
		allowed:  cfg.AllowedNet(),
		proxies:  cfg.ProxyNets(),
		logger:   logger,
		monitor:  monitor,
	}, nil
}

// Authenticate checks the bearer token and, when an allowlist is
// configured, the effective client IP. On rejection it returns the
// matching unauthorized/forbidden error and logs the reason category.
func (g *Gate) Authenticate(r *http.Request) (Context, *apperr.Error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Context{}, g.reject(apperr.Unauthorized("missing_token", "missing authorization header"))
	}

	token, ok := parseBearerToken(header)
	if !ok {
		return Context{}, g.reject(apperr.Unauthorized("invalid_token", "invalid authorization scheme"))
	}
	if !g.tokenMatches(token) {
		return Context{}, g.reject(apperr.Unauthorized("invalid_token", "invalid bearer token"))
	}

	clientIP, appErr := g.effectiveClientIP(r)
	if appErr != nil {
		return Context{}, g.reject(appErr)
	}

	if g.allowed != nil && !g.allowed.Contains(clientIP.Unmap()) {
		return Context{}, g.reject(apperr.Forbidden("ip_restricted", "request source IP is not allowed"))
	}

	return Context{Authenticated: true, ClientIP: clientIP}, nil
}

func (g *Gate) reject(err *apperr.Error) *apperr.Error {
	// Reason category only; the presented token never reaches the log.
	g.logger.Warn("request rejected by access gate", "reason", err.Code)
	g.monitor.RecordAuthFailure(err.Code)
	return err
}

// parseBearerToken extracts the token from a "Bearer <token>" header
// value.
func parseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// tokenMatches runs the keyed-digest equality check. Both sides pass
// through the same HMAC so the comparison length is fixed regardless of
// the presented token.
func (g *Gate) tokenMatches(provided string) bool {
	mac := hmac.New(sha256.New, g.macKey)
	mac.Write([]byte(provided))
	return hmac.Equal(mac.Sum(nil), g.tokenMAC)
}

// effectiveClientIP resolves the address the allowlist is tested against.
// The X-Forwarded-For header is honored only when the socket peer matches
// a trusted proxy; a proxied request without a parseable left-most entry
// is rejected rather than falling back to the proxy address. Without an
// allowlist, resolution failures are tolerated: the IP is informational
// only.
func (g *Gate) effectiveClientIP(r *http.Request) (netip.Addr, *apperr.Error) {
	peer, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		if g.allowed == nil {
			return netip.Addr{}, nil
		}
		return netip.Addr{}, apperr.Forbidden("ip_restricted",
			"request source IP is unavailable for allowlist validation")
	}
	peerAddr := peer.Addr().Unmap()

	if !g.isTrustedProxy(peerAddr) {
		return peerAddr, nil
	}

	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	leftmost := forwarded
	if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
		leftmost = forwarded[:idx]
	}
	client, err := netip.ParseAddr(strings.TrimSpace(leftmost))
	if err != nil {
		if g.allowed == nil {
			return peerAddr, nil
		}
		return netip.Addr{}, apperr.Forbidden("ip_restricted",
			"proxied request carries no valid client address")
	}
	return client.Unmap(), nil
}

func (g *Gate) isTrustedProxy(addr netip.Addr) bool {
	for _, proxy := range g.proxies {
		if proxy.Contains(addr) {
			return true
		}
	}
	return false
}
