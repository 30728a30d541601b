package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
)

// Limits shared by list_services and list_logs.
const (
	DefaultLimit = 200
	MaxLimit     = 1000
)

// MaxWindow is the widest log window accepted without
// allow_large_window.
const MaxWindow = 7 * 24 * time.Hour

// ValidStates is the closed set of service states accepted by the state
// filter.
var ValidStates = []string{"active", "inactive", "failed", "activating", "deactivating", "reloading"}

// timestampFormat renders UTC instants with millisecond precision, the
// shape every *_utc output field uses.
const timestampFormat = "2006-01-02T15:04:05.000Z"

// FormatUTC renders t in the canonical output timestamp shape.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func normalizeState(state *string) (string, *apperr.Error) {
	if state == nil {
		return "", nil
	}

	normalized := strings.ToLower(strings.TrimSpace(*state))
	for _, valid := range ValidStates {
		if normalized == valid {
			return normalized, nil
		}
	}
	return "", apperr.Validation("invalid_state",
		"state must be one of: active, inactive, failed, activating, deactivating, reloading")
}

func normalizeNameContains(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func normalizeLimit(limit *int) (int, *apperr.Error) {
	if limit == nil {
		return DefaultLimit, nil
	}
	if *limit < 1 || *limit > MaxLimit {
		return 0, apperr.Validation("invalid_limit", "limit must be between 1 and 1000")
	}
	return *limit, nil
}

// parseUTC accepts RFC3339 timestamps with a literal Z suffix only; any
// other offset is rejected.
func parseUTC(value string) (time.Time, *apperr.Error) {
	invalid := apperr.Validation("invalid_utc_time",
		"timestamps must be RFC3339 UTC format ending with Z")

	trimmed := strings.TrimSpace(value)
	if !strings.HasSuffix(trimmed, "Z") {
		return time.Time{}, invalid
	}
	parsed, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return time.Time{}, invalid
	}
	return parsed.UTC(), nil
}

// priorityAliases maps syslog severity names to their numeric levels.
var priorityAliases = map[string]int{
	"emerg": 0, "panic": 0,
	"alert": 1,
	"crit":  2, "critical": 2,
	"err": 3, "error": 3,
	"warning": 4, "warn": 4,
	"notice": 5,
	"info":   6, "informational": 6,
	"debug": 7,
}

// normalizePriority resolves a numeric or alias priority into the maximum
// numeric level to return. Lower numbers are more severe, so the
// threshold keeps entries with priority <= the resolved value.
func normalizePriority(priority *FlexString) (*int, *apperr.Error) {
	if priority == nil {
		return nil, nil
	}

	invalid := apperr.Validation("invalid_priority",
		"priority must be one of 0-7 or: emerg, alert, crit, err, warning, notice, info, debug")

	normalized := strings.ToLower(strings.TrimSpace(string(*priority)))
	if normalized == "" {
		return nil, invalid
	}

	if level, ok := priorityAliases[normalized]; ok {
		return &level, nil
	}
	level, err := strconv.Atoi(normalized)
	if err != nil || level < 0 || level > 7 {
		return nil, invalid
	}
	return &level, nil
}

func isValidUnitName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_', r == '@', r == ':':
		default:
			return false
		}
	}
	return true
}

// normalizeUnit validates a systemd unit name filter. Empty or absent
// values mean no filter.
func normalizeUnit(unit string) (string, *apperr.Error) {
	normalized := strings.TrimSpace(unit)
	if normalized == "" {
		return "", nil
	}
	if !isValidUnitName(normalized) {
		return "", apperr.Validation("invalid_unit",
			"unit must contain only alphanumeric characters, dashes, underscores, dots, @, and :")
	}
	return normalized, nil
}

func normalizeOrder(order *string) (Order, *apperr.Error) {
	if order == nil {
		return OrderDesc, nil
	}
	switch strings.ToLower(strings.TrimSpace(*order)) {
	case "", "desc":
		return OrderDesc, nil
	case "asc":
		return OrderAsc, nil
	default:
		return "", apperr.Validation("invalid_order", "order must be one of: asc, desc")
	}
}

// grepMatcher filters log messages. A pattern wrapped in slashes
// (/.../) is treated as a regular expression, anything else as a plain
// substring.
type grepMatcher struct {
	substring string
	regex     *regexp.Regexp
}

func newGrepMatcher(grep *string) (*grepMatcher, *apperr.Error) {
	if grep == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*grep)
	if trimmed == "" {
		return nil, nil
	}

	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, "/") && strings.HasSuffix(trimmed, "/") {
		pattern := trimmed[1 : len(trimmed)-1]
		regex, err := regexp.Compile(pattern)
		if err != nil {
			return nil, apperr.Validation("invalid_grep", "grep regex pattern is invalid")
		}
		return &grepMatcher{regex: regex}, nil
	}
	return &grepMatcher{substring: trimmed}, nil
}

func (m *grepMatcher) matches(message string) bool {
	if m == nil {
		return true
	}
	if m.regex != nil {
		return m.regex.MatchString(message)
	}
	return strings.Contains(message, m.substring)
}

// sanitizeMessage trims the message and replaces control characters
// (except tab, CR, LF) with spaces.
func sanitizeMessage(message string) string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return ""
	}

	sanitized := strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return ' '
		}
		if r == 0x7f {
			return ' '
		}
		return r
	}, trimmed)

	return strings.TrimSpace(sanitized)
}
