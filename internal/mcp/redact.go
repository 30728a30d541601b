package mcp

import (
	"encoding/json"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// RedactParams prepares request parameters for the audit log. Values under
// credential-looking keys are replaced recursively; raw tokens never reach
// the log output.
func RedactParams(params json.RawMessage) interface{} {
	if len(params) == 0 {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal(params, &decoded); err != nil {
		return redactedPlaceholder
	}
	return redactValue(decoded)
}

func redactValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			if isSensitiveKey(key) {
				out[key] = redactedPlaceholder
			} else {
				out[key] = redactValue(item)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	switch normalized {
	case "authorization", "bearer", "api_key", "apikey":
		return true
	}
	return strings.Contains(normalized, "token") ||
		strings.Contains(normalized, "secret") ||
		strings.Contains(normalized, "password") ||
		strings.Contains(normalized, "credential")
}
