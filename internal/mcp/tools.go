package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/query"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/rpc"
)

// Tool names exposed via tools/list and tools/call.
const (
	ToolListServices = "list_services"
	ToolListLogs     = "list_logs"
)

// ToolDefinition is a static tools/list entry.
type ToolDefinition struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
}

// textContent is the human-readable block accompanying structured tool
// results.
type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolResult is the tools/call success envelope.
type toolResult struct {
	Content           []textContent `json:"content"`
	StructuredContent interface{}   `json:"structuredContent"`
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"tools": []ToolDefinition{
			{
				Name:         ToolListServices,
				Description:  "List systemd service units and current state",
				InputSchema:  listServicesInputSchema(),
				OutputSchema: listServicesOutputSchema(),
			},
			{
				Name:         ToolListLogs,
				Description:  "List journald logs with filters and bounds",
				InputSchema:  listLogsInputSchema(),
				OutputSchema: listLogsOutputSchema(),
			},
		},
	}, nil
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "Invalid params")
	}
	var call toolCallParams
	if err := json.Unmarshal(params, &call); err != nil || call.Name == "" {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "Invalid params")
	}
	arguments := call.Arguments
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}

	switch call.Name {
	case ToolListServices:
		return s.callListServices(ctx, arguments)
	case ToolListLogs:
		return s.callListLogs(ctx, arguments)
	default:
		return nil, apperr.NotFound("tool_not_found", "unknown tool name").
			WithDetails("name", call.Name)
	}
}

func (s *Server) callListServices(ctx context.Context, arguments json.RawMessage) (interface{}, error) {
	var params query.ServicesParams
	if err := json.Unmarshal(arguments, &params); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "Invalid params")
	}

	result, err := s.queries.ListServices(ctx, params)
	if err != nil {
		return nil, err
	}

	return toolResult{
		Content: []textContent{{
			Type: "text",
			Text: fmt.Sprintf("Returned %d of %d services", result.Returned, result.Total),
		}},
		StructuredContent: result,
	}, nil
}

func (s *Server) callListLogs(ctx context.Context, arguments json.RawMessage) (interface{}, error) {
	var params query.LogsParams
	if err := json.Unmarshal(arguments, &params); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "Invalid params")
	}

	result, err := s.queries.ListLogs(ctx, params)
	if err != nil {
		return nil, err
	}

	return toolResult{
		Content: []textContent{{
			Type: "text",
			Text: fmt.Sprintf("Returned %d log entries", result.Returned),
		}},
		StructuredContent: result,
	}, nil
}

func listServicesInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"state": map[string]interface{}{
				"type":        "string",
				"description": "Filter by active state",
				"enum":        []string{"active", "inactive", "failed", "activating", "deactivating", "reloading"},
			},
			"name_contains": map[string]interface{}{
				"type":        "string",
				"description": "Substring filter on the unit name",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of services to return (1-1000, default 200)",
				"minimum":     1,
				"maximum":     1000,
			},
		},
		"additionalProperties": false,
	}
}

func listServicesOutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"services", "total", "returned", "truncated", "generated_at_utc"},
		"properties": map[string]interface{}{
			"services": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"unit", "description", "load_state", "active_state", "sub_state"},
					"properties": map[string]interface{}{
						"unit":             map[string]interface{}{"type": "string"},
						"description":      map[string]interface{}{"type": "string"},
						"load_state":       map[string]interface{}{"type": "string"},
						"active_state":     map[string]interface{}{"type": "string"},
						"sub_state":        map[string]interface{}{"type": "string"},
						"unit_file_state":  map[string]interface{}{"type": "string"},
						"since_utc":        map[string]interface{}{"type": "string"},
						"main_pid":         map[string]interface{}{"type": "integer"},
						"exec_main_status": map[string]interface{}{"type": "integer"},
						"result":           map[string]interface{}{"type": "string"},
					},
				},
			},
			"total":            map[string]interface{}{"type": "integer"},
			"returned":         map[string]interface{}{"type": "integer"},
			"truncated":        map[string]interface{}{"type": "boolean"},
			"generated_at_utc": map[string]interface{}{"type": "string"},
		},
	}
}

func listLogsInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"start_utc", "end_utc"},
		"properties": map[string]interface{}{
			"priority": map[string]interface{}{
				"description": "Minimum severity: 0-7 or emerg, alert, crit, err, warning, notice, info, debug",
			},
			"unit": map[string]interface{}{
				"type":        "string",
				"description": "Restrict to one systemd unit",
			},
			"start_utc": map[string]interface{}{
				"type":        "string",
				"description": "Window start, RFC3339 UTC with Z suffix",
			},
			"end_utc": map[string]interface{}{
				"type":        "string",
				"description": "Window end, RFC3339 UTC with Z suffix",
			},
			"grep": map[string]interface{}{
				"type":        "string",
				"description": "Substring filter, or /pattern/ for a regular expression",
			},
			"exclude_units": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Units to drop from the result",
			},
			"order": map[string]interface{}{
				"type": "string",
				"enum": []string{"asc", "desc"},
			},
			"allow_large_window": map[string]interface{}{
				"type":        "boolean",
				"description": "Permit windows wider than 7 days",
			},
			"limit": map[string]interface{}{
				"type":    "integer",
				"minimum": 1,
				"maximum": 1000,
			},
		},
		"additionalProperties": false,
	}
}

func listLogsOutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"entries", "returned", "truncated", "generated_at_utc", "window"},
		"properties": map[string]interface{}{
			"entries": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"timestamp_utc"},
					"properties": map[string]interface{}{
						"timestamp_utc": map[string]interface{}{"type": "string"},
						"unit":          map[string]interface{}{"type": "string"},
						"priority":      map[string]interface{}{"type": "string"},
						"hostname":      map[string]interface{}{"type": "string"},
						"pid":           map[string]interface{}{"type": "integer"},
						"message":       map[string]interface{}{"type": "string"},
						"cursor":        map[string]interface{}{"type": "string"},
					},
				},
			},
			"total_scanned":    map[string]interface{}{"type": "integer"},
			"returned":         map[string]interface{}{"type": "integer"},
			"truncated":        map[string]interface{}{"type": "boolean"},
			"generated_at_utc": map[string]interface{}{"type": "string"},
			"window": map[string]interface{}{
				"type":     "object",
				"required": []string{"start_utc", "end_utc"},
				"properties": map[string]interface{}{
					"start_utc": map[string]interface{}{"type": "string"},
					"end_utc":   map[string]interface{}{"type": "string"},
				},
			},
		},
	}
}
