package mcp

import (
	"context"
	"encoding/json"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/rpc"
)

// Fixed resource URIs exposed via resources/list and resources/read.
const (
	ResourceServicesSnapshot = "resource://services/snapshot"
	ResourceServicesFailed   = "resource://services/failed"
	ResourceLogsRecent       = "resource://logs/recent"
)

// ResourceDefinition is a static resources/list entry.
type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// resourceContent is one resources/read content block.
type resourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"resources": []ResourceDefinition{
			{
				URI:         ResourceServicesSnapshot,
				Name:        "Service Snapshot",
				Description: "Current systemd service statuses",
				MimeType:    "application/json",
			},
			{
				URI:         ResourceServicesFailed,
				Name:        "Failed Service Snapshot",
				Description: "Current failed systemd service statuses",
				MimeType:    "application/json",
			},
			{
				URI:         ResourceLogsRecent,
				Name:        "Recent Logs Snapshot",
				Description: "Recent journald logs for the last hour",
				MimeType:    "application/json",
			},
		},
	}, nil
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "Invalid params")
	}
	var read resourceReadParams
	if err := json.Unmarshal(params, &read); err != nil || read.URI == "" {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "Invalid params")
	}

	switch read.URI {
	case ResourceServicesSnapshot:
		services, err := s.queries.ServicesSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		return resourceResult(read.URI, map[string]interface{}{"services": services})
	case ResourceServicesFailed:
		services, err := s.queries.FailedServices(ctx)
		if err != nil {
			return nil, err
		}
		return resourceResult(read.URI, map[string]interface{}{"services": services})
	case ResourceLogsRecent:
		logs, err := s.queries.RecentLogs(ctx)
		if err != nil {
			return nil, err
		}
		return resourceResult(read.URI, map[string]interface{}{"entries": logs.Entries})
	default:
		return nil, apperr.NotFound("resource_not_found", "unknown resource uri").
			WithDetails("uri", read.URI)
	}
}

// resourceResult wraps a snapshot into the {contents:[...]} read shape
// with no extra top-level fields.
func resourceResult(uri string, snapshot interface{}) (interface{}, error) {
	text, err := json.Marshal(snapshot)
	if err != nil {
		return nil, apperr.Internal("failed to encode resource snapshot", err)
	}
	return map[string]interface{}{
		"contents": []resourceContent{{
			URI:      uri,
			MimeType: "application/json",
			Text:     string(text),
		}},
	}, nil
}
