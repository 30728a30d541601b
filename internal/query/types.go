// Package query implements the monitoring query layer: parameter
// validation and normalization for the list_services and list_logs tools,
// result shaping, and the parameterless resource snapshots built on top of
// them.
//
// The package talks to the host exclusively through the UnitLister and
// LogReader interfaces so the systemd adapters stay mockable.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ServiceRecord describes one systemd service unit. Produced transiently
// per query; never persisted.
type ServiceRecord struct {
	Unit           string `json:"unit"`
	Description    string `json:"description"`
	LoadState      string `json:"load_state"`
	ActiveState    string `json:"active_state"`
	SubState       string `json:"sub_state"`
	UnitFileState  string `json:"unit_file_state,omitempty"`
	SinceUTC       string `json:"since_utc,omitempty"`
	MainPID        uint32 `json:"main_pid,omitempty"`
	ExecMainStatus *int32 `json:"exec_main_status,omitempty"`
	Result         string `json:"result,omitempty"`
}

// LogEntry is one structured log record. RealtimeUsec is internal ordering
// state and never serialized.
type LogEntry struct {
	TimestampUTC string `json:"timestamp_utc"`
	Unit         string `json:"unit,omitempty"`
	Priority     string `json:"priority,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
	PID          *int   `json:"pid,omitempty"`
	Message      string `json:"message,omitempty"`
	Cursor       string `json:"cursor,omitempty"`

	RealtimeUsec int64 `json:"-"`
}

// Order is the log result ordering.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ReadRequest carries the validated window and server-side filters into
// the log-reader adapter. Budget caps how many matching entries the
// adapter may return; grep and exclusion filters are applied by the query
// layer afterwards.
type ReadRequest struct {
	Start       time.Time
	End         time.Time
	Order       Order
	MaxPriority *int
	Unit        string
	Budget      int
}

// LogBatch is the log-reader adapter result.
type LogBatch struct {
	Entries      []LogEntry
	TotalScanned *int
}

// UnitLister enumerates service units from the host service manager. The
// adapter contract already restricts results to *.service units.
type UnitLister interface {
	ListUnits(ctx context.Context) ([]ServiceRecord, error)
}

// LogReader retrieves log records for a validated window.
type LogReader interface {
	Read(ctx context.Context, req ReadRequest) (LogBatch, error)
}

// ServicesParams are the decoded list_services arguments. Pointers
// distinguish absent from empty.
type ServicesParams struct {
	State        *string `json:"state"`
	NameContains *string `json:"name_contains"`
	Limit        *int    `json:"limit"`
}

// LogsParams are the decoded list_logs arguments.
type LogsParams struct {
	Priority         *FlexString `json:"priority"`
	Unit             *string     `json:"unit"`
	StartUTC         *string     `json:"start_utc"`
	EndUTC           *string     `json:"end_utc"`
	Grep             *string     `json:"grep"`
	ExcludeUnits     []string    `json:"exclude_units"`
	Order            *string     `json:"order"`
	AllowLargeWindow *bool       `json:"allow_large_window"`
	Limit            *int        `json:"limit"`
}

// FlexString decodes from either a JSON string or a JSON number, so
// priority can be given as "err", "3", or 3.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	return fmt.Errorf("value must be a string or number")
}

// ServicesResult is the shaped list_services output.
type ServicesResult struct {
	Services       []ServiceRecord `json:"services"`
	Total          int             `json:"total"`
	Returned       int             `json:"returned"`
	Truncated      bool            `json:"truncated"`
	GeneratedAtUTC string          `json:"generated_at_utc"`
}

// Window echoes the validated query window.
type Window struct {
	StartUTC string `json:"start_utc"`
	EndUTC   string `json:"end_utc"`
}

// LogsResult is the shaped list_logs output.
type LogsResult struct {
	Entries        []LogEntry `json:"entries"`
	TotalScanned   *int       `json:"total_scanned,omitempty"`
	Returned       int        `json:"returned"`
	Truncated      bool       `json:"truncated"`
	GeneratedAtUTC string     `json:"generated_at_utc"`
	Window         Window     `json:"window"`
}
