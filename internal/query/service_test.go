package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
)

type fakeUnitLister struct {
	records []ServiceRecord
	err     error
	calls   int
}

func (f *fakeUnitLister) ListUnits(ctx context.Context) ([]ServiceRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ServiceRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

type fakeLogReader struct {
	batch   LogBatch
	err     error
	lastReq ReadRequest
}

func (f *fakeLogReader) Read(ctx context.Context, req ReadRequest) (LogBatch, error) {
	f.lastReq = req
	if f.err != nil {
		return LogBatch{}, f.err
	}
	return f.batch, nil
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
}

func newTestService(units *fakeUnitLister, logs *fakeLogReader) *Service {
	svc := NewService(units, logs, 5*time.Second, nil)
	svc.Now = fixedClock
	return svc
}

func sampleUnits() []ServiceRecord {
	return []ServiceRecord{
		{Unit: "nginx.service", ActiveState: "active", SubState: "running"},
		{Unit: "postgresql.service", ActiveState: "failed", SubState: "failed"},
		{Unit: "cron.service", ActiveState: "active", SubState: "running"},
		{Unit: "apache2.service", ActiveState: "failed", SubState: "failed"},
		{Unit: "sshd.service", ActiveState: "inactive", SubState: "dead"},
	}
}

func TestListServicesDefaults(t *testing.T) {
	units := &fakeUnitLister{records: sampleUnits()}
	svc := newTestService(units, &fakeLogReader{})

	result, err := svc.ListServices(context.Background(), ServicesParams{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Total != 5 || result.Returned != 5 || result.Truncated {
		t.Errorf("Expected total=5 returned=5 truncated=false, got %+v", result)
	}
	// Ascending by unit name.
	want := []string{"apache2.service", "cron.service", "nginx.service", "postgresql.service", "sshd.service"}
	for i, unit := range want {
		if result.Services[i].Unit != unit {
			t.Errorf("Position %d: expected %s, got %s", i, unit, result.Services[i].Unit)
		}
	}
	if result.GeneratedAtUTC != "2026-08-30T12:00:00.000Z" {
		t.Errorf("Unexpected generated_at_utc: %s", result.GeneratedAtUTC)
	}
}

func TestListServicesStateFilter(t *testing.T) {
	units := &fakeUnitLister{records: sampleUnits()}
	svc := newTestService(units, &fakeLogReader{})

	result, err := svc.ListServices(context.Background(), ServicesParams{State: strPtr("FAILED")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Total != 2 || result.Returned != 2 || result.Truncated {
		t.Errorf("Expected total=2 returned=2 truncated=false, got total=%d returned=%d truncated=%v",
			result.Total, result.Returned, result.Truncated)
	}
	if result.Services[0].Unit != "apache2.service" || result.Services[1].Unit != "postgresql.service" {
		t.Errorf("Unexpected order: %s, %s", result.Services[0].Unit, result.Services[1].Unit)
	}
}

func TestListServicesNameFilterAndLimit(t *testing.T) {
	units := &fakeUnitLister{records: sampleUnits()}
	svc := newTestService(units, &fakeLogReader{})

	result, err := svc.ListServices(context.Background(), ServicesParams{
		NameContains: strPtr(".service"),
		Limit:        intPtr(2),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Total != 5 || result.Returned != 2 || !result.Truncated {
		t.Errorf("Expected total=5 returned=2 truncated=true, got total=%d returned=%d truncated=%v",
			result.Total, result.Returned, result.Truncated)
	}
}

func TestListServicesInvalidParams(t *testing.T) {
	svc := newTestService(&fakeUnitLister{}, &fakeLogReader{})

	_, err := svc.ListServices(context.Background(), ServicesParams{State: strPtr("bogus")})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != "invalid_state" {
		t.Errorf("Expected invalid_state, got %v", err)
	}

	_, err = svc.ListServices(context.Background(), ServicesParams{Limit: intPtr(5000)})
	if !errors.As(err, &appErr) || appErr.Code != "invalid_limit" {
		t.Errorf("Expected invalid_limit, got %v", err)
	}
}

func TestListServicesAdapterFailureIsOpaque(t *testing.T) {
	units := &fakeUnitLister{err: errors.New("dbus socket gone")}
	svc := newTestService(units, &fakeLogReader{})

	_, err := svc.ListServices(context.Background(), ServicesParams{})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindInternal {
		t.Fatalf("Expected internal error, got %v", err)
	}
	rpcErr := appErr.RPC()
	if rpcErr.Message != "Internal error" || rpcErr.Data != nil {
		t.Errorf("Adapter detail must not reach the wire, got %+v", rpcErr)
	}
}

func logsWindow() (string, string) {
	return "2026-08-30T10:00:00Z", "2026-08-30T11:00:00Z"
}

func TestListLogsRequiresWindow(t *testing.T) {
	svc := newTestService(&fakeUnitLister{}, &fakeLogReader{})
	start, _ := logsWindow()

	var appErr *apperr.Error
	_, err := svc.ListLogs(context.Background(), LogsParams{})
	if !errors.As(err, &appErr) || appErr.Code != "missing_time_range" {
		t.Errorf("Expected missing_time_range, got %v", err)
	}

	_, err = svc.ListLogs(context.Background(), LogsParams{StartUTC: &start})
	if !errors.As(err, &appErr) || appErr.Code != "missing_time_range" {
		t.Errorf("Expected missing_time_range with only start, got %v", err)
	}
}

func TestListLogsWindowValidation(t *testing.T) {
	svc := newTestService(&fakeUnitLister{}, &fakeLogReader{})
	var appErr *apperr.Error

	// start == end
	same := "2026-08-30T10:00:00Z"
	_, err := svc.ListLogs(context.Background(), LogsParams{StartUTC: &same, EndUTC: &same})
	if !errors.As(err, &appErr) || appErr.Code != "invalid_time_range" {
		t.Errorf("Expected invalid_time_range for start==end, got %v", err)
	}

	// start > end
	start := "2026-08-30T11:00:00Z"
	end := "2026-08-30T10:00:00Z"
	_, err = svc.ListLogs(context.Background(), LogsParams{StartUTC: &start, EndUTC: &end})
	if !errors.As(err, &appErr) || appErr.Code != "invalid_time_range" {
		t.Errorf("Expected invalid_time_range for start>end, got %v", err)
	}

	// window over 7 days
	wideStart := "2026-08-01T00:00:00Z"
	wideEnd := "2026-08-30T00:00:00Z"
	_, err = svc.ListLogs(context.Background(), LogsParams{StartUTC: &wideStart, EndUTC: &wideEnd})
	if !errors.As(err, &appErr) || appErr.Code != "window_too_large" {
		t.Errorf("Expected window_too_large, got %v", err)
	}

	// same window allowed with allow_large_window
	allow := true
	_, err = svc.ListLogs(context.Background(), LogsParams{
		StartUTC: &wideStart, EndUTC: &wideEnd, AllowLargeWindow: &allow,
	})
	if err != nil {
		t.Errorf("Expected large window accepted with allow_large_window, got %v", err)
	}

	// exactly 7 days is allowed
	exactStart := "2026-08-23T00:00:00Z"
	exactEnd := "2026-08-30T00:00:00Z"
	if _, err := svc.ListLogs(context.Background(), LogsParams{StartUTC: &exactStart, EndUTC: &exactEnd}); err != nil {
		t.Errorf("Expected exactly 7 days accepted, got %v", err)
	}
}

func TestListLogsAdapterRequest(t *testing.T) {
	reader := &fakeLogReader{}
	svc := newTestService(&fakeUnitLister{}, reader)
	start, end := logsWindow()

	_, err := svc.ListLogs(context.Background(), LogsParams{
		StartUTC: &start,
		EndUTC:   &end,
		Priority: flexPtr("err"),
		Unit:     strPtr("nginx.service"),
		Limit:    intPtr(50),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	req := reader.lastReq
	if req.Unit != "nginx.service" {
		t.Errorf("Expected unit filter, got %q", req.Unit)
	}
	if req.MaxPriority == nil || *req.MaxPriority != 3 {
		t.Errorf("Expected max priority 3 for 'err', got %v", req.MaxPriority)
	}
	if req.Order != OrderDesc {
		t.Errorf("Expected default order desc, got %v", req.Order)
	}
	if req.Budget != 50 {
		t.Errorf("Expected budget to match limit without client-side filters, got %d", req.Budget)
	}
}

func TestListLogsGrepExpandsBudget(t *testing.T) {
	reader := &fakeLogReader{}
	svc := newTestService(&fakeUnitLister{}, reader)
	start, end := logsWindow()

	_, err := svc.ListLogs(context.Background(), LogsParams{
		StartUTC: &start,
		EndUTC:   &end,
		Grep:     strPtr("timeout"),
		Limit:    intPtr(10),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reader.lastReq.Budget <= 10 {
		t.Errorf("Expected budget headroom with grep active, got %d", reader.lastReq.Budget)
	}
}

func TestListLogsFilteringAndOrdering(t *testing.T) {
	reader := &fakeLogReader{batch: LogBatch{Entries: []LogEntry{
		{TimestampUTC: "2026-08-30T10:10:00.000Z", RealtimeUsec: 100, Unit: "nginx.service", Message: "connect timeout to backend"},
		{TimestampUTC: "2026-08-30T10:20:00.000Z", RealtimeUsec: 200, Unit: "noisy.service", Message: "timeout again"},
		{TimestampUTC: "2026-08-30T10:30:00.000Z", RealtimeUsec: 300, Unit: "nginx.service", Message: "request ok"},
		{TimestampUTC: "2026-08-30T10:40:00.000Z", RealtimeUsec: 400, Unit: "cron.service", Message: "job\x07timeout"},
	}}}
	svc := newTestService(&fakeUnitLister{}, reader)
	start, end := logsWindow()

	result, err := svc.ListLogs(context.Background(), LogsParams{
		StartUTC:     &start,
		EndUTC:       &end,
		Grep:         strPtr("timeout"),
		ExcludeUnits: []string{"NOISY.service"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Returned != 2 {
		t.Fatalf("Expected 2 entries after filtering, got %d", result.Returned)
	}
	// Default order desc: newest first.
	if result.Entries[0].Unit != "cron.service" || result.Entries[1].Unit != "nginx.service" {
		t.Errorf("Unexpected order: %s, %s", result.Entries[0].Unit, result.Entries[1].Unit)
	}
	// Control character replaced during sanitizing.
	if result.Entries[0].Message != "job timeout" {
		t.Errorf("Expected sanitized message, got %q", result.Entries[0].Message)
	}
	if result.Window.StartUTC != "2026-08-30T10:00:00.000Z" || result.Window.EndUTC != "2026-08-30T11:00:00.000Z" {
		t.Errorf("Unexpected window echo: %+v", result.Window)
	}
}

func TestListLogsAscendingOrder(t *testing.T) {
	reader := &fakeLogReader{batch: LogBatch{Entries: []LogEntry{
		{TimestampUTC: "2026-08-30T10:30:00.000Z", RealtimeUsec: 300, Message: "third"},
		{TimestampUTC: "2026-08-30T10:10:00.000Z", RealtimeUsec: 100, Message: "first"},
		{TimestampUTC: "2026-08-30T10:20:00.000Z", RealtimeUsec: 200, Message: "second"},
	}}}
	svc := newTestService(&fakeUnitLister{}, reader)
	start, end := logsWindow()

	result, err := svc.ListLogs(context.Background(), LogsParams{
		StartUTC: &start,
		EndUTC:   &end,
		Order:    strPtr("asc"),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if result.Entries[i].Message != want {
			t.Errorf("Position %d: expected %q, got %q", i, want, result.Entries[i].Message)
		}
	}
}

func TestListLogsTruncation(t *testing.T) {
	entries := make([]LogEntry, 5)
	for i := range entries {
		entries[i] = LogEntry{
			TimestampUTC: "2026-08-30T10:10:00.000Z",
			RealtimeUsec: int64(100 + i),
			Message:      "entry",
		}
	}
	reader := &fakeLogReader{batch: LogBatch{Entries: entries}}
	svc := newTestService(&fakeUnitLister{}, reader)
	start, end := logsWindow()

	result, err := svc.ListLogs(context.Background(), LogsParams{
		StartUTC: &start,
		EndUTC:   &end,
		Limit:    intPtr(3),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Returned != 3 || !result.Truncated {
		t.Errorf("Expected returned=3 truncated=true, got returned=%d truncated=%v",
			result.Returned, result.Truncated)
	}
}

// boundedLogReader honors the request budget like the journald adapter:
// it never returns more entries than asked for.
type boundedLogReader struct {
	available int
	lastReq   ReadRequest
}

func (f *boundedLogReader) Read(ctx context.Context, req ReadRequest) (LogBatch, error) {
	f.lastReq = req
	n := f.available
	if n > req.Budget {
		n = req.Budget
	}
	entries := make([]LogEntry, n)
	for i := range entries {
		entries[i] = LogEntry{
			TimestampUTC: "2026-08-30T10:10:00.000Z",
			RealtimeUsec: int64(100 + i),
			Message:      "entry",
		}
	}
	return LogBatch{Entries: entries}, nil
}

func TestListLogsFullPageReportsTruncated(t *testing.T) {
	// 500 in-window entries, budget-honoring reader: the adapter returns
	// exactly limit entries, and the result must not claim completeness.
	reader := &boundedLogReader{available: 500}
	svc := NewService(&fakeUnitLister{}, reader, 5*time.Second, nil)
	svc.Now = fixedClock
	start, end := logsWindow()

	result, err := svc.ListLogs(context.Background(), LogsParams{
		StartUTC: &start,
		EndUTC:   &end,
		Limit:    intPtr(10),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Returned != 10 {
		t.Fatalf("Expected 10 entries, got %d", result.Returned)
	}
	if !result.Truncated {
		t.Error("Expected truncated=true when the result fills the limit")
	}
}

func TestListLogsPartialPageNotTruncated(t *testing.T) {
	reader := &boundedLogReader{available: 4}
	svc := NewService(&fakeUnitLister{}, reader, 5*time.Second, nil)
	svc.Now = fixedClock
	start, end := logsWindow()

	result, err := svc.ListLogs(context.Background(), LogsParams{
		StartUTC: &start,
		EndUTC:   &end,
		Limit:    intPtr(10),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Returned != 4 || result.Truncated {
		t.Errorf("Expected returned=4 truncated=false, got returned=%d truncated=%v",
			result.Returned, result.Truncated)
	}
}

func TestRecentLogsWindow(t *testing.T) {
	reader := &fakeLogReader{}
	svc := newTestService(&fakeUnitLister{}, reader)

	result, err := svc.RecentLogs(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Window.StartUTC != "2026-08-30T11:00:00.000Z" || result.Window.EndUTC != "2026-08-30T12:00:00.000Z" {
		t.Errorf("Expected one-hour window ending now, got %+v", result.Window)
	}
	if reader.lastReq.Order != OrderDesc {
		t.Errorf("Expected newest-first recent logs, got %v", reader.lastReq.Order)
	}
}

func TestFailedServices(t *testing.T) {
	units := &fakeUnitLister{records: sampleUnits()}
	svc := newTestService(units, &fakeLogReader{})

	records, err := svc.FailedServices(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 failed units, got %d", len(records))
	}
	for _, record := range records {
		if record.ActiveState != "failed" {
			t.Errorf("Expected failed state, got %s (%s)", record.ActiveState, record.Unit)
		}
	}
}
