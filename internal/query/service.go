package query

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
)

// Service executes validated monitoring queries against the host
// adapters. It holds no mutable state; one instance serves all requests.
type Service struct {
	units          UnitLister
	logs           LogReader
	adapterTimeout time.Duration
	logger         *slog.Logger

	// Now is the clock used for generated_at_utc stamps and the recent-logs
	// window. Overridable in tests.
	Now func() time.Time
}

// NewService creates the query service. adapterTimeout bounds every
// adapter call so a stuck D-Bus or journal read cannot hang a request
// indefinitely.
func NewService(units UnitLister, logs LogReader, adapterTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		units:          units,
		logs:           logs,
		adapterTimeout: adapterTimeout,
		logger:         logger,
		Now:            time.Now,
	}
}

func (s *Service) adapterContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.adapterTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.adapterTimeout)
}

// ListServices validates params, fetches the unit set, and shapes the
// filtered, sorted result.
func (s *Service) ListServices(ctx context.Context, params ServicesParams) (*ServicesResult, error) {
	state, appErr := normalizeState(params.State)
	if appErr != nil {
		return nil, appErr
	}
	nameContains := normalizeNameContains(params.NameContains)
	limit, appErr := normalizeLimit(params.Limit)
	if appErr != nil {
		return nil, appErr
	}

	records, err := s.fetchUnits(ctx)
	if err != nil {
		return nil, err
	}

	records = filterServicesByState(records, state)
	records = filterServicesByName(records, nameContains)
	sortServices(records, state == "failed")

	total := len(records)
	if len(records) > limit {
		records = records[:limit]
	}

	return &ServicesResult{
		Services:       records,
		Total:          total,
		Returned:       len(records),
		Truncated:      total > len(records),
		GeneratedAtUTC: FormatUTC(s.Now()),
	}, nil
}

// ListLogs validates params, delegates the window scan to the log reader,
// then applies grep and exclusion filtering, message sanitizing, ordering,
// and truncation.
func (s *Service) ListLogs(ctx context.Context, params LogsParams) (*LogsResult, error) {
	if params.StartUTC == nil || params.EndUTC == nil {
		return nil, apperr.Validation("missing_time_range", "start_utc and end_utc are required")
	}
	start, appErr := parseUTC(*params.StartUTC)
	if appErr != nil {
		return nil, appErr
	}
	end, appErr := parseUTC(*params.EndUTC)
	if appErr != nil {
		return nil, appErr
	}
	if !start.Before(end) {
		return nil, apperr.Validation("invalid_time_range", "start_utc must be strictly less than end_utc")
	}
	allowLarge := params.AllowLargeWindow != nil && *params.AllowLargeWindow
	if !allowLarge && end.Sub(start) > MaxWindow {
		return nil, apperr.Validation("window_too_large",
			"time window must not exceed 7 days unless allow_large_window is true")
	}

	maxPriority, appErr := normalizePriority(params.Priority)
	if appErr != nil {
		return nil, appErr
	}

	unit := ""
	if params.Unit != nil {
		if unit, appErr = normalizeUnit(*params.Unit); appErr != nil {
			return nil, appErr
		}
	}
	excludeUnits := make([]string, 0, len(params.ExcludeUnits))
	for _, raw := range params.ExcludeUnits {
		excluded, appErr := normalizeUnit(raw)
		if appErr != nil {
			return nil, appErr
		}
		if excluded != "" {
			excludeUnits = append(excludeUnits, excluded)
		}
	}

	order, appErr := normalizeOrder(params.Order)
	if appErr != nil {
		return nil, appErr
	}
	limit, appErr := normalizeLimit(params.Limit)
	if appErr != nil {
		return nil, appErr
	}
	grep, appErr := newGrepMatcher(params.Grep)
	if appErr != nil {
		return nil, appErr
	}

	// Client-side filters can discard adapter results, so give the
	// adapter headroom when any are active.
	budget := limit
	if grep != nil || len(excludeUnits) > 0 {
		budget = MaxLimit * 5
	}

	adapterCtx, cancel := s.adapterContext(ctx)
	defer cancel()
	batch, err := s.logs.Read(adapterCtx, ReadRequest{
		Start:       start,
		End:         end,
		Order:       order,
		MaxPriority: maxPriority,
		Unit:        unit,
		Budget:      budget,
	})
	if err != nil {
		return nil, s.adapterError("log reader failed", err)
	}

	entries := make([]LogEntry, 0, len(batch.Entries))
	for _, entry := range batch.Entries {
		if isExcludedUnit(entry.Unit, excludeUnits) {
			continue
		}
		entry.Message = sanitizeMessage(entry.Message)
		if grep != nil && (entry.Message == "" || !grep.matches(entry.Message)) {
			continue
		}
		entries = append(entries, entry)
	}

	sortLogs(entries, order)

	if len(entries) > limit {
		entries = entries[:limit]
	}

	// A full page means the window may hold more entries than the adapter
	// was asked for, so a result at the limit is always reported as
	// truncated.
	return &LogsResult{
		Entries:        entries,
		TotalScanned:   batch.TotalScanned,
		Returned:       len(entries),
		Truncated:      len(entries) >= limit,
		GeneratedAtUTC: FormatUTC(s.Now()),
		Window: Window{
			StartUTC: FormatUTC(start),
			EndUTC:   FormatUTC(end),
		},
	}, nil
}

// ServicesSnapshot returns the full sorted unit set for the snapshot
// resource.
func (s *Service) ServicesSnapshot(ctx context.Context) ([]ServiceRecord, error) {
	records, err := s.fetchUnits(ctx)
	if err != nil {
		return nil, err
	}
	sortServices(records, false)
	return records, nil
}

// FailedServices returns only units whose active_state is failed.
func (s *Service) FailedServices(ctx context.Context) ([]ServiceRecord, error) {
	records, err := s.fetchUnits(ctx)
	if err != nil {
		return nil, err
	}
	records = filterServicesByState(records, "failed")
	sortServices(records, false)
	return records, nil
}

// RecentLogs returns the last hour of log entries, newest first, with the
// default limit.
func (s *Service) RecentLogs(ctx context.Context) (*LogsResult, error) {
	end := s.Now().UTC()
	start := end.Add(-time.Hour)
	startText := FormatUTC(start)
	endText := FormatUTC(end)
	return s.ListLogs(ctx, LogsParams{
		StartUTC: &startText,
		EndUTC:   &endText,
	})
}

func (s *Service) fetchUnits(ctx context.Context) ([]ServiceRecord, error) {
	adapterCtx, cancel := s.adapterContext(ctx)
	defer cancel()

	records, err := s.units.ListUnits(adapterCtx)
	if err != nil {
		return nil, s.adapterError("unit lister failed", err)
	}
	return records, nil
}

// adapterError logs the full failure server-side and returns an opaque
// internal error for the client.
func (s *Service) adapterError(message string, err error) error {
	if appErr, ok := err.(*apperr.Error); ok && appErr.Kind != apperr.KindInternal {
		return appErr
	}
	s.logger.Error(message, "error", err)
	return apperr.Internal(message, err)
}

func filterServicesByState(records []ServiceRecord, state string) []ServiceRecord {
	if state == "" {
		return records
	}
	filtered := records[:0:0]
	for _, record := range records {
		if strings.EqualFold(record.ActiveState, state) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

func filterServicesByName(records []ServiceRecord, nameContains string) []ServiceRecord {
	if nameContains == "" {
		return records
	}
	filtered := records[:0:0]
	for _, record := range records {
		if strings.Contains(record.Unit, nameContains) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// sortServices orders ascending by unit name. With failedFirst, failed
// units form a leading group, each group internally ascending.
func sortServices(records []ServiceRecord, failedFirst bool) {
	sort.SliceStable(records, func(i, j int) bool {
		if failedFirst {
			iFailed := strings.EqualFold(records[i].ActiveState, "failed")
			jFailed := strings.EqualFold(records[j].ActiveState, "failed")
			if iFailed != jFailed {
				return iFailed
			}
		}
		return records[i].Unit < records[j].Unit
	})
}

func sortLogs(entries []LogEntry, order Order) {
	sort.SliceStable(entries, func(i, j int) bool {
		left, right := entries[i], entries[j]
		if left.RealtimeUsec != right.RealtimeUsec {
			if order == OrderAsc {
				return left.RealtimeUsec < right.RealtimeUsec
			}
			return left.RealtimeUsec > right.RealtimeUsec
		}
		if order == OrderAsc {
			return left.TimestampUTC < right.TimestampUTC
		}
		return left.TimestampUTC > right.TimestampUTC
	})
}

func isExcludedUnit(unit string, excluded []string) bool {
	if unit == "" {
		return false
	}
	for _, candidate := range excluded {
		if strings.EqualFold(unit, candidate) {
			return true
		}
	}
	return false
}
