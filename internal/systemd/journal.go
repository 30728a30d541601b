package systemd

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/query"
)

// JournalReader reads log records from the local journald store.
type JournalReader struct {
	logger *slog.Logger
}

var _ query.LogReader = (*JournalReader)(nil)

// NewJournalReader creates the journald log reader.
func NewJournalReader(logger *slog.Logger) *JournalReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &JournalReader{logger: logger}
}

// Read implements query.LogReader. It seeks to the window edge matching
// the requested order, iterates entries inside the window, applies the
// unit match and priority threshold, and stops at the budget. The journal
// handle is per call; cancellation is checked between entries.
func (r *JournalReader) Read(ctx context.Context, req query.ReadRequest) (query.LogBatch, error) {
	journal, err := sdjournal.NewJournal()
	if err != nil {
		return query.LogBatch{}, apperr.Internal("failed to open journald reader", err)
	}
	defer journal.Close()

	if req.Unit != "" {
		if err := journal.AddMatch("_SYSTEMD_UNIT=" + req.Unit); err != nil {
			return query.LogBatch{}, apperr.Internal("failed to apply unit filter", err)
		}
	}

	startUsec := uint64(req.Start.UnixMicro())
	endUsec := uint64(req.End.UnixMicro())

	switch req.Order {
	case query.OrderAsc:
		if err := journal.SeekRealtimeUsec(startUsec); err != nil {
			return query.LogBatch{}, apperr.Internal("failed to seek journald start timestamp", err)
		}
	default:
		if err := journal.SeekRealtimeUsec(endUsec); err != nil {
			return query.LogBatch{}, apperr.Internal("failed to seek journald end timestamp", err)
		}
	}

	entries := make([]query.LogEntry, 0, min(req.Budget, 256))
	totalScanned := 0

	for len(entries) < req.Budget {
		if err := ctx.Err(); err != nil {
			return query.LogBatch{}, apperr.Internal("journal read canceled", err)
		}

		var advanced uint64
		if req.Order == query.OrderAsc {
			advanced, err = journal.Next()
		} else {
			advanced, err = journal.Previous()
		}
		if err != nil {
			return query.LogBatch{}, apperr.Internal("failed to read journald entry", err)
		}
		if advanced == 0 {
			break
		}
		totalScanned++

		raw, err := journal.GetEntry()
		if err != nil {
			return query.LogBatch{}, apperr.Internal("failed to read journald entry fields", err)
		}

		timestamp := raw.RealtimeTimestamp
		if timestamp < startUsec {
			if req.Order != query.OrderAsc {
				break
			}
			continue
		}
		if timestamp > endUsec {
			if req.Order == query.OrderAsc {
				break
			}
			continue
		}

		entry := entryFromFields(raw)
		if req.MaxPriority != nil {
			level, err := strconv.Atoi(entry.Priority)
			if err != nil || level > *req.MaxPriority {
				continue
			}
		}

		entries = append(entries, entry)
	}

	return query.LogBatch{Entries: entries, TotalScanned: &totalScanned}, nil
}

func entryFromFields(raw *sdjournal.JournalEntry) query.LogEntry {
	entry := query.LogEntry{
		TimestampUTC: query.FormatUTC(time.UnixMicro(int64(raw.RealtimeTimestamp))),
		RealtimeUsec: int64(raw.RealtimeTimestamp),
		Unit:         raw.Fields["_SYSTEMD_UNIT"],
		Priority:     raw.Fields["PRIORITY"],
		Hostname:     raw.Fields["_HOSTNAME"],
		Message:      raw.Fields["MESSAGE"],
		Cursor:       raw.Cursor,
	}
	if pid, err := strconv.Atoi(raw.Fields["_PID"]); err == nil {
		entry.PID = &pid
	}
	return entry
}
