// Package systemd contains the host adapters behind the query layer: a
// unit lister backed by the systemd D-Bus manager API and a log reader
// backed by the journald store.
//
// Both adapters are stateless; connections and journal handles are opened
// per call and closed before returning, so no shared mutable state exists
// across requests.
package systemd

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	sddbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/paulstaab/systemd-monitoring-mcp/internal/apperr"
	"github.com/paulstaab/systemd-monitoring-mcp/internal/query"
)

// UnitLister lists *.service units over the system D-Bus.
type UnitLister struct {
	logger *slog.Logger
}

var _ query.UnitLister = (*UnitLister)(nil)

// NewUnitLister creates the D-Bus unit lister.
func NewUnitLister(logger *slog.Logger) *UnitLister {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnitLister{logger: logger}
}

// connect establishes a system bus connection with exponential backoff so
// a briefly unavailable bus does not immediately fail the request.
func (l *UnitLister) connect(ctx context.Context) (*sddbus.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 10 * time.Second

	var conn *sddbus.Conn
	operation := func() error {
		c, err := sddbus.NewSystemConnectionContext(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, apperr.Internal("failed to connect to system dbus", err)
	}
	return conn, nil
}

// ListUnits implements query.UnitLister. Results are restricted to
// *.service units, enriched with per-unit detail properties, and sorted
// ascending by name. Enrichment failures degrade to a warning; the base
// record is still returned.
func (l *UnitLister) ListUnits(ctx context.Context) ([]query.ServiceRecord, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	units, err := conn.ListUnitsContext(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list units from systemd", err)
	}

	records := make([]query.ServiceRecord, 0, len(units))
	for _, unit := range units {
		if !strings.HasSuffix(unit.Name, ".service") {
			continue
		}
		record := query.ServiceRecord{
			Unit:        unit.Name,
			Description: unit.Description,
			LoadState:   unit.LoadState,
			ActiveState: unit.ActiveState,
			SubState:    unit.SubState,
		}
		if err := l.enrich(ctx, conn, &record); err != nil {
			l.logger.Warn("failed to enrich service details from systemd",
				"unit", unit.Name, "error", err)
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Unit < records[j].Unit
	})
	return records, nil
}

// enrich fills the detail fields from the Unit and Service property
// interfaces.
func (l *UnitLister) enrich(ctx context.Context, conn *sddbus.Conn, record *query.ServiceRecord) error {
	unitProps, err := conn.GetUnitPropertiesContext(ctx, record.Unit)
	if err != nil {
		return err
	}
	record.UnitFileState = stringProperty(unitProps, "UnitFileState")
	if usec, ok := uint64Property(unitProps, "ActiveEnterTimestamp"); ok && usec > 0 {
		record.SinceUTC = query.FormatUTC(time.UnixMicro(int64(usec)))
	}

	serviceProps, err := conn.GetUnitTypePropertiesContext(ctx, record.Unit, "Service")
	if err != nil {
		return err
	}
	if pid, ok := uint32Property(serviceProps, "MainPID"); ok && pid > 0 {
		record.MainPID = pid
	}
	if status, ok := int32Property(serviceProps, "ExecMainStatus"); ok {
		record.ExecMainStatus = &status
	}
	record.Result = stringProperty(serviceProps, "Result")
	return nil
}

func stringProperty(props map[string]interface{}, name string) string {
	if value, ok := props[name].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func uint64Property(props map[string]interface{}, name string) (uint64, bool) {
	value, ok := props[name].(uint64)
	return value, ok
}

func uint32Property(props map[string]interface{}, name string) (uint32, bool) {
	value, ok := props[name].(uint32)
	return value, ok
}

func int32Property(props map[string]interface{}, name string) (int32, bool) {
	value, ok := props[name].(int32)
	return value, ok
}
