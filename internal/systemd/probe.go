package systemd

import (
	"context"
	"fmt"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/util"
)

// Probe verifies that systemd is running and the D-Bus manager answers a
// unit listing. Called once at startup; a failure is reported to the
// caller, who decides whether to continue degraded.
func Probe(ctx context.Context) error {
	if !util.IsRunningSystemd() {
		return fmt.Errorf("systemd is not running on this host")
	}

	conn, err := sddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to system dbus: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ListUnitsContext(ctx); err != nil {
		return fmt.Errorf("failed to query systemd manager: %w", err)
	}
	return nil
}
