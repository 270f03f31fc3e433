package radio

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	systemdBus     = "org.freedesktop.systemd1"
	systemdPath    = "/org/freedesktop/systemd1"
	systemdManager = "org.freedesktop.systemd1.Manager"
)

// ScriptBringup runs the interface bring-up script shipped with tx
type ScriptBringup struct {
	Path string
	Args []string
}

func (s ScriptBringup) Bringup(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.Path, s.Args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (output: %s)", s.Path, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// SystemdBringup restarts a unit that owns the monitor interface and waits
// for the restart job to finish
type SystemdBringup struct {
	Unit string
}

func (s SystemdBringup) Bringup(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(systemdManager),
		dbus.WithMatchMember("JobRemoved"),
	); err != nil {
		return fmt.Errorf("match JobRemoved: %w", err)
	}
	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	obj := conn.Object(systemdBus, dbus.ObjectPath(systemdPath))
	if call := obj.CallWithContext(ctx, systemdManager+".Subscribe", 0); call.Err != nil {
		return fmt.Errorf("subscribe to systemd: %w", call.Err)
	}

	var job dbus.ObjectPath
	if err := obj.CallWithContext(ctx, systemdManager+".RestartUnit", 0, s.Unit, "replace").Store(&job); err != nil {
		return fmt.Errorf("restart %s: %w", s.Unit, err)
	}
	log.Printf("Restarting %s (job %s)", s.Unit, job)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("system bus closed while waiting for %s", s.Unit)
			}
			result, done := jobResult(sig, job)
			if !done {
				continue
			}
			if result != "done" {
				return fmt.Errorf("restart %s finished with %q", s.Unit, result)
			}
			return nil
		}
	}
}

// jobResult extracts the result of job from a JobRemoved signal.
// Body: [id uint32, job ObjectPath, unit string, result string]
func jobResult(sig *dbus.Signal, job dbus.ObjectPath) (string, bool) {
	if sig.Name != systemdManager+".JobRemoved" || len(sig.Body) < 4 {
		return "", false
	}
	path, ok := sig.Body[1].(dbus.ObjectPath)
	if !ok || path != job {
		return "", false
	}
	result, ok := sig.Body[3].(string)
	if !ok {
		return "", false
	}
	return result, true
}
