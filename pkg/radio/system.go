package radio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"dxwifi-firmware/pkg/globals"
)

// HostSystem performs the reconfiguration on the running host
type HostSystem struct{}

func (HostSystem) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

// Relink creates the new link beside the old one and renames it over,
// so readers see either the old or the new target.
func (HostSystem) Relink(target, link string) error {
	tmp := filepath.Join(filepath.Dir(link), "."+filepath.Base(link)+".new")
	os.Remove(tmp)

	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (HostSystem) UnloadModule(ctx context.Context, name string) error {
	return modprobe(ctx, "-r", name)
}

func (HostSystem) LoadModule(ctx context.Context, name string) error {
	return modprobe(ctx, name)
}

func (HostSystem) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (HostSystem) InterfaceType(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(globals.NetClassDir, name, "type"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func modprobe(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "modprobe", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("modprobe %s: %w (output: %s)", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
