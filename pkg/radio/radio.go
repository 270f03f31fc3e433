// Package radio reconfigures the ath9k_htc link: the firmware-selected bit
// rate and the monitor-mode interface that tx writes to.
//
// Switching the bit rate is not transactional. The firmware link is repointed
// first and the driver is then unloaded and loaded again; a failure between
// those steps leaves the driver absent until the next successful switch or a
// manual modprobe. There is no rollback.
package radio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dxwifi-firmware/pkg/config"
	"dxwifi-firmware/pkg/globals"
)

// ARPHRD_IEEE80211_RADIOTAP, as reported by /sys/class/net/<iface>/type
const monitorLinkType = "803"

var (
	ErrUnsupportedRate = errors.New("unsupported bit rate")
	ErrNoMonitor       = errors.New("monitor interface unavailable")
)

// SupportedRates is the fixed set of firmware blobs shipped for the radio
var SupportedRates = []string{"1M", "2M", "5.5M", "11M", "6M", "9M", "12M", "18M", "24M", "36M", "48M", "54M"}

// System is the set of host operations the reconfigurator relies on
type System interface {
	Readlink(path string) (string, error)
	// Relink points link at target, replacing any existing link
	Relink(target, link string) error
	UnloadModule(ctx context.Context, name string) error
	LoadModule(ctx context.Context, name string) error
	Sleep(ctx context.Context, d time.Duration) error
	InterfaceType(name string) (string, error)
}

// Bringup (re)creates the monitor interface
type Bringup interface {
	Bringup(ctx context.Context) error
}

type Options struct {
	FirmwareDir string
	Interface   string
	Module      string
	SettleDelay time.Duration
}

type Reconfigurator struct {
	sys     System
	bringup Bringup
	opts    Options
	mu      sync.Mutex
}

var instance *Reconfigurator
var once sync.Once

func Init(sys System, bringup Bringup, opts Options) {
	once.Do(func() {
		instance = New(sys, bringup, opts)
	})
}

func Get() *Reconfigurator {
	if instance == nil {
		panic("radio not initialized - call Init() first")
	}
	return instance
}

func New(sys System, bringup Bringup, opts Options) *Reconfigurator {
	if opts.FirmwareDir == "" {
		opts.FirmwareDir = globals.FirmwareDir
	}
	if opts.Interface == "" {
		opts.Interface = globals.MonitorInterface
	}
	if opts.Module == "" {
		opts.Module = globals.RadioModule
	}
	return &Reconfigurator{sys: sys, bringup: bringup, opts: opts}
}

// IsSupported reports whether rate has a firmware blob
func IsSupported(rate string) bool {
	for _, r := range SupportedRates {
		if r == rate {
			return true
		}
	}
	return false
}

func (r *Reconfigurator) linkPath() string {
	return filepath.Join(r.opts.FirmwareDir, globals.FirmwareLinkName)
}

// CurrentBitRate returns the rate the firmware link points at
func (r *Reconfigurator) CurrentBitRate() (string, error) {
	target, err := r.sys.Readlink(r.linkPath())
	if err != nil {
		return "", fmt.Errorf("failed to read firmware link: %w", err)
	}
	return strings.TrimSuffix(filepath.Base(target), ".fw"), nil
}

// RateStore mirrors the linked rate
type RateStore interface {
	GetString(key string, def string) string
	SetKey(key string, value any) error
}

// SyncConfig copies the rate the firmware link points at into store, so the
// stored bit_rate never disagrees with the link. An unreadable link or one
// pointing outside the allow-list leaves store untouched.
func (r *Reconfigurator) SyncConfig(store RateStore) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rate, err := r.CurrentBitRate()
	if err != nil {
		return "", err
	}
	if !IsSupported(rate) {
		return "", fmt.Errorf("%w: firmware link points at %q", ErrUnsupportedRate, rate)
	}

	if store.GetString(config.KeyBitRate, "") != rate {
		if err := store.SetKey(config.KeyBitRate, rate); err != nil {
			return rate, fmt.Errorf("failed to store bit rate: %w", err)
		}
		log.Printf("Stored bit rate set to linked %s", rate)
	}
	return rate, nil
}

// SwitchBitRate repoints the firmware link at <rate>.fw and reloads the
// driver. Requesting the rate that is already linked does nothing.
func (r *Reconfigurator) SwitchBitRate(ctx context.Context, rate string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !IsSupported(rate) {
		return fmt.Errorf("%w: %q", ErrUnsupportedRate, rate)
	}

	current, err := r.CurrentBitRate()
	if err != nil {
		log.Printf("Firmware link unreadable, relinking: %v", err)
	} else if current == rate {
		log.Printf("Bit rate already %s", rate)
		return nil
	}

	log.Printf("Switching bit rate: %s -> %s", current, rate)

	if err := r.sys.Relink(rate+".fw", r.linkPath()); err != nil {
		return fmt.Errorf("failed to relink firmware: %w", err)
	}

	// From here until LoadModule succeeds the radio may have no driver
	if err := r.sys.UnloadModule(ctx, r.opts.Module); err != nil {
		return fmt.Errorf("failed to unload %s: %w", r.opts.Module, err)
	}
	if err := r.sys.LoadModule(ctx, r.opts.Module); err != nil {
		return fmt.Errorf("failed to load %s: %w", r.opts.Module, err)
	}

	if err := r.sys.Sleep(ctx, r.opts.SettleDelay); err != nil {
		return err
	}

	return r.ensureMonitor(ctx)
}

// EnsureMonitor brings the monitor interface up unless it already exists
// with the radiotap link type
func (r *Reconfigurator) EnsureMonitor(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureMonitor(ctx)
}

func (r *Reconfigurator) ensureMonitor(ctx context.Context) error {
	if r.monitorValid() {
		return nil
	}

	log.Printf("Monitor interface %s not ready, running bring-up", r.opts.Interface)
	if err := r.bringup.Bringup(ctx); err != nil {
		return fmt.Errorf("%w: bring-up failed: %v", ErrNoMonitor, err)
	}

	if !r.monitorValid() {
		return fmt.Errorf("%w: %s still not in monitor mode", ErrNoMonitor, r.opts.Interface)
	}

	log.Printf("Monitor interface %s ready", r.opts.Interface)
	return nil
}

func (r *Reconfigurator) monitorValid() bool {
	typ, err := r.sys.InterfaceType(r.opts.Interface)
	if err != nil {
		return false
	}
	return typ == monitorLinkType
}
