package transmit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dxwifi-firmware/pkg/config"
	"dxwifi-firmware/pkg/storage"
)

type fakeTx struct {
	failOn map[string]bool
	panic  map[string]bool
	sent   []string
	pa     []bool
}

func (f *fakeTx) Transmit(ctx context.Context, path string, enablePA bool) error {
	name := filepath.Base(path)
	f.sent = append(f.sent, name)
	f.pa = append(f.pa, enablePA)
	if f.panic[name] {
		panic("tx segfault")
	}
	if f.failOn[name] {
		return fmt.Errorf("tx exited 1 for %s", name)
	}
	return nil
}

type fakeMonitor struct {
	err   error
	calls int
}

func (m *fakeMonitor) EnsureMonitor(ctx context.Context) error {
	m.calls++
	return m.err
}

type fixture struct {
	dir     string
	tx      *fakeTx
	monitor *fakeMonitor
	cfg     *config.Config
	history *storage.Storage
	orch    *Orchestrator
}

func newFixture(t *testing.T, files ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "frames")
	os.MkdirAll(dir, 0755)
	for _, name := range files {
		os.WriteFile(filepath.Join(dir, name), []byte(name), 0644)
	}

	cfg, err := config.Open(filepath.Join(root, "config.json"))
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		dir:     dir,
		tx:      &fakeTx{failOn: map[string]bool{}, panic: map[string]bool{}},
		monitor: &fakeMonitor{},
		cfg:     cfg,
		history: storage.New(filepath.Join(root, "history.json")),
	}
	f.orch = NewOrchestrator(f.tx, f.monitor, cfg, f.history, Options{
		OutputDir: dir,
		TestImage: filepath.Join(root, "test-image.jpeg"),
	})
	return f
}

func TestRunAllSucceed(t *testing.T) {
	f := newFixture(t, "c.jpeg", "a.jpeg", "b.jpeg")

	res := f.orch.Run(context.Background(), Request{EnablePA: true})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Attempted != 3 || res.Failed != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	want := []string{"a.jpeg", "b.jpeg", "c.jpeg"}
	if strings.Join(f.tx.sent, ",") != strings.Join(want, ",") {
		t.Errorf("expected order %v, got %v", want, f.tx.sent)
	}
	for _, pa := range f.tx.pa {
		if !pa {
			t.Error("expected PA enabled for every file")
		}
	}
	if n := f.cfg.GetInt(config.KeyTxCount, -1); n != 3 {
		t.Errorf("expected counter 3, got %d", n)
	}
	if f.monitor.calls != 1 {
		t.Errorf("monitor should be checked once per pass, got %d", f.monitor.calls)
	}
}

func TestRunFailureDoesNotSkipRemainingFiles(t *testing.T) {
	names := []string{"1.jpeg", "2.jpeg", "3.jpeg", "4.jpeg", "5.jpeg"}

	for k := range names {
		t.Run(fmt.Sprintf("fail file %d", k+1), func(t *testing.T) {
			f := newFixture(t, names...)
			f.tx.failOn[names[k]] = true

			res := f.orch.Run(context.Background(), Request{})
			if res.Attempted != len(names) {
				t.Errorf("expected %d attempts, got %d", len(names), res.Attempted)
			}
			if len(f.tx.sent) != len(names) {
				t.Errorf("expected every file sent, got %v", f.tx.sent)
			}
			if res.Failed != 1 || res.Err == nil {
				t.Errorf("expected one failure reported, got %+v", res)
			}
			if n := f.cfg.GetInt(config.KeyTxCount, -1); n != len(names) {
				t.Errorf("counter should count attempts: expected %d, got %d", len(names), n)
			}
		})
	}
}

func TestRunCounterAccumulatesAcrossPasses(t *testing.T) {
	f := newFixture(t, "a.jpeg", "b.jpeg")
	f.cfg.SetKey(config.KeyTxCount, 10)

	f.orch.Run(context.Background(), Request{})

	if n := f.cfg.GetInt(config.KeyTxCount, -1); n != 12 {
		t.Errorf("expected 12, got %d", n)
	}
}

func TestRunPanicIsolatedToOneFile(t *testing.T) {
	f := newFixture(t, "a.jpeg", "b.jpeg", "c.jpeg")
	f.tx.panic["b.jpeg"] = true

	res := f.orch.Run(context.Background(), Request{})
	if res.Attempted != 3 || res.Failed != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if f.tx.sent[2] != "c.jpeg" {
		t.Errorf("file after the panic was not attempted: %v", f.tx.sent)
	}
}

func TestRunMonitorFailureSendsNothing(t *testing.T) {
	f := newFixture(t, "a.jpeg")
	f.monitor.err = errors.New("mon0 missing")

	res := f.orch.Run(context.Background(), Request{})
	if res.Err == nil {
		t.Fatal("expected error")
	}
	if len(f.tx.sent) != 0 || res.Attempted != 0 {
		t.Errorf("nothing should be sent, got %v", f.tx.sent)
	}
	if n := f.cfg.GetInt(config.KeyTxCount, -1); n != 0 {
		t.Errorf("counter should not move, got %d", n)
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	f := newFixture(t)

	res := f.orch.Run(context.Background(), Request{})
	if res.Err != nil || res.Attempted != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if f.monitor.calls != 0 {
		t.Error("monitor should not be touched without files")
	}
}

func TestRunTestImage(t *testing.T) {
	f := newFixture(t, "a.jpeg", "b.jpeg")

	res := f.orch.Run(context.Background(), Request{TestImage: true})
	if res.Attempted != 1 {
		t.Fatalf("expected a single attempt, got %+v", res)
	}
	if f.tx.sent[0] != "test-image.jpeg" {
		t.Errorf("expected test asset, got %v", f.tx.sent)
	}
}

func TestRunCancelledContextStops(t *testing.T) {
	f := newFixture(t, "a.jpeg", "b.jpeg")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.orch.Run(ctx, Request{})
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", res.Err)
	}
	if len(f.tx.sent) != 0 {
		t.Errorf("nothing should be sent after cancel, got %v", f.tx.sent)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	f := newFixture(t, "a.jpeg", "b.jpeg")
	f.tx.failOn["b.jpeg"] = true

	res := f.orch.Run(context.Background(), Request{})

	attempts, err := f.history.GetHistory()
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	// newest first
	if attempts[0].File != "b.jpeg" || attempts[0].Success || attempts[0].Error == "" {
		t.Errorf("unexpected failed attempt %+v", attempts[0])
	}
	if attempts[1].File != "a.jpeg" || !attempts[1].Success || attempts[1].Digest == "" {
		t.Errorf("unexpected successful attempt %+v", attempts[1])
	}
	if attempts[0].PassID != res.PassID || res.PassID == "" {
		t.Errorf("pass id mismatch: %q vs %q", attempts[0].PassID, res.PassID)
	}
}

func TestRequestFromConfig(t *testing.T) {
	f := newFixture(t)
	f.cfg.SetKey(config.KeyStaticTestImage, true)

	req := RequestFromConfig(f.cfg)
	if !req.TestImage || req.EnablePA {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestTxArgs(t *testing.T) {
	tx := NewTxTransmitter(TxOptions{Binary: "tx", Redundancy: 2})
	args := tx.args("/frames/a.jpeg", true)

	joined := strings.Join(args, " ")
	for _, want := range []string{"--coderate=0.75", "--dev=mon0", "--enable-pa", "--redundancy=2", "--timeout=-1", "--ordered", "--no-listen"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "/frames/a.jpeg" {
		t.Errorf("path must be the last argument, got %q", args[len(args)-1])
	}

	noPA := strings.Join(tx.args("/frames/a.jpeg", false), " ")
	if strings.Contains(noPA, "--enable-pa") {
		t.Error("--enable-pa should be omitted")
	}
}

func TestTxTransmitterMissingBinary(t *testing.T) {
	tx := NewTxTransmitter(TxOptions{Binary: filepath.Join(t.TempDir(), "tx")})
	if err := tx.Transmit(context.Background(), "a.jpeg", false); err == nil {
		t.Error("expected error for missing binary")
	}
}
