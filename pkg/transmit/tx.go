package transmit

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"dxwifi-firmware/pkg/globals"
)

// TxOptions mirror the tx command line. Zero values fall back to the
// defaults below.
type TxOptions struct {
	Binary       string
	Device       string
	CodeRate     string
	ErrorRate    float64
	PacketLoss   float64
	FileDelayMs  int
	TxDelayMs    int
	PIDFile      string
	Redundancy   int
	Retransmit   int
	TimeoutSec   int // tx's own inactivity timeout, -1 for none
	Filter       string
	WatchTimeout int
	Address      string
	RateMbps     int
}

func (o TxOptions) withDefaults() TxOptions {
	if o.Binary == "" {
		o.Binary = globals.TxBinary
	}
	if o.Device == "" {
		o.Device = globals.MonitorInterface
	}
	if o.CodeRate == "" {
		o.CodeRate = "0.75"
	}
	if o.PIDFile == "" {
		o.PIDFile = "/run/dxwifi/tx.pid"
	}
	if o.TimeoutSec == 0 {
		o.TimeoutSec = -1
	}
	if o.Filter == "" {
		o.Filter = "*"
	}
	if o.WatchTimeout == 0 {
		o.WatchTimeout = -1
	}
	if o.Address == "" {
		o.Address = "AA:AA:AA:AA:AA:AA"
	}
	if o.RateMbps == 0 {
		o.RateMbps = 1
	}
	return o
}

// TxTransmitter runs one tx process per file
type TxTransmitter struct {
	opts TxOptions
}

func NewTxTransmitter(opts TxOptions) *TxTransmitter {
	return &TxTransmitter{opts: opts.withDefaults()}
}

func (t *TxTransmitter) args(path string, enablePA bool) []string {
	o := t.opts
	args := []string{
		"--coderate=" + o.CodeRate,
		"--dev=" + o.Device,
		"--error-rate=" + strconv.FormatFloat(o.ErrorRate, 'f', -1, 64),
	}
	if enablePA {
		args = append(args, "--enable-pa")
	}
	args = append(args,
		"--file-delay="+strconv.Itoa(o.FileDelayMs),
		"--packet-loss="+strconv.FormatFloat(o.PacketLoss, 'f', -1, 64),
		"--pid-file="+o.PIDFile,
		"--redundancy="+strconv.Itoa(o.Redundancy),
		"--retransmit="+strconv.Itoa(o.Retransmit),
		"--timeout="+strconv.Itoa(o.TimeoutSec),
		"--delay="+strconv.Itoa(o.TxDelayMs),
		"--filter="+o.Filter,
		"--include-all",
		"--no-listen",
		"--watch-timeout="+strconv.Itoa(o.WatchTimeout),
		"--address="+o.Address,
		"--rate="+strconv.Itoa(o.RateMbps),
		"--ordered",
		"--sequence",
		"--verbose",
		"--syslog",
		path,
	)
	return args
}

func (t *TxTransmitter) Transmit(ctx context.Context, path string, enablePA bool) error {
	cmd := exec.CommandContext(ctx, t.opts.Binary, t.args(path, enablePA)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tx: %w (output: %s)", err, lastLine(output))
	}
	return nil
}

// lastLine keeps error reports short; tx is verbose
func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return lines[len(lines)-1]
}
