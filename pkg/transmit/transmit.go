// Package transmit downlinks captured files one at a time through the tx
// binary.
//
// Every file runs in its own tx process which is joined before the next one
// starts, so a crash inside tx costs one file and never the controller. A
// failed file does not stop the pass; the transmitted-file counter moves once
// per attempt whatever the outcome.
package transmit

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"dxwifi-firmware/pkg/config"
	"dxwifi-firmware/pkg/storage"
	"dxwifi-firmware/pkg/worker"

	"github.com/gofrs/uuid"
)

// Transmitter sends a single file over the RF link
type Transmitter interface {
	Transmit(ctx context.Context, path string, enablePA bool) error
}

// Monitor establishes the monitor-mode interface tx writes to
type Monitor interface {
	EnsureMonitor(ctx context.Context) error
}

// Counter persists the transmitted-file count
type Counter interface {
	Increment(key string) (int, error)
}

// Recorder keeps the per-attempt history
type Recorder interface {
	RecordAttempt(a storage.Attempt) error
}

type Request struct {
	TestImage bool // send only the static test asset
	EnablePA  bool
}

// RequestFromConfig reads the transmission keys
func RequestFromConfig(c *config.Config) Request {
	return Request{
		TestImage: c.GetBool(config.KeyStaticTestImage, false),
		EnablePA:  c.GetBool(config.KeyEnablePA, false),
	}
}

type Result struct {
	PassID    string
	Attempted int
	Failed    int
	Err       error // set when the pass could not start or any file failed
}

type Options struct {
	OutputDir string
	TestImage string
	Timeout   time.Duration // per file; 0 waits forever
}

type Orchestrator struct {
	tx      Transmitter
	monitor Monitor
	counter Counter
	history Recorder
	opts    Options
}

func NewOrchestrator(tx Transmitter, monitor Monitor, counter Counter, history Recorder, opts Options) *Orchestrator {
	return &Orchestrator{
		tx:      tx,
		monitor: monitor,
		counter: counter,
		history: history,
		opts:    opts,
	}
}

func (o *Orchestrator) files(req Request) ([]string, error) {
	if req.TestImage {
		return []string{o.opts.TestImage}, nil
	}
	return storage.ListPending(o.opts.OutputDir)
}

// Run transmits the test asset or every pending file in lexicographic order
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	var res Result
	if id, err := uuid.NewV4(); err == nil {
		res.PassID = id.String()
	}

	files, err := o.files(req)
	if err != nil {
		res.Err = err
		return res
	}
	if len(files) == 0 {
		log.Println("No files to transmit")
		return res
	}

	if err := o.monitor.EnsureMonitor(ctx); err != nil {
		res.Err = fmt.Errorf("cannot transmit: %w", err)
		return res
	}

	for _, file := range files {
		if ctx.Err() != nil {
			log.Printf("Transmission interrupted after %d of %d files", res.Attempted, len(files))
			res.Err = ctx.Err()
			return res
		}

		o.transmitOne(ctx, res.PassID, file, req.EnablePA, &res)
	}

	log.Printf("Transmission complete: %d of %d files sent", res.Attempted-res.Failed, res.Attempted)
	if res.Failed > 0 {
		res.Err = fmt.Errorf("%d of %d files failed to transmit", res.Failed, res.Attempted)
	}
	return res
}

func (o *Orchestrator) transmitOne(ctx context.Context, passID, file string, enablePA bool, res *Result) {
	attempt := storage.Attempt{
		PassID: passID,
		File:   filepath.Base(file),
	}
	if digest, size, err := storage.Digest(file); err == nil {
		attempt.Digest = digest
		attempt.Size = size
	}

	log.Printf("Transmitting %s...", file)
	err := worker.Run(ctx, o.opts.Timeout, func(ctx context.Context) error {
		return o.tx.Transmit(ctx, file, enablePA)
	})

	res.Attempted++
	attempt.Timestamp = time.Now().UTC()
	if err != nil {
		log.Printf("Unable to transmit %s due to %v", file, err)
		res.Failed++
		attempt.Error = err.Error()
	} else {
		attempt.Success = true
	}

	if _, err := o.counter.Increment(config.KeyTxCount); err != nil {
		log.Printf("Failed to update transmission counter: %v", err)
	}
	if o.history != nil {
		if err := o.history.RecordAttempt(attempt); err != nil {
			log.Printf("Failed to record attempt for %s: %v", attempt.File, err)
		}
	}
}
