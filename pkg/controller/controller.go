// Package controller owns the payload mode. A single goroutine runs the poll
// loop: it takes the latest requested mode, checks it against the transition
// table, runs the matching orchestrator to completion and publishes the mode
// it settles in.
//
// Requests arrive through single-slot mailboxes; a newer request replaces an
// unconsumed older one. Only the loop goroutine reads or writes the current
// mode. Other goroutines see the last published value through Mode().
package controller

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"dxwifi-firmware/pkg/camera"
	"dxwifi-firmware/pkg/config"
	"dxwifi-firmware/pkg/mode"
	"dxwifi-firmware/pkg/radio"
	"dxwifi-firmware/pkg/transmit"
	"dxwifi-firmware/pkg/worker"
)

const defaultPollInterval = 100 * time.Millisecond

type Capturer interface {
	Run(ctx context.Context, p camera.Params) error
}

type Transmitter interface {
	Run(ctx context.Context, req transmit.Request) transmit.Result
}

type RateSwitcher interface {
	SwitchBitRate(ctx context.Context, rate string) error
}

// Publisher receives every settled mode. It is called from the loop
// goroutine and must not block for long.
type Publisher interface {
	PublishMode(m mode.Mode)
}

type Deps struct {
	Config    *config.Config
	Capture   Capturer
	Transmit  Transmitter
	Purge     func(dir string) (int, error)
	Radio     RateSwitcher
	Publisher Publisher
}

type Options struct {
	OutputDir    string
	PollInterval time.Duration
}

type Controller struct {
	deps Deps
	opts Options

	current   mode.Mode // loop goroutine only
	published atomic.Int32

	mu          sync.Mutex
	pendingMode *mode.Mode
	pendingRate *string
	wake        chan struct{}

	stopped atomic.Bool
}

func New(deps Deps, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	c := &Controller{
		deps:    deps,
		opts:    opts,
		current: mode.Boot,
		wake:    make(chan struct{}, 1),
	}
	c.published.Store(int32(mode.Boot))
	return c
}

// Mode returns the last published mode
func (c *Controller) Mode() mode.Mode {
	return mode.Mode(c.published.Load())
}

// RequestMode queues m for the next iteration, replacing any request that
// has not been consumed yet
func (c *Controller) RequestMode(m mode.Mode) {
	c.mu.Lock()
	c.pendingMode = &m
	c.mu.Unlock()
	c.signal()
}

// RequestBitRate queues a bit-rate switch; last write wins
func (c *Controller) RequestBitRate(rate string) {
	c.mu.Lock()
	c.pendingRate = &rate
	c.mu.Unlock()
	c.signal()
}

// Shutdown makes the loop publish Off and return at its next iteration
func (c *Controller) Shutdown() {
	c.stopped.Store(true)
	c.signal()
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) takeMode() (mode.Mode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingMode == nil {
		return 0, false
	}
	m := *c.pendingMode
	c.pendingMode = nil
	return m, true
}

func (c *Controller) takeRate() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingRate == nil {
		return "", false
	}
	r := *c.pendingRate
	c.pendingRate = nil
	return r, true
}

// Run drives the loop until Shutdown is called or ctx is cancelled
func (c *Controller) Run(ctx context.Context) error {
	log.Printf("Controller started in %s", c.current)

	for {
		if c.stopped.Load() || ctx.Err() != nil {
			c.current = mode.Off
			c.publish()
			log.Println("Controller stopped")
			return nil
		}

		if idle := c.step(ctx); idle {
			c.sleep(ctx)
		}
	}
}

func (c *Controller) sleep(ctx context.Context) {
	t := time.NewTimer(c.opts.PollInterval)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-c.wake:
	case <-t.C:
	}
}

// step runs one iteration and reports whether it was an idle tick
func (c *Controller) step(ctx context.Context) bool {
	c.publish()

	if req, ok := c.takeMode(); ok {
		c.adopt(req)
		c.publish()
	}

	idle := false
	switch c.current {
	case mode.Boot:
		log.Println("Boot complete")
		c.current = mode.Standby
	case mode.Film:
		c.current = c.capture(ctx)
	case mode.Transmit:
		c.current = c.transmit(ctx)
	case mode.Purge:
		c.current = c.purge()
	default:
		if rate, ok := c.takeRate(); ok {
			c.switchBitRate(ctx, rate)
		}
		idle = true
	}

	c.publish()
	return idle
}

func (c *Controller) adopt(req mode.Mode) {
	switch {
	case req == c.current:
		log.Printf("Currently in %s", c.current)
	case mode.IsLegal(c.current, req):
		log.Printf("Changing mode: %s -> %s", c.current, req)
		c.current = req
	default:
		log.Printf("Invalid mode change: %s -> %s", c.current, req)
	}
}

func (c *Controller) publish() {
	c.published.Store(int32(c.current))
	if c.deps.Publisher != nil {
		c.deps.Publisher.PublishMode(c.current)
	}
}

func (c *Controller) capture(ctx context.Context) mode.Mode {
	p := camera.ParamsFromConfig(c.deps.Config)

	err := worker.Run(ctx, 0, func(ctx context.Context) error {
		return c.deps.Capture.Run(ctx, p)
	})
	if err != nil {
		log.Printf("Something went wrong with camera capture: %v", err)
		return mode.Error
	}
	return mode.Standby
}

func (c *Controller) transmit(ctx context.Context) mode.Mode {
	req := transmit.RequestFromConfig(c.deps.Config)

	var res transmit.Result
	err := worker.Run(ctx, 0, func(ctx context.Context) error {
		res = c.deps.Transmit.Run(ctx, req)
		return res.Err
	})
	if err != nil {
		log.Printf("Transmission pass %s ended with errors: %v", res.PassID, err)
		return mode.Error
	}
	return mode.Standby
}

func (c *Controller) purge() mode.Mode {
	err := worker.Run(context.Background(), 0, func(context.Context) error {
		_, err := c.deps.Purge(c.opts.OutputDir)
		return err
	})
	if err != nil {
		log.Printf("Purge failed: %v", err)
		return mode.Error
	}
	return mode.Standby
}

// switchBitRate applies a queued rate. An unsupported rate leaves the mode
// alone; a failed reload may leave the radio without a driver, so it
// settles in Error.
func (c *Controller) switchBitRate(ctx context.Context, rate string) {
	err := worker.Run(ctx, 0, func(ctx context.Context) error {
		return c.deps.Radio.SwitchBitRate(ctx, rate)
	})
	switch {
	case err == nil:
		if err := c.deps.Config.SetKey(config.KeyBitRate, rate); err != nil {
			log.Printf("Failed to persist bit rate: %v", err)
		}
	case errors.Is(err, radio.ErrUnsupportedRate):
		log.Printf("Bit rate change skipped: %v", err)
	default:
		log.Printf("Bit rate change to %s failed: %v", rate, err)
		c.current = mode.Error
	}
}
