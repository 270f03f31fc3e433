package camera

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"dxwifi-firmware/pkg/config"
	"dxwifi-firmware/pkg/storage"
	"dxwifi-firmware/pkg/worker"
)

// Params are the capture settings read from the config boundary
type Params struct {
	Count  int
	Delay  time.Duration
	Tar    bool
	Width  int
	Height int
	FPS    int
}

// Capturer produces image files in dir
type Capturer interface {
	Capture(ctx context.Context, p Params, dir string) error
}

// ParamsFromConfig reads the capture keys, falling back to VGA at 10 fps
func ParamsFromConfig(c *config.Config) Params {
	return Params{
		Count:  c.GetInt(config.KeyCaptureCount, 1),
		Delay:  time.Duration(c.GetFloat(config.KeyCaptureDelay, 0) * float64(time.Second)),
		Tar:    c.GetBool(config.KeyCaptureTar, false),
		Width:  c.GetInt(config.KeyXResolution, 640),
		Height: c.GetInt(config.KeyYResolution, 480),
		FPS:    c.GetInt(config.KeyFPS, 10),
	}
}

type Options struct {
	OutputDir string
	MinFree   uint64        // bytes; 0 skips the check
	Timeout   time.Duration // 0 waits forever
}

// Orchestrator drives one capture batch into the output directory
type Orchestrator struct {
	capturer  Capturer
	opts      Options
	freeSpace func(path string) (uint64, error)
}

func NewOrchestrator(capturer Capturer, opts Options) *Orchestrator {
	return &Orchestrator{
		capturer:  capturer,
		opts:      opts,
		freeSpace: storage.FreeSpace,
	}
}

// Run captures one batch. Files written before a failure are left on disk.
func (o *Orchestrator) Run(ctx context.Context, p Params) error {
	if err := os.MkdirAll(o.opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if o.opts.MinFree > 0 {
		free, err := o.freeSpace(o.opts.OutputDir)
		if err != nil {
			return err
		}
		if free < o.opts.MinFree {
			return fmt.Errorf("insufficient space for capture: %d bytes free, need %d", free, o.opts.MinFree)
		}
	}

	log.Printf("Starting capture: %d images at %dx%d, delay %s", p.Count, p.Width, p.Height, p.Delay)

	err := worker.Run(ctx, o.opts.Timeout, func(ctx context.Context) error {
		return o.capturer.Capture(ctx, p, o.opts.OutputDir)
	})
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	log.Println("Capture complete")
	return nil
}
