package main

import (
	"context"
	"embed"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dxwifi-firmware/pkg/camera"
	"dxwifi-firmware/pkg/config"
	"dxwifi-firmware/pkg/controller"
	"dxwifi-firmware/pkg/globals"
	"dxwifi-firmware/pkg/logger"
	"dxwifi-firmware/pkg/radio"
	"dxwifi-firmware/pkg/relaycomm"
	"dxwifi-firmware/pkg/storage"
	"dxwifi-firmware/pkg/temperature"
	"dxwifi-firmware/pkg/transmit"

	"github.com/spf13/pflag"
)

//go:embed assets/*
var assets embed.FS

const shutdownTimeout = 30 * time.Second

func main() {
	settingsPath := pflag.StringP("config", "c", globals.SettingsPath, "Static settings file (YAML).")
	mockHW := pflag.BoolP("mock-hw", "m", false, "Use a mock ADC instead of the I2C thermistor.")
	relayURL := pflag.StringP("relay", "r", "", "Telemetry relay URL, overrides the stored relayUrl.")
	pflag.Parse()

	settings, err := config.LoadSettings(*settingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	settings.Apply()

	// Logger next so everything after this lands in the ring and log file
	logger.Init()

	log.Printf("Starting dxwifi %s", globals.FirmwareVersion)

	if err := config.Init(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	cfg := config.Get()

	if err := cfg.SeedDefaults(settings.Defaults()); err != nil {
		log.Printf("Failed to seed config defaults: %v", err)
	}
	if *relayURL != "" {
		if err := cfg.SetKey(config.KeyRelayURL, *relayURL); err != nil {
			log.Printf("Failed to store relay URL: %v", err)
		}
	}

	// Extract embedded assets to the data partition
	if err := extractAssets(); err != nil {
		log.Fatalf("Failed to extract assets: %v", err)
	}

	if err := storage.Init(); err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	temperature.Init(*mockHW)

	var bringup radio.Bringup = radio.ScriptBringup{Path: globals.BringupScript}
	if settings.Radio.BringupUnit != "" {
		bringup = radio.SystemdBringup{Unit: settings.Radio.BringupUnit}
	}
	radio.Init(radio.HostSystem{}, bringup, radio.Options{SettleDelay: settings.SettleDelay()})

	// The link is authoritative over the seeded bit_rate
	if rate, err := radio.Get().SyncConfig(cfg); err != nil {
		log.Printf("Failed to sync bit rate from firmware link: %v", err)
	} else {
		log.Printf("Radio firmware at %s", rate)
	}

	capture := camera.NewOrchestrator(
		camera.FFmpegCapturer{Device: globals.CameraDevice},
		camera.Options{
			OutputDir: globals.OutputDir,
			MinFree:   uint64(settings.Capture.MinFreeMB) << 20,
			Timeout:   settings.CaptureTimeout(),
		},
	)

	tx := transmit.NewTxTransmitter(transmit.TxOptions{
		CodeRate:    settings.Transmit.CodeRate,
		Redundancy:  settings.Transmit.Redundancy,
		Retransmit:  settings.Transmit.Retransmit,
		FileDelayMs: settings.Transmit.FileDelayMs,
	})
	downlink := transmit.NewOrchestrator(tx, radio.Get(), cfg, storage.Get(), transmit.Options{
		OutputDir: globals.OutputDir,
		TestImage: globals.TestImagePath,
		Timeout:   settings.TransmitTimeout(),
	})

	relaycomm.Init()
	relay := relaycomm.Get()

	ctrl := controller.New(controller.Deps{
		Config:    cfg,
		Capture:   capture,
		Transmit:  downlink,
		Purge:     storage.Purge,
		Radio:     radio.Get(),
		Publisher: relay,
	}, controller.Options{
		OutputDir:    globals.OutputDir,
		PollInterval: settings.PollInterval(),
	})

	// Start relay communication if configured
	if url := cfg.GetString(config.KeyRelayURL, ""); url != "" {
		relay.RegisterHandlers(relaycomm.Deps{
			Controller:  ctrl,
			Config:      cfg,
			History:     storage.Get().GetHistory,
			Temperature: temperature.Get().Celsius,
			BitRate:     radio.Get().CurrentBitRate,
			DataDir:     globals.DataDir,
			OutputDir:   globals.OutputDir,
		})
		if err := relay.Start(cfg); err != nil {
			log.Printf("Failed to start relay comm: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctrl.Run(ctx); err != nil {
			log.Printf("Controller exited: %v", err)
		}
	}()

	// Wait for interrupt signal, keep everything alive until then
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down")
	ctrl.Shutdown()

	// The loop finishes the running orchestrator before it sees Shutdown;
	// give up and cancel it after shutdownTimeout
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Println("Controller busy, cancelling")
		cancel()
		<-done
	}
	cancel()
	relay.Stop()
}

func extractAssets() error {
	entries, err := assets.ReadDir("assets")
	if err != nil {
		return fmt.Errorf("failed to read assets: %w", err)
	}

	if err := os.MkdirAll(globals.AssetsPath, 0755); err != nil {
		return fmt.Errorf("failed to create assets dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := assets.ReadFile("assets/" + entry.Name())
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(globals.AssetsPath, entry.Name()), data, 0644); err != nil {
			return err
		}
	}

	return nil
}
