package config

import (
	"fmt"
	"os"
	"time"

	"dxwifi-firmware/pkg/globals"

	"gopkg.in/yaml.v2"
)

// Settings are the static, file-based settings of the payload. They are read once
// at start-up; values that operators change in flight live in the key-value store.
type Settings struct {
	Paths      PathSettings       `yaml:"paths"`
	Capture    CaptureSettings    `yaml:"capture"`
	Transmit   TransmitSettings   `yaml:"transmit"`
	Radio      RadioSettings      `yaml:"radio"`
	Controller ControllerSettings `yaml:"controller"`
	Relay      RelaySettings      `yaml:"relay"`
}

type PathSettings struct {
	DataDir       string `yaml:"dataDir"`
	OutputDir     string `yaml:"outputDir"`
	FirmwareDir   string `yaml:"firmwareDir"`
	TestImage     string `yaml:"testImage"` // empty uses the embedded asset
	TxBinary      string `yaml:"txBinary"`
	BringupScript string `yaml:"bringupScript"`
	CameraDevice  string `yaml:"cameraDevice"`
}

type CaptureSettings struct {
	XResolution     int  `yaml:"xResolution"`
	YResolution     int  `yaml:"yResolution"`
	FramesPerSecond int  `yaml:"framesPerSecond"`
	Count           int  `yaml:"count"`
	DelaySec        int  `yaml:"delaySec"`
	Tar             bool `yaml:"tar"`
	MinFreeMB       int  `yaml:"minFreeMb"`
	TimeoutSec      int  `yaml:"timeoutSec"` // 0 = wait forever
}

type TransmitSettings struct {
	BitRate         string `yaml:"bitRate"`
	EnablePA        bool   `yaml:"enablePa"`
	StaticTestImage bool   `yaml:"staticTestImage"`
	CodeRate        string `yaml:"codeRate"`
	Redundancy      int    `yaml:"redundancy"`
	Retransmit      int    `yaml:"retransmit"`
	FileDelayMs     int    `yaml:"fileDelayMs"`
	TimeoutSec      int    `yaml:"timeoutSec"` // 0 = wait forever
}

type RadioSettings struct {
	SettleSec   int    `yaml:"settleSec"`
	BringupUnit string `yaml:"bringupUnit"` // systemd unit; empty runs the script
}

type ControllerSettings struct {
	PollMs int `yaml:"pollMs"`
}

type RelaySettings struct {
	URL string `yaml:"url"`
}

// DefaultSettings returns the settings used when no file is present
func DefaultSettings() *Settings {
	return &Settings{
		Paths: PathSettings{
			DataDir:       globals.DataDir,
			OutputDir:     globals.OutputDir,
			FirmwareDir:   globals.FirmwareDir,
			TxBinary:      globals.TxBinary,
			BringupScript: globals.BringupScript,
			CameraDevice:  globals.CameraDevice,
		},
		Capture: CaptureSettings{
			XResolution:     640,
			YResolution:     480,
			FramesPerSecond: 10,
			Count:           3,
			DelaySec:        2,
			MinFreeMB:       64,
		},
		Transmit: TransmitSettings{
			BitRate:    "1M",
			CodeRate:   "0.75",
			Redundancy: 3,
			Retransmit: 0,
		},
		Radio: RadioSettings{
			SettleSec: 5,
		},
		Controller: ControllerSettings{
			PollMs: 100,
		},
	}
}

// LoadSettings reads path over the defaults. A missing file is not an error.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return s, nil
}

func (s *Settings) Validate() error {
	if s.Capture.Count < 0 {
		return fmt.Errorf("capture count %d must not be negative", s.Capture.Count)
	}
	if s.Capture.FramesPerSecond <= 0 {
		return fmt.Errorf("frames per second %d must be positive", s.Capture.FramesPerSecond)
	}
	if s.Capture.XResolution <= 0 || s.Capture.YResolution <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", s.Capture.XResolution, s.Capture.YResolution)
	}
	if s.Controller.PollMs <= 0 {
		return fmt.Errorf("poll interval %dms must be positive", s.Controller.PollMs)
	}
	if s.Paths.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	return nil
}

// Apply points the global paths at the configured locations
func (s *Settings) Apply() {
	if s.Paths.DataDir != "" && s.Paths.DataDir != globals.DataDir {
		globals.DataDir = s.Paths.DataDir
		globals.FirmwareDataDir = globals.DataDir + "/.firmware-data"
		globals.ConfigPath = globals.FirmwareDataDir + "/config.json"
		globals.LogsPath = globals.FirmwareDataDir + "/logs.json"
		globals.LogFilePath = globals.FirmwareDataDir + "/dxwifi.log"
		globals.HistoryPath = globals.FirmwareDataDir + "/history.json"
		globals.AssetsPath = globals.FirmwareDataDir + "/assets"
		globals.TestImagePath = globals.AssetsPath + "/test-image.jpeg"
	}
	globals.OutputDir = s.Paths.OutputDir
	if s.Paths.FirmwareDir != "" {
		globals.FirmwareDir = s.Paths.FirmwareDir
	}
	if s.Paths.TestImage != "" {
		globals.TestImagePath = s.Paths.TestImage
	}
	if s.Paths.TxBinary != "" {
		globals.TxBinary = s.Paths.TxBinary
	}
	if s.Paths.BringupScript != "" {
		globals.BringupScript = s.Paths.BringupScript
	}
	if s.Paths.CameraDevice != "" {
		globals.CameraDevice = s.Paths.CameraDevice
	}
}

// Defaults returns the key-value entries seeded into a fresh store
func (s *Settings) Defaults() map[string]any {
	d := map[string]any{
		KeyXResolution:     s.Capture.XResolution,
		KeyYResolution:     s.Capture.YResolution,
		KeyFPS:             s.Capture.FramesPerSecond,
		KeyCaptureCount:    s.Capture.Count,
		KeyCaptureDelay:    s.Capture.DelaySec,
		KeyCaptureTar:      s.Capture.Tar,
		KeyBitRate:         s.Transmit.BitRate,
		KeyEnablePA:        s.Transmit.EnablePA,
		KeyStaticTestImage: s.Transmit.StaticTestImage,
		KeyTxCount:         0,
	}
	if s.Relay.URL != "" {
		d[KeyRelayURL] = s.Relay.URL
	}
	return d
}

func (s *Settings) PollInterval() time.Duration {
	return time.Duration(s.Controller.PollMs) * time.Millisecond
}

func (s *Settings) SettleDelay() time.Duration {
	return time.Duration(s.Radio.SettleSec) * time.Second
}

func (s *Settings) CaptureTimeout() time.Duration {
	return time.Duration(s.Capture.TimeoutSec) * time.Second
}

func (s *Settings) TransmitTimeout() time.Duration {
	return time.Duration(s.Transmit.TimeoutSec) * time.Second
}
