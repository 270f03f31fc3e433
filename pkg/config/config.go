package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dxwifi-firmware/pkg/globals"

	"github.com/gofrs/uuid"
)

// Keys of the flat key-value surface shared with the telemetry bus
const (
	KeyID              = "id"
	KeyXResolution     = "x_resolution"
	KeyYResolution     = "y_resolution"
	KeyFPS             = "frames_per_second"
	KeyCaptureCount    = "capture_count"
	KeyCaptureDelay    = "capture_delay"
	KeyCaptureTar      = "capture_tar"
	KeyBitRate         = "bit_rate"
	KeyEnablePA        = "enable_pa"
	KeyStaticTestImage = "static_test_image"
	KeyTxCount         = "tx_count"
	KeyRelayURL        = "relayUrl"
)

type Config struct {
	mu   sync.RWMutex
	path string
	data map[string]any
}

var instance *Config
var once sync.Once

// Init initializes the config system and creates config.json if it doesn't exist
func Init() error {
	var err error
	once.Do(func() {
		instance, err = Open(globals.ConfigPath)
	})
	return err
}

// Get returns the singleton config instance
func Get() *Config {
	if instance == nil {
		panic("config not initialized - call Init() first")
	}
	return instance
}

// Open loads the store at path, creating it when missing
func Open(path string) (*Config, error) {
	c := &Config{
		path: path,
		data: make(map[string]any),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		return c.createInitialConfig()
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, &c.data); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if c.data == nil {
		c.data = make(map[string]any)
	}

	return nil
}

func (c *Config) createInitialConfig() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("failed to generate payload ID: %w", err)
	}

	c.data = map[string]any{
		KeyID:      id.String(),
		KeyTxCount: 0,
	}

	return c.save()
}

func (c *Config) save() error {
	data, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write then rename so a power cut never leaves a truncated file
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}

	return nil
}

// SetKey sets a config value and persists to disk
// Pass nil to delete the key
func (c *Config) SetKey(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value == nil {
		delete(c.data, key)
	} else {
		c.data[key] = value
	}

	return c.save()
}

// GetKey retrieves a config value
// Returns the value and a boolean indicating if the key exists
func (c *Config) GetKey(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, exists := c.data[key]
	return value, exists
}

// Snapshot returns a copy of every key
func (c *Config) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// SeedDefaults stores each default whose key is not present yet
func (c *Config) SeedDefaults(defaults map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for k, v := range defaults {
		if _, ok := c.data[k]; !ok {
			c.data[k] = v
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return c.save()
}

// GetInt returns key as an int. JSON numbers come back as float64.
func (c *Config) GetInt(key string, def int) int {
	v, ok := c.GetKey(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func (c *Config) GetFloat(key string, def float64) float64 {
	v, ok := c.GetKey(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return def
}

func (c *Config) GetBool(key string, def bool) bool {
	v, ok := c.GetKey(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func (c *Config) GetString(key string, def string) string {
	v, ok := c.GetKey(key)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Increment adds one to an integer key and persists it
func (c *Config) Increment(key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	switch v := c.data[key].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	}
	n++
	c.data[key] = n

	return n, c.save()
}
