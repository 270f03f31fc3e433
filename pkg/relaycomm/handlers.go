package relaycomm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dxwifi-firmware/pkg/config"
	"dxwifi-firmware/pkg/globals"
	"dxwifi-firmware/pkg/logger"
	"dxwifi-firmware/pkg/mode"
	"dxwifi-firmware/pkg/radio"
	"dxwifi-firmware/pkg/storage"
	"dxwifi-firmware/pkg/sysinfo"
)

const healthTimeout = 5 * time.Second

// Controller is the part of the payload controller the relay may drive
type Controller interface {
	Mode() mode.Mode
	RequestMode(m mode.Mode)
	RequestBitRate(rate string)
}

// Deps are the collaborators the handlers read from
type Deps struct {
	Controller  Controller
	Config      *config.Config
	History     func() ([]storage.Attempt, error)
	Temperature func() (float64, error)
	BitRate     func() (string, error) // rate the firmware link points at
	DataDir     string
	OutputDir   string
}

// Keys the relay may not overwrite
var readOnlyKeys = map[string]bool{
	config.KeyID:      true,
	config.KeyTxCount: true,
}

type handlers struct {
	r    *RelayComm
	deps Deps
}

// RegisterHandlers registers all relay message handlers
func (r *RelayComm) RegisterHandlers(deps Deps) {
	h := &handlers{r: r, deps: deps}

	// Mode channel
	r.On("setMode", h.setMode)
	r.On("setBitRate", h.setBitRate)
	r.On("getMode", h.getMode)

	// Configuration
	r.On("getConfig", h.getConfig)
	r.On("setConfig", h.setConfig)

	// System
	r.On("getHealth", h.getHealth)
	r.On("getLogs", h.getLogs)
	r.On("getHistory", h.getHistory)
}

func (h *handlers) fail(messageType string, err error) {
	h.r.Send(messageType+"Result", map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

// setMode accepts either a numeric mode or its name. Success means the
// request was queued; legality is decided by the controller.
func (h *handlers) setMode(payload json.RawMessage) {
	var req struct {
		Mode json.RawMessage `json:"mode"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		h.fail("setMode", fmt.Errorf("invalid request format"))
		return
	}

	m, err := parseMode(req.Mode)
	if err != nil {
		h.fail("setMode", err)
		return
	}

	h.deps.Controller.RequestMode(m)
	h.r.Send("setModeResult", map[string]any{
		"success":   true,
		"requested": m.String(),
	})
}

func parseMode(raw json.RawMessage) (mode.Mode, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return mode.Parse(n)
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return mode.ParseName(name)
	}
	return 0, fmt.Errorf("%w: %s", mode.ErrUnknownMode, string(raw))
}

func (h *handlers) setBitRate(payload json.RawMessage) {
	var req struct {
		Rate string `json:"rate"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Rate == "" {
		h.fail("setBitRate", fmt.Errorf("invalid request format"))
		return
	}

	h.deps.Controller.RequestBitRate(req.Rate)
	h.r.Send("setBitRateResult", map[string]any{
		"success":   true,
		"rate":      req.Rate,
		"supported": radio.IsSupported(req.Rate),
	})
}

func (h *handlers) getMode(payload json.RawMessage) {
	h.r.Send("getModeResult", modePayload(h.deps.Controller.Mode()))
}

func (h *handlers) getConfig(payload json.RawMessage) {
	h.r.Send("getConfigResult", map[string]any{
		"success": true,
		"config":  h.deps.Config.Snapshot(),
	})
}

func (h *handlers) setConfig(payload json.RawMessage) {
	var req struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Key == "" {
		h.fail("setConfig", fmt.Errorf("invalid request format"))
		return
	}
	// The stored bit rate mirrors the firmware link; only the reconfigurator
	// writes it
	if req.Key == config.KeyBitRate {
		h.setConfigBitRate(req.Value)
		return
	}
	if readOnlyKeys[req.Key] {
		h.fail("setConfig", fmt.Errorf("%s is read-only", req.Key))
		return
	}

	if err := h.deps.Config.SetKey(req.Key, req.Value); err != nil {
		h.fail("setConfig", err)
		return
	}
	h.r.Send("setConfigResult", map[string]any{
		"success": true,
		"key":     req.Key,
	})
}

func (h *handlers) setConfigBitRate(value any) {
	rate, ok := value.(string)
	if !ok || !radio.IsSupported(rate) {
		h.fail("setConfig", fmt.Errorf("%w: %v", radio.ErrUnsupportedRate, value))
		return
	}

	h.deps.Controller.RequestBitRate(rate)
	h.r.Send("setConfigResult", map[string]any{
		"success": true,
		"key":     config.KeyBitRate,
		"queued":  true,
	})
}

func (h *handlers) bitRate() string {
	if h.deps.BitRate != nil {
		if rate, err := h.deps.BitRate(); err == nil {
			return rate
		}
	}
	return h.deps.Config.GetString(config.KeyBitRate, "")
}

func (h *handlers) getHealth(payload json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	m := h.deps.Controller.Mode()
	health := map[string]any{
		"mode":            int(m),
		"modeName":        m.String(),
		"firmwareVersion": globals.FirmwareVersion,
		"bitRate":         h.bitRate(),
		"txCount":         h.deps.Config.GetInt(config.KeyTxCount, 0),
		"system":          sysinfo.Collect(ctx, h.deps.DataDir),
		"temperature":     nil,
	}

	if h.deps.Temperature != nil {
		if t, err := h.deps.Temperature(); err == nil {
			health["temperature"] = t
		}
	}

	if files, err := storage.ListPending(h.deps.OutputDir); err == nil {
		health["pendingFiles"] = len(files)
	}

	h.r.Send("getHealthResult", health)
}

func (h *handlers) getLogs(payload json.RawMessage) {
	h.r.Send("getLogsResult", map[string]any{
		"success": true,
		"logs":    logger.GetLogs(),
	})
}

func (h *handlers) getHistory(payload json.RawMessage) {
	if h.deps.History == nil {
		h.fail("getHistory", fmt.Errorf("history not available"))
		return
	}
	attempts, err := h.deps.History()
	if err != nil {
		h.fail("getHistory", err)
		return
	}
	h.r.Send("getHistoryResult", map[string]any{
		"success":  true,
		"attempts": attempts,
	})
}
