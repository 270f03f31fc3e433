package sysinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const cpuSampleWindow = 200 * time.Millisecond

type Memory struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

type Disk struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

type Snapshot struct {
	CPUPercent float64            `json:"cpuPercent"`
	Load1      float64            `json:"load1"`
	Memory     Memory             `json:"memory"`
	Disk       Disk               `json:"disk"`
	UptimeSec  uint64             `json:"uptimeSec"`
	Sensors    map[string]float64 `json:"sensors,omitempty"`
	Errors     []string           `json:"errors"`
}

// Collect gathers a health snapshot of the flight computer. Each probe is
// independent; a failing probe leaves its fields zero and adds to Errors.
func Collect(ctx context.Context, dataDir string) Snapshot {
	s := Snapshot{Errors: []string{}}
	fail := func(what string, err error) {
		s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", what, err))
	}

	if pct, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false); err != nil {
		fail("cpu", err)
	} else if len(pct) > 0 {
		s.CPUPercent = pct[0]
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		fail("load", err)
	} else {
		s.Load1 = avg.Load1
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		fail("memory", err)
	} else {
		s.Memory = Memory{Total: vm.Total, Used: vm.Used, UsedPercent: vm.UsedPercent}
	}

	if du, err := disk.UsageWithContext(ctx, dataDir); err != nil {
		fail("disk", err)
	} else {
		s.Disk = Disk{Path: dataDir, Total: du.Total, Free: du.Free, UsedPercent: du.UsedPercent}
	}

	if up, err := host.UptimeWithContext(ctx); err != nil {
		fail("uptime", err)
	} else {
		s.UptimeSec = up
	}

	// Boards without hwmon return an empty list, not an error
	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil && len(temps) > 0 {
		s.Sensors = make(map[string]float64, len(temps))
		for _, t := range temps {
			s.Sensors[t.SensorKey] = t.Temperature
		}
	}

	return s
}
