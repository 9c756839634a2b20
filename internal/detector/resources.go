package detector

import (
	"fmt"
	"sort"
	"time"

	"github.com/opensecagent/agent/internal/model"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceDetector samples CPU and memory usage and emits events when
// configured thresholds are reached.
type ResourceDetector struct {
	CPUPercent    float64
	MemoryPercent float64
}

type topProcess struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
}

// Check samples CPU (1s interval) and memory, returning zero or more events.
func (d *ResourceDetector) Check(now time.Time) []model.Event {
	var events []model.Event

	if pct, err := cpu.Percent(time.Second, false); err == nil && len(pct) > 0 {
		if pct[0] >= d.CPUPercent {
			raw := map[string]interface{}{
				"cpu_percent": pct[0],
				"threshold":   d.CPUPercent,
			}
			if top := topProcessesByCPU(); len(top) > 0 {
				raw["top_processes"] = top
			}
			events = append(events, model.Event{
				EventID:    fmt.Sprintf("resource-cpu-%d", now.UnixNano()),
				Source:     "detector.resources",
				EventType:  "high_cpu",
				Severity:   model.SeverityP2,
				Summary:    fmt.Sprintf("High CPU usage: %.1f%% (threshold %.0f%%)", pct[0], d.CPUPercent),
				Raw:        raw,
				Timestamp:  now,
				AssetIDs:   []string{"host"},
				Confidence: minF(1.0, pct[0]/100),
			})
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		if vm.UsedPercent >= d.MemoryPercent {
			events = append(events, model.Event{
				EventID:  fmt.Sprintf("resource-mem-%d", now.UnixNano()),
				Source:   "detector.resources",
				EventType: "high_memory",
				Severity: model.SeverityP2,
				Summary:  fmt.Sprintf("High memory usage: %.1f%% (threshold %.0f%%)", vm.UsedPercent, d.MemoryPercent),
				Raw: map[string]interface{}{
					"memory_percent": vm.UsedPercent,
					"threshold":      d.MemoryPercent,
					"available_mb":   vm.Available / (1024 * 1024),
				},
				Timestamp:  now,
				AssetIDs:   []string{"host"},
				Confidence: minF(1.0, vm.UsedPercent/100),
			})
		}
	}

	return events
}

func topProcessesByCPU() []topProcess {
	procs, err := process.Processes()
	if err != nil {
		return nil
	}
	var top []topProcess
	for _, p := range procs {
		pct, err := p.CPUPercent()
		if err != nil || pct <= 0 {
			continue
		}
		name, _ := p.Name()
		top = append(top, topProcess{PID: p.Pid, Name: name, CPUPercent: pct})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].CPUPercent > top[j].CPUPercent })
	if len(top) > 10 {
		top = top[:10]
	}
	return top
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
