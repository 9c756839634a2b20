package detector

import (
	"fmt"
	"time"

	"github.com/opensecagent/agent/internal/model"
	"github.com/shirou/gopsutil/v4/net"
)

// NetworkDetector samples total network throughput over a short window and
// emits high_network_usage when the rate reaches the configured threshold.
type NetworkDetector struct {
	ThresholdMBPerSec float64
}

// Check samples net I/O counters, sleeps ~2s, samples again, and compares
// the rate against the threshold.
func (d *NetworkDetector) Check(now time.Time) *model.Event {
	if d.ThresholdMBPerSec <= 0 {
		return nil
	}
	before, err := net.IOCounters(false)
	if err != nil || len(before) == 0 {
		return nil
	}
	time.Sleep(2 * time.Second)
	after, err := net.IOCounters(false)
	if err != nil || len(after) == 0 {
		return nil
	}

	b0 := before[0].BytesSent + before[0].BytesRecv
	b1 := after[0].BytesSent + after[0].BytesRecv
	var rateBps float64
	if b1 > b0 {
		rateBps = float64(b1-b0) / 2.0
	}
	rateMB := rateBps / (1024 * 1024)

	if rateMB < d.ThresholdMBPerSec {
		return nil
	}

	confidence := rateMB / maxF(d.ThresholdMBPerSec*1.5, 1)
	if confidence > 1.0 {
		confidence = 1.0
	}

	return &model.Event{
		EventID:  fmt.Sprintf("network-high-%d", now.UnixNano()),
		Source:   "detector.network",
		EventType: "high_network_usage",
		Severity: model.SeverityP3,
		Summary:  fmt.Sprintf("High network throughput: %.1f MB/s (threshold %.0f MB/s)", rateMB, d.ThresholdMBPerSec),
		Raw: map[string]interface{}{
			"rate_mb_per_sec":     rateMB,
			"threshold_mb_per_sec": d.ThresholdMBPerSec,
			"bytes_sent":          after[0].BytesSent,
			"bytes_recv":          after[0].BytesRecv,
		},
		Timestamp:  now,
		AssetIDs:   []string{"host"},
		Confidence: confidence,
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
