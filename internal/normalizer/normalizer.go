// Package normalizer wraps raw inventory snapshots into the event types the
// correlator understands, without promoting them to incidents itself.
package normalizer

import (
	"fmt"
	"time"

	"github.com/opensecagent/agent/internal/collector"
	"github.com/opensecagent/agent/internal/model"
)

// HostInventoryEvent wraps a host inventory snapshot into a single
// host_inventory event (P4). The correlator consumes this only to refresh
// its snapshots; it is never promoted to an incident.
func HostInventoryEvent(inv collector.HostInventory, now time.Time) model.Event {
	return model.Event{
		EventID:   fmt.Sprintf("host-inventory-%d", now.UnixNano()),
		Source:    "normalizer.host",
		EventType: "host_inventory",
		Severity:  model.SeverityP4,
		Summary:   fmt.Sprintf("host inventory: %s (%s)", inv.Hostname, inv.OS),
		Raw: map[string]interface{}{
			"os":              inv.OS,
			"os_release":      inv.OSRelease,
			"hostname":        inv.Hostname,
			"machine":         inv.Machine,
			"packages":        inv.Packages,
			"services":        inv.Services,
			"listening_ports": inv.ListeningPorts,
			"users_with_sudo": inv.UsersWithSudo,
		},
		Timestamp:  now,
		AssetIDs:   []string{"host"},
		Confidence: 1.0,
	}
}

// DockerInventoryEvent wraps a docker inventory snapshot into a single
// docker_inventory event (P4), or returns (zero, false) when docker is not
// available on the host — mirroring the distilled source's skip-if-
// unavailable behavior.
func DockerInventoryEvent(inv collector.DockerInventory, now time.Time) (model.Event, bool) {
	if !inv.Available {
		return model.Event{}, false
	}
	return model.Event{
		EventID:   fmt.Sprintf("docker-inventory-%d", now.UnixNano()),
		Source:    "normalizer.docker",
		EventType: "docker_inventory",
		Severity:  model.SeverityP4,
		Summary:   fmt.Sprintf("docker inventory: %d containers, %d images", len(inv.Containers), len(inv.Images)),
		Raw: map[string]interface{}{
			"containers": inv.Containers,
			"images":     inv.Images,
		},
		Timestamp:  now,
		AssetIDs:   []string{"host"},
		Confidence: 1.0,
	}, true
}
