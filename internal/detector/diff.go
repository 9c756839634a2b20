// Package detector implements the stateful diff detectors and the
// independent probe detectors (spec.md §4.3).
package detector

import (
	"fmt"
	"time"

	"github.com/opensecagent/agent/internal/collector"
	"github.com/opensecagent/agent/internal/model"
)

// Diff detectors read the orchestrator's latest inventory snapshot and
// compare it with the prior stored set. Each returns at most one event per
// run; an empty prior set means bootstrap — no event is produced regardless
// of current content. The orchestrator, not the detector, owns and updates
// the stored sets.

// NewPortsEvent compares the current listening ports against priorPorts and
// returns a new_listening_port event when new ports appeared. Empty
// priorPorts (bootstrap) always yields nil.
func NewPortsEvent(inv collector.HostInventory, priorPorts map[string]bool, now time.Time) *model.Event {
	if len(priorPorts) == 0 {
		return nil
	}
	var newPorts []string
	for _, p := range inv.ListeningPorts {
		key := portKey(p)
		if !priorPorts[key] {
			newPorts = append(newPorts, key)
		}
	}
	if len(newPorts) == 0 {
		return nil
	}
	return &model.Event{
		EventID:    fmt.Sprintf("new-port-%d", now.UnixNano()),
		Source:     "detector.ports",
		EventType:  "new_listening_port",
		Severity:   model.SeverityP3,
		Summary:    fmt.Sprintf("New listening port(s): %v", newPorts),
		Raw:        map[string]interface{}{"new_ports": newPorts},
		Timestamp:  now,
		AssetIDs:   []string{"host"},
		Confidence: 1.0,
	}
}

func portKey(p collector.ListeningPort) string {
	if p.Port != "" {
		return p.Port
	}
	return p.Address
}

// CurrentPortSet builds the comparison set for the next NewPortsEvent call.
func CurrentPortSet(inv collector.HostInventory) map[string]bool {
	set := make(map[string]bool, len(inv.ListeningPorts))
	for _, p := range inv.ListeningPorts {
		set[portKey(p)] = true
	}
	return set
}

// NewContainerEvent compares the current running containers against
// priorContainers (which only ever tracks running containers) and returns a
// new_container event when a new running container appeared.
func NewContainerEvent(inv collector.DockerInventory, priorContainers map[string]bool, now time.Time) *model.Event {
	if !inv.Available {
		return nil
	}
	if len(priorContainers) == 0 {
		return nil
	}
	var newIDs []string
	for _, c := range inv.Containers {
		if c.Status != "running" {
			continue
		}
		if !priorContainers[c.ID] {
			newIDs = append(newIDs, c.ID)
		}
	}
	if len(newIDs) == 0 {
		return nil
	}
	return &model.Event{
		EventID:    fmt.Sprintf("new-container-%d", now.UnixNano()),
		Source:     "detector.containers",
		EventType:  "new_container",
		Severity:   model.SeverityP3,
		Summary:    fmt.Sprintf("New container(s) started: %v", newIDs),
		Raw:        map[string]interface{}{"new_ids": newIDs},
		Timestamp:  now,
		AssetIDs:   append([]string{"host"}, newIDs...),
		Confidence: 1.0,
	}
}

// CurrentRunningContainerSet builds the comparison set for the next
// NewContainerEvent call — only running containers are tracked.
func CurrentRunningContainerSet(inv collector.DockerInventory) map[string]bool {
	set := make(map[string]bool)
	if !inv.Available {
		return set
	}
	for _, c := range inv.Containers {
		if c.Status == "running" {
			set[c.ID] = true
		}
	}
	return set
}

// NewAdminEvent compares the current sudo users against priorUsers and
// returns a new_admin_user event when new admins appeared.
func NewAdminEvent(inv collector.HostInventory, priorUsers map[string]bool, now time.Time) *model.Event {
	if len(priorUsers) == 0 {
		return nil
	}
	var newUsers []string
	for _, u := range inv.UsersWithSudo {
		if !priorUsers[u] {
			newUsers = append(newUsers, u)
		}
	}
	if len(newUsers) == 0 {
		return nil
	}
	return &model.Event{
		EventID:    fmt.Sprintf("new-admin-%d", now.UnixNano()),
		Source:     "detector.users",
		EventType:  "new_admin_user",
		Severity:   model.SeverityP2,
		Summary:    fmt.Sprintf("New admin user(s): %v", newUsers),
		Raw:        map[string]interface{}{"new_users": newUsers},
		Timestamp:  now,
		AssetIDs:   []string{"host"},
		Confidence: 1.0,
	}
}

// CurrentSudoUserSet builds the comparison set for the next NewAdminEvent call.
func CurrentSudoUserSet(inv collector.HostInventory) map[string]bool {
	set := make(map[string]bool, len(inv.UsersWithSudo))
	for _, u := range inv.UsersWithSudo {
		set[u] = true
	}
	return set
}
