// Package correlator classifies incoming events into incidents, or folds
// inventory snapshot events into the orchestrator's running state.
package correlator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/opensecagent/agent/internal/collector"
	"github.com/opensecagent/agent/internal/model"
)

// Snapshots holds the orchestrator-owned state that inventory events feed.
// The correlator writes to it; the daemon's diff detectors keep their own
// prior sets and do not read it.
type Snapshots struct {
	LastHostInventory   map[string]interface{}
	LastDockerInventory map[string]interface{}
	LastPorts           map[string]bool
	LastContainers      map[string]bool
	LastSudoUsers       map[string]bool
}

// NewSnapshots returns an empty Snapshots: every set starts empty.
func NewSnapshots() *Snapshots {
	return &Snapshots{
		LastPorts:      map[string]bool{},
		LastContainers: map[string]bool{},
		LastSudoUsers:  map[string]bool{},
	}
}

// recommendedActions maps an event type to its fixed advice text. Unknown
// event types get the default line.
var recommendedActions = map[string]string{
	"config_drift":               "Review changed file and confirm the modification was authorized.",
	"config_new_file":            "Review the new file under the monitored path.",
	"config_deleted":             "Confirm the deletion was intentional and restore from backup if not.",
	"auth_failures":              "Review authentication logs for the source of repeated failures; consider blocking the source.",
	"new_listening_port":         "Confirm the new listening service is expected and properly firewalled.",
	"new_container":              "Confirm the new container was intentionally started.",
	"new_admin_user":             "Confirm the new administrative user was authorized.",
	"high_cpu":                   "Investigate the top CPU-consuming processes for abnormal activity.",
	"high_memory":                "Investigate memory usage; check for a leak or runaway process.",
	"high_network_usage":         "Investigate the source of elevated network throughput.",
	"nginx_config_invalid":       "Fix the nginx configuration; the service will fail to reload until resolved.",
	"nginx_security":             "Disable server_tokens to avoid advertising the nginx version.",
	"firewall_inactive":          "Re-enable the host firewall.",
	"firewall_audit":             "Install and configure a host firewall (ufw or iptables).",
	"npm_audit_vulnerabilities":  "Run npm audit fix or upgrade the affected packages.",
	"php_malware_suspected":      "Inspect the flagged file for injected or obfuscated code and remove it if malicious.",
}

const defaultRecommendation = "Review evidence and take action as per runbook."

// Correlate consumes one event. host_inventory and docker_inventory events
// update snap and return (nil, false) — they are never promoted to
// incidents. Every other event type produces an Incident.
func Correlate(ev model.Event, snap *Snapshots, now time.Time) (*model.Incident, bool) {
	switch ev.EventType {
	case "host_inventory":
		applyHostInventory(ev, snap)
		return nil, false
	case "docker_inventory":
		applyDockerInventory(ev, snap)
		return nil, false
	}

	title := ev.Summary
	if len(title) > 200 {
		title = title[:200]
	}

	rawKeys := make([]string, 0, len(ev.Raw))
	for k := range ev.Raw {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	inc := &model.Incident{
		IncidentID: newIncidentID(),
		Severity:   ev.Severity,
		Title:      title,
		Narrative:  ev.Summary,
		Events:     []model.Event{ev},
		EvidenceSummary: map[string]interface{}{
			"event_type": ev.EventType,
			"source":     ev.Source,
			"raw_keys":   rawKeys,
		},
		RecommendedActions: []string{recommendationFor(ev.EventType)},
		CreatedAt:          now,
	}
	return inc, true
}

func recommendationFor(eventType string) string {
	if text, ok := recommendedActions[eventType]; ok {
		return text
	}
	return defaultRecommendation
}

func applyHostInventory(ev model.Event, snap *Snapshots) {
	snap.LastHostInventory = ev.Raw

	ports := map[string]bool{}
	if lp, ok := ev.Raw["listening_ports"]; ok {
		for _, key := range portKeys(lp) {
			ports[key] = true
		}
	}
	snap.LastPorts = ports

	users := map[string]bool{}
	if uw, ok := ev.Raw["users_with_sudo"]; ok {
		if list, ok := uw.([]string); ok {
			for _, u := range list {
				users[u] = true
			}
		}
	}
	snap.LastSudoUsers = users
}

func applyDockerInventory(ev model.Event, snap *Snapshots) {
	snap.LastDockerInventory = ev.Raw

	containers := map[string]bool{}
	if cs, ok := ev.Raw["containers"]; ok {
		for _, id := range runningContainerIDs(cs) {
			containers[id] = true
		}
	}
	snap.LastContainers = containers
}

// portKeys extracts port keys from whatever concrete shape the collector
// put in the event's raw payload: a typed slice in-process, or a
// []interface{} of maps if the event ever round-trips through JSON first.
func portKeys(v interface{}) []string {
	var out []string
	switch list := v.(type) {
	case []collector.ListeningPort:
		for _, p := range list {
			out = append(out, key(p.Port, p.Address))
		}
	case []interface{}:
		for _, it := range list {
			m, ok := it.(map[string]interface{})
			if !ok {
				continue
			}
			port, _ := m["port"].(string)
			addr, _ := m["address"].(string)
			out = append(out, key(port, addr))
		}
	}
	return out
}

func key(port, addr string) string {
	if port != "" {
		return port
	}
	return addr
}

func runningContainerIDs(v interface{}) []string {
	var out []string
	switch list := v.(type) {
	case []collector.Container:
		for _, c := range list {
			if c.Status == "running" {
				out = append(out, c.ID)
			}
		}
	case []interface{}:
		for _, it := range list {
			m, ok := it.(map[string]interface{})
			if !ok {
				continue
			}
			status, _ := m["status"].(string)
			id, _ := m["id"].(string)
			if status == "running" && id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

func newIncidentID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("inc-%s", hex.EncodeToString(buf))
}
