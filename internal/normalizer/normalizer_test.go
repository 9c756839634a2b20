package normalizer

import (
	"testing"
	"time"

	"github.com/opensecagent/agent/internal/collector"
)

func TestHostInventoryEventIsP4(t *testing.T) {
	inv := collector.HostInventory{Hostname: "box1", OS: "linux"}
	ev := HostInventoryEvent(inv, time.Now())
	if ev.EventType != "host_inventory" {
		t.Fatalf("unexpected event type: %s", ev.EventType)
	}
	if ev.Severity != "P4" {
		t.Fatalf("expected P4, got %s", ev.Severity)
	}
}

func TestDockerInventoryEventSkippedWhenUnavailable(t *testing.T) {
	inv := collector.DockerInventory{Available: false}
	_, ok := DockerInventoryEvent(inv, time.Now())
	if ok {
		t.Fatal("expected docker_inventory to be skipped when unavailable")
	}
}

func TestDockerInventoryEventWhenAvailable(t *testing.T) {
	inv := collector.DockerInventory{
		Available:  true,
		Containers: []collector.Container{{ID: "c1", Status: "running"}},
	}
	ev, ok := DockerInventoryEvent(inv, time.Now())
	if !ok {
		t.Fatal("expected docker_inventory event")
	}
	if ev.EventType != "docker_inventory" {
		t.Fatalf("unexpected event type: %s", ev.EventType)
	}
}
