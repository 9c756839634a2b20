package policy

import (
	"testing"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

func incidentWithEventType(eventType string, sev model.Severity) *model.Incident {
	return &model.Incident{
		Severity: sev,
		Events:   []model.Event{{EventType: eventType}},
	}
}

func TestMaintenanceWindowReturnsExactlyAlertOnly(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	pol := model.Policy{
		ActionTierMax: 3,
		MaintenanceWindows: []model.MaintenanceWindow{
			{Start: now.Add(-time.Hour), End: now.Add(time.Hour)},
		},
	}
	inc := incidentWithEventType("new_container", model.SeverityP1)

	actions := AllowedActions(inc, pol, now)
	if len(actions) != 1 {
		t.Fatalf("expected exactly one action inside a maintenance window, got %d", len(actions))
	}
	if actions[0].Action != "alert_only" || actions[0].Reason != "maintenance_window" {
		t.Fatalf("unexpected action: %+v", actions[0])
	}
}

func TestAlwaysIncludesAlertOnly(t *testing.T) {
	now := time.Now()
	pol := model.Policy{ActionTierMax: 0}
	inc := incidentWithEventType("config_drift", model.SeverityP4)

	actions := AllowedActions(inc, pol, now)
	if len(actions) != 1 || actions[0].Action != "alert_only" || actions[0].Reason != "always" {
		t.Fatalf("expected only alert_only/always, got %+v", actions)
	}
}

func TestStopContainerAppendedWhenTierAllowsAndSeverityHigh(t *testing.T) {
	now := time.Now()
	pol := model.Policy{ActionTierMax: 1}
	inc := incidentWithEventType("new_container", model.SeverityP1)

	actions := AllowedActions(inc, pol, now)
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d: %+v", len(actions), actions)
	}
	if actions[1].Action != "stop_container" || actions[1].TimeoutMinutes != 60 {
		t.Fatalf("unexpected second action: %+v", actions[1])
	}
}

func TestBlockIPAppendedForAuthFailures(t *testing.T) {
	now := time.Now()
	pol := model.Policy{ActionTierMax: 2}
	inc := incidentWithEventType("auth_failures", model.SeverityP2)

	actions := AllowedActions(inc, pol, now)
	if len(actions) != 2 || actions[1].Action != "block_ip_temporary" {
		t.Fatalf("expected block_ip_temporary appended, got %+v", actions)
	}
}

func TestNoContainmentWhenTierMaxIsZero(t *testing.T) {
	now := time.Now()
	pol := model.Policy{ActionTierMax: 0}
	inc := incidentWithEventType("new_container", model.SeverityP1)

	actions := AllowedActions(inc, pol, now)
	if len(actions) != 1 {
		t.Fatalf("expected containment suppressed at tier 0, got %+v", actions)
	}
}

func TestNoContainmentForLowSeverity(t *testing.T) {
	now := time.Now()
	pol := model.Policy{ActionTierMax: 3}
	inc := incidentWithEventType("new_container", model.SeverityP3)

	actions := AllowedActions(inc, pol, now)
	if len(actions) != 1 {
		t.Fatalf("expected containment suppressed for P3, got %+v", actions)
	}
}
