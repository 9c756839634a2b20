// Package policy decides which containment actions are permitted for a
// given incident. It is pure: all side effects live in the responder.
package policy

import (
	"time"

	"github.com/opensecagent/agent/internal/model"
)

// AllowedActions returns the ordered list of actions the responder may take
// against inc, given the policy and the current instant now.
//
// Maintenance windows are exclusive: inside one, alert_only is the only
// permitted action regardless of severity or action_tier_max.
func AllowedActions(inc *model.Incident, pol model.Policy, now time.Time) []model.ActionSpec {
	for _, w := range pol.MaintenanceWindows {
		if w.Contains(now) {
			return []model.ActionSpec{{Action: "alert_only", Reason: "maintenance_window"}}
		}
	}

	actions := []model.ActionSpec{{Action: "alert_only", Reason: "always"}}

	if pol.ActionTierMax >= model.ActionTierSoftContainment && isContainable(inc.Severity) {
		if inc.EventTypeMatches("new_container") {
			actions = append(actions, model.ActionSpec{
				Action:         "stop_container",
				Tier:           model.ActionTierSoftContainment,
				TimeoutMinutes: 60,
			})
		}
		if inc.EventTypeMatches("auth_failures") {
			actions = append(actions, model.ActionSpec{
				Action:         "block_ip_temporary",
				Tier:           model.ActionTierSoftContainment,
				TimeoutMinutes: 30,
			})
		}
	}

	return actions
}

func isContainable(sev model.Severity) bool {
	return sev == model.SeverityP1 || sev == model.SeverityP2
}
