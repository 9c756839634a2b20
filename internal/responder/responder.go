// Package responder executes the actions the policy engine allows. All
// handler failures are logged and swallowed here; they never propagate to
// the event processor.
package responder

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

const maxContainersStopped = 5

// ContainerStopper abstracts the Docker control-plane call the responder
// needs, so it can be faked in tests without invoking the real CLI.
type ContainerStopper interface {
	StopContainer(ctx context.Context, id string) error
}

// Sink records actions for audit/activity purposes. Implementations live in
// internal/sink; the responder only needs to call the method below.
type Sink interface {
	LogAction(action string, details map[string]interface{}, incidentID string)
}

// Responder dispatches ActionSpecs produced by the policy engine.
type Responder struct {
	Docker ContainerStopper
	Audit  Sink
	Activity Sink
	Logger *log.Logger
}

// Dispatch executes action against inc, mutating inc.ActionsTaken on
// success. It never returns an error; failures are logged and swallowed.
func (r *Responder) Dispatch(ctx context.Context, action model.ActionSpec, inc *model.Incident) {
	switch action.Action {
	case "alert_only":
		// no-op; the alert itself is produced by the reporter.
	case "stop_container":
		r.stopContainers(ctx, action, inc)
	case "block_ip_temporary":
		r.blockIPTemporary(action, inc)
	default:
		r.logf("unknown action %q for incident %s", action.Action, inc.IncidentID)
	}
}

func (r *Responder) stopContainers(ctx context.Context, action model.ActionSpec, inc *model.Incident) {
	ids := extractNewIDs(inc)
	if len(ids) > maxContainersStopped {
		ids = ids[:maxContainersStopped]
	}
	for _, id := range ids {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := r.Docker.StopContainer(cctx, id)
		cancel()

		details := map[string]interface{}{"container_id": id, "timeout_minutes": action.TimeoutMinutes}
		if err != nil {
			details["error"] = err.Error()
			r.logAction("stop_container_failed", details, inc.IncidentID)
			r.logf("failed to stop container %s for incident %s: %v", id, inc.IncidentID, err)
			continue
		}
		r.logAction("stop_container", details, inc.IncidentID)
		inc.AppendAction(fmt.Sprintf("Stopped container %s", id))
	}
}

func (r *Responder) blockIPTemporary(action model.ActionSpec, inc *model.Incident) {
	r.logAction("block_ip_temporary_skipped", map[string]interface{}{
		"timeout_minutes": action.TimeoutMinutes,
	}, inc.IncidentID)
}

func (r *Responder) logAction(action string, details map[string]interface{}, incidentID string) {
	if r.Audit != nil {
		r.Audit.LogAction(action, details, incidentID)
	}
	if r.Activity != nil {
		r.Activity.LogAction(action, details, incidentID)
	}
}

func (r *Responder) logf(format string, args ...interface{}) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}

// extractNewIDs pulls raw.new_ids off the incident's new_container event,
// if present.
func extractNewIDs(inc *model.Incident) []string {
	for _, ev := range inc.Events {
		if ev.EventType != "new_container" {
			continue
		}
		switch ids := ev.Raw["new_ids"].(type) {
		case []string:
			return ids
		case []interface{}:
			var out []string
			for _, id := range ids {
				if s, ok := id.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}
