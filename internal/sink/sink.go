// Package sink implements the append-only JSONL audit and activity logs.
package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

// JSONLSink is a mutex-guarded, append-only JSON-lines file writer shared by
// the audit and activity logs.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if needed) the JSONL file at path for appending.
func Open(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening sink file %s: %w", path, err)
	}
	return &JSONLSink{file: f}, nil
}

// writeLine marshals record as one JSON line and flushes it immediately.
func (s *JSONLSink) writeLine(record map[string]interface{}) {
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Write(data)
	s.file.Write([]byte("\n"))
	s.file.Sync()
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func isoNow() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// AuditSink records incidents and the actions taken against them. Lines are
// discriminated by "type": "incident" | "action".
type AuditSink struct {
	*JSONLSink
}

// OpenAudit opens the audit log at path.
func OpenAudit(path string) (*AuditSink, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &AuditSink{s}, nil
}

// LogIncident records a full incident, including its events and
// recommended/taken actions.
func (a *AuditSink) LogIncident(inc *model.Incident) {
	a.writeLine(map[string]interface{}{
		"type":                "incident",
		"ts":                  isoNow(),
		"incident_id":         inc.IncidentID,
		"severity":            inc.Severity,
		"title":               inc.Title,
		"narrative":           inc.Narrative,
		"events":              inc.Events,
		"evidence_summary":    inc.EvidenceSummary,
		"recommended_actions": inc.RecommendedActions,
		"actions_taken":       inc.ActionsTaken,
		"llm_summary":         inc.LLMSummary,
	})
}

// LogAction records one action taken, satisfying responder.Sink.
func (a *AuditSink) LogAction(action string, details map[string]interface{}, incidentID string) {
	a.writeLine(map[string]interface{}{
		"type":        "action",
		"ts":          isoNow(),
		"action":      action,
		"details":     details,
		"incident_id": incidentID,
	})
}

// ActivitySink records operational activity: collector/detector runs,
// policy decisions, command executions, LLM calls, and agent iterations.
type ActivitySink struct {
	*JSONLSink
	enabled bool
}

// OpenActivity opens the activity log at path. If enabled is false, all
// logging calls become no-ops (the sink is still opened so callers don't
// need to branch).
func OpenActivity(path string, enabled bool) (*ActivitySink, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &ActivitySink{JSONLSink: s, enabled: enabled}, nil
}

func (a *ActivitySink) log(eventType string, fields map[string]interface{}) {
	if !a.enabled {
		return
	}
	record := map[string]interface{}{"ts": isoNow(), "type": eventType}
	for k, v := range fields {
		record[k] = v
	}
	a.writeLine(record)
}

// LogCollectorRun records one collector execution.
func (a *ActivitySink) LogCollectorRun(name string, durationMS int64, err error) {
	fields := map[string]interface{}{"collector": name, "duration_ms": durationMS}
	if err != nil {
		fields["error"] = err.Error()
	}
	a.log("collector_run", fields)
}

// LogDetectorRun records one detector execution.
func (a *ActivitySink) LogDetectorRun(name string, eventCount int, durationMS int64) {
	a.log("detector_run", map[string]interface{}{
		"detector":    name,
		"event_count": eventCount,
		"duration_ms": durationMS,
	})
}

// LogPolicyDecision records the actions a policy decision allowed.
func (a *ActivitySink) LogPolicyDecision(incidentID string, actions []model.ActionSpec) {
	a.log("policy_decision", map[string]interface{}{
		"incident_id": incidentID,
		"actions":     actions,
	})
}

// LogCommandExecution records one agent-executed command. stdout/stderr are
// truncated to this sink's own limits (2000/500 chars), independent of the
// agent loop's own 1500/500-char truncation of what it feeds back to the
// model.
func (a *ActivitySink) LogCommandExecution(cmd string, stdout string, stderr string, exitCode int) {
	a.log("command_execution", map[string]interface{}{
		"cmd":       cmd,
		"stdout":    truncate(stdout, 2000),
		"stderr":    truncate(stderr, 500),
		"exit_code": exitCode,
	})
}

// LogLLMCall records one model call's cost and token accounting.
func (a *ActivitySink) LogLLMCall(model string, inputTokens, outputTokens int, costUSD float64) {
	a.log("llm_call", map[string]interface{}{
		"model":         model,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"cost_usd":      costUSD,
	})
}

// LogAgentIteration records one agent loop turn's summary.
func (a *ActivitySink) LogAgentIteration(mode string, iteration int, summary string) {
	a.log("agent_iteration", map[string]interface{}{
		"mode":      mode,
		"iteration": iteration,
		"summary":   truncate(summary, 500),
	})
}

// LogAction satisfies responder.Sink for the activity log too.
func (a *ActivitySink) LogAction(action string, details map[string]interface{}, incidentID string) {
	a.log("action", map[string]interface{}{
		"action":      action,
		"details":     details,
		"incident_id": incidentID,
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
