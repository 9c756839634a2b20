package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensecagent/agent/internal/model"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestAuditLogIncidentWritesOneLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := OpenAudit(path)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	a.LogIncident(&model.Incident{IncidentID: "inc-1", Severity: model.SeverityP2, Title: "t"})

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["type"] != "incident" || lines[0]["incident_id"] != "inc-1" {
		t.Fatalf("unexpected line: %v", lines[0])
	}
}

func TestAuditLogActionWritesOneLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, _ := OpenAudit(path)
	defer a.Close()

	a.LogAction("stop_container", map[string]interface{}{"container_id": "c1"}, "inc-1")

	lines := readLines(t, path)
	if len(lines) != 1 || lines[0]["type"] != "action" || lines[0]["action"] != "stop_container" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestActivitySinkDisabledIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	a, err := OpenActivity(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	a.LogDetectorRun("auth", 1, 5)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected no bytes written when disabled, got %d", info.Size())
	}
}

func TestActivitySinkLogsWhenEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	a, _ := OpenActivity(path, true)
	defer a.Close()

	a.LogDetectorRun("auth", 2, 10)
	a.LogLLMCall("gpt-4o-mini", 100, 50, 0.01)

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["type"] != "detector_run" {
		t.Fatalf("unexpected first line: %v", lines[0])
	}
}

func TestActivitySinkTruncatesCommandOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	a, _ := OpenActivity(path, true)
	defer a.Close()

	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}
	a.LogCommandExecution("cmd", string(long), "", 0)

	lines := readLines(t, path)
	stdout := lines[0]["stdout"].(string)
	if len(stdout) != 2000 {
		t.Fatalf("expected stdout truncated to 2000 chars, got %d", len(stdout))
	}
}
