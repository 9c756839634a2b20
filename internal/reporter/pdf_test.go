package reporter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensecagent/agent/internal/model"
)

func TestTextFallbackRendererWritesReport(t *testing.T) {
	dir := t.TempDir()
	path := ReportPath(dir, "thr-abc123")

	finding := &model.ThreatFinding{
		Title:       "Outdated OpenSSH",
		Description: "Server is running an EOL OpenSSH version.",
		Severity:    "P2",
		Evidence:    map[string]interface{}{"version": "7.2"},
	}

	var r TextFallbackRenderer
	if err := r.Render("thr-abc123", finding, path); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected report file at %s: %v", path, err)
	}
	body := string(data)
	if !strings.Contains(body, "Outdated OpenSSH") {
		t.Errorf("expected report to contain the finding title, got: %s", body)
	}
	if !strings.Contains(body, "thr-abc123") {
		t.Errorf("expected report to contain the threat id, got: %s", body)
	}
}

func TestReportPathMatchesConvention(t *testing.T) {
	got := ReportPath("/var/lib/opensecagent", "thr-deadbeef0000")
	want := filepath.Join("/var/lib/opensecagent", "reports", "vuln-thr-deadbeef0000.pdf")
	if got != want {
		t.Errorf("ReportPath() = %q, want %q", got, want)
	}
}
