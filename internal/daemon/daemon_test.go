package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensecagent/agent/internal/config"
	"github.com/opensecagent/agent/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Agent.DataDir = t.TempDir()
	cfg.ScanLevel = ""
	// Empty sink paths make New place audit.jsonl and activity.jsonl in DataDir.
	cfg.Audit.File = ""
	cfg.Activity.File = ""
	// Disable every ticked task so New/Run tests don't shell out or sleep.
	cfg.Collector.HostIntervalSec = 0
	cfg.Collector.DockerIntervalSec = 0
	cfg.Collector.DriftIntervalSec = 0
	cfg.Detector.DetectorIntervalSec = 0
	cfg.LLMAgent.Enabled = false
	cfg.Notifications.Digest.Enabled = false
	return &cfg
}

func TestNewDaemonWiresCoreComponents(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if d.hostCollector == nil || d.dockerCollector == nil {
		t.Fatal("expected collectors to be initialized")
	}
	if d.drift == nil {
		t.Fatal("expected drift monitor to be initialized")
	}
	if d.authDetector == nil || d.resourceDetector == nil || d.npmDetector == nil || d.phpDetector == nil {
		t.Fatal("expected all detectors to be initialized")
	}
	if d.resp == nil || d.rep == nil || d.threats == nil {
		t.Fatal("expected responder, reporter, and threat registry to be initialized")
	}
	if d.llm != nil {
		t.Fatal("expected llm agent to be nil when llm_agent.enabled is false")
	}
}

func TestNewDaemonCreatesDataDirFiles(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.audit.Close()
	defer d.activity.Close()

	if _, err := os.Stat(filepath.Join(cfg.Agent.DataDir, "audit.jsonl")); err != nil {
		t.Fatalf("expected audit.jsonl to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Agent.DataDir, "threats")); err != nil {
		t.Fatalf("expected threats dir to exist: %v", err)
	}
}

func TestNewDaemonBuildsLLMAgentWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMAgent.Enabled = true
	cfg.LLM.Enabled = true
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.Provider = "openai"

	d, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.llm == nil {
		t.Fatal("expected llm agent to be built when enabled with an api key")
	}
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down within 5s of context cancellation")
	}
}

func TestIsContainableMatchesHighSeveritiesOnly(t *testing.T) {
	cases := map[model.Severity]bool{model.SeverityP1: true, model.SeverityP2: true, model.SeverityP3: false, model.SeverityP4: false}
	for sev, want := range cases {
		if got := isContainable(sev); got != want {
			t.Errorf("isContainable(%s) = %v, want %v", sev, got, want)
		}
	}
}
