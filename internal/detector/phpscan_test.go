package detector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

func TestPhpScanDetectsEvalBase64(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shell.php")
	if err := os.WriteFile(path, []byte(`<?php eval(base64_decode("ZWNobyAnaGknOw==")); ?>`), 0o644); err != nil {
		t.Fatal(err)
	}

	d := &PhpScanDetector{Roots: []string{dir}}
	events := d.Check(time.Now())
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if events[0].Severity != model.SeverityP1 {
		t.Fatalf("expected P1, got %s", events[0].Severity)
	}
	if events[0].EventType != "php_malware_suspected" {
		t.Fatalf("unexpected event type: %s", events[0].EventType)
	}
}

func TestPhpScanIgnoresCleanFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.php")
	os.WriteFile(path, []byte(`<?php echo "hello world"; ?>`), 0o644)

	d := &PhpScanDetector{Roots: []string{dir}}
	events := d.Check(time.Now())
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestPhpScanShellExecIsP2(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cmd.php")
	os.WriteFile(path, []byte(`<?php shell_exec($_GET['c']); ?>`), 0o644)

	d := &PhpScanDetector{Roots: []string{dir}}
	events := d.Check(time.Now())
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if events[0].Severity != model.SeverityP2 {
		t.Fatalf("expected P2, got %s", events[0].Severity)
	}
}

func TestPhpScanSkipsNonPhpFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("eval(base64_decode(1))"), 0o644)

	d := &PhpScanDetector{Roots: []string{dir}}
	events := d.Check(time.Now())
	if len(events) != 0 {
		t.Fatalf("expected no events for non-php file, got %d", len(events))
	}
}
