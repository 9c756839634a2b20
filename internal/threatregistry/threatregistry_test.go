package threatregistry

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestStoreAndLoadRecent(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	id, err := reg.Store("Exposed admin panel", "Found an unauthenticated admin panel at /admin", "P2", map[string]interface{}{"path": "/admin"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(id, "thr-") {
		t.Fatalf("expected thr- prefix, got %s", id)
	}

	out := reg.LoadRecent(20)
	if !strings.Contains(out, "Exposed admin panel") {
		t.Fatalf("expected title in formatted output, got %q", out)
	}
	if !strings.Contains(out, "[P2]") {
		t.Fatalf("expected severity tag in output, got %q", out)
	}
}

func TestMarkResolvedUpdatesRecord(t *testing.T) {
	dir := t.TempDir()
	reg, _ := New(dir, nil)
	id, _ := reg.Store("t", "d", "P3", nil, nil)

	if err := reg.MarkResolved(id, []string{"Patched the config"}); err != nil {
		t.Fatal(err)
	}

	out := reg.LoadRecent(20)
	if !strings.Contains(out, "Resolved by: Patched the config") {
		t.Fatalf("expected resolution text, got %q", out)
	}
}

func TestMarkResolvedOnMissingRecordIsNoOp(t *testing.T) {
	dir := t.TempDir()
	reg, _ := New(dir, nil)
	if err := reg.MarkResolved("thr-doesnotexist", []string{"x"}); err != nil {
		t.Fatalf("expected no error for a missing record, got %v", err)
	}
}

func TestLoadRecentSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	reg, _ := New(dir, nil)
	reg.Store("good", "d", "P4", nil, nil)

	corruptPath := dir + "/thr-bad000000.json"
	if err := os.WriteFile(corruptPath, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := reg.LoadRecent(20)
	if !strings.Contains(out, "good") {
		t.Fatalf("expected the good record to still load, got %q", out)
	}
}

func TestLoadRecentEmptyDirReturnsEmptyString(t *testing.T) {
	dir := t.TempDir()
	reg, _ := New(dir, nil)
	if out := reg.LoadRecent(20); out != "" {
		t.Fatalf("expected empty string for an empty registry, got %q", out)
	}
}

func TestLoadRecentRespectsLimit(t *testing.T) {
	dir := t.TempDir()
	reg, _ := New(dir, nil)
	for i := 0; i < 5; i++ {
		reg.Store("t", "d", "P4", nil, nil)
		time.Sleep(time.Millisecond)
	}
	out := reg.LoadRecent(2)
	if strings.Count(out, "- [P4]") != 2 {
		t.Fatalf("expected exactly 2 entries, got: %q", out)
	}
}
