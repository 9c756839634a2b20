// Package drift implements the Drift Monitor: hash a configured set of
// critical files and directories, persist the hashes as a baseline, and on
// each subsequent Check report additions, changes, and deletions against
// that baseline.
package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

// Monitor owns the critical-paths list and the persisted baseline.
type Monitor struct {
	mu            sync.Mutex
	criticalPaths []string
	baselinePath  string
	baseline      model.DriftBaseline
	loaded        bool
}

// New creates a drift monitor. baselinePath is the file the baseline is
// persisted to (atomically, write-temp-then-rename).
func New(criticalPaths []string, baselinePath string) *Monitor {
	return &Monitor{
		criticalPaths: criticalPaths,
		baselinePath:  baselinePath,
	}
}

// Check runs one drift cycle. On the very first call, if no baseline file
// exists on disk, it hashes every resolvable path, persists the result, and
// returns no events. On subsequent calls it diffs the current hashes
// against the persisted baseline.
func (m *Monitor) Check(now time.Time) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		if err := m.load(); err != nil {
			return nil, err
		}
	}

	if m.baseline == nil {
		current := m.hashAll()
		m.baseline = current
		if err := m.persist(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	current := m.hashAll()
	var events []model.Event

	for path, hash := range current {
		old, ok := m.baseline[path]
		switch {
		case !ok:
			events = append(events, newEvent("config_new_file", model.SeverityP3, path,
				fmt.Sprintf("New file appeared: %s", path),
				map[string]interface{}{"path": path, "new_hash": hash}, now))
		case old != hash:
			events = append(events, newEvent("config_drift", model.SeverityP2, path,
				fmt.Sprintf("File changed: %s", path),
				map[string]interface{}{"path": path, "old_hash": old, "new_hash": hash}, now))
		}
	}
	for path, old := range m.baseline {
		if _, ok := current[path]; !ok {
			events = append(events, newEvent("config_deleted", model.SeverityP2, path,
				fmt.Sprintf("File deleted: %s", path),
				map[string]interface{}{"path": path, "old_hash": old}, now))
		}
	}

	return events, nil
}

// Rebaseline explicitly rebuilds and persists the baseline from the current
// state. It is never called automatically by the orchestrator — drift must
// not be silently rebaselined; this is an operator-invoked escape hatch.
func (m *Monitor) Rebaseline() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseline = m.hashAll()
	return m.persist()
}

func (m *Monitor) load() error {
	m.loaded = true
	data, err := os.ReadFile(m.baselinePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.baseline = nil
			return nil
		}
		return fmt.Errorf("read drift baseline: %w", err)
	}
	var b model.DriftBaseline
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("parse drift baseline: %w", err)
	}
	m.baseline = b
	return nil
}

func (m *Monitor) persist() error {
	data, err := json.MarshalIndent(m.baseline, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal drift baseline: %w", err)
	}
	dir := filepath.Dir(m.baselinePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create baseline dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".drift_baseline-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp baseline: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp baseline: %w", err)
	}
	if err := os.Rename(tmpPath, m.baselinePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename baseline: %w", err)
	}
	return nil
}

// hashAll resolves every configured critical path (literal file, directory,
// or glob containing '*') and hashes each readable file. Unreadable files
// are silently skipped — permission errors are not events.
func (m *Monitor) hashAll() model.DriftBaseline {
	out := make(model.DriftBaseline)
	for _, entry := range m.criticalPaths {
		for _, path := range resolvePaths(entry) {
			if hash, ok := hashFile(path); ok {
				out[path] = hash
			}
		}
	}
	return out
}

// resolvePaths expands one critical-paths entry into concrete file paths.
// Entries containing '*' are expanded whole with filepath.Glob, which does
// not recurse into subdirectories.
func resolvePaths(entry string) []string {
	if idx := strings.Index(entry, "*"); idx >= 0 {
		root := filepath.Dir(entry[:idx])
		pattern := entry
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil
		}
		_ = root
		return matches
	}

	info, err := os.Stat(entry)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		return []string{entry}
	}

	var out []string
	entries, err := os.ReadDir(entry)
	if err != nil {
		return nil
	}
	for _, de := range entries {
		if de.Type()&fs.ModeSymlink != 0 {
			continue
		}
		if de.IsDir() {
			continue
		}
		out = append(out, filepath.Join(entry, de.Name()))
	}
	return out
}

func hashFile(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", false
	}
	return hex.EncodeToString(h.Sum(nil)), true
}

func newEvent(eventType string, sev model.Severity, path, summary string, raw map[string]interface{}, now time.Time) model.Event {
	return model.Event{
		EventID:    fmt.Sprintf("drift-%s-%d", eventType, now.UnixNano()),
		Source:     "drift_monitor",
		EventType:  eventType,
		Severity:   sev,
		Summary:    summary,
		Raw:        raw,
		Timestamp:  now,
		AssetIDs:   []string{"host"},
		Confidence: 1.0,
	}
}
