// Package threatregistry persists threat records to one file per record
// under the data directory, so the LLM agent can be given recent history as
// context and an operator can audit past resolutions.
package threatregistry

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Registry stores and loads ThreatRecords in dir, one JSON file per record.
type Registry struct {
	dir    string
	logger *log.Logger
}

// New returns a Registry rooted at dir, creating it if absent.
func New(dir string, logger *log.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating threat directory: %w", err)
	}
	return &Registry{dir: dir, logger: logger}, nil
}

// Record mirrors model.ThreatRecord's on-disk JSON shape.
type Record struct {
	ThreatID          string                 `json:"threat_id"`
	Title             string                 `json:"title"`
	Description       string                 `json:"description"`
	Severity          string                 `json:"severity"`
	Evidence          map[string]interface{} `json:"evidence"`
	ResolutionActions []string               `json:"resolution_actions"`
	DetectedAt        string                 `json:"detected_at"`
	ResolvedAt        *string                `json:"resolved_at,omitempty"`
}

// Store writes a new threat record and returns its ID.
func (r *Registry) Store(title, description, severity string, evidence map[string]interface{}, resolutionActions []string) (string, error) {
	id := newThreatID()
	rec := Record{
		ThreatID:          id,
		Title:             title,
		Description:       description,
		Severity:          severity,
		Evidence:          evidence,
		ResolutionActions: resolutionActions,
		DetectedAt:        time.Now().UTC().Format(time.RFC3339),
	}
	if len(resolutionActions) > 0 {
		now := time.Now().UTC().Format(time.RFC3339)
		rec.ResolvedAt = &now
	}
	return id, r.write(rec)
}

// MarkResolved updates an existing record with the actions that resolved
// it. A missing record is a no-op, matching the distilled source.
func (r *Registry) MarkResolved(threatID string, actionsTaken []string) error {
	rec, ok, err := r.read(threatID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	rec.ResolutionActions = actionsTaken
	now := time.Now().UTC().Format(time.RFC3339)
	rec.ResolvedAt = &now
	return r.write(rec)
}

// LoadRecent returns up to limit of the most recently modified threat
// records, formatted as a "Previous threats and resolutions" block for
// inclusion in the agent's system prompt. Corrupt files are skipped with a
// log line, never fatal.
func (r *Registry) LoadRecent(limit int) string {
	if limit <= 0 {
		limit = 20
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return ""
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(r.dir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	var records []Record
	for _, f := range files {
		if len(records) >= limit {
			break
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			r.logf("skipping threat file %s: %v", f.path, err)
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			r.logf("skipping corrupt threat file %s: %v", f.path, err)
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Previous threats and resolutions (use for similar cases):\n\n")
	for _, rec := range records {
		fmt.Fprintf(&sb, "- [%s] %s\n", rec.Severity, rec.Title)
		fmt.Fprintf(&sb, "  Description: %s\n", truncateText(rec.Description, 300))
		if len(rec.ResolutionActions) > 0 {
			actions := rec.ResolutionActions
			if len(actions) > 5 {
				actions = actions[:5]
			}
			sb.WriteString("  Resolved by: " + strings.Join(actions, "; ") + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (r *Registry) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(r.dir, rec.ThreatID+".json")

	tmp, err := os.CreateTemp(r.dir, rec.ThreatID+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for threat record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (r *Registry) read(threatID string) (Record, bool, error) {
	path := filepath.Join(r.dir, threatID+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *Registry) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func newThreatID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "thr-" + hex.EncodeToString(buf)
}
