package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"os/exec"

	"github.com/opensecagent/agent/internal/model"
)

// NpmAuditDetector walks configured roots looking for package.json and runs
// npm audit --json in each directory found.
type NpmAuditDetector struct {
	Roots        []string
	MaxDepth     int
	MaxDirectories int
}

type npmAuditReport struct {
	Metadata struct {
		Vulnerabilities struct {
			Critical int `json:"critical"`
			High     int `json:"high"`
		} `json:"vulnerabilities"`
	} `json:"metadata"`
}

// Check finds package.json directories under the configured roots (up to
// MaxDepth, capped at MaxDirectories) and runs npm audit in each.
func (d *NpmAuditDetector) Check(ctx context.Context, now time.Time) []model.Event {
	if _, err := exec.LookPath("npm"); err != nil {
		return nil
	}
	maxDepth := d.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 4
	}
	maxDirs := d.MaxDirectories
	if maxDirs <= 0 {
		maxDirs = 50
	}

	var dirs []string
	for _, root := range d.Roots {
		findPackageJSONDirs(root, maxDepth, &dirs, maxDirs)
		if len(dirs) >= maxDirs {
			break
		}
	}

	var events []model.Event
	for _, dir := range dirs {
		ev := d.auditOne(ctx, dir, now)
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

func (d *NpmAuditDetector) auditOne(ctx context.Context, dir string, now time.Time) *model.Event {
	cctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	cmd := exec.CommandContext(cctx, "npm", "audit", "--json")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if exitErr.ExitCode() != 1 {
				return nil
			}
		} else {
			return nil
		}
	}

	var report npmAuditReport
	if jsonErr := json.Unmarshal(out, &report); jsonErr != nil {
		return nil
	}

	critical := report.Metadata.Vulnerabilities.Critical
	high := report.Metadata.Vulnerabilities.High

	var severity model.Severity
	switch {
	case critical > 0:
		severity = model.SeverityP1
	case high > 0:
		severity = model.SeverityP2
	default:
		return nil
	}

	return &model.Event{
		EventID:   fmt.Sprintf("npm-audit-%d", now.UnixNano()),
		Source:    "detector.npm_audit",
		EventType: "npm_audit_vulnerabilities",
		Severity:  severity,
		Summary:   fmt.Sprintf("npm audit found %d critical, %d high vulnerabilities in %s", critical, high, dir),
		Raw: map[string]interface{}{
			"path":     dir,
			"critical": critical,
			"high":     high,
		},
		Timestamp:  now,
		AssetIDs:   []string{"host"},
		Confidence: 1.0,
	}
}

// findPackageJSONDirs recursively appends directories containing a
// package.json to dirs, stopping at maxDepth and maxDirs.
func findPackageJSONDirs(root string, maxDepth int, dirs *[]string, maxDirs int) {
	if len(*dirs) >= maxDirs {
		return
	}
	walkDepth(root, 0, maxDepth, dirs, maxDirs)
}

func walkDepth(dir string, depth, maxDepth int, dirs *[]string, maxDirs int) {
	if len(*dirs) >= maxDirs || depth > maxDepth {
		return
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		*dirs = append(*dirs, dir)
	}
	if depth == maxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if len(*dirs) >= maxDirs {
			return
		}
		if !e.IsDir() || e.Name() == "node_modules" {
			continue
		}
		walkDepth(filepath.Join(dir, e.Name()), depth+1, maxDepth, dirs, maxDirs)
	}
}
