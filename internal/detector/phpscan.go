package detector

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

type phpPattern struct {
	re       *regexp.Regexp
	severity model.Severity
	label    string
}

// phpPatterns is evaluated in order; the first match wins. P1 patterns
// (obfuscated eval/base64 payloads) are checked before P2 (dangerous
// execution primitives) and P3 (suspicious-but-common constructs).
var phpPatterns = []phpPattern{
	{regexp.MustCompile(`eval\s*\(\s*base64_decode\s*\(`), model.SeverityP1, "eval_base64_decode"},
	{regexp.MustCompile(`eval\s*\(\s*gzinflate\s*\(`), model.SeverityP1, "eval_gzinflate"},
	{regexp.MustCompile(`eval\s*\(\s*str_rot13\s*\(`), model.SeverityP1, "eval_str_rot13"},
	{regexp.MustCompile(`\bshell_exec\s*\(`), model.SeverityP2, "shell_exec"},
	{regexp.MustCompile(`\bpassthru\s*\(`), model.SeverityP2, "passthru"},
	{regexp.MustCompile(`\bproc_open\s*\(`), model.SeverityP2, "proc_open"},
	{regexp.MustCompile(`\bpcntl_exec\s*\(`), model.SeverityP2, "pcntl_exec"},
	{regexp.MustCompile(`\bsystem\s*\(`), model.SeverityP2, "system"},
	{regexp.MustCompile(`\bexec\s*\(`), model.SeverityP2, "exec"},
	{regexp.MustCompile(`\bpopen\s*\(`), model.SeverityP2, "popen"},
	{regexp.MustCompile(`base64_decode\s*\(\s*["'][A-Za-z0-9+/=]{80,}["']\s*\)`), model.SeverityP2, "long_base64_literal"},
	{regexp.MustCompile(`\$\{?\$\w+\}?\s*\(`), model.SeverityP3, "variable_function_call"},
	{regexp.MustCompile(`file_get_contents\s*\(\s*["']https?://`), model.SeverityP3, "remote_file_get_contents"},
	{regexp.MustCompile(`\bcurl_exec\s*\(`), model.SeverityP3, "curl_exec"},
}

// PhpScanDetector recursively scans configured roots for *.php files and
// matches them against a fixed ordered list of malware indicator patterns.
type PhpScanDetector struct {
	Roots    []string
	MaxDepth int
	MaxFiles int
	MaxBytes int64
}

// Check walks the configured roots and returns one event per file on its
// first matching pattern, up to MaxFiles total files examined.
func (d *PhpScanDetector) Check(now time.Time) []model.Event {
	maxDepth := d.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 6
	}
	maxFiles := d.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 500
	}
	maxBytes := d.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 100 * 1024
	}

	var files []string
	for _, root := range d.Roots {
		walkPHPFiles(root, 0, maxDepth, &files, maxFiles)
		if len(files) >= maxFiles {
			break
		}
	}

	var events []model.Event
	for _, path := range files {
		ev := scanPHPFile(path, maxBytes, now)
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

func scanPHPFile(path string, maxBytes int64, now time.Time) *model.Event {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	buf := make([]byte, maxBytes)
	n, _ := f.Read(buf)
	content := buf[:n]

	for _, p := range phpPatterns {
		if p.re.Match(content) {
			return &model.Event{
				EventID:   fmt.Sprintf("php-scan-%s-%d", p.label, now.UnixNano()),
				Source:    "detector.php_scan",
				EventType: "php_malware_suspected",
				Severity:  p.severity,
				Summary:   fmt.Sprintf("Suspicious pattern %q found in %s", p.label, path),
				Raw: map[string]interface{}{
					"path":    path,
					"pattern": p.label,
				},
				Timestamp:  now,
				AssetIDs:   []string{"host"},
				Confidence: 0.7,
			}
		}
	}
	return nil
}

func walkPHPFiles(dir string, depth, maxDepth int, files *[]string, maxFiles int) {
	if len(*files) >= maxFiles || depth > maxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if len(*files) >= maxFiles {
			return
		}
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			walkPHPFiles(full, depth+1, maxDepth, files, maxFiles)
			continue
		}
		if filepath.Ext(e.Name()) == ".php" {
			*files = append(*files, full)
		}
	}
}
