package reporter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

// VulnerabilityReportRenderer is the PDF-report port. Its wire format is
// out of scope here (spec.md §1 lists "PDF report rendering" as an
// abstracted external collaborator); this package only calls it.
type VulnerabilityReportRenderer interface {
	Render(threatID string, finding *model.ThreatFinding, outputPath string) error
}

// TextFallbackRenderer writes a plain-text report under a .pdf extension.
// No PDF-producing library appears anywhere in the example corpus this
// repo was grounded on, so this mirrors the original's own behavior when
// its PDF library is unavailable: a readable text file at the same path,
// rather than inventing a dependency the corpus never reaches for.
type TextFallbackRenderer struct{}

// Render writes threatID's finding as a plain-text report to outputPath.
func (TextFallbackRenderer) Render(threatID string, finding *model.ThreatFinding, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	var evidenceLines []string
	keys := make([]string, 0, len(finding.Evidence))
	for k := range finding.Evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		evidenceLines = append(evidenceLines, fmt.Sprintf("  %s: %v", k, finding.Evidence[k]))
	}

	body := fmt.Sprintf("OpenSecAgent Vulnerability Report\nThreat ID: %s\nGenerated: %s\n\nTitle: %s\nSeverity: %s\n\nDescription:\n%s\n",
		threatID, time.Now().UTC().Format(time.RFC3339), finding.Title, finding.Severity, finding.Description)
	if len(evidenceLines) > 0 {
		body += "\nEvidence:\n"
		for _, l := range evidenceLines {
			body += l + "\n"
		}
	}

	return os.WriteFile(outputPath, []byte(body), 0o600)
}

// ReportPath returns the conventional path for threatID's vulnerability
// report under dataDir.
func ReportPath(dataDir, threatID string) string {
	return filepath.Join(dataDir, "reports", "vuln-"+threatID+".pdf")
}
