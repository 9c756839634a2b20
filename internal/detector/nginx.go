package detector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

var serverTokensOnPattern = regexp.MustCompile(`(?m)^\s*server_tokens\s+on\s*;`)

// NginxAuditDetector runs `nginx -t` and, if the config is valid, checks a
// readable config file for a server_tokens on directive.
type NginxAuditDetector struct {
	ConfigPaths   []string
	CheckSecurity bool
}

// Check returns nginx_config_invalid (P2) if nginx -t fails, or nginx_security
// (P4, advisory) if server_tokens is left enabled, else nil.
func (d *NginxAuditDetector) Check(ctx context.Context, now time.Time) *model.Event {
	if _, err := exec.LookPath("nginx"); err != nil {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(cctx, "nginx", "-t")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &model.Event{
			EventID:    fmt.Sprintf("nginx-invalid-%d", now.UnixNano()),
			Source:     "detector.nginx",
			EventType:  "nginx_config_invalid",
			Severity:   model.SeverityP2,
			Summary:    "nginx -t reports an invalid configuration",
			Raw:        map[string]interface{}{"output": truncateText(string(out), 2000)},
			Timestamp:  now,
			AssetIDs:   []string{"host"},
			Confidence: 1.0,
		}
	}

	if !d.CheckSecurity {
		return nil
	}

	for _, path := range d.ConfigPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if serverTokensOnPattern.Match(data) {
			return &model.Event{
				EventID:    fmt.Sprintf("nginx-tokens-%d", now.UnixNano()),
				Source:     "detector.nginx",
				EventType:  "nginx_security",
				Severity:   model.SeverityP4,
				Summary:    fmt.Sprintf("server_tokens is enabled in %s", path),
				Raw:        map[string]interface{}{"path": path},
				Timestamp:  now,
				AssetIDs:   []string{"host"},
				Confidence: 1.0,
			}
		}
		break
	}
	return nil
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
