package detector

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

// FirewallAuditDetector checks whether a host firewall is active, preferring
// ufw and falling back to iptables when ufw is not installed.
type FirewallAuditDetector struct {
	RequireActive bool
}

// Check returns firewall_inactive (P2) if ufw is present but inactive, a
// firewall_audit (P3) advisory if ufw is absent and `iptables -L -n` fails
// or lists no chains, or nil otherwise. Chains with no rules count as present.
func (d *FirewallAuditDetector) Check(ctx context.Context, now time.Time) *model.Event {
	if !d.RequireActive {
		return nil
	}

	if _, err := exec.LookPath("ufw"); err == nil {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		out, _ := exec.CommandContext(cctx, "ufw", "status").CombinedOutput()
		if strings.Contains(strings.ToLower(string(out)), "inactive") {
			return &model.Event{
				EventID:    fmt.Sprintf("firewall-inactive-%d", now.UnixNano()),
				Source:     "detector.firewall",
				EventType:  "firewall_inactive",
				Severity:   model.SeverityP2,
				Summary:    "ufw is installed but inactive",
				Raw:        map[string]interface{}{"output": strings.TrimSpace(string(out))},
				Timestamp:  now,
				AssetIDs:   []string{"host"},
				Confidence: 1.0,
			}
		}
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(cctx, "iptables", "-L", "-n").CombinedOutput()
	if err == nil && strings.Contains(string(out), "Chain") {
		lines := 0
		for _, l := range strings.Split(string(out), "\n") {
			if strings.HasPrefix(l, "Chain") {
				lines++
			}
		}
		if lines > 0 {
			return nil
		}
	}

	return &model.Event{
		EventID:    fmt.Sprintf("firewall-audit-%d", now.UnixNano()),
		Source:     "detector.firewall",
		EventType:  "firewall_audit",
		Severity:   model.SeverityP3,
		Summary:    "No active firewall detected (ufw not installed, iptables lists no chains)",
		Raw:        map[string]interface{}{},
		Timestamp:  now,
		AssetIDs:   []string{"host"},
		Confidence: 0.6,
	}
}
