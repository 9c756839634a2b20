// Package reporter batches incidents into a digest, sends immediate alerts
// for high-severity incidents, and runs a background digest-flush loop.
// Outbound transport (SMTP, Resend) is abstracted behind the Mailer port —
// its wire protocol is out of scope here.
package reporter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

// Mailer is the outbound notification port. Concrete SMTP/Resend transports
// implement it elsewhere; this package only calls it.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// DigestConfig controls when the background digest flush runs.
type DigestConfig struct {
	Enabled  bool
	HourUTC  int
	Minute   int
}

// Reporter batches incidents for the admin digest and sends immediate
// alerts for severities listed in ImmediateSeverities.
type Reporter struct {
	mu                  sync.Mutex
	pendingDigest       []digestEntry
	Mailer              Mailer
	ImmediateSeverities map[model.Severity]bool
	Digest              DigestConfig
	Logger              *log.Logger
}

type digestEntry struct {
	Incident       *model.Incident
	AllowedActions []model.ActionSpec
}

// New builds a Reporter with the given immediate-severity set.
func New(mailer Mailer, immediateSeverities []model.Severity, digest DigestConfig, logger *log.Logger) *Reporter {
	set := make(map[model.Severity]bool, len(immediateSeverities))
	for _, s := range immediateSeverities {
		set[s] = true
	}
	return &Reporter{Mailer: mailer, ImmediateSeverities: set, Digest: digest, Logger: logger}
}

// ReportIncident appends inc to the pending digest and, if its severity is
// in ImmediateSeverities, sends an immediate notification right away.
func (r *Reporter) ReportIncident(ctx context.Context, inc *model.Incident, allowedActions []model.ActionSpec) {
	r.mu.Lock()
	r.pendingDigest = append(r.pendingDigest, digestEntry{Incident: inc, AllowedActions: allowedActions})
	r.mu.Unlock()

	if r.ImmediateSeverities[inc.Severity] {
		subject := fmt.Sprintf("[%s] %s", inc.Severity, inc.Title)
		body := formatIncident(inc, allowedActions)
		if err := r.Mailer.Send(ctx, subject, body); err != nil {
			r.logf("failed to send immediate alert for incident %s: %v", inc.IncidentID, err)
		}
	}
}

// SendVulnerabilityAlert sends a single-shot alert for an LLM-scan finding.
func (r *Reporter) SendVulnerabilityAlert(ctx context.Context, threatID, title, description, severity string) error {
	subject := fmt.Sprintf("[%s] Vulnerability found: %s", severity, title)
	body := fmt.Sprintf("Threat ID: %s\n\n%s", threatID, description)
	return r.Mailer.Send(ctx, subject, body)
}

// SendResolutionNotification sends a single-shot alert once a threat has
// been resolved by the agent.
func (r *Reporter) SendResolutionNotification(ctx context.Context, threatID string, actionsTaken []string) error {
	subject := fmt.Sprintf("Resolved: %s", threatID)
	body := "Actions taken:\n"
	for _, a := range actionsTaken {
		body += "- " + a + "\n"
	}
	return r.Mailer.Send(ctx, subject, body)
}

// flush sends the pending digest as a single email and clears it.
func (r *Reporter) flush(ctx context.Context) {
	r.mu.Lock()
	entries := r.pendingDigest
	r.pendingDigest = nil
	r.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	body := fmt.Sprintf("%d incident(s) since the last digest:\n\n", len(entries))
	for _, e := range entries {
		body += formatIncident(e.Incident, e.AllowedActions) + "\n"
	}
	if err := r.Mailer.Send(ctx, fmt.Sprintf("Security digest: %d incidents", len(entries)), body); err != nil {
		r.logf("failed to send digest: %v", err)
	}
}

// RunDigestLoop blocks, sleeping in 60-second increments, until ctx is
// canceled. Each time the UTC clock reaches hour:minute it flushes the
// pending digest, then sleeps a full hour before checking again — matching
// the distilled source's polling cadence rather than a precise cron
// schedule.
func (r *Reporter) RunDigestLoop(ctx context.Context) {
	if !r.Digest.Enabled {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(60 * time.Second):
		}

		now := time.Now().UTC()
		if now.Hour() == r.Digest.HourUTC && now.Minute() >= r.Digest.Minute {
			r.flush(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Hour):
			}
		}
	}
}

func formatIncident(inc *model.Incident, allowed []model.ActionSpec) string {
	body := fmt.Sprintf("[%s] %s\n%s\n", inc.Severity, inc.Title, inc.Narrative)
	if len(inc.RecommendedActions) > 0 {
		body += "Recommended: " + inc.RecommendedActions[0] + "\n"
	}
	for _, a := range allowed {
		body += fmt.Sprintf("Allowed action: %s\n", a.Action)
	}
	return body
}

func (r *Reporter) logf(format string, args ...interface{}) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}
