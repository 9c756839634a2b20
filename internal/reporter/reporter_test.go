package reporter

import (
	"context"
	"testing"

	"github.com/opensecagent/agent/internal/model"
)

type fakeMailer struct {
	sent []string
}

func (f *fakeMailer) Send(ctx context.Context, subject, body string) error {
	f.sent = append(f.sent, subject)
	return nil
}

func TestReportIncidentSendsImmediateForHighSeverity(t *testing.T) {
	mailer := &fakeMailer{}
	r := New(mailer, []model.Severity{model.SeverityP1, model.SeverityP2}, DigestConfig{}, nil)

	r.ReportIncident(context.Background(), &model.Incident{IncidentID: "i1", Severity: model.SeverityP1, Title: "t"}, nil)

	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 immediate send, got %d", len(mailer.sent))
	}
}

func TestReportIncidentDoesNotSendImmediateForLowSeverity(t *testing.T) {
	mailer := &fakeMailer{}
	r := New(mailer, []model.Severity{model.SeverityP1, model.SeverityP2}, DigestConfig{}, nil)

	r.ReportIncident(context.Background(), &model.Incident{IncidentID: "i1", Severity: model.SeverityP4, Title: "t"}, nil)

	if len(mailer.sent) != 0 {
		t.Fatalf("expected no immediate send for P4, got %d", len(mailer.sent))
	}
	if len(r.pendingDigest) != 1 {
		t.Fatalf("expected the incident to still be queued for digest, got %d", len(r.pendingDigest))
	}
}

func TestFlushSendsDigestAndClearsQueue(t *testing.T) {
	mailer := &fakeMailer{}
	r := New(mailer, nil, DigestConfig{}, nil)

	r.ReportIncident(context.Background(), &model.Incident{IncidentID: "i1", Severity: model.SeverityP3, Title: "t"}, nil)
	r.ReportIncident(context.Background(), &model.Incident{IncidentID: "i2", Severity: model.SeverityP3, Title: "t2"}, nil)

	r.flush(context.Background())

	if len(mailer.sent) != 1 {
		t.Fatalf("expected exactly one digest email, got %d", len(mailer.sent))
	}
	if len(r.pendingDigest) != 0 {
		t.Fatalf("expected pending digest to be cleared, got %d", len(r.pendingDigest))
	}
}

func TestFlushWithEmptyDigestSendsNothing(t *testing.T) {
	mailer := &fakeMailer{}
	r := New(mailer, nil, DigestConfig{}, nil)
	r.flush(context.Background())
	if len(mailer.sent) != 0 {
		t.Fatalf("expected no email for an empty digest, got %d", len(mailer.sent))
	}
}

func TestSendVulnerabilityAlert(t *testing.T) {
	mailer := &fakeMailer{}
	r := New(mailer, nil, DigestConfig{}, nil)
	if err := r.SendVulnerabilityAlert(context.Background(), "thr-1", "title", "desc", "P2"); err != nil {
		t.Fatal(err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(mailer.sent))
	}
}
