package agent

import (
	"context"
	"fmt"

	"github.com/opensecagent/agent/internal/model"
)

// Advisor produces short, defensive-only natural-language summaries of an
// incident for the audit trail and digest reports.
type Advisor struct {
	Chat      Chat
	Scrubber  *Scrubber
	Model     string
	MaxTokens int
}

const advisorSystemPrompt = `You are a defensive security analyst. Summarize the following incident in 2-3 sentences for a human operator. Be factual and concise. Do not suggest offensive actions.`

// Summarize asks the model for a short narrative summary of inc, scrubbing
// the narrative and evidence before they leave the host.
func (a *Advisor) Summarize(ctx context.Context, inc *model.Incident) (string, error) {
	narrative := a.Scrubber.ScrubString(inc.Narrative)
	evidence := a.Scrubber.ScrubMap(inc.EvidenceSummary)

	userMsg := fmt.Sprintf("Title: %s\nSeverity: %s\nNarrative: %s\nEvidence: %v",
		inc.Title, inc.Severity, narrative, evidence)

	resp, err := a.Chat.Complete(ctx, a.Model, advisorSystemPrompt, []Message{{Role: "user", Content: userMsg}}, a.MaxTokens)
	if err != nil {
		return "", fmt.Errorf("summarizing incident %s: %w", inc.IncidentID, err)
	}
	return resp.Text, nil
}
