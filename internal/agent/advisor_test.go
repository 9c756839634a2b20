package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/opensecagent/agent/internal/model"
)

type recordingChat struct {
	lastSystem   string
	lastMessages []Message
	reply        string
}

func (c *recordingChat) Complete(ctx context.Context, model, system string, messages []Message, maxTokens int) (ChatResponse, error) {
	c.lastSystem = system
	c.lastMessages = messages
	return ChatResponse{Text: c.reply}, nil
}

func TestSummarizeScrubsNarrativeBeforeSending(t *testing.T) {
	chat := &recordingChat{reply: "Summary text."}
	adv := &Advisor{Chat: chat, Scrubber: NewScrubber(nil), Model: "m", MaxTokens: 256}

	inc := &model.Incident{
		IncidentID:      "inc-1",
		Title:           "leaked credential",
		Severity:        model.SeverityP2,
		Narrative:       "found password=hunter2 in a log line",
		EvidenceSummary: map[string]interface{}{"event_type": "config_drift"},
	}

	summary, err := adv.Summarize(context.Background(), inc)
	if err != nil {
		t.Fatal(err)
	}
	if summary != "Summary text." {
		t.Fatalf("unexpected summary: %s", summary)
	}
	if strings.Contains(chat.lastMessages[0].Content, "hunter2") {
		t.Fatalf("expected secret to be scrubbed before sending, got %q", chat.lastMessages[0].Content)
	}
}
