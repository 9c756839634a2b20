package agent

import (
	"context"
	"fmt"
	"testing"
)

type scriptedChat struct {
	responses []string
	calls     int
}

func (c *scriptedChat) Complete(ctx context.Context, model, system string, messages []Message, maxTokens int) (ChatResponse, error) {
	if c.calls >= len(c.responses) {
		return ChatResponse{Text: `{"commands": [], "done": true}`}, nil
	}
	text := c.responses[c.calls]
	c.calls++
	return ChatResponse{Text: text, InputTokens: 100, OutputTokens: 50}, nil
}

type fakeExecutor struct {
	ran []string
}

func (f *fakeExecutor) Run(ctx context.Context, cmd string) (string, string, int, error) {
	f.ran = append(f.ran, cmd)
	return "ok\n", "", 0, nil
}

func newTestAgent(chat Chat, exec CommandExecutor) *Agent {
	return &Agent{
		Chat:      chat,
		Whitelist: NewWhitelist(),
		Budget:    NewBudget(DefaultBudgetConfig()),
		Scrubber:  NewScrubber(nil),
		Executor:  exec,
		Model:     "test-model",
		MaxTokens: 1024,
	}
}

func TestRunStopsWhenModelSetsDone(t *testing.T) {
	chat := &scriptedChat{responses: []string{`{"commands": [], "done": true}`}}
	exec := &fakeExecutor{}
	a := newTestAgent(chat, exec)

	result, err := a.Run(context.Background(), "system", "start")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Done {
		t.Fatal("expected Done=true")
	}
	if result.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.Iterations)
	}
}

func TestRunExecutesWhitelistedCommandsOnly(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"commands": [{"cmd": "ss -tlnp", "reason": "check ports"}, {"cmd": "rm -rf /", "reason": "nope"}], "done": false}`,
		`{"commands": [], "done": true}`,
	}}
	exec := &fakeExecutor{}
	a := newTestAgent(chat, exec)

	result, err := a.Run(context.Background(), "system", "start")
	if err != nil {
		t.Fatal(err)
	}
	if len(exec.ran) != 1 || exec.ran[0] != "ss -tlnp" {
		t.Fatalf("expected only the whitelisted command to run, got %v", exec.ran)
	}
	if len(result.ExecutedCommands) != 1 {
		t.Fatalf("expected 1 executed command recorded, got %d", len(result.ExecutedCommands))
	}
}

func TestRunExecutesWhitelistedCommandsBeforeStoppingOnDone(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"commands": [{"cmd": "rm -rf /", "reason": "nope"}, {"cmd": "ss -tln", "reason": "check ports"}], "done": true}`,
	}}
	exec := &fakeExecutor{}
	a := newTestAgent(chat, exec)

	result, err := a.Run(context.Background(), "system", "start")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Done {
		t.Fatal("expected Done=true")
	}
	if len(exec.ran) != 1 || exec.ran[0] != "ss -tln" {
		t.Fatalf("expected the whitelisted command to run before the loop stopped, got %v", exec.ran)
	}
	if len(result.ExecutedCommands) != 1 || result.ExecutedCommands[0].Cmd != "ss -tln" {
		t.Fatalf("expected ss -tln recorded in ExecutedCommands, got %v", result.ExecutedCommands)
	}
}

func TestRunStopsWhenNoCommandIsExecutable(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"commands": [{"cmd": "rm -rf /", "reason": "nope"}], "done": false}`,
	}}
	exec := &fakeExecutor{}
	a := newTestAgent(chat, exec)

	result, err := a.Run(context.Background(), "system", "start")
	if err != nil {
		t.Fatal(err)
	}
	if result.Done {
		t.Fatal("expected Done=false when loop ends due to no executable commands")
	}
	if len(exec.ran) != 0 {
		t.Fatalf("expected no commands to run, got %v", exec.ran)
	}
}

func TestRunHitsIterationCap(t *testing.T) {
	var responses []string
	for i := 0; i < 20; i++ {
		responses = append(responses, fmt.Sprintf(`{"commands": [{"cmd": "whoami", "reason": "r%d"}], "done": false}`, i))
	}
	chat := &scriptedChat{responses: responses}
	exec := &fakeExecutor{}
	a := newTestAgent(chat, exec)
	a.MaxIterations = 3

	result, err := a.Run(context.Background(), "system", "start")
	if err != nil {
		t.Fatal(err)
	}
	if result.Iterations != 3 {
		t.Fatalf("expected exactly 3 iterations, got %d", result.Iterations)
	}
	if result.Done {
		t.Fatal("expected Done=false when the iteration cap is hit")
	}
}

func TestRunStopsOnUnparseableResponse(t *testing.T) {
	chat := &scriptedChat{responses: []string{"not json and no fences"}}
	exec := &fakeExecutor{}
	a := newTestAgent(chat, exec)

	result, err := a.Run(context.Background(), "system", "start")
	if err != nil {
		t.Fatal(err)
	}
	if result.Done {
		t.Fatal("expected Done=false on unparseable response")
	}
}

func TestRunParsesFencedCodeBlockFallback(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		"Here is my plan:\n```json\n{\"commands\": [], \"done\": true}\n```\n",
	}}
	exec := &fakeExecutor{}
	a := newTestAgent(chat, exec)

	result, err := a.Run(context.Background(), "system", "start")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Done {
		t.Fatal("expected the fenced JSON to parse and set Done=true")
	}
}

func TestRunCapturesVulnerabilityFinding(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"commands": [], "done": true, "vulnerability_found": true, "finding": {"title": "t", "description": "d", "severity": "P2"}}`,
	}}
	exec := &fakeExecutor{}
	a := newTestAgent(chat, exec)

	result, err := a.Run(context.Background(), "system", "start")
	if err != nil {
		t.Fatal(err)
	}
	if !result.VulnerabilityFound || result.Finding == nil || result.Finding.Title != "t" {
		t.Fatalf("expected a captured finding, got %+v", result.Finding)
	}
}
