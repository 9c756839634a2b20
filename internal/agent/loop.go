// Package agent implements the bounded LLM-driven scan/resolve loop: a
// whitelist-gated command executor wrapped around a chat model, with a
// budget guard and secret scrubbing on every outbound message.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const (
	stdoutTruncateChars = 1500
	stderrTruncateChars = 500
	commandTimeout      = 30 * time.Second
)

// CommandSuggestion is one command the model proposed.
type CommandSuggestion struct {
	Cmd    string `json:"cmd"`
	Reason string `json:"reason"`
}

// Finding describes a vulnerability the model reported in scan mode.
type Finding struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// modelResponse is the strict JSON shape every model turn must parse as.
type modelResponse struct {
	Commands           []CommandSuggestion `json:"commands"`
	Done               bool                `json:"done"`
	VulnerabilityFound bool                `json:"vulnerability_found"`
	Finding            *Finding            `json:"finding"`
}

// fencedBlock extracts the content of the first fenced code block, used as
// a tolerant fallback when a model turn isn't bare JSON.
var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

func parseModelResponse(text string) (modelResponse, error) {
	var resp modelResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &resp); err == nil {
		return resp, nil
	}
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &resp); err == nil {
			return resp, nil
		}
	}
	return modelResponse{}, fmt.Errorf("could not parse model response as JSON: %s", truncate(text, 200))
}

// CommandExecutor runs a whitelisted shell command and captures its output.
// Implementations must honor ctx's deadline.
type CommandExecutor interface {
	Run(ctx context.Context, cmd string) (stdout string, stderr string, exitCode int, err error)
}

// ShellExecutor runs commands via `sh -c`, optionally as another user.
type ShellExecutor struct {
	// RunAs, when non-empty, wraps every command in `sudo -u <RunAs> --`
	// before execution, matching the original's _execute_command behavior.
	RunAs string
}

// Run executes cmd with a bounded timeout.
func (e ShellExecutor) Run(ctx context.Context, cmd string) (string, string, int, error) {
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var c *exec.Cmd
	if e.RunAs != "" {
		c = exec.CommandContext(cctx, "sudo", "-u", e.RunAs, "--", "sh", "-c", cmd)
	} else {
		c = exec.CommandContext(cctx, "sh", "-c", cmd)
	}
	var stdout, stderr strings.Builder
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		exitCode = -1
	}
	return stdout.String(), stderr.String(), exitCode, nil
}

// Agent runs the bounded scan/resolve loop.
type Agent struct {
	Chat          Chat
	Whitelist     *Whitelist
	Budget        *Budget
	Scrubber      *Scrubber
	Executor      CommandExecutor
	MaxIterations int
	Model         string
	MaxTokens     int
	InputPricePerMTok  float64
	OutputPricePerMTok float64
	Logger        *log.Logger
}

// Result is the terminal state of a Run.
type Result struct {
	Done               bool
	VulnerabilityFound bool
	Finding            *Finding
	Iterations         int
	ExecutedCommands   []CommandSuggestion
	Transcript         []Message
}

// Run drives the loop: iterations are capped at MaxIterations (default 10);
// every suggested command is checked against the whitelist before
// execution — commands that don't match are silently discarded, never
// "allowed because they look safe". The loop ends when the model sets
// done=true, when no command from a turn is executable, or when the
// iteration cap is hit.
func (a *Agent) Run(ctx context.Context, systemPrompt string, initialUserMessage string) (Result, error) {
	maxIter := a.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}

	messages := []Message{{Role: "user", Content: initialUserMessage}}
	result := Result{}

	for iter := 0; iter < maxIter; iter++ {
		result.Iterations = iter + 1

		if err := a.Budget.CheckBudget(); err != nil {
			a.logf("agent loop stopping: %v", err)
			break
		}
		release, err := a.Budget.Acquire(ctx)
		if err != nil {
			a.logf("agent loop stopping: could not acquire a call slot: %v", err)
			break
		}

		scrubbedSystem := a.Scrubber.ScrubString(systemPrompt)
		scrubbedMessages := make([]Message, len(messages))
		for i, m := range messages {
			scrubbedMessages[i] = Message{Role: m.Role, Content: a.Scrubber.ScrubString(m.Content)}
		}

		resp, err := a.Chat.Complete(ctx, a.Model, scrubbedSystem, scrubbedMessages, a.MaxTokens)
		release()
		if err != nil {
			a.logf("agent loop stopping: chat call failed: %v", err)
			break
		}
		a.Budget.RecordCost(resp.InputTokens, resp.OutputTokens, a.InputPricePerMTok, a.OutputPricePerMTok)

		messages = append(messages, Message{Role: "assistant", Content: resp.Text})
		result.Transcript = messages

		parsed, err := parseModelResponse(resp.Text)
		if err != nil {
			a.logf("agent loop stopping: %v", err)
			break
		}

		if parsed.VulnerabilityFound {
			result.VulnerabilityFound = true
			result.Finding = parsed.Finding
		}

		executable := a.filterWhitelisted(parsed.Commands)

		if len(executable) > 0 {
			observations := a.executeAll(ctx, executable)
			result.ExecutedCommands = append(result.ExecutedCommands, executable...)
			messages = append(messages, Message{Role: "user", Content: observations})
		}

		if parsed.Done {
			result.Done = true
			break
		}
		if len(executable) == 0 {
			break
		}
	}

	return result, nil
}

func (a *Agent) filterWhitelisted(cmds []CommandSuggestion) []CommandSuggestion {
	var out []CommandSuggestion
	for _, c := range cmds {
		if a.Whitelist.Allowed(c.Cmd) {
			out = append(out, c)
		} else {
			a.logf("discarding non-whitelisted command: %q", c.Cmd)
		}
	}
	return out
}

func (a *Agent) executeAll(ctx context.Context, cmds []CommandSuggestion) string {
	var sb strings.Builder
	for _, c := range cmds {
		stdout, stderr, exitCode, _ := a.Executor.Run(ctx, c.Cmd)
		fmt.Fprintf(&sb, "$ %s\nexit: %d\nstdout:\n%s\nstderr:\n%s\n\n",
			c.Cmd, exitCode, truncate(stdout, stdoutTruncateChars), truncate(stderr, stderrTruncateChars))
	}
	return sb.String()
}

func (a *Agent) logf(format string, args ...interface{}) {
	if a.Logger != nil {
		a.Logger.Printf(format, args...)
	}
}
