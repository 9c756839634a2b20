package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is one turn in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is a model turn plus token accounting for budget purposes.
type ChatResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Chat is the port through which the agent loop talks to an LLM provider.
// The wire protocol (OpenAI vs. Anthropic) lives entirely behind this
// interface.
type Chat interface {
	Complete(ctx context.Context, model string, system string, messages []Message, maxTokens int) (ChatResponse, error)
}

const apiTimeout = 60 * time.Second

// OpenAIChat calls an OpenAI-compatible /v1/chat/completions endpoint.
type OpenAIChat struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

// NewOpenAIChat builds an OpenAIChat client, defaulting BaseURL when empty.
func NewOpenAIChat(apiKey, baseURL string) *OpenAIChat {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIChat{APIKey: apiKey, BaseURL: baseURL, HTTP: &http.Client{Timeout: apiTimeout}}
}

type openAIRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends system+messages to the chat completions endpoint.
func (c *OpenAIChat) Complete(ctx context.Context, model string, system string, messages []Message, maxTokens int) (ChatResponse, error) {
	all := append([]Message{{Role: "system", Content: system}}, messages...)
	body, err := json.Marshal(openAIRequest{Model: model, Messages: all, MaxTokens: maxTokens})
	if err != nil {
		return ChatResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return ChatResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return ChatResponse{}, fmt.Errorf("openai chat completion failed: %s: %s", resp.Status, truncate(string(respBody), 500))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return ChatResponse{}, fmt.Errorf("parsing openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("openai response had no choices")
	}

	return ChatResponse{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// AnthropicChat calls the Anthropic /v1/messages endpoint, separating the
// system message per Anthropic's wire format.
type AnthropicChat struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

// NewAnthropicChat builds an AnthropicChat client, defaulting BaseURL when empty.
func NewAnthropicChat(apiKey, baseURL string) *AnthropicChat {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicChat{APIKey: apiKey, BaseURL: baseURL, HTTP: &http.Client{Timeout: apiTimeout}}
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends system (separated per Anthropic's format) and messages to
// the messages endpoint.
func (c *AnthropicChat) Complete(ctx context.Context, model string, system string, messages []Message, maxTokens int) (ChatResponse, error) {
	body, err := json.Marshal(anthropicRequest{Model: model, System: system, Messages: messages, MaxTokens: maxTokens})
	if err != nil {
		return ChatResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return ChatResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return ChatResponse{}, fmt.Errorf("anthropic messages call failed: %s: %s", resp.Status, truncate(string(respBody), 500))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return ChatResponse{}, fmt.Errorf("parsing anthropic response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return ChatResponse{}, fmt.Errorf("anthropic response had no content blocks")
	}

	return ChatResponse{
		Text:         parsed.Content[0].Text,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

// truncate shortens s to max characters, appending "..." if truncated.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
