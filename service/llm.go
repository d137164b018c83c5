package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
)

// LLMResult is one completion answer together with the model that produced it
type LLMResult struct {
	Content string
	Model   string
}

// LLMClient is the language-model capability the recommendation engine is
// built against. Production uses the chat client below; tests inject stubs.
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (*LLMResult, error)
}

// ChatClient talks to an OpenAI-compatible chat completion endpoint. Models
// rotate round-robin across calls, and a rate-limited answer advances the
// rotation so the next call lands on a different model.
type ChatClient struct {
	cfg    *config.LLMConfig
	client *http.Client
	cursor atomic.Uint32
}

func NewChatClient(cfg *config.LLMConfig) *ChatClient {
	return &ChatClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *ChatClient) Complete(ctx context.Context, system, user string) (*LLMResult, error) {
	model := c.pickModel()

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		// Burn this model's turn so the retry goes to the next one
		c.cursor.Add(1)
		return nil, fmt.Errorf("model %s rate limited (status 429)", model)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm request returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("llm error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	return &LLMResult{Content: cr.Choices[0].Message.Content, Model: model}, nil
}

func (c *ChatClient) pickModel() string {
	n := c.cursor.Add(1) - 1
	return c.cfg.Models[int(n)%len(c.cfg.Models)]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
