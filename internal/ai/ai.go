// Package ai implements pipeline.FactGenerator: the keyword-trigger and
// scheduled-post stages ask it for an AI-written chat message.
//
// Grounded on the teacher's internal/engine/llm_client.go: a dedicated HTTP
// client struct wrapping one external generation service, context-scoped
// per-call timeouts, JSON request/response bodies decoded into an
// anonymous struct — adapted from a single Python-sidecar backend to two
// selectable backends (a local Ollama instance, or OpenAI) chosen by the
// same LocalAIOnly/OllamaURL/OpenAIAPIKey configuration spec §5 names.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 20 * time.Second

// Client generates short chat facts/messages from either a local Ollama
// instance or the OpenAI chat completions API.
type Client struct {
	localOnly  bool
	ollamaURL  string
	openAIKey  string
	httpClient *http.Client
}

func New(localOnly bool, ollamaURL, openAIKey string) *Client {
	return &Client{
		localOnly:  localOnly,
		ollamaURL:  strings.TrimSuffix(ollamaURL, "/"),
		openAIKey:  openAIKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// GenerateFact implements pipeline.FactGenerator. temperature is on the
// spec's 0..20 scale and rescaled to each backend's native 0.0..2.0 range.
func (c *Client) GenerateFact(ctx context.Context, tenantID string, promptTemplate, model string, temperature int) (string, error) {
	prompt := strings.TrimSpace(promptTemplate)
	if prompt == "" {
		prompt = "Share one short, fun fact for stream chat. Keep it under 200 characters."
	}
	temp := float64(temperature) / 10.0
	if temp <= 0 {
		temp = 0.7
	}

	if c.localOnly || c.openAIKey == "" {
		return c.generateOllama(ctx, prompt, model, temp)
	}
	return c.generateOpenAI(ctx, prompt, model, temp)
}

func (c *Client) generateOllama(ctx context.Context, prompt, model string, temperature float64) (string, error) {
	if c.ollamaURL == "" {
		return "", fmt.Errorf("ai: no ollama url configured and openai disabled")
	}
	if model == "" {
		model = "llama3"
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, _ := json.Marshal(map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ollamaURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ai: build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai: ollama returned status %d", resp.StatusCode)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ai: decode ollama response: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}

func (c *Client) generateOpenAI(ctx context.Context, prompt, model string, temperature float64) (string, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, _ := json.Marshal(map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": temperature,
		"max_tokens":  120,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ai: build openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.openAIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai: openai returned status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ai: decode openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("ai: openai returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
