// Package note provides the note composition client.
package note

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

// defaultTemperature is used for every model outside the reasoning
// family: low and near-deterministic.
const defaultTemperature = 0.2

// reasoningModel is the model family that rejects a sampling
// temperature; requests for it omit the field entirely. The check is
// an exact case-insensitive match, not a capability probe.
const reasoningModel = "gpt-5-mini"

// ErrEmptyNote indicates the API call succeeded but returned no usable
// note text.
var ErrEmptyNote = errors.New("note composition returned no text")

// Composer turns transcripts into notes via a chat completion API.
type Composer struct {
	baseURL string
	http    *http.Client
}

// Config holds composer configuration
type Config struct {
	BaseURL string        // Optional, defaults to the OpenAI chat completions endpoint
	Timeout time.Duration // HTTP timeout, default 60s
}

// DefaultConfig returns the default composer configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 60 * time.Second,
	}
}

// New creates a new note composer
func New(config Config) *Composer {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Composer{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Compose submits one two-message exchange (system instruction, user
// transcript) and returns the first choice's content, trimmed. A
// non-success response surfaces the response body as the failure
// detail; an empty result fails with ErrEmptyNote.
func (c *Composer) Compose(ctx context.Context, transcript, instruction, model, apiKey string) (string, error) {
	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: transcript},
		},
		Temperature: temperatureFor(model),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyNote
	}

	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyNote
	}

	return text, nil
}

// temperatureFor returns nil for the reasoning model family, which
// makes the JSON field disappear rather than be set to zero
func temperatureFor(model string) *float64 {
	if strings.EqualFold(model, reasoningModel) {
		return nil
	}
	t := defaultTemperature
	return &t
}
