// Package transcribe provides the remote speech-to-text client.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1/audio/transcriptions"

// ErrEmptyTranscript indicates the API call succeeded but returned no
// usable text.
var ErrEmptyTranscript = errors.New("transcription returned no text")

// Client submits finalized audio payloads to a speech-to-text API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Config holds transcription client configuration
type Config struct {
	BaseURL string        // Optional, defaults to the OpenAI transcriptions endpoint
	Timeout time.Duration // HTTP timeout, default 60s
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 60 * time.Second,
	}
}

// New creates a new transcription client
func New(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Transcribe submits one multipart request containing the audio payload
// and returns the whitespace-trimmed transcript. A non-success response
// surfaces the response body as the failure detail; a success response
// with no text fails with ErrEmptyTranscript.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType, model, apiKey string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", payloadFilename(contentType))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}

	if err := writer.WriteField("model", model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}

	// Ask for a structured response rather than plain text
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write response_format field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
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

	var apiResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	text := strings.TrimSpace(apiResp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	return text, nil
}

// payloadFilename picks the upload filename from the payload's declared
// content type
func payloadFilename(contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "ogg") {
		return "recording.ogg"
	}
	return "recording.webm"
}
