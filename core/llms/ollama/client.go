// Package ollama answers chat requests through a local Ollama server,
// used when testing agents without cloud credentials.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/saylem-ai/saylem-core/core/llms"
)

const defaultEndpoint = "http://localhost:11434/api/chat"

type Client struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewClient(endpoint, model string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if model == "" {
		model = "tinyllama"
	}
	return &Client{
		endpoint: endpoint,
		model:    model,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   60 * time.Second,
		},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message message `json:"message"`
	Done    bool    `json:"done"`
}

func (c *Client) Reply(ctx context.Context, history []llms.Message, opts ...llms.ReplyOption) (string, error) {
	options := llms.ReplyOptions{Model: c.model}
	for _, opt := range opts {
		opt(&options)
	}

	messages := make([]message, 0, len(history)+1)
	if options.Instructions != "" {
		messages = append(messages, message{Role: string(llms.MessageRoleSystem), Content: options.Instructions})
	}
	for _, entry := range history {
		messages = append(messages, message{Role: string(entry.Role), Content: entry.Content})
	}

	modelOptions := map[string]any{}
	if options.Temperature != nil {
		modelOptions["temperature"] = *options.Temperature
	}
	if options.MaxTokens > 0 {
		modelOptions["num_predict"] = options.MaxTokens
	}

	requestBodyBytes, err := json.Marshal(chatRequest{
		Model:    options.Model,
		Messages: messages,
		Stream:   false,
		Options:  modelOptions,
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return strings.TrimSpace(parsed.Message.Content), nil
}
