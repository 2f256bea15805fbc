// Package openai answers chat requests through an OpenAI-compatible
// completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/saylem-ai/saylem-core/core/llms"
)

var tracer = otel.Tracer("saylem-core/llms/openai")

const defaultChatURL = "https://api.openai.com/v1/chat/completions"

type Client struct {
	apiKey  string
	model   string
	chatURL string
	client  *http.Client
}

type ClientOption func(*Client)

// WithModel sets the default model used when a call does not override it.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithChatURL points the client at an OpenAI-compatible endpoint.
func WithChatURL(chatURL string) ClientOption {
	return func(c *Client) { c.chatURL = chatURL }
}

func NewClient(opts ...ClientOption) (*Client, error) {
	apiKey, ok := os.LookupEnv("OPENAI_API_KEY")
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("openai api key not found")
	}

	client := &Client{
		apiKey:  apiKey,
		model:   "gpt-4o-mini",
		chatURL: defaultChatURL,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type responseBody struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Reply sends the full history plus options and returns the assistant's
// next message.
func (c *Client) Reply(ctx context.Context, history []llms.Message, opts ...llms.ReplyOption) (string, error) {
	options := llms.ReplyOptions{Model: c.model}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", options.Model),
		attribute.Int("request.history_length", len(history)),
	)

	messages := make([]message, 0, len(history)+1)
	if options.Instructions != "" {
		messages = append(messages, message{Role: string(llms.MessageRoleSystem), Content: options.Instructions})
	}
	for _, entry := range history {
		messages = append(messages, message{Role: string(entry.Role), Content: entry.Content})
	}

	requestBodyBytes, err := json.Marshal(requestBody{
		Model:       options.Model,
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	})
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		recordedErr := fmt.Errorf("failed to reach llm endpoint: %w", err)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		return "", recordedErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read llm response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		recordedErr := fmt.Errorf("llm endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		return "", recordedErr
	}

	var parsed responseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm response contained no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
