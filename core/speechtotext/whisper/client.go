// Package whisper transcribes utterances through a local Whisper-style
// inference server that accepts a multipart "file" field and answers
// with JSON {"text": "..."}.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/saylem-ai/saylem-core/core/audio"
	"github.com/saylem-ai/saylem-core/core/speechtotext"
)

const defaultEndpoint = "http://localhost:7070/inference"

type TranscriptionClient struct {
	endpoint string
	client   *http.Client
}

func NewTranscriptionClient(endpoint string) *TranscriptionClient {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &TranscriptionClient{
		endpoint: endpoint,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
	}
}

type inferenceResponse struct {
	Text string `json:"text"`
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, audioData []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	form := bytes.Buffer{}
	writer := multipart.NewWriter(&form)
	file, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := file.Write(audio.EncodeWAV(audioData, options.EncodingInfo)); err != nil {
		return "", fmt.Errorf("failed to write audio to form: %w", err)
	}
	if options.Language != "" {
		if err := writer.WriteField("language", options.Language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &form)
	if err != nil {
		return "", fmt.Errorf("failed to build whisper request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach whisper server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read whisper response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("whisper server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal whisper response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}
