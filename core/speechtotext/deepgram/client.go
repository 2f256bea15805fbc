// Package deepgram transcribes finalized utterances through Deepgram's
// batch listen endpoint.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/rest/interfaces"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/saylem-ai/saylem-core/core/audio"
	"github.com/saylem-ai/saylem-core/core/speechtotext"
)

var tracer = otel.Tracer("saylem-core/speechtotext/deepgram")

const defaultListenURL = "https://api.deepgram.com/v1/listen"

type TranscriptionClient struct {
	apiKey    string
	model     string
	listenURL string
	client    *http.Client
}

type ClientOption func(*TranscriptionClient)

// WithModel overrides the default nova-3 model.
func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

// WithListenURL points the client at a non-default endpoint, used by
// tests and self-hosted deployments.
func WithListenURL(listenURL string) ClientOption {
	return func(c *TranscriptionClient) { c.listenURL = listenURL }
}

func NewTranscriptionClient(opts ...ClientOption) (*TranscriptionClient, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	client := &TranscriptionClient{
		apiKey:    apiKey,
		model:     "nova-3",
		listenURL: defaultListenURL,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Transcribe sends one utterance and returns its transcript. An empty
// transcript is a valid result, not an error.
func (c *TranscriptionClient) Transcribe(ctx context.Context, audioData []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.audio_bytes", len(audioData)),
	)

	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return "", fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("model", c.model)
	queryParams.Set("smart_format", "true")
	queryParams.Set("encoding", options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	queryParams.Set("channels", "1")
	if options.Language != "" {
		queryParams.Set("language", options.Language)
	}
	listenURL.RawQuery = queryParams.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listenURL.String(), bytes.NewReader(audioData))
	if err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := c.client.Do(req)
	if err != nil {
		recordedErr := fmt.Errorf("failed to reach deepgram: %w", err)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		return "", recordedErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read deepgram response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		recordedErr := fmt.Errorf("deepgram returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		return "", recordedErr
	}

	var parsed api.PreRecordedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal deepgram response: %w", err)
	}

	transcript := ""
	if results := parsed.Results; results != nil && len(results.Channels) > 0 {
		if alternatives := results.Channels[0].Alternatives; len(alternatives) > 0 {
			transcript = strings.TrimSpace(alternatives[0].Transcript)
		}
	}
	span.SetAttributes(attribute.Int("response.transcript_length", len(transcript)))
	return transcript, nil
}
