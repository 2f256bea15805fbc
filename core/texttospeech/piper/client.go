// Package piper synthesizes replies through a local Piper TTS server,
// used when testing agents without cloud credentials. The server accepts
// a form-encoded "text" field and streams back a WAV body.
package piper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/saylem-ai/saylem-core/core/texttospeech"
)

const defaultEndpoint = "http://localhost:7071/tts"

type TextToSpeechClient struct {
	endpoint string
	client   *http.Client
}

func NewTextToSpeechClient(endpoint string) *TextToSpeechClient {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	// Piper may cold-start its model on the first request.
	return &TextToSpeechClient{
		endpoint: endpoint,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   120 * time.Second,
		},
	}
}

func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	options := &texttospeech.SynthesisOptions{SpeakingRate: 1.0}
	for _, opt := range opts {
		opt(options)
	}

	form := url.Values{}
	form.Set("text", text)
	if options.Voice != "" {
		form.Set("voice", options.Voice)
	}
	if options.SpeakingRate > 0 && options.SpeakingRate != 1.0 {
		// Piper expresses tempo as length_scale, the inverse of rate.
		form.Set("length_scale", strconv.FormatFloat(1/options.SpeakingRate, 'f', 2, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build piper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach piper server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read piper response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("piper server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
