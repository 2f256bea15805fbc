package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saylem-ai/saylem-core/core/audio"
	"github.com/saylem-ai/saylem-core/core/texttospeech"
)

func TestNewTextToSpeechClientRejectsUnknownVoice(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	if _, err := NewTextToSpeechClient("not-a-voice"); err == nil {
		t.Fatal("expected invalid voice to be rejected")
	}
}

func TestSynthesizeWrapsAudioInContainer(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	var gotModel, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel = r.URL.Query().Get("model")
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		gotText = body.Text
		w.Write(pcm)
	}))
	defer server.Close()

	client, err := NewTextToSpeechClient(VoiceLuna, WithSpeakURL(server.URL))
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	container, err := client.Synthesize(context.Background(), "Конечно, слушаю вас")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != string(VoiceLuna) {
		t.Fatalf("expected voice %q, got %q", VoiceLuna, gotModel)
	}
	if gotText != "Конечно, слушаю вас" {
		t.Fatalf("unexpected text: %q", gotText)
	}

	decoded, info, err := audio.DecodeWAV(container)
	if err != nil {
		t.Fatalf("synthesized audio is not a valid container: %v", err)
	}
	if len(decoded) != len(pcm) {
		t.Fatalf("expected %d payload bytes, got %d", len(pcm), len(decoded))
	}
	if info.SampleRate != audio.DefaultSampleRate {
		t.Fatalf("unexpected sample rate %d", info.SampleRate)
	}
}

func TestSynthesizeVoiceOptionOverridesDefault(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel = r.URL.Query().Get("model")
		w.Write([]byte{0, 0})
	}))
	defer server.Close()

	client, err := NewTextToSpeechClient(VoiceLuna, WithSpeakURL(server.URL))
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	if _, err := client.Synthesize(context.Background(), "hi", texttospeech.WithVoice(string(VoiceZeus))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != string(VoiceZeus) {
		t.Fatalf("expected voice override, got %q", gotModel)
	}
}

func TestSynthesizeNon2xxIsAnError(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad text", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewTextToSpeechClient(defaultVoice, WithSpeakURL(server.URL))
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	if _, err := client.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
