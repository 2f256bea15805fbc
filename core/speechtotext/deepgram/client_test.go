package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saylem-ai/saylem-core/core/speechtotext"
)

const listenResponse = `{
	"results": {
		"channels": [
			{"alternatives": [{"transcript": "Мне нужна консультация", "confidence": 0.98}]}
		]
	}
}`

func TestNewTranscriptionClientRequiresAPIKey(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")
	if _, err := NewTranscriptionClient(); err == nil {
		t.Fatal("expected error when api key is absent")
	}
}

func TestTranscribeParsesBatchResponse(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	var gotQuery map[string][]string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(listenResponse))
	}))
	defer server.Close()

	client, err := NewTranscriptionClient(WithListenURL(server.URL))
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	transcript, err := client.Transcribe(context.Background(), []byte{1, 2, 3, 4}, speechtotext.WithLanguage("ru"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript != "Мне нужна консультация" {
		t.Fatalf("unexpected transcript: %q", transcript)
	}
	if gotAuth != "Token test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if got := gotQuery["language"]; len(got) != 1 || got[0] != "ru" {
		t.Fatalf("expected language forwarded, got %v", gotQuery)
	}
	if got := gotQuery["encoding"]; len(got) != 1 || got[0] != "linear16" {
		t.Fatalf("expected default encoding forwarded, got %v", gotQuery)
	}
}

func TestTranscribeEmptyChannelsYieldsEmptyTranscript(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": {"channels": []}}`))
	}))
	defer server.Close()

	client, err := NewTranscriptionClient(WithListenURL(server.URL))
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	transcript, err := client.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected empty transcript to be valid, got %v", err)
	}
	if transcript != "" {
		t.Fatalf("expected empty transcript, got %q", transcript)
	}
}

func TestTranscribeNon2xxIsAnError(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg": "bad request"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewTranscriptionClient(WithListenURL(server.URL))
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), nil); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
