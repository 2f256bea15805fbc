package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saylem-ai/saylem-core/core/agents"
	agentstore "github.com/saylem-ai/saylem-core/core/agents/sqlite"
	"github.com/saylem-ai/saylem-core/core/audio"
	"github.com/saylem-ai/saylem-core/core/conversations"
	"github.com/saylem-ai/saylem-core/core/llms"
	conversationstore "github.com/saylem-ai/saylem-core/core/persistence/sqlite"
	"github.com/saylem-ai/saylem-core/core/speechtotext"
	"github.com/saylem-ai/saylem-core/core/texttospeech"
)

type fixedTranscriber struct{ transcript string }

func (c *fixedTranscriber) Transcribe(context.Context, []byte, ...speechtotext.TranscriptionOption) (string, error) {
	return c.transcript, nil
}

type fixedModel struct {
	reply string

	mu   sync.Mutex
	opts llms.ReplyOptions
}

func (c *fixedModel) Reply(_ context.Context, _ []llms.Message, opts ...llms.ReplyOption) (string, error) {
	applied := llms.ReplyOptions{}
	for _, opt := range opts {
		opt(&applied)
	}
	c.mu.Lock()
	c.opts = applied
	c.mu.Unlock()
	return c.reply, nil
}

func (c *fixedModel) appliedOpts() llms.ReplyOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

type fixedSynthesizer struct{}

func (c *fixedSynthesizer) Synthesize(context.Context, string, ...texttospeech.SynthesisOption) ([]byte, error) {
	return audio.EncodeWAV([]byte{0x01, 0x02, 0x03, 0x04}, audio.GetDefaultEncodingInfo()), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	agentStore, err := agentstore.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open agent store: %v", err)
	}
	conversationStore, err := conversationstore.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open conversation store: %v", err)
	}

	return &Server{
		config:        DefaultConfig(),
		hub:           NewHub(),
		agents:        agentStore,
		conversations: conversationStore,
		stt:           &fixedTranscriber{transcript: "привет"},
		llm:           &fixedModel{reply: "здравствуйте"},
		tts:           &fixedSynthesizer{},
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/transcribe?language=ru", "audio/wav", bytes.NewReader([]byte{0x01, 0x02}))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["transcript"] != "привет" {
		t.Fatalf("expected the provider transcript, got %q", body["transcript"])
	}
}

func TestTranscribeRejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/transcribe", "audio/wav", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChatEndpoint(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Handler())
	defer srv.Close()

	payload, _ := json.Marshal(chatRequest{
		Messages: []llms.Message{{Role: llms.MessageRoleUser, Content: "привет"}},
	})
	resp, err := http.Post(srv.URL+"/v1/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["reply"] != "здравствуйте" {
		t.Fatalf("expected the provider reply, got %q", body["reply"])
	}
}

func TestChatTemperatureOnlyAppliedWhenSet(t *testing.T) {
	server := newTestServer(t)
	model := server.llm.(*fixedModel)
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	post := func(request chatRequest) {
		t.Helper()
		payload, _ := json.Marshal(request)
		resp, err := http.Post(srv.URL+"/v1/chat", "application/json", bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	}

	messages := []llms.Message{{Role: llms.MessageRoleUser, Content: "привет"}}

	post(chatRequest{Messages: messages})
	if applied := model.appliedOpts(); applied.Temperature != nil {
		t.Fatalf("expected provider default temperature, got %v", *applied.Temperature)
	}

	zero := 0.0
	post(chatRequest{Messages: messages, Temperature: &zero})
	if applied := model.appliedOpts(); applied.Temperature == nil || *applied.Temperature != 0 {
		t.Fatalf("expected explicit temperature 0 to be forwarded, got %v", applied.Temperature)
	}
}

func TestSynthesizeEndpointReturnsWAV(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Handler())
	defer srv.Close()

	payload, _ := json.Marshal(synthesizeRequest{Text: "здравствуйте"})
	resp, err := http.Post(srv.URL+"/v1/synthesize", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/wav" {
		t.Fatalf("expected audio/wav, got %q", got)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Handler())
	defer srv.Close()

	record := conversations.Record{
		SessionID: "session-1",
		AgentID:   "agent-1",
		ActorID:   "tester",
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
		Turns: []conversations.Turn{
			conversations.NewTurn(conversations.TurnRoleAssistant, "Здравствуйте!"),
		},
	}
	payload, _ := json.Marshal(record)

	resp, err := http.Post(srv.URL+"/v1/conversations", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	listResp, err := http.Get(srv.URL + "/v1/conversations?agentId=agent-1")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	defer listResp.Body.Close()

	records := []conversations.Record{}
	if err := json.NewDecoder(listResp.Body).Decode(&records); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != "session-1" {
		t.Fatalf("expected the saved record back, got %+v", records)
	}
	if len(records[0].Turns) != 1 {
		t.Fatalf("expected the turn to survive the round trip, got %+v", records[0].Turns)
	}
}

func TestAgentEndpoints(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Handler())
	defer srv.Close()

	config := agents.Config{
		Name:     "Консультант",
		Greeting: "Здравствуйте!",
		IsActive: true,
	}
	payload, _ := json.Marshal(config)

	resp, err := http.Post(srv.URL+"/v1/agents", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("save request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	saved := agents.Config{}
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		t.Fatalf("failed to decode saved agent: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected an assigned agent id")
	}

	getResp, err := http.Get(srv.URL + "/v1/agents/" + saved.ID)
	if err != nil {
		t.Fatalf("get request failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}

	missingResp, err := http.Get(srv.URL + "/v1/agents/no-such-agent")
	if err != nil {
		t.Fatalf("get request failed: %v", err)
	}
	defer missingResp.Body.Close()
	if missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown agent, got %d", missingResp.StatusCode)
	}
}

func TestAgentSchemaEndpoint(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/agents/schema")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	schema := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&schema); err != nil {
		t.Fatalf("failed to decode schema: %v", err)
	}
	if _, ok := schema["properties"]; !ok {
		t.Fatalf("expected a schema with properties, got %v", schema)
	}
}

func TestSessionEventStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/session-9/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	// Give the handler a beat to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)

	s.Hub().Publish(Event{Type: EventStateChanged, SessionID: "session-9", State: "Listening"})
	s.Hub().PublishAmplitude("session-9", 0.42)
	s.Hub().Publish(Event{Type: EventSessionEnded, SessionID: "session-9"})

	want := []EventType{EventStateChanged, EventAmplitude, EventSessionEnded}
	for _, wantType := range want {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		event := Event{}
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("failed to read %s event: %v", wantType, err)
		}
		if event.Type != wantType {
			t.Fatalf("expected %s, got %s", wantType, event.Type)
		}
		if event.SessionID != "session-9" {
			t.Fatalf("expected events for session-9, got %q", event.SessionID)
		}
	}
}

func TestHubDropsEventsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("session-1")
	defer cancel()

	// Nobody drains: publishing far past the buffer must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.PublishAmplitude("session-1", 0.1)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publishing blocked on a slow subscriber")
	}
	if len(events) == 0 {
		t.Fatalf("expected buffered events")
	}
}

func TestHubStopsDeliveryAfterCancel(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("session-1")
	cancel()

	hub.PublishAmplitude("session-1", 0.5)
	select {
	case event := <-events:
		t.Fatalf("expected no delivery after cancel, got %+v", event)
	default:
	}
}
