// Package server exposes the platform's provider adapters and stores
// over HTTP so a dashboard can drive test sessions remotely. Handlers
// are thin pass-throughs; session semantics live in the core package.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	orchestration "github.com/saylem-ai/saylem-core/core"
	"github.com/saylem-ai/saylem-core/core/agents"
	agentstore "github.com/saylem-ai/saylem-core/core/agents/sqlite"
	"github.com/saylem-ai/saylem-core/core/conversations"
	"github.com/saylem-ai/saylem-core/core/llms"
	"github.com/saylem-ai/saylem-core/core/llms/ollama"
	"github.com/saylem-ai/saylem-core/core/llms/openai"
	conversationstore "github.com/saylem-ai/saylem-core/core/persistence/sqlite"
	"github.com/saylem-ai/saylem-core/core/speechtotext"
	deepgramstt "github.com/saylem-ai/saylem-core/core/speechtotext/deepgram"
	"github.com/saylem-ai/saylem-core/core/speechtotext/whisper"
	"github.com/saylem-ai/saylem-core/core/texttospeech"
	deepgramtts "github.com/saylem-ai/saylem-core/core/texttospeech/deepgram"
	"github.com/saylem-ai/saylem-core/core/texttospeech/piper"
)

var logger = otelslog.NewLogger("saylem-core/server")

type Server struct {
	config Config
	hub    *Hub

	agents        *agentstore.Store
	conversations *conversationstore.Store

	stt orchestration.SpeechToText
	llm orchestration.LLM
	tts orchestration.TextToSpeech

	upgrader websocket.Upgrader
}

// New opens the stores and builds the configured provider clients.
func New(config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	agentStore, err := agentstore.Open(config.AgentStorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open agent store: %w", err)
	}
	conversationStore, err := conversationstore.Open(config.ConversationStorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	s := &Server{
		config:        config,
		hub:           NewHub(),
		agents:        agentStore,
		conversations: conversationStore,
	}

	if s.stt, err = BuildSpeechToText(config.SpeechToText); err != nil {
		return nil, err
	}
	if s.llm, err = BuildLLM(config.LLM); err != nil {
		return nil, err
	}
	if s.tts, err = BuildTextToSpeech(config.TextToSpeech); err != nil {
		return nil, err
	}

	return s, nil
}

func BuildSpeechToText(config ProviderConfig) (orchestration.SpeechToText, error) {
	switch config.Provider {
	case "":
		return nil, nil
	case "deepgram":
		opts := []deepgramstt.ClientOption{}
		if config.Model != "" {
			opts = append(opts, deepgramstt.WithModel(config.Model))
		}
		if config.Endpoint != "" {
			opts = append(opts, deepgramstt.WithListenURL(config.Endpoint))
		}
		return deepgramstt.NewTranscriptionClient(opts...)
	case "whisper":
		return whisper.NewTranscriptionClient(config.Endpoint), nil
	}
	return nil, fmt.Errorf("unknown speech to text provider %q", config.Provider)
}

func BuildLLM(config ProviderConfig) (orchestration.LLM, error) {
	switch config.Provider {
	case "":
		return nil, nil
	case "openai":
		opts := []openai.ClientOption{}
		if config.Model != "" {
			opts = append(opts, openai.WithModel(config.Model))
		}
		if config.Endpoint != "" {
			opts = append(opts, openai.WithChatURL(config.Endpoint))
		}
		return openai.NewClient(opts...)
	case "ollama":
		return ollama.NewClient(config.Endpoint, config.Model), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
}

func BuildTextToSpeech(config ProviderConfig) (orchestration.TextToSpeech, error) {
	switch config.Provider {
	case "":
		return nil, nil
	case "deepgram":
		voice, err := deepgramtts.ParseVoice(config.Voice)
		if err != nil {
			return nil, err
		}
		opts := []deepgramtts.ClientOption{}
		if config.Endpoint != "" {
			opts = append(opts, deepgramtts.WithSpeakURL(config.Endpoint))
		}
		return deepgramtts.NewTextToSpeechClient(voice, opts...)
	case "piper":
		return piper.NewTextToSpeechClient(config.Endpoint), nil
	}
	return nil, fmt.Errorf("unknown text to speech provider %q", config.Provider)
}

// Hub is the event fan-out for the embedding program to publish
// session events into.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the route table. REST routes are traced; the
// websocket route bypasses the tracing wrapper because the upgrade
// needs to hijack the raw connection.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/transcribe", s.handleTranscribe)
	api.HandleFunc("POST /v1/chat", s.handleChat)
	api.HandleFunc("POST /v1/synthesize", s.handleSynthesize)
	api.HandleFunc("POST /v1/conversations", s.handleSaveConversation)
	api.HandleFunc("GET /v1/conversations", s.handleListConversations)
	api.HandleFunc("GET /v1/agents", s.handleListAgents)
	api.HandleFunc("POST /v1/agents", s.handleSaveAgent)
	api.HandleFunc("GET /v1/agents/schema", s.handleAgentSchema)
	api.HandleFunc("GET /v1/agents/{id}", s.handleGetAgent)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/events", s.handleSessionEvents)
	mux.Handle("/", otelhttp.NewHandler(api, "saylem-server"))
	return mux
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then
// shuts down gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errs := make(chan error, 1)
	go func() { errs <- httpServer.ListenAndServe() }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.stt == nil {
		writeError(w, http.StatusNotImplemented, "no speech to text provider configured")
		return
	}

	audioBody, err := io.ReadAll(r.Body)
	if err != nil || len(audioBody) == 0 {
		writeError(w, http.StatusBadRequest, "request body must carry audio")
		return
	}

	opts := []speechtotext.TranscriptionOption{}
	if language := r.URL.Query().Get("language"); language != "" {
		opts = append(opts, speechtotext.WithLanguage(language))
	}

	transcript, err := s.stt.Transcribe(r.Context(), audioBody, opts...)
	if err != nil {
		logger.ErrorContext(r.Context(), "transcription failed", "error", err)
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"transcript": transcript})
}

type chatRequest struct {
	Messages     []llms.Message `json:"messages"`
	Model        string         `json:"model,omitempty"`
	SystemPrompt string         `json:"systemPrompt,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
	MaxTokens    int            `json:"maxTokens,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusNotImplemented, "no llm provider configured")
		return
	}

	request := chatRequest{}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "malformed chat request")
		return
	}
	if len(request.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "chat request has no messages")
		return
	}

	opts := []llms.ReplyOption{
		llms.WithInstructions(request.SystemPrompt),
		llms.WithModel(request.Model),
		llms.WithMaxTokens(request.MaxTokens),
	}
	// An absent temperature keeps the provider default; 0 is a valid
	// explicit choice.
	if request.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*request.Temperature))
	}

	reply, err := s.llm.Reply(r.Context(), request.Messages, opts...)
	if err != nil {
		logger.ErrorContext(r.Context(), "generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

type synthesizeRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice,omitempty"`
	Language     string  `json:"language,omitempty"`
	SpeakingRate float64 `json:"speakingRate,omitempty"`
	Pitch        float64 `json:"pitch,omitempty"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, http.StatusNotImplemented, "no text to speech provider configured")
		return
	}

	request := synthesizeRequest{}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Text == "" {
		writeError(w, http.StatusBadRequest, "synthesize request needs text")
		return
	}

	speech, err := s.tts.Synthesize(r.Context(), request.Text,
		texttospeech.WithVoice(request.Voice),
		texttospeech.WithLanguage(request.Language),
		texttospeech.WithSpeakingRate(request.SpeakingRate),
		texttospeech.WithPitch(request.Pitch),
	)
	if err != nil {
		logger.ErrorContext(r.Context(), "synthesis failed", "error", err)
		writeError(w, http.StatusBadGateway, "synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(speech)
}

func (s *Server) handleSaveConversation(w http.ResponseWriter, r *http.Request) {
	record := conversations.Record{}
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "malformed conversation record")
		return
	}

	id, err := s.conversations.SaveConversation(r.Context(), record)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to save conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save conversation")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agentId")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId query parameter is required")
		return
	}

	records, err := s.conversations.ListByAgent(r.Context(), agentID)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	configs, err := s.agents.List(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to list agents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleSaveAgent(w http.ResponseWriter, r *http.Request) {
	config := agents.Config{}
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, "malformed agent config")
		return
	}

	saved, err := s.agents.Save(r.Context(), config)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	config, err := s.agents.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, agentstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		logger.ErrorContext(r.Context(), "failed to load agent", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}
	writeJSON(w, http.StatusOK, config)
}

func (s *Server) handleAgentSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := agents.ConfigSchemaJSON()
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to render schema", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render schema")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(schema)
}

// handleSessionEvents streams one session's events over a websocket
// until the client disconnects or the session ends.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(sessionID)
	defer cancel()

	// Surface client disconnects as read errors.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			if event.Type == EventSessionEnded {
				return
			}
		case <-disconnected:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
