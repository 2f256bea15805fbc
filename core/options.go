package orchestration

import (
	"context"
	"time"

	"github.com/saylem-ai/saylem-core/core/audio"
	"github.com/saylem-ai/saylem-core/core/conversations"
	"github.com/saylem-ai/saylem-core/core/llms"
	"github.com/saylem-ai/saylem-core/core/speechtotext"
	"github.com/saylem-ai/saylem-core/core/texttospeech"
)

// DefaultCaptureCeiling is how long a listening window may run before
// capture is stopped for the user.
const DefaultCaptureCeiling = 8000 * time.Millisecond

type Option func(*Orchestrator)

// SpeechToText turns one finalized utterance into text. An empty
// transcript is a valid result.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, opts ...speechtotext.TranscriptionOption) (string, error)
}

func WithSpeechToTextClient(client SpeechToText) Option {
	return func(o *Orchestrator) { o.stt = client }
}

// LLM produces the assistant's next reply from the full history.
type LLM interface {
	Reply(ctx context.Context, history []llms.Message, opts ...llms.ReplyOption) (string, error)
}

func WithLLMClient(client LLM) Option {
	return func(o *Orchestrator) { o.llm = client }
}

// TextToSpeech synthesizes one reply into a playable audio container.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error)
}

func WithTextToSpeechClient(client TextToSpeech) Option {
	return func(o *Orchestrator) { o.tts = client }
}

// AudioInput is a capture device. StartCapture acquires the device
// exclusively and streams encoded chunks until StopCapture releases it.
type AudioInput interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() audio.EncodingInfo
	Close() error
}

func WithAudioInput(client AudioInput) Option {
	return func(o *Orchestrator) { o.capture.input = client }
}

// AudioOutput is a playback device. Stop discards buffered audio
// immediately; Mark fires its callback once playback drains past the
// point where the mark was placed.
type AudioOutput interface {
	Start() error
	SendAudio(audio []byte) error
	Mark(name string, callback func(name string)) error
	Stop() error
	Close() error
}

func WithAudioOutput(client AudioOutput) Option {
	return func(o *Orchestrator) { o.player.output = client }
}

// ConversationStore is the persistence collaborator for finalized
// sessions.
type ConversationStore interface {
	SaveConversation(ctx context.Context, record conversations.Record) (string, error)
}

func WithConversationStore(store ConversationStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithActorID records who is running the test session on saved
// conversations.
func WithActorID(actorID string) Option {
	return func(o *Orchestrator) { o.actorID = actorID }
}

// WithCaptureCeiling overrides the listening auto-stop ceiling.
func WithCaptureCeiling(ceiling time.Duration) Option {
	return func(o *Orchestrator) {
		if ceiling > 0 {
			o.capture.ceiling = ceiling
		}
	}
}

// WithServiceErrorCeiling ends the session after n consecutive adapter
// failures. Zero (the default) keeps every failure recoverable.
func WithServiceErrorCeiling(n int) Option {
	return func(o *Orchestrator) { o.errorCeiling = n }
}

type sessionCallbacks struct {
	onStateChanged func(state State)
	onTranscript   func(transcript string)
	onResponse     func(response string)
	onServiceError func(err error)
	onSessionEnded func(session Session)
	onInputAudio   func(audio []byte)
}

type SessionOption func(*sessionCallbacks)

// WithStateChangedCallback registers a callback for every state
// transition, including the final transition to StateEnded.
func WithStateChangedCallback(callback func(state State)) SessionOption {
	return func(c *sessionCallbacks) { c.onStateChanged = callback }
}

// WithTranscriptCallback registers a callback for non-empty final
// transcripts. Blank transcripts never trigger it.
func WithTranscriptCallback(callback func(transcript string)) SessionOption {
	return func(c *sessionCallbacks) { c.onTranscript = callback }
}

// WithResponseCallback registers a callback for assistant replies,
// including the greeting.
func WithResponseCallback(callback func(response string)) SessionOption {
	return func(c *sessionCallbacks) { c.onResponse = callback }
}

// WithServiceErrorCallback registers a callback for recoverable adapter
// and playback failures, and for the fatal device error that ends the
// session.
func WithServiceErrorCallback(callback func(err error)) SessionOption {
	return func(c *sessionCallbacks) { c.onServiceError = callback }
}

// WithSessionEndedCallback registers a callback fired exactly once when
// the session reaches StateEnded.
func WithSessionEndedCallback(callback func(session Session)) SessionOption {
	return func(c *sessionCallbacks) { c.onSessionEnded = callback }
}

// WithInputAudioCallback registers a callback for raw captured chunks.
// The slice is passed through without a defensive copy.
func WithInputAudioCallback(callback func(audio []byte)) SessionOption {
	return func(c *sessionCallbacks) { c.onInputAudio = callback }
}
