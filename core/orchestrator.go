// Package orchestration drives the turn-based voice test loop: capture
// an utterance, transcribe it, generate a reply, synthesize it, play it,
// listen again. One orchestrator owns one session; concurrent sessions
// are fully independent instances.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/saylem-ai/saylem-core/core/agents"
	"github.com/saylem-ai/saylem-core/core/conversations"
	"github.com/saylem-ai/saylem-core/core/llms"
	"github.com/saylem-ai/saylem-core/core/speechtotext"
	"github.com/saylem-ai/saylem-core/core/texttospeech"
)

var tracer = otel.Tracer("saylem-core/orchestration")

type Orchestrator struct {
	// config is the session's immutable snapshot of the agent.
	config agents.Config

	ledger *conversations.Ledger

	stt   SpeechToText
	llm   LLM
	tts   TextToSpeech
	store ConversationStore

	capture *captureService
	player  *speechPlayer

	actorID      string
	errorCeiling int

	callbacks sessionCallbacks

	mu      sync.Mutex
	state   State
	session Session
	started bool

	cancel     context.CancelFunc
	inFlight   atomic.Bool
	endOnce    sync.Once
	finishOnce sync.Once
	done       chan struct{}
}

// New builds an orchestrator around a snapshot of the given agent
// configuration. The snapshot is taken here; later edits to the stored
// agent do not affect the session.
func New(config agents.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config:  config.Snapshot(),
		ledger:  conversations.NewLedger(),
		capture: newCaptureService(),
		player:  newSpeechPlayer(),
		state:   StateIdle,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.capture.onChunk = func(audio []byte) {
		if o.callbacks.onInputAudio != nil {
			o.callbacks.onInputAudio(audio)
		}
	}
	return o
}

// Start gates the session on agent availability, speaks the greeting,
// and enters the listening loop. Call at most once; the loop runs until
// EndCall, a fatal device error, or ctx cancellation.
func (o *Orchestrator) Start(ctx context.Context, opts ...SessionOption) error {
	o.mu.Lock()
	if o.started || o.state.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("cannot start session in state %s", o.state)
	}
	if !agents.IsAvailable(o.config, time.Now()) {
		o.mu.Unlock()
		return fmt.Errorf("agent %s: %w", o.config.ID, ErrAgentUnavailable)
	}
	for _, opt := range opts {
		opt(&o.callbacks)
	}
	o.started = true
	o.session = newSession(o.config.ID)
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	go o.run(ctx)
	return nil
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.finish()

	ctx, span := tracer.Start(ctx, "voice session", trace.WithAttributes(
		attribute.String("session.id", o.session.ID),
		attribute.String("agent.id", o.config.ID),
	))
	defer span.End()

	o.greet(ctx)

	consecutiveFailures := 0
	for ctx.Err() == nil {
		err := o.turn(ctx)
		if err == nil {
			consecutiveFailures = 0
			continue
		}
		if ctx.Err() != nil {
			return
		}

		var deviceErr *DeviceError
		if errors.As(err, &deviceErr) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.notifyError(err)
			return
		}

		// Recoverable: tell the caller and go back to listening.
		span.RecordError(err)
		o.notifyError(err)
		consecutiveFailures++
		if o.errorCeiling > 0 && consecutiveFailures >= o.errorCeiling {
			span.AddEvent("service error ceiling reached")
			o.farewell(ctx)
			return
		}
	}
}

// greet appends and speaks the agent's opening line. The greeting turn
// is appended even when synthesis fails, so every session transcript
// starts with an assistant turn.
func (o *Orchestrator) greet(ctx context.Context) {
	o.setState(StateGreeting)

	greeting := o.config.Greeting
	if greeting == "" {
		greeting = o.config.Fallback
	}
	if greeting == "" {
		return
	}

	o.ledger.Append(conversations.NewTurn(conversations.TurnRoleAssistant, greeting))
	o.notifyResponse(greeting)

	speech, err := o.synthesize(ctx, greeting)
	if err != nil {
		if ctx.Err() == nil {
			o.notifyError(err)
		}
		return
	}
	o.speak(ctx, speech)
}

// farewell speaks the agent's ending line when the orchestrator ends
// the session on its own. Forced stops via EndCall skip it: their
// context is already cancelled and playback has been torn down.
func (o *Orchestrator) farewell(ctx context.Context) {
	ending := o.config.Ending
	if ending == "" || ctx.Err() != nil {
		return
	}

	o.ledger.Append(conversations.NewTurn(conversations.TurnRoleAssistant, ending))
	o.notifyResponse(ending)

	speech, err := o.synthesize(ctx, ending)
	if err != nil {
		return
	}
	o.speak(ctx, speech)
}

// turn runs one full listen-to-speech cycle. A nil return means the
// cycle completed or short-circuited benignly (empty transcript); the
// next listening window follows either way.
func (o *Orchestrator) turn(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "conversation turn")
	defer span.End()

	utterance, err := o.listen(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	o.setState(StateTranscribing)
	transcript, err := o.transcribe(ctx, utterance)
	if err != nil {
		return err
	}
	if strings.TrimSpace(transcript) == "" {
		// Silence or noise: nothing was said, so nothing is appended
		// and no reply is generated.
		span.AddEvent("empty transcript")
		return nil
	}

	o.ledger.Append(conversations.NewTurn(conversations.TurnRoleUser, transcript))
	o.notifyTranscript(transcript)

	o.setState(StateGenerating)
	reply, err := o.generate(ctx)
	if err != nil {
		if ctx.Err() == nil && o.config.Fallback != "" {
			// Answer with the configured fallback so the transcript
			// keeps alternating and the user hears something.
			o.ledger.Append(conversations.NewTurn(conversations.TurnRoleAssistant, o.config.Fallback))
			o.notifyResponse(o.config.Fallback)
		}
		return err
	}
	if reply == "" {
		if o.llm == nil || o.config.Fallback == "" {
			return nil
		}
		// A configured model answered with nothing; keep the transcript
		// alternating with the fallback line.
		reply = o.config.Fallback
	}

	o.ledger.Append(conversations.NewTurn(conversations.TurnRoleAssistant, reply))
	o.notifyResponse(reply)

	if o.tts != nil {
		o.setState(StateSynthesizing)
	}
	speech, err := o.synthesize(ctx, reply)
	if err != nil {
		return err
	}
	if len(speech) > 0 {
		o.setState(StateSpeaking)
	}
	o.speak(ctx, speech)
	return nil
}

func (o *Orchestrator) listen(ctx context.Context) ([]byte, error) {
	o.setState(StateListening)
	return o.capture.record(ctx)
}

func (o *Orchestrator) transcribe(ctx context.Context, utterance []byte) (string, error) {
	if o.stt == nil || len(utterance) == 0 {
		return "", nil
	}

	transcript := ""
	err := o.callAdapter(StateTranscribing, func() error {
		var err error
		transcript, err = o.stt.Transcribe(ctx, utterance,
			speechtotext.WithLanguage(o.config.Voice.Language),
			speechtotext.WithEncodingInfo(o.capture.input.EncodingInfo()),
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return transcript, nil
}

func (o *Orchestrator) generate(ctx context.Context) (string, error) {
	if o.llm == nil {
		return "", nil
	}

	history := make([]llms.Message, 0, o.ledger.Len())
	for _, turn := range o.ledger.Turns() {
		history = append(history, llms.Message{
			Role:    llms.MessageRole(turn.Role),
			Content: turn.Content,
		})
	}

	reply := ""
	err := o.callAdapter(StateGenerating, func() error {
		var err error
		reply, err = o.llm.Reply(ctx, history,
			llms.WithInstructions(o.config.AI.SystemPrompt),
			llms.WithModel(o.config.AI.Model),
			llms.WithTemperature(o.config.AI.Temperature),
			llms.WithMaxTokens(o.config.AI.MaxTokens),
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, text string) ([]byte, error) {
	if o.tts == nil {
		return nil, nil
	}

	var speech []byte
	err := o.callAdapter(StateSynthesizing, func() error {
		var err error
		speech, err = o.tts.Synthesize(ctx, text,
			texttospeech.WithVoice(o.config.Voice.Name),
			texttospeech.WithLanguage(o.config.Voice.Language),
			texttospeech.WithSpeakingRate(o.config.Voice.SpeakingRate),
			texttospeech.WithPitch(o.config.Voice.Pitch),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return speech, nil
}

// speak plays a reply. Playback faults count as turn completion so a
// bad container cannot stall the session; the caller is still notified.
func (o *Orchestrator) speak(ctx context.Context, speech []byte) {
	if len(speech) == 0 {
		return
	}

	if err := o.player.Play(ctx, speech); err != nil && ctx.Err() == nil {
		o.notifyError(err)
	}
}

// callAdapter enforces the single-in-flight invariant: a second adapter
// call may not begin until the previous one settled.
func (o *Orchestrator) callAdapter(stage State, fn func() error) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("adapter call already in flight during %s", stage)
	}
	defer o.inFlight.Store(false)

	if err := fn(); err != nil {
		return &ServiceError{Stage: stage, Err: err}
	}
	return nil
}

// StopListening finalizes the current listening window so transcription
// starts without waiting for the ceiling. Idempotent; a no-op outside
// Listening.
func (o *Orchestrator) StopListening() {
	o.capture.stopActive()
}

// EndCall terminates the session from any state: in-flight adapter
// calls are cancelled (their late results are discarded), the capture
// and playback devices are stopped immediately, and no further
// listening cycle is scheduled. Idempotent.
func (o *Orchestrator) EndCall() {
	o.endOnce.Do(func() {
		o.mu.Lock()
		cancel := o.cancel
		started := o.started
		o.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		o.capture.stopActive()
		o.player.stop()

		if !started {
			// Never ran: finish synchronously since there is no loop to
			// observe the cancellation.
			o.finish()
		}
	})
}

// finish releases devices, stamps the session end, and fires the final
// callbacks. Runs exactly once.
func (o *Orchestrator) finish() {
	o.finishOnce.Do(func() {
		if err := o.capture.close(); err != nil {
			o.notifyError(&DeviceError{Err: err})
		}
		_ = o.player.close()

		o.mu.Lock()
		o.session.EndedAt = time.Now()
		session := o.session
		o.mu.Unlock()

		o.setState(StateEnded)
		if o.callbacks.onSessionEnded != nil {
			o.callbacks.onSessionEnded(session)
		}
		close(o.done)
	})
}

// Save hands the finalized transcript to the persistence collaborator.
// Safe to retry: the store deduplicates by session id. The in-memory
// session is unaffected by failures.
func (o *Orchestrator) Save(ctx context.Context) (string, error) {
	if o.store == nil {
		return "", &PersistError{Err: errors.New("no conversation store configured")}
	}

	o.mu.Lock()
	session := o.session
	o.mu.Unlock()

	id, err := o.store.SaveConversation(ctx, conversations.Record{
		SessionID: session.ID,
		AgentID:   session.AgentID,
		ActorID:   o.actorID,
		StartedAt: session.StartedAt,
		EndedAt:   session.EndedAt,
		Turns:     o.ledger.Finalize(),
	})
	if err != nil {
		return "", &PersistError{Err: err}
	}
	return id, nil
}

// DiscardRun throws away the test conversation so far, reinitializing
// the history to a single greeting turn.
func (o *Orchestrator) DiscardRun() {
	greeting := o.config.Greeting
	if greeting == "" {
		greeting = o.config.Fallback
	}
	o.ledger.Reset(greeting)
}

// State is the current position in the turn cycle.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session is a point-in-time copy of the session identity.
func (o *Orchestrator) Session() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// History is an ordered copy of the conversation so far.
func (o *Orchestrator) History() []conversations.Turn {
	return o.ledger.Turns()
}

// Amplitude is the playback envelope in [0, 1]; zero while not
// speaking.
func (o *Orchestrator) Amplitude() float64 {
	return o.player.Amplitude()
}

// Done is closed once the session has fully ended and released its
// devices.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// ObserveAmplitude samples the playback envelope on a fixed interval
// until ctx is cancelled or the session ends. The sampler only reads
// orchestrator state; it drives meters, never transitions.
func (o *Orchestrator) ObserveAmplitude(ctx context.Context, interval time.Duration, fn func(level float64)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(o.Amplitude())
			case <-ctx.Done():
				return
			case <-o.done:
				return
			}
		}
	}()
}

func (o *Orchestrator) setState(next State) {
	o.mu.Lock()
	if o.state == next || o.state.Terminal() {
		o.mu.Unlock()
		return
	}
	o.state = next
	callback := o.callbacks.onStateChanged
	o.mu.Unlock()

	if callback != nil {
		callback(next)
	}
}

func (o *Orchestrator) notifyTranscript(transcript string) {
	if o.callbacks.onTranscript != nil {
		o.callbacks.onTranscript(transcript)
	}
}

func (o *Orchestrator) notifyResponse(response string) {
	if o.callbacks.onResponse != nil {
		o.callbacks.onResponse(response)
	}
}

func (o *Orchestrator) notifyError(err error) {
	if o.callbacks.onServiceError != nil {
		o.callbacks.onServiceError(err)
	}
}
