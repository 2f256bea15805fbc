package orchestration

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/saylem-ai/saylem-core/core/audio"
)

const (
	// playbackChunk is the pacing quantum: audio is handed to the device
	// one chunk ahead of real time so a forced stop cuts off quickly.
	playbackChunk = 100 * time.Millisecond

	// amplitudeSmoothing is the EWMA weight of the newest chunk.
	amplitudeSmoothing = 0.35
)

// speechPlayer plays one synthesized reply at a time and exposes a
// smoothed amplitude envelope for visual indicators. Resources are
// scoped to a single Play call and released on every exit path.
type speechPlayer struct {
	// output is the configured playback device; nil means silent mode.
	output AudioOutput

	// level holds the current amplitude as float64 bits.
	level atomic.Uint64
}

func newSpeechPlayer() *speechPlayer {
	return &speechPlayer{}
}

func (p *speechPlayer) isConfigured() bool { return p != nil && p.output != nil }

// Amplitude is the exponentially smoothed short-time magnitude of the
// audio currently playing, in [0, 1]. Zero whenever nothing plays.
// Read-only for observers; only Play writes it.
func (p *speechPlayer) Amplitude() float64 {
	return math.Float64frombits(p.level.Load())
}

func (p *speechPlayer) setLevel(level float64) {
	p.level.Store(math.Float64bits(level))
}

// Play decodes a synthesized container and plays it to completion.
// Returns a *PlaybackError on decode or device faults and ctx.Err when
// the session is cancelled mid-playback. Unconfigured output completes
// immediately, which keeps headless test sessions moving.
func (p *speechPlayer) Play(ctx context.Context, container []byte) error {
	if !p.isConfigured() || len(container) == 0 {
		return nil
	}
	defer p.setLevel(0)

	pcm, info, err := audio.DecodeWAV(container)
	if err != nil {
		return &PlaybackError{Err: err}
	}
	chunkSize := info.BytesPerSecond() * int(playbackChunk.Milliseconds()) / 1000
	if chunkSize <= 0 {
		return &PlaybackError{Err: errors.New("audio container has no playable rate")}
	}
	chunkSize -= chunkSize % 2 // keep int16 frames intact

	if err := p.output.Start(); err != nil {
		return &PlaybackError{Err: err}
	}

	pacing := time.NewTicker(playbackChunk)
	defer pacing.Stop()
	for offset := 0; offset < len(pcm); offset += chunkSize {
		end := min(offset+chunkSize, len(pcm))
		chunk := pcm[offset:end]

		if err := p.output.SendAudio(chunk); err != nil {
			_ = p.output.Stop()
			return &PlaybackError{Err: err}
		}
		p.observe(chunk)

		if end == len(pcm) {
			break
		}
		select {
		case <-pacing.C:
		case <-ctx.Done():
			_ = p.output.Stop()
			return ctx.Err()
		}
	}

	// Await the drain mark so the orchestrator does not advance while
	// audio is still audible.
	drained := make(chan struct{})
	if err := p.output.Mark("end-of-speech", func(string) { close(drained) }); err != nil {
		_ = p.output.Stop()
		return &PlaybackError{Err: err}
	}
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		_ = p.output.Stop()
		return ctx.Err()
	}
}

// stop cuts playback immediately and discards device-buffered audio.
func (p *speechPlayer) stop() {
	if p.isConfigured() {
		_ = p.output.Stop()
	}
	p.setLevel(0)
}

func (p *speechPlayer) close() error {
	p.stop()
	if p.isConfigured() {
		return p.output.Close()
	}
	return nil
}

// observe folds one linear16 chunk into the amplitude envelope.
func (p *speechPlayer) observe(chunk []byte) {
	if len(chunk) < 2 {
		return
	}

	sum := 0.0
	samples := 0
	for i := 0; i+1 < len(chunk); i += 2 {
		sample := int16(uint16(chunk[i]) | uint16(chunk[i+1])<<8)
		sum += math.Abs(float64(sample))
		samples++
	}
	magnitude := sum / float64(samples) / math.MaxInt16

	level := p.Amplitude()
	level = level*(1-amplitudeSmoothing) + magnitude*amplitudeSmoothing
	p.setLevel(math.Min(level, 1))
}
