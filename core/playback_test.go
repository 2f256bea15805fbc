package orchestration

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saylem-ai/saylem-core/core/audio"
)

func loudPCM(samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < len(pcm); i += 2 {
		// a constant near-full-scale sample
		pcm[i] = 0xFF
		pcm[i+1] = 0x6F
	}
	return pcm
}

func TestPlayDeliversAllAudio(t *testing.T) {
	output := &collectingAudioOutput{}
	player := newSpeechPlayer()
	player.output = output

	pcm := loudPCM(800)
	container := audio.EncodeWAV(pcm, audio.GetDefaultEncodingInfo())

	if err := player.Play(context.Background(), container); err != nil {
		t.Fatalf("expected playback to complete, got %v", err)
	}

	if !bytes.Equal(output.sent, pcm) {
		t.Fatalf("expected the device to receive the full payload, got %d of %d bytes", len(output.sent), len(pcm))
	}
	if got := player.Amplitude(); got != 0 {
		t.Fatalf("expected amplitude to reset after playback, got %v", got)
	}
}

func TestAmplitudeVisibleWhilePlaying(t *testing.T) {
	output := &collectingAudioOutput{holdMarks: true}
	player := newSpeechPlayer()
	player.output = output

	container := audio.EncodeWAV(loudPCM(800), audio.GetDefaultEncodingInfo())

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- player.Play(ctx, container) }()

	// The held drain mark keeps Play alive after the audio was sent, so
	// the envelope is observable.
	waitFor(t, func() bool {
		level := player.Amplitude()
		if level < 0 || level > 1 {
			t.Fatalf("amplitude escaped [0, 1]: %v", level)
		}
		return level > 0
	}, "a nonzero playback amplitude")

	cancel()
	select {
	case <-result:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback to return")
	}
	if got := player.Amplitude(); got != 0 {
		t.Fatalf("expected amplitude to reset after playback, got %v", got)
	}
}

func TestPlayWithoutOutputCompletesSilently(t *testing.T) {
	player := newSpeechPlayer()

	container := audio.EncodeWAV(loudPCM(100), audio.GetDefaultEncodingInfo())
	if err := player.Play(context.Background(), container); err != nil {
		t.Fatalf("expected silent mode to complete, got %v", err)
	}
}

func TestPlayRejectsCorruptContainer(t *testing.T) {
	output := &collectingAudioOutput{}
	player := newSpeechPlayer()
	player.output = output

	corrupt := []byte("RIFF\x00\x00\x00\x00WAVEjunk")
	err := player.Play(context.Background(), corrupt)

	var playbackErr *PlaybackError
	if !errors.As(err, &playbackErr) {
		t.Fatalf("expected a PlaybackError, got %T: %v", err, err)
	}
	if len(output.sent) != 0 {
		t.Fatalf("expected nothing sent to the device, got %d bytes", len(output.sent))
	}
}

func TestPlayCancelledMidDrainStopsDevice(t *testing.T) {
	output := &collectingAudioOutput{holdMarks: true}
	player := newSpeechPlayer()
	player.output = output

	container := audio.EncodeWAV(loudPCM(160), audio.GetDefaultEncodingInfo())

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- player.Play(ctx, container) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for cancelled playback to return")
	}
	if output.stopCalls.Load() == 0 {
		t.Fatalf("expected the device to be stopped on cancellation")
	}
	if got := player.Amplitude(); got != 0 {
		t.Fatalf("expected amplitude to reset after cancellation, got %v", got)
	}
}

func TestObserveKeepsAmplitudeInRange(t *testing.T) {
	player := newSpeechPlayer()

	// Repeated full-scale chunks must saturate at 1, never beyond.
	chunk := make([]byte, 640)
	for i := 0; i < len(chunk); i += 2 {
		chunk[i] = 0xFF
		chunk[i+1] = 0x7F
	}
	for range 50 {
		player.observe(chunk)
		if level := player.Amplitude(); level < 0 || level > 1 {
			t.Fatalf("amplitude escaped [0, 1]: %v", level)
		}
	}
	if level := player.Amplitude(); level < 0.9 {
		t.Fatalf("expected sustained full-scale audio to saturate, got %v", level)
	}

	// Silence decays the envelope back toward zero.
	silence := make([]byte, 640)
	for range 50 {
		player.observe(silence)
	}
	if level := player.Amplitude(); level > 0.01 {
		t.Fatalf("expected silence to decay the envelope, got %v", level)
	}
}

func TestStopIsSafeWithoutOutput(t *testing.T) {
	player := newSpeechPlayer()
	player.stop()
	if err := player.close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
}
