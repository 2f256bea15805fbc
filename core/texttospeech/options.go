// Package texttospeech defines the options shared by the batch speech
// synthesis providers. A synthesis request covers one assistant reply;
// providers return a complete audio container, not a stream.
package texttospeech

import "github.com/saylem-ai/saylem-core/core/audio"

type SynthesisOptions struct {
	// Voice is the provider-specific voice id.
	Voice string
	// Language is a BCP-47 tag for providers that pick voices per
	// language.
	Language string

	// SpeakingRate scales the speech tempo; 1.0 is the natural rate.
	SpeakingRate float64
	// Pitch shifts the voice in semitones around its natural register.
	Pitch float64

	// EncodingInfo is the requested output encoding.
	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Voice = voice
	}
}

func WithLanguage(language string) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Language = language
	}
}

func WithSpeakingRate(rate float64) SynthesisOption {
	return func(o *SynthesisOptions) {
		if rate <= 0 {
			return
		}
		o.SpeakingRate = rate
	}
}

func WithPitch(pitch float64) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Pitch = pitch
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
