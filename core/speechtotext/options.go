// Package speechtotext defines the options shared by the batch
// transcription providers. A transcription request carries one finalized
// utterance; streaming transcription is deliberately out of scope for
// the turn-based test loop.
package speechtotext

import "github.com/saylem-ai/saylem-core/core/audio"

type TranscriptionOptions struct {
	// Language is a BCP-47 tag forwarded to the provider. Empty lets the
	// provider pick its default.
	Language string

	// EncodingInfo describes the raw audio payload when it is not
	// wrapped in a self-describing container.
	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
