// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one complete utterance into one block of speech audio.
// The audio is returned in its transport encoding (base64 PCM text), the
// same shape the live providers use, so callers share one decode path for
// both.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the named voice and returns the whole
	// utterance. An empty [Speech.Audio] with a nil error means the backend
	// produced no audio; callers treat that as an utterance that ends
	// immediately.
	//
	// voice may be empty, in which case the provider's default voice is used.
	Synthesize(ctx context.Context, text, voice string) (Speech, error)
}
