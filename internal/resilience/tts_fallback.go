package resilience

import (
	"context"

	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// several TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Healthy reports whether any backend would currently accept a request.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }

// Synthesize renders text on the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text, voice string) (tts.Speech, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (tts.Speech, error) {
		return p.Synthesize(ctx, text, voice)
	})
}
