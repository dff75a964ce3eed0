// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled speech to consumers and to verify which
// text and voice were passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: tts.Speech{Audio: encoded, SampleRate: 24000},
//	}
//	speech, _ := p.Synthesize(ctx, "hello", "Kore")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the voice name passed to Synthesize.
	Voice string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Synthesize when Err is nil.
	Result tts.Speech

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Block, if non-nil, makes Synthesize wait until the channel is closed or
	// ctx is cancelled before returning.
	Block chan struct{}

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Result, Err.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (tts.Speech, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	block := p.Block
	result, err := p.Result, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return tts.Speech{}, ctx.Err()
		}
	}
	if err != nil {
		return tts.Speech{}, err
	}
	return result, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
