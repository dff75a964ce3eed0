// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Speech is requested as raw 24 kHz 16-bit mono PCM and returned in the same
// transport encoding the other providers use. It is meant as a fallback
// behind the Gemini TTS provider, so voice names it does not know, such as
// Gemini's prebuilt voices, fall back to the provider's default voice.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/tutorvoice/pkg/audio/pcm"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
)

const (
	// DefaultModel is the speech model used when none is configured.
	DefaultModel = "gpt-4o-mini-tts"

	// DefaultVoice is used when the caller names no voice or one this
	// backend does not offer.
	DefaultVoice = "coral"

	// SampleRate is the rate of the "pcm" response format.
	SampleRate = 24000

	mimeType = "audio/pcm;rate=24000"
)

// voices lists the voices the speech endpoint accepts.
var voices = []string{
	"alloy", "ash", "ballad", "coral", "echo", "fable",
	"onyx", "nova", "sage", "shimmer", "verse",
}

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	voice        string
	instructions string
}

var _ tts.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	model        string
	baseURL      string
	voice        string
	instructions string
	timeout      time.Duration
	httpClient   *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel sets the speech model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithDefaultVoice sets the voice used when Synthesize is called without a
// voice this backend knows.
func WithDefaultVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithInstructions sets delivery directions such as tone and pace. Only the
// gpt-4o speech models honour them.
func WithInstructions(text string) Option {
	return func(c *config) { c.instructions = text }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}

	cfg := &config{model: DefaultModel, voice: DefaultVoice}
	for _, o := range opts {
		o(cfg)
	}
	if !slices.Contains(voices, cfg.voice) {
		return nil, fmt.Errorf("openai tts: unknown default voice %q", cfg.voice)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		hc := &http.Client{}
		if cfg.httpClient != nil {
			copied := *cfg.httpClient
			hc = &copied
		}
		hc.Timeout = cfg.timeout
		cfg.httpClient = hc
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        cfg.model,
		voice:        cfg.voice,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (tts.Speech, error) {
	if !slices.Contains(voices, voice) {
		voice = p.voice
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("openai tts: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(raw)%2 != 0 {
		return tts.Speech{}, fmt.Errorf("openai tts: %w: %d bytes", pcm.ErrInvalidFrameLength, len(raw))
	}
	if len(raw) == 0 {
		return tts.Speech{SampleRate: SampleRate}, nil
	}
	return tts.Speech{
		Audio:      pcm.EncodeTransport(raw),
		MIMEType:   mimeType,
		SampleRate: SampleRate,
	}, nil
}
