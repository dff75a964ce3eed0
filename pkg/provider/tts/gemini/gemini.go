// Package gemini provides a Gemini-backed TTS provider using the
// generateContent REST endpoint with audio response modality. It implements
// the tts.Provider interface.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/tutorvoice/pkg/provider/live"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is the speech generation model used when none is configured.
	DefaultModel = "gemini-2.5-flash-preview-tts"
	// DefaultVoice is the prebuilt voice used when the caller names none.
	DefaultVoice = "Kore"
	// DefaultPrompt prefixes the utterance with delivery directions.
	DefaultPrompt = "Read the following text aloud in a warm, gentle voice, like a teacher " +
		"explaining a lesson to a fifth-grade student. Pronounce English words " +
		"clearly and naturally. Keep a moderate pace:"

	// TextPlaceholder marks where the utterance goes inside a prompt. A prompt
	// without it is followed by a space and the utterance.
	TextPlaceholder = "{text}"
)

// ErrNoCandidates is returned when the response carries no candidate at all.
var ErrNoCandidates = errors.New("gemini tts: response has no candidates")

// Option is a functional option for configuring the Gemini TTS Provider.
type Option func(*Provider)

// WithModel sets the TTS model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the REST base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithPrompt sets the delivery prompt. The utterance replaces the first
// [TextPlaceholder] or is appended after a space. An empty prompt sends the
// text as is.
func WithPrompt(prompt string) Option {
	return func(p *Provider) { p.prompt = prompt }
}

// WithDefaultVoice sets the voice used when Synthesize is called without one.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by Gemini speech generation.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	prompt     string
	voice      string
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new Gemini TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini tts: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      DefaultModel,
		baseURL:    defaultBaseURL,
		prompt:     DefaultPrompt,
		voice:      DefaultVoice,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ----

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Synthesize requests speech for text. The text is sent without emphasis
// markers; callers are expected to strip them.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (tts.Speech, error) {
	if voice == "" {
		voice = p.voice
	}
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: buildPrompt(p.prompt, text)}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice}},
			},
		},
	})
	if err != nil {
		return tts.Speech{}, fmt.Errorf("gemini tts: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return tts.Speech{}, fmt.Errorf("gemini tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("gemini tts: HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tts.Speech{}, fmt.Errorf("gemini tts: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return tts.Speech{}, fmt.Errorf("gemini tts: decode: %w", err)
	}
	if gr.Error != nil {
		return tts.Speech{}, fmt.Errorf("gemini tts: server error %d: %s", gr.Error.Code, gr.Error.Message)
	}
	if len(gr.Candidates) == 0 {
		return tts.Speech{}, ErrNoCandidates
	}

	// Only the first part of the first candidate is read; a missing part
	// yields empty speech rather than an error.
	parts := gr.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].InlineData == nil {
		return tts.Speech{SampleRate: tts.DefaultSampleRate}, nil
	}
	d := parts[0].InlineData
	return tts.Speech{
		Audio:      d.Data,
		MIMEType:   d.MIMEType,
		SampleRate: live.SampleRate(d.MIMEType, tts.DefaultSampleRate),
	}, nil
}

func buildPrompt(prompt, text string) string {
	switch {
	case prompt == "":
		return text
	case strings.Contains(prompt, TextPlaceholder):
		return strings.Replace(prompt, TextPlaceholder, text, 1)
	default:
		return prompt + " " + text
	}
}
