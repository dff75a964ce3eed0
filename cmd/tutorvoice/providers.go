package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/tutorvoice/internal/app"
	"github.com/MrWong99/tutorvoice/internal/config"
	"github.com/MrWong99/tutorvoice/internal/health"
	"github.com/MrWong99/tutorvoice/internal/observe"
	"github.com/MrWong99/tutorvoice/internal/resilience"
	"github.com/MrWong99/tutorvoice/pkg/audio"
	"github.com/MrWong99/tutorvoice/pkg/audio/device"
	"github.com/MrWong99/tutorvoice/pkg/provider/live"
	geminilive "github.com/MrWong99/tutorvoice/pkg/provider/live/gemini"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
	geminitts "github.com/MrWong99/tutorvoice/pkg/provider/tts/gemini"
	openaitts "github.com/MrWong99/tutorvoice/pkg/provider/tts/openai"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider and device factories
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Live ──────────────────────────────────────────────────────────────────
	reg.RegisterLive("gemini", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		opts = append(opts, geminilive.WithHTTPClient(tracedHTTPClient()))
		return geminilive.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("gemini", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []geminitts.Option
		if entry.Model != "" {
			opts = append(opts, geminitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Voice != "" {
			opts = append(opts, geminitts.WithDefaultVoice(entry.Voice))
		}
		if prompt := optString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, geminitts.WithPrompt(prompt))
		}
		opts = append(opts, geminitts.WithHTTPClient(tracedHTTPClient()))
		return geminitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []openaitts.Option
		if entry.Model != "" {
			opts = append(opts, openaitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Voice != "" {
			opts = append(opts, openaitts.WithDefaultVoice(entry.Voice))
		}
		if instructions := optString(entry.Options, "instructions"); instructions != "" {
			opts = append(opts, openaitts.WithInstructions(instructions))
		}
		opts = append(opts, openaitts.WithHTTPClient(tracedHTTPClient()))
		return openaitts.New(entry.APIKey, opts...)
	})

	// ── Audio devices ─────────────────────────────────────────────────────────
	for _, backend := range []string{device.BackendMalgo, device.BackendOto, device.BackendPortAudio} {
		reg.RegisterOutput(backend, func(cfg config.AudioConfig) (audio.Output, error) {
			return device.NewOutput(backend, audio.Format{SampleRate: cfg.PlaybackSampleRate, Channels: 1})
		})
	}
	for _, backend := range []string{device.BackendMalgo, device.BackendPortAudio} {
		reg.RegisterInput(backend, func(cfg config.AudioConfig) (audio.Input, error) {
			return device.NewInput(backend, audio.Format{SampleRate: cfg.CaptureSampleRate, Channels: 1})
		})
	}
}

// builtProviders is the result of [buildProviders].
type builtProviders struct {
	providers *app.Providers
	checks    []health.Checker
}

// buildProviders instantiates the devices and providers named in cfg using
// the registry. Every provider slot is wrapped in a fallback group so that
// each entry sits behind its own circuit breaker; the breakers feed the
// readiness checks. Capture and the live provider are only built when
// conversation is true.
func buildProviders(cfg *config.Config, reg *config.Registry, conversation bool, metrics *observe.Metrics) (*builtProviders, error) {
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				metrics.RecordBreaker(context.Background(), name, to.String())
			},
		},
	}
	out := &builtProviders{providers: &app.Providers{}}
	ps := out.providers

	output, err := reg.CreateOutput(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create output device %q: %w", cfg.Audio.Backend, err)
	}
	ps.Output = output
	slog.Info("device created", "kind", "output", "backend", cfg.Audio.Backend)

	if conversation {
		input, err := reg.CreateInput(cfg.Audio)
		if err != nil {
			return nil, fmt.Errorf("create capture device %q: %w", cfg.Audio.CaptureBackend, err)
		}
		ps.Input = input
		slog.Info("device created", "kind", "input", "backend", cfg.Audio.CaptureBackend)

		p, err := reg.CreateLive(cfg.Live)
		if err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", cfg.Live.Name, err)
		}
		fallback := resilience.NewLiveFallback(p, "live/"+cfg.Live.Name, fbCfg)
		ps.Live = fallback
		out.checks = append(out.checks, health.Flag("live", fallback.Healthy, "every live endpoint is behind an open circuit breaker"))
		slog.Info("provider created", "kind", "live", "name", cfg.Live.Name, "model", cfg.Live.Model)
	}

	var ttsGroup *resilience.TTSFallback
	for i, entry := range cfg.TTS.Entries() {
		if i > 0 && entry.APIKey == "" {
			slog.Warn("fallback has no api key, skipping", "kind", "tts", "name", entry.Name)
			continue
		}
		p, err := reg.CreateTTS(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("provider not registered, skipping", "kind", "tts", "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		name := fmt.Sprintf("tts/%s#%d", entry.Name, i)
		if ttsGroup == nil {
			ttsGroup = resilience.NewTTSFallback(p, name, fbCfg)
		} else {
			ttsGroup.AddFallback(name, p)
		}
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "model", entry.Model, "fallback", i > 0)
	}
	if ttsGroup != nil {
		ps.TTS = ttsGroup
		out.checks = append(out.checks, health.Flag("tts", ttsGroup.Healthy, "every tts endpoint is behind an open circuit breaker"))
	}

	return out, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// tracedHTTPClient returns an HTTP client whose requests carry client spans
// and trace context headers.
func tracedHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
