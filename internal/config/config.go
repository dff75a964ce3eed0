// Package config provides the configuration schema, loader, and provider
// registry for tutorvoice.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the matching [slog.Level]. Unknown levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr         = ":8080"
	DefaultBackend            = "malgo"
	DefaultCaptureSampleRate  = 16000
	DefaultPlaybackSampleRate = 24000
	DefaultFrameSize          = 4096
	DefaultOutboundQueue      = 8
	DefaultProvider           = "gemini"
	DefaultVoice              = "Kore"
	DefaultHighlightDelay     = 400 * time.Millisecond
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Live      ProviderEntry   `yaml:"live"`
	TTS       TTSConfig       `yaml:"tts"`
	Highlight HighlightConfig `yaml:"highlight"`
}

// ServerConfig holds the health and metrics listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics
	// (e.g., ":8080"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects the audio devices and the streaming frame geometry.
type AudioConfig struct {
	// Backend is the playback backend: malgo, oto or portaudio.
	Backend string `yaml:"backend"`

	// CaptureBackend is the capture backend. Defaults to Backend, or to
	// malgo when Backend cannot capture.
	CaptureBackend string `yaml:"capture_backend"`

	// CaptureSampleRate is the microphone rate sent to the live provider.
	CaptureSampleRate int `yaml:"capture_sample_rate"`

	// PlaybackSampleRate is the output device rate.
	PlaybackSampleRate int `yaml:"playback_sample_rate"`

	// FrameSize is the number of capture samples per outbound frame.
	FrameSize int `yaml:"frame_size"`

	// OutboundQueue is how many frames may wait for the sender before new
	// frames are dropped.
	OutboundQueue int `yaml:"outbound_queue"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. ${VAR} references are
	// expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Voice is the provider's prebuilt voice name.
	Voice string `yaml:"voice"`

	// SystemInstruction is the prompt that sets up the conversation. Only
	// used by live providers. Changes apply to the next session.
	SystemInstruction string `yaml:"system_instruction"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// TTSConfig configures speech synthesis for single tutor utterances.
type TTSConfig struct {
	// Provider is the primary TTS backend. An empty name disables the say
	// command.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary fails or its circuit
	// is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// Entries returns the primary provider followed by the fallbacks.
func (c TTSConfig) Entries() []ProviderEntry {
	if c.Provider.Name == "" {
		return nil
	}
	return append([]ProviderEntry{c.Provider}, c.Fallbacks...)
}

// HighlightConfig tunes the word highlighter.
type HighlightConfig struct {
	// DefaultDelay is the per-word delay when the audio duration is unknown,
	// e.g. "400ms". Hot-reloadable.
	DefaultDelay time.Duration `yaml:"default_delay"`
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Audio
	if a.Backend == "" {
		a.Backend = DefaultBackend
	}
	if a.CaptureBackend == "" {
		a.CaptureBackend = a.Backend
		if a.Backend == "oto" {
			a.CaptureBackend = DefaultBackend
		}
	}
	if a.CaptureSampleRate == 0 {
		a.CaptureSampleRate = DefaultCaptureSampleRate
	}
	if a.PlaybackSampleRate == 0 {
		a.PlaybackSampleRate = DefaultPlaybackSampleRate
	}
	if a.FrameSize == 0 {
		a.FrameSize = DefaultFrameSize
	}
	if a.OutboundQueue == 0 {
		a.OutboundQueue = DefaultOutboundQueue
	}

	if cfg.Live.Name == "" {
		cfg.Live.Name = DefaultProvider
	}
	if cfg.Live.Voice == "" {
		cfg.Live.Voice = DefaultVoice
	}

	if cfg.Highlight.DefaultDelay == 0 {
		cfg.Highlight.DefaultDelay = DefaultHighlightDelay
	}
}
