package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":  {"gemini"},
	"tts":   {"gemini", "openai"},
	"audio": {"malgo", "oto", "portaudio"},
}

// captureBackends lists the audio backends that can record.
var captureBackends = []string{"malgo", "portaudio"}

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load env file %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied and ${VAR} references expanded.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults and validates the result. An empty document
// decodes to the defaults, which still lack live.api_key.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} and $VAR references in secret-bearing fields.
func expandEnv(cfg *Config) {
	expandEntry(&cfg.Live)
	expandEntry(&cfg.TTS.Provider)
	for i := range cfg.TTS.Fallbacks {
		expandEntry(&cfg.TTS.Fallbacks[i])
	}
}

func expandEntry(e *ProviderEntry) {
	e.APIKey = os.ExpandEnv(e.APIKey)
	e.BaseURL = os.ExpandEnv(e.BaseURL)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	a := cfg.Audio
	if a.Backend != "" && !slices.Contains(ValidProviderNames["audio"], a.Backend) {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: malgo, oto, portaudio", a.Backend))
	}
	if a.CaptureBackend != "" && !slices.Contains(captureBackends, a.CaptureBackend) {
		errs = append(errs, fmt.Errorf("audio.capture_backend %q cannot record; valid values: malgo, portaudio", a.CaptureBackend))
	}
	if a.CaptureSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_sample_rate %d must be positive", a.CaptureSampleRate))
	}
	if a.PlaybackSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.playback_sample_rate %d must be positive", a.PlaybackSampleRate))
	}
	if a.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", a.FrameSize))
	}
	if a.OutboundQueue < 0 {
		errs = append(errs, fmt.Errorf("audio.outbound_queue %d must be positive", a.OutboundQueue))
	}

	validateProviderName("live", cfg.Live.Name)
	if cfg.Live.Name != "" && cfg.Live.APIKey == "" {
		errs = append(errs, errors.New("live.api_key is required"))
	}

	for i, e := range cfg.TTS.Entries() {
		prefix := "tts.provider"
		if i > 0 {
			prefix = fmt.Sprintf("tts.fallbacks[%d]", i-1)
		}
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName("tts", e.Name)
		// Fallbacks without a key are skipped when providers are built.
		if i == 0 && e.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required", prefix))
		}
	}
	if cfg.TTS.Provider.Name == "" && len(cfg.TTS.Fallbacks) > 0 {
		errs = append(errs, errors.New("tts.fallbacks requires tts.provider"))
	}

	if cfg.Highlight.DefaultDelay < 0 {
		errs = append(errs, fmt.Errorf("highlight.default_delay %s must not be negative", cfg.Highlight.DefaultDelay))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
