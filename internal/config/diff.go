package config

import (
	"reflect"
	"time"
)

// ConfigDiff describes what changed between two configs. Hot-reloadable
// fields are reported individually; anything else lands in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	HighlightDelayChanged bool
	NewHighlightDelay     time.Duration

	// SessionChanged is true when the live voice or system instruction
	// changed. The new values apply to the next session.
	SessionChanged bool

	// RestartRequired names the sections whose changes only take effect
	// after a restart, e.g. "audio" or "tts".
	RestartRequired []string
}

// Changed reports whether d carries any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.HighlightDelayChanged || d.SessionChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Highlight.DefaultDelay != new.Highlight.DefaultDelay {
		d.HighlightDelayChanged = true
		d.NewHighlightDelay = new.Highlight.DefaultDelay
	}
	if old.Live.Voice != new.Live.Voice || old.Live.SystemInstruction != new.Live.SystemInstruction {
		d.SessionChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !sameConnection(old.Live, new.Live) {
		d.RestartRequired = append(d.RestartRequired, "live")
	}
	if !reflect.DeepEqual(old.TTS, new.TTS) {
		d.RestartRequired = append(d.RestartRequired, "tts")
	}
	return d
}

// sameConnection compares the fields that are fixed once a provider is built.
func sameConnection(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		reflect.DeepEqual(a.Options, b.Options)
}
