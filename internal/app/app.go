// Package app wires the tutorvoice subsystems into a running application.
//
// The App struct owns the full lifecycle: New starts playback and builds the
// conversation and read-aloud subsystems, Run holds a live conversation, Say
// reads one text aloud, and Shutdown tears everything down in order.
//
// Devices and providers come in through [Providers], usually built by main
// from the config registry. For testing, inject mock devices there and use
// the functional options for the console and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/tutorvoice/internal/config"
	"github.com/MrWong99/tutorvoice/internal/console"
	"github.com/MrWong99/tutorvoice/internal/health"
	"github.com/MrWong99/tutorvoice/internal/observe"
	"github.com/MrWong99/tutorvoice/internal/speech"
	"github.com/MrWong99/tutorvoice/internal/voice"
	"github.com/MrWong99/tutorvoice/pkg/audio"
	"github.com/MrWong99/tutorvoice/pkg/audio/scheduler"
	"github.com/MrWong99/tutorvoice/pkg/provider/live"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
)

// ErrNoTTS is returned by [App.Say] when no TTS provider is configured.
var ErrNoTTS = errors.New("app: no tts provider configured")

// Providers holds the devices and provider clients the App runs on. Input
// and Live may be nil when only read-aloud is used; TTS may be nil when only
// conversations are held. Output is always required.
type Providers struct {
	Output audio.Output
	Input  audio.Input
	Live   live.Provider
	TTS    tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	printer  *console.Printer
	logLevel *slog.LevelVar
	checks   []health.Checker

	// Subsystems, initialised in New and torn down in Shutdown.
	player   *scheduler.Scheduler
	voice    *voice.Manager
	speaker  *speech.Speaker
	captions *captions
	playback metric.Registration

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithPrinter sets the console printer. Default: a printer on io.Discard.
func WithPrinter(p *console.Printer) Option {
	return func(a *App) { a.printer = p }
}

// WithLogLevel lets config reloads adjust the process log level.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithReadiness adds readiness checks, such as provider circuit breakers, to
// the ones the App derives from its own subsystems.
func WithReadiness(checks ...health.Checker) Option {
	return func(a *App) { a.checks = append(a.checks, checks...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The playback device
// is started before New returns; a conversation is only opened by Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Output == nil {
		return nil, errors.New("app: an output device is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.printer == nil {
		a.printer = console.New(io.Discard)
	}

	// ── 1. Playback ──────────────────────────────────────────────────────
	if err := a.initPlayback(); err != nil {
		return nil, fmt.Errorf("app: init playback: %w", err)
	}

	// ── 2. Conversation ──────────────────────────────────────────────────
	a.captions = newCaptions(a.printer.Highlight, cfg.Highlight.DefaultDelay)
	if providers.Input != nil && providers.Live != nil {
		a.initVoice()
	}

	// ── 3. Read-aloud ────────────────────────────────────────────────────
	if providers.TTS != nil {
		a.initSpeaker()
	}

	slog.Info("app initialised",
		"backend", cfg.Audio.Backend,
		"capture_backend", cfg.Audio.CaptureBackend,
		"conversation", a.voice != nil,
		"read_aloud", a.speaker != nil,
	)
	return a, nil
}

func (a *App) initPlayback() error {
	a.player = scheduler.New(a.providers.Output, scheduler.WithName("playback"))
	if err := a.player.Start(); err != nil {
		return err
	}
	a.closers = append(a.closers, a.player.Close)

	reg, err := a.metrics.ObservePlayback("playback", func() observe.PlaybackStats {
		st := a.player.Stats()
		return observe.PlaybackStats{
			Enqueued:  st.Enqueued,
			Completed: st.Completed,
			Cancelled: st.Cancelled,
			Live:      st.Live,
		}
	})
	if err != nil {
		// Metrics are best effort; playback works without them.
		slog.Warn("app: playback metrics unavailable", "err", err)
		return nil
	}
	a.playback = reg
	a.closers = append(a.closers, reg.Unregister)
	return nil
}

func (a *App) initVoice() {
	cfg := a.cfg
	a.voice = voice.NewManager(a.providers.Input, a.providers.Live, a.player,
		voice.WithFrameSize(cfg.Audio.FrameSize),
		voice.WithQueueSize(cfg.Audio.OutboundQueue),
		voice.WithVoice(cfg.Live.Voice),
		voice.WithSystemInstruction(cfg.Live.SystemInstruction),
		voice.WithMetrics(a.metrics),
		voice.WithOnState(a.onState),
		voice.WithOnMessage(a.onMessage),
		voice.WithOnStop(a.captions.stop),
	)
	a.closers = append(a.closers, a.providers.Input.Close)
}

func (a *App) initSpeaker() {
	name := a.cfg.TTS.Provider.Voice
	if name == "" {
		name = a.cfg.Live.Voice
	}
	a.speaker = speech.New(a.providers.TTS, a.player,
		speech.WithVoice(name),
		speech.WithMetrics(a.metrics),
		speech.WithOnHighlight(a.printer.Highlight),
	)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run opens a live conversation and holds it until ctx is cancelled or the
// session fails. A failure is returned as an error carrying the reason
// shown to the user.
func (a *App) Run(ctx context.Context) error {
	if a.voice == nil {
		return errors.New("app: conversation needs a capture device and a live provider")
	}
	if err := a.voice.Start(ctx); err != nil {
		return fmt.Errorf("app: start conversation: %w", err)
	}
	a.printer.Hint("Listening. Press Ctrl+C to stop.")

	sess := a.voice.Current()
	select {
	case <-ctx.Done():
		return nil
	case <-sess.Done():
	}
	if reason := sess.Failure(); reason != "" {
		return fmt.Errorf("app: conversation ended: %s", reason)
	}
	return nil
}

// Say reads text aloud through the TTS provider, highlighting each word on
// the console, and returns once playback finished or was stopped.
func (a *App) Say(ctx context.Context, text string) error {
	if a.speaker == nil {
		return ErrNoTTS
	}
	if err := a.speaker.Speak(ctx, text); err != nil {
		return fmt.Errorf("app: read aloud: %w", err)
	}
	return nil
}

// Voice returns the conversation manager, or nil when conversations are
// not configured.
func (a *App) Voice() *voice.Manager { return a.voice }

// Speaker returns the read-aloud speaker, or nil without a TTS provider.
func (a *App) Speaker() *speech.Speaker { return a.speaker }

// Player returns the shared playback scheduler.
func (a *App) Player() *scheduler.Scheduler { return a.player }

// Checkers returns the readiness checks for the health handler.
func (a *App) Checkers() []health.Checker {
	checks := []health.Checker{
		health.Flag("playback", a.player.Running, "playback device is not running"),
	}
	if a.voice != nil {
		checks = append(checks, health.Flag("conversation", func() bool {
			return a.voice.State() != voice.StateFailed
		}, "conversation failed"))
	}
	return append(checks, a.checks...)
}

// ─── Callbacks ───────────────────────────────────────────────────────────────

func (a *App) onState(_ string, _, to voice.State) {
	failure := ""
	if to == voice.StateFailed {
		failure = a.voice.Failure()
	}
	a.printer.Status("Session", to.String(), failure)
}

func (a *App) onMessage(m live.Message) {
	switch m.Kind {
	case live.MessageOutputTranscript:
		a.captions.follow(m.Text)
	case live.MessageInterrupted, live.MessageTurnComplete:
		a.captions.stop()
	case live.MessageInputTranscript:
		a.captions.stop()
		a.printer.Transcript(m)
	}
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a config change. It has
// the signature of a config watcher callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}
	if d.HighlightDelayChanged {
		a.captions.setDelay(d.NewHighlightDelay)
		slog.Info("config: highlight delay changed", "delay", d.NewHighlightDelay)
	}
	if d.SessionChanged && a.voice != nil {
		a.voice.Configure(
			voice.WithVoice(new.Live.Voice),
			voice.WithSystemInstruction(new.Live.SystemInstruction),
		)
		slog.Info("config: conversation settings apply to the next session", "voice", new.Live.Voice)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes need a restart", "sections", strings.Join(d.RestartRequired, ","))
	}
	a.cfg = new
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. Any speech and conversation are
// stopped first, then the closers run in reverse registration order, so the
// playback device registered first is released last. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.speaker != nil {
			a.speaker.Stop()
		}
		if a.voice != nil {
			if err := a.voice.Stop(ctx); err != nil {
				slog.Warn("conversation stop error", "err", err)
			}
		}
		a.captions.stop()

		for i := len(a.closers) - 1; i >= 0; i-- {
			closer := a.closers[i]
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
