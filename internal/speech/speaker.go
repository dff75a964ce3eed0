// Package speech plays single tutor utterances through a TTS provider and
// keeps a word highlighter in step with the audio.
//
// Utterances share the playback scheduler with the live conversation, so a
// spoken explanation never overlaps streamed reply audio. Only one utterance
// plays at a time.
package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/tutorvoice/internal/observe"
	"github.com/MrWong99/tutorvoice/pkg/audio/pcm"
	"github.com/MrWong99/tutorvoice/pkg/audio/scheduler"
	"github.com/MrWong99/tutorvoice/pkg/highlight"
	"github.com/MrWong99/tutorvoice/pkg/provider/live"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
)

// ErrBusy is returned by [Speaker.Speak] while another utterance is playing.
var ErrBusy = errors.New("speech: another utterance is playing")

// Option configures a [Speaker].
type Option func(*Speaker)

// WithVoice sets the voice name passed to the TTS provider. Empty lets the
// provider choose.
func WithVoice(name string) Option {
	return func(s *Speaker) { s.voice = name }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// WithOnHighlight registers fn to receive every change of the active word.
// index is [highlight.NoActive] when nothing is highlighted. fn must not
// call back into the speaker.
func WithOnHighlight(fn func(tl highlight.Timeline, index int)) Option {
	return func(s *Speaker) { s.onHighlight = fn }
}

// utterance is the one in-flight Speak call.
type utterance struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
}

// Speaker speaks one utterance at a time on a shared scheduler.
//
// All exported methods are safe for concurrent use.
type Speaker struct {
	tts         tts.Provider
	player      *scheduler.Scheduler
	voice       string
	metrics     *observe.Metrics
	onHighlight func(highlight.Timeline, int)

	mu  sync.Mutex
	cur *utterance
}

// New creates a Speaker that synthesises through provider and plays on
// player. player must already be started.
func New(provider tts.Provider, player *scheduler.Scheduler, opts ...Option) *Speaker {
	s := &Speaker{
		tts:    provider,
		player: player,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Speaking reports whether an utterance is in flight.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Speak synthesises text and plays it, highlighting one word at a time, and
// returns when playback ends. Emphasis markers are removed before synthesis
// but drive the highlight. Speak returns [ErrBusy] without side effects while
// another utterance is in flight, ctx.Err() if ctx is cancelled,
// [scheduler.ErrCancelled] if playback was cancelled on the scheduler, and
// nil if the utterance finished or was ended by [Speaker.Stop].
func (s *Speaker) Speak(ctx context.Context, text string) error {
	uctx, cancel := context.WithCancel(ctx)
	u := &utterance{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		cancel()
		return ErrBusy
	}
	s.cur = u
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cur = nil
		s.mu.Unlock()
		close(u.done)
	}()

	status, err := s.play(uctx, text)
	if err != nil && u.stopped.Load() {
		status, err = "stopped", nil
	}
	s.metrics.RecordUtterance(ctx, status)
	return err
}

func (s *Speaker) play(ctx context.Context, text string) (string, error) {
	sctx, span := observe.StartSpan(ctx, "speech.synthesize")
	start := time.Now()
	speech, err := s.tts.Synthesize(sctx, highlight.StripMarkers(text), s.voice)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	if err != nil {
		if ctx.Err() != nil {
			return "cancelled", ctx.Err()
		}
		s.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return "error", fmt.Errorf("speech: synthesize: %w", err)
	}
	if speech.Empty() {
		observe.Logger(sctx).Debug("speech: provider returned no audio", "chars", len(text))
		return "empty", nil
	}

	raw, err := pcm.DecodeTransport(speech.Audio)
	if err != nil {
		return "error", fmt.Errorf("speech: decode audio: %w", err)
	}
	rate := speech.SampleRate
	if rate <= 0 {
		rate = live.SampleRate(speech.MIMEType, tts.DefaultSampleRate)
	}
	buf, err := pcm.ToSamples(raw, 1, rate)
	if err != nil {
		return "error", fmt.Errorf("speech: decode audio: %w", err)
	}

	v, err := s.player.PlayOnce(buf)
	if err != nil {
		return "error", fmt.Errorf("speech: play: %w", err)
	}

	tl := highlight.New(text, buf.Duration())
	driver := highlight.NewDriver(tl, func(i int) {
		if s.onHighlight != nil {
			s.onHighlight(tl, i)
		}
	})
	defer driver.Stop()

	// Streamed reply audio may still be queued ahead of this voice.
	if wait := v.Start() - s.player.Now(); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.player.Cancel(v)
			return "cancelled", ctx.Err()
		}
	}
	driver.Start(ctx)

	select {
	case <-v.Done():
		if errors.Is(v.Err(), scheduler.ErrCancelled) {
			return "cancelled", v.Err()
		}
		return "ok", nil
	case <-ctx.Done():
		s.player.Cancel(v)
		return "cancelled", ctx.Err()
	}
}

// Toggle stops the current utterance if one is playing, otherwise it speaks
// text. It mirrors a single play/stop button.
func (s *Speaker) Toggle(ctx context.Context, text string) error {
	if s.Stop() {
		return nil
	}
	err := s.Speak(ctx, text)
	if errors.Is(err, ErrBusy) {
		// Another caller started speaking between Stop and Speak.
		s.Stop()
		return nil
	}
	return err
}

// Stop ends the current utterance, cancelling its audio and clearing the
// highlight, and waits for Speak to return. It reports whether an
// utterance was playing.
func (s *Speaker) Stop() bool {
	s.mu.Lock()
	u := s.cur
	s.mu.Unlock()
	if u == nil {
		return false
	}
	u.stopped.Store(true)
	u.cancel()
	<-u.done
	return true
}
