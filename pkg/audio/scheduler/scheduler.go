// Package scheduler plays an unbounded sequence of audio buffers back to back
// on a single output device without gaps or overlap.
//
// Every enqueued buffer starts at max(cursor, now) on the device clock, after
// which the cursor advances by the buffer's length. The device clock is the
// number of frames the output device has rendered, so scheduling is exact to
// the frame regardless of how unevenly buffers arrive.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/tutorvoice/pkg/audio"
)

var (
	// ErrDeviceUnavailable is returned by [Scheduler.Start] when the output
	// device cannot be opened. It is never retried automatically.
	ErrDeviceUnavailable = errors.New("scheduler: output device unavailable")

	// ErrCancelled is reported by [Voice.Err] for voices stopped before their
	// last frame was rendered.
	ErrCancelled = errors.New("scheduler: voice cancelled")

	// ErrNotStarted is returned when buffers are enqueued before Start.
	ErrNotStarted = errors.New("scheduler: not started")

	// ErrClosed is returned when buffers are enqueued after Close.
	ErrClosed = errors.New("scheduler: closed")
)

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithOnComplete registers fn to be called once for every voice that plays to
// the end. It is not called for cancelled voices. fn runs after the voice
// has left the live set, usually on the device's render goroutine; an empty
// buffer completes at once on the goroutine that called [Scheduler.Enqueue].
// fn must not block.
func WithOnComplete(fn func(*Voice)) Option {
	return func(s *Scheduler) {
		s.onComplete = fn
	}
}

// WithName sets the label used in log messages.
func WithName(name string) Option {
	return func(s *Scheduler) {
		s.name = name
	}
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Enqueued  uint64
	Completed uint64
	Cancelled uint64
	Live      int
}

// Scheduler owns the timeline of one output device. Only the scheduler writes
// to the device.
//
// All exported methods are safe for concurrent use.
type Scheduler struct {
	out        audio.Output
	format     audio.Format
	conv       *audio.Converter
	name       string
	onComplete func(*Voice)

	startMu sync.Mutex // serialises Start

	mu      sync.Mutex
	clock   int64    // frames rendered by the device so far
	cursor  int64    // earliest frame the next voice may start at
	voices  []*Voice // live voices in start order
	seq     uint64
	stats   Stats
	started bool
	closed  bool
}

// New creates a Scheduler for out. The device is not opened until
// [Scheduler.Start] is called.
func New(out audio.Output, opts ...Option) *Scheduler {
	f := out.Format()
	s := &Scheduler{
		out:    out,
		format: f,
		conv:   &audio.Converter{Target: f},
		name:   "playback",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start opens the output device. Failure wraps [ErrDeviceUnavailable].
// Calling Start on a running scheduler is a no-op, also when several
// goroutines call it at once.
func (s *Scheduler) Start() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.out.Start(s.render); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := s.out.Close(); err != nil {
			slog.Warn("scheduler: close output after concurrent Close", "name", s.name, "err", err)
		}
		return ErrClosed
	}
	s.started = true
	s.mu.Unlock()

	slog.Info("scheduler: output device started", "name", s.name, "format", s.format.String())
	return nil
}

// Running reports whether the output device has been started and not closed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closed
}

// Format returns the device format buffers are converted to.
func (s *Scheduler) Format() audio.Format { return s.format }

// Enqueue schedules buf to start at max(cursor, now) and advances the cursor
// by the buffer's duration. Buffers in a different format are converted to
// the device format first. An empty buffer yields a voice that completes
// immediately without touching the cursor.
func (s *Scheduler) Enqueue(buf audio.Buffer) (*Voice, error) {
	converted := s.conv.Convert(buf)

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.seq++
	start := max(s.cursor, s.clock)
	v := &Voice{
		id:    s.seq,
		start: start,
		buf:   converted,
		rate:  s.format.SampleRate,
		done:  make(chan struct{}),
	}
	s.stats.Enqueued++

	if converted.Frames() == 0 {
		v.removed = true
		s.stats.Completed++
		s.mu.Unlock()
		s.finish(v)
		return v, nil
	}

	s.cursor = start + int64(converted.Frames())
	s.voices = append(s.voices, v)
	s.mu.Unlock()

	return v, nil
}

// PlayOnce schedules a discrete utterance. It shares the cursor with
// [Scheduler.Enqueue], so it starts immediately when the device is idle and
// after any streamed audio otherwise. Preventing concurrent single
// utterances is the caller's responsibility.
func (s *Scheduler) PlayOnce(buf audio.Buffer) (*Voice, error) {
	return s.Enqueue(buf)
}

// Cancel stops v if it is still live. Cancelling a finished voice is a no-op.
// If v was the last scheduled voice the cursor is pulled back to max(now,
// end of the previous live voice).
func (s *Scheduler) Cancel(v *Voice) {
	s.mu.Lock()
	if v.removed {
		s.mu.Unlock()
		return
	}
	for i, lv := range s.voices {
		if lv == v {
			s.voices = append(s.voices[:i], s.voices[i+1:]...)
			break
		}
	}
	s.cancelLocked(v)
	s.cursor = s.clock
	if n := len(s.voices); n > 0 {
		last := s.voices[n-1]
		s.cursor = max(s.clock, last.start+int64(last.buf.Frames()))
	}
	s.mu.Unlock()

	close(v.done)
}

// CancelAll immediately stops every live voice, empties the live set and
// resets the cursor to the current device time.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	cancelled := s.voices
	s.voices = nil
	for _, v := range cancelled {
		s.cancelLocked(v)
	}
	s.cursor = s.clock
	s.mu.Unlock()

	for _, v := range cancelled {
		close(v.done)
	}
	if len(cancelled) > 0 {
		slog.Debug("scheduler: cancelled live voices", "name", s.name, "count", len(cancelled))
	}
}

// Now returns the device clock: the playback time of all frames rendered so far.
func (s *Scheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return framesToDuration(s.clock, s.format.SampleRate)
}

// Cursor returns the time at which the next enqueued buffer would start,
// never earlier than [Scheduler.Now].
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return framesToDuration(max(s.cursor, s.clock), s.format.SampleRate)
}

// Live returns the number of voices that are playing or pending.
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Live = len(s.voices)
	return st
}

// Close cancels all live voices and releases the output device. Close is
// idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	s.CancelAll()
	if !started {
		return nil
	}
	if err := s.out.Close(); err != nil {
		return fmt.Errorf("scheduler: close output: %w", err)
	}
	return nil
}

// render is the device callback. It mixes every live voice overlapping the
// requested window into out, advances the device clock and completes voices
// whose last frame has been rendered.
func (s *Scheduler) render(out []float32) {
	clear(out)
	ch := s.format.Channels
	if ch <= 0 {
		return
	}
	frames := int64(len(out) / ch)

	s.mu.Lock()
	winStart := s.clock
	winEnd := winStart + frames

	var finished []*Voice
	kept := s.voices[:0]
	for _, v := range s.voices {
		if v.start >= winEnd {
			kept = append(kept, v)
			continue
		}
		vEnd := v.start + int64(v.buf.Frames())
		from := max(v.start, winStart)
		to := min(vEnd, winEnd)
		for c := range ch {
			src := v.buf.Data[c%v.buf.Channels()]
			for f := from; f < to; f++ {
				out[int(f-winStart)*ch+c] += src[f-v.start]
			}
		}
		if vEnd <= winEnd {
			v.removed = true
			s.stats.Completed++
			finished = append(finished, v)
			continue
		}
		kept = append(kept, v)
	}
	clear(s.voices[len(kept):])
	s.voices = kept
	s.clock = winEnd
	s.mu.Unlock()

	for i, smp := range out {
		if smp > 1 {
			out[i] = 1
		} else if smp < -1 {
			out[i] = -1
		}
	}

	for _, v := range finished {
		s.finish(v)
	}
}

func (s *Scheduler) finish(v *Voice) {
	close(v.done)
	if s.onComplete != nil {
		s.onComplete(v)
	}
}

func (s *Scheduler) cancelLocked(v *Voice) {
	v.removed = true
	v.err = ErrCancelled
	s.stats.Cancelled++
}

func (s *Scheduler) usableLocked() error {
	switch {
	case s.closed:
		return ErrClosed
	case !s.started:
		return ErrNotStarted
	}
	return nil
}
