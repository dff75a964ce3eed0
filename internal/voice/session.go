package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tutorvoice/internal/observe"
	"github.com/MrWong99/tutorvoice/pkg/audio"
	"github.com/MrWong99/tutorvoice/pkg/audio/pcm"
	"github.com/MrWong99/tutorvoice/pkg/audio/scheduler"
	"github.com/MrWong99/tutorvoice/pkg/provider/live"
)

// Session is one conversation: one capture run and one remote live session.
// Sessions are created and driven by a [Manager]; a session is never
// restarted once it has left Idle.
//
// All exported methods are safe for concurrent use.
type Session struct {
	id       string
	started  time.Time
	input    audio.Input
	provider live.Provider
	player   *scheduler.Scheduler
	opts     options
	chunker  *chunker

	// streaming gates the capture callback. Frames captured before the
	// session is active or after teardown began are discarded.
	streaming atomic.Bool
	outbound  chan string
	sent      atomic.Uint64
	dropped   atomic.Uint64

	mu         sync.Mutex
	state      State
	failure    string
	cancelled  bool // stop was called before start
	remote     live.Session
	cancelOpen context.CancelFunc
	opened     chan struct{} // closed when start returns
	cancelRun  context.CancelFunc
	pumpsDone  chan struct{} // closed when both pumps have exited
	finished   chan struct{} // closed on reaching Idle or Failed after Active
}

func newSession(id string, input audio.Input, provider live.Provider, player *scheduler.Scheduler, opts options) *Session {
	return &Session{
		id:        id,
		input:     input,
		provider:  provider,
		player:    player,
		opts:      opts,
		chunker:   newChunker(opts.frameSize, input.Format().SampleRate),
		outbound:  make(chan string, opts.queueSize),
		opened:    make(chan struct{}),
		pumpsDone: make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// StartedAt returns when the session began opening.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failure returns the human-readable reason the session failed, or "".
func (s *Session) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// FramesSent returns the number of capture frames handed to the provider.
func (s *Session) FramesSent() uint64 { return s.sent.Load() }

// FramesDropped returns the number of capture frames dropped because the
// outbound queue was full.
func (s *Session) FramesDropped() uint64 { return s.dropped.Load() }

// Done is closed once the session has left Active for good.
func (s *Session) Done() <-chan struct{} { return s.finished }

// setStateLocked moves to to and returns the previous state. Must be called with
// s.mu held; the caller notifies after unlocking.
func (s *Session) setStateLocked(to State) State {
	from := s.state
	s.state = to
	return from
}

func (s *Session) notify(ctx context.Context, from, to State) {
	if from == to {
		return
	}
	slog.Info("voice: session state changed",
		"session_id", s.id,
		"from", from.String(),
		"to", to.String(),
	)
	s.opts.metrics.RecordTransition(ctx, from.String(), to.String())
	switch {
	case to == StateActive:
		s.opts.metrics.ActiveSessions.Add(ctx, 1)
	case from == StateActive:
		s.opts.metrics.ActiveSessions.Add(ctx, -1)
	}
	if s.opts.onState != nil {
		s.opts.onState(s.id, from, to)
	}
}

// start opens the capture device, then the remote session, and begins
// streaming. Cancelling ctx or calling stop while opening returns the
// session to Idle.
func (s *Session) start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		close(s.opened)
		return ErrStopped
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("voice: start from state %s", s.state)
	}
	openCtx, cancel := context.WithCancel(ctx)
	s.cancelOpen = cancel
	s.started = time.Now().UTC()
	from := s.setStateLocked(StateOpening)
	s.mu.Unlock()
	defer close(s.opened)
	defer cancel()
	s.notify(ctx, from, StateOpening)

	if openCtx.Err() != nil {
		return s.abortOpen(ctx, nil, false)
	}
	if err := s.input.Start(s.onCapture); err != nil {
		return s.failOpen(ctx, classifyCapture(err), false)
	}
	if openCtx.Err() != nil {
		return s.abortOpen(ctx, nil, true)
	}

	spanCtx, span := observe.StartSpan(openCtx, "voice.connect")
	connectStart := time.Now()
	remote, err := s.provider.Connect(spanCtx, live.SessionConfig{
		Voice:         s.opts.voice,
		Instructions:  s.opts.instructions,
		InputMIMEType: fmt.Sprintf("audio/pcm;rate=%d", s.input.Format().SampleRate),
	})
	s.opts.metrics.ConnectDuration.Record(ctx, time.Since(connectStart).Seconds())
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	if err != nil {
		if openCtx.Err() != nil {
			return s.abortOpen(ctx, nil, true)
		}
		s.opts.metrics.RecordProviderError(ctx, "live", "connect")
		return s.failOpen(ctx, fmt.Errorf("voice: connect live session: %w", err), true)
	}
	if openCtx.Err() != nil {
		return s.abortOpen(ctx, remote, true)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)

	s.mu.Lock()
	s.remote = remote
	s.cancelRun = runCancel
	from = s.setStateLocked(StateActive)
	s.streaming.Store(true)
	s.mu.Unlock()

	g.Go(func() error { return s.sendLoop(gctx, remote) })
	g.Go(func() error { return s.receiveLoop(gctx, remote) })
	go s.supervise(runCtx, g)

	s.notify(ctx, from, StateActive)
	return nil
}

// abortOpen undoes a partially opened session after cancellation.
func (s *Session) abortOpen(ctx context.Context, remote live.Session, captureRunning bool) error {
	var errs []error
	if remote != nil {
		if err := remote.Close(); err != nil {
			errs = append(errs, fmt.Errorf("voice: close live session: %w", err))
		}
	}
	if captureRunning {
		if err := s.input.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("voice: stop capture: %w", err))
		}
	}
	if len(errs) > 0 {
		slog.Warn("voice: cleanup after cancelled open", "session_id", s.id, "err", errors.Join(errs...))
	}

	s.mu.Lock()
	from := s.setStateLocked(StateIdle)
	s.mu.Unlock()
	s.notify(ctx, from, StateIdle)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrStopped
}

// failOpen moves an opening session to Failed.
func (s *Session) failOpen(ctx context.Context, err error, captureRunning bool) error {
	if captureRunning {
		if stopErr := s.input.Stop(); stopErr != nil {
			slog.Warn("voice: stop capture after failed open", "session_id", s.id, "err", stopErr)
		}
	}
	s.mu.Lock()
	s.failure = describe(err)
	from := s.setStateLocked(StateFailed)
	s.mu.Unlock()

	slog.Error("voice: session failed to open", "session_id", s.id, "err", err)
	s.notify(ctx, from, StateFailed)
	return err
}

// onCapture runs on the capture device's thread.
func (s *Session) onCapture(buf audio.Buffer) {
	if !s.streaming.Load() {
		return
	}
	rate := s.input.Format().SampleRate
	s.chunker.push(buf, func(frame []float32) {
		encoded := pcm.EncodeTransport(pcm.FromSamples(audio.Buffer{
			Data:       [][]float32{frame},
			SampleRate: rate,
		}))
		select {
		case s.outbound <- encoded:
		default:
			s.dropped.Add(1)
			s.opts.metrics.FramesDropped.Add(context.Background(), 1)
		}
	})
}

// sendLoop forwards queued capture frames to the provider in order.
func (s *Session) sendLoop(ctx context.Context, remote live.Session) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-s.outbound:
			if err := remote.SendAudio(ctx, frame); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.opts.metrics.RecordProviderError(ctx, "live", "send")
				return fmt.Errorf("voice: send audio: %w", err)
			}
			s.sent.Add(1)
			s.opts.metrics.FramesSent.Add(ctx, 1)
		}
	}
}

// receiveLoop handles provider messages strictly in arrival order.
func (s *Session) receiveLoop(ctx context.Context, remote live.Session) error {
	msgs := remote.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				if err := remote.Err(); err != nil {
					s.opts.metrics.RecordProviderError(ctx, "live", "receive")
					return fmt.Errorf("voice: live session: %w", err)
				}
				return ErrRemoteClosed
			}
			if err := s.handle(ctx, m); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, m live.Message) error {
	switch m.Kind {
	case live.MessageAudio:
		raw, err := pcm.DecodeTransport(m.Audio)
		if err == nil {
			var buf audio.Buffer
			buf, err = pcm.ToSamples(raw, 1, live.SampleRate(m.MIMEType, s.opts.replyRate))
			if err == nil {
				return s.schedule(ctx, buf)
			}
		}
		// One bad chunk must not end the conversation.
		s.opts.metrics.RecordChunk(ctx, "malformed")
		slog.Warn("voice: dropping malformed reply chunk", "session_id", s.id, "err", err)
		return nil

	case live.MessageInterrupted:
		s.player.CancelAll()
		s.opts.metrics.Interruptions.Add(ctx, 1)
		slog.Debug("voice: reply interrupted", "session_id", s.id)

	case live.MessageTurnComplete:
		slog.Debug("voice: turn complete", "session_id", s.id)
	}

	if m.Kind != live.MessageAudio && s.opts.onMessage != nil {
		s.opts.onMessage(m)
	}
	return nil
}

func (s *Session) schedule(ctx context.Context, buf audio.Buffer) error {
	lead := s.player.Cursor() - s.player.Now()
	if _, err := s.player.Enqueue(buf); err != nil {
		return fmt.Errorf("voice: schedule reply: %w", err)
	}
	s.opts.metrics.RecordChunk(ctx, "ok")
	s.opts.metrics.PlaybackLead.Record(ctx, lead.Seconds())
	return nil
}

// supervise waits for the pumps. If they ended on their own the session is
// failed; if stop cancelled them, stop owns the teardown.
func (s *Session) supervise(runCtx context.Context, g *errgroup.Group) {
	err := g.Wait()
	close(s.pumpsDone)
	if runCtx.Err() != nil {
		return
	}
	if err == nil {
		err = ErrRemoteClosed
	}
	s.fail(err)
}

// fail tears down an active session and moves it to Failed.
func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	from := s.setStateLocked(StateClosing)
	s.mu.Unlock()
	ctx := context.Background()
	s.notify(ctx, from, StateClosing)

	if err := s.teardown(); err != nil {
		slog.Warn("voice: teardown after failure", "session_id", s.id, "err", err)
	}

	s.mu.Lock()
	s.failure = describe(cause)
	from = s.setStateLocked(StateFailed)
	s.mu.Unlock()

	slog.Error("voice: session failed", "session_id", s.id, "err", cause)
	s.notify(ctx, from, StateFailed)
	close(s.finished)
}

// stop ends the session. Stopping an idle, failed or already closing
// session is a no-op; an opening session is cancelled.
func (s *Session) stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateOpening:
		cancel, opened := s.cancelOpen, s.opened
		s.mu.Unlock()
		cancel()
		select {
		case <-opened:
		case <-ctx.Done():
			return ctx.Err()
		}
		// start has returned; it may still have reached Active.
		return s.stop(ctx)

	case StateActive:
		from := s.setStateLocked(StateClosing)
		s.mu.Unlock()
		s.notify(ctx, from, StateClosing)

		err := s.teardown()

		s.mu.Lock()
		from = s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.notify(ctx, from, StateIdle)
		close(s.finished)
		return err

	case StateClosing:
		finished := s.finished
		s.mu.Unlock()
		select {
		case <-finished:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

	case StateIdle:
		s.cancelled = true
		s.mu.Unlock()
		return nil

	default:
		s.mu.Unlock()
		return nil
	}
}

// teardown runs every cleanup step even if earlier ones fail.
func (s *Session) teardown() error {
	s.streaming.Store(false)

	s.mu.Lock()
	remote, cancelRun := s.remote, s.cancelRun
	s.mu.Unlock()

	var errs []error
	if err := s.input.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("voice: stop capture: %w", err))
	}
	cancelRun()
	if err := remote.Close(); err != nil {
		errs = append(errs, fmt.Errorf("voice: close live session: %w", err))
	}
	<-s.pumpsDone

	s.player.CancelAll()
	s.chunker.reset()
	audio.Drain(s.outbound)
	for _, fn := range s.opts.onStop {
		fn()
	}
	return errors.Join(errs...)
}

// classifyCapture maps a capture device error onto the session taxonomy.
func classifyCapture(err error) error {
	if errors.Is(err, audio.ErrPermissionDenied) {
		return fmt.Errorf("%w: %v", ErrCaptureDeviceDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrCaptureDeviceUnavailable, err)
}

// describe turns a session-ending error into the one line shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, ErrCaptureDeviceDenied):
		return "Microphone access was denied. Allow microphone access and start again."
	case errors.Is(err, ErrCaptureDeviceUnavailable):
		return "The microphone could not be opened: " + err.Error()
	case errors.Is(err, ErrRemoteClosed):
		return "The conversation was ended by the tutor service. Start again to reconnect."
	default:
		return "The conversation stopped because of an error: " + err.Error()
	}
}
