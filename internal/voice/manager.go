package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/tutorvoice/internal/observe"
	"github.com/MrWong99/tutorvoice/pkg/audio"
	"github.com/MrWong99/tutorvoice/pkg/audio/scheduler"
	"github.com/MrWong99/tutorvoice/pkg/provider/live"
)

// Info describes the current session.
type Info struct {
	// SessionID is empty when no session was ever started.
	SessionID string
	StartedAt time.Time
	State     State
	Failure   string
}

// Manager owns at most one [Session]. Starting a new session fully stops the
// previous one first, so at most one session is ever active.
//
// All exported methods are safe for concurrent use.
type Manager struct {
	input    audio.Input
	provider live.Provider
	player   *scheduler.Scheduler
	opts     options

	// startMu serialises Start calls. Stop does not take it so that an
	// opening session can be cancelled.
	startMu sync.Mutex

	mu      sync.Mutex
	current *Session
}

// NewManager creates a Manager that captures from input, converses through
// provider and plays replies on player. player must already be started.
func NewManager(input audio.Input, provider live.Provider, player *scheduler.Scheduler, opts ...Option) *Manager {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return &Manager{
		input:    input,
		provider: provider,
		player:   player,
		opts:     o,
	}
}

// Start stops any existing session and opens a new one. It returns once the
// new session is active, or with the error that kept it from becoming
// active. A failed session can be retried by calling Start again.
func (m *Manager) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.Lock()
	prev, opts := m.current, m.opts
	m.mu.Unlock()
	if prev != nil {
		if err := prev.stop(ctx); err != nil {
			slog.Warn("voice: stopping previous session", "session_id", prev.ID(), "err", err)
		}
	}

	sess := newSession(uuid.NewString(), m.input, m.provider, m.player, opts)
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	slog.Info("voice: session starting", "session_id", sess.ID())
	if err := sess.start(ctx); err != nil {
		return fmt.Errorf("voice: start session %s: %w", sess.ID(), err)
	}
	slog.Info("voice: session started", "session_id", sess.ID())
	return nil
}

// Configure applies opts to sessions started after the call. The running
// session keeps the options it was started with.
func (m *Manager) Configure(opts ...Option) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fn := range opts {
		fn(&m.opts)
	}
}

// Stop ends the current session. Stopping when nothing is running is not an
// error. Cleanup errors are joined and returned after every step has run.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return nil
	}
	if err := sess.stop(ctx); err != nil {
		return err
	}
	slog.Info("voice: session stopped", "session_id", sess.ID())
	return nil
}

// Current returns the current session, or nil before the first Start.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State returns the state of the current session, or Idle if there is none.
func (m *Manager) State() State {
	if sess := m.Current(); sess != nil {
		return sess.State()
	}
	return StateIdle
}

// Failure returns the reason the current session failed, or "".
func (m *Manager) Failure() string {
	if sess := m.Current(); sess != nil {
		return sess.Failure()
	}
	return ""
}

// Info returns a snapshot describing the current session.
func (m *Manager) Info() Info {
	sess := m.Current()
	if sess == nil {
		return Info{State: StateIdle}
	}
	return Info{
		SessionID: sess.ID(),
		StartedAt: sess.StartedAt(),
		State:     sess.State(),
		Failure:   sess.Failure(),
	}
}
