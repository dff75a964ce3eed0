// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to feed inbound messages and inspect the audio frames the
// caller sent.
//
// Example:
//
//	sess := mock.NewSession(16)
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Push(live.Message{Kind: live.MessageTurnComplete})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tutorvoice/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a fresh Session
	// with a buffered message channel.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectHook, if set, runs before Connect returns. It lets tests block a
	// connect attempt until the context is cancelled.
	ConnectHook func(ctx context.Context) error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	// Issued records every session returned by a successful Connect.
	Issued []*Session
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	hook := p.ConnectHook
	connectErr := p.ConnectErr
	sess := p.Session
	p.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}
	if sess == nil {
		sess = NewSession(64)
	}
	p.mu.Lock()
	p.Issued = append(p.Issued, sess)
	p.mu.Unlock()
	return sess, nil
}

// Sessions returns a copy of the sessions handed out so far. Thread-safe.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.Issued))
	copy(out, p.Issued)
	return out
}

// Calls returns a copy of the recorded Connect calls. Thread-safe.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
	p.Issued = nil
}

// Ensure Provider implements live.Provider at compile time.
var _ live.Provider = (*Provider)(nil)

// Session is a mock implementation of live.Session.
type Session struct {
	mu sync.Mutex

	messages chan live.Message
	endOnce  sync.Once
	errVal   error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendBlock, if non-nil, makes SendAudio wait after recording the call
	// until the channel is closed or ctx is cancelled.
	SendBlock chan struct{}

	// SendAudioCalls records the encoded frames passed to SendAudio in order.
	SendAudioCalls []string

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	sent chan struct{}
}

// NewSession returns a Session whose message channel has the given capacity.
func NewSession(buffer int) *Session {
	return &Session{
		messages: make(chan live.Message, buffer),
		sent:     make(chan struct{}, 1024),
	}
}

// Push delivers m to the consumer. It blocks while the channel is full and
// panics if the session has ended.
func (s *Session) Push(m live.Message) {
	s.messages <- m
}

// End closes the message channel, recording err as the terminal error.
// Subsequent calls are no-ops.
func (s *Session) End(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.errVal = err
		s.mu.Unlock()
		close(s.messages)
	})
}

// Sent is signalled once per recorded SendAudio call.
func (s *Session) Sent() <-chan struct{} { return s.sent }

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(ctx context.Context, encoded string) error {
	s.mu.Lock()
	s.SendAudioCalls = append(s.SendAudioCalls, encoded)
	err := s.SendAudioErr
	block := s.SendBlock
	s.mu.Unlock()
	select {
	case s.sent <- struct{}{}:
	default:
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Sends returns a copy of the recorded SendAudio frames. Thread-safe.
func (s *Session) Sends() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.SendAudioCalls))
	copy(out, s.SendAudioCalls)
	return out
}

// Messages returns the inbound message channel.
func (s *Session) Messages() <-chan live.Message { return s.messages }

// Err returns the error passed to End.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close records the call, ends the session and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	err := s.CloseErr
	s.mu.Unlock()
	s.End(nil)
	return err
}

// Closes returns the number of Close calls. Thread-safe.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Ensure Session implements live.Session at compile time.
var _ live.Session = (*Session)(nil)
