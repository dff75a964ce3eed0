package app_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/tutorvoice/internal/app"
	"github.com/MrWong99/tutorvoice/internal/config"
	"github.com/MrWong99/tutorvoice/internal/console"
	"github.com/MrWong99/tutorvoice/internal/health"
	"github.com/MrWong99/tutorvoice/internal/voice"
	"github.com/MrWong99/tutorvoice/pkg/audio"
	audiomock "github.com/MrWong99/tutorvoice/pkg/audio/mock"
	"github.com/MrWong99/tutorvoice/pkg/audio/pcm"
	"github.com/MrWong99/tutorvoice/pkg/audio/scheduler"
	"github.com/MrWong99/tutorvoice/pkg/provider/live"
	livemock "github.com/MrWong99/tutorvoice/pkg/provider/live/mock"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/tutorvoice/pkg/provider/tts/mock"
)

// safeBuffer is a bytes.Buffer guarded for concurrent writers.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testConfig returns a minimal valid config.
func testConfig() *config.Config {
	cfg := &config.Config{
		Live: config.ProviderEntry{Name: "gemini", APIKey: "k", SystemInstruction: "Be a patient tutor."},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

type rig struct {
	out  *audiomock.Output
	in   *audiomock.Input
	live *livemock.Provider
	tts  *ttsmock.Provider
	log  *safeBuffer
}

// testProviders returns mock devices and providers for every slot.
func testProviders() (*rig, *app.Providers) {
	r := &rig{
		out:  &audiomock.Output{Fmt: audio.Format{SampleRate: 24000, Channels: 1}},
		in:   &audiomock.Input{Fmt: audio.Format{SampleRate: 16000, Channels: 1}},
		live: &livemock.Provider{},
		tts:  &ttsmock.Provider{},
		log:  &safeBuffer{},
	}
	return r, &app.Providers{Output: r.out, Input: r.in, Live: r.live, TTS: r.tts}
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, r *rig, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithPrinter(console.NewWithStyles(r.log, console.Styles{}))}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// runAsync starts a conversation and waits for it to become active.
func runAsync(t *testing.T, a *app.App) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()
	eventually(t, "active conversation", func() bool { return a.Voice().State() == voice.StateActive })
	return cancel, errc
}

// ─── New ─────────────────────────────────────────────────────────────────────

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	a := newApp(t, testConfig(), providers, r)

	if a.Voice() == nil {
		t.Error("Voice() is nil with capture and live configured")
	}
	if a.Speaker() == nil {
		t.Error("Speaker() is nil with tts configured")
	}
	if !a.Player().Running() {
		t.Error("playback should be running after New")
	}
	if r.out.CallCountStart != 1 {
		t.Errorf("output Start called %d times, want 1", r.out.CallCountStart)
	}
}

func TestNew_OptionalSubsystems(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	providers.Input, providers.Live, providers.TTS = nil, nil, nil
	a := newApp(t, testConfig(), providers, r)

	if a.Voice() != nil || a.Speaker() != nil {
		t.Error("subsystems without providers should be nil")
	}
	if err := a.Run(context.Background()); err == nil {
		t.Error("Run without a live provider should fail")
	}
	if err := a.Say(context.Background(), "hello"); !errors.Is(err, app.ErrNoTTS) {
		t.Errorf("Say error = %v, want ErrNoTTS", err)
	}
}

func TestNew_RequiresOutput(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Fatal("expected error without an output device")
	}
}

func TestNew_PlaybackStartFails(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	r.out.StartErr = errors.New("no default device")
	_, err := app.New(context.Background(), testConfig(), providers)
	if !errors.Is(err, scheduler.ErrDeviceUnavailable) {
		t.Fatalf("New error = %v, want scheduler.ErrDeviceUnavailable", err)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

func TestRun_HoldsConversationUntilCancelled(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	a := newApp(t, testConfig(), providers, r)

	cancel, errc := runAsync(t, a)
	calls := r.live.Calls()
	if len(calls) != 1 || calls[0].Cfg.Voice != config.DefaultVoice {
		t.Fatalf("Connect calls = %+v", calls)
	}
	if calls[0].Cfg.Instructions != "Be a patient tutor." {
		t.Errorf("Instructions = %q", calls[0].Cfg.Instructions)
	}
	if !strings.Contains(r.log.String(), "active") {
		t.Errorf("console should show the active state, got %q", r.log.String())
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ReturnsSessionFailure(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	a := newApp(t, testConfig(), providers, r)

	_, errc := runAsync(t, a)
	r.live.Sessions()[0].End(errors.New("socket reset"))

	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("Run should report the failed conversation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the session failed")
	}
	if got := a.Voice().State(); got != voice.StateFailed {
		t.Errorf("State = %s, want failed", got)
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	r.live.ConnectErr = errors.New("handshake refused")
	a := newApp(t, testConfig(), providers, r)

	if err := a.Run(context.Background()); err == nil {
		t.Fatal("Run should fail when connect fails")
	}
}

// ─── Transcripts ─────────────────────────────────────────────────────────────

func TestRun_PrintsTranscripts(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	a := newApp(t, testConfig(), providers, r)
	cancel, _ := runAsync(t, a)
	defer cancel()

	sess := r.live.Sessions()[0]
	sess.Push(live.Message{Kind: live.MessageInputTranscript, Text: "what is seven times eight"})
	sess.Push(live.Message{Kind: live.MessageOutputTranscript, Text: "Seven times eight is **fifty-six**"})

	eventually(t, "transcripts on the console", func() bool {
		out := r.log.String()
		return strings.Contains(out, "You:") && strings.Contains(out, "fifty-six")
	})
	if strings.Contains(r.log.String(), "**") {
		t.Error("markers should not reach the console")
	}
}

// ─── Say ─────────────────────────────────────────────────────────────────────

func TestSay_PlaysThroughSpeaker(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	buf := audio.NewBuffer(audio.Format{SampleRate: 24000, Channels: 1}, 2400)
	r.tts.Result = tts.Speech{Audio: pcm.EncodeTransport(pcm.FromSamples(buf)), SampleRate: 24000}
	a := newApp(t, testConfig(), providers, r)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
				r.out.Pull(240)
			}
		}
	}()

	if err := a.Say(context.Background(), "The **cat** sat."); err != nil {
		t.Fatalf("Say: %v", err)
	}
	calls := r.tts.Calls()
	if len(calls) != 1 || calls[0].Text != "The cat sat." || calls[0].Voice != config.DefaultVoice {
		t.Errorf("Synthesize calls = %+v", calls)
	}
	if got := a.Player().Stats().Completed; got != 1 {
		t.Errorf("Completed = %d, want 1", got)
	}
}

// ─── Config reload ───────────────────────────────────────────────────────────

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	var lv slog.LevelVar
	old := testConfig()
	a := newApp(t, old, providers, r, app.WithLogLevel(&lv))

	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Live.Voice = "Puck"
	updated.Highlight.DefaultDelay = 250 * time.Millisecond
	updated.Audio.FrameSize = 1024 // restart only
	a.ApplyConfig(old, updated)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}

	cancel, _ := runAsync(t, a)
	defer cancel()
	if got := r.live.Calls()[0].Cfg.Voice; got != "Puck" {
		t.Errorf("next session voice = %q, want Puck", got)
	}
}

// ─── Health ──────────────────────────────────────────────────────────────────

func TestCheckers(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	extra := health.Flag("live", func() bool { return false }, "breaker open")
	a := newApp(t, testConfig(), providers, r, app.WithReadiness(extra))

	results := map[string]error{}
	for _, c := range a.Checkers() {
		results[c.Name] = c.Check(context.Background())
	}
	if err, ok := results["playback"]; !ok || err != nil {
		t.Errorf("playback check = %v (present %v)", err, ok)
	}
	if err, ok := results["conversation"]; !ok || err != nil {
		t.Errorf("conversation check = %v (present %v)", err, ok)
	}
	if err := results["live"]; err == nil {
		t.Error("injected check should fail")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for _, c := range a.Checkers() {
		if c.Name == "playback" && c.Check(context.Background()) == nil {
			t.Error("playback check should fail after shutdown")
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

func TestShutdown_ClosesEverything(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	a := newApp(t, testConfig(), providers, r)
	_, _ = runAsync(t, a)
	sess := r.live.Sessions()[0]

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if sess.Closes() != 1 {
		t.Errorf("live session closed %d times, want 1", sess.Closes())
	}
	if r.in.CallCountClose != 1 {
		t.Errorf("input closed %d times, want 1", r.in.CallCountClose)
	}
	if r.out.CallCountClose != 1 {
		t.Errorf("output closed %d times, want 1", r.out.CallCountClose)
	}

	// Idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if r.out.CallCountClose != 1 {
		t.Errorf("output closed %d times after second Shutdown, want 1", r.out.CallCountClose)
	}
}

func TestShutdown_ExpiredDeadline(t *testing.T) {
	t.Parallel()

	r, providers := testProviders()
	a, err := app.New(context.Background(), testConfig(), providers)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown error = %v, want context.Canceled", err)
	}
	if r.out.CallCountClose != 0 {
		t.Error("closers should be skipped once the deadline passed")
	}
}
