package speech_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/tutorvoice/internal/observe"
	"github.com/MrWong99/tutorvoice/internal/speech"
	"github.com/MrWong99/tutorvoice/pkg/audio"
	"github.com/MrWong99/tutorvoice/pkg/audio/mock"
	"github.com/MrWong99/tutorvoice/pkg/audio/pcm"
	"github.com/MrWong99/tutorvoice/pkg/audio/scheduler"
	"github.com/MrWong99/tutorvoice/pkg/highlight"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/tutorvoice/pkg/provider/tts/mock"
)

const rate = 24000

// utteranceAudio returns speech of n silent frames at the test rate.
func utteranceAudio(n int) tts.Speech {
	buf := audio.NewBuffer(audio.Format{SampleRate: rate, Channels: 1}, n)
	return tts.Speech{Audio: pcm.EncodeTransport(pcm.FromSamples(buf)), SampleRate: rate}
}

type fixture struct {
	out     *mock.Output
	player  *scheduler.Scheduler
	tts     *ttsmock.Provider
	speaker *speech.Speaker

	mu      sync.Mutex
	indices []int
}

func newFixture(t *testing.T, result tts.Speech) *fixture {
	t.Helper()

	f := &fixture{
		out: &mock.Output{Fmt: audio.Format{SampleRate: rate, Channels: 1}},
		tts: &ttsmock.Provider{Result: result},
	}
	f.player = scheduler.New(f.out)
	if err := f.player.Start(); err != nil {
		t.Fatalf("scheduler Start: %v", err)
	}
	t.Cleanup(func() { _ = f.player.Close() })

	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f.speaker = speech.New(f.tts, f.player,
		speech.WithVoice("Kore"),
		speech.WithMetrics(metrics),
		speech.WithOnHighlight(func(_ highlight.Timeline, i int) {
			f.mu.Lock()
			f.indices = append(f.indices, i)
			f.mu.Unlock()
		}),
	)
	return f
}

func (f *fixture) highlights() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.indices...)
}

// speakAsync runs Speak in the background and returns its result channel.
func (f *fixture) speakAsync(ctx context.Context, text string) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- f.speaker.Speak(ctx, text) }()
	return errc
}

// render pulls frames from the device until stop is closed.
func (f *fixture) render(stop <-chan struct{}) {
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			f.out.Pull(240)
			time.Sleep(time.Millisecond)
		}
	}()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func result(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not return")
		return nil
	}
}

func TestSpeak_PlaysToCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, utteranceAudio(4800))
	stop := make(chan struct{})
	defer close(stop)
	f.render(stop)

	if err := f.speaker.Speak(context.Background(), "A **noun** names a thing"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	calls := f.tts.Calls()
	if len(calls) != 1 {
		t.Fatalf("Synthesize called %d times, want 1", len(calls))
	}
	if calls[0].Text != "A noun names a thing" {
		t.Errorf("synthesised text = %q, want markers stripped", calls[0].Text)
	}
	if calls[0].Voice != "Kore" {
		t.Errorf("voice = %q, want Kore", calls[0].Voice)
	}

	got := f.highlights()
	if len(got) < 2 || got[0] != 0 {
		t.Fatalf("highlights = %v, want to start at 0", got)
	}
	if last := got[len(got)-1]; last != highlight.NoActive {
		t.Errorf("last highlight = %d, want NoActive after playback", last)
	}
	for i := 1; i < len(got)-1; i++ {
		if got[i] != got[i-1]+1 {
			t.Errorf("highlights = %v, want consecutive indices", got)
			break
		}
	}
	if f.speaker.Speaking() {
		t.Error("Speaking after Speak returned")
	}
	if st := f.player.Stats(); st.Completed != 1 {
		t.Errorf("scheduler completed %d voices, want 1", st.Completed)
	}
}

func TestSpeak_BusyWhilePlaying(t *testing.T) {
	t.Parallel()

	f := newFixture(t, utteranceAudio(2400))
	errc := f.speakAsync(context.Background(), "first")
	waitFor(t, "voice scheduled", func() bool { return f.player.Live() == 1 })

	if err := f.speaker.Speak(context.Background(), "second"); !errors.Is(err, speech.ErrBusy) {
		t.Fatalf("concurrent Speak = %v, want ErrBusy", err)
	}
	if n := len(f.tts.Calls()); n != 1 {
		t.Errorf("Synthesize called %d times, refused Speak must not synthesise", n)
	}

	stop := make(chan struct{})
	defer close(stop)
	f.render(stop)
	if err := result(t, errc); err != nil {
		t.Fatalf("first Speak: %v", err)
	}

	// Once the first utterance ended a new one is accepted.
	if err := f.speaker.Speak(context.Background(), "third"); err != nil {
		t.Errorf("Speak after completion: %v", err)
	}
}

func TestSpeak_BusyWhileSynthesising(t *testing.T) {
	t.Parallel()

	f := newFixture(t, utteranceAudio(240))
	f.tts.Block = make(chan struct{})
	errc := f.speakAsync(context.Background(), "first")
	waitFor(t, "synthesis started", func() bool { return len(f.tts.Calls()) == 1 })

	if err := f.speaker.Speak(context.Background(), "second"); !errors.Is(err, speech.ErrBusy) {
		t.Errorf("Speak during synthesis = %v, want ErrBusy", err)
	}
	f.speaker.Stop()
	if err := result(t, errc); err != nil {
		t.Errorf("stopped Speak = %v, want nil", err)
	}
}

func TestStop_CancelsPlayback(t *testing.T) {
	t.Parallel()

	f := newFixture(t, utteranceAudio(24000))
	errc := f.speakAsync(context.Background(), "one two three")
	waitFor(t, "voice scheduled", func() bool { return f.player.Live() == 1 })

	if !f.speaker.Stop() {
		t.Fatal("Stop reported nothing playing")
	}
	if err := result(t, errc); err != nil {
		t.Errorf("Speak after Stop = %v, want nil", err)
	}
	if f.player.Live() != 0 {
		t.Errorf("%d voices still live", f.player.Live())
	}
	if got := f.highlights(); got[len(got)-1] != highlight.NoActive {
		t.Errorf("highlights = %v, want reset to NoActive", got)
	}
	if f.speaker.Stop() {
		t.Error("second Stop reported an utterance")
	}
}

func TestToggle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, utteranceAudio(24000))
	errc := make(chan error, 1)
	go func() { errc <- f.speaker.Toggle(context.Background(), "press play") }()
	waitFor(t, "voice scheduled", func() bool { return f.player.Live() == 1 })

	if err := f.speaker.Toggle(context.Background(), "press play"); err != nil {
		t.Fatalf("Toggle while playing: %v", err)
	}
	if err := result(t, errc); err != nil {
		t.Errorf("first Toggle = %v, want nil", err)
	}
	if f.speaker.Speaking() {
		t.Error("Toggle while playing should stop")
	}
	if n := len(f.tts.Calls()); n != 1 {
		t.Errorf("Synthesize called %d times, want 1", n)
	}
}

func TestSpeak_EmptyAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t, tts.Speech{})
	if err := f.speaker.Speak(context.Background(), "silence"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if st := f.player.Stats(); st.Enqueued != 0 {
		t.Errorf("enqueued %d voices for empty audio", st.Enqueued)
	}
	if got := f.highlights(); len(got) != 0 {
		t.Errorf("highlights = %v, want none", got)
	}
}

func TestSpeak_ProviderError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, tts.Speech{})
	f.tts.Err = errors.New("quota exceeded")

	err := f.speaker.Speak(context.Background(), "hello")
	if err == nil || !errors.Is(err, f.tts.Err) {
		t.Fatalf("Speak = %v, want the provider error", err)
	}
	if f.speaker.Speaking() {
		t.Error("speaker still busy after an error")
	}
}

func TestSpeak_MalformedAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t, tts.Speech{Audio: pcm.EncodeTransport([]byte{1, 2, 3}), SampleRate: rate})
	if err := f.speaker.Speak(context.Background(), "hello"); !errors.Is(err, pcm.ErrInvalidFrameLength) {
		t.Fatalf("Speak = %v, want ErrInvalidFrameLength", err)
	}
}

func TestSpeak_ContextCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, utteranceAudio(24000))
	ctx, cancel := context.WithCancel(context.Background())
	errc := f.speakAsync(ctx, "long explanation")
	waitFor(t, "voice scheduled", func() bool { return f.player.Live() == 1 })

	cancel()
	if err := result(t, errc); !errors.Is(err, context.Canceled) {
		t.Fatalf("Speak = %v, want context.Canceled", err)
	}
	if f.player.Live() != 0 {
		t.Error("voice not cancelled with the context")
	}
}

func TestSpeak_CancelledOnScheduler(t *testing.T) {
	t.Parallel()

	f := newFixture(t, utteranceAudio(24000))
	errc := f.speakAsync(context.Background(), "interrupted by the student")
	waitFor(t, "voice scheduled", func() bool { return f.player.Live() == 1 })

	f.player.CancelAll()
	if err := result(t, errc); !errors.Is(err, scheduler.ErrCancelled) {
		t.Fatalf("Speak = %v, want ErrCancelled", err)
	}
}
