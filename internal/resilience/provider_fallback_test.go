package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/tutorvoice/pkg/provider/live"
	livemock "github.com/MrWong99/tutorvoice/pkg/provider/live/mock"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/tutorvoice/pkg/provider/tts/mock"
)

func TestTTSFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{Result: tts.Speech{Audio: "AAA=", SampleRate: 24000}}
	secondary := &ttsmock.Provider{Result: tts.Speech{Audio: "BBB=", SampleRate: 24000}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	speech, err := fb.Synthesize(context.Background(), "hello", "Kore")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if speech.Audio != "AAA=" {
		t.Fatalf("audio = %q, want AAA=", speech.Audio)
	}
	if calls := primary.Calls(); len(calls) != 1 || calls[0].Text != "hello" || calls[0].Voice != "Kore" {
		t.Fatalf("primary calls = %+v", calls)
	}
	if len(secondary.Calls()) != 0 {
		t.Fatal("secondary should not be called")
	}
}

func TestTTSFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{Err: errors.New("primary down")}
	secondary := &ttsmock.Provider{Result: tts.Speech{Audio: "BBB="}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	speech, err := fb.Synthesize(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if speech.Audio != "BBB=" {
		t.Fatalf("audio = %q, want BBB=", speech.Audio)
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	t.Parallel()
	fb := NewTTSFallback(&ttsmock.Provider{Err: errTest}, "only", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})

	if _, err := fb.Synthesize(context.Background(), "hi", ""); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if fb.Healthy() {
		t.Fatal("fallback should report unhealthy after its only breaker opened")
	}
}

func TestLiveFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &livemock.Provider{ConnectErr: errors.New("handshake refused")}
	sess := livemock.NewSession(1)
	secondary := &livemock.Provider{Session: sess}

	fb := NewLiveFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Connect(context.Background(), live.SessionConfig{Voice: "Kore"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != live.Session(sess) {
		t.Fatal("expected the secondary's session")
	}
	if calls := secondary.Calls(); len(calls) != 1 || calls[0].Cfg.Voice != "Kore" {
		t.Fatalf("secondary calls = %+v", calls)
	}
	if !fb.Healthy() {
		t.Fatal("one failure must not open the default breaker")
	}
}
