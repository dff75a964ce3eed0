package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/tutorvoice/pkg/audio/pcm"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts/openai"
)

type speechRequest struct {
	Path           string
	Auth           string
	Input          string `json:"input"`
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
	Instructions   string `json:"instructions"`
}

// startServer runs a fake /audio/speech endpoint that records the request
// and answers with status and body.
func startServer(t *testing.T, status int, body []byte) (*httptest.Server, <-chan speechRequest) {
	t.Helper()
	reqCh := make(chan speechRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sr speechRequest
		_ = json.NewDecoder(r.Body).Decode(&sr)
		sr.Path = r.URL.Path
		sr.Auth = r.Header.Get("Authorization")
		reqCh <- sr
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"bad voice","type":"invalid_request_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, reqCh
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_RejectsUnknownDefaultVoice(t *testing.T) {
	t.Parallel()

	if _, err := openai.New("key", openai.WithDefaultVoice("Kore")); err == nil {
		t.Fatal("expected error for a voice the endpoint does not offer")
	}
}

func TestSynthesize_ReturnsTransportEncodedPCM(t *testing.T) {
	t.Parallel()

	raw := []byte{0x01, 0x00, 0xff, 0x7f}
	srv, reqCh := startServer(t, http.StatusOK, raw)
	p, err := openai.New("test-key",
		openai.WithBaseURL(srv.URL),
		openai.WithInstructions("Speak like a patient teacher."),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	speech, err := p.Synthesize(context.Background(), "The cat sat.", "nova")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if speech.Audio != pcm.EncodeTransport(raw) {
		t.Errorf("Audio = %q, want %q", speech.Audio, pcm.EncodeTransport(raw))
	}
	if speech.SampleRate != openai.SampleRate {
		t.Errorf("SampleRate = %d, want %d", speech.SampleRate, openai.SampleRate)
	}

	req := <-reqCh
	if req.Path != "/audio/speech" {
		t.Errorf("path = %q, want /audio/speech", req.Path)
	}
	if req.Auth != "Bearer test-key" {
		t.Errorf("Authorization = %q", req.Auth)
	}
	if req.Input != "The cat sat." || req.Voice != "nova" || req.Model != openai.DefaultModel {
		t.Errorf("request = %+v", req)
	}
	if req.ResponseFormat != "pcm" {
		t.Errorf("response_format = %q, want pcm", req.ResponseFormat)
	}
	if req.Instructions != "Speak like a patient teacher." {
		t.Errorf("instructions = %q", req.Instructions)
	}
}

func TestSynthesize_UnknownVoiceUsesDefault(t *testing.T) {
	t.Parallel()

	srv, reqCh := startServer(t, http.StatusOK, []byte{0, 0})
	p, err := openai.New("k", openai.WithBaseURL(srv.URL), openai.WithDefaultVoice("sage"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", "Kore"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if req := <-reqCh; req.Voice != "sage" {
		t.Errorf("voice = %q, want sage", req.Voice)
	}
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t, http.StatusOK, nil)
	p, _ := openai.New("k", openai.WithBaseURL(srv.URL))

	speech, err := p.Synthesize(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !speech.Empty() {
		t.Errorf("speech = %+v, want empty", speech)
	}
}

func TestSynthesize_OddByteCount(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t, http.StatusOK, []byte{1, 2, 3})
	p, _ := openai.New("k", openai.WithBaseURL(srv.URL))

	if _, err := p.Synthesize(context.Background(), "hi", ""); !errors.Is(err, pcm.ErrInvalidFrameLength) {
		t.Errorf("err = %v, want ErrInvalidFrameLength", err)
	}
}

func TestSynthesize_HTTPError(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t, http.StatusBadRequest, nil)
	p, _ := openai.New("k", openai.WithBaseURL(srv.URL))

	if _, err := p.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Fatal("expected error for a 400 response")
	}
}
