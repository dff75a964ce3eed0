//go:build portaudio

package device

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/tutorvoice/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Output = (*PortAudioOutput)(nil)
	_ audio.Input  = (*PortAudioInput)(nil)
)

// PortAudioOutput is a playback device using a PortAudio callback stream.
type PortAudioOutput struct {
	format audio.Format

	mu     sync.Mutex
	stream *portaudio.Stream
}

func newPortAudioOutput(f audio.Format) (audio.Output, error) {
	return &PortAudioOutput{format: f}, nil
}

// Format implements [audio.Output].
func (o *PortAudioOutput) Format() audio.Format { return o.format }

// Start implements [audio.Output].
func (o *PortAudioOutput) Start(render audio.RenderFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return classify("initialize portaudio", err)
	}
	stream, err := portaudio.OpenDefaultStream(0, o.format.Channels, float64(o.format.SampleRate), 0,
		func(out []float32) { render(out) })
	if err != nil {
		_ = portaudio.Terminate()
		return classify("open playback stream", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return classify("start playback stream", err)
	}
	o.stream = stream
	return nil
}

// Close implements [audio.Output].
func (o *PortAudioOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stream == nil {
		return nil
	}
	err := closeStream(o.stream)
	o.stream = nil
	return err
}

// PortAudioInput is a capture device using a PortAudio callback stream.
type PortAudioInput struct {
	format audio.Format

	mu     sync.Mutex
	stream *portaudio.Stream
}

func newPortAudioInput(f audio.Format) (audio.Input, error) {
	return &PortAudioInput{format: f}, nil
}

// Format implements [audio.Input].
func (in *PortAudioInput) Format() audio.Format { return in.format }

// Start implements [audio.Input].
func (in *PortAudioInput) Start(onSamples func(audio.Buffer)) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return classify("initialize portaudio", err)
	}
	f := in.format
	stream, err := portaudio.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), 0,
		func(samples []float32) {
			onSamples(audio.Deinterleave(samples, f))
		})
	if err != nil {
		_ = portaudio.Terminate()
		return classify("open capture stream", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return classify("start capture stream", err)
	}
	in.stream = stream
	return nil
}

// Stop implements [audio.Input]. The stream is closed so that a later Start
// reopens it with a fresh callback.
func (in *PortAudioInput) Stop() error {
	return in.Close()
}

// Close implements [audio.Input].
func (in *PortAudioInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stream == nil {
		return nil
	}
	err := closeStream(in.stream)
	in.stream = nil
	return err
}

func closeStream(s *portaudio.Stream) error {
	var firstErr error
	if err := s.Stop(); err != nil {
		firstErr = fmt.Errorf("device: stop stream: %w", err)
	}
	if err := s.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("device: close stream: %w", err)
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("device: terminate portaudio: %w", err)
	}
	return firstErr
}
