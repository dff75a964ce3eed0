//go:build !portaudio

package device_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/tutorvoice/pkg/audio"
	"github.com/MrWong99/tutorvoice/pkg/audio/device"
)

func TestPortAudio_NotCompiledIn(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, Channels: 1}
	if _, err := device.NewOutput(device.BackendPortAudio, f); !errors.Is(err, device.ErrUnsupported) {
		t.Errorf("NewOutput(portaudio) error = %v, want ErrUnsupported", err)
	}
	if _, err := device.NewInput(device.BackendPortAudio, f); !errors.Is(err, device.ErrUnsupported) {
		t.Errorf("NewInput(portaudio) error = %v, want ErrUnsupported", err)
	}
}
