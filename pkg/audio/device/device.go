// Package device implements [audio.Output] and [audio.Input] on top of real
// audio backends.
//
// Supported backends:
//
//   - "malgo": miniaudio through github.com/gen2brain/malgo (playback and capture).
//   - "oto": github.com/ebitengine/oto/v3 (playback only).
//   - "portaudio": github.com/gordonklaus/portaudio (playback and capture),
//     only available when built with -tags portaudio.
//
// All backends exchange signed 16-bit little-endian PCM with the hardware and
// convert to and from normalised float samples at the boundary.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/tutorvoice/pkg/audio"
)

// Backend names accepted by [NewOutput] and [NewInput].
const (
	BackendMalgo     = "malgo"
	BackendOto       = "oto"
	BackendPortAudio = "portaudio"
)

// ErrUnsupported is returned for backends that are unknown or not compiled in.
var ErrUnsupported = errors.New("device: unsupported backend")

// NewOutput returns a playback device for backend rendering in format f.
// The device is not opened until Start is called.
func NewOutput(backend string, f audio.Format) (audio.Output, error) {
	if err := validFormat(f); err != nil {
		return nil, err
	}
	switch backend {
	case BackendMalgo, "":
		return NewMalgoOutput(f), nil
	case BackendOto:
		return NewOtoOutput(f), nil
	case BackendPortAudio:
		return newPortAudioOutput(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, backend)
	}
}

// NewInput returns a capture device for backend recording in format f.
func NewInput(backend string, f audio.Format) (audio.Input, error) {
	if err := validFormat(f); err != nil {
		return nil, err
	}
	switch backend {
	case BackendMalgo, "":
		return NewMalgoInput(f), nil
	case BackendPortAudio:
		return newPortAudioInput(f)
	case BackendOto:
		return nil, fmt.Errorf("%w: %q has no capture support", ErrUnsupported, backend)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, backend)
	}
}

func validFormat(f audio.Format) error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("device: invalid format %s", f)
	}
	return nil
}

// classify wraps err with [audio.ErrPermissionDenied] when the backend message
// indicates the OS refused access. Backends report this as free text.
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"denied", "permission", "not permitted", "unauthorized"} {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("device: %s: %w: %v", op, audio.ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("device: %s: %w", op, err)
}
