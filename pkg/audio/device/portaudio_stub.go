//go:build !portaudio

package device

import (
	"fmt"

	"github.com/MrWong99/tutorvoice/pkg/audio"
)

func newPortAudioOutput(audio.Format) (audio.Output, error) {
	return nil, fmt.Errorf("%w: portaudio (build with -tags portaudio)", ErrUnsupported)
}

func newPortAudioInput(audio.Format) (audio.Input, error) {
	return nil, fmt.Errorf("%w: portaudio (build with -tags portaudio)", ErrUnsupported)
}
