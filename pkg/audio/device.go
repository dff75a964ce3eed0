// Package audio defines the sample types and device abstractions shared by
// the voice pipeline.
//
// The two device abstractions are:
//
//   - [Output]: a pull-model playback device. The device calls a
//     [RenderFunc] from its own audio thread whenever it needs more samples.
//   - [Input]: a push-model capture device delivering [Buffer] values of
//     whatever period size the backend chooses.
//
// Implementations live in the audio/device package (miniaudio, oto and, behind
// the portaudio build tag, PortAudio). The interfaces are intentionally narrow
// so the scheduler and streaming session stay agnostic of the backend.
package audio

import "errors"

// ErrPermissionDenied is wrapped by [Input] implementations when the platform
// refuses access to the capture device.
var ErrPermissionDenied = errors.New("audio: device permission denied")

// RenderFunc fills out with interleaved samples in the device's [Format].
// It runs on the device's audio thread and must not block.
type RenderFunc func(out []float32)

// Output is a playback device.
//
// Implementations must be safe for concurrent use. Start is called at most
// once; Close releases the device and stops further render calls.
type Output interface {
	// Start opens the device and begins calling render. An error means the
	// device could not be opened; callers must surface it rather than retry.
	Start(render RenderFunc) error

	// Format returns the sample rate and channel count the device renders at.
	Format() Format

	// Close stops playback and releases the device. Close is idempotent.
	Close() error
}

// Input is a capture device.
//
// onSamples is invoked from the device's capture thread and must not block.
// Implementations must be safe for concurrent use.
type Input interface {
	// Start opens the device (requesting permission where the platform
	// requires it) and begins delivering samples to onSamples.
	Start(onSamples func(Buffer)) error

	// Stop halts delivery. The device can be started again afterwards.
	Stop() error

	// Format returns the capture sample rate and channel count.
	Format() Format

	// Close stops capture and releases the device. Close is idempotent.
	Close() error
}
