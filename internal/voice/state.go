// Package voice runs the real-time conversation: it streams microphone
// audio to a live provider in fixed-size frames and schedules the spoken
// replies gaplessly on the shared playback scheduler.
//
// A [Manager] owns at most one [Session] at a time. A session moves through
// Idle, Opening, Active and Closing, and ends either back in Idle after a
// stop or in Failed with a single human-readable reason.
package voice

import "errors"

// State is the lifecycle state of a [Session].
type State int

const (
	// StateIdle means no capture is running and no remote session is open.
	StateIdle State = iota

	// StateOpening means the capture device and the remote session are
	// being opened.
	StateOpening

	// StateActive means audio is streaming in both directions.
	StateActive

	// StateClosing means teardown is in progress.
	StateClosing

	// StateFailed means the session ended because of an error. See
	// [Session.Failure].
	StateFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrCaptureDeviceDenied means the user or the OS refused microphone
	// access.
	ErrCaptureDeviceDenied = errors.New("voice: microphone access denied")

	// ErrCaptureDeviceUnavailable means the microphone could not be opened
	// for any other reason.
	ErrCaptureDeviceUnavailable = errors.New("voice: microphone unavailable")

	// ErrStopped is returned by Start when the session was stopped while
	// opening.
	ErrStopped = errors.New("voice: session stopped while opening")

	// ErrRemoteClosed is the failure reported when the live provider ends
	// the session without an error.
	ErrRemoteClosed = errors.New("voice: live session closed by remote")
)
