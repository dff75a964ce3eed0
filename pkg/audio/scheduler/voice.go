package scheduler

import (
	"time"

	"github.com/MrWong99/tutorvoice/pkg/audio"
)

// Voice is a handle to one scheduled buffer. It leaves the scheduler's live
// set exactly once: either when its last frame has been rendered or when it
// is cancelled.
type Voice struct {
	id    uint64
	start int64 // device frame at which playback begins
	buf   audio.Buffer
	rate  int

	// Guarded by the owning Scheduler's mutex.
	removed bool
	err     error

	done chan struct{}
}

// ID returns the scheduler-unique sequence number of the voice.
func (v *Voice) ID() uint64 { return v.id }

// Start returns the device-clock time at which the voice begins.
func (v *Voice) Start() time.Duration { return framesToDuration(v.start, v.rate) }

// Duration returns the playback length of the voice.
func (v *Voice) Duration() time.Duration { return v.buf.Duration() }

// End returns the device-clock time at which the voice finishes.
func (v *Voice) End() time.Duration {
	return framesToDuration(v.start+int64(v.buf.Frames()), v.rate)
}

// Done returns a channel that is closed when the voice completes or is
// cancelled.
func (v *Voice) Done() <-chan struct{} { return v.done }

// Err blocks until the voice is done, then returns nil after natural
// completion or [ErrCancelled] after cancellation.
func (v *Voice) Err() error {
	<-v.done
	return v.err
}

func framesToDuration(frames int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
