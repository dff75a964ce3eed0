package voice

import (
	"github.com/MrWong99/tutorvoice/internal/observe"
	"github.com/MrWong99/tutorvoice/pkg/provider/live"
)

const (
	// DefaultFrameSize is the number of capture samples per outbound frame.
	DefaultFrameSize = 4096

	// DefaultQueueSize is the capacity of the outbound frame queue.
	DefaultQueueSize = 8
)

type options struct {
	frameSize    int
	queueSize    int
	instructions string
	voice        string
	replyRate    int
	metrics      *observe.Metrics
	onState      func(id string, from, to State)
	onMessage    func(live.Message)
	onStop       []func()
}

func defaultOptions() options {
	return options{
		frameSize: DefaultFrameSize,
		queueSize: DefaultQueueSize,
		replyRate: live.DefaultOutputSampleRate,
	}
}

// Option configures a [Manager] and the sessions it creates.
type Option func(*options)

// WithFrameSize sets the number of capture samples per outbound frame.
// Values below 1 are ignored.
func WithFrameSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.frameSize = n
		}
	}
}

// WithQueueSize sets how many encoded frames may wait for the sender before
// new frames are dropped. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithSystemInstruction sets the instruction text sent when the live session
// opens.
func WithSystemInstruction(text string) Option {
	return func(o *options) { o.instructions = text }
}

// WithVoice selects the provider's prebuilt reply voice.
func WithVoice(name string) Option {
	return func(o *options) { o.voice = name }
}

// WithReplySampleRate sets the rate assumed for reply audio whose MIME type
// does not carry one.
func WithReplySampleRate(rate int) Option {
	return func(o *options) {
		if rate > 0 {
			o.replyRate = rate
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithOnState registers fn to observe every state change. fn runs outside
// the session lock and must not call back into the session synchronously.
func WithOnState(fn func(id string, from, to State)) Option {
	return func(o *options) { o.onState = fn }
}

// WithOnMessage registers fn to observe every non-audio message from the
// live provider, such as transcripts and turn boundaries.
func WithOnMessage(fn func(live.Message)) Option {
	return func(o *options) { o.onMessage = fn }
}

// WithOnStop registers fn to run during teardown, after reply playback has
// been cancelled. Used to stop dependent timers such as word highlighting.
func WithOnStop(fn func()) Option {
	return func(o *options) { o.onStop = append(o.onStop, fn) }
}
