package highlight

import "time"

// DefaultDelay is the per-word delay used when the utterance duration is not
// known yet.
const DefaultDelay = 400 * time.Millisecond

// NoActive is the index reported when no segment is highlighted.
const NoActive = -1

// Timeline is the reveal schedule for one utterance. It is read-only after
// construction.
type Timeline struct {
	segments []Segment
	delay    time.Duration
	total    time.Duration
}

// New builds the timeline for text. A positive duration is divided evenly
// across the words; zero or negative durations fall back to [DefaultDelay].
func New(text string, duration time.Duration) Timeline {
	return FromSegments(Parse(text), duration)
}

// NewWithDelay is like [New] but uses fallback instead of [DefaultDelay]
// when duration is unknown. A non-positive fallback means DefaultDelay.
func NewWithDelay(text string, duration, fallback time.Duration) Timeline {
	return build(Parse(text), duration, fallback)
}

// FromSegments builds a timeline for already parsed segments.
func FromSegments(segs []Segment, duration time.Duration) Timeline {
	return build(segs, duration, DefaultDelay)
}

func build(segs []Segment, duration, fallback time.Duration) Timeline {
	if fallback <= 0 {
		fallback = DefaultDelay
	}
	n := len(segs)
	if n == 0 {
		return Timeline{delay: fallback}
	}
	tl := Timeline{segments: segs, delay: fallback}
	if duration > 0 {
		tl.delay = duration / time.Duration(n)
	}
	if tl.delay <= 0 {
		// A duration shorter than one nanosecond per word.
		tl.delay = fallback
	}
	tl.total = tl.delay * time.Duration(n)
	if duration > 0 {
		tl.total = duration
	}
	return tl
}

// Len returns the number of segments.
func (tl Timeline) Len() int { return len(tl.segments) }

// Segments returns the parsed segments. Callers must not modify the slice.
func (tl Timeline) Segments() []Segment { return tl.segments }

// Segment returns segment i.
func (tl Timeline) Segment(i int) Segment { return tl.segments[i] }

// Delay returns the per-word delay.
func (tl Timeline) Delay() time.Duration { return tl.delay }

// Total returns the playback end: the known duration, or Len()*Delay() when
// the duration was unknown.
func (tl Timeline) Total() time.Duration { return tl.total }

// Start returns the elapsed time at which segment i becomes active.
func (tl Timeline) Start(i int) time.Duration {
	return time.Duration(i) * tl.delay
}

// Interval returns the half-open interval [start, end) during which segment
// i is active. The last segment stays active until playback ends.
func (tl Timeline) Interval(i int) (start, end time.Duration) {
	start = tl.Start(i)
	if i == len(tl.segments)-1 {
		return start, max(tl.total, start)
	}
	return start, tl.Start(i + 1)
}

// ActiveAt returns the index of the segment active after elapsed playback
// time, or [NoActive] before playback starts, after it ends, or for an empty
// timeline.
func (tl Timeline) ActiveAt(elapsed time.Duration) int {
	n := len(tl.segments)
	if n == 0 || elapsed < 0 {
		return NoActive
	}
	i := int(elapsed / tl.delay)
	if i >= n-1 {
		if _, end := tl.Interval(n - 1); elapsed >= end {
			return NoActive
		}
		return n - 1
	}
	return i
}
