package highlight

import (
	"context"
	"sync"
	"time"
)

// Driver advances the active segment index on a repeating timer at the
// timeline's per-word delay. It is the live counterpart of [Timeline]: the
// timeline says when each word should be active, the driver makes it so.
//
// A Driver is single use. All methods are safe for concurrent use.
type Driver struct {
	tl      Timeline
	onIndex func(int)

	mu      sync.Mutex
	index   int
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDriver creates a driver for tl. onIndex, if non-nil, is called with every
// index change including the final [NoActive] reset. It is called from the
// driver's goroutine and from Start/Stop, never concurrently with itself, and
// must not call back into the driver.
func NewDriver(tl Timeline, onIndex func(int)) *Driver {
	return &Driver{
		tl:      tl,
		onIndex: onIndex,
		index:   NoActive,
		done:    make(chan struct{}),
	}
}

// Start activates segment 0 and begins advancing. The driver stops on its
// own once the last segment is active; the last segment then stays active
// until [Driver.Stop]. Cancelling ctx before that resets the index to
// [NoActive]. Starting an empty timeline finishes immediately.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started || d.stopped {
		d.mu.Unlock()
		return
	}
	d.started = true
	if d.tl.Len() == 0 {
		close(d.done)
		d.mu.Unlock()
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.setLocked(0)
	d.mu.Unlock()

	go d.run(ctx)
}

func (d *Driver) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.tl.Delay())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.reset()
			return
		case <-ticker.C:
			d.mu.Lock()
			if d.stopped {
				d.mu.Unlock()
				return
			}
			next := d.index + 1
			if next >= d.tl.Len() {
				d.mu.Unlock()
				return
			}
			d.setLocked(next)
			d.mu.Unlock()
		}
	}
}

// Stop halts the timer and resets the index to [NoActive]. Stop is
// idempotent and waits for the timer goroutine to exit.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-d.done
	} else {
		close(d.done)
	}
	d.reset()
}

// Index returns the currently active segment, or [NoActive].
func (d *Driver) Index() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index
}

// Done is closed when the driver reaches the last segment or is stopped.
func (d *Driver) Done() <-chan struct{} { return d.done }

func (d *Driver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index != NoActive {
		d.setLocked(NoActive)
	}
}

func (d *Driver) setLocked(i int) {
	d.index = i
	if d.onIndex != nil {
		d.onIndex(i)
	}
}
