package app

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/tutorvoice/pkg/highlight"
)

// highlighter receives highlight index updates for a timeline.
type highlighter func(tl highlight.Timeline, index int)

// captions follows the tutor's output transcript word by word. Each
// transcript fragment gets its own [highlight.Driver] running at the
// configured per-word delay; a new fragment, an interruption or the end of
// the session stops the previous one.
type captions struct {
	show  highlighter
	delay atomic.Int64 // time.Duration

	mu     sync.Mutex
	driver *highlight.Driver
}

func newCaptions(show highlighter, delay time.Duration) *captions {
	c := &captions{show: show}
	c.setDelay(delay)
	return c
}

func (c *captions) setDelay(d time.Duration) { c.delay.Store(int64(d)) }

func (c *captions) currentDelay() time.Duration { return time.Duration(c.delay.Load()) }

// follow starts highlighting text, replacing any fragment still running.
func (c *captions) follow(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	tl := highlight.NewWithDelay(text, 0, c.currentDelay())
	d := highlight.NewDriver(tl, func(i int) { c.show(tl, i) })

	c.mu.Lock()
	prev := c.driver
	c.driver = d
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	d.Start(context.Background())
}

// stop ends the running fragment, if any.
func (c *captions) stop() {
	c.mu.Lock()
	d := c.driver
	c.driver = nil
	c.mu.Unlock()

	if d != nil {
		d.Stop()
	}
}

// active reports whether a fragment is being highlighted.
func (c *captions) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver != nil
}
