package voice

import (
	"sync"

	"github.com/MrWong99/tutorvoice/pkg/audio"
)

// chunker regroups capture callbacks of arbitrary size into fixed frames of
// size mono samples at the target rate. Leftover samples carry over to the
// next push.
type chunker struct {
	size int
	conv *audio.Converter

	mu      sync.Mutex
	pending []float32
}

func newChunker(size int, rate int) *chunker {
	return &chunker{
		size:    size,
		conv:    &audio.Converter{Target: audio.Format{SampleRate: rate, Channels: 1}},
		pending: make([]float32, 0, size*2),
	}
}

// push appends buf and calls emit once per completed frame, in order. emit
// receives a slice it may keep and runs with the chunker locked, so it must
// not block.
func (c *chunker) push(buf audio.Buffer, emit func(frame []float32)) {
	mono := c.conv.Convert(buf)
	if mono.Frames() == 0 {
		return
	}

	c.mu.Lock()
	c.pending = append(c.pending, mono.Data[0]...)
	off := 0
	for len(c.pending)-off >= c.size {
		frame := make([]float32, c.size)
		copy(frame, c.pending[off:off+c.size])
		emit(frame)
		off += c.size
	}
	// Shift the remainder to the front so the backing array is reused.
	n := copy(c.pending, c.pending[off:])
	c.pending = c.pending[:n]
	c.mu.Unlock()
}

// reset discards any partial frame.
func (c *chunker) reset() {
	c.mu.Lock()
	c.pending = c.pending[:0]
	c.mu.Unlock()
}

// buffered returns the number of samples waiting for a full frame.
func (c *chunker) buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
