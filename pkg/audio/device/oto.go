package device

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/tutorvoice/pkg/audio"
	"github.com/MrWong99/tutorvoice/pkg/audio/pcm"
)

// Compile-time interface assertion.
var _ audio.Output = (*OtoOutput)(nil)

// otoBufferSize bounds the latency between the scheduler clock and the
// speaker.
const otoBufferSize = 40 * time.Millisecond

// oto allows a single context per process; it is created on first use and
// shared by every OtoOutput with the same format.
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoFormat audio.Format
	otoErr    error
)

func sharedOtoContext(f audio.Format) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   otoBufferSize,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
		otoFormat = f
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat != f {
		return nil, fmt.Errorf("oto context already open at %s, cannot reopen at %s", otoFormat, f)
	}
	return otoCtx, nil
}

// OtoOutput is a playback device backed by a persistent oto player that
// pulls PCM from the render callback.
type OtoOutput struct {
	format audio.Format

	mu     sync.Mutex
	player *oto.Player
	src    *renderReader
}

// NewOtoOutput creates an oto playback device for format f.
func NewOtoOutput(f audio.Format) *OtoOutput {
	return &OtoOutput{format: f}
}

// Format implements [audio.Output].
func (o *OtoOutput) Format() audio.Format { return o.format }

// Start implements [audio.Output].
func (o *OtoOutput) Start(render audio.RenderFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		return nil
	}

	ctx, err := sharedOtoContext(o.format)
	if err != nil {
		return classify("open oto context", err)
	}

	o.src = &renderReader{render: render, channels: o.format.Channels}
	o.player = ctx.NewPlayer(o.src)
	o.player.Play()
	return nil
}

// Close implements [audio.Output].
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return nil
	}
	o.src.close()
	err := o.player.Close()
	o.player = nil
	if err != nil {
		return fmt.Errorf("device: close oto player: %w", err)
	}
	return nil
}

// renderReader adapts a [audio.RenderFunc] to the io.Reader oto pulls from.
type renderReader struct {
	render   audio.RenderFunc
	channels int

	mu      sync.Mutex
	closed  bool
	scratch []float32
}

func (r *renderReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}
	frameBytes := 2 * r.channels
	n := (len(p) / frameBytes) * r.channels
	if n == 0 {
		return 0, errors.New("device: oto read buffer smaller than one frame")
	}
	if cap(r.scratch) < n {
		r.scratch = make([]float32, n)
	}
	buf := r.scratch[:n]
	r.render(buf)
	return pcm.PutSamples(p, buf) * 2, nil
}

func (r *renderReader) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
