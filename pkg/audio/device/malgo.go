package device

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/tutorvoice/pkg/audio"
	"github.com/MrWong99/tutorvoice/pkg/audio/pcm"
)

// Compile-time interface assertions.
var (
	_ audio.Output = (*MalgoOutput)(nil)
	_ audio.Input  = (*MalgoInput)(nil)
)

// initContext allocates a miniaudio context. miniaudio log lines are routed
// to slog at debug level.
func initContext() (*malgo.AllocatedContext, error) {
	return malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", message)
	})
}

func freeContext(ctx *malgo.AllocatedContext) {
	if ctx == nil {
		return
	}
	_ = ctx.Uninit()
	ctx.Free()
}

// ─── Playback ────────────────────────────────────────────────────────────────

// MalgoOutput is a miniaudio playback device.
type MalgoOutput struct {
	format audio.Format

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	scratch []float32
}

// NewMalgoOutput creates a miniaudio playback device for format f.
func NewMalgoOutput(f audio.Format) *MalgoOutput {
	return &MalgoOutput{format: f}
}

// Format implements [audio.Output].
func (o *MalgoOutput) Format() audio.Format { return o.format }

// Start implements [audio.Output].
func (o *MalgoOutput) Start(render audio.RenderFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.device != nil {
		return nil
	}

	ctx, err := initContext()
	if err != nil {
		return classify("init playback context", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(o.format.Channels)
	cfg.SampleRate = uint32(o.format.SampleRate)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency

	channels := o.format.Channels
	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			n := int(frameCount) * channels
			if cap(o.scratch) < n {
				o.scratch = make([]float32, n)
			}
			buf := o.scratch[:n]
			render(buf)
			pcm.PutSamples(pOutput, buf)
		},
	})
	if err != nil {
		freeContext(ctx)
		return classify("init playback device", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		freeContext(ctx)
		return classify("start playback device", err)
	}

	o.ctx = ctx
	o.device = dev
	return nil
}

// Close implements [audio.Output].
func (o *MalgoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.device == nil {
		return nil
	}
	var err error
	if o.device.IsStarted() {
		if stopErr := o.device.Stop(); stopErr != nil {
			err = fmt.Errorf("device: stop playback: %w", stopErr)
		}
	}
	o.device.Uninit()
	freeContext(o.ctx)
	o.device = nil
	o.ctx = nil
	return err
}

// ─── Capture ─────────────────────────────────────────────────────────────────

// MalgoInput is a miniaudio capture device. The device is initialised on the
// first Start and reused across Stop/Start cycles until Close.
type MalgoInput struct {
	format audio.Format

	// onSamples is read from the capture thread without taking mu, because
	// Stop holds mu while miniaudio waits for the callback to return.
	onSamples atomic.Pointer[func(audio.Buffer)]

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// NewMalgoInput creates a miniaudio capture device for format f.
func NewMalgoInput(f audio.Format) *MalgoInput {
	return &MalgoInput{format: f}
}

// Format implements [audio.Input].
func (in *MalgoInput) Format() audio.Format { return in.format }

// Start implements [audio.Input].
func (in *MalgoInput) Start(onSamples func(audio.Buffer)) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.device == nil {
		if err := in.initLocked(); err != nil {
			return err
		}
	}
	in.onSamples.Store(&onSamples)
	if in.device.IsStarted() {
		return nil
	}
	if err := in.device.Start(); err != nil {
		in.onSamples.Store(nil)
		return classify("start capture device", err)
	}
	return nil
}

func (in *MalgoInput) initLocked() error {
	ctx, err := initContext()
	if err != nil {
		return classify("init capture context", err)
	}

	channels := in.format.Channels
	rate := in.format.SampleRate
	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * channels

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = uint32(rate)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			fn := in.onSamples.Load()
			if fn == nil {
				return
			}
			buf, err := pcm.ToSamples(pInput[:n], channels, rate)
			if err != nil {
				return
			}
			(*fn)(buf)
		},
	})
	if err != nil {
		freeContext(ctx)
		return classify("init capture device", err)
	}
	in.ctx = ctx
	in.device = dev
	return nil
}

// Stop implements [audio.Input].
func (in *MalgoInput) Stop() error {
	in.onSamples.Store(nil)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.device == nil || !in.device.IsStarted() {
		return nil
	}
	if err := in.device.Stop(); err != nil {
		return fmt.Errorf("device: stop capture: %w", err)
	}
	return nil
}

// Close implements [audio.Input].
func (in *MalgoInput) Close() error {
	in.onSamples.Store(nil)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.device == nil {
		return nil
	}
	var err error
	if in.device.IsStarted() {
		if stopErr := in.device.Stop(); stopErr != nil {
			err = fmt.Errorf("device: stop capture: %w", stopErr)
		}
	}
	in.device.Uninit()
	freeContext(in.ctx)
	in.device = nil
	in.ctx = nil
	return err
}
