// Package mock provides in-memory mock implementations of the [audio.Output]
// and [audio.Input] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	out := &mock.Output{Fmt: audio.Format{SampleRate: 24000, Channels: 1}}
//	s := scheduler.New(out)
//	_ = s.Start()
//	samples := out.Pull(480) // drive the device clock by 20 ms
package mock

import (
	"sync"

	"github.com/MrWong99/tutorvoice/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Output = (*Output)(nil)
	_ audio.Input  = (*Input)(nil)
)

// ─── Output ──────────────────────────────────────────────────────────────────

// Output is a mock [audio.Output]. The render callback is only invoked when
// the test calls [Output.Pull], which makes the device clock fully
// deterministic.
type Output struct {
	mu sync.Mutex

	// Fmt is returned by [Output.Format].
	Fmt audio.Format

	// StartErr is returned by [Output.Start] when non-nil.
	StartErr error

	// CloseErr is returned by [Output.Close].
	CloseErr error

	// OnStart, when set, is called at the beginning of Start.
	OnStart func()

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	render audio.RenderFunc
}

// Start implements [audio.Output]. It stores render for later [Output.Pull]
// calls unless StartErr is set.
func (o *Output) Start(render audio.RenderFunc) error {
	o.mu.Lock()
	hook := o.OnStart
	o.mu.Unlock()
	if hook != nil {
		hook()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountStart++
	if o.StartErr != nil {
		return o.StartErr
	}
	o.render = render
	return nil
}

// Format implements [audio.Output].
func (o *Output) Format() audio.Format {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Fmt
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClose++
	o.render = nil
	return o.CloseErr
}

// Pull asks the render callback for frames sample frames and returns the
// interleaved result. It returns nil if the device is not started.
func (o *Output) Pull(frames int) []float32 {
	o.mu.Lock()
	render := o.render
	ch := o.Fmt.Channels
	o.mu.Unlock()
	if render == nil {
		return nil
	}
	out := make([]float32, frames*ch)
	render(out)
	return out
}

// ─── Input ───────────────────────────────────────────────────────────────────

// Input is a mock [audio.Input]. Tests feed samples with [Input.Emit].
type Input struct {
	mu sync.Mutex

	// Fmt is returned by [Input.Format].
	Fmt audio.Format

	// StartErr is returned by [Input.Start] when non-nil.
	StartErr error

	// StopErr is returned by [Input.Stop].
	StopErr error

	// CloseErr is returned by [Input.Close].
	CloseErr error

	// OnStart, when set, is called at the beginning of Start. Tests use it to
	// block Start and observe the Opening state.
	OnStart func()

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	onSamples func(audio.Buffer)
}

// Start implements [audio.Input].
func (i *Input) Start(onSamples func(audio.Buffer)) error {
	i.mu.Lock()
	hook := i.OnStart
	i.mu.Unlock()
	if hook != nil {
		hook()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.CallCountStart++
	if i.StartErr != nil {
		return i.StartErr
	}
	i.onSamples = onSamples
	return nil
}

// Stop implements [audio.Input].
func (i *Input) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CallCountStop++
	i.onSamples = nil
	return i.StopErr
}

// Format implements [audio.Input].
func (i *Input) Format() audio.Format {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Fmt
}

// Close implements [audio.Input].
func (i *Input) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CallCountClose++
	i.onSamples = nil
	return i.CloseErr
}

// Capturing reports whether a callback is currently registered.
func (i *Input) Capturing() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.onSamples != nil
}

// Emit delivers buf to the registered callback as the capture thread would.
// It reports false if capture is not running.
func (i *Input) Emit(buf audio.Buffer) bool {
	i.mu.Lock()
	fn := i.onSamples
	i.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(buf)
	return true
}
