package audio

import "time"

// Frame is a run of interleaved signed 16-bit PCM samples as produced by a
// capture tick or carried by a network chunk. Frames are immutable once
// produced.
type Frame struct {
	// Samples holds interleaved PCM samples, one int16 per channel per frame.
	Samples []int16

	// SampleRate in Hz (16000 for capture, 24000 for playback).
	SampleRate int

	// Channels is the number of interleaved channels, 1 for mono.
	Channels int
}

// Valid reports whether the sample count divides evenly by the channel count.
func (f Frame) Valid() bool {
	return f.Channels > 0 && len(f.Samples)%f.Channels == 0
}

// Buffer holds normalised floating point audio in [-1.0, 1.0], one slice per
// channel. A Buffer is owned by whichever component decoded it until it is
// handed to the playback scheduler.
type Buffer struct {
	// Data holds one slice of samples per channel. All slices have equal length.
	Data [][]float32

	// SampleRate in Hz.
	SampleRate int
}

// Channels returns the number of channels in the buffer.
func (b Buffer) Channels() int { return len(b.Data) }

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length of the buffer. A buffer without a
// sample rate has zero duration.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Format returns the sample rate and channel count of the buffer.
func (b Buffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: b.Channels()}
}

// Interleave returns the samples interleaved frame by frame.
func (b Buffer) Interleave() []float32 {
	ch := b.Channels()
	n := b.Frames()
	out := make([]float32, n*ch)
	for c, data := range b.Data {
		for i, s := range data {
			out[i*ch+c] = s
		}
	}
	return out
}

// NewBuffer allocates a silent buffer with the given format and frame count.
func NewBuffer(f Format, frames int) Buffer {
	data := make([][]float32, f.Channels)
	for c := range data {
		data[c] = make([]float32, frames)
	}
	return Buffer{Data: data, SampleRate: f.SampleRate}
}

// Deinterleave splits interleaved samples into a planar [Buffer]. Trailing
// samples that do not form a complete frame are ignored.
func Deinterleave(samples []float32, f Format) Buffer {
	if f.Channels <= 0 {
		return Buffer{SampleRate: f.SampleRate}
	}
	buf := NewBuffer(f, len(samples)/f.Channels)
	for c := range buf.Data {
		for i := range buf.Data[c] {
			buf.Data[c][i] = samples[i*f.Channels+c]
		}
	}
	return buf
}
