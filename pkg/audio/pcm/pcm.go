// Package pcm converts between the transport encoding used on the wire
// (base64 text), raw little-endian signed 16-bit PCM bytes, and normalised
// floating point [audio.Buffer] values.
//
// Decoding divides every sample by 32768, so -32768 maps to exactly -1.0 and
// 32767 maps to just under 1.0. Encoding clamps to [-1.0, 1.0] before scaling
// and rounds to the nearest integer, saturating at 32767.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/tutorvoice/pkg/audio"
)

// Scale is the divisor applied to int16 samples on decode.
const Scale = 32768.0

var (
	// ErrMalformedEncoding is returned by [DecodeTransport] when the input is
	// not valid base64.
	ErrMalformedEncoding = errors.New("pcm: malformed transport encoding")

	// ErrInvalidFrameLength is returned by [ToSamples] when the byte count is
	// not a whole number of interleaved 16-bit frames.
	ErrInvalidFrameLength = errors.New("pcm: invalid frame length")
)

// EncodeTransport encodes b as standard base64 text.
func EncodeTransport(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeTransport is the inverse of [EncodeTransport].
func DecodeTransport(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	return b, nil
}

// ToSamples interprets b as interleaved little-endian int16 samples spread
// round-robin across channels and returns them as a planar buffer.
func ToSamples(b []byte, channels, sampleRate int) (audio.Buffer, error) {
	if channels < 1 {
		return audio.Buffer{}, fmt.Errorf("%w: %d channels", ErrInvalidFrameLength, channels)
	}
	if len(b)%(2*channels) != 0 {
		return audio.Buffer{}, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrInvalidFrameLength, len(b), 2*channels)
	}

	frames := len(b) / (2 * channels)
	buf := audio.NewBuffer(audio.Format{SampleRate: sampleRate, Channels: channels}, frames)
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * 2
			buf.Data[c][i] = float32(int16(binary.LittleEndian.Uint16(b[off:]))) / Scale
		}
	}
	return buf, nil
}

// FromSamples interleaves buf and encodes it as little-endian int16 PCM.
func FromSamples(buf audio.Buffer) []byte {
	channels := buf.Channels()
	frames := buf.Frames()
	out := make([]byte, frames*channels*2)
	for c, data := range buf.Data {
		for i, s := range data {
			binary.LittleEndian.PutUint16(out[(i*channels+c)*2:], uint16(Quantize(s)))
		}
	}
	return out
}

// Quantize maps one normalised sample to int16: clamp to [-1, 1], scale by
// 32768, round to nearest and saturate at the int16 bounds.
func Quantize(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	v = math.Round(v * Scale)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}

// PutSamples writes interleaved samples from src into dst as little-endian
// int16 without allocating. It returns the number of samples written, which
// is limited by the shorter of len(src) and len(dst)/2.
func PutSamples(dst []byte, src []float32) int {
	n := min(len(src), len(dst)/2)
	for i := range n {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(Quantize(src[i])))
	}
	return n
}

// ReadSamples decodes little-endian int16 samples from src into dst without
// allocating. It returns the number of samples decoded. A trailing odd byte
// is ignored.
func ReadSamples(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := range n {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(src[i*2:]))) / Scale
	}
	return n
}

// FromFrame converts an int16 frame into a planar buffer.
func FromFrame(f audio.Frame) (audio.Buffer, error) {
	if !f.Valid() {
		return audio.Buffer{}, fmt.Errorf("%w: %d samples over %d channels", ErrInvalidFrameLength, len(f.Samples), f.Channels)
	}
	buf := audio.NewBuffer(audio.Format{SampleRate: f.SampleRate, Channels: f.Channels}, len(f.Samples)/f.Channels)
	for i, s := range f.Samples {
		buf.Data[i%f.Channels][i/f.Channels] = float32(s) / Scale
	}
	return buf, nil
}

// ToFrame quantises a planar buffer into an int16 frame.
func ToFrame(buf audio.Buffer) audio.Frame {
	channels := buf.Channels()
	samples := make([]int16, buf.Frames()*channels)
	for c, data := range buf.Data {
		for i, s := range data {
			samples[i*channels+c] = Quantize(s)
		}
	}
	return audio.Frame{Samples: samples, SampleRate: buf.SampleRate, Channels: channels}
}
