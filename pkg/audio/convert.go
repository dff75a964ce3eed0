package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "24000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Converter converts buffers to a target format. It logs a warning on the
// first format mismatch. Create one per consumer; a Converter is safe for
// concurrent use only because its state is limited to the warn-once guard.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts buf to the target format. If the source format already
// matches the target, buf is returned unchanged (zero allocation).
// Conversion order: channel remix first, then resample, so that a stereo
// source bound for a mono device is only resampled once.
func (c *Converter) Convert(buf Buffer) Buffer {
	src := buf.Format()
	if src == c.Target || buf.Frames() == 0 {
		if buf.Frames() == 0 {
			return NewBuffer(c.Target, 0)
		}
		return buf
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", src.String(),
			"to", c.Target.String(),
		)
	})

	out := Remix(buf, c.Target.Channels)
	return Resample(out, c.Target.SampleRate)
}

// Remix converts buf to the given channel count. Mono sources are copied to
// every output channel; multi-channel sources bound for mono are averaged;
// any other combination maps channel i to source channel i mod n.
func Remix(buf Buffer, channels int) Buffer {
	src := buf.Channels()
	if channels <= 0 || src == channels || src == 0 {
		return buf
	}
	out := NewBuffer(Format{SampleRate: buf.SampleRate, Channels: channels}, buf.Frames())
	switch {
	case channels == 1:
		scale := 1 / float32(src)
		for _, data := range buf.Data {
			for i, s := range data {
				out.Data[0][i] += s * scale
			}
		}
	default:
		for c := range out.Data {
			copy(out.Data[c], buf.Data[c%src])
		}
	}
	return out
}

// Resample converts buf to rate using linear interpolation. If the rates
// already match, or either rate is invalid, buf is returned unchanged.
func Resample(buf Buffer, rate int) Buffer {
	if rate <= 0 || buf.SampleRate <= 0 || buf.SampleRate == rate {
		return buf
	}
	srcFrames := buf.Frames()
	dstFrames := int(int64(srcFrames) * int64(rate) / int64(buf.SampleRate))
	out := NewBuffer(Format{SampleRate: rate, Channels: buf.Channels()}, dstFrames)
	if dstFrames == 0 {
		return out
	}

	ratio := float64(buf.SampleRate) / float64(rate)
	for c, data := range buf.Data {
		dst := out.Data[c]
		for i := range dstFrames {
			pos := float64(i) * ratio
			idx := int(pos)
			frac := float32(pos - float64(idx))
			s0 := data[idx]
			s1 := s0
			if idx+1 < srcFrames {
				s1 = data[idx+1]
			}
			dst[i] = s0*(1-frac) + s1*frac
		}
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
