package tts

// DefaultSampleRate is the rate of synthesised speech when the backend does
// not state one.
const DefaultSampleRate = 24000

// Speech is one synthesised utterance.
type Speech struct {
	// Audio is base64-encoded 16-bit little-endian mono PCM.
	Audio string

	// MIMEType describes Audio as reported by the backend, e.g.
	// "audio/L16;codec=pcm;rate=24000". May be empty.
	MIMEType string

	// SampleRate is the rate of Audio in Hz.
	SampleRate int
}

// Empty reports whether the utterance carries no audio.
func (s Speech) Empty() bool { return s.Audio == "" }
