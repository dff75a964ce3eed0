// Package live defines the Provider interface for real-time conversational
// voice backends.
//
// A live provider wraps a remote service that accepts a continuous stream of
// microphone audio and answers with a continuous stream of synthesised
// speech over one stateful, bidirectional session. Audio crosses this
// interface in its transport encoding (base64 PCM text) in both directions:
// the caller encodes outbound frames and decodes inbound chunks, so the
// provider stays a pure transport.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"mime"
	"strconv"
)

// DefaultInputMIMEType describes 16 kHz mono signed 16-bit PCM.
const DefaultInputMIMEType = "audio/pcm;rate=16000"

// DefaultOutputSampleRate is the rate of reply audio when the provider does
// not state one.
const DefaultOutputSampleRate = 24000

// MessageKind classifies an inbound [Message].
type MessageKind int

const (
	// MessageAudio carries one transport-encoded reply audio chunk.
	MessageAudio MessageKind = iota

	// MessageTurnComplete marks the end of the model's turn.
	MessageTurnComplete

	// MessageInterrupted reports that the user barged in and that any
	// buffered reply audio should be discarded.
	MessageInterrupted

	// MessageInputTranscript carries recognised user speech.
	MessageInputTranscript

	// MessageOutputTranscript carries the text of the model's spoken reply.
	MessageOutputTranscript
)

// String returns the human-readable name of the message kind.
func (k MessageKind) String() string {
	switch k {
	case MessageAudio:
		return "audio"
	case MessageTurnComplete:
		return "turn_complete"
	case MessageInterrupted:
		return "interrupted"
	case MessageInputTranscript:
		return "input_transcript"
	case MessageOutputTranscript:
		return "output_transcript"
	default:
		return "unknown"
	}
}

// Message is one inbound event. Messages are delivered strictly in the order
// the provider emitted them.
type Message struct {
	Kind MessageKind

	// Audio is the transport-encoded PCM payload for [MessageAudio]. It is
	// passed through untouched; the provider never decodes it.
	Audio string

	// MIMEType describes Audio, e.g. "audio/pcm;rate=24000".
	MIMEType string

	// Text is set for transcript messages.
	Text string
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Voice is the provider-specific prebuilt voice name, e.g. "Kore".
	Voice string

	// Instructions is the system-level prompt for the conversation.
	Instructions string

	// InputMIMEType describes outbound audio. Defaults to [DefaultInputMIMEType].
	InputMIMEType string
}

// Session represents an open live conversation. Callers must call Close when
// the session is no longer needed.
type Session interface {
	// SendAudio delivers one transport-encoded PCM frame to the provider.
	// Returns an error if the session is closed or the write fails.
	SendAudio(ctx context.Context, encoded string) error

	// Messages returns the inbound event stream. The channel is closed when
	// the session ends; call Err afterwards to learn whether it ended cleanly.
	// Consumers must drain it promptly.
	Messages() <-chan Message

	// Err returns the error that ended the session, or nil for a clean close.
	Err() error

	// Close terminates the session and closes the Messages channel. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any live conversational backend.
type Provider interface {
	// Connect opens a new session. The returned session accepts audio
	// immediately. The caller owns the session and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}

// SampleRate extracts the "rate" parameter from an audio MIME type such as
// "audio/pcm;rate=24000". It returns fallback when the type carries no valid
// rate.
func SampleRate(mimeType string, fallback int) int {
	if mimeType == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fallback
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return fallback
	}
	return rate
}
