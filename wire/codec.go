package wire

import "errors"

// ErrMsgTooLarge is returned by a Decoder when a frame exceeds the
// configured MaxMsgSize (§6.3 max_msg_size).
var ErrMsgTooLarge = errors.New("wire: message exceeds max_msg_size")

// DecodeStatus is the result of a single Decoder.Decode call (§4.2).
type DecodeStatus int

const (
	// MoreData means the decoder needs additional input bytes before it
	// can complete a frame.
	MoreData DecodeStatus = iota
	// Decoded means a complete frame is available via Decoder.Msg.
	Decoded
	// DecodeError means the input violates framing rules (oversize,
	// malformed length, ...); the connection must be torn down with a
	// PROTOCOL error.
	DecodeError
)

// Decoder turns a byte stream into a sequence of Msg values. One Decoder
// instance is bound to a single connection's negotiated revision.
type Decoder interface {
	// Buffer returns a mutable region the engine may read socket bytes
	// into directly, sized to the decoder's remaining need.
	Buffer() []byte
	// Decode consumes up to len(p) bytes of newly-read input (p is a
	// prefix of the last slice returned by Buffer, truncated to the
	// number of bytes actually read) and reports how many bytes of p it
	// consumed. processed must never exceed len(p).
	Decode(p []byte) (status DecodeStatus, processed int, err error)
	// Msg returns the most recently completed frame. Only valid
	// immediately after Decode returns Decoded.
	Msg() Msg
}

// Encoder turns queued Msg values into wire bytes. One Encoder instance is
// bound to a single connection's negotiated revision.
type Encoder interface {
	// LoadMsg queues exactly one message for encoding. The caller must not
	// call LoadMsg again until the previous message is fully drained
	// (Encode returns 0 after exhausting it).
	LoadMsg(m Msg)
	// Encode fills view with up to limit bytes of wire output for the
	// queued message, returning the number of bytes written. Returning 0
	// signals the queued message is exhausted and another LoadMsg is
	// needed.
	Encode(view []byte, limit int) int
	// Encoded is invoked after a write batch completes, letting the
	// encoder release any internal scratch buffers.
	Encoded()
}

// MaxGreetingSize is the size of the v3 greeting buffer (§4.1, §6.1); v1/v2
// greetings are a 12-byte prefix of the same buffer.
const MaxGreetingSize = 64
