// Package wire implements the ZMTP V1/V2/Raw wire framing: the Message type,
// its flag bits, connection metadata encoding, and the Encoder/Decoder
// contracts the engine drives from its readable/writable reactor callbacks.
package wire

// Flag bits carried alongside a Message.
const (
	FlagMore byte = 1 << iota
	FlagCommand
	FlagIdentity
	FlagCredential
)

// Msg is an opaque application or command frame plus its flags and an
// optional metadata payload (ZMTP "Command" properties attached to READY,
// or per-connection properties published via Metadata).
type Msg struct {
	Body     []byte
	Flags    byte
	Metadata *Metadata
}

// More reports whether another frame belonging to the same multipart
// message follows this one.
func (m Msg) More() bool { return m.Flags&FlagMore != 0 }

// Command reports whether this frame is a ZMTP command (PING, PONG, READY,
// ERROR, ...) rather than application data.
func (m Msg) Command() bool { return m.Flags&FlagCommand != 0 }

// Identity reports whether this is a v0/v1/v2-style identity frame.
func (m Msg) Identity() bool { return m.Flags&FlagIdentity != 0 }

// Credential reports whether this frame carries the mechanism-derived
// user id pushed to the session once per connection (§4.4 write_credential).
func (m Msg) Credential() bool { return m.Flags&FlagCredential != 0 }

// Size returns the number of bytes that will be written to the wire for
// this frame's payload (excluding framing overhead).
func (m Msg) Size() int { return len(m.Body) }

// ShortString returns a 1-byte-length-prefixed encoding of s, as used by
// ZMTP command names and CURVE ERROR status codes (§6.1 "short_string").
func ShortString(s string) []byte {
	out := make([]byte, 1+len(s))
	out[0] = byte(len(s))
	copy(out[1:], s)
	return out
}

// ReadShortString decodes a short_string prefix from b, returning the
// string, the number of bytes consumed, and whether b held enough data.
func ReadShortString(b []byte) (s string, n int, ok bool) {
	if len(b) < 1 {
		return "", 0, false
	}
	l := int(b[0])
	if len(b) < 1+l {
		return "", 0, false
	}
	return string(b[1 : 1+l]), 1 + l, true
}
