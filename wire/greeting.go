package wire

import "encoding/binary"

// Revision is the negotiated ZMTP protocol revision (§4.1).
type Revision int

const (
	RevisionUnknown Revision = iota
	RevisionV0
	RevisionV1
	RevisionV2
	RevisionV3
)

func (r Revision) String() string {
	switch r {
	case RevisionV0:
		return "v0"
	case RevisionV1:
		return "v1"
	case RevisionV2:
		return "v2"
	case RevisionV3:
		return "v3"
	default:
		return "unknown"
	}
}

const (
	greetingV0Size = 10
	greetingV12Size = 12
	greetingV3Size  = 64

	revisionMajorByte byte = 3 // always advertised on the wire (§4.1 rule 3)
)

// Greeting drives the ZMTP signature/version-negotiation exchange described
// in §4.1. A single Greeting is created per connection (non-raw mode) at
// plug time.
type Greeting struct {
	identitySize int
	mechanism    string
	socketType   byte
	asServer     bool

	send      [greetingV3Size]byte
	sendValid int // bytes ready to transmit
	sendOff   int // bytes already handed to the transport

	recv    [greetingV3Size]byte
	recvLen int

	need int // bytes of recv we currently want before re-evaluating

	resolved   bool
	revision   Revision
	peerMech   string
	peerServer bool

	// v0Prime carries the already-consumed long-form header of a peer's
	// v0 identity message when the v0 decision came from rule 2 (byte 9's
	// flags bit), so the caller can prime a V1Decoder instead of
	// discarding these bytes.
	v0Primed    bool
	v0Length    int64
	v0Flags     byte
	v0RawReplay []byte // set instead of v0Primed when rule 1 fired
}

// NewGreeting constructs a negotiator. identitySize and socketType feed the
// v0/v1/v2 tail and the outgoing signature length field; mechanism and
// asServer feed the v3 tail.
func NewGreeting(identitySize int, socketType byte, mechanism string, asServer bool) *Greeting {
	g := &Greeting{
		identitySize: identitySize,
		socketType:   socketType,
		mechanism:    mechanism,
		asServer:     asServer,
		need:         greetingV0Size,
	}
	g.send[0] = 0xFF
	binary.BigEndian.PutUint64(g.send[1:9], uint64(identitySize+1))
	g.send[9] = 0x7F
	g.sendValid = greetingV0Size
	return g
}

// PendingSend returns the not-yet-transmitted tail of the outgoing
// greeting buffer. The caller writes these bytes to the socket and reports
// back via MarkSent.
func (g *Greeting) PendingSend() []byte { return g.send[g.sendOff:g.sendValid] }

// MarkSent advances the outgoing cursor by n bytes written.
func (g *Greeting) MarkSent(n int) { g.sendOff += n }

// NeedRecv returns the socket-read target for the next inbound greeting
// bytes.
func (g *Greeting) NeedRecv() []byte { return g.recv[g.recvLen:g.need] }

// Resolved reports whether the version decision is final.
func (g *Greeting) Resolved() bool { return g.resolved }

// Feed records n freshly-read bytes (written into the slice last returned
// by NeedRecv) and advances the negotiation state machine.
func (g *Greeting) Feed(n int) {
	g.recvLen += n
	for !g.resolved {
		if !g.advance() {
			return
		}
	}
}

// advance runs one step of decision-making against currently buffered
// bytes; it returns false when more input is required.
func (g *Greeting) advance() bool {
	switch {
	case g.recvLen >= 1 && g.recv[0] != 0xFF:
		// Rule 1: peer is v0, and none of what we've read is a valid
		// signature at all -- it is the start of the peer's own v0
		// identity-message framing. Replay it whole into a fresh V1
		// decoder.
		g.finalize(RevisionV0)
		g.v0RawReplay = append([]byte(nil), g.recv[:g.recvLen]...)
		return true

	case g.recvLen < greetingV0Size:
		g.need = greetingV0Size
		return false

	case g.recv[9]&1 == 0:
		// Rule 2: peer is v0; byte 9 is the flags byte of a v0 long-form
		// identity-message header we've already consumed in full.
		g.finalize(RevisionV0)
		g.v0Primed = true
		g.v0Length = int64(binary.BigEndian.Uint64(g.recv[1:9]))
		g.v0Flags = g.recv[9]
		return true

	default:
		// Rule 3: peer is v1 or later. Advertise our own revision-major
		// immediately and keep reading.
		if g.sendValid < greetingV0Size+1 {
			g.send[greetingV0Size] = revisionMajorByte
			g.sendValid = greetingV0Size + 1
		}
		if g.recvLen < greetingV0Size+1 {
			g.need = greetingV0Size + 1
			return false
		}
		return g.resolveFromRevisionByte()
	}
}

func (g *Greeting) resolveFromRevisionByte() bool {
	peerRevMajor := g.recv[greetingV0Size]
	var rev Revision
	switch {
	case peerRevMajor == 0:
		rev = RevisionV1
	case peerRevMajor >= 3:
		rev = RevisionV3
	default: // 1 or 2
		rev = RevisionV2
	}

	// Our own tail is queued as soon as the peer's revision byte is known,
	// before the peer's tail arrives, so two peers never wait on each other.
	if rev == RevisionV3 {
		g.need = greetingV3Size
		g.send[11] = 0x00 // revision-minor
		copy(g.send[12:32], padMechanism(g.mechanism))
		if g.asServer {
			g.send[32] = 1
		}
		// filler (send[33:63]) left zero
		g.sendValid = greetingV3Size
		if g.recvLen < greetingV3Size {
			return false
		}
		g.peerMech = trimMechanism(g.recv[12:32])
		g.peerServer = g.recv[32] != 0
		g.finalize(RevisionV3)
		return true
	}

	g.need = greetingV12Size
	g.send[11] = g.socketType
	g.sendValid = greetingV12Size
	if g.recvLen < greetingV12Size {
		return false
	}
	g.finalize(rev)
	return true
}

func (g *Greeting) finalize(rev Revision) {
	g.resolved = true
	g.revision = rev
}

// Revision returns the negotiated revision once Resolved is true.
func (g *Greeting) Revision() Revision { return g.revision }

// PeerMechanism returns the mechanism name the v3 peer advertised.
func (g *Greeting) PeerMechanism() string { return g.peerMech }

// PeerIsServer reports the v3 peer's as_server bit.
func (g *Greeting) PeerIsServer() bool { return g.peerServer }

// V0Primed reports whether the v0 decision consumed a full long-form
// identity header (rule 2) that a V1Decoder should be primed with.
func (g *Greeting) V0Primed() (length int64, flags byte, ok bool) {
	return g.v0Length, g.v0Flags, g.v0Primed
}

// V0Replay returns the raw bytes that must be re-fed into a fresh V1Decoder
// when the v0 decision came from rule 1 (byte 0 was never 0xFF).
func (g *Greeting) V0Replay() []byte { return g.v0RawReplay }

// Tail returns any bytes read beyond what the negotiated greeting needed --
// the start of the post-greeting message stream -- for v1/v2/v3 decisions.
func (g *Greeting) Tail() []byte { return g.recv[g.need:g.recvLen] }

func padMechanism(name string) []byte {
	out := make([]byte, 20)
	copy(out, name)
	return out
}

func trimMechanism(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}
