// Package security implements the ZMTP security mechanisms (NULL, PLAIN,
// CURVE, GSSAPI) as a sum type: one Mechanism value per connection,
// selected at plug time, driving the v3 handshake and the per-frame
// encode/decode transform once READY (§4.5, §9).
package security

import (
	"errors"

	"github.com/atsika/zmtpengine/wire"
)

// Status is a mechanism's position in its handshake state machine.
type Status int

const (
	StatusHandshaking Status = iota
	StatusReady
	StatusErrored
)

// Sentinel errors surfaced as PROTOCOL errors by the engine (§7).
var (
	ErrUnsupportedMechanism = errors.New("security: mechanism not supported")
	ErrHandshakeViolation   = errors.New("security: handshake command out of sequence")
	ErrCryptoFailure        = errors.New("security: cryptographic verification failed")
	ErrNonceReplay          = errors.New("security: nonce did not increase")
	ErrZAPDenied            = errors.New("security: ZAP authenticator denied the peer")
)

// ZAPRequest is the subset of a ZAP 1.0 request a mechanism builds; the
// session/zapauth layer fills in the envelope (version, request id,
// domain, address) per RFC 27.
type ZAPRequest struct {
	Identity    []byte
	Mechanism   string
	Credentials [][]byte // mechanism-specific: username/password for PLAIN, pubkey for CURVE
}

// ZAPReply is the decoded form of a ZAP reply.
type ZAPReply struct {
	StatusCode string
	UserID     []byte
	Metadata   wire.Metadata
}

// ZAPPort is the narrow slice of the session's ZAP contract (§6.2
// zap_connect/read_zap_msg/write_zap_msg/zap_enabled) a mechanism needs to
// drive an authentication round trip without owning the session.
type ZAPPort interface {
	Enabled() bool
	Connect() error
	WriteRequest(req ZAPRequest) error
	// ReadReply returns ok=false when the reply has not arrived yet; the
	// mechanism must park in a waiting state and retry on the session's
	// next zap-reply-available notification.
	ReadReply() (reply *ZAPReply, ok bool, err error)
}

// Mechanism is the capability set every variant implements: handshake
// command production/consumption, terminal status, and the per-frame
// transform applied once READY. Implementations are a sum type, not a
// class hierarchy (§9) -- NULL, PLAIN, CURVE and GSSAPI share no base
// struct, only this interface.
type Mechanism interface {
	// Name is the wire mechanism name (NULL/PLAIN/CURVE/GSSAPI), sent in
	// the v3 greeting.
	Name() string

	// NextHandshakeCommand returns the next outbound handshake command,
	// if the state machine has one queued. ok is false when nothing is
	// pending (e.g. waiting on a ZAP reply).
	NextHandshakeCommand() (cmd wire.Msg, ok bool)

	// ProcessHandshakeCommand consumes one inbound handshake command and
	// advances the state machine. On some failures (a CURVE HELLO or
	// INITIATE that does not verify) the mechanism also queues an ERROR
	// command available from NextHandshakeCommand; Status reports
	// StatusErrored only once that ERROR has been emitted.
	ProcessHandshakeCommand(cmd wire.Msg) error

	// Status reports the current handshake phase.
	Status() Status

	// UserID returns the credential identity to push as a CREDENTIAL
	// frame after READY (§4.4 write_credential), or nil if none.
	UserID() []byte

	// Encode applies the mechanism's per-frame transform to an outbound
	// application message. NULL and PLAIN pass the frame through
	// unchanged; CURVE seals it.
	Encode(m wire.Msg) (wire.Msg, error)

	// Decode applies the inverse transform to an inbound post-handshake
	// frame.
	Decode(m wire.Msg) (wire.Msg, error)
}

// ErrZAPPending is returned by ProcessHandshakeCommand and ProcessZAPReply
// (NULL, PLAIN and CURVE servers) to signal the engine should pause
// inbound processing until the ZAP reply arrives; it is not a failure.
var ErrZAPPending = errors.New("security: waiting on ZAP reply")
