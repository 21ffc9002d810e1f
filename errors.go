package zmtpengine

import (
	"errors"
	"fmt"

	"github.com/atsika/zmtpengine/session"
)

// Sentinel errors surfaced as the cause of an EngineError (§7), matching
// aznet.go's package-level errors.New(...) style.
var (
	ErrPeerClosed          = errors.New("zmtpengine: peer closed the connection")
	ErrSocketIO            = errors.New("zmtpengine: socket read/write failed")
	ErrGreetingRejected    = errors.New("zmtpengine: greeting violated protocol")
	ErrZAPRequiresV3       = errors.New("zmtpengine: ZAP enabled session requires ZMTP v3")
	ErrFramingViolation    = errors.New("zmtpengine: malformed frame")
	ErrUnexpectedCommand   = errors.New("zmtpengine: handshake command out of sequence")
	ErrMechanismRejected   = errors.New("zmtpengine: security mechanism rejected the peer")
	ErrSessionRejected     = errors.New("zmtpengine: session rejected a message outside backpressure")
	ErrHandshakeTimedOut   = errors.New("zmtpengine: handshake did not complete in time")
	ErrHeartbeatTimedOut   = errors.New("zmtpengine: peer did not respond to PING in time")
	ErrPeerHeartbeatExpired = errors.New("zmtpengine: peer TTL expired without a heartbeat")
	ErrAlreadyPlugged      = errors.New("zmtpengine: engine already plugged")
	ErrNotPlugged          = errors.New("zmtpengine: engine not plugged")
	ErrInvalidConfig       = errors.New("zmtpengine: invalid configuration")
	ErrUnsupportedMechanismConfig = errors.New("zmtpengine: unrecognized mechanism in config")
)

// EngineError is what the engine reports to Session.EngineError (§7): one
// of the three kinds, the connection's connect-reached status, and the
// triggering sentinel (optionally wrapped with more context via %w).
type EngineError struct {
	Kind           session.ErrorKind
	ConnectReached bool
	Err            error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("zmtpengine: %s error (connect_reached=%v): %v", e.Kind, e.ConnectReached, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func newEngineError(kind session.ErrorKind, connectReached bool, cause error) *EngineError {
	return &EngineError{Kind: kind, ConnectReached: connectReached, Err: cause}
}
