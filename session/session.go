// Package session implements the application-pipe contract the engine is
// driven by (§6.2): `pull_msg`/`push_msg` move application messages across
// the engine/application boundary, `flush` batches egress wakeups,
// `zap_connect`/`read_zap_msg`/`write_zap_msg` carry the ZAP round trip,
// and `engine_error` surfaces CONNECTION/PROTOCOL/TIMEOUT failures. spec.md
// treats the session as an external collaborator with only its contract
// specified; this package also ships the reference implementation the
// example binaries and tests are built against.
package session

import (
	"github.com/atsika/zmtpengine/security"
	"github.com/atsika/zmtpengine/wire"
)

// ErrorKind mirrors the three kinds the engine reports via EngineError
// (§7): CONNECTION (transport failure), PROTOCOL (wire violation), TIMEOUT
// (handshake or heartbeat timer expiry).
type ErrorKind int

const (
	ErrorConnection ErrorKind = iota
	ErrorProtocol
	ErrorTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorConnection:
		return "CONNECTION"
	case ErrorProtocol:
		return "PROTOCOL"
	case ErrorTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Session is the engine's view of the application side of a connection.
// PullMsg/PushMsg move wire.Msg values in the engine's egress/ingress
// pipeline (§4.3/§4.4); PushMsg returning false is the EAGAIN backpressure
// signal that makes the engine set input_stopped (§7).
type Session interface {
	// PullMsg returns the next application message queued for egress, or
	// ok=false if none is pending.
	PullMsg() (m wire.Msg, ok bool)

	// PushMsg delivers a decoded inbound message to the application.
	// Returning false means the application pipe is full (EAGAIN); the
	// engine must stop polling readable until RestartInput is observed.
	PushMsg(m wire.Msg) bool

	// Flush is called once per readable callback after the
	// engine has done everything it can (§4.3 "always call session.flush()
	// before returning"), giving the session a batching point rather than
	// waking the application on every single message.
	Flush()

	// ZAPConnect opens (or reuses) the ZAP round-trip channel for this
	// connection's mechanism.
	ZAPConnect() error

	// WriteZAPMsg/ReadZAPMsg drive one ZAP request/reply. ReadZAPMsg
	// returns ok=false when the reply has not arrived yet.
	WriteZAPMsg(req security.ZAPRequest) error
	ReadZAPMsg() (reply *security.ZAPReply, ok bool, err error)

	// ZAPEnabled reports whether this connection authenticates via ZAP at
	// all; NULL/PLAIN/CURVE mechanisms skip the round trip entirely when
	// this is false.
	ZAPEnabled() bool

	// EngineError reports a terminal engine failure. connectReached
	// indicates whether the v3 greeting/handshake ever completed, which
	// the session uses to decide whether to retry a connection attempt
	// (per §7, a TIMEOUT or PROTOCOL error after connect is different from
	// a CONNECTION error during the initial handshake).
	EngineError(connectReached bool, kind ErrorKind, reason error)
}

// RestartInput is implemented by sessions that support resuming a
// backpressured engine: once the application pipe drains, the session
// calls back into whatever triggers the engine to clear input_stopped and
// retry its pending push (§7 "the session calls restart_input once it can
// accept again"). MemorySession and OverflowSession both support this by
// construction -- PushMsg simply stops returning false -- so neither needs
// this interface; it exists for session implementations that must signal
// the engine proactively (e.g. a cross-goroutine or cross-process session).
type RestartInput interface {
	OnInputRestartable(fn func())
}
