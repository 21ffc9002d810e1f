package security

import (
	"fmt"

	"github.com/atsika/zmtpengine/wire"
)

// nullPhase only tracks the ZAP side channel a NULL handshake may gate
// on; the READY exchange itself stays two plain sent/received flags
// since, unlike PLAIN/CURVE, NULL's READY is symmetric rather than a
// strict request/response chain.
type nullPhase int

const (
	nullNoZAP         nullPhase = iota // no ZAP gating: READY queued immediately
	nullAwaitingReady                  // server+ZAP: waiting for the peer's READY to authenticate against
	nullExpectZAPReply                 // server+ZAP: request sent, reply pending
	nullApproved                       // server+ZAP: ZAP accepted, READY now queueable
	nullSendError                      // server+ZAP: ZAP denied, ERROR queued
	nullErrorSent                      // ERROR emitted, handshake failed
)

// Null implements the NULL mechanism: ordinarily just an exchange of
// READY commands carrying metadata, no secrecy, no per-frame transform
// (§6.3 mechanism). When the session has ZAP enabled, the server side
// still authenticates the connection before sending its own READY --
// NULL carries no credentials, so the ZAP request reaches the
// authenticator with an empty credential list and it authorizes by
// address/domain alone (§12 NULL mechanism: "still routed through ZAP if
// the session has ZAP enabled at all").
type Null struct {
	asServer bool
	socket   string
	identity []byte
	zap      ZAPPort

	phase     nullPhase
	sentReady bool
	recvReady bool

	userID     []byte
	statusCode string
}

// NewNull constructs a NULL mechanism. socket is the socket-type name
// published in the READY metadata (e.g. "DEALER"); identity is only sent
// for REQ/DEALER/ROUTER sockets per §4.5 SEND_READY. zap may be nil to
// accept every peer without authentication, matching PLAIN/CURVE's
// nil-disables-ZAP convention; it is only consulted server-side.
func NewNull(asServer bool, socket string, identity []byte, zap ZAPPort) *Null {
	phase := nullNoZAP
	if asServer && zap != nil && zap.Enabled() {
		phase = nullAwaitingReady
	}
	return &Null{asServer: asServer, socket: socket, identity: identity, zap: zap, phase: phase}
}

func (n *Null) Name() string { return "NULL" }

func (n *Null) NextHandshakeCommand() (wire.Msg, bool) {
	switch n.phase {
	case nullNoZAP, nullApproved:
		if n.sentReady {
			return wire.Msg{}, false
		}
		n.sentReady = true
		return wire.Msg{Body: encodeReadyBody(n.socket, n.identity), Flags: wire.FlagCommand}, true

	case nullSendError:
		n.phase = nullErrorSent
		return wire.Msg{Body: encodeErrorBody(n.statusCode), Flags: wire.FlagCommand}, true
	}
	return wire.Msg{}, false
}

func (n *Null) ProcessHandshakeCommand(cmd wire.Msg) error {
	name, _, ok := wire.ReadShortString(cmd.Body)
	if !ok {
		return fmt.Errorf("%w: malformed NULL command", ErrHandshakeViolation)
	}

	switch name {
	case "READY":
		if _, err := decodeReadyBody(cmd.Body); err != nil {
			return err
		}
		n.recvReady = true
		if n.phase == nullAwaitingReady {
			return n.authenticateZAP()
		}
		return nil

	case "ERROR":
		return fmt.Errorf("%w: peer rejected NULL connection", ErrZAPDenied)
	}
	return fmt.Errorf("%w: unknown NULL command %q", ErrHandshakeViolation, name)
}

func (n *Null) authenticateZAP() error {
	if err := n.zap.Connect(); err != nil {
		return err
	}
	req := ZAPRequest{Identity: n.identity, Mechanism: "NULL"}
	if err := n.zap.WriteRequest(req); err != nil {
		return err
	}
	reply, ok, err := n.zap.ReadReply()
	if err != nil {
		return err
	}
	if !ok {
		n.phase = nullExpectZAPReply
		return ErrZAPPending
	}
	return n.applyZAPReply(reply)
}

// ProcessZAPReply mirrors Plain/Curve's method of the same name: the
// engine calls it once a pending ZAP reply for a mechanism parked in
// nullExpectZAPReply becomes available (§9 ZAP blocking).
func (n *Null) ProcessZAPReply() error {
	if n.phase != nullExpectZAPReply {
		return fmt.Errorf("%w: no ZAP reply pending", ErrHandshakeViolation)
	}
	reply, ok, err := n.zap.ReadReply()
	if err != nil {
		return err
	}
	if !ok {
		return ErrZAPPending
	}
	return n.applyZAPReply(reply)
}

func (n *Null) applyZAPReply(reply *ZAPReply) error {
	if reply.StatusCode != "200" {
		n.statusCode = reply.StatusCode
		n.phase = nullSendError
		return nil
	}
	n.userID = reply.UserID
	n.phase = nullApproved
	return nil
}

func (n *Null) Status() Status {
	if n.phase == nullErrorSent {
		return StatusErrored
	}
	if n.sentReady && n.recvReady {
		return StatusReady
	}
	return StatusHandshaking
}

func (n *Null) UserID() []byte                     { return n.userID }
func (n *Null) Encode(m wire.Msg) (wire.Msg, error) { return m, nil }
func (n *Null) Decode(m wire.Msg) (wire.Msg, error) { return m, nil }
