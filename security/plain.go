package security

import (
	"fmt"

	"github.com/atsika/zmtpengine/wire"
)

// plainPhase tracks the PLAIN handshake on each side, shaped identically
// to CURVE's state machine (HELLO -> WELCOME -> INITIATE -> READY) so the
// engine's handshake-command dispatch stays mechanism-agnostic even though
// PLAIN carries no encryption.
type plainPhase int

const (
	plainExpectHello plainPhase = iota // server only
	plainExpectWelcome                 // client: sent HELLO, waiting
	plainExpectZAPReply                // server: HELLO authenticated, ZAP pending
	plainSendWelcome                   // server: ZAP accepted, WELCOME queued
	plainSendInitiate                  // client: got WELCOME, INITIATE queued
	plainExpectInitiate                // server: sent WELCOME, waiting
	plainSendReady                     // server: got INITIATE, READY queued
	plainExpectReady                   // client: sent INITIATE, waiting
	plainSendError                     // server: ZAP denied, ERROR queued
	plainDone
	plainErrorSent                     // server: ERROR emitted, handshake failed
)

// Plain implements the PLAIN mechanism: a username/password handshake
// authenticated out-of-band via ZAP, with no per-frame encryption (§6.3
// mechanism, supplemented from the ZAP RFC since spec.md names PLAIN only
// in passing).
type Plain struct {
	asServer bool
	socket   string
	identity []byte
	username string
	password string

	zap ZAPPort

	phase      plainPhase
	userID     []byte
	statusCode string
}

// NewPlainClient builds the client side: it sends HELLO carrying
// username/password and waits for WELCOME. socket/identity are carried
// in the later INITIATE metadata, same as the server's READY.
func NewPlainClient(username, password, socket string, identity []byte) *Plain {
	return &Plain{phase: plainExpectWelcome, username: username, password: password, socket: socket, identity: identity}
}

// NewPlainServer builds the server side: it authenticates incoming HELLO
// commands against zap (nil disables ZAP and accepts everyone).
func NewPlainServer(asServer bool, socket string, identity []byte, zap ZAPPort) *Plain {
	return &Plain{asServer: asServer, socket: socket, identity: identity, phase: plainExpectHello, zap: zap}
}

func (p *Plain) Name() string { return "PLAIN" }

func (p *Plain) NextHandshakeCommand() (wire.Msg, bool) {
	switch p.phase {
	case plainExpectWelcome:
		if p.username == "" && p.password == "" {
			return wire.Msg{}, false
		}
		body := wire.ShortString("HELLO")
		body = append(body, wire.ShortString(p.username)...)
		body = append(body, wire.ShortString(p.password)...)
		p.username, p.password = "", "" // HELLO carries credentials exactly once
		return wire.Msg{Body: body, Flags: wire.FlagCommand}, true

	case plainSendWelcome:
		p.phase = plainExpectInitiate
		return wire.Msg{Body: wire.ShortString("WELCOME"), Flags: wire.FlagCommand}, true

	case plainSendInitiate:
		p.phase = plainExpectReady
		body := wire.ShortString("INITIATE")
		body = append(body, metadataOnly(p.socket, p.identity)...)
		return wire.Msg{Body: body, Flags: wire.FlagCommand}, true

	case plainSendReady:
		p.phase = plainDone
		return wire.Msg{Body: encodeReadyBody(p.socket, p.identity), Flags: wire.FlagCommand}, true

	case plainSendError:
		p.phase = plainErrorSent
		return wire.Msg{Body: encodeErrorBody(p.statusCode), Flags: wire.FlagCommand}, true
	}
	return wire.Msg{}, false
}

func (p *Plain) ProcessHandshakeCommand(cmd wire.Msg) error {
	name, n, ok := wire.ReadShortString(cmd.Body)
	if !ok {
		return fmt.Errorf("%w: malformed PLAIN command", ErrHandshakeViolation)
	}

	switch name {
	case "HELLO":
		if p.phase != plainExpectHello {
			return fmt.Errorf("%w: unexpected HELLO", ErrHandshakeViolation)
		}
		username, n2, ok := wire.ReadShortString(cmd.Body[n:])
		if !ok {
			return fmt.Errorf("%w: malformed HELLO username", ErrHandshakeViolation)
		}
		password, _, ok := wire.ReadShortString(cmd.Body[n+n2:])
		if !ok {
			return fmt.Errorf("%w: malformed HELLO password", ErrHandshakeViolation)
		}
		return p.authenticate(username, password)

	case "WELCOME":
		if p.phase != plainExpectWelcome {
			return fmt.Errorf("%w: unexpected WELCOME", ErrHandshakeViolation)
		}
		p.phase = plainSendInitiate
		return nil

	case "INITIATE":
		if p.phase != plainExpectInitiate {
			return fmt.Errorf("%w: unexpected INITIATE", ErrHandshakeViolation)
		}
		if _, err := wire.DecodeMetadata(cmd.Body[n:]); err != nil {
			return fmt.Errorf("%w: malformed INITIATE metadata: %v", ErrHandshakeViolation, err)
		}
		p.phase = plainSendReady
		return nil

	case "READY":
		if p.phase != plainExpectReady {
			return fmt.Errorf("%w: unexpected READY", ErrHandshakeViolation)
		}
		if _, err := decodeReadyBody(cmd.Body); err != nil {
			return err
		}
		p.phase = plainDone
		return nil

	case "ERROR":
		return fmt.Errorf("%w: peer rejected PLAIN credentials", ErrZAPDenied)
	}
	return fmt.Errorf("%w: unknown PLAIN command %q", ErrHandshakeViolation, name)
}

func (p *Plain) authenticate(username, password string) error {
	if p.zap == nil || !p.zap.Enabled() {
		p.phase = plainSendWelcome
		return nil
	}
	if err := p.zap.Connect(); err != nil {
		return err
	}
	req := ZAPRequest{
		Identity:    p.identity,
		Mechanism:   "PLAIN",
		Credentials: [][]byte{[]byte(username), []byte(password)},
	}
	if err := p.zap.WriteRequest(req); err != nil {
		return err
	}
	reply, ok, err := p.zap.ReadReply()
	if err != nil {
		return err
	}
	if !ok {
		p.phase = plainExpectZAPReply
		return ErrZAPPending
	}
	return p.applyZAPReply(reply)
}

// ProcessZAPReply is invoked by the engine once a pending ZAP reply
// arrives for a mechanism parked in plainExpectZAPReply. CURVE exposes
// the identical method so the engine never duplicates the branching
// between "reply arrived synchronously" and "reply arrived later" (§9 ZAP
// blocking).
func (p *Plain) ProcessZAPReply() error {
	if p.phase != plainExpectZAPReply {
		return fmt.Errorf("%w: no ZAP reply pending", ErrHandshakeViolation)
	}
	reply, ok, err := p.zap.ReadReply()
	if err != nil {
		return err
	}
	if !ok {
		return ErrZAPPending
	}
	return p.applyZAPReply(reply)
}

func (p *Plain) applyZAPReply(reply *ZAPReply) error {
	if reply.StatusCode != "200" {
		p.statusCode = reply.StatusCode
		p.phase = plainSendError
		return nil
	}
	p.userID = reply.UserID
	p.phase = plainSendWelcome
	return nil
}

func (p *Plain) Status() Status {
	switch p.phase {
	case plainDone:
		return StatusReady
	case plainErrorSent:
		return StatusErrored
	default:
		return StatusHandshaking
	}
}

func (p *Plain) UserID() []byte                     { return p.userID }
func (p *Plain) Encode(m wire.Msg) (wire.Msg, error) { return m, nil }
func (p *Plain) Decode(m wire.Msg) (wire.Msg, error) { return m, nil }
