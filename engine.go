// Package zmtpengine drives a single ZMTP-family stream connection:
// greeting/version negotiation, the security handshake, framed message
// exchange, and heartbeats, on top of an externally-owned reactor and
// session (§1, §6.2). One Engine is created per attached peer; it is
// plugged once, runs until a terminal error or clean unplug, and is not
// reusable after Destroy.
package zmtpengine

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/atsika/zmtpengine/reactor"
	"github.com/atsika/zmtpengine/security"
	"github.com/atsika/zmtpengine/session"
	"github.com/atsika/zmtpengine/wire"
)

// Transport is the narrow slice of reactor.Reactor the engine drives
// (§6.2 add_fd/set_poll_in/set_poll_out/add_timer). Accepting an
// interface here, rather than *reactor.Reactor, keeps the engine
// decoupled from any one reactor implementation; reactor.Reactor
// satisfies it structurally.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetPollIn()
	ResetPollIn()
	SetPollOut()
	ResetPollOut()
	AddTimer(d time.Duration, id int)
	CancelTimer(id int)
	LocalAddr() net.Addr
}

// Timer identifiers passed to Transport.AddTimer/CancelTimer and returned
// by TimerFired (§4.6).
const (
	timerHandshake = iota + 1
	timerHeartbeatIvl
	timerHeartbeatTimeout
	timerHeartbeatTTL
)

// pipelinePhase is the tagged variant of pipeline stages the controller
// dispatches against (§9 "model as a tagged variant of pipeline stages").
type pipelinePhase int

const (
	phaseGreeting pipelinePhase = iota
	phaseIdentity                // v0/v1/v2: exchanging the bare identity frame
	phaseHandshake               // v3: mechanism handshake commands
	phaseReady                   // message pipeline, mechanism READY or raw/legacy equivalent
)

// Engine is one per attached peer (§3).
type Engine struct {
	cfg  *Config
	conn Transport
	sess session.Session

	phase pipelinePhase

	greeting *wire.Greeting
	revision wire.Revision

	decoder wire.Decoder
	encoder wire.Encoder
	mech    security.Mechanism

	legacy       bool // v0/v1/v2 path: no mechanism, plain passthrough
	peerIdentity []byte

	pendingDecoded *wire.Msg // retried message during push backpressure (§7)

	pendingPing     bool
	pendingPongCtx  []byte
	pendingPong     bool

	inputStopped  bool
	outputStopped bool

	handshaking    bool
	connectReached bool
	plugged        bool
	destroyed      bool

	handshakeTimerArmed      bool
	heartbeatIvlTimerArmed   bool
	heartbeatTimeoutArmed    bool
	heartbeatTTLArmed        bool

	zapWaiting bool

	phantomSubscriptionPending bool // §9 open question: v0 PUB/XPUB only
}

// NewEngine constructs an Engine over conn, driven by sess, configured by
// opts. It does not register with the reactor; call Plug for that.
func NewEngine(conn Transport, sess session.Session, opts ...Option) (*Engine, error) {
	cfg := applyConfig(opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, conn: conn, sess: sess}, nil
}

// socketTypeCode maps a ZMTP socket-type name to its greeting wire code.
// The engine itself is socket-type agnostic (§1 Non-goals); this table
// only feeds the v1/v2 greeting tail and is harmless filler for v3, which
// carries the name as a READY property string instead.
var socketTypeCodes = map[string]byte{
	"PAIR": 0, "PUB": 1, "SUB": 2, "REQ": 3, "REP": 4,
	"DEALER": 5, "ROUTER": 6, "PULL": 7, "PUSH": 8,
	"XPUB": 9, "XSUB": 10, "STREAM": 11,
}

func socketTypeCode(name string) byte { return socketTypeCodes[name] }

// selfAddressMetadata publishes this engine's local transport address under
// the configured property name (§6.3 WithSelfAddressPropertyName), nil if
// unset. Attached to the one-shot identity/CREDENTIAL frame since that's
// the single point every pipeline phase already funnels connection-level
// metadata through.
func (e *Engine) selfAddressMetadata() *wire.Metadata {
	if e.cfg.selfAddressPropertyName == "" {
		return nil
	}
	addr := e.conn.LocalAddr()
	if addr == nil {
		return nil
	}
	md := wire.Metadata{e.cfg.selfAddressPropertyName: addr.String()}
	return &md
}

// Plug registers the engine with its reactor and session: once only, per
// §3 Lifecycle ("Plug -> unplug is strictly once").
func (e *Engine) Plug() error {
	if e.plugged || e.destroyed {
		return ErrAlreadyPlugged
	}
	e.plugged = true

	if e.cfg.rawSocket {
		return e.plugRaw()
	}
	return e.plugGreeting()
}

func (e *Engine) plugRaw() error {
	e.phase = phaseReady
	e.legacy = true
	e.decoder = wire.NewRawDecoder()
	e.encoder = wire.NewRawEncoder()
	e.connectReached = true
	e.conn.SetPollIn()
	// §8 scenario 6: one 0-length message is pushed to session on plug.
	e.sess.PushMsg(wire.Msg{})
	e.armHeartbeatIntervalIfReady()
	return nil
}

func (e *Engine) plugGreeting() error {
	e.handshaking = true
	e.phase = phaseGreeting
	e.greeting = wire.NewGreeting(len(e.cfg.identity), socketTypeCode(e.cfg.socket), e.cfg.mechanism.String(), e.cfg.asServer)
	e.conn.SetPollIn()
	e.flushGreetingSend()
	if e.cfg.handshakeIvl > 0 {
		e.conn.AddTimer(e.cfg.handshakeIvl, timerHandshake)
		e.handshakeTimerArmed = true
	}
	return nil
}

// Unplug cancels all timers, deregisters from the reactor, and detaches
// the session (§3, §5 Cancellation). Idempotent.
func (e *Engine) Unplug() {
	if !e.plugged {
		return
	}
	e.plugged = false
	e.cancelAllTimers()
	e.conn.ResetPollIn()
	e.conn.ResetPollOut()
	e.sess = nil
}

// Destroy releases the codecs, encoder, and mechanism. Safe to call after
// Unplug; the engine must not be used afterward.
func (e *Engine) Destroy() {
	e.Unplug()
	e.destroyed = true
	e.decoder = nil
	e.encoder = nil
	e.mech = nil
}

func (e *Engine) cancelAllTimers() {
	if e.handshakeTimerArmed {
		e.conn.CancelTimer(timerHandshake)
		e.handshakeTimerArmed = false
	}
	if e.heartbeatIvlTimerArmed {
		e.conn.CancelTimer(timerHeartbeatIvl)
		e.heartbeatIvlTimerArmed = false
	}
	if e.heartbeatTimeoutArmed {
		e.conn.CancelTimer(timerHeartbeatTimeout)
		e.heartbeatTimeoutArmed = false
	}
	if e.heartbeatTTLArmed {
		e.conn.CancelTimer(timerHeartbeatTTL)
		e.heartbeatTTLArmed = false
	}
}

// fail reports a terminal error kind to the session and tears the engine
// down (§7 Fatal: "any error kind above triggers unplug + destroy").
func (e *Engine) fail(kind session.ErrorKind, cause error) {
	if e.sess == nil {
		return
	}
	if kind != session.ErrorConnection && !e.connectReached {
		e.cfg.metrics.IncrementHandshakeFailure()
	}
	sess := e.sess
	reached := e.connectReached
	e.Destroy()
	sess.EngineError(reached, kind, newEngineError(kind, reached, cause))
}

// --- reactor.Handlers ---

// Readable is invoked by the reactor when new input may be available
// (§4.3 ingress).
func (e *Engine) Readable() {
	if !e.plugged {
		return
	}
	switch e.phase {
	case phaseGreeting:
		e.greetingReadable()
	default:
		e.readFrames()
	}
	if e.sess != nil {
		e.sess.Flush()
	}
}

// Writable is invoked by the reactor when the engine may transmit
// (§4.3 egress).
func (e *Engine) Writable() {
	if !e.plugged {
		return
	}
	switch e.phase {
	case phaseGreeting:
		e.flushGreetingSend()
	case phaseIdentity, phaseHandshake, phaseReady:
		e.writableDrain()
	}
}

// TimerFired is invoked by the reactor when a registered timer expires
// (§4.6).
func (e *Engine) TimerFired(id int) {
	if !e.plugged {
		return
	}
	switch id {
	case timerHandshake:
		e.handshakeTimerArmed = false
		if e.handshaking {
			e.fail(session.ErrorTimeout, ErrHandshakeTimedOut)
		}
	case timerHeartbeatIvl:
		e.heartbeatIvlTimerArmed = false
		e.onHeartbeatIntervalFired()
	case timerHeartbeatTimeout:
		e.heartbeatTimeoutArmed = false
		e.cfg.metrics.IncrementHeartbeatTimeout()
		e.fail(session.ErrorTimeout, ErrHeartbeatTimedOut)
	case timerHeartbeatTTL:
		e.heartbeatTTLArmed = false
		e.cfg.metrics.IncrementHeartbeatTimeout()
		e.fail(session.ErrorTimeout, ErrPeerHeartbeatExpired)
	case timerZAPPoll:
		e.onZAPPollTimer()
	}
}

// --- greeting phase (§4.1) ---

func (e *Engine) flushGreetingSend() {
	pending := e.greeting.PendingSend()
	if len(pending) == 0 {
		return
	}
	n, err := e.conn.Write(pending)
	if n > 0 {
		e.greeting.MarkSent(n)
		e.cfg.metrics.IncrementBytesSent(int64(n))
	}
	if err != nil {
		e.fail(session.ErrorConnection, errors.Join(ErrSocketIO, err))
	}
}

func (e *Engine) greetingReadable() {
	for !e.greeting.Resolved() {
		buf := e.greeting.NeedRecv()
		if len(buf) == 0 {
			break
		}
		n, err := e.conn.Read(buf)
		if err != nil {
			if errors.Is(err, reactor.ErrWouldBlock) {
				return
			}
			e.fail(session.ErrorConnection, errors.Join(ErrSocketIO, err))
			return
		}
		if n == 0 {
			e.fail(session.ErrorConnection, ErrPeerClosed)
			return
		}
		e.cfg.metrics.IncrementBytesReceived(int64(n))
		e.greeting.Feed(n)
		e.flushGreetingSend()
	}
	if e.greeting.Resolved() {
		e.finalizeGreeting()
	}
}

func (e *Engine) finalizeGreeting() {
	e.revision = e.greeting.Revision()

	if e.sess != nil && e.sess.ZAPEnabled() && e.revision != wire.RevisionV3 {
		e.fail(session.ErrorProtocol, ErrZAPRequiresV3)
		return
	}

	switch e.revision {
	case wire.RevisionV3:
		e.decoder = wire.NewV2Decoder(e.cfg.maxMsgSize)
		e.encoder = wire.NewV2Encoder()
		mech, err := e.buildMechanism()
		if err != nil {
			e.fail(session.ErrorProtocol, err)
			return
		}
		e.mech = mech
		e.phase = phaseHandshake
		e.feedGreetingTail()
		e.driveHandshake()

	case wire.RevisionV2:
		e.decoder = wire.NewV2Decoder(e.cfg.maxMsgSize)
		e.encoder = wire.NewV2Encoder()
		e.legacy = true
		e.enterIdentityPhase()

	case wire.RevisionV1:
		e.decoder = wire.NewV1Decoder(e.cfg.maxMsgSize)
		e.encoder = wire.NewV1Encoder()
		e.legacy = true
		e.enterIdentityPhase()

	default: // RevisionV0
		d := wire.NewV1Decoder(e.cfg.maxMsgSize)
		if length, flags, ok := e.greeting.V0Primed(); ok {
			_ = d.Prime(length, flags)
		}
		e.decoder = d
		e.encoder = wire.NewV1Encoder()
		e.legacy = true
		// §9 open question, resolved v0-only: a v0 peer can't express a SUB
		// socket option over the wire, so PUB/XPUB inject one phantom
		// subscribe-all frame once the identity exchange completes.
		if e.cfg.socket == "PUB" || e.cfg.socket == "XPUB" {
			e.phantomSubscriptionPending = true
		}
		e.enterIdentityPhase()
		if replay := e.greeting.V0Replay(); len(replay) > 0 {
			e.decodeLoop(replay)
		}
	}
}

func (e *Engine) feedGreetingTail() {
	if tail := e.greeting.Tail(); len(tail) > 0 {
		e.decodeLoop(tail)
	}
}

func (e *Engine) buildMechanism() (security.Mechanism, error) {
	zap := &sessionZAPPort{sess: e.sess}
	switch e.cfg.mechanism {
	case MechanismNull:
		return security.NewNull(e.cfg.asServer, e.cfg.socket, e.cfg.identity, zap), nil
	case MechanismPlain:
		if e.cfg.asServer {
			return security.NewPlainServer(e.cfg.asServer, e.cfg.socket, e.cfg.identity, zap), nil
		}
		return security.NewPlainClient(e.cfg.plainUsername, e.cfg.plainPassword, e.cfg.socket, e.cfg.identity), nil
	case MechanismCurve:
		if e.cfg.asServer {
			return security.NewCurveServer(e.cfg.curveIdentity, e.cfg.asServer, e.cfg.socket, e.cfg.identity, zap)
		}
		return security.NewCurveClient(e.cfg.curveIdentity, e.cfg.curvePeerPublicKey, e.cfg.socket, e.cfg.identity)
	case MechanismGSSAPI:
		return security.NewGSSAPI(), nil
	}
	return nil, ErrUnsupportedMechanismConfig
}

// --- v0/v1/v2 identity exchange (§4.4 "Pre-greeting"/"v0/v1/v2 after greeting") ---

func (e *Engine) enterIdentityPhase() {
	e.phase = phaseIdentity
	e.writableDrain()
}

// readFrames repeats non-blocking socket reads into the decoder's buffer
// until no buffered bytes remain, decoding whatever frames they yield
// (§4.3 ingress), shared by the identity, handshake, and ready phases --
// they differ only in how onDecoded dispatches a completed frame. In raw
// mode a peer close pushes the 0-length terminator before failing.
func (e *Engine) readFrames() {
	for e.plugged && !e.inputStopped {
		buf := e.decoder.Buffer()
		n, err := e.conn.Read(buf)
		if err != nil && errors.Is(err, reactor.ErrWouldBlock) {
			return
		}
		if err != nil || n == 0 {
			if e.cfg.rawSocket {
				e.sess.PushMsg(wire.ZeroLengthTerminator())
			}
			if err != nil {
				e.fail(session.ErrorConnection, errors.Join(ErrSocketIO, err))
			} else {
				e.fail(session.ErrorConnection, ErrPeerClosed)
			}
			return
		}
		e.cfg.metrics.IncrementBytesReceived(int64(n))
		e.decodeLoop(buf[:n])
	}
}

func (e *Engine) decodeLoop(input []byte) {
	for len(input) > 0 {
		status, processed, err := e.decoder.Decode(input)
		input = input[processed:]
		switch status {
		case wire.Decoded:
			if !e.onDecoded(e.decoder.Msg()) {
				return
			}
		case wire.MoreData:
			return
		case wire.DecodeError:
			if err == nil {
				err = ErrFramingViolation
			}
			e.fail(session.ErrorProtocol, err)
			return
		}
	}
}

// onDecoded dispatches one fully-decoded frame through the phase's
// process_msg slot (§4.4). Returns false if the engine tore itself down
// or paused mid-loop and further frames in input must not be processed.
func (e *Engine) onDecoded(m wire.Msg) bool {
	switch e.phase {
	case phaseIdentity:
		e.peerIdentity = append([]byte(nil), m.Body...)
		e.connectReached = true
		e.handshaking = false
		e.phase = phaseReady
		e.armHeartbeatIntervalIfReady()
		ok := e.pushToSession(wire.Msg{Body: e.peerIdentity, Flags: wire.FlagIdentity, Metadata: e.selfAddressMetadata()})
		if ok && e.phantomSubscriptionPending {
			e.phantomSubscriptionPending = false
			// subscribe-all: a single 0x01 byte with no topic (§9).
			ok = e.pushToSession(wire.Msg{Body: []byte{1}})
		}
		return ok

	case phaseHandshake:
		return e.onHandshakeCommand(m)

	case phaseReady:
		decoded := m
		if e.mech != nil {
			dm, err := e.mech.Decode(m)
			if err != nil {
				e.fail(session.ErrorProtocol, err)
				return false
			}
			decoded = dm
			e.onAnyInboundFrame()
			if decoded.Command() {
				return e.onCommandFrame(decoded)
			}
		}
		return e.pushToSession(decoded)
	}
	return true
}

func (e *Engine) pushToSession(m wire.Msg) bool {
	if e.sess == nil {
		return false
	}
	if e.pendingDecoded != nil {
		return false // a retry is already queued; caller must stop
	}
	if e.sess.PushMsg(m) {
		e.cfg.metrics.IncrementMessagesReceived()
		return true
	}
	// §7 local recovery: EAGAIN sets input_stopped and parks the frame.
	cp := m
	e.pendingDecoded = &cp
	e.inputStopped = true
	e.conn.ResetPollIn()
	return false
}

// RestartInput is called by the session once it can accept again (§4.3
// "Restart"); it retries the parked frame and re-arms readable polling.
func (e *Engine) RestartInput() {
	if !e.inputStopped {
		return
	}
	if e.pendingDecoded != nil {
		m := *e.pendingDecoded
		e.pendingDecoded = nil
		if !e.sess.PushMsg(m) {
			e.pendingDecoded = &m
			return
		}
		e.cfg.metrics.IncrementMessagesReceived()
	}
	if e.phantomSubscriptionPending {
		// The identity frame was parked before the phantom frame could
		// follow it; push the phantom frame now that the identity is through.
		e.phantomSubscriptionPending = false
		phantom := wire.Msg{Body: []byte{1}}
		if !e.sess.PushMsg(phantom) {
			e.pendingDecoded = &phantom
			return
		}
		e.cfg.metrics.IncrementMessagesReceived()
	}
	e.inputStopped = false
	e.conn.SetPollIn()
	e.Readable() // speculative re-read (§4.3)
}

// --- v3 handshake phase (§4.5) ---

// driveHandshake pumps NextHandshakeCommand until the mechanism has
// nothing queued or reaches a terminal status, transmitting each command
// as it's produced.
func (e *Engine) driveHandshake() {
	for {
		cmd, ok := e.mech.NextHandshakeCommand()
		if !ok {
			break
		}
		e.transmit(cmd)
		if e.mech.Status() != security.StatusHandshaking {
			break
		}
	}
	switch e.mech.Status() {
	case security.StatusReady:
		e.enterReadyPhase()
	case security.StatusErrored:
		e.fail(session.ErrorProtocol, ErrMechanismRejected)
	}
}

// zapReplyWaiter is implemented by mechanisms that can park mid-handshake
// on an outstanding ZAP request (NULL, PLAIN, CURVE) and resume once the reply
// arrives, whether that happens synchronously or later (§9 "ZAP
// blocking... without duplicating state transitions").
type zapReplyWaiter interface {
	ProcessZAPReply() error
}

// zapPollInterval is how often the engine retries an asynchronous ZAP
// reply while parked in EXPECT_ZAP_REPLY; the session/ZAPPort contract
// has no push-style "reply ready" callback (§6.2), so polling on a timer
// is the idiomatic translation.
const zapPollInterval = 20 * time.Millisecond

const timerZAPPoll = 100 // distinct from the heartbeat/handshake timer ids

func (e *Engine) onHandshakeCommand(m wire.Msg) bool {
	err := e.mech.ProcessHandshakeCommand(m)
	if err != nil {
		if errors.Is(err, security.ErrZAPPending) {
			e.zapWaiting = true
			e.inputStopped = true
			e.conn.ResetPollIn()
			e.conn.AddTimer(zapPollInterval, timerZAPPoll)
			return false
		}
		e.fail(session.ErrorProtocol, err)
		return false
	}
	e.driveHandshake()
	return e.plugged // driveHandshake may have torn the engine down
}

func (e *Engine) onZAPPollTimer() {
	waiter, ok := e.mech.(zapReplyWaiter)
	if !ok {
		return
	}
	err := waiter.ProcessZAPReply()
	if err != nil {
		if errors.Is(err, security.ErrZAPPending) {
			e.conn.AddTimer(zapPollInterval, timerZAPPoll)
			return
		}
		e.fail(session.ErrorProtocol, err)
		return
	}
	e.zapWaiting = false
	e.inputStopped = false
	e.conn.SetPollIn()
	e.driveHandshake()
}

func (e *Engine) enterReadyPhase() {
	e.phase = phaseReady
	e.handshaking = false
	e.connectReached = true
	if e.handshakeTimerArmed {
		e.conn.CancelTimer(timerHandshake)
		e.handshakeTimerArmed = false
	}
	// §4.4 write_credential: push the mechanism-supplied user id once,
	// before any real inbound frame is processed.
	if uid := e.mech.UserID(); len(uid) > 0 {
		e.pushToSession(wire.Msg{Body: uid, Flags: wire.FlagCredential, Metadata: e.selfAddressMetadata()})
	}
	e.armHeartbeatIntervalIfReady()
	e.conn.SetPollOut()
}

// onCommandFrame handles a decoded, mechanism-unsealed COMMAND frame
// during phaseReady: PING/PONG heartbeat traffic (§4.6). Any other
// command name post-handshake is a protocol violation.
func (e *Engine) onCommandFrame(m wire.Msg) bool {
	name, n, ok := wire.ReadShortString(m.Body)
	if !ok {
		e.fail(session.ErrorProtocol, ErrFramingViolation)
		return false
	}
	switch name {
	case "PING":
		ttl, ctx, ok := parsePingBody(m.Body[n:])
		if !ok {
			e.fail(session.ErrorProtocol, ErrFramingViolation)
			return false
		}
		if ttl > 0 {
			e.armHeartbeatTTL(time.Duration(ttl) * 100 * time.Millisecond)
		}
		e.pendingPong = true
		e.pendingPongCtx = ctx
		e.conn.SetPollOut()
		return true
	case "PONG":
		return true
	default:
		e.fail(session.ErrorProtocol, fmt.Errorf("%w: unexpected command %q after handshake", ErrUnexpectedCommand, name))
		return false
	}
}

func (e *Engine) onAnyInboundFrame() {
	if e.heartbeatTimeoutArmed {
		e.conn.CancelTimer(timerHeartbeatTimeout)
		e.heartbeatTimeoutArmed = false
	}
	if e.heartbeatTTLArmed {
		e.conn.CancelTimer(timerHeartbeatTTL)
		e.heartbeatTTLArmed = false
	}
}

// --- egress (§4.3 writable callback, §4.4 next_msg slots) ---

func (e *Engine) writableDrain() {
	switch e.phase {
	case phaseIdentity:
		e.transmit(wire.Msg{Body: e.cfg.identity, Flags: wire.FlagIdentity})
		e.conn.ResetPollOut()
	case phaseReady:
		e.pullAndEncode()
	}
}

func (e *Engine) pullAndEncode() {
	if e.pendingPing {
		e.pendingPing = false
		e.sendPing()
	}
	if e.pendingPong {
		e.pendingPong = false
		ctx := e.pendingPongCtx
		e.pendingPongCtx = nil
		e.sendCommand(wire.Msg{Body: buildPong(ctx), Flags: wire.FlagCommand})
	}

	sent := 0
	for e.sess != nil && sent < e.cfg.egressBatch {
		m, ok := e.sess.PullMsg()
		if !ok {
			break
		}
		e.sendCommand(m)
		if !e.plugged {
			return
		}
		e.cfg.metrics.IncrementMessagesSent()
		sent++
	}
	if sent == 0 {
		e.outputStopped = true
		e.conn.ResetPollOut()
	}
}

// sendCommand applies the mechanism transform (if any) and transmits m --
// used for both application messages and synthesized PING/PONG/CREDENTIAL
// frames, which all travel through the same per-frame transform (§4.5
// "Each MESSAGE frame" applies equally to command frames once READY).
func (e *Engine) sendCommand(m wire.Msg) {
	if e.mech != nil {
		em, err := e.mech.Encode(m)
		if err != nil {
			e.fail(session.ErrorProtocol, err)
			return
		}
		m = em
	}
	e.transmit(m)
}

func (e *Engine) sendPing() {
	body := buildPing(e.cfg.heartbeatTTL, e.cfg.heartbeatContext)
	e.sendCommand(wire.Msg{Body: body, Flags: wire.FlagCommand})
	if e.plugged && e.cfg.heartbeatTimeout > 0 {
		e.armHeartbeatTimeout()
	}
}

// transmit encodes m through the connection's wire encoder and writes the
// result in full, in chunks of at most the configured send-buffer size;
// the chunk buffer is allocated on each call.
func (e *Engine) transmit(m wire.Msg) {
	e.encoder.LoadMsg(m)
	buf := make([]byte, e.cfg.sndbuf)
	for {
		n := e.encoder.Encode(buf, len(buf))
		if n == 0 {
			break
		}
		if _, err := e.writeAll(buf[:n]); err != nil {
			return
		}
	}
	e.encoder.Encoded()
}

func (e *Engine) writeAll(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := e.conn.Write(p[total:])
		total += n
		if n > 0 {
			e.cfg.metrics.IncrementBytesSent(int64(n))
		}
		if err != nil {
			e.fail(session.ErrorConnection, errors.Join(ErrSocketIO, err))
			return total, err
		}
	}
	return total, nil
}

// --- heartbeats (§4.6) ---

func (e *Engine) armHeartbeatIntervalIfReady() {
	if e.cfg.heartbeatIvl > 0 && !e.heartbeatIvlTimerArmed {
		e.conn.AddTimer(e.cfg.heartbeatIvl, timerHeartbeatIvl)
		e.heartbeatIvlTimerArmed = true
	}
}

func (e *Engine) onHeartbeatIntervalFired() {
	e.pendingPing = true
	e.conn.SetPollOut()
	e.armHeartbeatIntervalIfReady()
}

func (e *Engine) armHeartbeatTimeout() {
	if e.heartbeatTimeoutArmed {
		e.conn.CancelTimer(timerHeartbeatTimeout)
	}
	e.conn.AddTimer(e.cfg.heartbeatTimeout, timerHeartbeatTimeout)
	e.heartbeatTimeoutArmed = true
}

func (e *Engine) armHeartbeatTTL(d time.Duration) {
	if e.heartbeatTTLArmed {
		e.conn.CancelTimer(timerHeartbeatTTL)
	}
	e.conn.AddTimer(d, timerHeartbeatTTL)
	e.heartbeatTTLArmed = true
}

// RestartOutput re-arms writable polling and performs a speculative write
// (§4.3 latency optimization for request/reply workloads).
func (e *Engine) RestartOutput() {
	e.outputStopped = false
	e.conn.SetPollOut()
}
