package security

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/atsika/zmtpengine/wire"
)

// Nonce prefixes, each exactly 16 or 8 ASCII bytes, per §4.5/§6.1.
const (
	noncePrefixHello     = "CurveZMQHELLO---"
	noncePrefixInitiate  = "CurveZMQINITIATE"
	noncePrefixReady     = "CurveZMQREADY---"
	noncePrefixMessageC  = "CurveZMQMESSAGEC" // client -> server
	noncePrefixMessageS  = "CurveZMQMESSAGES" // server -> client
	noncePrefixWelcome   = "WELCOME-"
	noncePrefixVouch     = "VOUCH---"
	noncePrefixCookie    = "COOKIE--"
)

func nonceCounter(prefix16 string, counter uint64) [24]byte {
	var n [24]byte
	copy(n[:16], prefix16)
	binary.BigEndian.PutUint64(n[16:], counter)
	return n
}

func nonceFixed(prefix8 string, tail [16]byte) [24]byte {
	var n [24]byte
	copy(n[:8], prefix8)
	copy(n[8:], tail[:])
	return n
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

type curvePhase int

const (
	curveExpectHello curvePhase = iota
	curveSendWelcome
	curveExpectInitiate
	curveExpectZAPReply
	curveSendReady
	curveSendError
	curveConnected
	curveErrorSent

	// client-side phases, mirroring the server state machine against the
	// same wire formats (§6.1 is symmetric enough to derive these; the
	// spec names only the server explicitly in §4.5).
	curveSendHello
	curveExpectWelcome
	curveSendInitiate
	curveExpectReady
)

// Curve implements the CURVE mechanism's server state machine verbatim
// per §4.5, plus a client counterpart derived from the same wire formats
// (§6.1) so the pair can be driven end to end in tests without an
// external ZMTP peer.
type Curve struct {
	asServer bool
	phase    curvePhase
	zap      ZAPPort

	socket   string
	identity []byte

	longPub, longSec   [32]byte
	shortPub, shortSec [32]byte
	peerShortPub       [32]byte
	peerLongPub        [32]byte // server only, learned from INITIATE vouch

	cookieKey   [32]byte
	cookieNonce [16]byte

	cnNonce     uint64 // our outgoing post-handshake message counter
	cnPeerNonce uint64 // highest peer message counter accepted

	welcomeNonce        [16]byte // client: nonce16 used in the WELCOME we decrypted, for bookkeeping only
	welcomeCookieCipher []byte   // client: opaque cookie ciphertext to echo back in INITIATE

	userID     []byte
	statusCode string
}

// CurveIdentity is a long-term CURVE keypair.
type CurveIdentity struct {
	Public, Secret [32]byte
}

// GenerateCurveIdentity creates a fresh long-term CURVE keypair.
func GenerateCurveIdentity() (CurveIdentity, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return CurveIdentity{}, fmt.Errorf("security: generate curve identity: %w", err)
	}
	return CurveIdentity{Public: *pub, Secret: *sec}, nil
}

// NewCurveServer constructs the server side of a CURVE handshake. zap may
// be nil to accept every peer without authentication.
func NewCurveServer(identity CurveIdentity, asServer bool, socket string, ownIdentity []byte, zap ZAPPort) (*Curve, error) {
	c := &Curve{
		asServer: asServer,
		phase:    curveExpectHello,
		zap:      zap,
		socket:   socket,
		identity: ownIdentity,
		longPub:  identity.Public,
		longSec:  identity.Secret,
	}
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("security: generate curve ephemeral key: %w", err)
	}
	c.shortPub, c.shortSec = *pub, *sec
	if _, err := rand.Read(c.cookieKey[:]); err != nil {
		return nil, fmt.Errorf("security: generate cookie key: %w", err)
	}
	return c, nil
}

// NewCurveClient constructs the client side, which must know the server's
// long-term public key in advance.
func NewCurveClient(clientIdentity CurveIdentity, serverLongPub [32]byte, socket string, ownIdentity []byte) (*Curve, error) {
	c := &Curve{
		phase:       curveSendHello,
		socket:      socket,
		identity:    ownIdentity,
		longPub:     clientIdentity.Public,
		longSec:     clientIdentity.Secret,
		peerLongPub: serverLongPub,
	}
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("security: generate curve ephemeral key: %w", err)
	}
	c.shortPub, c.shortSec = *pub, *sec
	return c, nil
}

func (c *Curve) Name() string { return "CURVE" }

func (c *Curve) Status() Status {
	switch c.phase {
	case curveConnected:
		return StatusReady
	case curveErrorSent:
		return StatusErrored
	default:
		return StatusHandshaking
	}
}

func (c *Curve) UserID() []byte { return c.userID }

// NextHandshakeCommand implements both directions of §4.5: HELLO/INITIATE
// for the client, WELCOME/READY/ERROR for the server.
func (c *Curve) NextHandshakeCommand() (wire.Msg, bool) {
	switch c.phase {
	case curveSendHello:
		c.phase = curveExpectWelcome
		return wire.Msg{Body: c.buildHello(), Flags: wire.FlagCommand}, true

	case curveSendWelcome:
		body, err := c.buildWelcome()
		if err != nil {
			c.phase = curveSendError
			c.statusCode = ""
			return c.NextHandshakeCommand()
		}
		c.phase = curveExpectInitiate
		return wire.Msg{Body: body, Flags: wire.FlagCommand}, true

	case curveSendInitiate:
		body, err := c.buildInitiate()
		if err != nil {
			c.phase = curveErrorSent
			return wire.Msg{}, false
		}
		c.phase = curveExpectReady
		return wire.Msg{Body: body, Flags: wire.FlagCommand}, true

	case curveSendReady:
		body, err := c.buildReady()
		if err != nil {
			c.phase = curveErrorSent
			return wire.Msg{}, false
		}
		c.phase = curveConnected
		return wire.Msg{Body: body, Flags: wire.FlagCommand}, true

	case curveSendError:
		c.phase = curveErrorSent
		return wire.Msg{Body: encodeErrorBody(c.statusCode), Flags: wire.FlagCommand}, true
	}
	return wire.Msg{}, false
}

func (c *Curve) ProcessHandshakeCommand(cmd wire.Msg) error {
	name, n, ok := wire.ReadShortString(cmd.Body)
	if !ok {
		return fmt.Errorf("%w: malformed CURVE command", ErrHandshakeViolation)
	}
	rest := cmd.Body[n:]

	switch name {
	case "HELLO":
		return c.processHello(rest)
	case "WELCOME":
		return c.processWelcome(rest)
	case "INITIATE":
		return c.processInitiate(rest)
	case "READY":
		return c.processReady(rest)
	case "ERROR":
		return fmt.Errorf("%w: peer sent CURVE ERROR", ErrCryptoFailure)
	}
	return fmt.Errorf("%w: unknown CURVE command %q", ErrHandshakeViolation, name)
}

// --- server side ---

func (c *Curve) processHello(body []byte) error {
	if c.phase != curveExpectHello {
		return fmt.Errorf("%w: unexpected HELLO", ErrHandshakeViolation)
	}
	// version(2) || antiAmplification(72) || C'(32) || nonce8(8) || box80(80)
	if len(body) < 2+72+32+8+80 {
		return fmt.Errorf("%w: short HELLO", ErrCryptoFailure)
	}
	off := 2 + 72
	copy(c.peerShortPub[:], body[off:off+32])
	off += 32
	peerNonce := binary.BigEndian.Uint64(body[off : off+8])
	off += 8
	boxed := body[off : off+80]

	nonce := nonceCounter(noncePrefixHello, peerNonce)
	plain, okOpen := box.Open(nil, boxed, &nonce, &c.peerShortPub, &c.longSec)
	if !okOpen || !isAllZero(plain) {
		c.phase = curveSendError
		c.statusCode = ""
		return fmt.Errorf("%w: HELLO box failed to open", ErrCryptoFailure)
	}
	c.cnPeerNonce = peerNonce
	c.phase = curveSendWelcome
	return nil
}

func (c *Curve) buildWelcome() ([]byte, error) {
	if _, err := rand.Read(c.cookieNonce[:]); err != nil {
		return nil, err
	}
	cookiePlain := append(append([]byte{}, c.peerShortPub[:]...), c.shortSec[:]...)
	cookieN := nonceFixed(noncePrefixCookie, c.cookieNonce)
	cookieCipher := secretbox.Seal(nil, cookiePlain, &cookieN, &c.cookieKey)

	plain := make([]byte, 0, 32+16+80)
	plain = append(plain, c.shortPub[:]...)
	plain = append(plain, c.cookieNonce[:]...)
	plain = append(plain, cookieCipher...)

	var random16 [16]byte
	if _, err := rand.Read(random16[:]); err != nil {
		return nil, err
	}
	n := nonceFixed(noncePrefixWelcome, random16)
	boxed := box.Seal(nil, plain, &n, &c.peerShortPub, &c.longSec)

	out := wire.ShortString("WELCOME")
	out = append(out, random16[:]...)
	out = append(out, boxed...)
	return out, nil
}

func (c *Curve) processInitiate(body []byte) error {
	if c.phase != curveExpectInitiate {
		return fmt.Errorf("%w: unexpected INITIATE", ErrHandshakeViolation)
	}
	if len(body) < 16+80+8 {
		return fmt.Errorf("%w: short INITIATE", ErrCryptoFailure)
	}
	var cookieNonce [16]byte
	copy(cookieNonce[:], body[:16])
	cookieCipher := body[16:96]
	off := 96
	peerNonce := binary.BigEndian.Uint64(body[off : off+8])
	off += 8
	boxed := body[off:]

	cookieN := nonceFixed(noncePrefixCookie, cookieNonce)
	cookiePlain, okOpen := secretbox.Open(nil, cookieCipher, &cookieN, &c.cookieKey)
	if !okOpen || len(cookiePlain) != 64 {
		c.phase = curveSendError
		return fmt.Errorf("%w: cookie failed to open", ErrCryptoFailure)
	}
	var gotShortPub, gotShortSec [32]byte
	copy(gotShortPub[:], cookiePlain[:32])
	copy(gotShortSec[:], cookiePlain[32:])
	if gotShortPub != c.peerShortPub || gotShortSec != c.shortSec {
		c.phase = curveSendError
		return fmt.Errorf("%w: cookie mismatch", ErrCryptoFailure)
	}

	innerN := nonceCounter(noncePrefixInitiate, peerNonce)
	inner, okOpen := box.Open(nil, boxed, &innerN, &c.peerShortPub, &c.shortSec)
	if !okOpen || len(inner) < 32+16+48 {
		c.phase = curveSendError
		return fmt.Errorf("%w: INITIATE box failed to open", ErrCryptoFailure)
	}
	copy(c.peerLongPub[:], inner[:32])
	var vouchNonce16 [16]byte
	copy(vouchNonce16[:], inner[32:48])
	vouchBox := inner[48:96]
	metadata := inner[96:]

	vouchN := nonceFixed(noncePrefixVouch, vouchNonce16)
	vouchPlain, okOpen := box.Open(nil, vouchBox, &vouchN, &c.peerLongPub, &c.shortSec)
	if !okOpen || len(vouchPlain) != 32 {
		c.phase = curveSendError
		return fmt.Errorf("%w: vouch box failed to open", ErrCryptoFailure)
	}
	var vouchedShortPub [32]byte
	copy(vouchedShortPub[:], vouchPlain)
	if vouchedShortPub != c.peerShortPub {
		c.phase = curveSendError
		return fmt.Errorf("%w: vouch does not match short-term key", ErrCryptoFailure)
	}

	if peerNonce <= c.cnPeerNonce {
		c.phase = curveSendError
		return fmt.Errorf("%w: INITIATE nonce did not increase", ErrNonceReplay)
	}
	c.cnPeerNonce = peerNonce

	if _, err := wire.DecodeMetadata(metadata); err != nil {
		c.phase = curveSendError
		return fmt.Errorf("%w: malformed INITIATE metadata", ErrHandshakeViolation)
	}

	return c.authenticateZAP()
}

func (c *Curve) authenticateZAP() error {
	if c.zap == nil || !c.zap.Enabled() {
		c.phase = curveSendReady
		return nil
	}
	if err := c.zap.Connect(); err != nil {
		return err
	}
	req := ZAPRequest{
		Identity:    c.identity,
		Mechanism:   "CURVE",
		Credentials: [][]byte{c.peerLongPub[:]},
	}
	if err := c.zap.WriteRequest(req); err != nil {
		return err
	}
	reply, ok, err := c.zap.ReadReply()
	if err != nil {
		return err
	}
	if !ok {
		c.phase = curveExpectZAPReply
		return ErrZAPPending
	}
	return c.applyZAPReply(reply)
}

// ProcessZAPReply mirrors Plain.ProcessZAPReply: the engine calls it for a
// ZAP reply that was still pending when ProcessHandshakeCommand returned.
// A reply available at once is applied inside ProcessHandshakeCommand;
// both paths share applyZAPReply (§9 ZAP blocking).
func (c *Curve) ProcessZAPReply() error {
	if c.phase != curveExpectZAPReply {
		return fmt.Errorf("%w: no ZAP reply pending", ErrHandshakeViolation)
	}
	reply, ok, err := c.zap.ReadReply()
	if err != nil {
		return err
	}
	if !ok {
		return ErrZAPPending
	}
	return c.applyZAPReply(reply)
}

func (c *Curve) applyZAPReply(reply *ZAPReply) error {
	if reply.StatusCode != "200" {
		c.statusCode = reply.StatusCode
		c.phase = curveSendError
		return nil
	}
	c.userID = reply.UserID
	c.phase = curveSendReady
	return nil
}

func (c *Curve) buildReady() ([]byte, error) {
	metadata := metadataOnly(c.socket, c.identity)

	c.cnNonce++
	nonce := nonceCounter(noncePrefixReady, c.cnNonce)
	boxed := box.Seal(nil, metadata, &nonce, &c.peerShortPub, &c.shortSec)

	out := wire.ShortString("READY")
	var nonce8 [8]byte
	binary.BigEndian.PutUint64(nonce8[:], c.cnNonce)
	out = append(out, nonce8[:]...)
	out = append(out, boxed...)
	return out, nil
}

func (c *Curve) processReady(body []byte) error {
	if c.phase != curveExpectReady {
		return fmt.Errorf("%w: unexpected READY", ErrHandshakeViolation)
	}
	if len(body) < 8 {
		return fmt.Errorf("%w: short READY", ErrCryptoFailure)
	}
	peerNonce := binary.BigEndian.Uint64(body[:8])
	boxed := body[8:]
	nonce := nonceCounter(noncePrefixReady, peerNonce)
	metadata, okOpen := box.Open(nil, boxed, &nonce, &c.peerShortPub, &c.shortSec)
	if !okOpen {
		return fmt.Errorf("%w: READY box failed to open", ErrCryptoFailure)
	}
	if peerNonce <= c.cnPeerNonce {
		return fmt.Errorf("%w: READY nonce did not increase", ErrNonceReplay)
	}
	c.cnPeerNonce = peerNonce
	if _, err := wire.DecodeMetadata(metadata); err != nil {
		return fmt.Errorf("%w: malformed READY metadata", ErrHandshakeViolation)
	}
	c.phase = curveConnected
	return nil
}

// --- client side ---

func (c *Curve) buildHello() []byte {
	var zero [64]byte
	c.cnNonce++
	nonce := nonceCounter(noncePrefixHello, c.cnNonce)
	boxed := box.Seal(nil, zero[:], &nonce, &c.peerLongPub, &c.shortSec)

	out := wire.ShortString("HELLO")
	out = append(out, 0x01, 0x00)
	out = append(out, make([]byte, 72)...)
	out = append(out, c.shortPub[:]...)
	var nonce8 [8]byte
	binary.BigEndian.PutUint64(nonce8[:], c.cnNonce)
	out = append(out, nonce8[:]...)
	out = append(out, boxed...)
	return out
}

func (c *Curve) processWelcome(body []byte) error {
	if c.phase != curveExpectWelcome {
		return fmt.Errorf("%w: unexpected WELCOME", ErrHandshakeViolation)
	}
	if len(body) < 16+144 {
		return fmt.Errorf("%w: short WELCOME", ErrCryptoFailure)
	}
	copy(c.welcomeNonce[:], body[:16])
	boxed := body[16:]
	n := nonceFixed(noncePrefixWelcome, c.welcomeNonce)
	plain, okOpen := box.Open(nil, boxed, &n, &c.peerLongPub, &c.shortSec)
	if !okOpen || len(plain) != 32+16+80 {
		return fmt.Errorf("%w: WELCOME box failed to open", ErrCryptoFailure)
	}
	copy(c.peerShortPub[:], plain[:32])
	copy(c.cookieNonce[:], plain[32:48])
	c.welcomeCookieCipher = append([]byte{}, plain[48:128]...)
	c.phase = curveSendInitiate
	return nil
}

func (c *Curve) buildInitiate() ([]byte, error) {
	var vouchNonce16 [16]byte
	if _, err := rand.Read(vouchNonce16[:]); err != nil {
		return nil, err
	}
	vouchN := nonceFixed(noncePrefixVouch, vouchNonce16)
	vouchBox := box.Seal(nil, c.shortPub[:], &vouchN, &c.peerShortPub, &c.longSec)

	inner := make([]byte, 0, 32+16+48+32)
	inner = append(inner, c.longPub[:]...)
	inner = append(inner, vouchNonce16[:]...)
	inner = append(inner, vouchBox...)
	md := wire.Metadata{"Socket-Type": c.socket}
	inner = append(inner, md.Encode()...)

	c.cnNonce++
	innerN := nonceCounter(noncePrefixInitiate, c.cnNonce)
	boxed := box.Seal(nil, inner, &innerN, &c.peerShortPub, &c.shortSec)

	out := wire.ShortString("INITIATE")
	out = append(out, c.cookieNonce[:]...)
	out = append(out, c.welcomeCookieCipher...)
	var nonce8 [8]byte
	binary.BigEndian.PutUint64(nonce8[:], c.cnNonce)
	out = append(out, nonce8[:]...)
	out = append(out, boxed...)
	return out, nil
}

// --- post-handshake frame transform ---

func (c *Curve) Encode(m wire.Msg) (wire.Msg, error) {
	var flags byte
	if m.More() {
		flags |= 0x01
	}
	if m.Command() {
		flags |= 0x02
	}
	plain := append([]byte{flags}, m.Body...)

	c.cnNonce++
	prefix := noncePrefixMessageS
	peerPub, ourSec := c.peerShortPub, c.shortSec
	if !c.asServer {
		prefix = noncePrefixMessageC
	}
	nonce := nonceCounter(prefix, c.cnNonce)
	boxed := box.Seal(nil, plain, &nonce, &peerPub, &ourSec)

	out := wire.ShortString("MESSAGE")
	var nonce8 [8]byte
	binary.BigEndian.PutUint64(nonce8[:], c.cnNonce)
	out = append(out, nonce8[:]...)
	out = append(out, boxed...)
	// The MESSAGE wrapper travels as an ordinary data frame at the V2
	// framing layer; only the MORE bit is preserved across the seal.
	return wire.Msg{Body: out, Flags: m.Flags & wire.FlagMore}, nil
}

func (c *Curve) Decode(m wire.Msg) (wire.Msg, error) {
	name, n, ok := wire.ReadShortString(m.Body)
	if !ok || name != "MESSAGE" {
		return wire.Msg{}, fmt.Errorf("%w: expected MESSAGE command", ErrHandshakeViolation)
	}
	rest := m.Body[n:]
	if len(rest) < 8 {
		return wire.Msg{}, fmt.Errorf("%w: short MESSAGE", ErrCryptoFailure)
	}
	peerNonce := binary.BigEndian.Uint64(rest[:8])
	boxed := rest[8:]

	prefix := noncePrefixMessageC
	if !c.asServer {
		prefix = noncePrefixMessageS
	}
	nonce := nonceCounter(prefix, peerNonce)
	plain, okOpen := box.Open(nil, boxed, &nonce, &c.peerShortPub, &c.shortSec)
	if !okOpen {
		return wire.Msg{}, fmt.Errorf("%w: MESSAGE box failed to open", ErrCryptoFailure)
	}
	if peerNonce <= c.cnPeerNonce {
		return wire.Msg{}, fmt.Errorf("%w: MESSAGE nonce did not increase", ErrNonceReplay)
	}
	c.cnPeerNonce = peerNonce
	if len(plain) < 1 {
		return wire.Msg{}, fmt.Errorf("%w: empty MESSAGE plaintext", ErrCryptoFailure)
	}
	var flags byte
	if plain[0]&0x01 != 0 {
		flags |= wire.FlagMore
	}
	if plain[0]&0x02 != 0 {
		flags |= wire.FlagCommand
	}
	return wire.Msg{Body: plain[1:], Flags: flags}, nil
}
