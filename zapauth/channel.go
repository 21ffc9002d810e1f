package zapauth

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/flynn/noise"
)

var noiseCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

var (
	ErrHandshakeIncomplete = errors.New("zapauth: noise handshake not complete")
	ErrChannelClosed       = errors.New("zapauth: channel closed")
)

// noiseHandshake is the same two-message NN-pattern wrapper as aznet's
// crypto.go Noise type, copied rather than imported since zapauth's
// control channel is its own process boundary and must not depend on the
// engine module's internal package.
type noiseHandshake struct {
	hs          *noise.HandshakeState
	cs1, cs2    *noise.CipherState
	isComplete  bool
	isInitiator bool
}

func newNoiseInitiator() (*noiseHandshake, error) {
	hs, err := noise.NewHandshakeState(noise.Config{CipherSuite: noiseCipherSuite, Pattern: noise.HandshakeNN, Initiator: true})
	if err != nil {
		return nil, err
	}
	return &noiseHandshake{hs: hs, isInitiator: true}, nil
}

func newNoiseResponder() (*noiseHandshake, error) {
	hs, err := noise.NewHandshakeState(noise.Config{CipherSuite: noiseCipherSuite, Pattern: noise.HandshakeNN, Initiator: false})
	if err != nil {
		return nil, err
	}
	return &noiseHandshake{hs: hs}, nil
}

func (n *noiseHandshake) writeMessage(payload []byte) ([]byte, error) {
	msg, cs1, cs2, err := n.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, err
	}
	if cs1 != nil && cs2 != nil {
		n.cs1, n.cs2, n.isComplete = cs1, cs2, true
	}
	return msg, nil
}

func (n *noiseHandshake) readMessage(msg []byte) ([]byte, error) {
	payload, cs1, cs2, err := n.hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, err
	}
	if cs1 != nil && cs2 != nil {
		n.cs1, n.cs2, n.isComplete = cs1, cs2, true
	}
	return payload, nil
}

func (n *noiseHandshake) encrypt(plaintext []byte) ([]byte, error) {
	if !n.isComplete {
		return nil, ErrHandshakeIncomplete
	}
	if n.isInitiator {
		return n.cs1.Encrypt(nil, nil, plaintext)
	}
	return n.cs2.Encrypt(nil, nil, plaintext)
}

func (n *noiseHandshake) decrypt(ciphertext []byte) ([]byte, error) {
	if !n.isComplete {
		return nil, ErrHandshakeIncomplete
	}
	if n.isInitiator {
		return n.cs2.Decrypt(nil, nil, ciphertext)
	}
	return n.cs1.Decrypt(nil, nil, ciphertext)
}

// Channel is a Noise-NN-encrypted, length-framed JSON transport for
// Request/Reply pairs -- the control link between an engine-side ZAP
// client and the Authenticator process (§4.5 EXPECT_ZAP_REPLY crosses a
// process boundary here; see DESIGN.md for why Noise rather than CURVE's
// own NaCl construction covers this hop).
type Channel struct {
	conn net.Conn
	hs   *noiseHandshake
}

// DialChannel performs the client (initiator) half of the Noise
// handshake over conn.
func DialChannel(conn net.Conn) (*Channel, error) {
	hs, err := newNoiseInitiator()
	if err != nil {
		return nil, err
	}
	msg1, err := hs.writeMessage(nil)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, msg1); err != nil {
		return nil, err
	}
	msg2, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	if _, err := hs.readMessage(msg2); err != nil {
		return nil, fmt.Errorf("noise handshake: %w", err)
	}
	return &Channel{conn: conn, hs: hs}, nil
}

// AcceptChannel performs the server (responder) half.
func AcceptChannel(conn net.Conn) (*Channel, error) {
	hs, err := newNoiseResponder()
	if err != nil {
		return nil, err
	}
	msg1, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	if _, err := hs.readMessage(msg1); err != nil {
		return nil, fmt.Errorf("noise handshake: %w", err)
	}
	msg2, err := hs.writeMessage(nil)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, msg2); err != nil {
		return nil, err
	}
	return &Channel{conn: conn, hs: hs}, nil
}

// WriteRequest encrypts and frames a Request.
func (c *Channel) WriteRequest(req Request) error {
	plain, err := json.Marshal(req)
	if err != nil {
		return err
	}
	ciphertext, err := c.hs.encrypt(plain)
	if err != nil {
		return err
	}
	return writeFrame(c.conn, ciphertext)
}

// ReadRequest blocks for the next Request.
func (c *Channel) ReadRequest() (Request, error) {
	frame, err := readFrame(c.conn)
	if err != nil {
		return Request{}, err
	}
	plain, err := c.hs.decrypt(frame)
	if err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(plain, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// WriteReply encrypts and frames a Reply.
func (c *Channel) WriteReply(reply Reply) error {
	plain, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	ciphertext, err := c.hs.encrypt(plain)
	if err != nil {
		return err
	}
	return writeFrame(c.conn, ciphertext)
}

// ReadReply blocks for the next Reply.
func (c *Channel) ReadReply() (Reply, error) {
	frame, err := readFrame(c.conn)
	if err != nil {
		return Reply{}, err
	}
	plain, err := c.hs.decrypt(frame)
	if err != nil {
		return Reply{}, err
	}
	var reply Reply
	if err := json.Unmarshal(plain, &reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (c *Channel) Close() error { return c.conn.Close() }

func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
