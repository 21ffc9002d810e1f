// Package zapauth implements a reference ZAP (ZeroMQ Authentication
// Protocol, RFC 27) authenticator: the out-of-band request/reply service
// a session consults during CURVE's EXPECT_ZAP_REPLY and PLAIN's HELLO
// handling (§4.5, §6.2). security.Mechanism talks to it only through the
// narrow security.ZAPPort interface; this package supplies a concrete
// Authenticator plus an in-process port adapter and the credential
// directory / audit trail it is backed by.
package zapauth

import "github.com/atsika/zmtpengine/wire"

// Request mirrors the ZAP wire request (RFC 27) without its version
// frame: a caller-assigned id used to correlate the reply, the connecting
// endpoint's address/identity, the negotiated mechanism name, and
// mechanism-specific credential frames (username+password for PLAIN, the
// client's long-term public key for CURVE).
type Request struct {
	RequestID   string
	Domain      string
	Address     string
	Identity    []byte
	Mechanism   string
	Credentials [][]byte
}

// Reply mirrors the ZAP wire reply: a 3-digit status code ("200" allow,
// "300" temporary error, "400" deny, "500" internal error per RFC 27), a
// human-readable status text, the resolved user id on success, and any
// metadata the authenticator returns (the mechanisms in package security
// do not read it).
type Reply struct {
	RequestID  string
	StatusCode string
	StatusText string
	UserID     string
	Metadata   wire.Metadata
}

const (
	StatusAllow           = "200"
	StatusTemporaryError  = "300"
	StatusDeny            = "400"
	StatusInternalError   = "500"
)
