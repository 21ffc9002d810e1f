package security

import (
	"fmt"

	"github.com/atsika/zmtpengine/wire"
)

// Shared encoding helpers for the plaintext-metadata commands (READY,
// ERROR) common to NULL, PLAIN and CURVE (§6.1).

func socketMetadata(socket string, identity []byte) wire.Metadata {
	md := wire.Metadata{"Socket-Type": socket}
	if len(identity) > 0 && (socket == "REQ" || socket == "DEALER" || socket == "ROUTER") {
		md["Identity"] = string(identity)
	}
	return md
}

func encodeReadyBody(socket string, identity []byte) []byte {
	out := wire.ShortString("READY")
	out = append(out, socketMetadata(socket, identity).Encode()...)
	return out
}

// metadataOnly returns just the property-list bytes, without a command
// name prefix -- what CURVE's boxed READY payload and PLAIN's INITIATE
// body carry.
func metadataOnly(socket string, identity []byte) []byte {
	return socketMetadata(socket, identity).Encode()
}

func decodeReadyBody(body []byte) (wire.Metadata, error) {
	name, n, ok := wire.ReadShortString(body)
	if !ok || name != "READY" {
		return nil, fmt.Errorf("%w: expected READY command", ErrHandshakeViolation)
	}
	return wire.DecodeMetadata(body[n:])
}

func encodeErrorBody(statusCode string) []byte {
	out := wire.ShortString("ERROR")
	out = append(out, wire.ShortString(statusCode)...)
	return out
}
