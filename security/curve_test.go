package security

import (
	"bytes"
	"testing"

	"github.com/atsika/zmtpengine/wire"
)

func curveHandshake(t *testing.T, server, client *Curve) {
	t.Helper()

	hello, ok := client.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected client HELLO")
	}
	if err := server.ProcessHandshakeCommand(hello); err != nil {
		t.Fatalf("server process HELLO: %v", err)
	}

	welcome, ok := server.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected server WELCOME")
	}
	if err := client.ProcessHandshakeCommand(welcome); err != nil {
		t.Fatalf("client process WELCOME: %v", err)
	}

	initiate, ok := client.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected client INITIATE")
	}
	if err := server.ProcessHandshakeCommand(initiate); err != nil {
		t.Fatalf("server process INITIATE: %v", err)
	}

	readyFromServer, ok := server.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected server READY")
	}
	if err := client.ProcessHandshakeCommand(readyFromServer); err != nil {
		t.Fatalf("client process READY: %v", err)
	}

	if server.Status() != StatusReady || client.Status() != StatusReady {
		t.Fatalf("expected both sides ready, got server=%v client=%v", server.Status(), client.Status())
	}
}

func newCurvePair(t *testing.T) (server, client *Curve) {
	t.Helper()
	serverID, err := GenerateCurveIdentity()
	if err != nil {
		t.Fatalf("generate server identity: %v", err)
	}
	clientID, err := GenerateCurveIdentity()
	if err != nil {
		t.Fatalf("generate client identity: %v", err)
	}
	server, err = NewCurveServer(serverID, true, "ROUTER", nil, nil)
	if err != nil {
		t.Fatalf("new curve server: %v", err)
	}
	client, err = NewCurveClient(clientID, serverID.Public, "DEALER", []byte("client-id"))
	if err != nil {
		t.Fatalf("new curve client: %v", err)
	}
	return server, client
}

func TestCurveHandshakeReachesReady(t *testing.T) {
	server, client := newCurvePair(t)
	curveHandshake(t, server, client)
}

func TestCurveMessageRoundTripAndNonceMonotonic(t *testing.T) {
	server, client := newCurvePair(t)
	curveHandshake(t, server, client)

	m1 := wire.Msg{Body: []byte("hello"), Flags: wire.FlagMore}
	enc1, err := server.Encode(m1)
	if err != nil {
		t.Fatalf("encode 1: %v", err)
	}
	dec1, err := client.Decode(enc1)
	if err != nil {
		t.Fatalf("decode 1: %v", err)
	}
	if !bytes.Equal(dec1.Body, m1.Body) || dec1.More() != m1.More() {
		t.Fatalf("round trip mismatch: got %+v want %+v", dec1, m1)
	}

	m2 := wire.Msg{Body: []byte("world")}
	enc2, err := server.Encode(m2)
	if err != nil {
		t.Fatalf("encode 2: %v", err)
	}
	if bytes.Equal(enc1.Body, enc2.Body) {
		t.Fatalf("two MESSAGE frames must not be identical (nonce must advance)")
	}
	if _, err := client.Decode(enc2); err != nil {
		t.Fatalf("decode 2: %v", err)
	}

	// Replaying the first frame must be rejected: its nonce is no longer
	// greater than the highest accepted nonce (§8 invariant).
	if _, err := client.Decode(enc1); err == nil {
		t.Fatalf("expected nonce replay to be rejected")
	}
}

func TestCurveHelloCorruptBoxSendsError(t *testing.T) {
	server, client := newCurvePair(t)
	hello, _ := client.NextHandshakeCommand()
	// Corrupt the box tail.
	hello.Body[len(hello.Body)-1] ^= 0xFF

	err := server.ProcessHandshakeCommand(hello)
	if err == nil {
		t.Fatalf("expected crypto failure on corrupt HELLO box")
	}
	if server.Status() != StatusHandshaking {
		t.Fatalf("server should be mid-handshake (about to send ERROR), got %v", server.Status())
	}
	errCmd, ok := server.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected ERROR command queued")
	}
	name, _, ok := wire.ReadShortString(errCmd.Body)
	if !ok || name != "ERROR" {
		t.Fatalf("expected ERROR command, got %q", name)
	}
	if server.Status() != StatusErrored {
		t.Fatalf("expected errored after sending ERROR, got %v", server.Status())
	}
}
