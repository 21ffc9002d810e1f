package security

import (
	"bytes"
	"testing"

	"github.com/atsika/zmtpengine/wire"
)

func TestNullHandshakeReachesReady(t *testing.T) {
	a := NewNull(true, "DEALER", []byte("client-a"), nil)
	b := NewNull(false, "ROUTER", nil, nil)

	cmdA, ok := a.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected a to have a READY command queued")
	}
	if err := b.ProcessHandshakeCommand(cmdA); err != nil {
		t.Fatalf("b.Process: %v", err)
	}
	cmdB, ok := b.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected b to have a READY command queued")
	}
	if err := a.ProcessHandshakeCommand(cmdB); err != nil {
		t.Fatalf("a.Process: %v", err)
	}

	if a.Status() != StatusReady || b.Status() != StatusReady {
		t.Fatalf("expected both sides ready, got a=%v b=%v", a.Status(), b.Status())
	}

	m := wire.Msg{Body: []byte("payload"), Flags: wire.FlagMore}
	enc, err := a.Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(enc.Body, m.Body) {
		t.Fatalf("NULL must pass frames through unchanged")
	}
}

func TestNullHandshakeAcceptedByZAP(t *testing.T) {
	zap := &fakeZAP{enabled: true, reply: &ZAPReply{StatusCode: "200", UserID: []byte("anonymous")}}
	server := NewNull(true, "ROUTER", nil, zap)
	client := NewNull(false, "DEALER", nil, nil)

	readyC, ok := client.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected client READY")
	}
	if err := server.ProcessHandshakeCommand(readyC); err != nil {
		t.Fatalf("server process READY: %v", err)
	}
	readyS, ok := server.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected server READY once ZAP accepts")
	}
	if err := client.ProcessHandshakeCommand(readyS); err != nil {
		t.Fatalf("client process READY: %v", err)
	}

	if server.Status() != StatusReady || client.Status() != StatusReady {
		t.Fatalf("expected both sides ready, got server=%v client=%v", server.Status(), client.Status())
	}
	if string(server.UserID()) != "anonymous" {
		t.Fatalf("expected ZAP-supplied user id, got %q", server.UserID())
	}
}

func TestNullHandshakeDeniedByZAP(t *testing.T) {
	zap := &fakeZAP{enabled: true, reply: &ZAPReply{StatusCode: "400"}}
	server := NewNull(true, "ROUTER", nil, zap)
	client := NewNull(false, "DEALER", nil, nil)

	readyC, _ := client.NextHandshakeCommand()
	if err := server.ProcessHandshakeCommand(readyC); err != nil {
		t.Fatalf("server process READY: %v", err)
	}
	if server.Status() != StatusErrored {
		t.Fatalf("expected server errored after denial, got %v", server.Status())
	}
	errCmd, ok := server.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected ERROR command queued")
	}
	if server.Status() != StatusErrored {
		t.Fatalf("expected server to remain errored after emitting ERROR, got %v", server.Status())
	}
	if err := client.ProcessHandshakeCommand(errCmd); err == nil {
		t.Fatalf("expected client to surface the denial")
	}
}
