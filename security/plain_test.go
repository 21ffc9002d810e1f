package security

import "testing"

type fakeZAP struct {
	enabled bool
	reply   *ZAPReply
	err     error
	pending bool
}

func (f *fakeZAP) Enabled() bool                 { return f.enabled }
func (f *fakeZAP) Connect() error                { return nil }
func (f *fakeZAP) WriteRequest(ZAPRequest) error { return nil }
func (f *fakeZAP) ReadReply() (*ZAPReply, bool, error) {
	if f.pending {
		return nil, false, nil
	}
	return f.reply, true, f.err
}

func TestPlainHandshakeAcceptedByZAP(t *testing.T) {
	zap := &fakeZAP{enabled: true, reply: &ZAPReply{StatusCode: "200", UserID: []byte("alice")}}
	server := NewPlainServer(true, "ROUTER", nil, zap)
	client := NewPlainClient("alice", "s3cret", "DEALER", nil)

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
	ready, ok := server.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected server READY")
	}
	if err := client.ProcessHandshakeCommand(ready); err != nil {
		t.Fatalf("client process READY: %v", err)
	}

	if server.Status() != StatusReady || client.Status() != StatusReady {
		t.Fatalf("expected both sides ready, got server=%v client=%v", server.Status(), client.Status())
	}
	if string(server.UserID()) != "alice" {
		t.Fatalf("expected ZAP-supplied user id, got %q", server.UserID())
	}
}

func TestPlainHandshakeDeniedByZAP(t *testing.T) {
	zap := &fakeZAP{enabled: true, reply: &ZAPReply{StatusCode: "400"}}
	server := NewPlainServer(true, "ROUTER", nil, zap)
	client := NewPlainClient("bob", "wrong", "DEALER", nil)

	hello, _ := client.NextHandshakeCommand()
	if err := server.ProcessHandshakeCommand(hello); err != nil {
		t.Fatalf("server process HELLO: %v", err)
	}
	if server.Status() != StatusHandshaking {
		t.Fatalf("expected server mid-handshake with ERROR queued after denial, got %v", server.Status())
	}
	errCmd, ok := server.NextHandshakeCommand()
	if !ok {
		t.Fatalf("expected ERROR command queued")
	}
	if server.Status() != StatusErrored {
		t.Fatalf("expected server errored after emitting ERROR, got %v", server.Status())
	}
	if err := client.ProcessHandshakeCommand(errCmd); err == nil {
		t.Fatalf("expected client to surface the denial")
	}
}
