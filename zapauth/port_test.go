package zapauth

import (
	"testing"

	"github.com/atsika/zmtpengine/security"
)

func TestLocalPortSynchronousReply(t *testing.T) {
	dir := newMemDirectory()
	dir.addPlain("alice", "s3cret", "alice-id")
	port := NewLocalPort(NewAuthenticator(dir, nil), "global", "127.0.0.1:5555")

	if !port.Enabled() {
		t.Fatalf("expected port to be enabled")
	}
	if err := port.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := port.WriteRequest(security.ZAPRequest{
		Mechanism: "PLAIN", Credentials: [][]byte{[]byte("alice"), []byte("s3cret")},
	}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	reply, ok, err := port.ReadReply()
	if err != nil || !ok {
		t.Fatalf("expected immediate reply, got ok=%v err=%v", ok, err)
	}
	if reply.StatusCode != "200" || string(reply.UserID) != "alice-id" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	if _, ok, _ := port.ReadReply(); ok {
		t.Fatalf("expected no further replies queued")
	}
}

func TestLocalPortDisabledWithNilAuthenticator(t *testing.T) {
	port := NewLocalPort(nil, "global", "127.0.0.1:5555")
	if port.Enabled() {
		t.Fatalf("expected disabled port")
	}
}
