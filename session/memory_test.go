package session

import (
	"testing"

	"github.com/atsika/zmtpengine/security"
	"github.com/atsika/zmtpengine/wire"
)

type fakeZAP struct{ enabled bool }

func (f *fakeZAP) Enabled() bool                         { return f.enabled }
func (f *fakeZAP) Connect() error                        { return nil }
func (f *fakeZAP) WriteRequest(security.ZAPRequest) error { return nil }
func (f *fakeZAP) ReadReply() (*security.ZAPReply, bool, error) {
	return &security.ZAPReply{StatusCode: "200"}, true, nil
}

func TestMemorySessionPushPullRoundTrip(t *testing.T) {
	s := NewMemorySession(4, 4, nil)

	if !s.Send(wire.Msg{Body: []byte("out")}) {
		t.Fatalf("expected Send to succeed")
	}
	m, ok := s.PullMsg()
	if !ok || string(m.Body) != "out" {
		t.Fatalf("expected to pull the sent message, got %+v ok=%v", m, ok)
	}

	if !s.PushMsg(wire.Msg{Body: []byte("in")}) {
		t.Fatalf("expected PushMsg to succeed")
	}
	m, ok = s.Recv()
	if !ok || string(m.Body) != "in" {
		t.Fatalf("expected to receive the pushed message, got %+v ok=%v", m, ok)
	}
}

func TestMemorySessionPushBackpressure(t *testing.T) {
	s := NewMemorySession(1, 1, nil)
	if !s.PushMsg(wire.Msg{Body: []byte("a")}) {
		t.Fatalf("first push should succeed")
	}
	if s.PushMsg(wire.Msg{Body: []byte("b")}) {
		t.Fatalf("second push should report backpressure (EAGAIN)")
	}
}

func TestMemorySessionZAPDelegation(t *testing.T) {
	s := NewMemorySession(4, 4, &fakeZAP{enabled: true})
	if !s.ZAPEnabled() {
		t.Fatalf("expected ZAP enabled")
	}
	if err := s.ZAPConnect(); err != nil {
		t.Fatalf("zap connect: %v", err)
	}
	if err := s.WriteZAPMsg(security.ZAPRequest{Mechanism: "PLAIN"}); err != nil {
		t.Fatalf("write zap msg: %v", err)
	}
	reply, ok, err := s.ReadZAPMsg()
	if err != nil || !ok || reply.StatusCode != "200" {
		t.Fatalf("unexpected zap reply: %+v ok=%v err=%v", reply, ok, err)
	}
}

func TestMemorySessionEngineError(t *testing.T) {
	s := NewMemorySession(4, 4, nil)
	var gotKind ErrorKind
	var gotReached bool
	s.OnError(func(connectReached bool, kind ErrorKind, reason error) {
		gotReached, gotKind = connectReached, kind
	})
	s.EngineError(true, ErrorTimeout, nil)
	if !gotReached || gotKind != ErrorTimeout {
		t.Fatalf("callback did not observe the reported error: reached=%v kind=%v", gotReached, gotKind)
	}
	reached, _ := s.LastError()
	if !reached {
		t.Fatalf("LastError did not record connectReached")
	}
}

func TestMemorySessionFlushCounts(t *testing.T) {
	s := NewMemorySession(4, 4, nil)
	s.Flush()
	s.Flush()
	if s.Flushes() != 2 {
		t.Fatalf("expected 2 flushes, got %d", s.Flushes())
	}
}
