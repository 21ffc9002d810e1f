package zmtpengine

import (
	"net"
	"testing"
	"time"

	"github.com/atsika/zmtpengine/reactor"
	"github.com/atsika/zmtpengine/session"
	"github.com/atsika/zmtpengine/wire"
)

type engineHandle struct{ eng *Engine }

func (h *engineHandle) Readable()         { h.eng.Readable() }
func (h *engineHandle) Writable()         { h.eng.Writable() }
func (h *engineHandle) TimerFired(id int) { h.eng.TimerFired(id) }

func newWiredEngine(t *testing.T, conn net.Conn, sess session.Session, opts ...Option) *Engine {
	t.Helper()
	handle := &engineHandle{}
	r := reactor.New(conn, handle)
	eng, err := NewEngine(r, sess, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	handle.eng = eng
	r.Start()
	return eng
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("condition never became true within %s", timeout)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// TestEngineNullHandshakeAndEcho drives two engines over net.Pipe through a
// full v3 NULL-mechanism handshake and one round trip of application data
// in each direction (§8 scenario 1 analogue, without PLAIN credentials).
func TestEngineNullHandshakeAndEcho(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientSess := session.NewMemorySession(16, 16, nil)
	serverSess := session.NewMemorySession(16, 16, nil)

	client := newWiredEngine(t, clientConn, clientSess,
		WithMechanism(MechanismNull), WithAsServer(false), WithSocketType("DEALER"))
	server := newWiredEngine(t, serverConn, serverSess,
		WithMechanism(MechanismNull), WithAsServer(true), WithSocketType("ROUTER"))

	if err := client.Plug(); err != nil {
		t.Fatalf("client plug: %v", err)
	}
	if err := server.Plug(); err != nil {
		t.Fatalf("server plug: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return client.phase == phaseReady && server.phase == phaseReady })

	if !clientSess.Send(wire.Msg{Body: []byte("ping")}) {
		t.Fatal("client send failed")
	}
	client.RestartOutput()

	var got wire.Msg
	waitFor(t, 2*time.Second, func() bool {
		m, ok := serverSess.Recv()
		if ok && !m.Identity() && !m.Credential() {
			got = m
			return true
		}
		return false
	})
	if string(got.Body) != "ping" {
		t.Fatalf("server received %q, want %q", got.Body, "ping")
	}

	if !serverSess.Send(wire.Msg{Body: []byte("pong")}) {
		t.Fatal("server send failed")
	}
	server.RestartOutput()

	waitFor(t, 2*time.Second, func() bool {
		m, ok := clientSess.Recv()
		if ok && !m.Identity() && !m.Credential() {
			got = m
			return true
		}
		return false
	})
	if string(got.Body) != "pong" {
		t.Fatalf("client received %q, want %q", got.Body, "pong")
	}
}

// TestEngineBackpressureStopsAndRestartsInput verifies that a full
// application pipe sets input_stopped (§7) and that RestartInput resumes
// delivery of the parked frame plus polling.
func TestEngineBackpressureStopsAndRestartsInput(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientSess := session.NewMemorySession(16, 16, nil)
	serverSess := session.NewMemorySession(1, 16, nil) // tiny inbound pipe

	client := newWiredEngine(t, clientConn, clientSess,
		WithMechanism(MechanismNull), WithAsServer(false), WithSocketType("DEALER"))
	server := newWiredEngine(t, serverConn, serverSess,
		WithMechanism(MechanismNull), WithAsServer(true), WithSocketType("ROUTER"))

	if err := client.Plug(); err != nil {
		t.Fatalf("client plug: %v", err)
	}
	if err := server.Plug(); err != nil {
		t.Fatalf("server plug: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return client.phase == phaseReady && server.phase == phaseReady })

	// A v3 NULL handshake without ZAP pushes nothing to the session (no
	// identity frame, no CREDENTIAL frame), so the one inbound slot is free.
	if _, ok := serverSess.Recv(); ok {
		t.Fatal("expected the NULL handshake to push no frame to the session")
	}

	if !clientSess.Send(wire.Msg{Body: []byte("one")}) {
		t.Fatal("send one failed")
	}
	client.RestartOutput()
	if !clientSess.Send(wire.Msg{Body: []byte("two")}) {
		t.Fatal("send two failed")
	}
	client.RestartOutput()

	waitFor(t, 2*time.Second, func() bool { return server.inputStopped })

	if _, ok := serverSess.Recv(); !ok {
		t.Fatal("expected the first parked message to be available")
	}
	server.RestartInput()

	waitFor(t, 2*time.Second, func() bool { return !server.inputStopped })
	waitFor(t, 2*time.Second, func() bool {
		m, ok := serverSess.Recv()
		return ok && string(m.Body) == "two"
	})
}

// TestEngineRawSocketPushesZeroLengthOnConnect covers raw_socket mode
// (§8 scenario 6): plugging synthesizes a single 0-length message with no
// greeting or handshake at all.
func TestEngineRawSocketPushesZeroLengthOnConnect(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	sess := session.NewMemorySession(16, 16, nil)
	eng := newWiredEngine(t, serverConn, sess, WithRawSocket(true))
	if err := eng.Plug(); err != nil {
		t.Fatalf("plug: %v", err)
	}

	m, ok := sess.Recv()
	if !ok {
		t.Fatal("expected a synthesized connect message")
	}
	if len(m.Body) != 0 {
		t.Fatalf("expected a 0-length message, got %d bytes", len(m.Body))
	}
	if eng.phase != phaseReady {
		t.Fatalf("raw socket should enter phaseReady immediately, got %v", eng.phase)
	}
}

// TestEngineHeartbeatTimeoutFailsConnection arms a short HEARTBEAT_IVL/
// HEARTBEAT_TIMEOUT on the client, then drops the peer out from under it;
// whichever fires first -- the socket error from the severed pipe or
// HEARTBEAT_TIMEOUT itself -- the client must report a terminal
// EngineError with connect_reached=true (§4.6, §7).
func TestEngineHeartbeatTimeoutFailsConnection(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	clientSess := session.NewMemorySession(16, 16, nil)
	serverSess := session.NewMemorySession(16, 16, nil)

	var gotErr error
	var connectReached bool
	clientSess.OnError(func(reached bool, kind session.ErrorKind, reason error) {
		connectReached = reached
		gotErr = reason
	})

	client := newWiredEngine(t, clientConn, clientSess,
		WithMechanism(MechanismNull), WithAsServer(false), WithSocketType("DEALER"),
		WithHeartbeat(15*time.Millisecond, 15*time.Millisecond, time.Second))
	server := newWiredEngine(t, serverConn, serverSess,
		WithMechanism(MechanismNull), WithAsServer(true), WithSocketType("ROUTER"))

	if err := client.Plug(); err != nil {
		t.Fatalf("client plug: %v", err)
	}
	if err := server.Plug(); err != nil {
		t.Fatalf("server plug: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return client.phase == phaseReady })

	// Sever the connection from the server's side so PING never gets a
	// PONG back, then wait for the client's heartbeat timeout to fire.
	server.Unplug()
	serverConn.Close()

	waitFor(t, 2*time.Second, func() bool { return gotErr != nil })
	if !connectReached {
		t.Fatal("expected connect_reached=true once READY was reached")
	}
}
