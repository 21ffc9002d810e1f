package session

import (
	"sync"

	"github.com/atsika/zmtpengine/security"
	"github.com/atsika/zmtpengine/wire"
)

// MemorySession is the reference Session: two bounded in-memory queues
// (one per direction) plus a ZAPPort. Send/Recv are the application-facing
// half; PullMsg/PushMsg/etc. are the engine-facing half required by the
// Session interface.
type MemorySession struct {
	toApp   chan wire.Msg // engine -> application, filled by PushMsg, drained by Recv
	toWire  chan wire.Msg // application -> engine, filled by Send, drained by PullMsg
	zap     security.ZAPPort
	onError func(connectReached bool, kind ErrorKind, reason error)

	flushes int // counts Flush calls; exposed for tests, not load-bearing

	mu    sync.Mutex
	lastConnectReached bool
	lastErr            error
}

// NewMemorySession builds a session with the given application-pipe
// capacities (rcvbuf/sndbuf-sized, per SPEC_FULL.md's Config fields). A
// nil zap disables ZAP for this connection.
func NewMemorySession(rcvbuf, sndbuf int, zap security.ZAPPort) *MemorySession {
	if rcvbuf <= 0 {
		rcvbuf = 64
	}
	if sndbuf <= 0 {
		sndbuf = 64
	}
	return &MemorySession{
		toApp:  make(chan wire.Msg, rcvbuf),
		toWire: make(chan wire.Msg, sndbuf),
		zap:    zap,
	}
}

// OnError installs a callback invoked by EngineError, letting a test or
// cmd/zmtpecho observe terminal failures without polling.
func (s *MemorySession) OnError(fn func(connectReached bool, kind ErrorKind, reason error)) {
	s.onError = fn
}

// Send enqueues an application message for egress. ok=false means the
// outbound queue is full -- the application's own backpressure, distinct
// from the engine's push_msg backpressure.
func (s *MemorySession) Send(m wire.Msg) bool {
	select {
	case s.toWire <- m:
		return true
	default:
		return false
	}
}

// Recv dequeues the next inbound application message, if any.
func (s *MemorySession) Recv() (wire.Msg, bool) {
	select {
	case m := <-s.toApp:
		return m, true
	default:
		return wire.Msg{}, false
	}
}

func (s *MemorySession) PullMsg() (wire.Msg, bool) {
	select {
	case m := <-s.toWire:
		return m, true
	default:
		return wire.Msg{}, false
	}
}

func (s *MemorySession) PushMsg(m wire.Msg) bool {
	select {
	case s.toApp <- m:
		return true
	default:
		return false
	}
}

func (s *MemorySession) Flush() { s.flushes++ }

// Flushes reports how many times Flush has been called, for tests that
// assert the engine drains its pipeline before returning from a callback.
func (s *MemorySession) Flushes() int { return s.flushes }

func (s *MemorySession) ZAPConnect() error {
	if s.zap == nil {
		return nil
	}
	return s.zap.Connect()
}

func (s *MemorySession) WriteZAPMsg(req security.ZAPRequest) error {
	if s.zap == nil {
		return nil
	}
	return s.zap.WriteRequest(req)
}

func (s *MemorySession) ReadZAPMsg() (*security.ZAPReply, bool, error) {
	if s.zap == nil {
		return nil, false, nil
	}
	return s.zap.ReadReply()
}

func (s *MemorySession) ZAPEnabled() bool { return s.zap != nil && s.zap.Enabled() }

func (s *MemorySession) EngineError(connectReached bool, kind ErrorKind, reason error) {
	s.mu.Lock()
	s.lastConnectReached, s.lastErr = connectReached, reason
	s.mu.Unlock()
	if s.onError != nil {
		s.onError(connectReached, kind, reason)
	}
}

// LastError returns the most recent EngineError report, for tests.
func (s *MemorySession) LastError() (connectReached bool, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConnectReached, s.lastErr
}
