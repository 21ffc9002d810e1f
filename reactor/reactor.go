// Package reactor provides the I/O multiplexer contract the engine is
// driven by (§6.2): registration of a transport plus timers, and delivery
// of readable/writable/timer-fired callbacks. spec.md treats the reactor
// as an external collaborator with only its contract specified; this
// package also ships the reference implementation the example binaries
// and tests are built against.
package reactor

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"time"
)

// ErrWouldBlock is returned by Reactor.Read when no bytes are buffered --
// the engine's non-blocking-read contract (§4.3) translated to Go, where
// net.Conn has no EAGAIN of its own.
var ErrWouldBlock = errors.New("reactor: read would block")

// Handlers is the callback set a reactor drives (§6.2). All three methods
// are invoked from the reactor's single dispatch goroutine -- never
// concurrently with each other -- so an Engine implementing Handlers needs
// no internal locking (§5).
type Handlers interface {
	Readable()
	Writable()
	TimerFired(id int)
}

type timerEntry struct {
	id    int
	timer *time.Timer
}

// Reactor owns one net.Conn and the single goroutine that serializes all
// callback invocations for it, matching "owned by one reactor thread" in
// §5. A background reader goroutine performs the actual blocking
// net.Conn.Read calls and hands completed chunks to the dispatch loop,
// which is what lets Reactor.Read behave non-blockingly from the engine's
// point of view.
type Reactor struct {
	conn net.Conn
	h    Handlers

	dispatch chan func()
	done     chan struct{}
	closeOnce sync.Once

	// pending and readErr are only ever touched from the dispatch goroutine.
	pending bytes.Buffer
	readErr error

	pollIn  bool
	pollOut bool

	timersMu sync.Mutex
	timers   map[int]*timerEntry
}

// New constructs a Reactor for conn. Start must be called to begin
// delivering callbacks.
func New(conn net.Conn, h Handlers) *Reactor {
	return &Reactor{
		conn:     conn,
		h:        h,
		dispatch: make(chan func(), 64),
		done:     make(chan struct{}),
		timers:   make(map[int]*timerEntry),
	}
}

// Start launches the background reader and the dispatch loop. SetPollIn
// must be called (typically immediately) to begin receiving Readable.
func (r *Reactor) Start() {
	go r.dispatchLoop()
	go r.readLoop()
}

func (r *Reactor) dispatchLoop() {
	for {
		select {
		case fn := <-r.dispatch:
			fn()
		case <-r.done:
			return
		}
	}
}

// readLoop performs blocking reads on the connection and forwards
// completed chunks to the dispatch loop as Readable notifications. It
// does not stop reading when pollIn is false; the dispatch loop simply
// withholds Readable in that case, buffering bytes until resumed -- a
// deliberate departure from a true level-triggered reactor, which would
// stop reading at the fd level. Go's net.Conn does not expose that knob.
func (r *Reactor) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, err := r.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case r.dispatch <- func() { r.onChunk(chunk) }:
			case <-r.done:
				return
			}
		}
		if err != nil {
			select {
			case r.dispatch <- func() { r.onReadError(err) }:
			case <-r.done:
			}
			return
		}
	}
}

func (r *Reactor) onChunk(chunk []byte) {
	r.pending.Write(chunk)
	if r.pollIn {
		r.h.Readable()
	}
}

func (r *Reactor) onReadError(err error) {
	// A read error (including io.EOF on peer close) still must reach the
	// engine through Readable so it can observe the 0-byte/error
	// condition via Read, per §4.3 ("0 bytes returned means peer
	// closed").
	r.readErr = err
	if r.pollIn {
		r.h.Readable()
	}
}

// Read implements the engine's non-blocking socket-read contract: it pops
// already-buffered bytes without blocking, returning ErrWouldBlock if none
// are available, or the stored connection error (typically io.EOF) once
// the buffer is drained. Read must only be called from within a Handlers
// callback (i.e. on the dispatch goroutine).
func (r *Reactor) Read(p []byte) (int, error) {
	if r.pending.Len() > 0 {
		return r.pending.Read(p)
	}
	if r.readErr != nil {
		return 0, r.readErr
	}
	return 0, ErrWouldBlock
}

// Write writes directly to the connection. It may block the dispatch
// goroutine briefly under OS backpressure; callers needing to avoid that
// should keep writes small and rely on SetPollOut for batching (§4.3
// egress batching).
func (r *Reactor) Write(p []byte) (int, error) { return r.conn.Write(p) }

// LocalAddr returns the underlying connection's local address, used by the
// engine to publish a self-address metadata property (§6.3).
func (r *Reactor) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// SetPollIn / ResetPollIn enable or disable Readable delivery.
func (r *Reactor) SetPollIn() { r.run(func() { r.pollIn = true }) }
func (r *Reactor) ResetPollIn() { r.run(func() { r.pollIn = false }) }

// SetPollOut arms a synthetic writable notification on the dispatch loop;
// Go has no socket-writability callback to hook, so this fires once,
// immediately, from the dispatch goroutine, matching "writable poll" well
// enough for the egress pipeline to ask the encoder for bytes and write
// them.
func (r *Reactor) SetPollOut() {
	r.run(func() {
		r.pollOut = true
		r.h.Writable()
	})
}
func (r *Reactor) ResetPollOut() { r.run(func() { r.pollOut = false }) }

// AddTimer schedules a one-shot TimerFired(id) after d.
func (r *Reactor) AddTimer(d time.Duration, id int) {
	t := time.AfterFunc(d, func() {
		select {
		case r.dispatch <- func() { r.fireTimer(id) }:
		case <-r.done:
		}
	})
	r.timersMu.Lock()
	r.timers[id] = &timerEntry{id: id, timer: t}
	r.timersMu.Unlock()
}

func (r *Reactor) fireTimer(id int) {
	r.timersMu.Lock()
	_, ok := r.timers[id]
	delete(r.timers, id)
	r.timersMu.Unlock()
	if ok {
		r.h.TimerFired(id)
	}
}

// CancelTimer stops a pending timer if it has not already fired.
func (r *Reactor) CancelTimer(id int) {
	r.timersMu.Lock()
	entry, ok := r.timers[id]
	delete(r.timers, id)
	r.timersMu.Unlock()
	if ok {
		entry.timer.Stop()
	}
}

// run schedules fn on the dispatch goroutine and blocks until it runs,
// so registration calls from outside (e.g. Start callers) observe their
// effect before returning.
func (r *Reactor) run(fn func()) {
	done := make(chan struct{})
	select {
	case r.dispatch <- func() { fn(); close(done) }:
		<-done
	case <-r.done:
	}
}

// Remove deregisters the connection: cancels all timers and stops the
// dispatch/reader goroutines. No further callbacks fire afterward (§5
// cancellation: "a reentrant callback after unplug must be impossible").
func (r *Reactor) Remove() {
	r.closeOnce.Do(func() {
		r.timersMu.Lock()
		for _, e := range r.timers {
			e.timer.Stop()
		}
		r.timers = nil
		r.timersMu.Unlock()
		close(r.done)
	})
}
