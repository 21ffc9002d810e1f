package reactor

import (
	"net"
	"sync"
	"testing"
	"time"
)

type recordingHandlers struct {
	mu        sync.Mutex
	readable  int
	writable  int
	timers    []int
	r         *Reactor
	collected []byte
}

func (h *recordingHandlers) Readable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readable++
	buf := make([]byte, 4096)
	for {
		n, err := h.r.Read(buf)
		if n > 0 {
			h.collected = append(h.collected, buf[:n]...)
		}
		if err != nil {
			return
		}
	}
}

func (h *recordingHandlers) Writable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writable++
}

func (h *recordingHandlers) TimerFired(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timers = append(h.timers, id)
}

func TestReactorDeliversReadable(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	h := &recordingHandlers{}
	r := New(server, h)
	h.r = r
	r.Start()
	defer r.Remove()
	r.SetPollIn()

	go func() {
		client.Write([]byte("hello"))
	}()

	deadline := time.After(2 * time.Second)
	for {
		h.mu.Lock()
		got := string(h.collected)
		h.mu.Unlock()
		if got == "hello" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for readable data, got %q", got)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestReactorWouldBlockWhenEmpty(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	h := &recordingHandlers{}
	r := New(server, h)
	h.r = r
	r.Start()
	defer r.Remove()

	done := make(chan struct{})
	r.run(func() {
		buf := make([]byte, 16)
		_, err := r.Read(buf)
		if err != ErrWouldBlock {
			t.Errorf("expected ErrWouldBlock, got %v", err)
		}
		close(done)
	})
	<-done
}

func TestReactorTimerFiresAndCancels(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	h := &recordingHandlers{}
	r := New(server, h)
	h.r = r
	r.Start()
	defer r.Remove()

	r.AddTimer(10*time.Millisecond, 1)
	r.AddTimer(10*time.Millisecond, 2)
	r.CancelTimer(2)

	deadline := time.After(2 * time.Second)
	for {
		h.mu.Lock()
		n := len(h.timers)
		h.mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timer never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	time.Sleep(20 * time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.timers) != 1 || h.timers[0] != 1 {
		t.Fatalf("expected only timer 1 to fire, got %v", h.timers)
	}
}

func TestReactorRemoveStopsCallbacks(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	h := &recordingHandlers{}
	r := New(server, h)
	h.r = r
	r.Start()
	r.SetPollIn()
	r.Remove()
	server.Close()

	// Writing after Remove must not deliver a callback; give the
	// background goroutines a moment to have observed r.done if they were
	// going to misbehave.
	go client.Write([]byte("x"))
	time.Sleep(20 * time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.readable != 0 {
		t.Fatalf("expected no callbacks after Remove, got %d", h.readable)
	}
}
