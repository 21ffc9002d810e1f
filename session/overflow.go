package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/atsika/zmtpengine/wire"
)

// OverflowSession wraps a MemorySession and spills inbound messages into a
// durable Azure Storage Queue once the in-memory pipe to the application
// is full, instead of returning EAGAIN immediately. This gives sustained
// overload (§8 scenario 4) somewhere to go besides dropping data or
// stalling the wire indefinitely, at the cost of added latency for
// spilled messages. The engine is never aware of the distinction: PushMsg
// only returns false once the overflow queue itself is also full.
type OverflowSession struct {
	*MemorySession

	queue    *azqueue.QueueClient
	ctx      context.Context
	draining atomic.Bool

	mu      sync.Mutex
	spilled int
	maxSpill int
}

// overflowEnvelope is the JSON shape persisted per spilled message --
// base64 body plus the flag byte, matching aztable.go/azblob.go's pattern
// of base64-encoding binary payloads for text-oriented Azure storage APIs.
type overflowEnvelope struct {
	Body  string `json:"body"`
	Flags byte   `json:"flags"`
}

// NewOverflowSession wraps inner, spilling to queue once inner's toApp
// buffer is full, up to maxSpill messages held in the queue at once (0
// means unbounded).
func NewOverflowSession(ctx context.Context, inner *MemorySession, queue *azqueue.QueueClient, maxSpill int) *OverflowSession {
	return &OverflowSession{MemorySession: inner, queue: queue, ctx: ctx, maxSpill: maxSpill}
}

func (s *OverflowSession) PushMsg(m wire.Msg) bool {
	if s.MemorySession.PushMsg(m) {
		return true
	}
	return s.spill(m)
}

func (s *OverflowSession) spill(m wire.Msg) bool {
	s.mu.Lock()
	if s.maxSpill > 0 && s.spilled >= s.maxSpill {
		s.mu.Unlock()
		return false
	}
	s.spilled++
	s.mu.Unlock()

	env := overflowEnvelope{Body: base64.StdEncoding.EncodeToString(m.Body), Flags: m.Flags}
	data, err := json.Marshal(env)
	if err != nil {
		s.mu.Lock()
		s.spilled--
		s.mu.Unlock()
		return false
	}
	if _, err := s.queue.EnqueueMessage(s.ctx, string(data), nil); err != nil {
		s.mu.Lock()
		s.spilled--
		s.mu.Unlock()
		return false
	}
	s.drainAsync()
	return true
}

// drainAsync starts (if not already running) a background drain of
// spilled messages back into the in-memory pipe as room becomes
// available. Only one drain loop runs at a time per session.
func (s *OverflowSession) drainAsync() {
	if !s.draining.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.draining.Store(false)
		for {
			s.mu.Lock()
			remaining := s.spilled
			s.mu.Unlock()
			if remaining == 0 {
				return
			}
			resp, err := s.queue.DequeueMessages(s.ctx, &azqueue.DequeueMessagesOptions{NumberOfMessages: to.Ptr[int32](1)})
			if err != nil || len(resp.Messages) == 0 {
				return
			}
			msg := resp.Messages[0]
			if msg.MessageText == nil {
				continue
			}
			var env overflowEnvelope
			if err := json.Unmarshal([]byte(*msg.MessageText), &env); err != nil {
				_, _ = s.queue.DeleteMessage(s.ctx, *msg.MessageID, *msg.PopReceipt, nil)
				continue
			}
			body, err := base64.StdEncoding.DecodeString(env.Body)
			if err != nil {
				_, _ = s.queue.DeleteMessage(s.ctx, *msg.MessageID, *msg.PopReceipt, nil)
				continue
			}
			if !s.MemorySession.PushMsg(wire.Msg{Body: body, Flags: env.Flags}) {
				// In-memory pipe still full; leave the message invisible
				// in the queue and retry on the next drain trigger rather
				// than busy-looping.
				return
			}
			_, _ = s.queue.DeleteMessage(s.ctx, *msg.MessageID, *msg.PopReceipt, nil)
			s.mu.Lock()
			s.spilled--
			s.mu.Unlock()
		}
	}()
}

// Spilled reports how many messages currently sit in the overflow queue.
func (s *OverflowSession) Spilled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spilled
}
