package zmtpengine

import (
	"net"
	"sync/atomic"
)

// Metrics tracks per-engine statistics. Drivers call Increment* and
// collectors read via Get*, exactly as aznet's metrics.go does for its
// own transaction counters.
type Metrics interface {
	IncrementBytesSent(n int64)
	IncrementBytesReceived(n int64)
	IncrementMessagesSent()
	IncrementMessagesReceived()
	IncrementHandshakeFailure()
	IncrementHeartbeatTimeout()

	GetBytesSent() int64
	GetBytesReceived() int64
	GetMessagesSent() int64
	GetMessagesReceived() int64
	GetHandshakeFailures() int64
	GetHeartbeatTimeouts() int64
}

// DefaultMetrics implements Metrics with atomic counters.
type DefaultMetrics struct {
	bytesSent         int64
	bytesReceived     int64
	messagesSent      int64
	messagesReceived  int64
	handshakeFailures int64
	heartbeatTimeouts int64
}

// NewDefaultMetrics creates a new DefaultMetrics instance.
func NewDefaultMetrics() *DefaultMetrics { return &DefaultMetrics{} }

func (m *DefaultMetrics) IncrementBytesSent(n int64)     { atomic.AddInt64(&m.bytesSent, n) }
func (m *DefaultMetrics) IncrementBytesReceived(n int64) { atomic.AddInt64(&m.bytesReceived, n) }
func (m *DefaultMetrics) IncrementMessagesSent()         { atomic.AddInt64(&m.messagesSent, 1) }
func (m *DefaultMetrics) IncrementMessagesReceived()     { atomic.AddInt64(&m.messagesReceived, 1) }
func (m *DefaultMetrics) IncrementHandshakeFailure()     { atomic.AddInt64(&m.handshakeFailures, 1) }
func (m *DefaultMetrics) IncrementHeartbeatTimeout()     { atomic.AddInt64(&m.heartbeatTimeouts, 1) }

func (m *DefaultMetrics) GetBytesSent() int64        { return atomic.LoadInt64(&m.bytesSent) }
func (m *DefaultMetrics) GetBytesReceived() int64    { return atomic.LoadInt64(&m.bytesReceived) }
func (m *DefaultMetrics) GetMessagesSent() int64     { return atomic.LoadInt64(&m.messagesSent) }
func (m *DefaultMetrics) GetMessagesReceived() int64 { return atomic.LoadInt64(&m.messagesReceived) }
func (m *DefaultMetrics) GetHandshakeFailures() int64 {
	return atomic.LoadInt64(&m.handshakeFailures)
}
func (m *DefaultMetrics) GetHeartbeatTimeouts() int64 {
	return atomic.LoadInt64(&m.heartbeatTimeouts)
}

// GetMetrics returns the metrics from a connection if it supports metrics
// tracking, mirroring aznet.GetMetrics. It returns nil if the connection
// doesn't support metrics.
func GetMetrics(c net.Conn) Metrics {
	type metricsProvider interface{ GetMetrics() Metrics }
	if mp, ok := c.(metricsProvider); ok {
		return mp.GetMetrics()
	}
	return nil
}
