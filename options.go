package zmtpengine

import (
	"context"
	"time"

	"github.com/atsika/zmtpengine/security"
)

const (
	// DefaultMaxMsgSize is the default decoder limit (0 would mean
	// unbounded; the engine picks a concrete default instead so a
	// misbehaving peer cannot force unbounded allocation).
	DefaultMaxMsgSize = 64 * 1024 * 1024

	// DefaultRcvBuf/DefaultSndBuf are the default buffer sizes. sndbuf
	// sizes the scratch buffer transmit encodes into, allocated anew on
	// every transmit call; rcvbuf is stored but not read by the engine,
	// which reads into the decoder's own buffer.
	DefaultRcvBuf = 8192
	DefaultSndBuf = 8192

	// DefaultHandshakeIvl bounds how long a peer has to complete the
	// greeting and mechanism handshake before HANDSHAKE_TIMER fires.
	DefaultHandshakeIvl = 30 * time.Second

	// DefaultEgressBatch bounds how many messages next_msg/encode will
	// pull from the session in one writable callback before yielding
	// back to the reactor (§4.3 egress batching).
	DefaultEgressBatch = 64
)

// Mechanism selects the ZMTP security mechanism (§6.3).
type Mechanism int

const (
	MechanismNull Mechanism = iota
	MechanismPlain
	MechanismCurve
	MechanismGSSAPI
)

func (m Mechanism) String() string {
	switch m {
	case MechanismNull:
		return "NULL"
	case MechanismPlain:
		return "PLAIN"
	case MechanismCurve:
		return "CURVE"
	case MechanismGSSAPI:
		return "GSSAPI"
	default:
		return "UNKNOWN"
	}
}

// Option defines a functional option for NewEngine, exactly as aznet's
// options.go does for Listen/Dial.
type Option func(*Config)

// Config holds per-engine settings (§6.3). Zero value yields sane
// defaults via defaultConfig(); callers modify it through Option values.
type Config struct {
	ctx    context.Context
	cancel context.CancelFunc

	metrics Metrics

	mechanism Mechanism
	asServer  bool
	socket    string
	identity  []byte

	rawSocket bool

	heartbeatIvl     time.Duration
	heartbeatTimeout time.Duration
	heartbeatTTL     time.Duration
	heartbeatContext []byte

	handshakeIvl time.Duration

	maxMsgSize int64
	rcvbuf     int
	sndbuf     int

	selfAddressPropertyName string

	egressBatch int

	// Mechanism-specific material the generic Mechanism enum can't carry
	// (§11 domain stack: CURVE's NaCl keys, PLAIN's client credentials).
	plainUsername       string
	plainPassword        string
	curveIdentity        security.CurveIdentity
	curvePeerPublicKey   [32]byte
}

// Validate checks for invalid combinations, in aznet's Config.Validate
// style.
func (c *Config) Validate() error {
	if c.rawSocket && c.mechanism != MechanismNull {
		return ErrInvalidConfig
	}
	if c.heartbeatTimeout > 0 && c.heartbeatIvl <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

func defaultConfig() *Config {
	ctx, cancel := context.WithCancel(context.Background())
	return &Config{
		ctx:          ctx,
		cancel:       cancel,
		metrics:      NewDefaultMetrics(),
		mechanism:    MechanismNull,
		socket:       "DEALER",
		handshakeIvl: DefaultHandshakeIvl,
		maxMsgSize:   DefaultMaxMsgSize,
		rcvbuf:       DefaultRcvBuf,
		sndbuf:       DefaultSndBuf,
		egressBatch:  DefaultEgressBatch,
	}
}

func applyConfig(opts []Option) *Config {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithMechanism selects NULL/PLAIN/CURVE/GSSAPI (default NULL).
func WithMechanism(m Mechanism) Option {
	return func(c *Config) { c.mechanism = m }
}

// WithAsServer marks this engine as the listening side of the connection,
// fed into the v3 greeting's as_server bit and CURVE's server/client
// state machine selection.
func WithAsServer(asServer bool) Option {
	return func(c *Config) { c.asServer = asServer }
}

// WithSocketType sets the socket-type name published in READY metadata
// and the v1/v2 greeting tail (e.g. "DEALER", "PUB").
func WithSocketType(socket string) Option {
	return func(c *Config) {
		if socket != "" {
			c.socket = socket
		}
	}
}

// WithIdentity sets the identity bytes sent in the v0/v1/v2 greeting tail
// and as a v3 READY property for REQ/DEALER/ROUTER sockets.
func WithIdentity(identity []byte) Option {
	return func(c *Config) { c.identity = identity }
}

// WithRawSocket skips greeting/handshake entirely and drives the Raw
// codec, synthesizing zero-length connect/disconnect messages.
func WithRawSocket(raw bool) Option {
	return func(c *Config) { c.rawSocket = raw }
}

// WithHeartbeat enables the PING/PONG subsystem. A zero interval disables
// it (the default).
func WithHeartbeat(interval, timeout, ttl time.Duration) Option {
	return func(c *Config) {
		c.heartbeatIvl = interval
		c.heartbeatTimeout = timeout
		c.heartbeatTTL = ttl
	}
}

// WithHeartbeatContext sets the bytes echoed in every PING payload.
func WithHeartbeatContext(ctx []byte) Option {
	return func(c *Config) { c.heartbeatContext = ctx }
}

// WithHandshakeInterval overrides the overall handshake timeout. Zero
// disables it.
func WithHandshakeInterval(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.handshakeIvl = d
		}
	}
}

// WithMaxMsgSize overrides the decoder's frame-size limit. Zero means
// unbounded.
func WithMaxMsgSize(n int64) Option {
	return func(c *Config) {
		if n >= 0 {
			c.maxMsgSize = n
		}
	}
}

// WithBuffers sets the batch-buffer sizes (§5, lower-bounded in spirit by
// SO_RCVBUF/SO_SNDBUF, which this module leaves to the transport).
func WithBuffers(rcvbuf, sndbuf int) Option {
	return func(c *Config) {
		if rcvbuf > 0 {
			c.rcvbuf = rcvbuf
		}
		if sndbuf > 0 {
			c.sndbuf = sndbuf
		}
	}
}

// WithSelfAddressPropertyName publishes the engine's own local address
// into the peer's metadata under the given property name, if set.
func WithSelfAddressPropertyName(name string) Option {
	return func(c *Config) { c.selfAddressPropertyName = name }
}

// WithEgressBatch overrides how many messages a single writable callback
// will pull from the session before yielding.
func WithEgressBatch(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.egressBatch = n
		}
	}
}

// WithContext sets the base context for this engine's lifetime; canceling
// it is not itself wired to tear down the engine (the reactor owns
// lifecycle), but reference Session/ZAPPort implementations may honor it.
func WithContext(ctx context.Context) Option {
	return func(c *Config) {
		if ctx != nil {
			c.ctx, c.cancel = context.WithCancel(ctx)
		}
	}
}

// WithMetrics installs a custom Metrics implementation. If not provided,
// DefaultMetrics is used.
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithPlainCredentials sets the client-side PLAIN username/password sent
// in HELLO (§12 supplemented PLAIN mechanism). Unused on the server side,
// which authenticates incoming HELLOs via ZAP instead.
func WithPlainCredentials(username, password string) Option {
	return func(c *Config) { c.plainUsername, c.plainPassword = username, password }
}

// WithCurveIdentity sets this engine's own long-term CURVE keypair,
// required on both sides of a CURVE connection.
func WithCurveIdentity(id security.CurveIdentity) Option {
	return func(c *Config) { c.curveIdentity = id }
}

// WithCurveServerKey sets the server's long-term public key a CURVE
// client must know in advance to build HELLO/INITIATE (§4.5).
func WithCurveServerKey(pub [32]byte) Option {
	return func(c *Config) { c.curvePeerPublicKey = pub }
}
