package zapauth

import (
	"context"

	"github.com/atsika/zmtpengine/security"
)

// LocalPort adapts an in-process Authenticator to security.ZAPPort.
// Replies are computed synchronously, so ReadReply never reports
// "pending" -- useful for the reference engine, tests, and cmd/zmtpecho,
// where running a separate authenticator process is unnecessary.
type LocalPort struct {
	auth    *Authenticator
	domain  string
	address string
	ctx     context.Context
	pending []security.ZAPReply
}

// NewLocalPort builds a port that authenticates every request
// synchronously against auth. A nil auth disables ZAP entirely.
func NewLocalPort(auth *Authenticator, domain, address string) *LocalPort {
	return &LocalPort{auth: auth, domain: domain, address: address, ctx: context.Background()}
}

func (p *LocalPort) Enabled() bool  { return p.auth != nil }
func (p *LocalPort) Connect() error { return nil }

func (p *LocalPort) WriteRequest(req security.ZAPRequest) error {
	reply := p.auth.Authenticate(p.ctx, Request{
		RequestID:   NewRequestID(),
		Domain:      p.domain,
		Address:     p.address,
		Identity:    req.Identity,
		Mechanism:   req.Mechanism,
		Credentials: req.Credentials,
	})
	p.pending = append(p.pending, security.ZAPReply{
		StatusCode: reply.StatusCode,
		UserID:     []byte(reply.UserID),
		Metadata:   reply.Metadata,
	})
	return nil
}

func (p *LocalPort) ReadReply() (*security.ZAPReply, bool, error) {
	if len(p.pending) == 0 {
		return nil, false, nil
	}
	r := p.pending[0]
	p.pending = p.pending[1:]
	return &r, true, nil
}

// NetworkPort adapts a Channel (a Noise-secured link to a separate
// Authenticator process) to security.ZAPPort. WriteRequest sends
// immediately; ReadReply performs a non-blocking check against a
// background-filled reply channel so the engine's single-threaded
// handshake loop never blocks on authenticator round-trip latency (§9 ZAP
// blocking note).
type NetworkPort struct {
	dial    func() (*Channel, error)
	domain  string
	address string

	ch      *Channel
	replies chan security.ZAPReply
	errs    chan error
}

// NewNetworkPort builds a port that dials dial() on first use and keeps
// the connection open across requests.
func NewNetworkPort(domain, address string, dial func() (*Channel, error)) *NetworkPort {
	return &NetworkPort{dial: dial, domain: domain, address: address}
}

func (p *NetworkPort) Enabled() bool { return p.dial != nil }

func (p *NetworkPort) Connect() error {
	if p.ch != nil {
		return nil
	}
	ch, err := p.dial()
	if err != nil {
		return err
	}
	p.ch = ch
	p.replies = make(chan security.ZAPReply, 1)
	p.errs = make(chan error, 1)
	return nil
}

func (p *NetworkPort) WriteRequest(req security.ZAPRequest) error {
	id := NewRequestID()
	if err := p.ch.WriteRequest(Request{
		RequestID: id, Domain: p.domain, Address: p.address,
		Identity: req.Identity, Mechanism: req.Mechanism, Credentials: req.Credentials,
	}); err != nil {
		return err
	}
	go func() {
		reply, err := p.ch.ReadReply()
		if err != nil {
			p.errs <- err
			return
		}
		p.replies <- security.ZAPReply{StatusCode: reply.StatusCode, UserID: []byte(reply.UserID), Metadata: reply.Metadata}
	}()
	return nil
}

func (p *NetworkPort) ReadReply() (*security.ZAPReply, bool, error) {
	select {
	case reply := <-p.replies:
		return &reply, true, nil
	case err := <-p.errs:
		return nil, false, err
	default:
		return nil, false, nil
	}
}
