package zmtpengine

import (
	"github.com/atsika/zmtpengine/security"
	"github.com/atsika/zmtpengine/session"
)

// sessionZAPPort adapts a session.Session's ZAP methods (§6.2
// zap_connect/read_zap_msg/write_zap_msg/zap_enabled) to the narrower
// security.ZAPPort a Mechanism drives its handshake with, so CURVE/PLAIN
// never depend on a concrete authenticator -- only on whatever ZAP
// transport the session was built with (zapauth.LocalPort,
// zapauth.NetworkPort, or a test double).
type sessionZAPPort struct {
	sess session.Session
}

func (p *sessionZAPPort) Enabled() bool { return p.sess != nil && p.sess.ZAPEnabled() }

func (p *sessionZAPPort) Connect() error {
	if p.sess == nil {
		return nil
	}
	return p.sess.ZAPConnect()
}

func (p *sessionZAPPort) WriteRequest(req security.ZAPRequest) error {
	if p.sess == nil {
		return nil
	}
	return p.sess.WriteZAPMsg(req)
}

func (p *sessionZAPPort) ReadReply() (*security.ZAPReply, bool, error) {
	if p.sess == nil {
		return nil, false, nil
	}
	return p.sess.ReadZAPMsg()
}
