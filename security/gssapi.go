package security

import "github.com/atsika/zmtpengine/wire"

// GSSAPI is an unsupported mechanism placeholder: it is accepted as a
// configuration value (so a client advertising GSSAPI fails cleanly with
// a PROTOCOL error rather than an unrecognized-mechanism panic) but never
// reaches StatusReady.
type GSSAPI struct{}

func NewGSSAPI() *GSSAPI { return &GSSAPI{} }

func (g *GSSAPI) Name() string { return "GSSAPI" }

func (g *GSSAPI) NextHandshakeCommand() (wire.Msg, bool) {
	return wire.Msg{Body: encodeErrorBody("")}, true
}

func (g *GSSAPI) ProcessHandshakeCommand(wire.Msg) error { return ErrUnsupportedMechanism }
func (g *GSSAPI) Status() Status                         { return StatusErrored }
func (g *GSSAPI) UserID() []byte                         { return nil }
func (g *GSSAPI) Encode(m wire.Msg) (wire.Msg, error)    { return wire.Msg{}, ErrUnsupportedMechanism }
func (g *GSSAPI) Decode(m wire.Msg) (wire.Msg, error)    { return wire.Msg{}, ErrUnsupportedMechanism }
