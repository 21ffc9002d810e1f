package wire

// RawChunkSize is the size of the buffer RawDecoder.Buffer hands out, so
// one socket read into it surfaces at most this much unframed data as one
// Msg; Decode itself turns whatever slice it is given into a single Msg.
const RawChunkSize = 64 * 1024

// RawDecoder passes socket bytes straight through to the session as
// opaque Msg values, with no framing at all (§4.2 Raw).
type RawDecoder struct {
	buf [RawChunkSize]byte
	msg Msg
}

// NewRawDecoder constructs a pass-through decoder for raw_socket mode.
func NewRawDecoder() *RawDecoder { return &RawDecoder{} }

func (d *RawDecoder) Buffer() []byte { return d.buf[:] }

func (d *RawDecoder) Decode(p []byte) (DecodeStatus, int, error) {
	if len(p) == 0 {
		return MoreData, 0, nil
	}
	body := make([]byte, len(p))
	copy(body, p)
	d.msg = Msg{Body: body}
	return Decoded, len(p), nil
}

func (d *RawDecoder) Msg() Msg { return d.msg }

// RawEncoder writes a queued Msg's body to the wire with no framing
// whatsoever (§4.2 Raw).
type RawEncoder struct {
	pending *Msg
	sent    int
}

// NewRawEncoder constructs a pass-through encoder for raw_socket mode.
func NewRawEncoder() *RawEncoder { return &RawEncoder{} }

func (e *RawEncoder) LoadMsg(m Msg) {
	e.pending = &m
	e.sent = 0
}

func (e *RawEncoder) Encode(view []byte, limit int) int {
	if e.pending == nil {
		return 0
	}
	if limit > len(view) {
		limit = len(view)
	}
	n := copy(view[:limit], e.pending.Body[e.sent:])
	e.sent += n
	if e.sent >= len(e.pending.Body) {
		e.pending = nil
	}
	return n
}

func (e *RawEncoder) Encoded() {}

// ZeroLengthTerminator builds the synthetic 0-length message Raw mode
// pushes to the session on connect and on peer disconnect (§4.3, §8
// scenario 6).
func ZeroLengthTerminator() Msg { return Msg{} }
