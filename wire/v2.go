package wire

import "encoding/binary"

const (
	v2FlagMore    byte = 1 << 0
	v2FlagLong    byte = 1 << 1
	v2FlagCommand byte = 1 << 2
)

type v2phase int

const (
	v2PhaseFlags v2phase = iota
	v2PhaseShortLen
	v2PhaseLongLen
	v2PhaseBody
)

// V2Decoder decodes ZMTP/2.0 and ZMTP/3.x framing: a 1-byte flags field
// followed by either a 1-byte or (v2FlagLong set) 8-byte big-endian
// length, then the body (§4.2).
type V2Decoder struct {
	maxMsgSize int64

	phase   v2phase
	flags   byte
	longLen [8]byte
	longPos int
	bodyLen int

	body    []byte
	bodyPos int

	msg Msg
}

// NewV2Decoder constructs a decoder enforcing maxMsgSize (0 = unbounded).
func NewV2Decoder(maxMsgSize int64) *V2Decoder {
	return &V2Decoder{maxMsgSize: maxMsgSize}
}

func (d *V2Decoder) Buffer() []byte {
	switch d.phase {
	case v2PhaseFlags:
		return make([]byte, 1)
	case v2PhaseShortLen:
		return make([]byte, 1)
	case v2PhaseLongLen:
		return d.longLen[d.longPos:]
	case v2PhaseBody:
		return d.body[d.bodyPos:]
	}
	return nil
}

func (d *V2Decoder) Decode(p []byte) (DecodeStatus, int, error) {
	switch d.phase {
	case v2PhaseFlags:
		if len(p) == 0 {
			return MoreData, 0, nil
		}
		d.flags = p[0]
		if d.flags&v2FlagLong != 0 {
			d.phase = v2PhaseLongLen
			d.longPos = 0
		} else {
			d.phase = v2PhaseShortLen
		}
		return MoreData, 1, nil

	case v2PhaseShortLen:
		if len(p) == 0 {
			return MoreData, 0, nil
		}
		return d.startBody(int64(p[0]), 1)

	case v2PhaseLongLen:
		n := copy(d.longLen[d.longPos:], p)
		d.longPos += n
		if d.longPos < 8 {
			return MoreData, n, nil
		}
		size := binary.BigEndian.Uint64(d.longLen[:])
		status, _, err := d.startBody(int64(size), 0)
		return status, n, err

	case v2PhaseBody:
		n := copy(d.body[d.bodyPos:], p)
		d.bodyPos += n
		if d.bodyPos < len(d.body) {
			return MoreData, n, nil
		}
		flags := byte(0)
		if d.flags&v2FlagMore != 0 {
			flags |= FlagMore
		}
		if d.flags&v2FlagCommand != 0 {
			flags |= FlagCommand
		}
		d.msg = Msg{Body: d.body, Flags: flags}
		d.phase = v2PhaseFlags
		d.body = nil
		d.bodyPos = 0
		return Decoded, n, nil
	}
	return DecodeError, 0, nil
}

func (d *V2Decoder) startBody(size int64, consumed int) (DecodeStatus, int, error) {
	if d.maxMsgSize > 0 && size > d.maxMsgSize {
		return DecodeError, consumed, ErrMsgTooLarge
	}
	d.bodyLen = int(size)
	d.body = make([]byte, d.bodyLen)
	d.bodyPos = 0
	d.phase = v2PhaseBody
	if d.bodyLen == 0 {
		flags := byte(0)
		if d.flags&v2FlagMore != 0 {
			flags |= FlagMore
		}
		if d.flags&v2FlagCommand != 0 {
			flags |= FlagCommand
		}
		d.msg = Msg{Body: nil, Flags: flags}
		d.phase = v2PhaseFlags
		return Decoded, consumed, nil
	}
	return MoreData, consumed, nil
}

func (d *V2Decoder) Msg() Msg { return d.msg }

// V2Encoder encodes Msg values using ZMTP/2.0+ framing.
type V2Encoder struct {
	pending  *Msg
	hdr      [9]byte
	hdrLen   int
	hdrSent  int
	bodySent int
}

// NewV2Encoder constructs an encoder for the v2/v3 wire framing.
func NewV2Encoder() *V2Encoder { return &V2Encoder{} }

func (e *V2Encoder) LoadMsg(m Msg) {
	e.pending = &m
	e.hdrSent = 0
	e.bodySent = 0

	var flags byte
	if m.More() {
		flags |= v2FlagMore
	}
	if m.Command() {
		flags |= v2FlagCommand
	}

	size := len(m.Body)
	if size > 255 {
		flags |= v2FlagLong
		e.hdr[0] = flags
		binary.BigEndian.PutUint64(e.hdr[1:], uint64(size))
		e.hdrLen = 9
	} else {
		e.hdr[0] = flags
		e.hdr[1] = byte(size)
		e.hdrLen = 2
	}
}

func (e *V2Encoder) Encode(view []byte, limit int) int {
	if e.pending == nil {
		return 0
	}
	if limit > len(view) {
		limit = len(view)
	}
	total := 0

	if e.hdrSent < e.hdrLen {
		n := copy(view[:limit], e.hdr[e.hdrSent:e.hdrLen])
		e.hdrSent += n
		total += n
		if e.hdrSent < e.hdrLen {
			return total
		}
	}

	remaining := limit - total
	body := e.pending.Body
	if remaining > 0 && e.bodySent < len(body) {
		n := copy(view[total:total+remaining], body[e.bodySent:])
		e.bodySent += n
		total += n
	}

	if e.bodySent >= len(body) {
		e.pending = nil
	}
	return total
}

func (e *V2Encoder) Encoded() {}
