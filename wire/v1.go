package wire

import "encoding/binary"

const v1LongMarker = 0xFF

type v1phase int

const (
	v1PhaseShortLen v1phase = iota
	v1PhaseLongLen
	v1PhaseFlags
	v1PhaseBody
)

// V1Decoder decodes ZMTP/1.0 framing: a length (1 byte, or 0xFF followed by
// an 8-byte big-endian length) counting the flags byte plus body, then the
// flags byte, then the body (§4.2).
type V1Decoder struct {
	maxMsgSize int64

	phase   v1phase
	longLen [8]byte
	longPos int
	total   int64 // length field value: flags byte + body
	flags   byte

	body    []byte
	bodyPos int

	msg Msg
}

// NewV1Decoder constructs a decoder enforcing maxMsgSize (0 = unbounded).
func NewV1Decoder(maxMsgSize int64) *V1Decoder {
	return &V1Decoder{maxMsgSize: maxMsgSize}
}

// Prime seeds the decoder with a length+flags header already consumed
// elsewhere (the v0 greeting rule-2 case, where the long-form header
// doubles as the signature). total is the raw length field value (flags
// byte + body); flags is the already-read flags byte.
func (d *V1Decoder) Prime(total int64, flags byte) error {
	d.total = total
	d.flags = flags
	bodyLen := d.total - 1
	if bodyLen < 0 {
		return ErrMsgTooLarge
	}
	if d.maxMsgSize > 0 && bodyLen > d.maxMsgSize {
		return ErrMsgTooLarge
	}
	d.body = make([]byte, bodyLen)
	d.bodyPos = 0
	d.phase = v1PhaseBody
	if bodyLen == 0 {
		d.finish()
	}
	return nil
}

func (d *V1Decoder) Buffer() []byte {
	switch d.phase {
	case v1PhaseShortLen, v1PhaseFlags:
		return make([]byte, 1)
	case v1PhaseLongLen:
		return d.longLen[d.longPos:]
	case v1PhaseBody:
		return d.body[d.bodyPos:]
	}
	return nil
}

func (d *V1Decoder) Decode(p []byte) (DecodeStatus, int, error) {
	switch d.phase {
	case v1PhaseShortLen:
		if len(p) == 0 {
			return MoreData, 0, nil
		}
		if p[0] == v1LongMarker {
			d.phase = v1PhaseLongLen
			d.longPos = 0
			return MoreData, 1, nil
		}
		d.total = int64(p[0])
		d.phase = v1PhaseFlags
		return MoreData, 1, nil

	case v1PhaseLongLen:
		n := copy(d.longLen[d.longPos:], p)
		d.longPos += n
		if d.longPos < 8 {
			return MoreData, n, nil
		}
		d.total = int64(binary.BigEndian.Uint64(d.longLen[:]))
		d.phase = v1PhaseFlags
		return MoreData, n, nil

	case v1PhaseFlags:
		if len(p) == 0 {
			return MoreData, 0, nil
		}
		d.flags = p[0]
		bodyLen := d.total - 1
		if bodyLen < 0 {
			return DecodeError, 1, ErrMsgTooLarge
		}
		if d.maxMsgSize > 0 && bodyLen > d.maxMsgSize {
			return DecodeError, 1, ErrMsgTooLarge
		}
		d.body = make([]byte, bodyLen)
		d.bodyPos = 0
		d.phase = v1PhaseBody
		if bodyLen == 0 {
			d.finish()
			return Decoded, 1, nil
		}
		return MoreData, 1, nil

	case v1PhaseBody:
		n := copy(d.body[d.bodyPos:], p)
		d.bodyPos += n
		if d.bodyPos < len(d.body) {
			return MoreData, n, nil
		}
		d.finish()
		return Decoded, n, nil
	}
	return DecodeError, 0, nil
}

func (d *V1Decoder) finish() {
	var flags byte
	if d.flags&v2FlagMore != 0 {
		flags |= FlagMore
	}
	d.msg = Msg{Body: d.body, Flags: flags}
	d.phase = v1PhaseShortLen
	d.body = nil
	d.bodyPos = 0
}

func (d *V1Decoder) Msg() Msg { return d.msg }

// V1Encoder encodes Msg values using ZMTP/1.0 framing. V1 carries no
// COMMAND bit on the wire; callers must not load command frames through it.
type V1Encoder struct {
	pending  *Msg
	hdr      [10]byte
	hdrLen   int
	hdrSent  int
	bodySent int
}

// NewV1Encoder constructs an encoder for the legacy v1 wire framing.
func NewV1Encoder() *V1Encoder { return &V1Encoder{} }

func (e *V1Encoder) LoadMsg(m Msg) {
	e.pending = &m
	e.hdrSent = 0
	e.bodySent = 0

	var flags byte
	if m.More() {
		flags |= v2FlagMore
	}

	total := int64(len(m.Body)) + 1
	if total >= v1LongMarker {
		e.hdr[0] = v1LongMarker
		binary.BigEndian.PutUint64(e.hdr[1:9], uint64(total))
		e.hdr[9] = flags
		e.hdrLen = 10
	} else {
		e.hdr[0] = byte(total)
		e.hdr[1] = flags
		e.hdrLen = 2
	}
}

func (e *V1Encoder) Encode(view []byte, limit int) int {
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

func (e *V1Encoder) Encoded() {}
