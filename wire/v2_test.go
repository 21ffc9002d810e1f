package wire

import (
	"bytes"
	"testing"
)

func encodeAll(t *testing.T, enc Encoder, m Msg) []byte {
	t.Helper()
	enc.LoadMsg(m)
	var out []byte
	view := make([]byte, 3) // small view forces multiple Encode calls
	for {
		n := enc.Encode(view, len(view))
		if n == 0 {
			break
		}
		out = append(out, view[:n]...)
	}
	enc.Encoded()
	return out
}

func decodeAll(t *testing.T, dec Decoder, wire []byte) Msg {
	t.Helper()
	for len(wire) > 0 {
		buf := dec.Buffer()
		n := copy(buf, wire)
		status, processed, err := dec.Decode(buf[:n])
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if processed > n {
			t.Fatalf("processed %d exceeds input %d", processed, n)
		}
		wire = wire[processed:]
		if status == Decoded {
			return dec.Msg()
		}
	}
	t.Fatalf("ran out of input before DECODED")
	return Msg{}
}

func TestV2RoundTripShort(t *testing.T) {
	m := Msg{Body: []byte("hello"), Flags: FlagMore}
	wire := encodeAll(t, NewV2Encoder(), m)
	got := decodeAll(t, NewV2Decoder(0), wire)
	if !bytes.Equal(got.Body, m.Body) || got.More() != m.More() {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, m)
	}
}

func TestV2RoundTripLong(t *testing.T) {
	body := bytes.Repeat([]byte{0x42}, 300)
	m := Msg{Body: body, Flags: FlagCommand}
	wire := encodeAll(t, NewV2Encoder(), m)
	if wire[0]&v2FlagLong == 0 {
		t.Fatalf("expected long-form flag for 300-byte body")
	}
	got := decodeAll(t, NewV2Decoder(0), wire)
	if !bytes.Equal(got.Body, body) || !got.Command() {
		t.Fatalf("round trip mismatch for long body")
	}
}

func TestV2RoundTripZeroLength(t *testing.T) {
	wire := encodeAll(t, NewV2Encoder(), Msg{})
	got := decodeAll(t, NewV2Decoder(0), wire)
	if len(got.Body) != 0 {
		t.Fatalf("expected empty body, got %v", got.Body)
	}
}

func TestV2DecoderIncrementalByteAtATime(t *testing.T) {
	m := Msg{Body: []byte("incremental"), Flags: FlagMore}
	wire := encodeAll(t, NewV2Encoder(), m)

	dec := NewV2Decoder(0)
	var got Msg
	for i, b := range wire {
		status, processed, err := dec.Decode([]byte{b})
		if err != nil {
			t.Fatalf("decode error at byte %d: %v", i, err)
		}
		if processed != 1 {
			t.Fatalf("expected to consume exactly 1 byte, got %d", processed)
		}
		if status == Decoded {
			got = dec.Msg()
			if i != len(wire)-1 {
				t.Fatalf("decoded early at byte %d of %d", i, len(wire))
			}
		}
	}
	if !bytes.Equal(got.Body, m.Body) {
		t.Fatalf("incremental round trip mismatch: got %q want %q", got.Body, m.Body)
	}
}

func TestV2DecoderMaxMsgSize(t *testing.T) {
	dec := NewV2Decoder(4)
	wire := encodeAll(t, NewV2Encoder(), Msg{Body: []byte("toolong")})
	for len(wire) > 0 {
		buf := dec.Buffer()
		n := copy(buf, wire)
		status, processed, err := dec.Decode(buf[:n])
		wire = wire[processed:]
		if status == DecodeError {
			if err != ErrMsgTooLarge {
				t.Fatalf("expected ErrMsgTooLarge, got %v", err)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	t.Fatalf("expected DecodeError, decoder accepted oversize message")
}
