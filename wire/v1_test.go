package wire

import (
	"bytes"
	"testing"
)

func TestV1RoundTripShort(t *testing.T) {
	m := Msg{Body: []byte("hello"), Flags: FlagMore}
	wire := encodeAll(t, NewV1Encoder(), m)
	got := decodeAll(t, NewV1Decoder(0), wire)
	if !bytes.Equal(got.Body, m.Body) || got.More() != m.More() {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, m)
	}
}

func TestV1RoundTripLongForm(t *testing.T) {
	body := bytes.Repeat([]byte{0x07}, 300)
	m := Msg{Body: body}
	wire := encodeAll(t, NewV1Encoder(), m)
	if wire[0] != v1LongMarker {
		t.Fatalf("expected long-form marker for 300-byte body")
	}
	got := decodeAll(t, NewV1Decoder(0), wire)
	if !bytes.Equal(got.Body, body) {
		t.Fatalf("round trip mismatch for long body")
	}
}

func TestV1RoundTripZeroLength(t *testing.T) {
	wire := encodeAll(t, NewV1Encoder(), Msg{})
	got := decodeAll(t, NewV1Decoder(0), wire)
	if len(got.Body) != 0 {
		t.Fatalf("expected empty body, got %v", got.Body)
	}
}

func TestV1DecoderMaxMsgSize(t *testing.T) {
	dec := NewV1Decoder(4)
	wire := encodeAll(t, NewV1Encoder(), Msg{Body: []byte("toolong")})
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

func TestV1DecoderPrime(t *testing.T) {
	// Simulates the v0 greeting rule-2 path: the 10-byte signature already
	// consumed by Greeting doubles as a long-form length+flags header.
	dec := NewV1Decoder(0)
	if err := dec.Prime(4, 0); err != nil {
		t.Fatalf("prime: %v", err)
	}
	status, processed, err := dec.Decode([]byte("abc"))
	if err != nil || status != Decoded || processed != 3 {
		t.Fatalf("status=%v processed=%d err=%v", status, processed, err)
	}
	if !bytes.Equal(dec.Msg().Body, []byte("abc")) {
		t.Fatalf("unexpected body %q", dec.Msg().Body)
	}
}

func TestV1DecoderPrimeZeroBody(t *testing.T) {
	dec := NewV1Decoder(0)
	if err := dec.Prime(1, 0); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if len(dec.Msg().Body) != 0 {
		t.Fatalf("expected immediate zero-length message after priming")
	}
}
