package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Metadata holds ZMTP connection properties (property name -> value bytes),
// as exchanged in v3 READY commands and published to the session as the
// peer's metadata map (§3 Engine.metadata).
type Metadata map[string]string

// Clone returns a shallow copy safe for a caller to mutate independently.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Encode serializes m using the ZMTP metadata wire format: repeated
// [1-byte name length][name][4-byte BE value length][value].
func (m Metadata) Encode() []byte {
	var buf bytes.Buffer
	for name, value := range m {
		buf.WriteByte(byte(len(name)))
		buf.WriteString(name)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
		buf.Write(lenBuf[:])
		buf.WriteString(value)
	}
	return buf.Bytes()
}

// DecodeMetadata parses the ZMTP metadata wire format produced by Encode.
func DecodeMetadata(b []byte) (Metadata, error) {
	m := make(Metadata)
	for len(b) > 0 {
		if len(b) < 1 {
			return nil, fmt.Errorf("wire: truncated metadata name length")
		}
		nameLen := int(b[0])
		b = b[1:]
		if len(b) < nameLen+4 {
			return nil, fmt.Errorf("wire: truncated metadata entry")
		}
		name := string(b[:nameLen])
		b = b[nameLen:]
		valLen := int(binary.BigEndian.Uint32(b[:4]))
		b = b[4:]
		if len(b) < valLen {
			return nil, fmt.Errorf("wire: truncated metadata value")
		}
		m[name] = string(b[:valLen])
		b = b[valLen:]
	}
	return m, nil
}
