package zmtpengine

import (
	"encoding/binary"
	"time"

	"github.com/atsika/zmtpengine/wire"
)

// maxHeartbeatContext bounds the context bytes carried in PING/PONG, per
// §6.1 `context[<=16]`.
const maxHeartbeatContext = 16

// buildPing encodes a PING command: short_string("PING") || uint16(ttl in
// 100ms units) || context (§6.1, §4.6).
func buildPing(ttl time.Duration, ctx []byte) []byte {
	out := wire.ShortString("PING")
	var ttlField [2]byte
	binary.BigEndian.PutUint16(ttlField[:], ttlHundredths(ttl))
	out = append(out, ttlField[:]...)
	return append(out, clampContext(ctx)...)
}

// buildPong encodes a PONG command: short_string("PONG") || context.
func buildPong(ctx []byte) []byte {
	out := wire.ShortString("PONG")
	return append(out, clampContext(ctx)...)
}

// parsePingBody decodes the ttl/context fields following the "PING"
// short_string prefix already consumed by the caller.
func parsePingBody(body []byte) (ttl uint16, ctx []byte, ok bool) {
	if len(body) < 2 {
		return 0, nil, false
	}
	ttl = binary.BigEndian.Uint16(body[:2])
	return ttl, clampContext(body[2:]), true
}

func clampContext(ctx []byte) []byte {
	if len(ctx) > maxHeartbeatContext {
		ctx = ctx[:maxHeartbeatContext]
	}
	out := make([]byte, len(ctx))
	copy(out, ctx)
	return out
}

func ttlHundredths(d time.Duration) uint16 {
	if d <= 0 {
		return 0
	}
	v := d / (100 * time.Millisecond)
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
