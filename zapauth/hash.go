package zapauth

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashPassword stores PLAIN passwords as salted-by-username SHA-256
// digests rather than plaintext, so a leaked table entity does not hand
// out a usable password directly. This is deliberately not bcrypt/scrypt:
// ZAP credentials are re-checked on every handshake and the directory is
// already access-controlled Azure Table storage, not a public login form.
func hashPassword(username, password string) string {
	sum := sha256.Sum256([]byte(username + "\x00" + password))
	return hex.EncodeToString(sum[:])
}
