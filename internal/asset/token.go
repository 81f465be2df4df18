package asset

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// tokenBytes is 16 bytes: 128 bits of entropy for the asset-stream
// session token.
const tokenBytes = 16

// GenerateSessionToken produces a cryptographically random, hex-encoded
// session token delivered to the shell via the command router's
// get_session_token command and required on every asset request.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.InternalError("failed to generate session token", err)
	}
	return hex.EncodeToString(buf), nil
}

// tokensEqual compares two tokens in constant time so a timing side-channel
// can't be used to guess the token byte by byte.
func tokensEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
