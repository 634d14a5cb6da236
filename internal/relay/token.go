// Package relay implements C11: the public tunnel server that issues
// capture tokens, accepts a single CLI peer per token over a WebSocket,
// and forwards inbound HTTP requests arriving at /in/<token>/... to that
// peer while the caller's HTTP connection blocks for the peer's reply.
//
// Grounded on original_source/play/src/relay/{token,message}.rs for the
// wire format and original_source/play/src/lib.rs for the AppState shape,
// adapted to Go's connection-hub idiom shown by
// internal/websocket/dag_streamer.go (register/unregister channels).
package relay

import (
	"crypto/rand"
	"math/big"
)

const (
	base62Alphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	tokenPrefix      = "c_"
	tokenRandomLen   = 27
)

// GenerateToken mints a new capture token of the form c_<27 base62 chars>.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenRandomLen)
	alphabetLen := big.NewInt(int64(len(base62Alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = base62Alphabet[n.Int64()]
	}
	return tokenPrefix + string(buf), nil
}

// IsValidToken reports whether token has the c_<27 alphanumeric> shape.
func IsValidToken(token string) bool {
	if len(token) != len(tokenPrefix)+tokenRandomLen {
		return false
	}
	if token[:len(tokenPrefix)] != tokenPrefix {
		return false
	}
	for _, c := range token[len(tokenPrefix):] {
		if !isAlphanumeric(c) {
			return false
		}
	}
	return true
}

func isAlphanumeric(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
