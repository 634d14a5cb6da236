package relayclient

import (
	"crypto/rand"
	"math/big"
)

const (
	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	tokenPrefix    = "c_"
	tokenRandomLen = 27
)

// GenerateToken mints a new capture token, matching the format
// internal/relay.GenerateToken issues server-side. The CLI client
// generates its own token up front so it can print the resulting
// webhook URL before the handshake confirms it, and so it can mint a
// fresh one on a token_in_use collision without a server round trip.
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
