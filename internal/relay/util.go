package relay

import "encoding/base64"

func base64EncodeToString(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func base64DecodeString(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
