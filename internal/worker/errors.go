package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"
)

// Canonical outbound-delivery error kinds, stored verbatim in
// Response.ErrorName, per §7.
const (
	ErrConnection    = "E_CONNECTION"
	ErrTimeout       = "E_TIMEOUT"
	ErrHTTP          = "E_HTTP"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrUnknown       = "E_UNKNOWN"
)

// classifyRequestError maps a failure from building or executing the
// outbound request to one of the canonical error kinds.
func classifyRequestError(err error) string {
	if err == nil {
		return ""
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return ErrTimeout
		}
		if errors.Is(urlErr.Err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		var dnsErr *net.DNSError
		if errors.As(urlErr.Err, &dnsErr) {
			return ErrConnection
		}
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			return ErrConnection
		}
		var certErr *tls.CertificateVerificationError
		if errors.As(urlErr.Err, &certErr) {
			return ErrConnection
		}
		if errors.Is(urlErr.Err, context.Canceled) {
			return ErrUnknown
		}
		return ErrConnection
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	return ErrUnknown
}
