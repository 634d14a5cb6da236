package relay

import (
	"errors"
	"fmt"
)

// Header size limits, mirrored from original_source/play/src/sanitize.rs.
const (
	maxHeaders          = 100
	maxHeaderSize       = 8192
	maxTotalHeadersSize = 65536
)

var ErrTooManyHeaders = errors.New("relay: too many headers")

// HeaderTooLargeError reports a single oversized header.
type HeaderTooLargeError struct {
	Name string
	Size int
}

func (e *HeaderTooLargeError) Error() string {
	return fmt.Sprintf("relay: header %q too large (%d bytes, max %d)", e.Name, e.Size, maxHeaderSize)
}

// TotalHeadersTooLargeError reports that the summed header size exceeded
// the budget.
type TotalHeadersTooLargeError struct {
	Size int
}

func (e *TotalHeadersTooLargeError) Error() string {
	return fmt.Sprintf("relay: total header size %d bytes exceeds max %d", e.Size, maxTotalHeadersSize)
}

// SanitizeHeaders validates and filters a header map before it is forwarded
// to a CLI peer or echoed back as a captured response: unknown-shaped
// header names are dropped rather than failing the whole request, but
// exceeding the count or size budgets rejects it outright.
func SanitizeHeaders(headers map[string]string) (map[string]string, error) {
	if len(headers) > maxHeaders {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyHeaders, len(headers), maxHeaders)
	}

	sanitized := make(map[string]string, len(headers))
	total := 0
	for name, value := range headers {
		if !isValidHeaderName(name) {
			continue
		}
		size := len(name) + len(value)
		if size > maxHeaderSize {
			return nil, &HeaderTooLargeError{Name: name, Size: size}
		}
		total += size
		if total > maxTotalHeadersSize {
			return nil, &TotalHeadersTooLargeError{Size: total}
		}
		sanitized[name] = value
	}
	return sanitized, nil
}

// isValidHeaderName checks RFC 7230 tchar composition.
func isValidHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isTchar(name[i]) {
			return false
		}
	}
	return true
}

func isTchar(b byte) bool {
	switch {
	case b >= '0' && b <= '9', b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z':
		return true
	}
	switch b {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// IsValidStatusCode reports whether status falls in the HTTP status range.
func IsValidStatusCode(status int) bool {
	return status >= 100 && status <= 599
}
