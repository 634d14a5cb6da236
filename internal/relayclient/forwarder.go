package relayclient

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ForwardResult carries the local target's response, or the reason it
// could not be reached. Grounded on
// original_source/cli/src/tunnel/forwarder.rs's ForwardResult.
type ForwardResult struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	ElapsedMS  int64
	Err        error
}

// Forwarder proxies a forwarded webhook request to the local HTTP target
// the operator is developing against.
type Forwarder struct {
	client    *http.Client
	targetURL string
}

// NewForwarder builds a Forwarder against targetURL with a 30s request
// timeout, matching the original client's default.
func NewForwarder(targetURL string, insecureSkipVerify bool) *Forwarder {
	transport := http.DefaultTransport
	if insecureSkipVerify {
		transport = &http.Transport{TLSClientConfig: insecureTLSConfig()}
	}
	return &Forwarder{
		client:    &http.Client{Timeout: 30 * time.Second, Transport: transport},
		targetURL: targetURL,
	}
}

// Forward sends method/path/headers/body to the local target and returns
// its response (or a synthetic ForwardResult describing why it couldn't
// be reached, mirroring forward()'s connect/timeout branches in the
// original Rust client so the relay peer always gets *some* response to
// relay back rather than an unhandled error).
func (f *Forwarder) Forward(method, path string, headers map[string]string, body []byte) ForwardResult {
	start := time.Now()

	target := f.targetURL
	if path != "" && path != "/" {
		target = strings.TrimRight(target, "/") + path
	}

	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	if err != nil {
		return ForwardResult{ElapsedMS: time.Since(start).Milliseconds(), Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			return ForwardResult{ElapsedMS: elapsed, Err: errors.New("request timeout")}
		case isConnRefused(err):
			return ForwardResult{ElapsedMS: elapsed, Err: errors.New("connection refused: " + f.targetURL)}
		default:
			return ForwardResult{ElapsedMS: elapsed, Err: err}
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	respHeaders := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		respHeaders[k] = strings.Join(v, ", ")
	}

	return ForwardResult{
		StatusCode: resp.StatusCode,
		Headers:    respHeaders,
		Body:       respBody,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
}

// HealthCheck reports whether the target accepted a GET at all (any
// response, including 4xx/5xx, counts as reachable).
func (f *Forwarder) HealthCheck() bool {
	resp, err := f.client.Get(f.targetURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return true
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && strings.Contains(opErr.Err.Error(), "refused")
}

// ParseTarget normalizes a --target argument (bare port, host:port, or
// full URL) into a base URL, matching
// original_source/cli/src/tunnel/forwarder.rs's parse_target.
func ParseTarget(target string) (string, error) {
	if port, err := strconv.ParseUint(target, 10, 16); err == nil {
		return "http://localhost:" + strconv.FormatUint(port, 10), nil
	}

	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		if _, err := url.Parse(target); err != nil {
			return "", errors.New("invalid URL: " + err.Error())
		}
		return target, nil
	}

	if strings.HasPrefix(target, "[") {
		return "http://" + target, nil
	}
	if strings.Contains(target, ":") && !strings.Contains(target, "::") {
		return "http://" + target, nil
	}
	return "http://" + target + ":3000", nil
}
