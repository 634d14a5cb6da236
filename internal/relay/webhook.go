package relay

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// handleWebhookReceiver implements the /in/<token>[/path] capture endpoint:
// it records the inbound request, forwards it to the token's connected CLI
// peer if any, and blocks for the peer's reply up to the response
// deadline. With no peer connected the request is merely queued and
// answered 202 Accepted, matching original_source/play/src/lib.rs's route
// table (webhook_receiver / webhook_receiver_with_path).
func (s *Server) handleWebhookReceiver(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	token, path := splitTokenPath(r.URL.Path)

	if !IsValidToken(token) {
		if !s.invalidTokens.CheckAllowed(ip) {
			writeRelayError(w, http.StatusTooManyRequests, errInvalidTokenBlocked())
			return
		}
		s.invalidTokens.RecordInvalid(ip)
		http.NotFound(w, r)
		return
	}

	if s.rateLimiters != nil {
		if rlErr := s.rateLimiters.AllowAll(ip, token); rlErr != nil {
			w.Header().Set("Retry-After", strconv.Itoa(rlErr.RetryAfterSecs))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	maxPayload := s.limits.MaxPayloadSize
	if maxPayload <= 0 {
		maxPayload = 10 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > maxPayload {
		writeRelayError(w, http.StatusRequestEntityTooLarge, errPayloadTooLarge(maxPayload, int64(len(body))))
		return
	}

	headers := flattenRequestHeaders(r.Header)
	sanitized, err := SanitizeHeaders(headers)
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestHeaderFieldsTooLarge)
		return
	}

	id := uuid.New().String()
	wh := &StoredWebhook{
		ID:         id,
		Method:     r.Method,
		Path:       path,
		Query:      r.URL.RawQuery,
		Headers:    sanitized,
		Body:       body,
		BodyB64:    base64EncodeToString(body),
		ReceivedAt: time.Now(),
		Status:     "pending",
	}
	s.storage.PutWebhook(token, wh)
	s.storage.GetOrCreateSession(token)

	reply, connected, fwdErr := s.forwardToPeer(token, id, r.Method, path, r.URL.RawQuery, sanitized, body)
	if !connected {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"queued","id":"` + id + `"}`))
		return
	}
	if fwdErr != nil {
		if errors.Is(fwdErr, errTimeout) {
			s.storage.UpdateWebhookResult(token, id, "timeout", 0)
			http.Error(w, "peer did not respond in time", http.StatusGatewayTimeout)
		} else {
			s.storage.UpdateWebhookResult(token, id, "error", 0)
			http.Error(w, "peer connection failed", http.StatusBadGateway)
		}
		return
	}

	status := reply.Status
	if !IsValidStatusCode(status) {
		status = http.StatusBadGateway
	}
	s.storage.UpdateWebhookResult(token, id, "delivered", status)

	maxResp := s.limits.MaxResponseBodySize
	if maxResp > 0 && int64(len(reply.Body)) > maxResp {
		writeRelayError(w, http.StatusBadGateway, errResponseTooLarge(maxResp, int64(len(reply.Body))))
		return
	}
	for k, v := range reply.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	w.Write(reply.Body)
}

// splitTokenPath extracts the token and remaining path segment from a
// /in/<token>[/rest...] request path.
func splitTokenPath(urlPath string) (token, rest string) {
	trimmed := strings.TrimPrefix(urlPath, "/in/")
	idx := strings.Index(trimmed, "/")
	if idx < 0 {
		return trimmed, ""
	}
	return trimmed[:idx], trimmed[idx:]
}

// flattenRequestHeaders lower-cases header names and joins multi-value
// headers with ", ", the one representation used for both the stored
// capture and the frame forwarded to the CLI peer.
func flattenRequestHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[strings.ToLower(k)] = strings.Join(values, ", ")
	}
	return out
}

func writeRelayError(w http.ResponseWriter, status int, err *LimitError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + err.Code + `","message":"` + err.Message + `"}`))
}
