package relay

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/hook0/webhooks-core/internal/cryptosecret"
	"github.com/hook0/webhooks-core/internal/observability"
	"github.com/hook0/webhooks-core/internal/ratelimit"
)

var errTimeout = errors.New("relay: peer response timed out")

// peer is a single connected CLI client owning one token.
type peer struct {
	token   string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) writeJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(v)
}

// pendingRequest correlates a forwarded webhook with the CLI peer's reply.
type pendingRequest struct {
	reply chan ClientResponsePayload
}

// ClientResponsePayload is the decoded form of a "response" message's data.
type ClientResponsePayload struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Server is the C11 relay tunnel server: it owns every active peer
// connection, the captured-webhook storage, and the connection/rate
// limiters guarding both. Grounded on original_source/play/src/lib.rs's
// AppState, with the peer hub itself modelled on
// internal/websocket/dag_streamer.go's register/unregister channel hub.
type Server struct {
	storage       *Storage
	limits        Limits
	baseURL       string
	upgrader      websocket.Upgrader
	metrics       *observability.Metrics
	rateLimiters  *ratelimit.Set
	invalidTokens *invalidTokenTracker
	box           *cryptosecret.Box

	peersMu sync.Mutex
	peers   map[string]*peer

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	connCount     atomic.Int64
	connsPerIPMu  sync.Mutex
	connsPerIP    map[string]int

	log *slog.Logger
}

func NewServer(baseURL string, limits Limits, rateLimiters *ratelimit.Set, metrics *observability.Metrics, box *cryptosecret.Box) *Server {
	return &Server{
		storage:       NewStorage(limits.MaxWebhooksPerToken),
		limits:        limits,
		baseURL:       baseURL,
		metrics:       metrics,
		rateLimiters:  rateLimiters,
		invalidTokens: newInvalidTokenTracker(time.Minute, limits.MaxInvalidTokenTries, limits.InvalidTokenBlock),
		box:           box,
		peers:         make(map[string]*peer),
		pending:       make(map[string]*pendingRequest),
		connsPerIP:    make(map[string]int),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: limits.HandshakeTimeout,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		log: slog.With("component", "relay"),
	}
}

// Register mounts every C11 route on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/view/{token}", s.handleViewToken).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens/{token}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens/{token}/webhooks", s.handleGetWebhooks).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens/{token}/webhooks", s.handleDeleteAllWebhooks).Methods(http.MethodDelete)
	r.HandleFunc("/api/tokens/{token}/webhooks/{id}", s.handleGetWebhook).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens/{token}/webhooks/{id}", s.handleDeleteWebhook).Methods(http.MethodDelete)
	r.PathPrefix("/in/").HandlerFunc(s.handleWebhookReceiver)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// canAcceptConnection enforces the global and per-IP WebSocket connection
// caps before a handshake is attempted.
func (s *Server) canAcceptConnection(ip string) *LimitError {
	if int(s.connCount.Load()) >= s.limits.MaxTotalConnections {
		return errTooManyConnections()
	}
	s.connsPerIPMu.Lock()
	defer s.connsPerIPMu.Unlock()
	if s.connsPerIP[ip] >= s.limits.MaxConnectionsPerIP {
		return errTooManyConnectionsPerIP(ip, s.limits.MaxConnectionsPerIP)
	}
	return nil
}

func (s *Server) registerConnection(ip string) {
	s.connCount.Add(1)
	s.connsPerIPMu.Lock()
	s.connsPerIP[ip]++
	s.connsPerIPMu.Unlock()
	if s.metrics != nil {
		s.metrics.RelayConnectionsTotal.WithLabelValues().Set(float64(s.connCount.Load()))
		s.connsPerIPMu.Lock()
		s.metrics.RelayConnectionsByIP.WithLabelValues(ip).Set(float64(s.connsPerIP[ip]))
		s.connsPerIPMu.Unlock()
	}
}

func (s *Server) unregisterConnection(ip string) {
	s.connCount.Add(-1)
	s.connsPerIPMu.Lock()
	if s.connsPerIP[ip] > 0 {
		s.connsPerIP[ip]--
	}
	count := s.connsPerIP[ip]
	s.connsPerIPMu.Unlock()
	if s.metrics != nil {
		s.metrics.RelayConnectionsTotal.WithLabelValues().Set(float64(s.connCount.Load()))
		s.metrics.RelayConnectionsByIP.WithLabelValues(ip).Set(float64(count))
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}

// handleWebSocket upgrades the connection, performs the Start handshake,
// then services Response/Ping frames until the peer disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if err := s.canAcceptConnection(ip); err != nil {
		http.Error(w, err.Message, http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.registerConnection(ip)
	defer s.unregisterConnection(ip)

	conn.SetReadDeadline(time.Now().Add(s.limits.HandshakeTimeout))
	token, ok := s.performHandshake(conn)
	if !ok {
		conn.Close()
		return
	}

	p := &peer{token: token, conn: conn}
	s.peersMu.Lock()
	s.peers[token] = p
	s.peersMu.Unlock()
	s.storage.SetConnected(token)

	defer func() {
		s.peersMu.Lock()
		if s.peers[token] == p {
			delete(s.peers, token)
		}
		s.peersMu.Unlock()
		s.storage.SetDisconnected(token)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Time{})
	s.serve(conn, token, p)
}

// performHandshake reads exactly one "start" message, validates and
// claims the token, and replies "started" or "error". It returns the
// validated token and whether the handshake succeeded.
func (s *Server) performHandshake(conn *websocket.Conn) (string, bool) {
	var msg ClientMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return "", false
	}
	if msg.Type != clientMsgStart || msg.Data == nil || msg.Data.Token == "" {
		conn.WriteJSON(newError("protocol_error", "expected start message"))
		return "", false
	}

	token := msg.Data.Token
	if !IsValidToken(token) {
		conn.WriteJSON(newError("invalid_token", "token has invalid format"))
		return "", false
	}

	s.peersMu.Lock()
	if _, inUse := s.peers[token]; inUse {
		s.peersMu.Unlock()
		conn.WriteJSON(newError("token_in_use", "token already has an active listener"))
		return "", false
	}
	s.peersMu.Unlock()

	webhookURL := s.baseURL + "/in/" + token + "/"
	viewURL := s.baseURL + "/view/" + token
	if err := conn.WriteJSON(newStarted(webhookURL, viewURL)); err != nil {
		return "", false
	}
	return token, true
}

// serve reads Response/Ping frames from an established peer until the
// socket errors or closes.
func (s *Server) serve(conn *websocket.Conn, token string, p *peer) {
	idleTimeout := s.limits.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = time.Hour
	}

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.storage.Touch(token)

		switch msg.Type {
		case clientMsgPing:
			p.writeJSON(newPong())
		case clientMsgResponse:
			if msg.Data == nil {
				continue
			}
			s.handleClientResponse(token, msg.Data)
		}
	}
}

func (s *Server) handleClientResponse(token string, data *ClientMessageData) {
	s.pendingMu.Lock()
	pr, ok := s.pending[data.ID]
	s.pendingMu.Unlock()
	if !ok {
		return
	}

	var body []byte
	if data.Body != "" {
		if decoded, err := decodeBase64(data.Body); err == nil {
			body = decoded
		}
	}

	headers, err := SanitizeHeaders(data.Headers)
	if err != nil {
		headers = map[string]string{}
	}

	select {
	case pr.reply <- ClientResponsePayload{Status: data.Status, Headers: headers, Body: body}:
	default:
	}
}

func decodeBase64(s string) ([]byte, error) {
	return base64DecodeString(s)
}

// forwardToPeer sends a captured request to token's peer (if any) and
// waits up to the response deadline for its reply. ok=false with a nil
// error means no peer was connected (caller returns 202 immediately).
func (s *Server) forwardToPeer(token, id, method, path, query string, headers map[string]string, body []byte) (*ClientResponsePayload, bool, error) {
	s.peersMu.Lock()
	p, connected := s.peers[token]
	s.peersMu.Unlock()
	if !connected {
		return nil, false, nil
	}

	pr := &pendingRequest{reply: make(chan ClientResponsePayload, 1)}
	s.pendingMu.Lock()
	s.pending[id] = pr
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	msg := newRequest(id, method, path, base64EncodeToString(body), headers, query)
	if err := p.writeJSON(msg); err != nil {
		return nil, true, err
	}

	deadline := s.limits.ResponseDeadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	select {
	case reply := <-pr.reply:
		return &reply, true, nil
	case <-time.After(deadline):
		return nil, true, errTimeout
	}
}
