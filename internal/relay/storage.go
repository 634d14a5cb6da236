package relay

import (
	"sync"
	"time"

	"github.com/hook0/webhooks-core/internal/cryptosecret"
)

// StoredWebhook is one captured HTTP request awaiting or having received a
// CLI peer's response, returned verbatim by the inspection API.
type StoredWebhook struct {
	ID         string            `json:"id"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Query      string            `json:"query,omitempty"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"-"`
	BodyB64    string            `json:"body"`
	ReceivedAt time.Time         `json:"received_at"`
	Status     string            `json:"status"` // pending, delivered, timeout, error
	StatusCode int               `json:"status_code,omitempty"`
}

// TokenSession tracks the lifecycle of a single token's CLI connection.
type TokenSession struct {
	Token        string    `json:"token"`
	Connected    bool      `json:"connected"`
	CreatedAt    time.Time `json:"created_at"`
	ConnectedAt  time.Time `json:"connected_at,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

// Storage holds captured webhooks and session state for every active
// token. Webhooks are FIFO-evicted per token once maxPerToken is exceeded,
// and optionally AES-256-GCM encrypted at rest when a Box is configured.
// Grounded on the WebhookStorage/TokenSession shape implied by
// original_source/play/src/lib.rs and play/src/api/inspection.rs.
type Storage struct {
	mu           sync.Mutex
	webhooks     map[string][]*StoredWebhook
	sessions     map[string]*TokenSession
	maxPerToken  int
	box          *cryptosecret.Box
}

func NewStorage(maxPerToken int) *Storage {
	return &Storage{
		webhooks:    make(map[string][]*StoredWebhook),
		sessions:    make(map[string]*TokenSession),
		maxPerToken: maxPerToken,
	}
}

// EnableEncryption wraps stored webhook bodies under the given box.
func (s *Storage) EnableEncryption(box *cryptosecret.Box) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.box = box
}

// GetOrCreateSession returns the token's session, creating it on first use.
func (s *Storage) GetOrCreateSession(token string) *TokenSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateSessionLocked(token)
}

func (s *Storage) getOrCreateSessionLocked(token string) *TokenSession {
	sess, ok := s.sessions[token]
	if !ok {
		now := time.Now()
		sess = &TokenSession{Token: token, CreatedAt: now, LastActivity: now}
		s.sessions[token] = sess
	}
	return sess
}

// SetConnected marks the session as having an active CLI peer.
func (s *Storage) SetConnected(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateSessionLocked(token)
	now := time.Now()
	sess.Connected = true
	sess.ConnectedAt = now
	sess.LastActivity = now
}

// SetDisconnected marks the session's CLI peer as gone.
func (s *Storage) SetDisconnected(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		sess.Connected = false
	}
}

// Touch updates a session's last-activity timestamp (called on ping/pong
// and any traffic so idle-timeout sweeps don't disconnect a live peer).
func (s *Storage) Touch(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		sess.LastActivity = time.Now()
	}
}

// IsConnected reports whether token currently has a registered peer.
func (s *Storage) IsConnected(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	return ok && sess.Connected
}

// PutWebhook records a newly captured request, evicting the oldest entry
// for the token if it is now over budget.
func (s *Storage) PutWebhook(token string, wh *StoredWebhook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.box != nil && len(wh.Body) > 0 {
		sealed, err := s.box.Encrypt(wh.Body)
		if err == nil {
			wh.BodyB64 = sealed.CiphertextB64 + ":" + sealed.NonceB64
		}
	}

	list := append(s.webhooks[token], wh)
	if s.maxPerToken > 0 && len(list) > s.maxPerToken {
		list = list[len(list)-s.maxPerToken:]
	}
	s.webhooks[token] = list
}

// UpdateWebhookResult records the CLI peer's reply status against a
// previously captured webhook, or marks it timed out / errored.
func (s *Storage) UpdateWebhookResult(token, id, status string, statusCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wh := range s.webhooks[token] {
		if wh.ID == id {
			wh.Status = status
			wh.StatusCode = statusCode
			return
		}
	}
}

func (s *Storage) GetWebhooks(token string) []*StoredWebhook {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*StoredWebhook, len(s.webhooks[token]))
	copy(out, s.webhooks[token])
	return out
}

func (s *Storage) GetWebhook(token, id string) (*StoredWebhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wh := range s.webhooks[token] {
		if wh.ID == id {
			return wh, true
		}
	}
	return nil, false
}

func (s *Storage) DeleteWebhook(token, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.webhooks[token]
	for i, wh := range list {
		if wh.ID == id {
			s.webhooks[token] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Storage) DeleteAllWebhooks(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.webhooks[token])
	delete(s.webhooks, token)
	return n
}

// CleanupExpired drops webhooks older than ttl across every token, and
// reports how many were removed (used by C11's TTL background loop).
func (s *Storage) CleanupExpired(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	removed := 0
	for token, list := range s.webhooks {
		kept := list[:0:0]
		for _, wh := range list {
			if wh.ReceivedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, wh)
		}
		if len(kept) == 0 {
			delete(s.webhooks, token)
		} else {
			s.webhooks[token] = kept
		}
	}
	return removed
}

// FindTimedOutSessions returns tokens whose session has exceeded the
// absolute session lifetime, regardless of activity.
func (s *Storage) FindTimedOutSessions(timeout time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-timeout)
	var out []string
	for token, sess := range s.sessions {
		if sess.Connected && sess.ConnectedAt.Before(cutoff) {
			out = append(out, token)
		}
	}
	return out
}

// FindIdleSessions returns connected tokens with no recent activity.
func (s *Storage) FindIdleSessions(idle time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	var out []string
	for token, sess := range s.sessions {
		if sess.Connected && sess.LastActivity.Before(cutoff) {
			out = append(out, token)
		}
	}
	return out
}
