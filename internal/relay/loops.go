package relay

import (
	"context"
	"time"
)

// RunBackgroundLoops starts the TTL, session/idle-timeout, and rate
// limiter cleanup loops and blocks until ctx is cancelled, mirroring
// original_source/play/src/lib.rs's start_background_tasks.
func (s *Server) RunBackgroundLoops(ctx context.Context) {
	go s.ttlCleanupLoop(ctx)
	go s.sessionTimeoutLoop(ctx)
	go s.rateLimiterCleanupLoop(ctx)
	<-ctx.Done()
}

func (s *Server) ttlCleanupLoop(ctx context.Context) {
	ttl := s.limits.WebhookTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := s.storage.CleanupExpired(ttl); removed > 0 {
				s.log.Info("relay TTL cleanup", "removed", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) sessionTimeoutLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, token := range s.storage.FindTimedOutSessions(s.limits.SessionTimeout) {
				s.disconnectPeer(token)
				s.log.Info("relay session timeout", "token", token)
			}
			for _, token := range s.storage.FindIdleSessions(s.limits.IdleTimeout) {
				s.disconnectPeer(token)
				s.log.Info("relay session idle timeout", "token", token)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) rateLimiterCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.invalidTokens.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// disconnectPeer force-closes a token's WebSocket connection, if any,
// causing its read loop to exit and its deferred cleanup to run.
func (s *Server) disconnectPeer(token string) {
	s.peersMu.Lock()
	p, ok := s.peers[token]
	s.peersMu.Unlock()
	if !ok {
		return
	}
	p.conn.Close()
	s.storage.SetDisconnected(token)
}
