package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// The inspection API lets a browser or script list, fetch, and delete
// captured webhooks for a token, grounded on
// original_source/play/src/api/inspection.rs.

type webhookListResponse struct {
	Token      string           `json:"token"`
	Session    *TokenSession    `json:"session"`
	Webhooks   []*StoredWebhook `json:"webhooks"`
	WebhookURL string           `json:"webhook_url"`
	ViewURL    string           `json:"view_url"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) invalidTokenResponse(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusNotFound, errorResponse{
		Error:   "invalid_token",
		Message: "Token not found or invalid format",
	})
}

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if !IsValidToken(token) {
		s.invalidTokenResponse(w)
		return
	}

	session := s.storage.GetOrCreateSession(token)
	webhooks := s.storage.GetWebhooks(token)

	s.writeJSON(w, http.StatusOK, webhookListResponse{
		Token:      token,
		Session:    session,
		Webhooks:   webhooks,
		WebhookURL: s.baseURL + "/in/" + token + "/",
		ViewURL:    s.baseURL + "/view/" + token,
	})
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token, id := vars["token"], vars["id"]
	if !IsValidToken(token) {
		s.invalidTokenResponse(w)
		return
	}

	wh, ok := s.storage.GetWebhook(token, id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "webhook not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, wh)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if !IsValidToken(token) {
		s.invalidTokenResponse(w)
		return
	}

	session := s.storage.GetOrCreateSession(token)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session":     session,
		"webhook_url": s.baseURL + "/in/" + token + "/",
		"view_url":    s.baseURL + "/view/" + token,
	})
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token, id := vars["token"], vars["id"]
	if !IsValidToken(token) {
		s.invalidTokenResponse(w)
		return
	}

	if s.storage.DeleteWebhook(token, id) {
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "webhook_id": id})
		return
	}
	s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "webhook not found"})
}

func (s *Server) handleDeleteAllWebhooks(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if !IsValidToken(token) {
		s.invalidTokenResponse(w)
		return
	}

	count := s.storage.DeleteAllWebhooks(token)
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "count": count})
}

func (s *Server) handleViewToken(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if !IsValidToken(token) {
		s.invalidTokenResponse(w)
		return
	}

	session := s.storage.GetOrCreateSession(token)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"session":    session,
		"webhook_url": s.baseURL + "/in/" + token + "/",
		"api_url":    s.baseURL + "/api/tokens/" + token + "/webhooks",
	})
}
