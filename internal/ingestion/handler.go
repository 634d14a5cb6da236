package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/hook0/webhooks-core/internal/storage"
)

// Handler exposes the ingestion contract over HTTP: a single endpoint
// authenticated by an application secret bearer token.
type Handler struct {
	ingester *Ingester
	store    *storage.Store
}

func NewHandler(ingester *Ingester, store *storage.Store) *Handler {
	return &Handler{ingester: ingester, store: store}
}

// Register mounts the ingestion routes on r, following the CORS +
// mux.Router shape of internal/api/server.go.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/events", h.handleIngest).Methods(http.MethodPost, http.MethodOptions)
}

type eventRequest struct {
	ID          string         `json:"event_id,omitempty"`
	EventType   string         `json:"event_type"`
	OccurredAt  *time.Time     `json:"occurred_at,omitempty"`
	Payload     string         `json:"payload"` // base64
	ContentType string         `json:"payload_content_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Labels      map[string]any `json:"labels,omitempty"`
}

type eventResponse struct {
	EventID string `json:"event_id"`
}

type problemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	token := bearerToken(r)
	if token == "" {
		writeProblem(w, http.StatusUnauthorized, "missing_bearer_token")
		return
	}

	applicationID, err := AuthenticateApplicationSecret(r.Context(), h.store, token)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "invalid_application_secret")
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "malformed_json_body")
		return
	}

	ev := EventIn{
		ID:            req.ID,
		EventTypeName: req.EventType,
		PayloadBase64: req.Payload,
		ContentType:   req.ContentType,
		Metadata:      req.Metadata,
		Labels:        req.Labels,
	}
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}

	eventID, err := h.ingester.Ingest(r.Context(), applicationID, ev)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(eventResponse{EventID: eventID.String()})
	case errors.Is(err, storage.ErrEventAlreadyIngested):
		writeProblem(w, http.StatusConflict, "event_already_ingested")
	case errors.Is(err, ErrInvalidPayloadContentType):
		writeProblem(w, http.StatusBadRequest, "event_invalid_payload_content_type")
	case errors.Is(err, ErrInvalidBase64Payload):
		writeProblem(w, http.StatusBadRequest, "event_invalid_base64_payload")
	case errors.Is(err, ErrInvalidMetadata):
		writeProblem(w, http.StatusBadRequest, "event_invalid_metadata")
	case errors.Is(err, ErrInvalidLabels):
		writeProblem(w, http.StatusBadRequest, "event_invalid_labels")
	default:
		writeProblem(w, http.StatusInternalServerError, "internal_server_error")
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// writeProblem renders an RFC 7807 problem document, per §7's
// "user-visible failure mapping" policy.
func writeProblem(w http.ResponseWriter, status int, kind string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(problemDetail{
		Type:   "https://hook0.dev/errors/" + kind,
		Title:  kind,
		Status: status,
	})
}
