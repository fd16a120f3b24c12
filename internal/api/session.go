package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/complai/complai/internal/session"
)

type sessionHandler struct {
	store  *session.Store
	logger *slog.Logger
}

// list handles GET /api/v1/sessions.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions := h.store.List(ownerFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// messages handles GET /api/v1/sessions/{id}/messages.
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "invalid session id")
		return
	}

	msgs, count, err := h.store.History(id, ownerFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     id,
		"messages":       msgs,
		"total_messages": count,
	})
}

// remove handles DELETE /api/v1/sessions/{id}.
func (h *sessionHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "invalid session id")
		return
	}

	if err := h.store.Delete(id, ownerFromContext(r.Context())); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
