package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/complai/complai/internal/auth"
	"github.com/complai/complai/internal/config"
	"github.com/complai/complai/internal/knowledge"
	"github.com/complai/complai/internal/retrieval"
	"github.com/complai/complai/internal/session"
)

// searchHandler exposes direct knowledge lookup for debugging and tooling.
type searchHandler struct {
	store  *knowledge.Store
	logger *slog.Logger
}

// search handles GET /api/v1/search?q=...&k=N.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "query parameter q is required")
		return
	}

	k := config.DefaultRetrievalK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 50 {
			writeError(w, r, http.StatusBadRequest, "validation_error", "k must be an integer in [1, 50]")
			return
		}
		k = parsed
	}

	results, err := h.store.Search(r.Context(), query, k)
	if err != nil {
		h.logger.Error("knowledge search failed", "error", err)
		writeDomainError(w, r, err)
		return
	}
	if results == nil {
		results = []knowledge.Result{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}

// statsHandler reports store occupancy.
type statsHandler struct {
	sessions *session.Store
}

// stats handles GET /api/v1/stats.
func (h *statsHandler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Stats())
}

// kbHealthHandler reports knowledge base reachability.
type kbHealthHandler struct {
	gate *retrieval.Gate
}

// health handles GET /api/v1/kb/health.
func (h *kbHealthHandler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res := h.gate.Health(ctx)
	status := http.StatusOK
	if res.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// tokenHandler issues bearer tokens against the configured admin
// credentials.
type tokenHandler struct {
	signer   *auth.Signer
	username string
	password string
	logger   *slog.Logger
}

// TokenRequest is the wire form of a token exchange.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Owner is the identity embedded in the issued token. Defaults to the
	// username.
	Owner string `json:"owner,omitempty"`
}

// issue handles POST /api/v1/auth/token.
func (h *tokenHandler) issue(w http.ResponseWriter, r *http.Request) {
	var body TokenRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if err := auth.CheckCredentials(body.Username, body.Password, h.username, h.password); err != nil {
		h.logger.Warn("credential check failed", "username", body.Username)
		writeDomainError(w, r, err)
		return
	}

	owner := body.Owner
	if owner == "" {
		owner = body.Username
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      h.signer.Issue(owner),
		"owner":      owner,
		"expires_in": int(auth.DefaultTTL.Seconds()),
	})
}
