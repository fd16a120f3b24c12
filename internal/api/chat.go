package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/complai/complai/internal/chat"
)

// SSE event types for streamed chat.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// maxChatBodyBytes caps the chat request body.
const maxChatBodyBytes = 64 << 10

type chatHandler struct {
	orch   *chat.Orchestrator
	logger *slog.Logger
}

// ChatRequest is the wire form of one turn.
type ChatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// ChunkPayload is the data of one SSE chunk event.
type ChunkPayload struct {
	Text string `json:"text"`
}

// decode parses and validates the request body into a pipeline request.
func (h *chatHandler) decode(r *http.Request) (chat.Request, error) {
	var body ChatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxChatBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return chat.Request{}, fmt.Errorf("invalid request body: %w", err)
	}

	req := chat.Request{
		Query: body.Query,
		Owner: ownerFromContext(r.Context()),
	}
	if body.SessionID != "" {
		id, err := uuid.Parse(body.SessionID)
		if err != nil {
			return chat.Request{}, fmt.Errorf("invalid session_id: %w", err)
		}
		req.SessionID = id
	}
	return req, nil
}

// send handles POST /api/v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	resp, err := h.orch.Handle(r.Context(), req)
	if err != nil {
		h.logger.Error("chat turn failed",
			"error", err,
			"request_id", requestIDFromContext(r.Context()),
		)
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// stream handles POST /api/v1/chat/stream via server-sent events.
// Errors before the first chunk use the JSON envelope; later failures are
// delivered as an SSE error event since headers are already sent.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	req, err := h.decode(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	headersSent := false
	for ev, err := range h.orch.Stream(r.Context(), req) {
		if err != nil {
			h.logger.Error("chat stream failed",
				"error", err,
				"request_id", requestIDFromContext(r.Context()),
			)
			if !headersSent {
				writeDomainError(w, r, err)
				return
			}
			status, errType := classifyError(err)
			_ = writeEvent(w, flusher, EventError, ErrorDetail{
				Message:    err.Error(),
				Type:       errType,
				StatusCode: status,
				RequestID:  requestIDFromContext(r.Context()),
			})
			return
		}

		if !headersSent {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			headersSent = true
		}

		if ev.Done != nil {
			_ = writeEvent(w, flusher, EventDone, ev.Done)
			return
		}
		if err := writeEvent(w, flusher, EventChunk, ChunkPayload{Text: ev.Chunk}); err != nil {
			h.logger.Debug("client disconnected mid-stream", "error", err)
			return
		}
	}
}

// writeEvent writes one SSE event: "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}
