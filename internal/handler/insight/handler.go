package insight

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mgarridoc/orienta/backend/internal/service/ai"
	insightService "github.com/mgarridoc/orienta/backend/internal/service/insight"
	"github.com/mgarridoc/orienta/backend/pkg/utils"
)

// Handler relays a complete analytical report over Server-Sent Events.
type Handler struct {
	controller *insightService.Controller
}

// New creates the insight stream handler.
func New(controller *insightService.Controller) *Handler {
	return &Handler{controller: controller}
}

// RegisterRoutes mounts the streamed report endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/completo/{subject}", h.handleStream)
}

// StreamEvent is one SSE frame of the report stream.
type StreamEvent struct {
	Event    string `json:"event"`
	Subject  string `json:"subject,omitempty"`
	Content  string `json:"content,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	subject := chi.URLParam(r, "subject")
	relay, err := h.controller.Stream(r.Context(), subject)
	if err != nil {
		// Nothing has been written yet, so a plain JSON error still works.
		utils.RespondError(w, streamStartStatus(err), err.Error())
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, StreamEvent{Event: "start", Subject: subject})

	for text := range relay.Chunks() {
		utils.SendSSEChunk(w, flusher, StreamEvent{Event: "delta", Subject: subject, Content: text})
	}

	// Partial output already delivered cannot be retracted; the closing
	// frame tells the caller whether the prefix is complete.
	if streamErr := relay.Err(); streamErr != nil {
		utils.SendSSEChunk(w, flusher, StreamEvent{Event: "error", Subject: subject, Error: streamErr.Error()})
		return
	}

	utils.SendSSEChunk(w, flusher, StreamEvent{Event: "end", Subject: subject, Finished: true})
}

func streamStartStatus(err error) int {
	switch {
	case errors.Is(err, insightService.ErrUnknownSubject):
		return http.StatusNotFound
	case errors.Is(err, ai.ErrPromptTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ai.ErrGatewayTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ai.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
