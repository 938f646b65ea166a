package analysis

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mgarridoc/orienta/backend/internal/model/conversation"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
	"github.com/mgarridoc/orienta/backend/internal/service/ai"
	analysisService "github.com/mgarridoc/orienta/backend/internal/service/analysis"
	"github.com/mgarridoc/orienta/backend/internal/service/registry"
	"github.com/mgarridoc/orienta/backend/pkg/utils"
)

// Handler exposes the graph catalog and the conversational analysis
// endpoints.
type Handler struct {
	graphs       graph.Store
	orchestrator *analysisService.Orchestrator
	validate     *validator.Validate
}

// New creates the analysis handler. orchestrator may be nil when the model
// credentials are not configured; chat endpoints then answer 503.
func New(graphs graph.Store, orchestrator *analysisService.Orchestrator) *Handler {
	return &Handler{
		graphs:       graphs,
		orchestrator: orchestrator,
		validate:     validator.New(),
	}
}

// RegisterRoutes mounts the analysis endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/graphs", h.handleListGraphs)
	r.Post("/start", h.handleStart)
	r.Post("/message", h.handleMessage)
}

type startRequest struct {
	GraphID string `json:"graphId" validate:"required"`
	Role    string `json:"role" validate:"required,oneof=admin director docente"`
}

type messageRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

func (h *Handler) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.graphs.List())
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "analysis service unavailable")
		return
	}

	var payload startRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	role, _ := conversation.ParseRole(payload.Role)
	sessionID, opening, err := h.orchestrator.StartSession(r.Context(), payload.GraphID, role)
	if err != nil {
		body := map[string]string{"error": errorMessage(err)}
		if sessionID != "" {
			// The session survived the gateway failure; the caller can
			// retry through /message without redoing context setup.
			body["sessionId"] = sessionID
		}
		utils.RespondJSON(w, statusFor(err), body)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{
		"sessionId":   sessionID,
		"openingText": opening,
	})
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "analysis service unavailable")
		return
	}

	var payload messageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.orchestrator.SendMessage(r.Context(), payload.SessionID, payload.Message)
	if err != nil {
		utils.RespondError(w, statusFor(err), errorMessage(err))
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"assistantText": reply})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownContext):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidSequencing):
		return http.StatusConflict
	case errors.Is(err, registry.ErrRegistryClosed):
		return http.StatusServiceUnavailable
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

func errorMessage(err error) string {
	if errors.Is(err, ai.ErrPromptTooLarge) {
		return "conversation history exceeds the model input limit, start a new session"
	}
	return err.Error()
}
