package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/admitchat/backend/internal/dialogue"
	"github.com/go-chi/chi/v5"
)

// ChatHandler exposes the dialogue operations over HTTP.
type ChatHandler struct {
	svc *dialogue.Service
}

// NewChatHandler creates a chat handler around the dialogue service.
func NewChatHandler(svc *dialogue.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// RegisterRoutes registers the chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/message", h.Message)
		r.Post("/reset", h.Reset)
		r.Get("/slots/{userID}", h.Slots)
		r.Get("/logs/{userID}", h.Logs)
		r.Get("/intent/{userID}", h.Intent)
	})
}

type startRequest struct {
	UserID string `json:"userId"`
}

// Start creates or resumes the session for a user.
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		Error(w, http.StatusBadRequest, "userId required")
		return
	}

	res, err := h.svc.Start(r.Context(), req.UserID)
	if err != nil {
		h.writeServiceError(w, "start session", err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"message":   res.Message,
		"sessionId": res.SessionID,
		"text":      res.Text,
	})
}

type messageRequest struct {
	SessionID string `json:"sessionId"`
	// Pointer so a present-but-empty answer is distinguishable from a
	// missing field; an empty answer is a valid turn.
	Text *string `json:"text"`
}

// Message advances the dialogue by one turn.
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.Text == nil {
		Error(w, http.StatusBadRequest, "sessionId and text required")
		return
	}

	res, err := h.svc.Advance(r.Context(), req.SessionID, *req.Text)
	if err != nil {
		h.writeServiceError(w, "advance session", err)
		return
	}

	if res.Complete {
		JSON(w, http.StatusOK, map[string]interface{}{
			"reply":      res.Reply,
			"rag_answer": res.RAGAnswer,
			"sessionId":  res.SessionID,
		})
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"reply":         res.Reply,
		"next_question": res.NextQuestion,
		"sessionId":     res.SessionID,
		"current_slots": res.CurrentSlots,
	})
}

type resetRequest struct {
	SessionID string `json:"sessionId"`
}

// Reset returns the session to its initial empty state.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		Error(w, http.StatusBadRequest, "sessionId required")
		return
	}

	res, err := h.svc.Reset(r.Context(), req.SessionID)
	if err != nil {
		h.writeServiceError(w, "reset session", err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"message":       res.Message,
		"next_question": res.NextQuestion,
	})
}

// Slots returns the user's current slot map.
func (h *ChatHandler) Slots(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	slots, err := h.svc.Slots(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "get slots", err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"userId": userID, "slots": slots})
}

// Logs returns the user's transcript as a single string.
func (h *ChatHandler) Logs(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	transcript, err := h.svc.Transcript(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "get logs", err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"userId": userID, "logs": transcript})
}

// Intent returns the user's stored intent.
func (h *ChatHandler) Intent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	intent, err := h.svc.Intent(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "get intent", err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"userId": userID, "intent": intent})
}

func (h *ChatHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, dialogue.ErrInvalidArgument):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dialogue.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "Session not found")
	default:
		slog.Error("Chat handler failed", "op", op, "error", err)
		Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
