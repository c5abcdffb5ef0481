package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/admitchat/backend/internal/dialogue"
	"github.com/coder/websocket"
)

// ChatSocketHandler drives the same slot-filling dialogue over a
// WebSocket: the server pushes prompts, the client sends answers.
type ChatSocketHandler struct {
	svc           *dialogue.Service
	allowedOrigin string
	isDev         bool
}

// NewChatSocketHandler creates a WebSocket chat handler.
func NewChatSocketHandler(svc *dialogue.Service, allowedOrigin string, isDev bool) *ChatSocketHandler {
	return &ChatSocketHandler{svc: svc, allowedOrigin: allowedOrigin, isDev: isDev}
}

// chatEvent is the message envelope in both directions.
type chatEvent struct {
	Type         string            `json:"type"` // "welcome", "answer", "prompt", "complete", "error"
	Text         string            `json:"text,omitempty"`
	SessionID    string            `json:"sessionId,omitempty"`
	NextQuestion string            `json:"next_question,omitempty"`
	CurrentSlots map[string]string `json:"current_slots,omitempty"`
	RAGAnswer    interface{}       `json:"rag_answer,omitempty"`
}

// ServeHTTP upgrades the connection and runs the dialogue loop until the
// client disconnects or the dialogue completes.
func (h *ChatSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	started, err := h.svc.Start(ctx, userID)
	if err != nil {
		slog.Error("Failed to start chat session", "error", err, "user_id", userID)
		_ = h.writeEvent(ctx, ws, chatEvent{Type: "error", Text: "failed to start session"})
		return
	}
	if err := h.writeEvent(ctx, ws, chatEvent{
		Type:      "welcome",
		Text:      started.Text,
		SessionID: started.SessionID,
	}); err != nil {
		return
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return
			}
			slog.Debug("WebSocket read error", "error", err, "user_id", userID)
			return
		}

		var event chatEvent
		if err := json.Unmarshal(data, &event); err != nil || event.Type != "answer" {
			if writeErr := h.writeEvent(ctx, ws, chatEvent{Type: "error", Text: "expected an answer event"}); writeErr != nil {
				return
			}
			continue
		}

		turn, err := h.svc.Advance(ctx, started.SessionID, event.Text)
		if err != nil {
			if errors.Is(err, dialogue.ErrSessionNotFound) {
				_ = h.writeEvent(ctx, ws, chatEvent{Type: "error", Text: "session not found"})
				return
			}
			slog.Error("Failed to advance chat session", "error", err, "user_id", userID)
			_ = h.writeEvent(ctx, ws, chatEvent{Type: "error", Text: "internal error"})
			return
		}

		if turn.Complete {
			_ = h.writeEvent(ctx, ws, chatEvent{
				Type:      "complete",
				Text:      turn.Reply,
				SessionID: turn.SessionID,
				RAGAnswer: turn.RAGAnswer,
			})
			return
		}
		if err := h.writeEvent(ctx, ws, chatEvent{
			Type:         "prompt",
			Text:         turn.Reply,
			SessionID:    turn.SessionID,
			NextQuestion: turn.NextQuestion,
			CurrentSlots: turn.CurrentSlots,
		}); err != nil {
			return
		}
	}
}

func (h *ChatSocketHandler) writeEvent(ctx context.Context, ws *websocket.Conn, event chatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *ChatSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev || h.allowedOrigin == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.allowedOrigin
}
