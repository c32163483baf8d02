package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velora-shop/api/internal/platform/auth"
	"github.com/velora-shop/api/internal/platform/httpx"
	"github.com/velora-shop/api/internal/services"
)

const (
	maxChatBodySize   = 32 * 1024
	chatRateLimit     = 20
	chatRateWindow    = time.Minute
	maxChatHistoryLen = 50
)

// ChatHandlers exposes the authenticated shopping-assistant endpoint.
type ChatHandlers struct {
	authn   *auth.Authenticator
	chat    services.ChatService
	limiter chatLimiter
}

// NewChatHandlers constructs the chat handlers with a per-user rate limit.
func NewChatHandlers(authn *auth.Authenticator, chat services.ChatService) *ChatHandlers {
	return &ChatHandlers{
		authn:   authn,
		chat:    chat,
		limiter: newChatThrottle(chatRateLimit, chatRateWindow, nil),
	}
}

// Routes wires the /chat endpoints onto the provided router.
func (h *ChatHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.postMessage)
}

func (h *ChatHandlers) postMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.chat == nil {
		httpx.WriteError(ctx, w, httpx.NewError("chat_unavailable", "shopping assistant is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many assistant requests; slow down", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxChatBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if len(req.History) > maxChatHistoryLen {
		req.History = req.History[len(req.History)-maxChatHistoryLen:]
	}

	history := make([]services.ChatTurn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, services.ChatTurn{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	reply, err := h.chat.Reply(ctx, services.ChatCommand{
		UserID:  identity.UID,
		Message: req.Message,
		History: history,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChatInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrChatUnavailable):
			httpx.WriteError(ctx, w, httpx.NewError("chat_unavailable", "shopping assistant is unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("chat_error", "assistant request failed", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, chatResponse{Reply: reply.Reply})
}

type chatRequest struct {
	Message string            `json:"message"`
	History []chatTurnPayload `json:"history"`
}

type chatTurnPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}
