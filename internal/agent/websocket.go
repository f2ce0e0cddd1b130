package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/identity"
	"github.com/coder/websocket"
)

// wsClientMessage is what the browser sends over the chat socket. Browsers
// cannot set an Authorization header on WebSocket upgrades, so the bearer
// token travels in the ?token= query parameter instead.
type wsClientMessage struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
}

// wsServerMessage is what the server sends back: one "turn" event per
// completed turn, or an "error" event.
type wsServerMessage struct {
	Type   string      `json:"type"`
	Detail string      `json:"detail,omitempty"`
	Turn   *TurnResult `json:"turn,omitempty"`
}

// WebSocketHandler streams chat turns over a persistent connection.
type WebSocketHandler struct {
	service        *Service
	limiter        *RateLimiter
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates the chat socket handler.
func NewWebSocketHandler(service *Service, limiter *RateLimiter, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		service:        service,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	slog.Info("chat socket connection request", "user_id", user.ID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept chat socket", "error", err, "user_id", user.ID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close chat socket", "error", closeErr, "user_id", user.ID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("chat socket closed by client", "user_id", user.ID)
			} else if ctx.Err() == nil {
				slog.Warn("chat socket read error", "error", err, "user_id", user.ID)
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.writeError(ctx, ws, "invalid message")
			continue
		}

		switch msg.Type {
		case "ping":
			h.writeJSON(ctx, ws, wsServerMessage{Type: "pong"})
		case "message":
			h.handleTurn(ctx, ws, user, msg)
		default:
			h.writeError(ctx, ws, "unknown message type")
		}
	}
}

func (h *WebSocketHandler) handleTurn(ctx context.Context, ws *websocket.Conn, user *domain.User, msg wsClientMessage) {
	if msg.Content == "" {
		h.writeError(ctx, ws, "content is required")
		return
	}
	if !h.limiter.Allow(user.ID) {
		h.writeError(ctx, ws, "rate limit exceeded")
		return
	}

	var (
		result *TurnResult
		err    error
	)
	if msg.ConversationID == "" {
		result, err = h.service.StartConversation(ctx, user, msg.Content, msg.ProjectID, nil)
	} else {
		result, err = h.service.ContinueConversation(ctx, user, msg.ConversationID, msg.Content, nil)
	}
	if err != nil {
		detail := "turn failed"
		if errors.Is(err, domain.ErrNotFound) {
			detail = "conversation not found"
		}
		slog.Warn("chat socket turn failed", "user_id", user.ID, "error", err)
		h.writeError(ctx, ws, detail)
		return
	}

	h.writeJSON(ctx, ws, wsServerMessage{Type: "turn", Turn: result})
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("chat socket origin rejected", "origin", origin)
	return false
}

func (h *WebSocketHandler) writeError(ctx context.Context, ws *websocket.Conn, detail string) {
	h.writeJSON(ctx, ws, wsServerMessage{Type: "error", Detail: detail})
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v wsServerMessage) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal chat socket message", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("chat socket write failed", "error", err)
	}
}
