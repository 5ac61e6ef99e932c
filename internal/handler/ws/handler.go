package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chathandler "github.com/zhouzirui/digital-twin/backend/internal/handler/chat"
	"github.com/zhouzirui/digital-twin/backend/internal/model/chat"
	"github.com/zhouzirui/digital-twin/backend/internal/service/ai"
	"github.com/zhouzirui/digital-twin/backend/internal/service/session"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 25 * time.Second
	writeTimeout        = 10 * time.Second
	maxFrameBytes       = 1 << 20
	frameTypeReply      = "reply"
	frameTypeTool       = "tool"
	frameTypeError      = "error"
)

// Handler serves chat turns over a WebSocket connection.
type Handler struct {
	chatter  chathandler.Chatter
	upgrader websocket.Upgrader
	logger   *zap.Logger

	// readTimeout bounds the wait for the next frame or pong while idle.
	readTimeout  time.Duration
	pingInterval time.Duration
}

// New creates a WebSocket chat handler. Browsers are accepted when their
// Origin is in allowedOrigins ("*" allows all) or matches the request host.
func New(chatter chathandler.Chatter, allowedOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatter:      chatter,
		logger:       logger,
		readTimeout:  defaultReadTimeout,
		pingInterval: defaultPingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// RegisterRoutes registers GET /ws/chat on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.HandleWebSocket)
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Reply     string `json:"reply,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleWebSocket upgrades the connection and answers each JSON chat request
// frame. The session id of the first frame, or a minted one, sticks to the
// connection unless a frame names another.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.chatter == nil {
		http.Error(w, "chat unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	go h.pingLoop(ctx, conn)

	sessionID := session.NewID()
	h.logger.Info("websocket connected", zap.String("session", sessionID))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		var req chat.Request
		if err := json.Unmarshal(data, &req); err != nil {
			h.write(conn, outgoingMessage{Type: frameTypeError, Error: chathandler.ErrInvalidBody.Error()})
			continue
		}
		if err := req.Validate(); err != nil {
			h.write(conn, outgoingMessage{Type: frameTypeError, Error: err.Error()})
			continue
		}
		if req.SessionID != "" {
			sessionID = req.SessionID
		}

		// Pongs are only handled inside ReadMessage, so no read deadline
		// applies while a turn runs.
		_ = conn.SetReadDeadline(time.Time{})

		current := sessionID
		reply := h.chatter.Chat(ctx, current, req.Message, req.History, ai.WithObserver(func(e ai.Event) {
			if e.Kind == ai.EventTool {
				h.write(conn, outgoingMessage{Type: frameTypeTool, SessionID: current, Tool: e.Tool, Result: e.Result})
			}
		}))
		if !h.write(conn, outgoingMessage{Type: frameTypeReply, SessionID: current, Reply: reply}) {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) write(conn *websocket.Conn, msg outgoingMessage) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
