package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/digital-twin/backend/internal/model/chat"
	"github.com/zhouzirui/digital-twin/backend/internal/service/ai"
	"github.com/zhouzirui/digital-twin/backend/internal/service/session"
	"github.com/zhouzirui/digital-twin/backend/pkg/utils"
)

// maxBodyBytes caps a chat request body, history included.
const maxBodyBytes = 1 << 20

// Chatter answers one chat turn. *ai.Service implements it.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string, history []chat.Message, opts ...ai.ChatOption) string
}

// ErrInvalidBody is returned for bodies that are not a JSON chat request.
var ErrInvalidBody = errors.New("invalid request body")

// DecodeRequest parses and validates a chat request. A missing session id is
// replaced by a freshly minted one.
func DecodeRequest(body io.Reader) (chat.Request, error) {
	var req chat.Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return chat.Request{}, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if err := req.Validate(); err != nil {
		return chat.Request{}, err
	}
	if req.SessionID == "" {
		req.SessionID = session.NewID()
	}
	return req, nil
}

// Handler serves the JSON chat endpoint.
type Handler struct {
	chatter Chatter
	logger  *zap.Logger
}

// New creates a chat handler.
func New(chatter Chatter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatter: chatter, logger: logger}
}

// RegisterRoutes registers POST /chat on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
}

// HandleChat answers {message, history, sessionId?} with {reply, sessionId}.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if h.chatter == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "chat unavailable")
		return
	}

	req, err := DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply := h.chatter.Chat(r.Context(), req.SessionID, req.Message, req.History)
	h.logger.Debug("chat turn answered", zap.String("session", req.SessionID), zap.Int("history", len(req.History)))

	utils.RespondJSON(w, http.StatusOK, chat.Response{Reply: reply, SessionID: req.SessionID})
}
