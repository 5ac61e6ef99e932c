package stream

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chathandler "github.com/zhouzirui/digital-twin/backend/internal/handler/chat"
	"github.com/zhouzirui/digital-twin/backend/internal/service/ai"
	"github.com/zhouzirui/digital-twin/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Handler streams the progress of a chat turn via Server-Sent Events.
type Handler struct {
	chatter chathandler.Chatter
	logger  *zap.Logger
}

// New creates a stream handler.
func New(chatter chathandler.Chatter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatter: chatter, logger: logger}
}

// RegisterRoutes registers POST /chat/stream on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.HandleStream)
}

// StreamResponse is the data payload of every event.
type StreamResponse struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Result    string `json:"result,omitempty"`
	Content   string `json:"content,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
}

// HandleStream runs one turn and emits start, tool*, message and end events.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if h.chatter == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "chat unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	req, err := chathandler.DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	// A failed write means the client left; the turn still completes.
	gone := false
	send := func(resp StreamResponse) {
		if gone {
			return
		}
		resp.SessionID = req.SessionID
		if err := utils.SendSSEEvent(w, flusher, resp.Event, resp); err != nil {
			gone = true
			h.logger.Debug("stream client gone", zap.String("session", req.SessionID), zap.Error(err))
		}
	}

	send(StreamResponse{Event: "start"})

	h.chatter.Chat(r.Context(), req.SessionID, req.Message, req.History, ai.WithObserver(func(e ai.Event) {
		switch e.Kind {
		case ai.EventTool:
			send(StreamResponse{Event: "tool", Tool: e.Tool, Result: e.Result})
		case ai.EventMessage:
			send(StreamResponse{Event: "message", Content: e.Content})
		}
	}))

	send(StreamResponse{Event: "end", Finished: true})
	h.logger.Info("stream completed", zap.String("session", req.SessionID))
}
