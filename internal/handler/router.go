package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/digital-twin/backend/internal/handler/chat"
	"github.com/zhouzirui/digital-twin/backend/internal/handler/persona"
	"github.com/zhouzirui/digital-twin/backend/internal/handler/stream"
	"github.com/zhouzirui/digital-twin/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/digital-twin/backend/internal/middleware"
	personaModel "github.com/zhouzirui/digital-twin/backend/internal/model/persona"
	"github.com/zhouzirui/digital-twin/backend/pkg/utils"
)

// Options configures the router.
type Options struct {
	CORSOrigins []string
	// StaticDir holds the built frontend. It is served only when it exists.
	StaticDir string
	Logger    *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatter chat.Chatter, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.CORSOrigins))

	chatHandler := chat.New(chatter, logger.Named("http.chat"))
	streamHandler := stream.New(chatter, logger.Named("http.stream"))
	socketHandler := ws.New(chatter, opts.CORSOrigins, logger.Named("http.ws"))
	personaHandler := persona.New(personas)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		personaHandler.RegisterRoutes(api)
	})

	// Legacy path kept for older frontends.
	chatHandler.RegisterRoutes(r)
	socketHandler.RegisterRoutes(r)

	if spa := newSPAHandler(opts.StaticDir); spa != nil {
		r.NotFound(spa.ServeHTTP)
		logger.Info("serving static frontend", zap.String("dir", opts.StaticDir))
	}

	return r
}

// spaHandler serves files from dir and falls back to index.html for client-side routes.
type spaHandler struct {
	dir   string
	files http.Handler
}

func newSPAHandler(dir string) *spaHandler {
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(filepath.Join(dir, "index.html")); err != nil || info.IsDir() {
		return nil
	}
	return &spaHandler{dir: dir, files: http.FileServer(http.Dir(dir))}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		utils.RespondError(w, http.StatusNotFound, "not found")
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		utils.RespondError(w, http.StatusNotFound, "not found")
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	if info, err := os.Stat(filepath.Join(h.dir, filepath.FromSlash(clean))); err == nil && !info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}
