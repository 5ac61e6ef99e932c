package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/digital-twin/backend/internal/model/persona"
	"github.com/zhouzirui/digital-twin/backend/pkg/utils"
)

// Handler serves the public persona profile.
type Handler struct {
	personas persona.Store
}

// New creates a persona handler.
func New(personas persona.Store) *Handler {
	return &Handler{
		personas: personas,
	}
}

// RegisterRoutes registers GET /profile on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profile", h.handleProfile)
}

// handleProfile returns name, title, links and suggestions. Résumé text never leaves the backend.
func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.Get().Public())
}
