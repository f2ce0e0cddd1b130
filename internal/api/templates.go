package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/identity"
	"github.com/actionlab/ignacio/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TemplateHandler serves prompt-template CRUD.
type TemplateHandler struct {
	repo store.Repository
}

// NewTemplateHandler creates the template handler.
func NewTemplateHandler(repo store.Repository) *TemplateHandler {
	return &TemplateHandler{repo: repo}
}

// Routes registers the template endpoints.
func (h *TemplateHandler) Routes(r chi.Router) {
	r.Route("/api/templates", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

type templateRequest struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// Create handles POST /api/templates.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Body == "" {
		Error(w, http.StatusBadRequest, "name and body are required")
		return
	}

	now := time.Now()
	tpl := &domain.PromptTemplate{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      req.Name,
		Body:      req.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.CreateTemplate(r.Context(), tpl); err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusCreated, tpl)
}

// List handles GET /api/templates.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	list, err := h.repo.ListTemplates(r.Context(), user.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"templates": list})
}

// Get handles GET /api/templates/{id}.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.owned(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, tpl)
}

// Update handles PUT /api/templates/{id}.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.owned(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		tpl.Name = req.Name
	}
	if req.Body != "" {
		tpl.Body = req.Body
	}
	tpl.UpdatedAt = time.Now()

	if err := h.repo.UpdateTemplate(r.Context(), tpl); err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, tpl)
}

// Delete handles DELETE /api/templates/{id}.
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.owned(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.repo.DeleteTemplate(r.Context(), tpl.ID); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplateHandler) owned(r *http.Request) (*domain.PromptTemplate, error) {
	user := identity.UserFromContext(r.Context())
	tpl, err := h.repo.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if tpl == nil || tpl.UserID != user.ID {
		return nil, domain.ErrNotFound
	}
	return tpl, nil
}
