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

// ProjectHandler serves the project-context endpoints. Agents update the
// same record through their tools; this is the direct editing surface.
type ProjectHandler struct {
	repo store.Repository
}

// NewProjectHandler creates the project handler.
func NewProjectHandler(repo store.Repository) *ProjectHandler {
	return &ProjectHandler{repo: repo}
}

// Routes registers the project endpoints.
func (h *ProjectHandler) Routes(r chi.Router) {
	r.Get("/api/projects/context", h.GetContext)
	r.Put("/api/projects/context", h.PutContext)
}

// GetContext handles GET /api/projects/context. Users without a project yet
// get an empty context rather than a 404.
func (h *ProjectHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	project, err := h.repo.GetProjectByUser(r.Context(), user.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if project == nil {
		project = &domain.ProjectContext{UserID: user.ID}
	}
	JSON(w, http.StatusOK, project)
}

type putContextRequest struct {
	Name           *string           `json:"name"`
	Type           *string           `json:"type"`
	Stage          *string           `json:"stage"`
	Description    *string           `json:"description"`
	TargetAudience *string           `json:"target_audience"`
	Problem        *string           `json:"problem"`
	Solution       *string           `json:"solution"`
	BusinessModel  *string           `json:"business_model"`
	KeyChallenges  []string          `json:"key_challenges"`
	Goals          []string          `json:"goals"`
	Extra          map[string]string `json:"extra"`
}

// PutContext handles PUT /api/projects/context. Only supplied fields change;
// the recent-activity log is agent-owned and not editable here.
func (h *ProjectHandler) PutContext(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	var req putContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	project, err := h.repo.GetProjectByUser(r.Context(), user.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	now := time.Now()
	if project == nil {
		project = &domain.ProjectContext{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			CreatedAt: now,
		}
	}
	project.UpdatedAt = now

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Type != nil {
		project.Type = domain.ProjectType(*req.Type)
	}
	if req.Stage != nil {
		project.Stage = domain.ProjectStage(*req.Stage)
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.TargetAudience != nil {
		project.TargetAudience = *req.TargetAudience
	}
	if req.Problem != nil {
		project.Problem = *req.Problem
	}
	if req.Solution != nil {
		project.Solution = *req.Solution
	}
	if req.BusinessModel != nil {
		project.BusinessModel = *req.BusinessModel
	}
	if req.KeyChallenges != nil {
		project.KeyChallenges = req.KeyChallenges
	}
	if req.Goals != nil {
		project.Goals = req.Goals
	}
	if req.Extra != nil {
		project.Extra = req.Extra
	}

	if err := h.repo.SaveProject(r.Context(), project); err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, project)
}
