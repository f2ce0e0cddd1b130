package agent

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/actionlab/ignacio/internal/api"
	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/files"
	"github.com/actionlab/ignacio/internal/identity"
	"github.com/actionlab/ignacio/internal/store"
	"github.com/go-chi/chi/v5"
)

// RateLimiter throttles chat turns per user with a sliding window. Keyed by
// internal user ID so rotating tokens does not reset the budget.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter and starts its eviction goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
	rl.startEviction()
	return rl
}

// Allow reports whether the key may make another request now.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// startEviction periodically drops expired keys so the map cannot grow
// with one entry per user forever.
func (r *RateLimiter) startEviction() {
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for range ticker.C {
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window)
			for key, times := range r.requests {
				var fresh []time.Time
				for _, t := range times {
					if t.After(cutoff) {
						fresh = append(fresh, t)
					}
				}
				if len(fresh) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = fresh
				}
			}
			r.mu.Unlock()
		}
	}()
}

// Handler serves the chat endpoints.
type Handler struct {
	service        *Service
	repo           store.Repository
	storage        *files.Storage
	limiter        *RateLimiter
	maxUploadBytes int64
}

// NewHandler creates the chat handler.
func NewHandler(service *Service, repo store.Repository, storage *files.Storage, limiter *RateLimiter, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		repo:           repo,
		storage:        storage,
		limiter:        limiter,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers the chat routes (authentication required).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/messages", h.HandleSendMessage)
		r.Get("/conversations", h.HandleListConversations)
		r.Get("/conversations/{id}", h.HandleGetConversation)
		r.Put("/conversations/{id}", h.HandleUpdateConversation)
		r.Delete("/conversations/{id}", h.HandleDeleteConversation)
		r.Get("/conversations/{id}/messages", h.HandleListMessages)
		r.Get("/conversations/{id}/files", h.HandleListFiles)
	})
}

// HandleSendMessage handles POST /api/chat/messages. The body is multipart:
// content (required), conversation_id, project_id, and at most one of
// file / existing_file_id.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	if !h.limiter.Allow(user.ID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	content := r.FormValue("content")
	if content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	conversationID := r.FormValue("conversation_id")
	existingFileID := r.FormValue("existing_file_id")
	uploads := r.MultipartForm.File["file"]

	if len(uploads) > 0 && existingFileID != "" {
		api.Error(w, http.StatusBadRequest, "provide either file or existing_file_id, not both")
		return
	}

	var attachment *domain.UserFile
	freshUpload := false
	switch {
	case existingFileID != "":
		file, err := h.repo.GetFile(r.Context(), existingFileID)
		if err != nil {
			api.WriteError(w, err)
			return
		}
		if file == nil || file.UserID != user.ID {
			api.WriteError(w, domain.ErrNotFound)
			return
		}
		attachment = file
	case len(uploads) > 0:
		file, err := files.SaveUpload(r.Context(), h.repo, h.storage, user, conversationID, uploads[0], h.maxUploadBytes)
		if err != nil {
			api.WriteError(w, err)
			return
		}
		attachment = file
		freshUpload = true
	}

	var (
		result *TurnResult
		err    error
	)
	if conversationID == "" {
		result, err = h.service.StartConversation(r.Context(), user, content, r.FormValue("project_id"), attachment)
	} else {
		result, err = h.service.ContinueConversation(r.Context(), user, conversationID, content, attachment)
	}
	if err != nil {
		api.WriteError(w, err)
		return
	}

	// An upload on the opening turn is saved before the conversation exists;
	// attach it now so the conversation's file listing includes it.
	if freshUpload && conversationID == "" {
		if err := h.repo.SetFileConversation(r.Context(), attachment.ID, result.ConversationID); err != nil {
			slog.Warn("failed to attach opening-turn upload to conversation",
				"file_id", attachment.ID, "conversation_id", result.ConversationID, "error", err)
		}
	}

	api.JSON(w, http.StatusOK, result)
}

// HandleListConversations handles GET /api/chat/conversations.
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	convs, err := h.repo.ListConversations(r.Context(), user.ID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

// HandleGetConversation handles GET /api/chat/conversations/{id}.
func (h *Handler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.ownedConversation(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, conv)
}

type updateConversationRequest struct {
	Title     *string `json:"title"`
	ProjectID *string `json:"project_id"`
}

// HandleUpdateConversation handles PUT /api/chat/conversations/{id}.
func (h *Handler) HandleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.ownedConversation(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	var req updateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title != nil {
		if *req.Title == "" {
			api.Error(w, http.StatusBadRequest, "title cannot be empty")
			return
		}
		conv.Title = *req.Title
	}
	if req.ProjectID != nil {
		conv.ProjectID = *req.ProjectID
	}

	if err := h.repo.UpdateConversation(r.Context(), conv); err != nil {
		api.WriteError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, conv)
}

// HandleDeleteConversation handles DELETE /api/chat/conversations/{id}.
// Messages and interaction records go with it.
func (h *Handler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.ownedConversation(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if err := h.repo.DeleteConversation(r.Context(), conv.ID); err != nil {
		api.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListMessages handles GET /api/chat/conversations/{id}/messages.
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, err := h.ownedConversation(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	msgs, err := h.repo.ListMessages(r.Context(), conv.ID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// HandleListFiles handles GET /api/chat/conversations/{id}/files.
func (h *Handler) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	conv, err := h.ownedConversation(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	list, err := h.repo.ListFilesByConversation(r.Context(), conv.ID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]interface{}{"files": list})
}

func (h *Handler) ownedConversation(r *http.Request) (*domain.Conversation, error) {
	user := identity.UserFromContext(r.Context())
	conv, err := h.repo.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	// Absent and foreign conversations are indistinguishable to the caller.
	if !conv.OwnedBy(user.ID) {
		return nil, domain.ErrNotFound
	}
	return conv, nil
}
