package files

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/actionlab/ignacio/internal/api"
	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/identity"
	"github.com/actionlab/ignacio/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler serves the file endpoints.
type Handler struct {
	repo     store.Repository
	storage  *Storage
	maxBytes int64
	signTTL  time.Duration
}

// NewHandler creates the files handler.
func NewHandler(repo store.Repository, storage *Storage, maxBytes int64, signTTL time.Duration) *Handler {
	return &Handler{repo: repo, storage: storage, maxBytes: maxBytes, signTTL: signTTL}
}

// Routes registers the authenticated file endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/files", h.Upload)
	r.Get("/api/files", h.List)
	r.Get("/api/files/{id}/download", h.Download)
	r.Post("/api/files/{id}/signed-url", h.IssueSignedURL)
	r.Delete("/api/files/{id}", h.Delete)
}

// SignedRoutes registers the endpoints reachable without a bearer token;
// the HMAC query signature is the only credential.
func (h *Handler) SignedRoutes(r chi.Router) {
	r.Get("/api/files/signed/{id}", h.DownloadSigned)
}

// SaveUpload validates one multipart file part and persists blob + metadata.
// The content type is checked before any disk write. Shared with the chat
// handler for inline attachments.
func SaveUpload(ctx context.Context, repo store.Repository, storage *Storage, user *domain.User, conversationID string, fh *multipart.FileHeader, maxBytes int64) (*domain.UserFile, error) {
	if fh.Size > maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidInput, maxBytes)
	}
	contentType := fh.Header.Get("Content-Type")
	if !domain.AllowedUploadTypes[contentType] {
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, contentType)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	file := &domain.UserFile{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		ConversationID: conversationID,
		Name:           fh.Filename,
		ContentType:    contentType,
		SyncState:      domain.SyncPending,
		CreatedAt:      time.Now(),
	}

	path, size, err := storage.Save(user.ID, file.ID, io.LimitReader(src, maxBytes))
	if err != nil {
		return nil, err
	}
	file.StoragePath = path
	file.SizeBytes = size

	if err := repo.CreateFile(ctx, file); err != nil {
		// Keep blob and row consistent on metadata failure.
		_ = storage.Remove(path)
		return nil, fmt.Errorf("persist file metadata: %w", err)
	}

	// Mirror runs detached from the request; its failure never reaches the
	// uploader.
	go storage.Mirror(context.WithoutCancel(ctx), repo, file)

	return file, nil
}

// Upload handles POST /api/files.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		api.Error(w, http.StatusBadRequest, "file part is required")
		return
	}

	file, err := SaveUpload(r.Context(), h.repo, h.storage, user, r.FormValue("conversation_id"), fhs[0], h.maxBytes)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.JSON(w, http.StatusCreated, file)
}

// List handles GET /api/files.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	list, err := h.repo.ListFilesByUser(r.Context(), user.ID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]interface{}{"files": list})
}

// Download handles GET /api/files/{id}/download.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	file, err := h.ownedFile(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	h.serveBlob(w, r, file)
}

// IssueSignedURL handles POST /api/files/{id}/signed-url.
func (h *Handler) IssueSignedURL(w http.ResponseWriter, r *http.Request) {
	file, err := h.ownedFile(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	exp, sig := h.storage.SignedQuery(file.ID, h.signTTL)
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"url":        fmt.Sprintf("/api/files/signed/%s?exp=%d&sig=%s", file.ID, exp, sig),
		"expires_at": time.Unix(exp, 0).UTC().Format(time.RFC3339),
	})
}

// DownloadSigned handles GET /api/files/signed/{id}. No bearer token is
// required; the signature in the query authorizes the download.
func (h *Handler) DownloadSigned(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.storage.VerifySignedQuery(id, r.URL.Query().Get("exp"), r.URL.Query().Get("sig")); err != nil {
		api.WriteError(w, err)
		return
	}

	file, err := h.repo.GetFile(r.Context(), id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if file == nil {
		api.WriteError(w, domain.ErrNotFound)
		return
	}
	h.serveBlob(w, r, file)
}

// Delete handles DELETE /api/files/{id}. The row is soft-deleted; the
// maintenance sweeper removes the blob later.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	file, err := h.ownedFile(r)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if err := h.repo.MarkFileDeleted(r.Context(), file.ID); err != nil {
		api.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ownedFile(r *http.Request) (*domain.UserFile, error) {
	user := identity.UserFromContext(r.Context())
	file, err := h.repo.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	// Absent and foreign files are indistinguishable to the caller.
	if file == nil || file.UserID != user.ID {
		return nil, domain.ErrNotFound
	}
	return file, nil
}

func (h *Handler) serveBlob(w http.ResponseWriter, r *http.Request, file *domain.UserFile) {
	blob, err := h.storage.Open(file.StoragePath)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	http.ServeContent(w, r, file.Name, file.CreatedAt, blob)
}
