package domain

import "time"

// SyncState tracks best-effort mirroring of an upload to external storage.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncDone    SyncState = "done"
	SyncFailed  SyncState = "failed"
)

// UserFile describes an uploaded attachment. The blob lives on disk under
// the storage root; this row carries its metadata and ownership.
type UserFile struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Name           string    `json:"name"`
	ContentType    string    `json:"content_type"`
	SizeBytes      int64     `json:"size_bytes"`
	StoragePath    string    `json:"-"`
	SyncState      SyncState `json:"sync_state"`
	Deleted        bool      `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// AllowedUploadTypes lists the MIME types accepted for chat attachments.
// Everything else is rejected before any storage write happens.
var AllowedUploadTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// PromptTemplate is a reusable named instruction snippet users can manage.
type PromptTemplate struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
