// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/actionlab/ignacio/internal/domain"
)

// Repository defines the interface for persisting users, projects,
// conversations, and their associated records.
type Repository interface {
	// GetUser retrieves a user by internal ID. Returns nil when absent.
	GetUser(ctx context.Context, id string) (*domain.User, error)

	// GetUserByExternalID retrieves a user by their identity-provider subject.
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)

	// CreateUser inserts a new user record (JIT provisioning).
	CreateUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetProjectByUser returns the user's project context. When a user has
	// several projects the oldest one is used. Returns nil when absent.
	GetProjectByUser(ctx context.Context, userID string) (*domain.ProjectContext, error)

	// SaveProject creates or updates a project context record.
	SaveProject(ctx context.Context, project *domain.ProjectContext) error

	// CreateConversation inserts a new conversation.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation retrieves a conversation by ID. Returns nil when absent.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// ListConversations returns a user's conversations, most recent first.
	ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error)

	// UpdateConversation updates mutable conversation metadata (title,
	// project association).
	UpdateConversation(ctx context.Context, conv *domain.Conversation) error

	// DeleteConversation removes a conversation with its messages and
	// interaction records.
	DeleteConversation(ctx context.Context, id string) error

	// DeleteEmptyConversations prunes conversations that never received a
	// message and are older than the cutoff. Returns the number removed.
	DeleteEmptyConversations(ctx context.Context, olderThan time.Duration) (int64, error)

	// CreateMessage inserts a message row.
	CreateMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns a conversation's messages in creation order.
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)

	// CreateInteraction inserts an interaction-audit row.
	CreateInteraction(ctx context.Context, in *domain.Interaction) error

	// CreateFile inserts an uploaded-file metadata row.
	CreateFile(ctx context.Context, f *domain.UserFile) error

	// GetFile retrieves file metadata by ID. Returns nil when absent or deleted.
	GetFile(ctx context.Context, id string) (*domain.UserFile, error)

	// ListFilesByUser returns a user's files, most recent first.
	ListFilesByUser(ctx context.Context, userID string) ([]*domain.UserFile, error)

	// ListFilesByConversation returns files attached to a conversation.
	ListFilesByConversation(ctx context.Context, conversationID string) ([]*domain.UserFile, error)

	// SetFileConversation attaches a file to a conversation after the fact.
	// Needed for uploads that arrive on a conversation's opening turn.
	SetFileConversation(ctx context.Context, id, conversationID string) error

	// UpdateFileSyncState records the outcome of the best-effort mirror task.
	UpdateFileSyncState(ctx context.Context, id string, state domain.SyncState) error

	// MarkFileDeleted soft-deletes a file row; the sweeper purges it later.
	MarkFileDeleted(ctx context.Context, id string) error

	// PurgeDeletedFiles removes soft-deleted rows older than the cutoff and
	// returns their storage paths so blobs can be removed from disk.
	PurgeDeletedFiles(ctx context.Context, olderThan time.Duration) ([]string, error)

	// CreateTemplate inserts a prompt template.
	CreateTemplate(ctx context.Context, tpl *domain.PromptTemplate) error

	// GetTemplate retrieves a prompt template by ID. Returns nil when absent.
	GetTemplate(ctx context.Context, id string) (*domain.PromptTemplate, error)

	// ListTemplates returns a user's prompt templates ordered by name.
	ListTemplates(ctx context.Context, userID string) ([]*domain.PromptTemplate, error)

	// UpdateTemplate updates a prompt template's name and body.
	UpdateTemplate(ctx context.Context, tpl *domain.PromptTemplate) error

	// DeleteTemplate removes a prompt template.
	DeleteTemplate(ctx context.Context, id string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
