package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/actionlab/ignacio/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		email TEXT,
		name TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		project_type TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		target_audience TEXT NOT NULL DEFAULT '',
		problem TEXT NOT NULL DEFAULT '',
		solution TEXT NOT NULL DEFAULT '',
		business_model TEXT NOT NULL DEFAULT '',
		challenges_json TEXT NOT NULL DEFAULT '[]',
		goals_json TEXT NOT NULL DEFAULT '[]',
		activities_json TEXT NOT NULL DEFAULT '[]',
		context_data TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id, created_at);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		project_id TEXT,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		file_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		agent_used TEXT NOT NULL,
		tools_called_json TEXT NOT NULL DEFAULT '[]',
		input_text TEXT NOT NULL,
		output_text TEXT NOT NULL,
		confidence_score REAL NOT NULL DEFAULT 0,
		execution_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_conversation ON interactions(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS user_files (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		conversation_id TEXT,
		name TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		storage_path TEXT NOT NULL,
		sync_state TEXT NOT NULL DEFAULT 'pending',
		deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_files_user ON user_files(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_user_files_conversation ON user_files(conversation_id);

	CREATE TABLE IF NOT EXISTS prompt_templates (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prompt_templates_user ON prompt_templates(user_id, name);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var email, name sql.NullString
	var active int
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(
		&user.ID, &user.ExternalID, &email, &name, &active,
		&lastSeen, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Email = email.String
	user.Name = name.String
	user.Active = active != 0
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

const userColumns = `id, external_id, email, name, active, last_seen_at, created_at, updated_at`

// GetUser retrieves a user by internal ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByExternalID retrieves a user by their identity-provider subject.
func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, externalID))
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, external_id, email, name, active, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	active := 0
	if user.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.ExternalID, user.Email, user.Name, active,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// GetProjectByUser returns the user's oldest project context.
func (s *SQLiteStore) GetProjectByUser(ctx context.Context, userID string) (*domain.ProjectContext, error) {
	query := `
		SELECT id, user_id, name, project_type, stage, description,
		       target_audience, problem, solution, business_model,
		       challenges_json, goals_json, activities_json, context_data,
		       created_at, updated_at
		FROM projects WHERE user_id = ?
		ORDER BY created_at ASC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, userID)

	var p domain.ProjectContext
	var challengesJSON, goalsJSON, activitiesJSON, contextData string
	var createdAt, updatedAt int64

	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Type, &p.Stage, &p.Description,
		&p.TargetAudience, &p.Problem, &p.Solution, &p.BusinessModel,
		&challengesJSON, &goalsJSON, &activitiesJSON, &contextData,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan project row: %w", err)
	}

	if err := json.Unmarshal([]byte(challengesJSON), &p.KeyChallenges); err != nil {
		return nil, fmt.Errorf("decode challenges: %w", err)
	}
	if err := json.Unmarshal([]byte(goalsJSON), &p.Goals); err != nil {
		return nil, fmt.Errorf("decode goals: %w", err)
	}
	if err := json.Unmarshal([]byte(activitiesJSON), &p.RecentActivities); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	if err := json.Unmarshal([]byte(contextData), &p.Extra); err != nil {
		return nil, fmt.Errorf("decode context data: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// SaveProject creates or updates a project context record.
func (s *SQLiteStore) SaveProject(ctx context.Context, project *domain.ProjectContext) error {
	challengesJSON, err := encodeList(project.KeyChallenges)
	if err != nil {
		return fmt.Errorf("encode challenges: %w", err)
	}
	goalsJSON, err := encodeList(project.Goals)
	if err != nil {
		return fmt.Errorf("encode goals: %w", err)
	}
	activitiesJSON, err := encodeList(project.RecentActivities)
	if err != nil {
		return fmt.Errorf("encode activities: %w", err)
	}
	extra := project.Extra
	if extra == nil {
		extra = map[string]string{}
	}
	contextData, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("encode context data: %w", err)
	}

	query := `
	INSERT INTO projects (
		id, user_id, name, project_type, stage, description,
		target_audience, problem, solution, business_model,
		challenges_json, goals_json, activities_json, context_data,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		project_type = excluded.project_type,
		stage = excluded.stage,
		description = excluded.description,
		target_audience = excluded.target_audience,
		problem = excluded.problem,
		solution = excluded.solution,
		business_model = excluded.business_model,
		challenges_json = excluded.challenges_json,
		goals_json = excluded.goals_json,
		activities_json = excluded.activities_json,
		context_data = excluded.context_data,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		project.ID, project.UserID, project.Name, string(project.Type),
		string(project.Stage), project.Description, project.TargetAudience,
		project.Problem, project.Solution, project.BusinessModel,
		string(challengesJSON), string(goalsJSON), string(activitiesJSON),
		string(contextData),
		project.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func encodeList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	return json.Marshal(list)
}

// CreateConversation inserts a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	query := `
	INSERT INTO conversations (id, user_id, project_id, title, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var projectID interface{}
	if conv.ProjectID != "" {
		projectID = conv.ProjectID
	}
	_, err := s.db.ExecContext(ctx, query,
		conv.ID, conv.UserID, projectID, conv.Title,
		conv.CreatedAt.Unix(), conv.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func scanConversation(scan func(dest ...interface{}) error) (*domain.Conversation, error) {
	var conv domain.Conversation
	var projectID sql.NullString
	var createdAt, updatedAt int64

	if err := scan(&conv.ID, &conv.UserID, &projectID, &conv.Title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	conv.ProjectID = projectID.String
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT id, user_id, project_id, title, created_at, updated_at FROM conversations WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	conv, err := scanConversation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	return conv, nil
}

// ListConversations returns a user's conversations, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	query := `
		SELECT id, user_id, project_id, title, created_at, updated_at
		FROM conversations WHERE user_id = ? ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer closeRows(rows, "conversations")

	var convs []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

// UpdateConversation updates conversation title and project association.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *domain.Conversation) error {
	query := `UPDATE conversations SET title = ?, project_id = ?, updated_at = ? WHERE id = ?`

	var projectID interface{}
	if conv.ProjectID != "" {
		projectID = conv.ProjectID
	}
	result, err := s.db.ExecContext(ctx, query, conv.Title, projectID, time.Now().Unix(), conv.ID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation %s: %w", conv.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteConversation removes a conversation with its messages and
// interaction records. Best-effort cascade: the three deletes run in one
// transaction so a crash cannot leave orphaned rows.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interactions WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete interactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete transaction: %w", err)
	}
	return nil
}

// DeleteEmptyConversations prunes conversations without any message that
// are older than the cutoff. Failed first turns leave these behind.
func (s *SQLiteStore) DeleteEmptyConversations(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan).Unix()
	query := `
		DELETE FROM conversations
		WHERE created_at < ?
		  AND NOT EXISTS (SELECT 1 FROM messages WHERE messages.conversation_id = conversations.id)`

	result, err := s.db.ExecContext(ctx, query, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete empty conversations: %w", err)
	}
	return result.RowsAffected()
}

// CreateMessage inserts a message row.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	query := `
	INSERT INTO messages (id, conversation_id, role, content, file_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var fileID interface{}
	if msg.FileID != "" {
		fileID = msg.FileID
	}
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, fileID, msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in creation order. Both
// messages of one turn share a second-resolution timestamp, so ordering
// runs on the insertion sequence, never on created_at.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, file_id, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "messages")

	var msgs []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var fileID sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &fileID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.FileID = fileID.String
		msg.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// CreateInteraction inserts an interaction-audit row.
func (s *SQLiteStore) CreateInteraction(ctx context.Context, in *domain.Interaction) error {
	toolsJSON, err := encodeList(in.ToolsCalled)
	if err != nil {
		return fmt.Errorf("encode tools called: %w", err)
	}

	query := `
	INSERT INTO interactions (
		id, conversation_id, message_id, agent_used, tools_called_json,
		input_text, output_text, confidence_score, execution_time_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		in.ID, in.ConversationID, in.MessageID, in.AgentUsed, string(toolsJSON),
		in.InputText, in.OutputText, in.ConfidenceScore, in.ExecutionTimeMs,
		in.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create interaction: %w", err)
	}
	return nil
}

// CreateFile inserts an uploaded-file metadata row.
func (s *SQLiteStore) CreateFile(ctx context.Context, f *domain.UserFile) error {
	query := `
	INSERT INTO user_files (id, user_id, conversation_id, name, content_type, size_bytes, storage_path, sync_state, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var conversationID interface{}
	if f.ConversationID != "" {
		conversationID = f.ConversationID
	}
	_, err := s.db.ExecContext(ctx, query,
		f.ID, f.UserID, conversationID, f.Name, f.ContentType,
		f.SizeBytes, f.StoragePath, string(f.SyncState), f.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

const fileColumns = `id, user_id, conversation_id, name, content_type, size_bytes, storage_path, sync_state, created_at`

func scanFile(scan func(dest ...interface{}) error) (*domain.UserFile, error) {
	var f domain.UserFile
	var conversationID sql.NullString
	var createdAt int64
	if err := scan(&f.ID, &f.UserID, &conversationID, &f.Name, &f.ContentType,
		&f.SizeBytes, &f.StoragePath, &f.SyncState, &createdAt); err != nil {
		return nil, err
	}
	f.ConversationID = conversationID.String
	f.CreatedAt = time.Unix(createdAt, 0)
	return &f, nil
}

// GetFile retrieves file metadata by ID, skipping soft-deleted rows.
func (s *SQLiteStore) GetFile(ctx context.Context, id string) (*domain.UserFile, error) {
	query := `SELECT ` + fileColumns + ` FROM user_files WHERE id = ? AND deleted = 0`
	row := s.db.QueryRowContext(ctx, query, id)

	f, err := scanFile(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan file row: %w", err)
	}
	return f, nil
}

// ListFilesByUser returns a user's files, most recent first.
func (s *SQLiteStore) ListFilesByUser(ctx context.Context, userID string) ([]*domain.UserFile, error) {
	query := `SELECT ` + fileColumns + ` FROM user_files WHERE user_id = ? AND deleted = 0 ORDER BY created_at DESC`
	return s.queryFiles(ctx, query, userID)
}

// ListFilesByConversation returns files attached to a conversation.
func (s *SQLiteStore) ListFilesByConversation(ctx context.Context, conversationID string) ([]*domain.UserFile, error) {
	query := `SELECT ` + fileColumns + ` FROM user_files WHERE conversation_id = ? AND deleted = 0 ORDER BY created_at ASC`
	return s.queryFiles(ctx, query, conversationID)
}

func (s *SQLiteStore) queryFiles(ctx context.Context, query string, arg interface{}) ([]*domain.UserFile, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer closeRows(rows, "files")

	var files []*domain.UserFile
	for rows.Next() {
		f, err := scanFile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// SetFileConversation attaches a file to a conversation. Used to backfill
// uploads that arrive on a conversation's opening turn, before the
// conversation exists.
func (s *SQLiteStore) SetFileConversation(ctx context.Context, id, conversationID string) error {
	query := `UPDATE user_files SET conversation_id = ? WHERE id = ? AND deleted = 0`
	result, err := s.db.ExecContext(ctx, query, conversationID, id)
	if err != nil {
		return fmt.Errorf("set file conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateFileSyncState records the outcome of the mirror task.
func (s *SQLiteStore) UpdateFileSyncState(ctx context.Context, id string, state domain.SyncState) error {
	query := `UPDATE user_files SET sync_state = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, string(state), id); err != nil {
		return fmt.Errorf("update file sync state: %w", err)
	}
	return nil
}

// MarkFileDeleted soft-deletes a file row.
func (s *SQLiteStore) MarkFileDeleted(ctx context.Context, id string) error {
	query := `UPDATE user_files SET deleted = 1, deleted_at = ? WHERE id = ? AND deleted = 0`
	result, err := s.db.ExecContext(ctx, query, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("mark file deleted: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// PurgeDeletedFiles removes soft-deleted rows past the cutoff and returns
// their storage paths for blob removal.
func (s *SQLiteStore) PurgeDeletedFiles(ctx context.Context, olderThan time.Duration) ([]string, error) {
	threshold := time.Now().Add(-olderThan).Unix()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, storage_path FROM user_files WHERE deleted = 1 AND deleted_at < ?`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query deleted files: %w", err)
	}
	defer closeRows(rows, "deleted files")

	var ids []string
	var paths []string
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("scan deleted file row: %w", err)
		}
		ids = append(ids, id)
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted files: %w", err)
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM user_files WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("purge file row: %w", err)
		}
	}
	return paths, nil
}

// CreateTemplate inserts a prompt template.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, tpl *domain.PromptTemplate) error {
	query := `
	INSERT INTO prompt_templates (id, user_id, name, body, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		tpl.ID, tpl.UserID, tpl.Name, tpl.Body, tpl.CreatedAt.Unix(), tpl.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// GetTemplate retrieves a prompt template by ID.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*domain.PromptTemplate, error) {
	query := `SELECT id, user_id, name, body, created_at, updated_at FROM prompt_templates WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	var tpl domain.PromptTemplate
	var createdAt, updatedAt int64
	err := row.Scan(&tpl.ID, &tpl.UserID, &tpl.Name, &tpl.Body, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan template row: %w", err)
	}
	tpl.CreatedAt = time.Unix(createdAt, 0)
	tpl.UpdatedAt = time.Unix(updatedAt, 0)
	return &tpl, nil
}

// ListTemplates returns a user's prompt templates ordered by name.
func (s *SQLiteStore) ListTemplates(ctx context.Context, userID string) ([]*domain.PromptTemplate, error) {
	query := `SELECT id, user_id, name, body, created_at, updated_at FROM prompt_templates WHERE user_id = ? ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer closeRows(rows, "templates")

	var tpls []*domain.PromptTemplate
	for rows.Next() {
		var tpl domain.PromptTemplate
		var createdAt, updatedAt int64
		if err := rows.Scan(&tpl.ID, &tpl.UserID, &tpl.Name, &tpl.Body, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}
		tpl.CreatedAt = time.Unix(createdAt, 0)
		tpl.UpdatedAt = time.Unix(updatedAt, 0)
		tpls = append(tpls, &tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return tpls, nil
}

// UpdateTemplate updates a prompt template's name and body.
func (s *SQLiteStore) UpdateTemplate(ctx context.Context, tpl *domain.PromptTemplate) error {
	query := `UPDATE prompt_templates SET name = ?, body = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, tpl.Name, tpl.Body, time.Now().Unix(), tpl.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("template %s: %w", tpl.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteTemplate removes a prompt template.
func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prompt_templates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "what", what, "error", err)
	}
}
