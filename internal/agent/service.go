// Package agent implements the conversational core: specialist routing,
// instruction composition, and per-turn orchestration.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/store"
	"github.com/google/uuid"
)

// TurnResult is the structured outcome of one successful conversation turn.
type TurnResult struct {
	ConversationID  string          `json:"conversation_id"`
	Message         *domain.Message `json:"message"`
	AgentUsed       string          `json:"agent_used"`
	ToolsCalled     []string        `json:"tools_called"`
	ConfidenceScore float64         `json:"confidence_score"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// Service is the conversation orchestrator: the per-turn transaction
// boundary between HTTP handlers, the dispatcher, and the store.
// Constructed once at process start and shared across requests; it holds
// no per-request state.
type Service struct {
	repo       store.Repository
	dispatcher Dispatcher
	audit      AuditLogger
}

// NewService creates the orchestrator.
func NewService(repo store.Repository, dispatcher Dispatcher, audit AuditLogger) *Service {
	if audit == nil {
		audit = NopAuditLogger{}
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		audit:      audit,
	}
}

// StartConversation creates a new conversation owned by the user and runs
// the first turn. The title is derived from the opening message.
func (s *Service) StartConversation(ctx context.Context, user *domain.User, message, projectID string, attachment *domain.UserFile) (*TurnResult, error) {
	now := time.Now()
	conv := &domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ProjectID: projectID,
		Title:     domain.TitleFromMessage(message),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	return s.ContinueConversation(ctx, user, conv.ID, message, attachment)
}

// ContinueConversation runs one turn on an existing conversation.
//
// Persistence ordering: the user message, assistant message, and
// interaction row are only written after the dispatcher succeeds, so a
// failed model call leaves zero new rows. A crash between dispatch success
// and persistence loses the turn; that durability gap is accepted.
func (s *Service) ContinueConversation(ctx context.Context, user *domain.User, conversationID, message string, attachment *domain.UserFile) (*TurnResult, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.OwnedBy(user.ID) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}

	project, err := s.loadProject(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load project context: %w", err)
	}

	history, err := s.loadHistory(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	req := DispatchRequest{
		Message: message,
		History: history,
		Project: project,
	}
	if attachment != nil {
		req.AttachmentNote = fmt.Sprintf("Attached file: %s (%s)", attachment.Name, attachment.ContentType)
	}

	started := time.Now()
	result, err := s.dispatcher.Dispatch(ctx, req)
	elapsed := time.Since(started).Milliseconds()

	if err != nil {
		s.audit.Log(AuditEvent{
			UserID:          user.ID,
			ConversationID:  conv.ID,
			Policy:          s.dispatcher.Policy(),
			AgentUsed:       string(DomainGeneral),
			InputText:       message,
			ExecutionTimeMs: elapsed,
			Error:           err.Error(),
		})
		return nil, fmt.Errorf("dispatch turn: %w", err)
	}

	turn, err := s.persistTurn(ctx, user, conv, message, attachment, result, elapsed)
	if err != nil {
		return nil, err
	}

	if result.ContextUpdated {
		if err := s.saveProject(ctx, project); err != nil {
			// The turn already succeeded; losing a context update is
			// recoverable on a later turn.
			slog.Warn("failed to persist project context update",
				"user_id", user.ID, "conversation_id", conv.ID, "error", err)
		}
	}

	s.audit.Log(AuditEvent{
		UserID:          user.ID,
		ConversationID:  conv.ID,
		Policy:          s.dispatcher.Policy(),
		AgentUsed:       string(result.AgentUsed),
		ToolsCalled:     result.ToolsCalled,
		InputText:       message,
		OutputText:      result.Response,
		ConfidenceScore: result.Confidence,
		ExecutionTimeMs: elapsed,
	})

	return turn, nil
}

func (s *Service) persistTurn(ctx context.Context, user *domain.User, conv *domain.Conversation, message string, attachment *domain.UserFile, result *DispatchResult, elapsed int64) (*TurnResult, error) {
	now := time.Now()

	userMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        message,
		CreatedAt:      now,
	}
	if attachment != nil {
		userMsg.FileID = attachment.ID
	}
	if err := s.repo.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	assistantMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        result.Response,
		CreatedAt:      now,
	}
	if err := s.repo.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	interaction := &domain.Interaction{
		ID:              uuid.NewString(),
		ConversationID:  conv.ID,
		MessageID:       assistantMsg.ID,
		AgentUsed:       string(result.AgentUsed),
		ToolsCalled:     result.ToolsCalled,
		InputText:       message,
		OutputText:      result.Response,
		ConfidenceScore: result.Confidence,
		ExecutionTimeMs: elapsed,
		CreatedAt:       now,
	}
	if err := s.repo.CreateInteraction(ctx, interaction); err != nil {
		return nil, fmt.Errorf("persist interaction: %w", err)
	}

	// Bump updated_at so conversation lists sort by recency.
	if err := s.repo.UpdateConversation(ctx, conv); err != nil {
		slog.Warn("failed to bump conversation timestamp", "conversation_id", conv.ID, "error", err)
	}

	return &TurnResult{
		ConversationID:  conv.ID,
		Message:         assistantMsg,
		AgentUsed:       string(result.AgentUsed),
		ToolsCalled:     result.ToolsCalled,
		ConfidenceScore: result.Confidence,
		ExecutionTimeMs: elapsed,
	}, nil
}

// loadProject returns the user's project context, or a fresh in-memory one
// for users who have not described a project yet. Reconstructed on every
// turn; never cached across requests.
func (s *Service) loadProject(ctx context.Context, userID string) (*domain.ProjectContext, error) {
	project, err := s.repo.GetProjectByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		now := time.Now()
		project = &domain.ProjectContext{
			ID:        uuid.NewString(),
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return project, nil
}

func (s *Service) saveProject(ctx context.Context, project *domain.ProjectContext) error {
	return s.repo.SaveProject(ctx, project)
}

func (s *Service) loadHistory(ctx context.Context, conversationID string) ([]ProviderMessage, error) {
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]ProviderMessage, 0, len(msgs))
	for _, msg := range msgs {
		role := MessageRoleUser
		if msg.Role == domain.RoleAssistant {
			role = MessageRoleAssistant
		}
		history = append(history, ProviderMessage{Role: role, Content: msg.Content})
	}
	return history, nil
}
