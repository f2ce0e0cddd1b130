package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/store"
)

// memRepo is an in-memory Repository covering what the orchestrator touches.
// The embedded interface panics on anything else, which is what we want.
type memRepo struct {
	store.Repository

	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	messages      map[string][]*domain.Message
	interactions  []*domain.Interaction
	projects      map[string]*domain.ProjectContext
	files         map[string]*domain.UserFile
}

func newMemRepo() *memRepo {
	return &memRepo{
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]*domain.Message),
		projects:      make(map[string]*domain.ProjectContext),
		files:         make(map[string]*domain.UserFile),
	}
}

func (m *memRepo) CreateConversation(_ context.Context, conv *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv
	return nil
}

func (m *memRepo) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversations[id], nil
}

func (m *memRepo) UpdateConversation(_ context.Context, conv *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conv.ID]; !ok {
		return errors.New("conversation not found")
	}
	m.conversations[conv.ID] = conv
	return nil
}

func (m *memRepo) CreateMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return nil
}

func (m *memRepo) ListMessages(_ context.Context, conversationID string) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Message{}, m.messages[conversationID]...), nil
}

func (m *memRepo) CreateInteraction(_ context.Context, in *domain.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = append(m.interactions, in)
	return nil
}

func (m *memRepo) GetProjectByUser(_ context.Context, userID string) (*domain.ProjectContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projects[userID], nil
}

func (m *memRepo) SaveProject(_ context.Context, project *domain.ProjectContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.UserID] = project
	return nil
}

func (m *memRepo) messageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msgs := range m.messages {
		n += len(msgs)
	}
	return n
}

// stubDispatcher returns a canned result and records requests.
type stubDispatcher struct {
	mu       sync.Mutex
	result   *DispatchResult
	err      error
	requests []DispatchRequest
}

func (s *stubDispatcher) Dispatch(_ context.Context, req DispatchRequest) (*DispatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubDispatcher) Policy() string { return "stub" }

func testUser() *domain.User {
	return &domain.User{ID: "user-1", Email: "founder@example.com", Active: true}
}

func TestStartConversationPersistsTurn(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	dispatcher := &stubDispatcher{result: &DispatchResult{
		Response:    "start with ten customer interviews",
		AgentUsed:   DomainMarketing,
		ToolsCalled: []string{"update_project_context"},
		Confidence:  0.9,
	}}
	svc := NewService(repo, dispatcher, nil)

	longMessage := strings.Repeat("how do I find my first customers ", 5)
	result, err := svc.StartConversation(context.Background(), testUser(), longMessage, "", nil)
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}

	conv := repo.conversations[result.ConversationID]
	if conv == nil {
		t.Fatal("conversation was not persisted")
	}
	if len([]rune(conv.Title)) > 60 {
		t.Errorf("title %q exceeds the cap", conv.Title)
	}

	msgs := repo.messages[result.ConversationID]
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Error("messages should be user then assistant")
	}
	if len(repo.interactions) != 1 {
		t.Fatalf("persisted %d interactions, want 1", len(repo.interactions))
	}

	in := repo.interactions[0]
	if in.AgentUsed != string(DomainMarketing) {
		t.Errorf("interaction AgentUsed = %q", in.AgentUsed)
	}
	if in.MessageID != msgs[1].ID {
		t.Error("interaction should reference the assistant message")
	}
	if result.AgentUsed != string(DomainMarketing) || result.ConfidenceScore != 0.9 {
		t.Errorf("TurnResult = %+v", result)
	}
}

func TestContinueConversationZeroRowsOnDispatchFailure(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.conversations["c1"] = &domain.Conversation{ID: "c1", UserID: "user-1", Title: "t"}
	dispatcher := &stubDispatcher{err: errors.New("model unavailable")}
	svc := NewService(repo, dispatcher, nil)

	_, err := svc.ContinueConversation(context.Background(), testUser(), "c1", "hello", nil)
	if err == nil {
		t.Fatal("turn should fail when dispatch fails")
	}
	if repo.messageCount() != 0 {
		t.Errorf("dispatch failure persisted %d message rows, want 0", repo.messageCount())
	}
	if len(repo.interactions) != 0 {
		t.Errorf("dispatch failure persisted %d interactions, want 0", len(repo.interactions))
	}
}

func TestContinueConversationUnknownIsNotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemRepo(), &stubDispatcher{result: &DispatchResult{}}, nil)
	_, err := svc.ContinueConversation(context.Background(), testUser(), "missing", "hello", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestContinueConversationForeignOwnerIsNotFound(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.conversations["c1"] = &domain.Conversation{ID: "c1", UserID: "someone-else"}
	svc := NewService(repo, &stubDispatcher{result: &DispatchResult{}}, nil)

	_, err := svc.ContinueConversation(context.Background(), testUser(), "c1", "hello", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if repo.messageCount() != 0 {
		t.Error("ownership failure must not persist messages")
	}
}

func TestContinueConversationSavesUpdatedProject(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.conversations["c1"] = &domain.Conversation{ID: "c1", UserID: "user-1"}
	dispatcher := &stubDispatcher{result: &DispatchResult{
		Response:       "recorded",
		AgentUsed:      DomainGeneral,
		ContextUpdated: true,
	}}
	svc := NewService(repo, dispatcher, nil)

	_, err := svc.ContinueConversation(context.Background(), testUser(), "c1", "my project is EcoCart", nil)
	if err != nil {
		t.Fatalf("ContinueConversation failed: %v", err)
	}
	if repo.projects["user-1"] == nil {
		t.Error("updated project context was not saved")
	}
}

func TestContinueConversationPassesHistoryAndAttachment(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.conversations["c1"] = &domain.Conversation{ID: "c1", UserID: "user-1"}
	repo.messages["c1"] = []*domain.Message{
		{ID: "m1", ConversationID: "c1", Role: domain.RoleUser, Content: "earlier question", CreatedAt: time.Now()},
		{ID: "m2", ConversationID: "c1", Role: domain.RoleAssistant, Content: "earlier answer", CreatedAt: time.Now()},
	}
	dispatcher := &stubDispatcher{result: &DispatchResult{Response: "ok", AgentUsed: DomainGeneral}}
	svc := NewService(repo, dispatcher, nil)

	attachment := &domain.UserFile{ID: "f1", Name: "deck.pdf", ContentType: "application/pdf"}
	_, err := svc.ContinueConversation(context.Background(), testUser(), "c1", "see attached", attachment)
	if err != nil {
		t.Fatalf("ContinueConversation failed: %v", err)
	}

	req := dispatcher.requests[0]
	if len(req.History) != 2 {
		t.Fatalf("dispatcher saw %d history messages, want 2", len(req.History))
	}
	if req.History[0].Role != MessageRoleUser || req.History[1].Role != MessageRoleAssistant {
		t.Error("history roles not mapped in order")
	}
	if !strings.Contains(req.AttachmentNote, "deck.pdf") {
		t.Errorf("AttachmentNote = %q", req.AttachmentNote)
	}

	// The new user message records the attachment reference.
	msgs := repo.messages["c1"]
	userMsg := msgs[len(msgs)-2]
	if userMsg.FileID != "f1" {
		t.Errorf("user message FileID = %q, want f1", userMsg.FileID)
	}
}
