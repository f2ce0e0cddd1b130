package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/actionlab/ignacio/internal/domain"
)

// DispatchRequest carries one turn's input into a dispatch policy.
type DispatchRequest struct {
	Message string

	// History is the prior transcript of the conversation, oldest first.
	History []ProviderMessage

	// Project is the turn's working copy of the user's project context.
	// Tools mutate it in place; the orchestrator persists it afterwards.
	Project *domain.ProjectContext

	// AttachmentNote describes an uploaded file, appended to the message.
	AttachmentNote string
}

// DispatchResult is the outcome of one dispatched turn. Exactly one
// AgentUsed identifier is reported per turn for audit purposes.
type DispatchResult struct {
	Response       string
	AgentUsed      Domain
	ToolsCalled    []string
	Confidence     float64
	ContextUpdated bool
}

// Dispatcher decides which specialist handles an incoming message and
// produces the assistant response. Implementations are stateless and safe
// for concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error)

	// Policy names the dispatch strategy for logging and audit.
	Policy() string
}

// Deterministic confidence levels reported per routing outcome.
const (
	confidenceKeywordMatch = 0.9
	confidenceModelRouted  = 0.75
	confidenceModelDirect  = 0.6
	confidenceFallback     = 0.4
)

func userTurnMessage(req DispatchRequest) ProviderMessage {
	content := req.Message
	if req.AttachmentNote != "" {
		content += "\n\n[" + req.AttachmentNote + "]"
	}
	return ProviderMessage{Role: MessageRoleUser, Content: content}
}

// KeywordDispatcher routes by scanning the message against the fixed
// specialist keyword table in priority order; first match wins, no match
// falls through to the general persona.
type KeywordDispatcher struct {
	provider Provider
}

// NewKeywordDispatcher creates the rule-based dispatch policy.
func NewKeywordDispatcher(provider Provider) *KeywordDispatcher {
	return &KeywordDispatcher{provider: provider}
}

// Policy implements Dispatcher.
func (d *KeywordDispatcher) Policy() string { return "keyword" }

// Dispatch implements Dispatcher.
func (d *KeywordDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	matched := MatchDomain(req.Message)

	runner := &contextToolRunner{project: req.Project}
	system := ComposeInstructions(matched, req.Project)
	messages := append(append([]ProviderMessage{}, req.History...), userTurnMessage(req))

	response, toolsCalled, err := runToolLoop(ctx, d.provider, system, messages, contextToolDefs(), runner.run)
	if err != nil {
		return nil, fmt.Errorf("specialist %s failed: %w", matched, err)
	}

	confidence := confidenceKeywordMatch
	if matched == DomainGeneral {
		confidence = confidenceFallback
	}

	return &DispatchResult{
		Response:       response,
		AgentUsed:      matched,
		ToolsCalled:    toolsCalled,
		Confidence:     confidence,
		ContextUpdated: runner.updated,
	}, nil
}

// ModelDispatcher exposes every specialist as a callable tool plus the two
// context-mutation tools, and lets the model decide which to invoke, in
// what order, zero or more times, before answering.
type ModelDispatcher struct {
	provider Provider
}

// NewModelDispatcher creates the model-driven dispatch policy.
func NewModelDispatcher(provider Provider) *ModelDispatcher {
	return &ModelDispatcher{provider: provider}
}

// Policy implements Dispatcher.
func (d *ModelDispatcher) Policy() string { return "model" }

const consultToolPrefix = "consult_"

const routingAddendum = `

Routing:
You coordinate a bench of domain specialists. When a question clearly falls
into one specialist's territory, consult that specialist tool and build your
answer on what it returns. Answer directly for greetings, follow-ups, and
questions that need no specialist depth.`

type consultInput struct {
	Question string `json:"question"`
}

// Dispatch implements Dispatcher.
func (d *ModelDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	runner := &contextToolRunner{project: req.Project}

	tools := contextToolDefs()
	for _, spec := range Specialists() {
		tools = append(tools, ToolDefinition{
			Name: consultToolPrefix + string(spec.Domain),
			Description: fmt.Sprintf("Ask the %s specialist. Use for questions about %s.",
				spec.Name, strings.Join(spec.Keywords[:min(3, len(spec.Keywords))], ", ")),
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]interface{}{
						"type":        "string",
						"description": "The question to put to the specialist.",
					},
				},
				"required": []string{"question"},
			},
		})
	}

	lastSpecialist := DomainGeneral
	exec := func(name string, input json.RawMessage) (string, bool) {
		if specDomain, ok := strings.CutPrefix(name, consultToolPrefix); ok {
			output, err := d.consult(ctx, Domain(specDomain), input, req.Project)
			if err != nil {
				slog.Warn("specialist consultation failed", "domain", specDomain, "error", err)
				return fmt.Sprintf("specialist unavailable: %v", err), true
			}
			lastSpecialist = Domain(specDomain)
			return output, false
		}
		return runner.run(name, input)
	}

	system := ComposeInstructions(DomainGeneral, req.Project) + routingAddendum
	messages := append(append([]ProviderMessage{}, req.History...), userTurnMessage(req))

	response, toolsCalled, err := runToolLoop(ctx, d.provider, system, messages, tools, exec)
	if err != nil {
		return nil, fmt.Errorf("entry agent failed: %w", err)
	}

	confidence := confidenceModelDirect
	if lastSpecialist != DomainGeneral {
		confidence = confidenceModelRouted
	}

	return &DispatchResult{
		Response:       response,
		AgentUsed:      lastSpecialist,
		ToolsCalled:    toolsCalled,
		Confidence:     confidence,
		ContextUpdated: runner.updated,
	}, nil
}

// consult runs a single specialist invocation with its own composed
// instructions. Specialists are pure functions of (question, context).
func (d *ModelDispatcher) consult(ctx context.Context, specDomain Domain, input json.RawMessage, project *domain.ProjectContext) (string, error) {
	if _, ok := specByDomain[specDomain]; !ok {
		return "", fmt.Errorf("unknown specialist %q", specDomain)
	}

	var in consultInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid consult input: %w", err)
	}
	if in.Question == "" {
		return "", fmt.Errorf("question is required")
	}

	resp, err := d.provider.Chat(ctx,
		ComposeInstructions(specDomain, project),
		[]ProviderMessage{{Role: MessageRoleUser, Content: in.Question}},
		nil,
	)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
