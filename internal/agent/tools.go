package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/actionlab/ignacio/internal/domain"
)

// Context-mutation tools exposed to agents. They operate on the in-memory
// ProjectContext for the current turn; the orchestrator persists the result
// once the turn succeeds.
const (
	toolUpdateProjectContext = "update_project_context"
	toolGetProjectSummary    = "get_project_summary"
)

func contextToolDefs() []ToolDefinition {
	return []ToolDefinition{
		{
			Name: toolUpdateProjectContext,
			Description: "Record a durable fact about the founder's project. " +
				"Known fields: name, type, stage, description, target_audience, " +
				"problem, solution, business_model, challenge, goal, activity. " +
				"Unknown fields are kept as free-form notes.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"field": map[string]interface{}{
						"type":        "string",
						"description": "The context field to update.",
					},
					"value": map[string]interface{}{
						"type":        "string",
						"description": "The new value.",
					},
				},
				"required": []string{"field", "value"},
			},
		},
		{
			Name:        toolGetProjectSummary,
			Description: "Return the current project context as the agent sees it.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// contextToolRunner executes context tools against one turn's project state.
type contextToolRunner struct {
	project *domain.ProjectContext
	updated bool
}

type updateContextInput struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// run executes a context tool by name. The bool result reports whether the
// output is an error message.
func (r *contextToolRunner) run(name string, input json.RawMessage) (string, bool) {
	switch name {
	case toolUpdateProjectContext:
		var in updateContextInput
		if err := json.Unmarshal(input, &in); err != nil {
			return fmt.Sprintf("invalid input: %v", err), true
		}
		if in.Field == "" {
			return "field is required", true
		}
		if !r.project.SetField(in.Field, in.Value) {
			return "value is required", true
		}
		r.updated = true
		return fmt.Sprintf("recorded %s", in.Field), false
	case toolGetProjectSummary:
		return RenderProjectContext(r.project), false
	default:
		return fmt.Sprintf("unknown tool %q", name), true
	}
}

// maxToolIterations bounds the dispatch tool loop so a misbehaving model
// cannot spin forever.
const maxToolIterations = 8

// runToolLoop drives a provider conversation until the model stops asking
// for tools. It returns the final text, the ordered list of tool names
// invoked, and the message transcript extension.
func runToolLoop(
	ctx context.Context,
	provider Provider,
	system string,
	messages []ProviderMessage,
	tools []ToolDefinition,
	exec func(name string, input json.RawMessage) (string, bool),
) (string, []string, error) {
	var toolsCalled []string

	for i := 0; i < maxToolIterations; i++ {
		resp, err := provider.Chat(ctx, system, messages, tools)
		if err != nil {
			return "", toolsCalled, err
		}

		if resp.StopReason != StopReasonToolUse || len(resp.ToolCalls) == 0 {
			return resp.Content, toolsCalled, nil
		}

		messages = append(messages, ProviderMessage{
			Role:    MessageRoleAssistant,
			Content: resp.Content,
			ToolUse: resp.ToolCalls,
		})

		results := make([]ToolResultBlock, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			toolsCalled = append(toolsCalled, call.Name)
			output, isErr := exec(call.Name, call.Input)
			results = append(results, ToolResultBlock{
				ToolUseID: call.ID,
				Content:   output,
				IsError:   isErr,
			})
		}
		messages = append(messages, ProviderMessage{
			Role:       MessageRoleUser,
			ToolResult: results,
		})
	}

	return "", toolsCalled, fmt.Errorf("tool loop exceeded %d iterations", maxToolIterations)
}
