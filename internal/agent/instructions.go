package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/actionlab/ignacio/internal/domain"
)

// basePersonality is the shared voice every agent speaks with. Domain
// playbooks and the live project context are layered on top of it.
const basePersonality = `You are Ignacio, the venture coach of the Action Lab program.

Who you are:
- A hands-on mentor for founders building new ventures, from first idea to scale.
- You carry a scrappy startup mindset: bias to action, cheap experiments over
  long plans, talking to customers over talking about customers.
- You believe technology should be a lever, not a trophy. Recommend the
  simplest tool that moves the venture forward.
- You are direct and warm. Short answers when short answers work. You push
  back when a founder is avoiding the hard question.

How you work:
- Ground every answer in the founder's actual project. Use the project
  context you are given; never invent facts about their venture.
- Prefer concrete next steps over abstract frameworks. End substantial
  answers with one clear action the founder can take this week.
- When you learn something new and durable about the project (a pivot, a new
  goal, a named challenge), record it with your context tools.`

// elicitationPrompt is rendered instead of the context block for users who
// have not described a project yet. Listing a wall of "Not specified" fields
// at a brand-new user reads as broken, so we ask instead.
const elicitationPrompt = `About this founder:
You do not know anything about their project yet. Early in the conversation,
ask what they are building, who it is for, and what stage they are at. Weave
the questions in naturally; do not run an intake questionnaire.`

// genericPlaybook backs the general persona and any unknown domain
// identifier. Falling back here must never fail a request.
const genericPlaybook = `Your focus in this conversation: general venture coaching.
Draw on whichever discipline the question needs, and say so when a topic
deserves a deeper session with a specialist lens.`

// ComposeInstructions renders the full system instructions for a domain:
// base personality, then the domain playbook, then the project context.
// Pure function of its inputs; an unknown domain gets the generic playbook.
func ComposeInstructions(d Domain, ctx *domain.ProjectContext) string {
	playbook := genericPlaybook
	if spec, ok := specByDomain[d]; ok {
		playbook = spec.Playbook
	}

	var b strings.Builder
	b.WriteString(basePersonality)
	b.WriteString("\n\n")
	b.WriteString(playbook)
	b.WriteString("\n\n")
	b.WriteString(RenderProjectContext(ctx))
	return b.String()
}

// RenderProjectContext renders the live project state for injection into
// instructions. Empty contexts produce an elicitation prompt rather than a
// list of blank field labels.
func RenderProjectContext(ctx *domain.ProjectContext) string {
	if ctx.IsEmpty() {
		return elicitationPrompt
	}

	var b strings.Builder
	b.WriteString("About this founder's project:\n")
	writeField(&b, "Project", ctx.Name)
	writeField(&b, "Type", string(ctx.Type))
	writeField(&b, "Stage", string(ctx.Stage))
	writeField(&b, "Description", ctx.Description)
	writeField(&b, "Target audience", ctx.TargetAudience)
	writeField(&b, "Problem", ctx.Problem)
	writeField(&b, "Solution", ctx.Solution)
	writeField(&b, "Business model", ctx.BusinessModel)
	writeList(&b, "Key challenges", ctx.KeyChallenges)
	writeList(&b, "Goals", ctx.Goals)
	writeList(&b, "Recent activity", ctx.RecentActivities)

	if len(ctx.Extra) > 0 {
		b.WriteString("- Additional notes:\n")
		for _, key := range sortedKeys(ctx.Extra) {
			fmt.Fprintf(&b, "  - %s: %s\n", key, ctx.Extra[key])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func writeList(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s:\n", label)
	for _, v := range values {
		fmt.Fprintf(b, "  - %s\n", v)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
