package agent

import (
	"strings"
	"testing"

	"github.com/actionlab/ignacio/internal/domain"
)

func TestComposeInstructionsIsDeterministic(t *testing.T) {
	t.Parallel()

	ctx := &domain.ProjectContext{
		Name:  "EcoCart",
		Stage: domain.StageMVP,
		Extra: map[string]string{"b_key": "2", "a_key": "1", "c_key": "3"},
	}

	first := ComposeInstructions(DomainMarketing, ctx)
	for i := 0; i < 20; i++ {
		if got := ComposeInstructions(DomainMarketing, ctx); got != first {
			t.Fatal("ComposeInstructions is not deterministic for identical inputs")
		}
	}
}

func TestComposeInstructionsLayering(t *testing.T) {
	t.Parallel()

	ctx := &domain.ProjectContext{Name: "EcoCart", Problem: "packaging waste"}
	got := ComposeInstructions(DomainFinance, ctx)

	base := strings.Index(got, "You are Ignacio")
	playbook := strings.Index(got, "finance")
	project := strings.Index(got, "EcoCart")

	if base != 0 {
		t.Error("instructions should open with the base personality")
	}
	if playbook < 0 || project < 0 {
		t.Fatalf("instructions missing playbook or project context:\n%s", got)
	}
	if !(base < playbook && playbook < project) {
		t.Error("expected base personality, then playbook, then project context")
	}
}

func TestComposeInstructionsUnknownDomainFallsBack(t *testing.T) {
	t.Parallel()

	got := ComposeInstructions(Domain("astrology"), &domain.ProjectContext{Name: "EcoCart"})
	if !strings.Contains(got, "general venture coaching") {
		t.Error("unknown domain should get the generic playbook")
	}
}

func TestRenderProjectContextElicitsWhenEmpty(t *testing.T) {
	t.Parallel()

	got := RenderProjectContext(&domain.ProjectContext{Description: "ignored without a name"})
	if !strings.Contains(got, "do not know anything about their project") {
		t.Errorf("empty context should render elicitation prompt, got:\n%s", got)
	}
	if strings.Contains(got, "Not specified") {
		t.Error("empty context must not render blank field labels")
	}
}

func TestRenderProjectContextOmitsEmptyFields(t *testing.T) {
	t.Parallel()

	got := RenderProjectContext(&domain.ProjectContext{Name: "EcoCart"})
	if strings.Contains(got, "Business model") {
		t.Error("unset fields should be omitted from rendering")
	}
	if !strings.Contains(got, "Project: EcoCart") {
		t.Errorf("rendering missing project name:\n%s", got)
	}
}

func TestRenderProjectContextSortsExtraKeys(t *testing.T) {
	t.Parallel()

	ctx := &domain.ProjectContext{
		Name:  "EcoCart",
		Extra: map[string]string{"zeta": "z", "alpha": "a"},
	}
	got := RenderProjectContext(ctx)
	if strings.Index(got, "alpha") > strings.Index(got, "zeta") {
		t.Error("extra keys should render in sorted order")
	}
}
