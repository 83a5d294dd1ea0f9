package subagent

import (
	"reflect"
	"testing"
)

func TestBuildArgv_OrderAndFlags(t *testing.T) {
	opts := EffectiveOptions{
		Model:            "gpt-4o",
		ReasoningEffort:  ReasoningHigh,
		Sandbox:          SandboxReadOnly,
		WorkingDirectory: "/w",
	}
	got := buildArgv(opts, "say hello")
	want := []string{
		"exec", "--json",
		"--model", "gpt-4o",
		"-c", `model_reasoning_effort="high"`,
		"--sandbox", "read-only",
		"-C", "/w",
		"--skip-git-repo-check",
		"say hello",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgv_FullAutoOnlyWhenSandboxUnset(t *testing.T) {
	got := buildArgv(EffectiveOptions{UseFullAuto: true}, "go")
	want := []string{"exec", "--json", "--full-auto", "--skip-git-repo-check", "go"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgv_MinimalOptions(t *testing.T) {
	got := buildArgv(EffectiveOptions{}, "go")
	want := []string{"exec", "--json", "--skip-git-repo-check", "go"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveEffective_CallerSandboxWins(t *testing.T) {
	eff := resolveEffective(SpawnRequest{Sandbox: SandboxDangerFull, FullAuto: true}, SandboxReadOnly)
	if eff.Sandbox != SandboxDangerFull || eff.UseFullAuto {
		t.Fatalf("unexpected effective: %+v", eff)
	}
}

func TestResolveEffective_EnvironmentDefaultWins(t *testing.T) {
	eff := resolveEffective(SpawnRequest{}, SandboxReadOnly)
	if eff.Sandbox != SandboxReadOnly || eff.UseFullAuto {
		t.Fatalf("unexpected effective: %+v", eff)
	}
}

func TestResolveEffective_FullAutoWhenNoSandboxAnywhere(t *testing.T) {
	eff := resolveEffective(SpawnRequest{FullAuto: true}, "")
	if eff.Sandbox != "" || !eff.UseFullAuto {
		t.Fatalf("unexpected effective: %+v", eff)
	}
}

func TestResolveEffective_DefaultsToWorkspaceWrite(t *testing.T) {
	eff := resolveEffective(SpawnRequest{}, "")
	if eff.Sandbox != SandboxWorkspaceWrite || eff.UseFullAuto {
		t.Fatalf("unexpected effective: %+v", eff)
	}
}

func TestOverlayOverrides_NilIsNoop(t *testing.T) {
	base := EffectiveOptions{Model: "gpt-4o", Sandbox: SandboxReadOnly}
	if got := overlayOverrides(base, nil); got != base {
		t.Fatalf("expected unchanged base, got %+v", got)
	}
}

func TestOverlayOverrides_FullAutoOverrideClearsInheritedSandbox(t *testing.T) {
	base := EffectiveOptions{Sandbox: SandboxReadOnly, UseFullAuto: false}
	got := overlayOverrides(base, &SpawnRequest{FullAuto: true})
	if got.Sandbox != "" || !got.UseFullAuto {
		t.Fatalf("unexpected overlay result: %+v", got)
	}
}

func TestOverlayOverrides_PartialFieldsPreserveBase(t *testing.T) {
	base := EffectiveOptions{Model: "gpt-4o", Sandbox: SandboxReadOnly, WorkingDirectory: "/w"}
	got := overlayOverrides(base, &SpawnRequest{ReasoningEffort: ReasoningLow})
	if got.Model != "gpt-4o" || got.Sandbox != SandboxReadOnly || got.WorkingDirectory != "/w" {
		t.Fatalf("expected base fields preserved, got %+v", got)
	}
	if got.ReasoningEffort != ReasoningLow {
		t.Fatalf("expected override applied, got %+v", got)
	}
}
