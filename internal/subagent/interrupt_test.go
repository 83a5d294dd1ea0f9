package subagent

import (
	"context"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestScenario_InterruptWithInheritanceAndTail(t *testing.T) {
	writeFakeCodex(t, `trap 'exit 137' TERM
echo '{"type":"item.completed","item":{"id":"1","type":"agent_message","text":"working on it"}}'
sleep 5
`)
	m := NewManager()
	out, err := m.Spawn(context.Background(), SpawnRequest{
		Prompt:           "original task",
		Model:            "gpt-4o",
		ReasoningEffort:  ReasoningHigh,
		Sandbox:          SandboxReadOnly,
		WorkingDirectory: "/w",
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	result, err := m.Interrupt(context.Background(), InterruptRequest{
		JobID:     out.JobID,
		NewPrompt: "focus only on docs",
		WaitMs:    intPtr(1000),
	})
	if err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}
	if !result.Respawned {
		t.Fatalf("expected respawned=true, reason=%q", result.Reason)
	}
	if result.NewJobID == "" {
		t.Fatal("expected a new jobId")
	}

	newMeta, err := m.GetSpawnMetadata(result.NewJobID)
	if err != nil {
		t.Fatalf("GetSpawnMetadata() error = %v", err)
	}
	if newMeta.Effective.Model != "gpt-4o" || newMeta.Effective.Sandbox != SandboxReadOnly || newMeta.Effective.WorkingDirectory != "/w" {
		t.Fatalf("unexpected inherited effective options: %+v", newMeta.Effective)
	}

	prompt := newMeta.Requested.Prompt
	for _, want := range []string{
		"Prior Context (from interrupted job " + out.JobID + ")",
		"working on it",
		"Updated Instructions",
		"focus only on docs",
		respawnReminder,
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("respawn prompt missing %q:\n%s", want, prompt)
		}
	}

	m.Cancel(result.NewJobID, true)
}

func TestScenario_InterruptRefusalOnNaturalCompletion(t *testing.T) {
	writeFakeCodex(t, `trap '' TERM
echo '{"type":"turn.completed","usage":{}}'
sleep 0.3
exit 0
`)
	m := NewManager()
	out, err := m.Spawn(context.Background(), SpawnRequest{Prompt: "original task"})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	result, err := m.Interrupt(context.Background(), InterruptRequest{
		JobID:     out.JobID,
		NewPrompt: "new instructions",
		WaitMs:    intPtr(1000),
	})
	if err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}
	if result.Respawned {
		t.Fatal("expected respawned=false")
	}
	if result.PreviousStatus != StatusDone {
		t.Fatalf("previousStatus = %q, want done", result.PreviousStatus)
	}
	if !strings.Contains(result.Reason, "completed naturally") {
		t.Fatalf("reason = %q", result.Reason)
	}
	if result.NewJobID != "" {
		t.Fatal("expected no second spawn")
	}
}

func TestInterrupt_RefusesOnNonRunningJob(t *testing.T) {
	writeFakeCodex(t, "exit 0\n")
	m := NewManager()
	out, _ := m.Spawn(context.Background(), SpawnRequest{Prompt: "go"})
	waitUntilTerminal(t, m, out.JobID)

	result, err := m.Interrupt(context.Background(), InterruptRequest{JobID: out.JobID, NewPrompt: "x"})
	if err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}
	if result.Respawned {
		t.Fatal("expected respawned=false for a non-running job")
	}
	if !strings.Contains(result.Reason, "not running") {
		t.Fatalf("reason = %q", result.Reason)
	}
}

func TestInterrupt_UnknownJob(t *testing.T) {
	m := NewManager()
	if _, err := m.Interrupt(context.Background(), InterruptRequest{JobID: "ghost", NewPrompt: "x"}); err != ErrUnknownJob {
		t.Fatalf("got %v, want ErrUnknownJob", err)
	}
}

func TestBuildRespawnPrompt_EmptyTail(t *testing.T) {
	prompt := buildRespawnPrompt("job-1", nil, "do X")
	if !strings.Contains(prompt, "(no captured events)") {
		t.Fatalf("expected empty-tail marker, got:\n%s", prompt)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(-5, 0, 60000); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
	if got := clamp(999999, 0, 60000); got != 60000 {
		t.Fatalf("got %d, want 60000", got)
	}
	if got := clamp(100, 0, 60000); got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
}
