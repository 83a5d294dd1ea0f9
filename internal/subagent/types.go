// Package subagent implements the asynchronous subagent job manager: it
// spawns `codex exec --json` child processes, ingests their normalized
// event stream into per-job records, and exposes the spawn/status/result/
// events/cancel/wait/interrupt operations used by the tool dispatcher in
// cmd/subagentd.
package subagent

import "time"

// JobStatus is the lifecycle state of a subagent job.
type JobStatus string

const (
	StatusRunning  JobStatus = "running"
	StatusDone     JobStatus = "done"
	StatusFailed   JobStatus = "failed"
	StatusCanceled JobStatus = "canceled"
)

// Sandbox is one of the three policies codex accepts via --sandbox.
type Sandbox string

const (
	SandboxReadOnly       Sandbox = "read-only"
	SandboxWorkspaceWrite Sandbox = "workspace-write"
	SandboxDangerFull     Sandbox = "danger-full-access"
)

// ReasoningEffort is one of the three levels codex accepts via
// -c model_reasoning_effort.
type ReasoningEffort string

const (
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// SpawnRequest is the caller-supplied input to Spawn. Fields left zero are
// resolved by precedence into an EffectiveOptions.
type SpawnRequest struct {
	Prompt           string
	Model            string
	ReasoningEffort  ReasoningEffort
	Sandbox          Sandbox
	FullAuto         bool
	WorkingDirectory string
	Label            string
}

// EffectiveOptions is the resolved configuration actually applied to a
// spawned child. Interrupt-respawn inherits this verbatim, then overlays
// caller-supplied overrides.
type EffectiveOptions struct {
	Model            string
	ReasoningEffort  ReasoningEffort
	Sandbox          Sandbox
	UseFullAuto      bool
	WorkingDirectory string
}

// SpawnMetadata bundles what the caller asked for with what was actually
// applied, plus an opaque label echoed back but never consulted by
// execution.
type SpawnMetadata struct {
	Requested SpawnRequest
	Effective EffectiveOptions
	Label     string
}

// SpawnOutcome is returned by Spawn on success.
type SpawnOutcome struct {
	JobID     string
	Status    JobStatus
	StartedAt time.Time
}

// CancelOutcome is returned by Cancel.
type CancelOutcome struct {
	Success bool
}

// WaitForExitOutcome is returned by WaitForExit.
type WaitForExitOutcome struct {
	Exited bool
}

// WaitAnyOutcome is returned by WaitAny.
type WaitAnyOutcome struct {
	CompletedJobID string
	TimedOut       bool
	MissingJobIDs  []string
}

// InterruptOutcome is returned by Interrupt.
type InterruptOutcome struct {
	PreviousJobID string
	PreviousStatus JobStatus
	Respawned     bool
	NewJobID      string
	Reason        string
}

// StatusSnapshot is a defensive copy of a job's reader-visible status
// fields.
type StatusSnapshot struct {
	JobID      string
	Status     JobStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	ExitCode   *int
}

// ResultSnapshot extends StatusSnapshot with the fields the `result`
// operation additionally exposes.
type ResultSnapshot struct {
	StatusSnapshot
	LastAgentMessage string
	StdoutTail       string
	StderrTail       string
}
