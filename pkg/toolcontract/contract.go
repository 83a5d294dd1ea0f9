// Package toolcontract defines the request/response wire shapes for the
// eight subagent job manager tool operations (spawn, spawn-group, status,
// result, events, cancel, wait-any, interrupt) described in spec.md §6.
// These are plain JSON-tagged Go structs; argument validation and the
// JSON-RPC envelope that carries them are out of scope and live in
// cmd/subagentd's dispatcher.
package toolcontract

// SpawnArgs is the `spawn` operation's argument object.
type SpawnArgs struct {
	Prompt           string `json:"prompt"`
	Model            string `json:"model,omitempty"`
	ReasoningEffort  string `json:"reasoningEffort,omitempty"`
	Sandbox          string `json:"sandbox,omitempty"`
	FullAuto         bool   `json:"fullAuto,omitempty"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`
	Label            string `json:"label,omitempty"`
}

// SpawnResult is the `spawn` operation's result object.
type SpawnResult struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	StartedAt string `json:"startedAt"`
}

// SpawnGroupArgs is the `spawn-group` operation's argument object.
type SpawnGroupArgs struct {
	Jobs               []SpawnArgs `json:"jobs"`
	Defaults           *SpawnArgs  `json:"defaults,omitempty"`
	IncludeHandshake   bool        `json:"includeHandshake,omitempty"`
	HandshakeMaxEvents int         `json:"handshakeMaxEvents,omitempty"`
}

// SpawnGroupResultItem is one element of spawn-group's `results` array:
// either a successful spawn (JobID populated) or a failure (Error
// populated). Label is echoed on both.
type SpawnGroupResultItem struct {
	JobID     string          `json:"jobId,omitempty"`
	Status    string          `json:"status,omitempty"`
	StartedAt string          `json:"startedAt,omitempty"`
	Label     string          `json:"label,omitempty"`
	Handshake []EventEnvelope `json:"handshake,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// SpawnGroupResult is the `spawn-group` operation's result object.
type SpawnGroupResult struct {
	Results []SpawnGroupResultItem `json:"results"`
}

// StatusArgs is the `status` operation's argument object.
type StatusArgs struct {
	JobID string `json:"jobId"`
}

// StatusResult is the `status` operation's result object.
type StatusResult struct {
	JobID      string `json:"jobId"`
	Status     string `json:"status"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt,omitempty"`
	ExitCode   *int   `json:"exitCode,omitempty"`
}

// ResultArgs is the `result` operation's argument object.
type ResultArgs struct {
	JobID string `json:"jobId"`
	View  string `json:"view,omitempty"` // "full" | "finalMessage" (default)
}

// ResultResult is the `result` operation's result object. When View is
// "finalMessage" (the default), only FinalMessage is populated as plain
// text by the dispatcher; the full form additionally carries status and
// tails.
type ResultResult struct {
	StatusResult
	FinalMessage string `json:"finalMessage"`
	StdoutTail   string `json:"stdoutTail,omitempty"`
	StderrTail   string `json:"stderrTail,omitempty"`
}

// EventsArgs is the `events` operation's argument object.
type EventsArgs struct {
	JobID     string `json:"jobId"`
	Cursor    string `json:"cursor,omitempty"`
	MaxEvents int    `json:"maxEvents,omitempty"` // default 200, max 2000
}

// EventEnvelope is the wire form of a codexwire.NormalizedEvent.
type EventEnvelope struct {
	Type      string `json:"type"`
	Content   any    `json:"content"`
	Timestamp string `json:"timestamp"`
}

// EventsResult is the `events` operation's result object.
type EventsResult struct {
	Events     []EventEnvelope `json:"events"`
	NextCursor string          `json:"nextCursor"`
	Done       bool            `json:"done"`
}

// CancelArgs is the `cancel` operation's argument object.
type CancelArgs struct {
	JobID string `json:"jobId"`
	Force bool   `json:"force,omitempty"`
}

// CancelResult is the `cancel` operation's result object.
type CancelResult struct {
	Success bool `json:"success"`
}

// WaitAnyArgs is the `wait-any` operation's argument object.
type WaitAnyArgs struct {
	JobIDs    []string `json:"jobIds"`
	TimeoutMs int      `json:"timeoutMs,omitempty"` // default 0, max 5 min
}

// WaitAnyResult is the `wait-any` operation's result object.
type WaitAnyResult struct {
	CompletedJobID string   `json:"completedJobId,omitempty"`
	TimedOut       bool     `json:"timedOut"`
	MissingJobIDs  []string `json:"missingJobIds,omitempty"`
}

// InterruptOverrides mirrors SpawnArgs' override fields but every field is
// optional, since overrides overlay onto a captured EffectiveOptions
// rather than resolving from scratch.
type InterruptOverrides struct {
	Model            string `json:"model,omitempty"`
	ReasoningEffort  string `json:"reasoningEffort,omitempty"`
	Sandbox          string `json:"sandbox,omitempty"`
	FullAuto         bool   `json:"fullAuto,omitempty"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`
}

// InterruptArgs is the `interrupt` operation's argument object.
type InterruptArgs struct {
	JobID            string              `json:"jobId"`
	NewPrompt        string              `json:"newPrompt"`
	WaitMs           *int                `json:"waitMs,omitempty"`
	IncludeEventTail *bool               `json:"includeEventTail,omitempty"`
	TailMaxEvents    *int                `json:"tailMaxEvents,omitempty"`
	Overrides        *InterruptOverrides `json:"overrides,omitempty"`
}

// InterruptResult is the `interrupt` operation's result object.
type InterruptResult struct {
	PreviousJobID  string `json:"previousJobId"`
	PreviousStatus string `json:"previousStatus"`
	Respawned      bool   `json:"respawned"`
	NewJobID       string `json:"newJobId,omitempty"`
	Reason         string `json:"reason,omitempty"`
}
