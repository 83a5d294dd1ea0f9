package subagent

import (
	"os/exec"
	"sync"
	"time"

	"github.com/relayforge/subagentd/internal/codexwire"
)

// job is the internal record backing one spawned subagent. It is created
// atomically with a successful spawn and never removed from the registry
// (I7). All fields below the mutex are mutated only by the stream-ingest
// path, the cancel operation, and the termination handler; readers take a
// read lock and copy out what they need.
type job struct {
	id string

	mu               sync.RWMutex
	status           JobStatus
	startedAt        time.Time
	finishedAt       *time.Time
	exitCode         *int
	exitSignal       *string
	cancelRequested  bool
	turnCompleted    bool
	lastAgentMessage string
	events           []codexwire.NormalizedEvent
	metadata         SpawnMetadata

	stdoutTail *codexwire.TailBuffer
	stderrTail *codexwire.TailBuffer

	cmd *exec.Cmd

	done     chan struct{}
	doneOnce sync.Once
}

func newJob(id string, startedAt time.Time, metadata SpawnMetadata, cmd *exec.Cmd) *job {
	return &job{
		id:         id,
		status:     StatusRunning,
		startedAt:  startedAt,
		metadata:   metadata,
		cmd:        cmd,
		stdoutTail: codexwire.NewTailBuffer(codexwire.DefaultTailBufferCap),
		stderrTail: codexwire.NewTailBuffer(codexwire.DefaultTailBufferCap),
		done:       make(chan struct{}),
	}
}

// fireDone closes the completion signal exactly once, satisfying the
// fulfill-once contract on JobRecord.
func (j *job) fireDone() {
	j.doneOnce.Do(func() { close(j.done) })
}

// appendEvent appends a normalized event and updates the derived fields the
// ingest path tracks (lastAgentMessage, turnCompleted).
func (j *job) appendEvent(ev codexwire.NormalizedEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)

	switch ev.Type {
	case codexwire.EventMessage:
		if content, ok := ev.Content.(map[string]any); ok {
			if text, ok := content["text"].(string); ok {
				j.lastAgentMessage = text
			}
		}
	case codexwire.EventProgress:
		if content, ok := ev.Content.(map[string]any); ok {
			if kind, _ := content["kind"].(string); kind == "turn.completed" {
				j.turnCompleted = true
			}
		}
	}
}

// eventsLen returns the current length of the event vector under lock,
// the snapshot point cursor-paginated reads are built from.
func (j *job) eventsLen() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}

// eventsSlice returns a copy of events[start:end], clamped to the current
// bounds.
func (j *job) eventsSlice(start, end int) []codexwire.NormalizedEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	n := len(j.events)
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	out := make([]codexwire.NormalizedEvent, end-start)
	copy(out, j.events[start:end])
	return out
}

// tail returns the last maxEvents of the event vector, optionally filtered
// to an allow-list of types, in original order.
func (j *job) tail(maxEvents int, allow map[codexwire.EventType]bool) []codexwire.NormalizedEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if maxEvents <= 0 {
		return nil
	}

	var filtered []codexwire.NormalizedEvent
	if allow == nil {
		filtered = j.events
	} else {
		filtered = make([]codexwire.NormalizedEvent, 0, len(j.events))
		for _, ev := range j.events {
			if allow[ev.Type] {
				filtered = append(filtered, ev)
			}
		}
	}

	if len(filtered) > maxEvents {
		filtered = filtered[len(filtered)-maxEvents:]
	}
	out := make([]codexwire.NormalizedEvent, len(filtered))
	copy(out, filtered)
	return out
}

func (j *job) statusSnapshot() StatusSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return StatusSnapshot{
		JobID:      j.id,
		Status:     j.status,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
		ExitCode:   j.exitCode,
	}
}

func (j *job) resultSnapshot() ResultSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return ResultSnapshot{
		StatusSnapshot: StatusSnapshot{
			JobID:      j.id,
			Status:     j.status,
			StartedAt:  j.startedAt,
			FinishedAt: j.finishedAt,
			ExitCode:   j.exitCode,
		},
		LastAgentMessage: j.lastAgentMessage,
		StdoutTail:       j.stdoutTail.String(),
		StderrTail:       j.stderrTail.String(),
	}
}

func (j *job) isRunning() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status == StatusRunning
}

// markCancelRequested sets the advisory cancel flag consulted by I4's
// classification rule. It does not itself change status.
func (j *job) markCancelRequested() {
	j.mu.Lock()
	j.cancelRequested = true
	j.mu.Unlock()
}

// terminate assigns the terminal fields exactly once and classifies status
// per I4/I5, returning the NormalizedEvent the caller should append as the
// `final` event. Must only be called from the termination handler.
func (j *job) terminate(exitCode *int, exitSignal *string, finishedAt time.Time, timestamp string) codexwire.NormalizedEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.finishedAt = &finishedAt
	j.exitCode = exitCode
	j.exitSignal = exitSignal

	switch {
	case j.cancelRequested && !j.turnCompleted:
		j.status = StatusCanceled
	case exitCode != nil && *exitCode == 0:
		j.status = StatusDone
	default:
		j.status = StatusFailed
	}

	ev := codexwire.NormalizedEvent{
		Type: codexwire.EventFinal,
		Content: map[string]any{
			"jobId":       j.id,
			"status":      j.status,
			"exitCode":    exitCode,
			"exitSignal":  exitSignal,
			"lastMessage": j.lastAgentMessage,
		},
		Timestamp: timestamp,
	}
	j.events = append(j.events, ev)
	return ev
}

// terminateSpawnError handles the "spawn error before any exit" path: the
// child never started, so there is no exit code to classify with, only
// the cancel flag.
func (j *job) terminateSpawnError(finishedAt time.Time, timestamp, message string) codexwire.NormalizedEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.finishedAt = &finishedAt
	if j.cancelRequested {
		j.status = StatusCanceled
	} else {
		j.status = StatusFailed
	}

	ev := codexwire.NormalizedEvent{
		Type:      codexwire.EventError,
		Content:   map[string]any{"message": message},
		Timestamp: timestamp,
	}
	j.events = append(j.events, ev)
	return ev
}
