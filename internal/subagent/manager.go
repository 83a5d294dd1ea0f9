package subagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/relayforge/subagentd/internal/codexwire"
	"github.com/relayforge/subagentd/internal/obslog"
)

// CodexCommand is the binary name invoked for every spawn. Overridable for
// tests, which point it at a fake script instead of the real codex CLI.
var CodexCommand = "codex"

// maxWaitAnyMs is the hard cap on wait-any's timeoutMs, per spec.md §6's
// "default 0, max 5 min".
const maxWaitAnyMs = 5 * 60 * 1000

// Manager owns the job registry and every public operation of the
// asynchronous subagent job manager. A fresh Manager should be constructed
// per test; production code wires a single instance through the tool
// dispatcher (see spec.md's "prefer explicit construction" design note).
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*job)}
}

func now() time.Time { return time.Now() }

func timestamp() string { return now().Format(time.RFC3339Nano) }

// runningCountLocked must be called with mu held for reading or writing.
func (m *Manager) runningCountLocked() int {
	n := 0
	for _, j := range m.jobs {
		if j.isRunning() {
			n++
		}
	}
	return n
}

// Spawn admits a job built from raw caller-supplied options, resolving
// EffectiveOptions by the precedence rule in argv.go.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (SpawnOutcome, error) {
	eff := resolveEffective(req, envDefaultSandbox())
	return m.spawn(ctx, req, eff)
}

// SpawnFromEffective admits a job from an already-resolved EffectiveOptions,
// used by the interrupt coordinator to inherit settings verbatim.
func (m *Manager) SpawnFromEffective(ctx context.Context, prompt string, eff EffectiveOptions, label string) (SpawnOutcome, error) {
	req := SpawnRequest{Prompt: prompt, Label: label}
	return m.spawn(ctx, req, eff)
}

func (m *Manager) spawn(ctx context.Context, req SpawnRequest, eff EffectiveOptions) (SpawnOutcome, error) {
	m.mu.Lock()
	maxJobs := envMaxConcurrentJobs()
	if m.runningCountLocked() >= maxJobs {
		m.mu.Unlock()
		return SpawnOutcome{}, ErrTooManyConcurrentJobs
	}

	id := uuid.NewString()
	startedAt := now()
	argv := buildArgv(eff, req.Prompt)

	cmd := exec.Command(CodexCommand, argv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	cmd.WaitDelay = 5 * time.Second

	metadata := SpawnMetadata{Requested: req, Effective: eff, Label: req.Label}
	j := newJob(id, startedAt, metadata, cmd)
	j.appendEvent(codexwire.NormalizedEvent{
		Type: codexwire.EventProgress,
		Content: map[string]any{
			"kind":             "spawned",
			"command":          CodexCommand,
			"args":             argv,
			"effectiveSandbox": eff.Sandbox,
			"label":            req.Label,
		},
		Timestamp: timestamp(),
	})
	m.jobs[id] = j
	m.mu.Unlock()

	obslog.LogKV("spawn", "admitting job", "jobId", id, "sandbox", eff.Sandbox, "fullAuto", eff.UseFullAuto)
	outcome := SpawnOutcome{JobID: id, Status: StatusRunning, StartedAt: startedAt}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		m.failSpawn(j, fmt.Sprintf("stdout pipe: %v", err))
		return outcome, nil
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		m.failSpawn(j, fmt.Sprintf("stderr pipe: %v", err))
		return outcome, nil
	}

	if err := cmd.Start(); err != nil {
		m.failSpawn(j, fmt.Sprintf("failed to start command: %v", err))
		return outcome, nil
	}

	// cmd.Wait closes both pipes, so it runs only once both readers have hit
	// EOF: every stdout line is ingested before the final event is appended.
	var streams sync.WaitGroup
	streams.Add(2)
	go func() { defer streams.Done(); m.ingestStdout(j, stdoutPipe) }()
	go func() { defer streams.Done(); drainStderr(j, stderrPipe) }()
	go func() { streams.Wait(); m.awaitTermination(j) }()

	return outcome, nil
}

// failSpawn handles the "spawn error before any exit" path from §4.4.7.
func (m *Manager) failSpawn(j *job, message string) {
	j.terminateSpawnError(now(), timestamp(), message)
	j.fireDone()
	obslog.LogKV("spawn", "spawn failed", "jobId", j.id, "error", message)
}

// ingestStdout reads raw bytes from the child's stdout, feeding them
// through the Line Framer and Event Normalizer, and appends each resulting
// NormalizedEvent to the job record.
func (m *Manager) ingestStdout(j *job, r io.Reader) {
	var framer codexwire.LineFramer
	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			j.stdoutTail.Write(chunk)
			for _, line := range framer.Feed(chunk) {
				m.ingestLine(j, line)
			}
		}
		if readErr != nil {
			break
		}
	}
	if line, ok := framer.Flush(); ok {
		m.ingestLine(j, line)
	}
}

func (m *Manager) ingestLine(j *job, line string) {
	var v any
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		j.appendEvent(codexwire.NormalizedEvent{
			Type: codexwire.EventError,
			Content: map[string]any{
				"message": "Failed to parse codex JSONL event",
				"line":    line,
				"error":   err.Error(),
			},
			Timestamp: timestamp(),
		})
		return
	}
	ev, ok := codexwire.Normalize(v, timestamp())
	if !ok {
		return
	}
	j.appendEvent(ev)
}

// drainStderr copies stderr into the job's stderr tail buffer without
// parsing it; stderr is diagnostics only, per spec.md §6.
func drainStderr(j *job, r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			j.stderrTail.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// awaitTermination blocks on cmd.Wait, then runs the termination handler
// from §4.4.7 exactly once.
func (m *Manager) awaitTermination(j *job) {
	waitErr := j.cmd.Wait()

	var exitCode *int
	var exitSignal *string
	var exitErr *exec.ExitError
	if waitErr == nil {
		c := 0
		exitCode = &c
	} else if errors.As(waitErr, &exitErr) {
		c := exitErr.ExitCode()
		exitCode = &c
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			s := status.Signal().String()
			exitSignal = &s
		}
	} else {
		m.failSpawn(j, waitErr.Error())
		return
	}

	j.terminate(exitCode, exitSignal, now(), timestamp())
	j.fireDone()
	obslog.LogKV("terminate", "job terminated", "jobId", j.id, "status", j.statusSnapshot().Status)
}

// JobIDs returns a snapshot of every job ID the registry currently holds,
// in no particular order. Used by the watch dashboard to poll the
// registry; no operation in the tool surface needs it.
func (m *Manager) JobIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) get(jobID string) (*job, error) {
	m.mu.RLock()
	j, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownJob
	}
	return j, nil
}

// Status returns a defensive copy of a job's status fields.
func (m *Manager) Status(jobID string) (StatusSnapshot, error) {
	j, err := m.get(jobID)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return j.statusSnapshot(), nil
}

// Result returns status plus lastAgentMessage/stdoutTail/stderrTail.
func (m *Manager) Result(jobID string) (ResultSnapshot, error) {
	j, err := m.get(jobID)
	if err != nil {
		return ResultSnapshot{}, err
	}
	return j.resultSnapshot(), nil
}

// GetSpawnMetadata returns the job's bundled requested/effective options.
func (m *Manager) GetSpawnMetadata(jobID string) (SpawnMetadata, error) {
	j, err := m.get(jobID)
	if err != nil {
		return SpawnMetadata{}, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.metadata, nil
}

// GetEvents implements the cursor-paginated read. cursor is a decimal index
// string; invalid or negative values clamp to 0 (B2).
func (m *Manager) GetEvents(jobID string, cursor string, maxEvents int) (events []codexwire.NormalizedEvent, nextCursor string, done bool, err error) {
	j, err := m.get(jobID)
	if err != nil {
		return nil, "", false, err
	}
	if maxEvents < 1 {
		maxEvents = 200
	} else if maxEvents > 2000 {
		maxEvents = 2000
	}

	start := parseCursor(cursor)
	n := j.eventsLen()
	if start > n {
		start = n
	}
	end := start + maxEvents
	if end > n {
		end = n
	}

	slice := j.eventsSlice(start, end)
	status := j.statusSnapshot().Status
	return slice, strconv.Itoa(end), status != StatusRunning, nil
}

// parseCursor clamps an invalid, negative, or non-numeric cursor to 0, per
// B2.
func parseCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// GetEventTail returns the last maxEvents entries, optionally filtered to
// an allow-list of event types.
func (m *Manager) GetEventTail(jobID string, maxEvents int, allow []codexwire.EventType) ([]codexwire.NormalizedEvent, error) {
	j, err := m.get(jobID)
	if err != nil {
		return nil, err
	}
	var allowSet map[codexwire.EventType]bool
	if len(allow) > 0 {
		allowSet = make(map[codexwire.EventType]bool, len(allow))
		for _, t := range allow {
			allowSet[t] = true
		}
	}
	return j.tail(maxEvents, allowSet), nil
}

// Cancel requests termination of a running job. Non-running jobs return
// {success:false} without side effects.
func (m *Manager) Cancel(jobID string, force bool) (CancelOutcome, error) {
	j, err := m.get(jobID)
	if err != nil {
		return CancelOutcome{}, err
	}
	if !j.isRunning() {
		return CancelOutcome{Success: false}, nil
	}

	j.markCancelRequested()
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if j.cmd.Process != nil {
		_ = syscall.Kill(-j.cmd.Process.Pid, sig)
	}
	return CancelOutcome{Success: true}, nil
}

// WaitForExit blocks until the job's completion signal fires or waitMs
// elapses, whichever is first.
func (m *Manager) WaitForExit(ctx context.Context, jobID string, waitMs int) (WaitForExitOutcome, error) {
	j, err := m.get(jobID)
	if err != nil {
		return WaitForExitOutcome{}, err
	}
	if !j.isRunning() {
		return WaitForExitOutcome{Exited: true}, nil
	}
	if waitMs <= 0 {
		return WaitForExitOutcome{Exited: false}, nil
	}

	timer := time.NewTimer(time.Duration(waitMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-j.done:
		return WaitForExitOutcome{Exited: true}, nil
	case <-timer.C:
		return WaitForExitOutcome{Exited: false}, nil
	case <-ctx.Done():
		return WaitForExitOutcome{Exited: false}, nil
	}
}

// WaitAny waits for the first of several jobs to terminate.
func (m *Manager) WaitAny(ctx context.Context, jobIDs []string, timeoutMs int) (WaitAnyOutcome, error) {
	var known []*job
	var missing []string

	m.mu.RLock()
	for _, id := range jobIDs {
		if j, ok := m.jobs[id]; ok {
			known = append(known, j)
		} else {
			missing = append(missing, id)
		}
	}
	m.mu.RUnlock()

	if len(known) == 0 {
		return WaitAnyOutcome{MissingJobIDs: missing}, nil
	}

	for _, j := range known {
		if !j.isRunning() {
			return WaitAnyOutcome{CompletedJobID: j.id, MissingJobIDs: missing}, nil
		}
	}

	cases := make([]<-chan struct{}, len(known))
	for i, j := range known {
		cases[i] = j.done
	}

	switch {
	case timeoutMs < 0:
		timeoutMs = 0
	case timeoutMs > maxWaitAnyMs:
		timeoutMs = maxWaitAnyMs
	}
	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()

	winner := waitAnyChannel(ctx, cases, timer.C)
	if winner < 0 {
		return WaitAnyOutcome{TimedOut: true, MissingJobIDs: missing}, nil
	}
	return WaitAnyOutcome{CompletedJobID: known[winner].id, MissingJobIDs: missing}, nil
}

// waitAnyChannel selects over an arbitrary number of done channels plus a
// timeout and context, since Go's select cannot range over a dynamic case
// list directly. Returns the winning index, or -1 on timeout/cancellation.
func waitAnyChannel(ctx context.Context, dones []<-chan struct{}, timeout <-chan time.Time) int {
	result := make(chan int, 1)
	stop := make(chan struct{})
	defer close(stop)

	for i, ch := range dones {
		go func(i int, ch <-chan struct{}) {
			select {
			case <-ch:
				select {
				case result <- i:
				default:
				}
			case <-stop:
			}
		}(i, ch)
	}

	select {
	case i := <-result:
		return i
	case <-timeout:
		return -1
	case <-ctx.Done():
		return -1
	}
}
