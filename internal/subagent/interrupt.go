package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relayforge/subagentd/internal/codexwire"
)

const (
	defaultInterruptWaitMs  = 250
	maxInterruptWaitMs      = 60_000
	defaultInterruptTailMax = 25
	maxInterruptTailMax     = 25
)

var interruptTailAllow = map[codexwire.EventType]bool{
	codexwire.EventMessage:  true,
	codexwire.EventError:    true,
	codexwire.EventProgress: true,
}

// InterruptRequest is the caller-supplied input to Interrupt.
type InterruptRequest struct {
	JobID            string
	NewPrompt        string
	WaitMs           *int
	IncludeEventTail *bool
	TailMaxEvents    *int
	Overrides        *SpawnRequest
}

const respawnReminder = "Before editing, re-read any files you plan to change: they may have been modified since your prior context was captured."

// Interrupt composes cancel + bounded wait + respawn-with-injected-tail,
// refusing respawn if the job completed naturally while waiting. It is a
// thin policy layer on top of Manager; it holds no state of its own.
func (m *Manager) Interrupt(ctx context.Context, req InterruptRequest) (InterruptOutcome, error) {
	waitMs := defaultInterruptWaitMs
	if req.WaitMs != nil {
		waitMs = clamp(*req.WaitMs, 0, maxInterruptWaitMs)
	}
	includeTail := true
	if req.IncludeEventTail != nil {
		includeTail = *req.IncludeEventTail
	}
	tailMax := defaultInterruptTailMax
	if req.TailMaxEvents != nil {
		tailMax = clamp(*req.TailMaxEvents, 0, maxInterruptTailMax)
	}

	status, err := m.Status(req.JobID)
	if err != nil {
		return InterruptOutcome{}, err
	}
	if status.Status != StatusRunning {
		return InterruptOutcome{
			PreviousJobID:  req.JobID,
			PreviousStatus: status.Status,
			Respawned:      false,
			Reason:         fmt.Sprintf("job is not running (status=%s)", status.Status),
		}, nil
	}

	metadata, err := m.GetSpawnMetadata(req.JobID)
	if err != nil {
		return InterruptOutcome{}, err
	}

	var tail []codexwire.NormalizedEvent
	if includeTail {
		tail, err = m.GetEventTail(req.JobID, tailMax, []codexwire.EventType{
			codexwire.EventMessage, codexwire.EventError, codexwire.EventProgress,
		})
		if err != nil {
			return InterruptOutcome{}, err
		}
	}

	cancelOut, err := m.Cancel(req.JobID, false)
	if err != nil {
		return InterruptOutcome{}, err
	}
	if !cancelOut.Success {
		status, err = m.Status(req.JobID)
		if err != nil {
			return InterruptOutcome{}, err
		}
		return InterruptOutcome{
			PreviousJobID:  req.JobID,
			PreviousStatus: status.Status,
			Respawned:      false,
			Reason:         fmt.Sprintf("job is not running (status=%s)", status.Status),
		}, nil
	}

	if waitMs > 0 {
		if _, err := m.WaitForExit(ctx, req.JobID, waitMs); err != nil {
			return InterruptOutcome{}, err
		}
	}

	status, err = m.Status(req.JobID)
	if err != nil {
		return InterruptOutcome{}, err
	}
	if status.Status == StatusDone || status.Status == StatusFailed {
		return InterruptOutcome{
			PreviousJobID:  req.JobID,
			PreviousStatus: status.Status,
			Respawned:      false,
			Reason:         "job completed naturally while waiting for cancellation",
		}, nil
	}

	newEffective := overlayOverrides(metadata.Effective, req.Overrides)
	prompt := buildRespawnPrompt(req.JobID, tail, req.NewPrompt)

	newOut, err := m.SpawnFromEffective(ctx, prompt, newEffective, metadata.Label)
	if err != nil {
		return InterruptOutcome{}, err
	}

	return InterruptOutcome{
		PreviousJobID:  req.JobID,
		PreviousStatus: status.Status,
		Respawned:      true,
		NewJobID:       newOut.JobID,
	}, nil
}

// buildRespawnPrompt assembles the respawn prompt per §4.5 step 8: a
// header naming the interrupted job, the formatted event tail (one line
// per event), the updated-instructions marker, the new prompt, and a fixed
// reminder to re-read files before editing.
func buildRespawnPrompt(previousJobID string, tail []codexwire.NormalizedEvent, newPrompt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prior Context (from interrupted job %s)\n", previousJobID)
	if len(tail) == 0 {
		b.WriteString("(no captured events)\n")
	} else {
		for _, ev := range tail {
			fmt.Fprintf(&b, "[%s] %s: %s\n", ev.Timestamp, ev.Type, summarizeContent(ev.Content))
		}
	}
	b.WriteString("\nUpdated Instructions\n")
	b.WriteString(newPrompt)
	b.WriteString("\n\n")
	b.WriteString(respawnReminder)
	return b.String()
}

// summarizeContent renders an event's content for the respawn prompt. A
// plain string is used verbatim, then a map's non-empty "text" field;
// anything else falls back to a stringified JSON encoding, per spec.md §9's
// accepted implementation-defined choice.
func summarizeContent(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	if m, ok := content.(map[string]any); ok {
		if text, ok := m["text"].(string); ok && text != "" {
			return text
		}
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprintf("%v", content)
	}
	return string(encoded)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
