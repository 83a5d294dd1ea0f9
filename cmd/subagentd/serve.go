package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayforge/subagentd/internal/codexwire"
	"github.com/relayforge/subagentd/internal/obslog"
	"github.com/relayforge/subagentd/internal/subagent"
	"github.com/relayforge/subagentd/pkg/toolcontract"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the line-delimited stdio tool dispatcher",
	Long: `Reads one JSON request object per line from stdin and writes one JSON
response object per line to stdout. This is a minimal, pragmatic envelope
for the eight subagent job manager operations, not a general JSON-RPC 2.0
stack: argument validation and the surrounding tool-call protocol are the
outer coordinator's responsibility.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// request is the dispatcher's inbound envelope: an operation name plus a
// raw argument object deferred to the operation-specific args type.
type request struct {
	ID   string          `json:"id,omitempty"`
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// response is the dispatcher's outbound envelope. Exactly one of Result or
// Error is populated.
type response struct {
	ID     string `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) error {
	manager := subagent.NewManager()
	obslog.Log("serve", "dispatcher starting")
	defer obslog.Log("serve", "dispatcher stopped")

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	ctx := cmd.Context()
	for in.Scan() {
		line := in.Text()
		if line == "" {
			continue
		}
		resp := handleLine(ctx, manager, line)
		encoded, err := json.Marshal(resp)
		if err != nil {
			encoded, _ = json.Marshal(response{ID: resp.ID, Error: fmt.Sprintf("encoding response: %v", err)})
		}
		out.Write(encoded)
		out.WriteByte('\n')
		out.Flush()
	}
	if err := in.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading requests: %w", err)
	}
	return nil
}

func handleLine(ctx context.Context, manager *subagent.Manager, line string) response {
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return response{Error: fmt.Sprintf("malformed request: %v", err)}
	}

	result, err := dispatch(ctx, manager, req.Op, req.Args)
	if err != nil {
		obslog.LogKV("serve", "operation failed", "op", req.Op, "error", err)
		return response{ID: req.ID, Error: err.Error()}
	}
	return response{ID: req.ID, Result: result}
}

func dispatch(ctx context.Context, m *subagent.Manager, op string, raw json.RawMessage) (any, error) {
	switch op {
	case "spawn":
		var args toolcontract.SpawnArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed spawn args: %w", err)
		}
		return dispatchSpawn(ctx, m, args)

	case "spawn-group":
		var args toolcontract.SpawnGroupArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed spawn-group args: %w", err)
		}
		return dispatchSpawnGroup(ctx, m, args), nil

	case "status":
		var args toolcontract.StatusArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed status args: %w", err)
		}
		snap, err := m.Status(args.JobID)
		if err != nil {
			return nil, err
		}
		return statusResultFrom(snap), nil

	case "result":
		var args toolcontract.ResultArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed result args: %w", err)
		}
		return dispatchResult(m, args)

	case "events":
		var args toolcontract.EventsArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed events args: %w", err)
		}
		events, nextCursor, done, err := m.GetEvents(args.JobID, args.Cursor, args.MaxEvents)
		if err != nil {
			return nil, err
		}
		return toolcontract.EventsResult{
			Events:     envelopeAll(events),
			NextCursor: nextCursor,
			Done:       done,
		}, nil

	case "cancel":
		var args toolcontract.CancelArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed cancel args: %w", err)
		}
		out, err := m.Cancel(args.JobID, args.Force)
		if err != nil {
			return nil, err
		}
		return toolcontract.CancelResult{Success: out.Success}, nil

	case "wait-any":
		var args toolcontract.WaitAnyArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed wait-any args: %w", err)
		}
		out, err := m.WaitAny(ctx, args.JobIDs, args.TimeoutMs)
		if err != nil {
			return nil, err
		}
		return toolcontract.WaitAnyResult{
			CompletedJobID: out.CompletedJobID,
			TimedOut:       out.TimedOut,
			MissingJobIDs:  out.MissingJobIDs,
		}, nil

	case "interrupt":
		var args toolcontract.InterruptArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed interrupt args: %w", err)
		}
		return dispatchInterrupt(ctx, m, args)

	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

func dispatchSpawn(ctx context.Context, m *subagent.Manager, args toolcontract.SpawnArgs) (toolcontract.SpawnResult, error) {
	out, err := m.Spawn(ctx, spawnRequestFrom(args))
	if err != nil {
		return toolcontract.SpawnResult{}, err
	}
	return toolcontract.SpawnResult{
		JobID:     out.JobID,
		Status:    string(out.Status),
		StartedAt: out.StartedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// dispatchSpawnGroup fans a batch of spawn requests out over Manager.Spawn,
// applying defaults per job and capturing admission failures inline rather
// than aborting the batch, per spec.md §6's spawn-group contract.
func dispatchSpawnGroup(ctx context.Context, m *subagent.Manager, args toolcontract.SpawnGroupArgs) toolcontract.SpawnGroupResult {
	handshakeMax := args.HandshakeMaxEvents
	if handshakeMax <= 0 || handshakeMax > 25 {
		handshakeMax = 25
	}

	results := make([]toolcontract.SpawnGroupResultItem, 0, len(args.Jobs))
	for _, jobArgs := range args.Jobs {
		merged := mergeSpawnArgs(args.Defaults, jobArgs)

		out, err := m.Spawn(ctx, spawnRequestFrom(merged))
		if err != nil {
			results = append(results, toolcontract.SpawnGroupResultItem{
				Label: merged.Label,
				Error: err.Error(),
			})
			continue
		}

		item := toolcontract.SpawnGroupResultItem{
			JobID:     out.JobID,
			Status:    string(out.Status),
			StartedAt: out.StartedAt.UTC().Format(time.RFC3339Nano),
			Label:     merged.Label,
		}
		if args.IncludeHandshake {
			tail, err := m.GetEventTail(out.JobID, handshakeMax, nil)
			if err == nil {
				item.Handshake = envelopeAll(tail)
			}
		}
		results = append(results, item)
	}
	return toolcontract.SpawnGroupResult{Results: results}
}

// mergeSpawnArgs overlays a per-job spawn request onto group-wide defaults:
// any field the job left at its zero value falls back to the default.
func mergeSpawnArgs(defaults *toolcontract.SpawnArgs, job toolcontract.SpawnArgs) toolcontract.SpawnArgs {
	if defaults == nil {
		return job
	}
	merged := *defaults
	if job.Prompt != "" {
		merged.Prompt = job.Prompt
	}
	if job.Model != "" {
		merged.Model = job.Model
	}
	if job.ReasoningEffort != "" {
		merged.ReasoningEffort = job.ReasoningEffort
	}
	if job.Sandbox != "" {
		merged.Sandbox = job.Sandbox
	}
	if job.FullAuto {
		merged.FullAuto = job.FullAuto
	}
	if job.WorkingDirectory != "" {
		merged.WorkingDirectory = job.WorkingDirectory
	}
	if job.Label != "" {
		merged.Label = job.Label
	}
	return merged
}

func dispatchResult(m *subagent.Manager, args toolcontract.ResultArgs) (any, error) {
	snap, err := m.Result(args.JobID)
	if err != nil {
		return nil, err
	}
	finalMessage := resultFallbackText(snap)

	if args.View == "full" {
		return toolcontract.ResultResult{
			StatusResult: statusResultFrom(snap.StatusSnapshot),
			FinalMessage: finalMessage,
			StdoutTail:   snap.StdoutTail,
			StderrTail:   snap.StderrTail,
		}, nil
	}
	return finalMessage, nil
}

// resultFallbackText implements spec.md §6's normative fallback: when the
// job never produced an agent_message, synthesize a summary from terminal
// status. Running jobs with no message yet return "".
func resultFallbackText(snap subagent.ResultSnapshot) string {
	if snap.LastAgentMessage != "" {
		return snap.LastAgentMessage
	}
	switch snap.Status {
	case subagent.StatusCanceled:
		return fmt.Sprintf("Job %s was canceled before producing a final message.", snap.JobID)
	case subagent.StatusFailed:
		exit := "unknown"
		if snap.ExitCode != nil {
			exit = fmt.Sprintf("%d", *snap.ExitCode)
		}
		return fmt.Sprintf("Job %s failed (exit code %s) without producing a final message.", snap.JobID, exit)
	case subagent.StatusDone:
		return fmt.Sprintf("Job %s completed (exit code 0) without producing a final message.", snap.JobID)
	default:
		return ""
	}
}

func dispatchInterrupt(ctx context.Context, m *subagent.Manager, args toolcontract.InterruptArgs) (toolcontract.InterruptResult, error) {
	req := subagent.InterruptRequest{
		JobID:            args.JobID,
		NewPrompt:        args.NewPrompt,
		WaitMs:           args.WaitMs,
		IncludeEventTail: args.IncludeEventTail,
		TailMaxEvents:    args.TailMaxEvents,
	}
	if args.Overrides != nil {
		overrides := spawnRequestFrom(toolcontract.SpawnArgs{
			Model:            args.Overrides.Model,
			ReasoningEffort:  args.Overrides.ReasoningEffort,
			Sandbox:          args.Overrides.Sandbox,
			FullAuto:         args.Overrides.FullAuto,
			WorkingDirectory: args.Overrides.WorkingDirectory,
		})
		req.Overrides = &overrides
	}

	out, err := m.Interrupt(ctx, req)
	if err != nil {
		return toolcontract.InterruptResult{}, err
	}
	return toolcontract.InterruptResult{
		PreviousJobID:  out.PreviousJobID,
		PreviousStatus: string(out.PreviousStatus),
		Respawned:      out.Respawned,
		NewJobID:       out.NewJobID,
		Reason:         out.Reason,
	}, nil
}

func spawnRequestFrom(args toolcontract.SpawnArgs) subagent.SpawnRequest {
	return subagent.SpawnRequest{
		Prompt:           args.Prompt,
		Model:            args.Model,
		ReasoningEffort:  subagent.ReasoningEffort(args.ReasoningEffort),
		Sandbox:          subagent.Sandbox(args.Sandbox),
		FullAuto:         args.FullAuto,
		WorkingDirectory: args.WorkingDirectory,
		Label:            args.Label,
	}
}

func statusResultFrom(snap subagent.StatusSnapshot) toolcontract.StatusResult {
	result := toolcontract.StatusResult{
		JobID:     snap.JobID,
		Status:    string(snap.Status),
		StartedAt: snap.StartedAt.UTC().Format(time.RFC3339Nano),
		ExitCode:  snap.ExitCode,
	}
	if snap.FinishedAt != nil {
		result.FinishedAt = snap.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	return result
}

func envelopeAll(events []codexwire.NormalizedEvent) []toolcontract.EventEnvelope {
	out := make([]toolcontract.EventEnvelope, len(events))
	for i, ev := range events {
		out[i] = toolcontract.EventEnvelope{
			Type:      string(ev.Type),
			Content:   ev.Content,
			Timestamp: ev.Timestamp,
		}
	}
	return out
}
