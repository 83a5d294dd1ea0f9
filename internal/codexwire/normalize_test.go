package codexwire

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return v
}

func TestNormalize_NotAnObject(t *testing.T) {
	if _, ok := Normalize(decode(t, `"just a string"`), "t0"); ok {
		t.Fatal("expected ok=false for non-object input")
	}
	if _, ok := Normalize(decode(t, `42`), "t0"); ok {
		t.Fatal("expected ok=false for non-object input")
	}
}

func TestNormalize_MissingType(t *testing.T) {
	if _, ok := Normalize(decode(t, `{"thread_id":"abc"}`), "t0"); ok {
		t.Fatal("expected ok=false when type is absent")
	}
}

func TestNormalize_ThreadStarted(t *testing.T) {
	ev, ok := Normalize(decode(t, `{"type":"thread.started","thread_id":"th-1"}`), "t0")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if ev.Type != EventProgress {
		t.Fatalf("want progress, got %s", ev.Type)
	}
	content := ev.Content.(map[string]any)
	if content["threadId"] != "th-1" {
		t.Fatalf("unexpected content: %v", content)
	}
}

func TestNormalize_TurnLifecycle(t *testing.T) {
	started, _ := Normalize(decode(t, `{"type":"turn.started"}`), "t0")
	if started.Type != EventProgress {
		t.Fatalf("turn.started want progress, got %s", started.Type)
	}

	completed, _ := Normalize(decode(t, `{"type":"turn.completed","usage":{"input_tokens":10}}`), "t0")
	if completed.Type != EventProgress {
		t.Fatalf("turn.completed want progress, got %s", completed.Type)
	}
	if completed.Content.(map[string]any)["usage"] == nil {
		t.Fatal("expected usage to be carried through")
	}

	failed, _ := Normalize(decode(t, `{"type":"turn.failed","error":{"message":"boom"}}`), "t0")
	if failed.Type != EventError {
		t.Fatalf("turn.failed want error, got %s", failed.Type)
	}
}

func TestNormalize_TopLevelError(t *testing.T) {
	ev, ok := Normalize(decode(t, `{"type":"error","message":"bad things","code":"E1"}`), "t0")
	if !ok || ev.Type != EventError {
		t.Fatalf("want error event, got %v ok=%v", ev, ok)
	}
	content := ev.Content.(map[string]any)
	if content["message"] != "bad things" || content["code"] != "E1" {
		t.Fatalf("expected whole object carried through, got %v", content)
	}
}

func TestNormalize_UnknownTopLevelType(t *testing.T) {
	ev, ok := Normalize(decode(t, `{"type":"some.future.event","foo":"bar"}`), "t0")
	if !ok || ev.Type != EventProgress {
		t.Fatalf("want progress fallback, got %v ok=%v", ev, ok)
	}
	if ev.Content.(map[string]any)["foo"] != "bar" {
		t.Fatal("expected whole event preserved as content")
	}
}

func TestNormalize_AgentMessage(t *testing.T) {
	ev, _ := Normalize(decode(t, `{"type":"item.completed","item":{"id":"i1","type":"agent_message","text":"hi"}}`), "t0")
	if ev.Type != EventMessage {
		t.Fatalf("want message, got %s", ev.Type)
	}
	content := ev.Content.(map[string]any)
	if content["text"] != "hi" || content["itemId"] != "i1" {
		t.Fatalf("unexpected content: %v", content)
	}
}

func TestNormalize_Reasoning(t *testing.T) {
	ev, _ := Normalize(decode(t, `{"type":"item.updated","item":{"id":"i2","type":"reasoning","text":"thinking"}}`), "t0")
	if ev.Type != EventProgress {
		t.Fatalf("want progress, got %s", ev.Type)
	}
}

func TestNormalize_CommandExecutionToolCallVsResult(t *testing.T) {
	started, _ := Normalize(decode(t, `{"type":"item.started","item":{"id":"i3","type":"command_execution","command":"ls","status":"in_progress"}}`), "t0")
	if started.Type != EventToolCall {
		t.Fatalf("item.started want tool_call, got %s", started.Type)
	}

	updated, _ := Normalize(decode(t, `{"type":"item.updated","item":{"id":"i3","type":"command_execution","command":"ls","status":"in_progress"}}`), "t0")
	if updated.Type != EventToolCall {
		t.Fatalf("item.updated want tool_call, got %s", updated.Type)
	}

	completed, _ := Normalize(decode(t, `{"type":"item.completed","item":{"id":"i3","type":"command_execution","command":"ls","status":"completed","exit_code":0}}`), "t0")
	if completed.Type != EventToolResult {
		t.Fatalf("item.completed want tool_result, got %s", completed.Type)
	}
	if completed.Content.(map[string]any)["exitCode"].(float64) != 0 {
		t.Fatalf("expected exit code preserved, got %v", completed.Content)
	}
}

func TestNormalize_FileChange(t *testing.T) {
	ev, _ := Normalize(decode(t, `{"type":"item.completed","item":{"id":"i4","type":"file_change","status":"completed","changes":[{"path":"a.go"}]}}`), "t0")
	if ev.Type != EventToolResult {
		t.Fatalf("want tool_result, got %s", ev.Type)
	}
}

func TestNormalize_McpToolCall(t *testing.T) {
	started, _ := Normalize(decode(t, `{"type":"item.started","item":{"id":"i5","type":"mcp_tool_call","server":"fs","tool":"read","arguments":{"path":"a"}}}`), "t0")
	if started.Type != EventToolCall {
		t.Fatalf("want tool_call, got %s", started.Type)
	}

	completed, _ := Normalize(decode(t, `{"type":"item.completed","item":{"id":"i5","type":"mcp_tool_call","server":"fs","tool":"read","result":{"ok":true}}}`), "t0")
	if completed.Type != EventToolResult {
		t.Fatalf("want tool_result, got %s", completed.Type)
	}
}

func TestNormalize_WebSearch(t *testing.T) {
	ev, _ := Normalize(decode(t, `{"type":"item.completed","item":{"id":"i6","type":"web_search","query":"golang"}}`), "t0")
	if ev.Type != EventToolResult {
		t.Fatalf("want tool_result, got %s", ev.Type)
	}
	if ev.Content.(map[string]any)["query"] != "golang" {
		t.Fatal("expected query preserved")
	}
}

func TestNormalize_TodoList(t *testing.T) {
	ev, _ := Normalize(decode(t, `{"type":"item.completed","item":{"id":"i7","type":"todo_list","items":[{"text":"a","done":false}]}}`), "t0")
	if ev.Type != EventProgress {
		t.Fatalf("want progress, got %s", ev.Type)
	}
}

func TestNormalize_ErrorItem(t *testing.T) {
	ev, _ := Normalize(decode(t, `{"type":"item.completed","item":{"id":"i8","type":"error","error":{"message":"failed badly"}}}`), "t0")
	if ev.Type != EventError {
		t.Fatalf("want error, got %s", ev.Type)
	}
	if ev.Content.(map[string]any)["message"] != "failed badly" {
		t.Fatal("expected error message preserved")
	}
}

func TestNormalize_UnknownItemType(t *testing.T) {
	ev, _ := Normalize(decode(t, `{"type":"item.completed","item":{"id":"i9","type":"some_future_item"}}`), "t0")
	if ev.Type != EventProgress {
		t.Fatalf("want progress fallback, got %s", ev.Type)
	}
}

func TestNormalize_TimestampIsCallerSupplied(t *testing.T) {
	ev, _ := Normalize(decode(t, `{"type":"turn.started"}`), "2026-08-03T00:00:00Z")
	if ev.Timestamp != "2026-08-03T00:00:00Z" {
		t.Fatalf("expected caller-supplied timestamp, got %q", ev.Timestamp)
	}
}
