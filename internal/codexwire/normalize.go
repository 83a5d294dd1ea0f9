package codexwire

// Normalize classifies one already-JSON-decoded stdout line into zero or one
// NormalizedEvent. It returns ok=false only when v is not a JSON object or
// lacks a string "type" field — every other shape, including unknown event
// types, produces an event. Normalize is pure: it never touches process or
// job state, and the timestamp is supplied by the caller (assigned at
// ingest time, not at the time the child claims the event happened).
func Normalize(v any, timestamp string) (NormalizedEvent, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return NormalizedEvent{}, false
	}
	typ, ok := obj["type"].(string)
	if !ok {
		return NormalizedEvent{}, false
	}

	switch typ {
	case "thread.started":
		return event(EventProgress, map[string]any{"threadId": obj["thread_id"]}, timestamp), true
	case "turn.started":
		return event(EventProgress, map[string]any{"kind": "turn.started"}, timestamp), true
	case "turn.completed":
		return event(EventProgress, map[string]any{"kind": "turn.completed", "usage": obj["usage"]}, timestamp), true
	case "turn.failed":
		return event(EventError, map[string]any{"kind": "turn.failed", "error": obj["error"]}, timestamp), true
	case "error":
		return event(EventError, obj, timestamp), true
	case "item.started", "item.updated", "item.completed":
		return normalizeItemEvent(typ, obj, timestamp), true
	default:
		return event(EventProgress, obj, timestamp), true
	}
}

func normalizeItemEvent(wrapperType string, obj map[string]any, timestamp string) NormalizedEvent {
	item, _ := obj["item"].(map[string]any)
	itemType, _ := item["type"].(string)
	itemID := item["id"]
	isCompleted := wrapperType == "item.completed"

	switch itemType {
	case "":
		return event(EventProgress, map[string]any{"kind": wrapperType, "item": obj["item"]}, timestamp)
	case "agent_message":
		return event(EventMessage, map[string]any{
			"kind": wrapperType, "itemType": itemType, "itemId": itemID, "text": item["text"],
		}, timestamp)
	case "reasoning":
		return event(EventProgress, map[string]any{
			"kind": wrapperType, "itemType": itemType, "itemId": itemID, "text": item["text"],
		}, timestamp)
	case "command_execution":
		content := map[string]any{"command": item["command"], "status": item["status"], "exitCode": item["exit_code"]}
		return toolEvent(isCompleted, content, timestamp)
	case "file_change":
		content := map[string]any{"changes": item["changes"], "status": item["status"]}
		return toolEvent(isCompleted, content, timestamp)
	case "mcp_tool_call":
		content := map[string]any{
			"server": item["server"], "tool": item["tool"], "status": item["status"],
			"arguments": item["arguments"], "result": item["result"], "error": item["error"],
		}
		return toolEvent(isCompleted, content, timestamp)
	case "web_search":
		return toolEvent(isCompleted, map[string]any{"query": item["query"]}, timestamp)
	case "todo_list":
		return event(EventProgress, map[string]any{"items": item["items"]}, timestamp)
	case "error":
		msg := ""
		if errObj, ok := item["error"].(map[string]any); ok {
			if m, ok := errObj["message"].(string); ok {
				msg = m
			}
		}
		return event(EventError, map[string]any{"message": msg}, timestamp)
	default:
		return event(EventProgress, map[string]any{"kind": wrapperType, "item": obj["item"]}, timestamp)
	}
}

// toolEvent applies the sole tie-break the normalizer consults: item.completed
// means the tool call has a result, anything else (started/updated) is still
// in flight.
func toolEvent(completed bool, content map[string]any, timestamp string) NormalizedEvent {
	if completed {
		return event(EventToolResult, content, timestamp)
	}
	return event(EventToolCall, content, timestamp)
}

func event(t EventType, content any, timestamp string) NormalizedEvent {
	return NormalizedEvent{Type: t, Content: content, Timestamp: timestamp}
}
