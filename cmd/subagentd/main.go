// Command subagentd hosts the asynchronous subagent job manager described
// in spec.md: it spawns `codex exec --json` child processes, normalizes
// their event stream, and exposes spawn/status/result/events/cancel/
// wait-any/interrupt over line-delimited stdio to an outer coordinator.
package main

func main() {
	Execute()
}
