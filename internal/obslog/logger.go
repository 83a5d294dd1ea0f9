// Package obslog provides a verbose structured logger for development
// diagnostics in subagentd.
//
// When enabled via environment variables, job admission, spawn failure and
// termination, dispatcher start/stop and failed operations, and CLI
// start/exit are written to a single log file; stream ingest, cancel,
// interrupt and wait-any are not logged. The log includes nanosecond
// timestamps, goroutine IDs, caller locations, and job/operation context.
//
// When disabled (the default), all logging functions are no-ops with zero
// allocation overhead.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/relayforge/subagentd/internal/hexid"
)

var (
	logger   *Logger
	loggerMu sync.RWMutex
)

const (
	// EnvEnabled toggles logger initialization for the serving process.
	EnvEnabled = "SUBAGENTD_DEBUG_ENABLED"
	// EnvLogPath forces logs to an explicit file path.
	EnvLogPath = "SUBAGENTD_DEBUG_LOG_PATH"
)

// Logger writes structured diagnostic lines to a file.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	startedAt time.Time
	pid       int
}

// Init initializes the global logger if SUBAGENTD_DEBUG_ENABLED or
// SUBAGENTD_DEBUG_LOG_PATH is set. Calling Init when logging is off is
// unnecessary — every Log/Logf/LogKV call is a no-op when the logger is
// nil. Returns the log file path, or "" if logging was not enabled.
func Init() (string, error) {
	loggerMu.RLock()
	if logger != nil {
		p := logger.path
		loggerMu.RUnlock()
		return p, nil
	}
	loggerMu.RUnlock()

	if !shouldEnableFromEnv() {
		return "", nil
	}

	path, hid, err := resolveLogPath()
	if err != nil {
		return "", err
	}
	now := time.Now()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("obslog: open log %s: %w", path, err)
	}

	l := &Logger{file: f, path: path, startedAt: now, pid: os.Getpid()}

	header := fmt.Sprintf(
		"=== subagentd DEBUG LOG ===\nStarted: %s\nPID: %d\nGOMAXPROCS: %d\nLog ID: %s\nFile: %s\n===\n\n",
		now.Format(time.RFC3339Nano), l.pid, runtime.GOMAXPROCS(0), hid, path,
	)
	f.WriteString(header)

	loggerMu.Lock()
	if logger != nil {
		p := logger.path
		loggerMu.Unlock()
		_ = f.Close()
		return p, nil
	}
	logger = l
	loggerMu.Unlock()

	return path, nil
}

// Close flushes and closes the log file. Safe to call when not initialized.
func Close() {
	loggerMu.Lock()
	l := logger
	logger = nil
	loggerMu.Unlock()

	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.startedAt)
	fmt.Fprintf(l.file, "\n=== DEBUG LOG CLOSED === (pid=%d duration=%s)\n", l.pid, elapsed)
	l.file.Close()
}

// Enabled returns true if the logger is active.
func Enabled() bool {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger != nil
}

// Log writes a diagnostic line tagged with a job/stream/operation
// component. No-op when disabled.
func Log(component, msg string) {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		return
	}
	l.write(component, msg)
}

// Logf writes a formatted diagnostic line. No-op when disabled.
func Logf(component, format string, args ...any) {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		return
	}
	l.write(component, fmt.Sprintf(format, args...))
}

// LogKV writes a diagnostic line with key-value context, e.g.
// obslog.LogKV("spawn", "job admitted", "jobId", id, "sandbox", sandbox).
func LogKV(component, msg string, kvs ...any) {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		return
	}

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kvs); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kvs[i], kvs[i+1])
	}
	l.write(component, b.String())
}

func (l *Logger) write(component, msg string) {
	now := time.Now()
	elapsed := now.Sub(l.startedAt)
	gid := goroutineID()

	_, file, line, ok := runtime.Caller(2)
	caller := "??:0"
	if ok {
		if idx := strings.LastIndex(file, "/internal/"); idx >= 0 {
			file = file[idx+1:]
		} else if idx := strings.LastIndex(file, "/cmd/"); idx >= 0 {
			file = file[idx+1:]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	logLine := fmt.Sprintf("%s +%12s [P%-6d] [G%-6d] [%-16s] %-40s | %s\n",
		now.Format("15:04:05.000000000"),
		elapsed.Truncate(time.Microsecond),
		l.pid, gid, component, caller, msg,
	)

	l.mu.Lock()
	l.file.WriteString(logLine)
	l.mu.Unlock()
}

func shouldEnableFromEnv() bool {
	path := strings.TrimSpace(os.Getenv(EnvLogPath))
	toggle := strings.TrimSpace(strings.ToLower(os.Getenv(EnvEnabled)))
	switch toggle {
	case "":
		return path != ""
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return path != ""
	}
}

func resolveLogPath() (string, string, error) {
	if explicit := strings.TrimSpace(os.Getenv(EnvLogPath)); explicit != "" {
		dir := filepath.Dir(explicit)
		if dir != "." && dir != string(filepath.Separator) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", "", fmt.Errorf("obslog: create dir %s: %w", dir, err)
			}
		}
		return explicit, "", nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("obslog: user home dir: %w", err)
	}
	dir := filepath.Join(home, ".subagentd", "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("obslog: create dir %s: %w", dir, err)
	}

	hid := hexid.New()
	filename := fmt.Sprintf("%s_%s.log", time.Now().Format("20060102T150405"), hid)
	return filepath.Join(dir, filename), hid, nil
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := string(buf[:n])
	if !strings.HasPrefix(s, "goroutine ") {
		return 0
	}
	s = s[len("goroutine "):]
	var id int64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
