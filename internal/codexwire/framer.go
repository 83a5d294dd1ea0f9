package codexwire

import "strings"

// LineFramer turns a sequence of arbitrarily-chunked byte reads from a
// child's stdout/stderr pipe into complete lines. Unlike a bufio.Scanner
// wrapped around the pipe directly, it holds its partial-line remainder as
// an explicit value that persists between calls to Feed and can be read
// back through Remainder.
type LineFramer struct {
	remainder strings.Builder
}

// Feed appends chunk to the framer's buffered remainder, splits it on '\n',
// and returns every complete line found, trimmed of a trailing '\r' and
// leading/trailing whitespace. Empty lines are dropped silently. Any text
// after the last '\n' is retained as the new remainder.
func (f *LineFramer) Feed(chunk []byte) []string {
	f.remainder.Write(chunk)
	buffered := f.remainder.String()
	f.remainder.Reset()

	var lines []string
	for {
		idx := strings.IndexByte(buffered, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(buffered[:idx])
		if line != "" {
			lines = append(lines, line)
		}
		buffered = buffered[idx+1:]
	}
	f.remainder.WriteString(buffered)
	return lines
}

// Remainder returns the bytes buffered so far that have not yet formed a
// complete line. The job manager keeps one framer per job's stdout reader;
// stderr is not framed.
func (f *LineFramer) Remainder() string {
	return f.remainder.String()
}

// Flush returns the current remainder as a final line, if non-empty, and
// resets the framer. Callers use this once a child process has exited and
// no further '\n' will ever arrive to terminate a trailing partial line.
func (f *LineFramer) Flush() (string, bool) {
	line := strings.TrimSpace(f.remainder.String())
	f.remainder.Reset()
	if line == "" {
		return "", false
	}
	return line, true
}
