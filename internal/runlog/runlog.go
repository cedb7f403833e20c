package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const logsDir = ".pai/orchestrator/logs"

// Logger appends timestamped lines and structured event records to a
// per-run log file so every state transition and captured agent output can
// be inspected after the run. It is opened at run start, passed explicitly
// into the orchestrator and its collaborators, and closed at run end.
type Logger struct {
	file *os.File
	path string
}

// Open creates the log file for a new run under the repository root.
func Open(repoRoot string) (*Logger, error) {
	dir := filepath.Join(repoRoot, logsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("runlog: ensure log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("runlog: open log file: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Path returns the log file location, or "" for a nil logger.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close flushes and releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single timestamped line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintf(l.file, "[%s] %s\n", time.Now().Format(time.RFC3339), line)
}

// Event writes a structured JSON record for a named event, used for state
// transitions and other machine-scannable milestones.
func (l *Logger) Event(name string, fields map[string]any) {
	if l == nil || l.file == nil {
		return
	}
	rec := map[string]any{
		"ts":    time.Now().Format(time.RFC3339),
		"event": name,
	}
	for k, v := range fields {
		rec[k] = v
	}
	data, err := json.Marshal(rec)
	if err != nil {
		l.Printf("event %s: marshal: %v", name, err)
		return
	}
	fmt.Fprintf(l.file, "%s\n", data)
}

// Output records captured agent output verbatim under a labelled header so
// logs remain greppable per issue.
func (l *Logger) Output(label string, output string) {
	if l == nil || l.file == nil {
		return
	}
	l.Printf("--- %s ---", label)
	if output != "" {
		fmt.Fprintln(l.file, strings.TrimRight(output, "\n"))
	}
	l.Printf("--- end %s ---", label)
}
