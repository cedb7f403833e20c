package runlog

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestOpenPrintfClose(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	l.Printf("starting run with %d issues", 3)
	l.Event("issue_transition", map[string]any{"issue": 7, "status": "in_progress"})
	l.Output("agent implement #7", "did some work\n")

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "starting run with 3 issues") {
		t.Error("expected formatted line in log")
	}
	if !strings.Contains(content, "did some work") {
		t.Error("expected agent output in log")
	}

	// The event line must be valid standalone JSON.
	var eventLine string
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, `"issue_transition"`) {
			eventLine = line
			break
		}
	}
	if eventLine == "" {
		t.Fatal("expected structured event line")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(eventLine), &rec); err != nil {
		t.Fatalf("event line is not JSON: %v", err)
	}
	if rec["event"] != "issue_transition" || rec["status"] != "in_progress" {
		t.Errorf("unexpected event record: %v", rec)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Printf("nothing")
	l.Event("nothing", nil)
	l.Output("nothing", "x")
	if l.Path() != "" {
		t.Error("expected empty path for nil logger")
	}
	if err := l.Close(); err != nil {
		t.Errorf("expected nil close error, got %v", err)
	}
}
