package ui

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/tidwall/gjson"
)

// StreamFormatter renders claude stream-json events as compact progress
// lines. It implements io.Writer so it can sit directly on the agent
// process's stdout pipe; the shared mutex keeps lines from interleaving
// with other terminal output.
type StreamFormatter struct {
	prefix string
	dest   io.Writer
	mu     *sync.Mutex
	buf    bytes.Buffer
}

// NewStreamFormatter creates a formatter whose lines carry the issue's
// colored [#N] prefix.
func NewStreamFormatter(issue int, dest io.Writer, mu *sync.Mutex) *StreamFormatter {
	return &StreamFormatter{
		prefix: IssuePrefix(issue) + " ",
		dest:   dest,
		mu:     mu,
	}
}

func (sf *StreamFormatter) Write(p []byte) (int, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	sf.buf.Write(p)
	for {
		raw := sf.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			return len(p), nil
		}
		event := string(raw[:idx])
		sf.buf.Next(idx + 1)
		sf.render(event)
	}
}

// render handles one newline-delimited event. Only assistant messages are
// shown; tool results, system events, and thinking blocks are noise at this
// level of detail.
func (sf *StreamFormatter) render(event string) {
	if !gjson.Valid(event) || gjson.Get(event, "type").String() != "assistant" {
		return
	}
	gjson.Get(event, "message.content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			if text := block.Get("text").String(); text != "" {
				sf.emit("💬 " + text)
			}
		case "tool_use":
			sf.emit(Dim(describeTool(block.Get("name").String(), block.Get("input"))))
		}
		return true
	})
}

// describeTool compresses a tool_use block into one line. Unknown tools
// fall back to their bare name so new tool types never break the stream.
func describeTool(name string, input gjson.Result) string {
	switch name {
	case "Bash":
		if desc := input.Get("description").String(); desc != "" {
			return "🔧 " + desc
		}
		return "🔧 $ " + clip(input.Get("command").String(), 80)
	case "Read":
		return "📖 Reading " + input.Get("file_path").String()
	case "Write", "Edit":
		return "✏️  " + name + " " + input.Get("file_path").String()
	case "Glob", "Grep":
		return "🔍 Searching " + input.Get("pattern").String()
	case "Task":
		if desc := input.Get("description").String(); desc != "" {
			return "🤖 Subagent: " + desc
		}
		return "🤖 Subagent"
	default:
		return "🔧 " + name
	}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func (sf *StreamFormatter) emit(text string) {
	fmt.Fprintf(sf.dest, "  %s%s\n", sf.prefix, text)
}
