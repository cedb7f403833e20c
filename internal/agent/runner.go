package agent

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/SaintPepsi/pai-tools-sub001/internal/ui"
)

// Request describes one coding-agent invocation.
type Request struct {
	Prompt         string
	Model          string
	Dir            string
	PermissionMode string // e.g. "acceptEdits"; empty for read-only work
	AllowedTools   string // comma-separated allow-list, only with PermissionMode
	Stream         bool   // request stream-json output for live formatting
	Issue          int    // for output prefixing
}

// Result is the normalized outcome of an agent process: OK reflects the
// exit status, Output is captured combined output text.
type Result struct {
	OK     bool
	Output string
}

// Runner abstracts the coding-agent process so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, req Request) Result
}

// CLIRunner invokes the claude binary as a subprocess.
type CLIRunner struct {
	Bin   string
	Quiet bool // suppress live stream formatting to stderr
	mu    sync.Mutex
}

// NewCLIRunner creates a CLIRunner for the given claude binary path.
func NewCLIRunner(bin string) *CLIRunner {
	if bin == "" {
		bin = "claude"
	}
	return &CLIRunner{Bin: bin}
}

// Run executes the agent and waits for completion. Output is always
// captured; when not quiet it is additionally rendered live through the
// stream-json formatter.
func (r *CLIRunner) Run(ctx context.Context, req Request) Result {
	args := []string{"-p", req.Prompt}
	if req.Stream {
		args = append(args, "--output-format", "stream-json", "--verbose")
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", req.PermissionMode)
		if req.AllowedTools != "" {
			args = append(args, "--allowedTools", req.AllowedTools)
		}
	}

	cmd := exec.CommandContext(ctx, r.Bin, args...)
	cmd.Dir = req.Dir

	var buf bytes.Buffer
	if r.Quiet || !req.Stream {
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	} else {
		sf := ui.NewStreamFormatter(req.Issue, os.Stderr, &r.mu)
		mw := io.MultiWriter(&buf, sf)
		cmd.Stdout = mw
		cmd.Stderr = mw
	}

	err := cmd.Run()
	return Result{OK: err == nil, Output: buf.String()}
}
