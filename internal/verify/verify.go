package verify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/SaintPepsi/pai-tools-sub001/internal/agent"
	"github.com/SaintPepsi/pai-tools-sub001/internal/config"
	"github.com/SaintPepsi/pai-tools-sub001/internal/runlog"
)

// Loop runs the configured verification commands inside a worktree and,
// on failure, drives bounded fix attempts through the agent.
type Loop struct {
	Runner agent.Runner
	Config config.Config
	Log    *runlog.Logger
}

// maxOutputInError caps how much command output is embedded in the terminal
// failure message; the full output is always in the run log.
const maxOutputInError = 2000

// Run executes every verification command in order inside dir. The first
// failing command triggers a fix invocation and, while the retry budget
// lasts, a re-run of ALL commands from the start — a fix may break a check
// that passed earlier, so resuming mid-list would hide regressions. When
// the budget is exhausted with a command still failing, the returned error
// names the failing step and its output.
func (l *Loop) Run(ctx context.Context, issueNumber int, dir string) error {
	if len(l.Config.VerifyCommands) == 0 {
		return nil
	}

	retries := l.Config.VerifyRetries
	for {
		step, output, err := l.runAll(ctx, issueNumber, dir)
		if err == nil {
			return nil
		}

		l.Log.Event("verify_failed", map[string]any{
			"issue": issueNumber, "step": step, "retries_left": retries,
		})
		l.Log.Output(fmt.Sprintf("verify %q #%d", step, issueNumber), output)

		if retries == 0 {
			return fmt.Errorf("verification step %q failed after exhausting fix attempts: %s", step, truncate(output))
		}
		retries--

		fixOut := agent.FixVerificationFailure(ctx, l.Runner, issueNumber, step, output, l.Config, dir)
		l.Log.Output(fmt.Sprintf("agent fix #%d", issueNumber), fixOut)
	}
}

// runAll runs every command once, returning the first failing step and its
// output, or ("", "", nil) when all pass.
func (l *Loop) runAll(ctx context.Context, issueNumber int, dir string) (string, string, error) {
	for _, command := range l.Config.VerifyCommands {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			return command, string(out), fmt.Errorf("%s: %w", command, err)
		}
		l.Log.Printf("verify #%d: %q passed", issueNumber, command)
	}
	return "", "", nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutputInError {
		return s[:maxOutputInError] + "…"
	}
	return s
}
