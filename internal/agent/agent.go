package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SaintPepsi/pai-tools-sub001/internal/config"
	"github.com/SaintPepsi/pai-tools-sub001/internal/tracker"
)

// Assessment is the agent's verdict on whether an issue fits one session.
type Assessment struct {
	ShouldSplit    bool                   `json:"shouldSplit"`
	Reasoning      string                 `json:"reasoning"`
	ProposedSplits []tracker.SubIssueSpec `json:"proposedSplits"`
}

// AssessSize asks the agent whether an issue should be split. The call
// degrades to a safe "do not split" default when the agent fails, emits no
// parseable JSON object, or the object does not unmarshal — assessment
// failure suppresses splitting for this issue but never blocks progress.
func AssessSize(ctx context.Context, r Runner, issue tracker.Issue, cfg config.Config, repoRoot string) (Assessment, string) {
	prompt := renderPrompt(assessPromptTmpl, assessPromptData{
		Number:      issue.Number,
		Title:       issue.Title,
		Body:        issue.Body,
		FileCeiling: sessionFileCeiling,
		LineCeiling: sessionLineCeiling,
	})

	res := r.Run(ctx, Request{
		Prompt: prompt,
		Model:  cfg.AssessModel,
		Dir:    repoRoot,
		Issue:  issue.Number,
	})
	if !res.OK {
		return noSplit("assessment agent exited with non-zero status"), res.Output
	}

	raw := extractJSONObject(res.Output)
	if raw == "" {
		return noSplit("assessment output contained no JSON object"), res.Output
	}

	var a Assessment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return noSplit(fmt.Sprintf("parse assessment JSON: %v", err)), res.Output
	}
	if !a.ShouldSplit {
		a.ProposedSplits = nil
	}
	return a, res.Output
}

func noSplit(diagnostic string) Assessment {
	return Assessment{ShouldSplit: false, Reasoning: diagnostic}
}

// Implement invokes the agent in the issue's worktree with edit permissions
// restricted to the configured tool allow-list. Returns the captured output
// and a non-nil error on non-zero agent exit.
func Implement(ctx context.Context, r Runner, issue tracker.Issue, branch, baseBranch string, cfg config.Config, dir string) (string, error) {
	prompt := renderPrompt(implementPromptTmpl, implementPromptData{
		Number:     issue.Number,
		Title:      issue.Title,
		Body:       issue.Body,
		Branch:     branch,
		BaseBranch: baseBranch,
	})

	res := r.Run(ctx, Request{
		Prompt:         prompt,
		Model:          cfg.ImplementModel,
		Dir:            dir,
		PermissionMode: "acceptEdits",
		AllowedTools:   cfg.AllowedTools,
		Stream:         true,
		Issue:          issue.Number,
	})
	if !res.OK {
		return res.Output, fmt.Errorf("implementation agent exited with non-zero status")
	}
	return res.Output, nil
}

// FixVerificationFailure re-invokes the agent to repair a failing
// verification step. The call is advisory: it does not decide success, the
// caller re-runs verification afterward. Returns the captured output.
func FixVerificationFailure(ctx context.Context, r Runner, issueNumber int, stepName, errorOutput string, cfg config.Config, dir string) string {
	prompt := renderPrompt(fixPromptTmpl, fixPromptData{
		Number:      issueNumber,
		StepName:    stepName,
		ErrorOutput: errorOutput,
		Commands:    cfg.VerifyCommands,
	})

	res := r.Run(ctx, Request{
		Prompt:         prompt,
		Model:          cfg.ImplementModel,
		Dir:            dir,
		PermissionMode: "acceptEdits",
		AllowedTools:   cfg.AllowedTools,
		Stream:         true,
		Issue:          issueNumber,
	})
	return res.Output
}

// extractJSONObject pulls the first balanced top-level JSON object out of
// free-form agent output, or "" when none validates. Agents wrap their
// answer in prose or fences often enough that this cannot assume clean
// output.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	for start != -1 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate
					}
					i = len(s) // candidate malformed; try a later object
				}
			}
		}
		next := strings.Index(s[start+1:], "{")
		if next == -1 {
			return ""
		}
		start = start + 1 + next
	}
	return ""
}
