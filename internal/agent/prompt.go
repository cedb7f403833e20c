package agent

import (
	"bytes"
	"text/template"
)

// Approximate capacity of a single agent session, used by the size
// assessment prompt to decide whether an issue should be split.
const (
	sessionFileCeiling = 10
	sessionLineCeiling = 1500
)

const assessPromptText = `You are assessing whether a tracked issue fits into a single coding-agent session.

A single session can comfortably create about {{.FileCeiling}} new files and about {{.LineCeiling}} new lines of code. If the issue clearly needs more than that, it should be split into smaller, independently implementable sub-issues.

Issue #{{.Number}}: {{.Title}}

{{.Body}}

Return your answer as JSON with this exact structure:
{
  "shouldSplit": true or false,
  "reasoning": "<short explanation>",
  "proposedSplits": [
    {"title": "<sub-issue title>", "body": "<sub-issue body>"}
  ]
}

When shouldSplit is false, proposedSplits must be an empty array. Each proposed sub-issue must be self-contained and small enough for one session.
Return ONLY the JSON object. No markdown fences, no commentary outside the JSON.`

const implementPromptText = `You are implementing a tracked issue inside an isolated git worktree.

Issue #{{.Number}}: {{.Title}}

{{.Body}}

## Context
- You are on branch {{.Branch}}, based on {{.BaseBranch}}
- Work only inside the current directory

## Instructions
1. Implement the changes the issue describes
2. Write or update tests as needed
3. Commit your work on the current branch with clear messages
4. Do NOT create a pull request — the orchestrator handles integration`

const fixPromptText = `A verification step failed after your implementation for issue #{{.Number}}.

Failing step: {{.StepName}}

Output:
{{.ErrorOutput}}

All verification commands, run in order:
{{range .Commands}}- {{.}}
{{end}}
Fix the underlying problem so every verification command passes, then commit the fix on the current branch. Do NOT create a pull request.`

var (
	assessPromptTmpl    = template.Must(template.New("assess").Parse(assessPromptText))
	implementPromptTmpl = template.Must(template.New("implement").Parse(implementPromptText))
	fixPromptTmpl       = template.Must(template.New("fix").Parse(fixPromptText))
)

type assessPromptData struct {
	Number      int
	Title       string
	Body        string
	FileCeiling int
	LineCeiling int
}

type implementPromptData struct {
	Number     int
	Title      string
	Body       string
	Branch     string
	BaseBranch string
}

type fixPromptData struct {
	Number      int
	StepName    string
	ErrorOutput string
	Commands    []string
}

func renderPrompt(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		// Templates are compile-time constants with plain fields; execution
		// cannot fail on well-formed data.
		panic(err)
	}
	return buf.String()
}
