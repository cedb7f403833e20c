package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// IssueSummary is the minimal issue info sent to the API for dependency
// inference. Bodies are deliberately omitted to keep the request small.
type IssueSummary struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Labels []string `json:"labels,omitempty"`
}

// DepEdge is a single inferred dependency.
type DepEdge struct {
	Dependent    int    `json:"dependent"`    // issue that is blocked
	Prerequisite int    `json:"prerequisite"` // issue that must finish first
	Reason       string `json:"reason"`
}

// InferDepsResult is the full inference response.
type InferDepsResult struct {
	Edges   []DepEdge `json:"edges"`
	Summary string    `json:"summary"`
}

// Client wraps the Anthropic SDK for the advisory API calls that run
// outside the main pipeline: dependency inference and run summarization.
type Client struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewClient creates a Client. apiKey falls back to ANTHROPIC_API_KEY;
// model falls back to Sonnet.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	m := anthropic.ModelClaudeSonnet4_6
	if model != "" {
		m = anthropic.Model(model)
	}
	return &Client{
		inner: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model: m,
	}, nil
}

// complete sends one user message (with an optional system prompt) and
// returns the concatenated text blocks of the reply.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(4096),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

const inferDepsRules = `You are an expert software project manager. Given a list of open issues from a software project, infer dependency edges between them.

Rules:
- Only add a dependency when there is a strong causal reason (issue B cannot start until issue A is complete).
- Prefer fewer edges — do not add transitive or speculative dependencies.
- Do not create cycles.
- Only use issue numbers from the provided list.
- An issue cannot depend on itself.

Return your answer as JSON with this exact structure:
{
  "edges": [
    {"dependent": <issue that is blocked>, "prerequisite": <issue that must finish first>, "reason": "<short explanation>"}
  ],
  "summary": "<one paragraph summary of the dependency structure>"
}

Return ONLY the JSON object. No markdown fences, no commentary outside the JSON.

Here are the issues:
`

func buildPrompt(issues []IssueSummary) (string, error) {
	data, err := json.MarshalIndent(issues, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal issues: %w", err)
	}
	return inferDepsRules + string(data), nil
}

// InferDeps proposes dependency edges between open issues. Accepted edges
// are written back into issue bodies as "Depends on #N" marker lines so the
// scheduler picks them up on the next run.
func (c *Client) InferDeps(ctx context.Context, issues []IssueSummary) (*InferDepsResult, error) {
	prompt, err := buildPrompt(issues)
	if err != nil {
		return nil, err
	}
	text, err := c.complete(ctx, "", prompt)
	if err != nil {
		return nil, err
	}
	text = stripJSONFences(text)

	var result InferDepsResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parse claude response: %w\nraw: %s", err, text)
	}
	return &result, nil
}

const summariseSystem = `You are a technical project manager summarising an automated issue-orchestration run.

You will receive:
1. A structured run summary (per-issue status, branches, PR numbers, errors).
2. The run log, including captured agent output.

Produce a concise narrative summary covering:
- What each issue's agent session accomplished (or why it failed/was split).
- Any notable issues, warnings, or unexpected behaviour.
- An overall assessment of the run.

Keep it concise — aim for 1-2 sentences per issue and a short overall paragraph.
Do not repeat raw log content verbatim. Focus on the human-readable takeaway.
`

// SummariseRun turns the run state and log into a human-readable narrative.
func (c *Client) SummariseRun(ctx context.Context, runSummary string, runLog string) (string, error) {
	user := fmt.Sprintf("## Run Summary\n\n%s\n\n## Run Log\n\n```\n%s\n```\n", runSummary, runLog)
	text, err := c.complete(ctx, summariseSystem, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// stripJSONFences removes markdown code fences the model sometimes wraps
// its answer in despite instructions.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
