package tracker

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Client wraps the gh CLI binary for issue and pull-request operations.
type Client struct {
	GhBin string // path to gh binary (default: "gh")
	Repo  string // --repo flag value (optional, OWNER/REPO)
	Dir   string // working directory for gh invocations (repo root)
}

// NewClient creates a Client using the given gh binary path and repository.
func NewClient(ghBin, repo, dir string) *Client {
	if ghBin == "" {
		ghBin = "gh"
	}
	return &Client{GhBin: ghBin, Repo: repo, Dir: dir}
}

func (c *Client) baseArgs() []string {
	if c.Repo != "" {
		return []string{"--repo", c.Repo}
	}
	return nil
}

func (c *Client) run(args ...string) ([]byte, error) {
	all := append(args, c.baseArgs()...)
	cmd := exec.Command(c.GhBin, all...)
	cmd.Dir = c.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("gh %s: %w\n%s", strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

// Issue is the JSON structure returned by gh issue list/view.
type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	Labels []Label `json:"labels,omitempty"`
}

// Label is a single issue label as returned by gh.
type Label struct {
	Name string `json:"name"`
}

// LabelNames returns the issue's label names as a flat slice.
func (i Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

// FetchOpenIssues returns all open issues, oldest first.
func (c *Client) FetchOpenIssues() ([]Issue, error) {
	out, err := c.run("issue", "list",
		"--state", "open",
		"--limit", "200",
		"--json", "number,title,body,state,labels",
		"--search", "sort:created-asc")
	if err != nil {
		return nil, err
	}
	var issues []Issue
	if err := json.Unmarshal(out, &issues); err != nil {
		return nil, fmt.Errorf("parse gh issue list output: %w", err)
	}
	return issues, nil
}

// FetchIssue returns a single issue by number.
func (c *Client) FetchIssue(number int) (*Issue, error) {
	out, err := c.run("issue", "view", strconv.Itoa(number),
		"--json", "number,title,body,state,labels")
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := json.Unmarshal(out, &issue); err != nil {
		return nil, fmt.Errorf("parse gh issue view output: %w", err)
	}
	return &issue, nil
}

// SubIssueSpec describes a sub-issue to create when splitting a parent issue.
type SubIssueSpec struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreateSubIssues creates one issue per spec and returns the created issues.
// Each body gets a trailer referencing the parent so the relationship is
// discoverable from the tracker.
func (c *Client) CreateSubIssues(parent int, specs []SubIssueSpec) ([]Issue, error) {
	created := make([]Issue, 0, len(specs))
	for _, spec := range specs {
		body := strings.TrimRight(spec.Body, "\n") + fmt.Sprintf("\n\nSplit from #%d", parent)
		out, err := c.run("issue", "create", "--title", spec.Title, "--body", body)
		if err != nil {
			return created, fmt.Errorf("create sub-issue %q: %w", spec.Title, err)
		}
		number, err := parseIssueURL(string(out))
		if err != nil {
			return created, fmt.Errorf("create sub-issue %q: %w", spec.Title, err)
		}
		created = append(created, Issue{Number: number, Title: spec.Title, Body: body, State: "OPEN"})
	}
	return created, nil
}

// EditIssueBody replaces an issue's body.
func (c *Client) EditIssueBody(number int, body string) error {
	_, err := c.run("issue", "edit", strconv.Itoa(number), "--body", body)
	return err
}

// CreatePR opens a pull request from branch into base and returns its number.
func (c *Client) CreatePR(branch, base, title, body string) (int, error) {
	out, err := c.run("pr", "create",
		"--head", branch,
		"--base", base,
		"--title", title,
		"--body", body)
	if err != nil {
		return 0, err
	}
	return parseIssueURL(string(out))
}

// PullRequest is the JSON structure returned by gh pr list.
type PullRequest struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	HeadRefName string `json:"headRefName"`
	Mergeable   string `json:"mergeable"`
}

// MergeablePRs returns open pull requests on orchestrator branches that
// the tracker reports as mergeable.
func (c *Client) MergeablePRs(branchPrefix string) ([]PullRequest, error) {
	out, err := c.run("pr", "list",
		"--state", "open",
		"--json", "number,title,headRefName,mergeable")
	if err != nil {
		return nil, err
	}
	var prs []PullRequest
	if err := json.Unmarshal(out, &prs); err != nil {
		return nil, fmt.Errorf("parse gh pr list output: %w", err)
	}
	var mergeable []PullRequest
	for _, pr := range prs {
		if strings.HasPrefix(pr.HeadRefName, branchPrefix) && pr.Mergeable == "MERGEABLE" {
			mergeable = append(mergeable, pr)
		}
	}
	return mergeable, nil
}

// MergePR merges a pull request with the given strategy ("merge", "squash",
// or "rebase") and deletes the head branch.
func (c *Client) MergePR(number int, strategy string) error {
	flag := "--squash"
	switch strategy {
	case "merge":
		flag = "--merge"
	case "rebase":
		flag = "--rebase"
	}
	_, err := c.run("pr", "merge", strconv.Itoa(number), flag, "--delete-branch")
	return err
}

// parseIssueURL extracts the trailing number from a gh-created issue/PR URL,
// e.g. "https://github.com/owner/repo/issues/42".
func parseIssueURL(out string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty gh output")
	}
	url := fields[len(fields)-1]
	idx := strings.LastIndex(url, "/")
	if idx == -1 || idx == len(url)-1 {
		return 0, fmt.Errorf("no number in gh output %q", out)
	}
	number, err := strconv.Atoi(url[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("parse number from gh output %q: %w", out, err)
	}
	return number, nil
}
