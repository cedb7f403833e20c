package orchestrator

import (
	"context"

	"github.com/SaintPepsi/pai-tools-sub001/internal/tracker"
	"github.com/SaintPepsi/pai-tools-sub001/internal/worktree"
)

// Options are per-run switches layered over the loaded configuration.
type Options struct {
	DryRun     bool // preview mutating operations instead of performing them
	Reset      bool // discard persisted state and start fresh
	NoSplit    bool // skip the size-assessment / splitting step
	NoVerify   bool // skip verification commands and the fix loop
	OnlyIssue  int  // restrict the run to a single issue number (0 = all)
	ResumeFrom int  // skip scheduled issues until this number (0 = from start)
	Quiet      bool
	GitTrace   bool
}

// Tracker is the issue-tracker collaborator surface the loop consumes.
type Tracker interface {
	FetchOpenIssues() ([]tracker.Issue, error)
	CreateSubIssues(parent int, specs []tracker.SubIssueSpec) ([]tracker.Issue, error)
	CreatePR(branch, base, title, body string) (int, error)
}

// Workspaces is the worktree-manager collaborator surface.
type Workspaces interface {
	Create(branch string, depBranches []string, baseBranch string, issue int) worktree.CreateResult
	Remove(path, branch string, issue int)
	Push(branch string) error
}

// Verifier runs the verification-and-fix loop inside a worktree.
type Verifier interface {
	Run(ctx context.Context, issueNumber int, dir string) error
}
