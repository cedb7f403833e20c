package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Manager handles the git worktree lifecycle: one isolated checkout plus
// branch per issue attempt.
type Manager struct {
	RepoRoot string
	BaseDir  string // worktree root, e.g. ".pai/worktrees"
	Trace    bool   // log every git command and its output
	Logf     func(format string, args ...any)
}

// NewManager creates a worktree Manager rooted at the given repository.
func NewManager(repoRoot, baseDir string) *Manager {
	if baseDir == "" {
		baseDir = filepath.Join(".pai", "worktrees")
	}
	return &Manager{RepoRoot: repoRoot, BaseDir: baseDir}
}

func (m *Manager) logf(format string, args ...any) {
	if m.Logf != nil {
		m.Logf(format, args...)
	}
}

func (m *Manager) git(args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = m.RepoRoot
	out, err := cmd.CombinedOutput()
	if m.Trace {
		m.logf("GIT> git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	if err != nil {
		return out, fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

// Path returns the worktree path for a given issue number.
func (m *Manager) Path(issue int) string {
	dir := m.BaseDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.RepoRoot, dir)
	}
	return filepath.Join(dir, fmt.Sprintf("issue-%d", issue))
}

// CreateResult is the outcome of a worktree creation attempt. Failures are
// reported through Err rather than a Go error so the caller can record them
// as an issue-level failure instead of aborting the run.
type CreateResult struct {
	OK         bool
	Path       string
	BaseBranch string
	Err        string
}

// Create builds an isolated worktree for an issue on a fresh branch. The
// base is the last dependency branch when any are supplied, otherwise the
// configured base branch. Leftovers from interrupted prior runs — an
// existing local branch with the same name, or a stale directory at the
// target path — are removed first rather than treated as errors.
func (m *Manager) Create(branch string, depBranches []string, baseBranch string, issue int) CreateResult {
	if len(depBranches) > 0 {
		baseBranch = depBranches[len(depBranches)-1]
	}
	wtPath := m.Path(issue)

	// Clear any stale worktree directory from a prior partial run.
	if _, err := os.Stat(wtPath); err == nil {
		m.git("worktree", "remove", "--force", wtPath)
		if err := os.RemoveAll(wtPath); err != nil {
			return CreateResult{BaseBranch: baseBranch, Err: fmt.Sprintf("remove stale worktree %s: %v", wtPath, err)}
		}
		m.git("worktree", "prune")
	}

	// Clear any stale branch left by an interrupted run.
	if m.BranchExists(branch) {
		if err := m.DeleteBranch(branch); err != nil {
			return CreateResult{BaseBranch: baseBranch, Err: fmt.Sprintf("delete stale branch %s: %v", branch, err)}
		}
	}

	if err := os.MkdirAll(filepath.Dir(wtPath), 0755); err != nil {
		return CreateResult{BaseBranch: baseBranch, Err: fmt.Sprintf("create worktree root: %v", err)}
	}

	if _, err := m.git("worktree", "add", wtPath, "-b", branch, baseBranch); err != nil {
		return CreateResult{BaseBranch: baseBranch, Err: err.Error()}
	}

	return CreateResult{OK: true, Path: wtPath, BaseBranch: baseBranch}
}

// Remove tears down an issue's worktree and branch. Removal is best-effort:
// failures are logged, not propagated, since a leftover worktree does not
// corrupt later runs — the next Create for the same branch cleans it up.
func (m *Manager) Remove(wtPath, branch string, issue int) {
	if _, err := m.git("worktree", "remove", "--force", wtPath); err != nil {
		if rmErr := os.RemoveAll(wtPath); rmErr != nil {
			m.logf("warning: remove worktree for #%d: %v", issue, rmErr)
		}
		m.git("worktree", "prune")
	}
	if branch != "" {
		if err := m.DeleteBranch(branch); err != nil {
			m.logf("warning: delete branch %s for #%d: %v", branch, issue, err)
		}
	}
}

// Push publishes a branch to origin so a pull request can be opened from it.
func (m *Manager) Push(branch string) error {
	_, err := m.git("push", "-u", "origin", branch)
	return err
}

// BranchExists reports whether a local branch exists.
func (m *Manager) BranchExists(branch string) bool {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = m.RepoRoot
	return cmd.Run() == nil
}

// DeleteBranch force-deletes a local branch. Deleting a branch that does
// not exist is a no-op, never an error.
func (m *Manager) DeleteBranch(branch string) error {
	if !m.BranchExists(branch) {
		return nil
	}
	_, err := m.git("branch", "-D", branch)
	return err
}
