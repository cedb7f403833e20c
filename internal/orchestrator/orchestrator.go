package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/SaintPepsi/pai-tools-sub001/internal/agent"
	"github.com/SaintPepsi/pai-tools-sub001/internal/config"
	"github.com/SaintPepsi/pai-tools-sub001/internal/graph"
	"github.com/SaintPepsi/pai-tools-sub001/internal/runlog"
	"github.com/SaintPepsi/pai-tools-sub001/internal/state"
	"github.com/SaintPepsi/pai-tools-sub001/internal/tracker"
	"github.com/SaintPepsi/pai-tools-sub001/internal/ui"
)

// Orchestrator drives open issues through assessment, isolated
// implementation, verification, and pull-request creation, in dependency
// order. Collaborators are injected so the pipeline can run against fakes.
type Orchestrator struct {
	Config     config.Config
	Options    Options
	RepoRoot   string
	Tracker    Tracker
	Workspaces Workspaces
	Verifier   Verifier
	Runner     agent.Runner
	Store      *state.Store
	Log        *runlog.Logger
	Out        io.Writer
}

func (o *Orchestrator) printf(format string, args ...any) {
	if o.Options.Quiet {
		return
	}
	out := o.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format, args...)
}

// Run executes one full pass over the open issues. Per-issue failures are
// recorded in state and never abort the pass; only setup problems — the
// tracker being unreachable, a dependency cycle, unreadable prior state —
// are returned as errors. The returned counts reflect the state after the
// pass, so callers can surface partial failure.
func (o *Orchestrator) Run(ctx context.Context) (state.Counts, error) {
	issues, err := o.Tracker.FetchOpenIssues()
	if err != nil {
		return state.Counts{}, fmt.Errorf("fetch open issues: %w", err)
	}
	if len(issues) == 0 {
		o.printf("No open issues.\n")
		return state.Counts{}, nil
	}

	g := graph.Build(issues, o.Config.BranchPrefix)
	order, err := graph.TopoSort(g)
	if err != nil {
		return state.Counts{}, err
	}
	o.Log.Event("plan", map[string]any{"issues": len(issues), "order": order})
	o.printf("%s %d open issue(s), execution order: %v\n", ui.Bold("Plan:"), len(issues), order)

	st, err := o.loadState()
	if err != nil {
		return state.Counts{}, err
	}

	byNumber := make(map[int]tracker.Issue, len(issues))
	for _, is := range issues {
		byNumber[is.Number] = is
	}

	skipping := o.Options.ResumeFrom != 0
	for _, number := range order {
		if skipping {
			if number != o.Options.ResumeFrom {
				o.printf("%s skipped (resuming from #%d)\n", ui.IssuePrefix(number), o.Options.ResumeFrom)
				continue
			}
			skipping = false
		}
		if o.Options.OnlyIssue != 0 && number != o.Options.OnlyIssue {
			continue
		}

		issue := byNumber[number]
		rec := st.GetOrCreate(number, issue.Title)
		if rec.Status == state.StatusCompleted || rec.Status == state.StatusSplit {
			o.printf("%s already %s, skipping\n", ui.IssuePrefix(number), rec.Status)
			continue
		}

		o.processIssue(ctx, st, g, issue)
	}
	if skipping {
		o.printf("%s issue #%d not in the execution order, nothing ran\n", ui.Yellow("Warning:"), o.Options.ResumeFrom)
	}

	counts := st.Tally()
	o.printf("\n%s %d completed, %d failed, %d split\n",
		ui.Bold("Done:"), counts.Completed, counts.Failed, counts.Split)
	o.Log.Event("run_done", map[string]any{
		"completed": counts.Completed,
		"failed":    counts.Failed,
		"split":     counts.Split,
	})
	return counts, nil
}

// loadState resolves the starting state honoring --reset; prior state that
// cannot be read is surfaced rather than silently discarded.
func (o *Orchestrator) loadState() (*state.RunState, error) {
	if o.Options.Reset && !o.Options.DryRun {
		if err := o.Store.Reset(); err != nil {
			return nil, fmt.Errorf("reset state: %w", err)
		}
	}
	st, err := o.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if st == nil || o.Options.Reset {
		st = o.Store.Init()
	} else {
		o.printf("%s resuming prior run (%d issue(s) tracked)\n", ui.Dim("State:"), len(st.Issues))
	}
	return st, nil
}

// persist saves state to disk unless this is a dry run. Save failures are
// logged but do not stop the pass: the in-memory state stays authoritative
// and later saves retry the write.
func (o *Orchestrator) persist(st *state.RunState) {
	if o.Options.DryRun {
		return
	}
	if err := o.Store.Save(st); err != nil {
		o.printf("%s persist state: %v\n", ui.Yellow("Warning:"), err)
		o.Log.Printf("persist state: %v", err)
	}
}

// processIssue runs the full pipeline for a single issue. Every failure
// path marks the issue failed and returns; the caller moves on to the next
// scheduled issue.
func (o *Orchestrator) processIssue(ctx context.Context, st *state.RunState, g *graph.DependencyGraph, issue tracker.Issue) {
	number := issue.Number
	prefix := ui.IssuePrefix(number)

	depBranches, blocked := o.resolveDeps(st, g, number)
	if blocked != 0 {
		msg := fmt.Sprintf("dependency #%d did not complete", blocked)
		o.printf("%s %s %s\n", prefix, ui.Red("blocked:"), msg)
		st.MarkFailed(number, msg)
		o.persist(st)
		return
	}

	branch := g.Nodes[number].Branch
	st.MarkInProgress(number, branch)
	o.persist(st)
	o.printf("%s %s %s\n", prefix, ui.Bold(issue.Title), ui.Dim("("+branch+")"))
	o.Log.Event("issue_start", map[string]any{"issue": number, "branch": branch})

	if !o.Options.NoSplit {
		if done := o.assess(ctx, st, issue); done {
			return
		}
	}

	if o.Options.DryRun {
		o.printf("%s %s create worktree on %s, implement, verify, open PR\n",
			prefix, ui.Yellow("dry-run:"), branch)
		st.MarkCompleted(number, 0)
		return
	}

	res := o.Workspaces.Create(branch, depBranches, o.Config.BaseBranch, number)
	if !res.OK {
		o.printf("%s %s %s\n", prefix, ui.Red("worktree failed:"), res.Err)
		st.MarkFailed(number, "create worktree: "+res.Err)
		o.persist(st)
		return
	}

	if err := o.implement(ctx, issue, branch, res.BaseBranch, res.Path); err != nil {
		o.printf("%s %s %v\n", prefix, ui.Red("implementation failed:"), err)
		st.MarkFailed(number, err.Error())
		o.persist(st)
		o.Workspaces.Remove(res.Path, branch, number)
		return
	}

	if !o.Options.NoVerify {
		if err := o.Verifier.Run(ctx, number, res.Path); err != nil {
			o.printf("%s %s %v\n", prefix, ui.Red("verification failed:"), err)
			st.MarkFailed(number, err.Error())
			o.persist(st)
			o.Workspaces.Remove(res.Path, branch, number)
			return
		}
		o.printf("%s %s\n", prefix, ui.Green("verification passed"))
	}

	if err := o.Workspaces.Push(branch); err != nil {
		o.printf("%s %s %v\n", prefix, ui.Red("push failed:"), err)
		st.MarkFailed(number, fmt.Sprintf("push %s: %v", branch, err))
		o.persist(st)
		o.Workspaces.Remove(res.Path, branch, number)
		return
	}

	prNumber, err := o.Tracker.CreatePR(branch, res.BaseBranch, issue.Title, prBody(issue))
	if err != nil {
		o.printf("%s %s %v\n", prefix, ui.Red("PR creation failed:"), err)
		st.MarkFailed(number, fmt.Sprintf("create PR: %v", err))
		o.persist(st)
		o.Workspaces.Remove(res.Path, branch, number)
		return
	}

	st.MarkCompleted(number, prNumber)
	o.persist(st)
	// Keep the branch: dependents base their worktrees on it and the open
	// PR needs it alive until merge.
	o.Workspaces.Remove(res.Path, "", number)
	o.printf("%s %s PR #%d\n", prefix, ui.BoldGreen("completed"), prNumber)
	o.Log.Event("issue_done", map[string]any{"issue": number, "pr": prNumber})
}

// resolveDeps collects the branches of completed in-graph dependencies in
// declaration order. The second return is the first dependency that reached
// a terminal non-completed status, or 0 when none block.
func (o *Orchestrator) resolveDeps(st *state.RunState, g *graph.DependencyGraph, number int) ([]string, int) {
	var branches []string
	for _, dep := range g.InGraphDeps(number) {
		rec, ok := st.Issues[dep]
		if !ok || rec.Status != state.StatusCompleted {
			return nil, dep
		}
		if rec.Branch != "" {
			branches = append(branches, rec.Branch)
		}
	}
	return branches, 0
}

// assess asks the agent whether the issue fits a single session and, when
// it does not, replaces it with sub-issues. Returns true when the issue was
// split (terminal for this run) and false when implementation should
// proceed. Assessment failure of any kind degrades to "proceed".
func (o *Orchestrator) assess(ctx context.Context, st *state.RunState, issue tracker.Issue) bool {
	number := issue.Number
	prefix := ui.IssuePrefix(number)

	verdict, output := agent.AssessSize(ctx, o.Runner, issue, o.Config, o.RepoRoot)
	o.Log.Output(fmt.Sprintf("assess #%d", number), output)
	if !verdict.ShouldSplit {
		o.Log.Event("assess", map[string]any{"issue": number, "split": false, "reasoning": verdict.Reasoning})
		return false
	}
	if len(verdict.ProposedSplits) == 0 {
		o.printf("%s assessment proposed a split with no sub-issues, proceeding\n", prefix)
		return false
	}

	if o.Options.DryRun {
		titles := make([]string, len(verdict.ProposedSplits))
		for i, s := range verdict.ProposedSplits {
			titles[i] = s.Title
		}
		o.printf("%s %s split into %d sub-issue(s): %s\n",
			prefix, ui.Yellow("dry-run:"), len(titles), strings.Join(titles, "; "))
		st.MarkSplit(number)
		return true
	}

	created, err := o.Tracker.CreateSubIssues(number, verdict.ProposedSplits)
	if err != nil {
		o.printf("%s %s %v, proceeding without a split\n", prefix, ui.Yellow("split failed:"), err)
		o.Log.Printf("split #%d: %v", number, err)
		return false
	}
	nums := make([]int, len(created))
	for i, c := range created {
		nums[i] = c.Number
	}
	o.printf("%s %s into %v, sub-issues run next pass\n", prefix, ui.BoldYellow("split"), nums)
	o.Log.Event("split", map[string]any{"issue": number, "sub_issues": nums, "reasoning": verdict.Reasoning})
	st.MarkSplit(number)
	o.persist(st)
	return true
}

// implement runs the implementation agent with a bounded retry budget.
func (o *Orchestrator) implement(ctx context.Context, issue tracker.Issue, branch, baseBranch, dir string) error {
	var lastErr error
	for attempt := 0; attempt <= o.Config.ImplementRetries; attempt++ {
		if attempt > 0 {
			o.printf("%s retrying implementation (attempt %d of %d)\n",
				ui.IssuePrefix(issue.Number), attempt+1, o.Config.ImplementRetries+1)
		}
		output, err := agent.Implement(ctx, o.Runner, issue, branch, baseBranch, o.Config, dir)
		o.Log.Output(fmt.Sprintf("implement #%d attempt %d", issue.Number, attempt+1), output)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("implementation failed after %d attempt(s): %w",
		o.Config.ImplementRetries+1, lastErr)
}

func prBody(issue tracker.Issue) string {
	return fmt.Sprintf("Closes #%d\n\n%s", issue.Number, issue.Body)
}
