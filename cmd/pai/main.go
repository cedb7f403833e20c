package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/SaintPepsi/pai-tools-sub001/internal/agent"
	"github.com/SaintPepsi/pai-tools-sub001/internal/claude"
	"github.com/SaintPepsi/pai-tools-sub001/internal/config"
	"github.com/SaintPepsi/pai-tools-sub001/internal/graph"
	"github.com/SaintPepsi/pai-tools-sub001/internal/orchestrator"
	"github.com/SaintPepsi/pai-tools-sub001/internal/reporter"
	"github.com/SaintPepsi/pai-tools-sub001/internal/runlog"
	"github.com/SaintPepsi/pai-tools-sub001/internal/state"
	"github.com/SaintPepsi/pai-tools-sub001/internal/tracker"
	"github.com/SaintPepsi/pai-tools-sub001/internal/ui"
	"github.com/SaintPepsi/pai-tools-sub001/internal/verify"
	"github.com/SaintPepsi/pai-tools-sub001/internal/worktree"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pai",
		Short: "Drive open issues through agent implementation to pull requests",
		Long: `pai reads open issues from the tracker, orders them by their declared
dependencies, then runs a coding agent in an isolated git worktree per
issue: assess size, implement, verify, and open a pull request.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(inferDepsCmd())
	rootCmd.AddCommand(summarizeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup resolves the repository root and loads configuration; every
// subcommand starts here.
func setup() (string, config.Config, error) {
	root, err := repoRoot()
	if err != nil {
		return "", config.Config{}, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", config.Config{}, err
	}
	return root, cfg, nil
}

func repoRoot() (string, error) {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("not inside a git repository")
	}
	return strings.TrimSpace(string(out)), nil
}

func newTracker(cfg config.Config, root string) *tracker.Client {
	return tracker.NewClient(cfg.GhBin, cfg.Repo, root)
}

func runCmd() *cobra.Command {
	var opts orchestrator.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process open issues: assess, implement, verify, open PRs",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Fprintf(os.Stderr, "\n%s\n", ui.Yellow("Interrupt received, finishing current step..."))
				cancel()
			}()

			log, err := runlog.Open(root)
			if err != nil {
				return err
			}
			defer log.Close()
			if !opts.Quiet {
				fmt.Printf("%s %s\n", ui.Dim("Log:"), log.Path())
			}

			runner := agent.NewCLIRunner(cfg.ClaudeBin)
			runner.Quiet = opts.Quiet

			wm := worktree.NewManager(root, cfg.WorktreeDir)
			wm.Trace = opts.GitTrace
			wm.Logf = log.Printf

			orch := &orchestrator.Orchestrator{
				Config:     cfg,
				Options:    opts,
				RepoRoot:   root,
				Tracker:    newTracker(cfg, root),
				Workspaces: wm,
				Verifier:   &verify.Loop{Runner: runner, Config: cfg, Log: log},
				Runner:     runner,
				Store:      state.NewStore(root),
				Log:        log,
			}

			counts, err := orch.Run(ctx)
			if err != nil {
				return err
			}
			if counts.Failed > 0 {
				return fmt.Errorf("%d issue(s) failed, see %s", counts.Failed, log.Path())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Preview actions without touching branches, worktrees, or the tracker")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "Discard persisted run state and start fresh")
	cmd.Flags().BoolVar(&opts.NoSplit, "no-split", false, "Skip issue size assessment and splitting")
	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "Skip verification commands and the fix loop")
	cmd.Flags().IntVar(&opts.OnlyIssue, "issue", 0, "Process only this issue number")
	cmd.Flags().IntVar(&opts.ResumeFrom, "resume-from", 0, "Skip scheduled issues before this number")
	cmd.Flags().BoolVar(&opts.Quiet, "quiet", false, "Suppress progress output")
	cmd.Flags().BoolVar(&opts.GitTrace, "git-trace", false, "Log every git invocation and its output")
	return cmd
}

func statusCmd() *cobra.Command {
	var flagJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-issue state from the last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := setup()
			if err != nil {
				return err
			}
			st, err := state.NewStore(root).Load()
			if err != nil {
				return err
			}
			if st == nil {
				fmt.Println("No run state found. Run `pai run` first.")
				return nil
			}
			rep := reporter.New(st)
			if flagJSON {
				return rep.PrintJSON(os.Stdout)
			}
			rep.PrintStatus(os.Stdout)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	return cmd
}

func mergeCmd() *cobra.Command {
	var flagDryRun bool

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge mergeable PRs opened by previous runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := setup()
			if err != nil {
				return err
			}
			tc := newTracker(cfg, root)

			prs, err := tc.MergeablePRs(cfg.BranchPrefix)
			if err != nil {
				return fmt.Errorf("list PRs: %w", err)
			}
			if len(prs) == 0 {
				fmt.Println("No mergeable PRs on orchestrator branches.")
				return nil
			}

			var failed int
			for _, pr := range prs {
				if flagDryRun {
					fmt.Printf("%s would merge #%d %s (%s)\n",
						ui.Yellow("dry-run:"), pr.Number, pr.Title, ui.Dim(pr.HeadRefName))
					continue
				}
				if err := tc.MergePR(pr.Number, cfg.MergeStrategy); err != nil {
					fmt.Printf("%s #%d %s: %v\n", ui.Red("merge failed:"), pr.Number, pr.Title, err)
					failed++
					continue
				}
				fmt.Printf("%s #%d %s\n", ui.Green("merged"), pr.Number, pr.Title)
			}
			if failed > 0 {
				return fmt.Errorf("%d PR(s) failed to merge", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "List mergeable PRs without merging")
	return cmd
}

func inferDepsCmd() *cobra.Command {
	var flagApply bool

	cmd := &cobra.Command{
		Use:   "infer-deps",
		Short: "Infer dependencies between open issues using Claude",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := setup()
			if err != nil {
				return err
			}
			tc := newTracker(cfg, root)

			issues, err := tc.FetchOpenIssues()
			if err != nil {
				return fmt.Errorf("fetch open issues: %w", err)
			}
			if len(issues) < 2 {
				fmt.Println("Need at least two open issues to infer dependencies.")
				return nil
			}

			summaries := make([]claude.IssueSummary, len(issues))
			byNumber := make(map[int]tracker.Issue, len(issues))
			for i, is := range issues {
				summaries[i] = claude.IssueSummary{
					Number: is.Number,
					Title:  is.Title,
					Labels: is.LabelNames(),
				}
				byNumber[is.Number] = is
			}

			client, err := claude.NewClient("", "")
			if err != nil {
				return err
			}
			result, err := client.InferDeps(context.Background(), summaries)
			if err != nil {
				return err
			}

			if len(result.Edges) == 0 {
				fmt.Println("No dependencies inferred.")
				return nil
			}
			if result.Summary != "" {
				fmt.Printf("%s %s\n\n", ui.Bold("Summary:"), result.Summary)
			}

			// Group edges per dependent so --apply edits each issue once.
			perDependent := make(map[int][]claude.DepEdge)
			for _, e := range result.Edges {
				fmt.Printf("  #%d %s #%d  %s\n",
					e.Dependent, ui.Dim("depends on"), e.Prerequisite, ui.Dim(e.Reason))
				perDependent[e.Dependent] = append(perDependent[e.Dependent], e)
			}
			if !flagApply {
				fmt.Printf("\nRe-run with %s to write these into the issue bodies.\n", ui.Bold("--apply"))
				return nil
			}

			dependents := make([]int, 0, len(perDependent))
			for n := range perDependent {
				dependents = append(dependents, n)
			}
			sort.Ints(dependents)

			for _, n := range dependents {
				issue, ok := byNumber[n]
				if !ok {
					continue
				}
				existing := make(map[int]bool)
				for _, d := range graph.ParseDependencies(issue.Body) {
					existing[d] = true
				}
				body := issue.Body
				var added []int
				for _, e := range perDependent[n] {
					if existing[e.Prerequisite] || !validIssue(byNumber, e.Prerequisite) {
						continue
					}
					body = appendDepLine(body, e.Prerequisite)
					added = append(added, e.Prerequisite)
				}
				if len(added) == 0 {
					continue
				}
				if err := tc.EditIssueBody(n, body); err != nil {
					return fmt.Errorf("update issue #%d: %w", n, err)
				}
				fmt.Printf("%s #%d now depends on %v\n", ui.Green("updated"), n, added)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagApply, "apply", false, "Write inferred dependencies into issue bodies")
	return cmd
}

func validIssue(byNumber map[int]tracker.Issue, n int) bool {
	_, ok := byNumber[n]
	return ok
}

func appendDepLine(body string, prerequisite int) string {
	body = strings.TrimRight(body, "\n")
	if body != "" {
		body += "\n\n"
	}
	return body + fmt.Sprintf("Depends on #%d", prerequisite)
}

func summarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize the latest run using Claude",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := setup()
			if err != nil {
				return err
			}
			st, err := state.NewStore(root).Load()
			if err != nil {
				return err
			}
			if st == nil {
				fmt.Println("No run state found. Run `pai run` first.")
				return nil
			}

			logText, err := latestRunLog(root)
			if err != nil {
				return err
			}

			client, err := claude.NewClient("", "")
			if err != nil {
				return err
			}
			summary, err := client.SummariseRun(context.Background(), reporter.New(st).Summary(), logText)
			if err != nil {
				return err
			}
			fmt.Println(summary)
			return nil
		},
	}
	return cmd
}

// latestRunLog returns the contents of the newest run log, or "" when no
// logs exist yet.
func latestRunLog(root string) (string, error) {
	paths, err := filepath.Glob(filepath.Join(root, ".pai", "orchestrator", "logs", "run-*.log"))
	if err != nil || len(paths) == 0 {
		return "", nil
	}
	sort.Strings(paths)
	data, err := os.ReadFile(paths[len(paths)-1])
	if err != nil {
		return "", fmt.Errorf("read run log: %w", err)
	}
	return string(data), nil
}
