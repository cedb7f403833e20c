package graph

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/SaintPepsi/pai-tools-sub001/internal/tracker"
)

// Node is a single issue in the dependency graph.
type Node struct {
	Number    int
	Title     string
	Branch    string
	DependsOn []int
}

// DependencyGraph maps issue numbers to nodes. Order preserves the input
// ordering of issues so independent work keeps a stable schedule.
// DependsOn entries may reference numbers absent from Nodes; such dangling
// references are legal and simply impose no ordering constraint.
type DependencyGraph struct {
	Nodes map[int]*Node
	Order []int
}

var (
	dependsOnRe    = regexp.MustCompile(`(?i)depends\s+on`)
	issueRefRe     = regexp.MustCompile(`#(\d+)`)
	bracketedNumRe = regexp.MustCompile(`^\[\d+\]\s*`)
	nonAlnumRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseDependencies scans an issue body for "Depends on #N, #M" marker lines
// and returns the referenced issue numbers. Matching is case-insensitive and
// only #N tokens after the marker phrase on the same line count. A body with
// no marker line yields an empty list.
func ParseDependencies(body string) []int {
	var deps []int
	seen := make(map[int]bool)

	for _, line := range strings.Split(body, "\n") {
		loc := dependsOnRe.FindStringIndex(line)
		if loc == nil {
			continue
		}
		for _, m := range issueRefRe.FindAllStringSubmatch(line[loc[1]:], -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || seen[n] {
				continue
			}
			seen[n] = true
			deps = append(deps, n)
		}
	}
	return deps
}

// Slug converts an issue title into a branch-safe slug: a leading bracketed
// issue prefix like "[42] " is dropped, the rest is lowercased, runs of
// non-alphanumeric characters collapse to single hyphens, leading/trailing
// hyphens are stripped, and the result is capped at 50 characters.
func Slug(title string) string {
	s := bracketedNumRe.ReplaceAllString(strings.TrimSpace(title), "")
	s = strings.ToLower(s)
	s = nonAlnumRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	return s
}

// BranchName derives the deterministic branch name for an issue title.
func BranchName(prefix, title string) string {
	return prefix + Slug(title)
}

// Build constructs a DependencyGraph from tracker issues, one node per issue.
// Malformed or absent dependency lines contribute no edges; Build itself
// cannot fail.
func Build(issues []tracker.Issue, branchPrefix string) *DependencyGraph {
	g := &DependencyGraph{Nodes: make(map[int]*Node, len(issues))}
	for _, issue := range issues {
		if _, ok := g.Nodes[issue.Number]; ok {
			continue
		}
		g.Nodes[issue.Number] = &Node{
			Number:    issue.Number,
			Title:     issue.Title,
			Branch:    BranchName(branchPrefix, issue.Title),
			DependsOn: ParseDependencies(issue.Body),
		}
		g.Order = append(g.Order, issue.Number)
	}
	return g
}

// Size returns the number of nodes in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.Nodes)
}

// InGraphDeps returns the subset of a node's dependencies that exist as
// graph keys, in declaration order.
func (g *DependencyGraph) InGraphDeps(number int) []int {
	node, ok := g.Nodes[number]
	if !ok {
		return nil
	}
	var deps []int
	for _, dep := range node.DependsOn {
		if _, ok := g.Nodes[dep]; ok {
			deps = append(deps, dep)
		}
	}
	return deps
}
