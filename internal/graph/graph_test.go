package graph

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/SaintPepsi/pai-tools-sub001/internal/tracker"
)

func TestParseDependencies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []int
	}{
		{"comma separated", "Some context.\nDepends on #5, #10, #15\nMore text.", []int{5, 10, 15}},
		{"case insensitive", "depends ON #3", []int{3}},
		{"mid-line phrase", "This work depends on #7 and #9 landing first", []int{7, 9}},
		{"no marker", "Just a normal issue body with #4 mentioned.", nil},
		{"marker without refs", "Depends on nothing in particular.", nil},
		{"empty body", "", nil},
		{"multiple lines", "Depends on #1\nDepends on #2, #1", []int{1, 2}},
		{"refs before phrase ignored", "#8 depends on #2", []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDependencies(tt.body)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"[42] Fix login bug", "fix-login-bug"},
		{"Fix: memory leak (critical!)", "fix-memory-leak-critical"},
		{"---hello world---", "hello-world"},
		{"Add API", "add-api"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		if got := Slug(tt.title); got != tt.want {
			t.Errorf("Slug(%q): expected %q, got %q", tt.title, tt.want, got)
		}
	}
}

func TestSlug_Truncation(t *testing.T) {
	long := strings.Repeat("very long title ", 10)
	got := Slug(long)
	if len(got) > 50 {
		t.Errorf("expected slug length <= 50, got %d (%q)", len(got), got)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("expected no trailing hyphen after truncation, got %q", got)
	}
}

func TestBranchName(t *testing.T) {
	got := BranchName("pai/", "[7] Add caching layer")
	if got != "pai/add-caching-layer" {
		t.Errorf("expected pai/add-caching-layer, got %q", got)
	}
}

func TestBuild(t *testing.T) {
	issues := []tracker.Issue{
		{Number: 1, Title: "Set up database", Body: ""},
		{Number: 2, Title: "Add API", Body: "Depends on #1"},
		{Number: 3, Title: "Ship docs", Body: "Depends on #99"},
	}

	g := Build(issues, "pai/")
	if g.Size() != 3 {
		t.Fatalf("expected 3 nodes, got %d", g.Size())
	}
	if !reflect.DeepEqual(g.Order, []int{1, 2, 3}) {
		t.Errorf("expected input order preserved, got %v", g.Order)
	}
	if g.Nodes[2].Branch != "pai/add-api" {
		t.Errorf("expected branch pai/add-api, got %q", g.Nodes[2].Branch)
	}
	if !reflect.DeepEqual(g.Nodes[2].DependsOn, []int{1}) {
		t.Errorf("expected deps [1], got %v", g.Nodes[2].DependsOn)
	}

	// Dangling reference stays on the node but is not an in-graph dep.
	if !reflect.DeepEqual(g.Nodes[3].DependsOn, []int{99}) {
		t.Errorf("expected deps [99], got %v", g.Nodes[3].DependsOn)
	}
	if deps := g.InGraphDeps(3); len(deps) != 0 {
		t.Errorf("expected no in-graph deps, got %v", deps)
	}
}

func buildGraph(t *testing.T, issues ...tracker.Issue) *DependencyGraph {
	t.Helper()
	return Build(issues, "pai/")
}

func indexOf(order []int, n int) int {
	for i, v := range order {
		if v == n {
			return i
		}
	}
	return -1
}

func TestTopoSort_SimpleChain(t *testing.T) {
	g := buildGraph(t,
		tracker.Issue{Number: 1, Title: "base"},
		tracker.Issue{Number: 2, Title: "dependent", Body: "Depends on #1"},
	)

	order, err := TopoSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order, []int{1, 2}) {
		t.Errorf("expected [1 2], got %v", order)
	}
}

func TestTopoSort_Diamond(t *testing.T) {
	g := buildGraph(t,
		tracker.Issue{Number: 1, Title: "root"},
		tracker.Issue{Number: 2, Title: "left", Body: "Depends on #1"},
		tracker.Issue{Number: 3, Title: "right", Body: "Depends on #1"},
		tracker.Issue{Number: 4, Title: "join", Body: "Depends on #2, #3"},
	)

	order, err := TopoSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 entries, got %v", order)
	}

	pos := func(n int) int { return indexOf(order, n) }
	if pos(1) > pos(2) || pos(1) > pos(3) {
		t.Errorf("expected 1 before 2 and 3, got %v", order)
	}
	if pos(2) > pos(4) || pos(3) > pos(4) {
		t.Errorf("expected 2 and 3 before 4, got %v", order)
	}
}

func TestTopoSort_Cycle(t *testing.T) {
	g := buildGraph(t,
		tracker.Issue{Number: 1, Title: "a", Body: "Depends on #2"},
		tracker.Issue{Number: 2, Title: "b", Body: "Depends on #1"},
	)

	order, err := TopoSort(g)
	if err == nil {
		t.Fatalf("expected cycle error, got order %v", order)
	}
	if order != nil {
		t.Errorf("expected no partial ordering, got %v", order)
	}

	var cycErr *CircularDependencyError
	if !errors.As(err, &cycErr) {
		t.Fatalf("expected *CircularDependencyError, got %T: %v", err, err)
	}
	if len(cycErr.Cycle) < 2 {
		t.Errorf("expected cycle to name involved issues, got %v", cycErr.Cycle)
	}
	if !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestTopoSort_DanglingDepsIgnored(t *testing.T) {
	g := buildGraph(t,
		tracker.Issue{Number: 1, Title: "a", Body: "Depends on #42"},
		tracker.Issue{Number: 2, Title: "b"},
	)

	order, err := TopoSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order, []int{1, 2}) {
		t.Errorf("expected [1 2], got %v", order)
	}
}

func TestTopoSort_IndependentsKeepInputOrder(t *testing.T) {
	g := buildGraph(t,
		tracker.Issue{Number: 9, Title: "first"},
		tracker.Issue{Number: 3, Title: "second"},
		tracker.Issue{Number: 7, Title: "third"},
	)

	order, err := TopoSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order, []int{9, 3, 7}) {
		t.Errorf("expected input order [9 3 7], got %v", order)
	}
}

func TestTopoSort_SelfCycle(t *testing.T) {
	g := buildGraph(t,
		tracker.Issue{Number: 5, Title: "self", Body: "Depends on #5"},
	)

	if _, err := TopoSort(g); err == nil {
		t.Fatal("expected cycle error for self-dependency")
	}
}
