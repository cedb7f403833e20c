package graph

import (
	"fmt"
	"strings"
)

// CircularDependencyError reports a dependency cycle found during scheduling.
type CircularDependencyError struct {
	Cycle []int // issue numbers along the cycle, in edge order
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, n := range e.Cycle {
		parts[i] = fmt.Sprintf("#%d", n)
	}
	return fmt.Sprintf("circular dependency: %s", strings.Join(parts, " -> "))
}

// Node visitation colors for the scheduling traversal.
const (
	white = iota // unvisited
	gray         // on the exploration stack
	black        // finalized
)

// frame is one entry of the explicit DFS stack: a node plus the index of the
// next dependency to explore.
type frame struct {
	number int
	next   int
}

// TopoSort orders the graph so every in-graph prerequisite appears before its
// dependents. Dangling dependency numbers are skipped. Independent nodes keep
// their input order. On a cycle it returns a *CircularDependencyError and no
// partial ordering.
//
// The traversal is an explicit stack-based DFS rather than recursion so the
// on-stack and finalized sets are plain inspectable state and large issue
// sets cannot exhaust the call stack.
func TopoSort(g *DependencyGraph) ([]int, error) {
	color := make(map[int]int, len(g.Nodes))
	order := make([]int, 0, len(g.Nodes))
	var stack []frame

	for _, start := range g.Order {
		if color[start] != white {
			continue
		}
		color[start] = gray
		stack = append(stack, frame{number: start})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			node := g.Nodes[top.number]

			pushed := false
			for top.next < len(node.DependsOn) {
				dep := node.DependsOn[top.next]
				top.next++

				if _, ok := g.Nodes[dep]; !ok {
					continue // dangling reference, no constraint
				}
				switch color[dep] {
				case gray:
					return nil, &CircularDependencyError{Cycle: cycleFromStack(stack, dep)}
				case white:
					color[dep] = gray
					stack = append(stack, frame{number: dep})
					pushed = true
				}
				if pushed {
					break
				}
			}
			if pushed {
				continue
			}

			// All prerequisites finalized; finalize this node.
			color[top.number] = black
			order = append(order, top.number)
			stack = stack[:len(stack)-1]
		}
	}
	return order, nil
}

// cycleFromStack reconstructs the cycle path from the gray exploration stack,
// starting at the first occurrence of the revisited node.
func cycleFromStack(stack []frame, revisited int) []int {
	start := 0
	for i, f := range stack {
		if f.number == revisited {
			start = i
			break
		}
	}
	cycle := make([]int, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		cycle = append(cycle, f.number)
	}
	return append(cycle, revisited)
}
