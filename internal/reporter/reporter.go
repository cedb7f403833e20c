package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/SaintPepsi/pai-tools-sub001/internal/state"
	"github.com/SaintPepsi/pai-tools-sub001/internal/ui"
)

// Reporter renders run status from the persisted state.
type Reporter struct {
	State *state.RunState
}

// New creates a Reporter over a RunState.
func New(st *state.RunState) *Reporter {
	return &Reporter{State: st}
}

// numbers returns all recorded issue numbers in ascending order.
func (r *Reporter) numbers() []int {
	nums := make([]int, 0, len(r.State.Issues))
	for n := range r.State.Issues {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// PrintStatus writes a terminal-friendly per-issue table plus totals.
func (r *Reporter) PrintStatus(w io.Writer) {
	elapsed := time.Since(r.State.StartedAt).Truncate(time.Second)
	c := r.State.Tally()

	fmt.Fprintf(w, "%s — %d issues %s\n\n",
		ui.BoldCyan("pai orchestrator"),
		len(r.State.Issues),
		ui.Dim(fmt.Sprintf("[started %s ago]", elapsed)))

	for _, n := range r.numbers() {
		is := r.State.Issues[n]
		fmt.Fprintf(w, "  %s %s %s", ui.StatusIcon(string(is.Status)), ui.IssuePrefix(n), is.Title)
		if is.PRNumber != 0 {
			fmt.Fprintf(w, " %s", ui.Dim(fmt.Sprintf("(PR #%d)", is.PRNumber)))
		}
		if is.Error != "" {
			fmt.Fprintf(w, "\n      %s %s", ui.Red("error:"), firstLine(is.Error))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\n  %s %d  %s %d  %s %d  %s %d\n",
		ui.Green("completed"), c.Completed,
		ui.Red("failed"), c.Failed,
		ui.Yellow("split"), c.Split,
		ui.Dim("pending"), c.Pending+c.InProgress)
}

// PrintJSON writes the machine-readable state document.
func (r *Reporter) PrintJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.State)
}

// Summary returns a plain-text per-issue digest, used as input for the
// narrative run summariser.
func (r *Reporter) Summary() string {
	var b strings.Builder
	c := r.State.Tally()
	fmt.Fprintf(&b, "Run started %s; %d completed, %d failed, %d split, %d pending.\n",
		r.State.StartedAt.Format(time.RFC3339), c.Completed, c.Failed, c.Split, c.Pending+c.InProgress)

	for _, n := range r.numbers() {
		is := r.State.Issues[n]
		fmt.Fprintf(&b, "#%d [%s] %s", n, is.Status, is.Title)
		if is.Branch != "" {
			fmt.Fprintf(&b, " (branch %s)", is.Branch)
		}
		if is.PRNumber != 0 {
			fmt.Fprintf(&b, " (PR #%d)", is.PRNumber)
		}
		if is.Error != "" {
			fmt.Fprintf(&b, " error: %s", firstLine(is.Error))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
