package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Magenta     = color.New(color.FgMagenta).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// issueColors is a palette of distinct bold colors for differentiating issues.
var issueColors = []func(a ...interface{}) string{
	BoldMagenta,
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// IssuePrefix returns a colored [#N] prefix string.
// Each issue number gets a distinct color from the palette.
func IssuePrefix(number int) string {
	c := issueColors[number%len(issueColors)]
	return Dim("[") + c(fmt.Sprintf("#%d", number)) + Dim("]")
}

// StatusIcon returns a colored status icon for compact table display.
func StatusIcon(status string) string {
	switch status {
	case "completed":
		return Green("✓")
	case "in_progress":
		return Cyan("●")
	case "failed":
		return Red("✗")
	case "split":
		return Yellow("⑂")
	default:
		return Dim("◌")
	}
}
