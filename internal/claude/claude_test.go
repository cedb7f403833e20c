package claude

import (
	"strings"
	"testing"
)

func TestStripJSONFences_Clean(t *testing.T) {
	input := `{"edges": [], "summary": "no deps"}`
	if got := stripJSONFences(input); got != input {
		t.Errorf("expected unchanged, got %q", got)
	}
}

func TestStripJSONFences_WithJSONTag(t *testing.T) {
	input := "```json\n{\"edges\": []}\n```"
	if got := stripJSONFences(input); got != `{"edges": []}` {
		t.Errorf("expected clean JSON, got %q", got)
	}
}

func TestStripJSONFences_WithPlainFence(t *testing.T) {
	input := "```\n{\"edges\": []}\n```"
	if got := stripJSONFences(input); got != `{"edges": []}` {
		t.Errorf("expected clean JSON, got %q", got)
	}
}

func TestStripJSONFences_WithWhitespace(t *testing.T) {
	input := "  \n```json\n{\"edges\": []}\n```\n  "
	if got := stripJSONFences(input); got != `{"edges": []}` {
		t.Errorf("expected clean JSON, got %q", got)
	}
}

func TestBuildPrompt_ContainsIssueData(t *testing.T) {
	issues := []IssueSummary{
		{Number: 4, Title: "Set up DB", Labels: []string{"backend"}},
		{Number: 9, Title: "Add API"},
	}
	prompt, err := buildPrompt(issues)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "Set up DB") || !strings.Contains(prompt, "Add API") {
		t.Error("prompt should contain all issue titles")
	}
	if !strings.Contains(prompt, "strong causal reason") {
		t.Error("prompt should contain dependency rules")
	}
}
