package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BranchPrefix != "pai/" {
		t.Errorf("expected default branch prefix, got %q", cfg.BranchPrefix)
	}
	if cfg.BaseBranch != "main" {
		t.Errorf("expected default base branch, got %q", cfg.BaseBranch)
	}
	if cfg.ImplementRetries != 1 || cfg.VerifyRetries != 2 {
		t.Errorf("unexpected default budgets: %d/%d", cfg.ImplementRetries, cfg.VerifyRetries)
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, ".pai"), 0755)
	content := `
base_branch: develop
verify_retries: 5
verify_commands:
  - go vet ./...
  - go test ./...
`
	if err := os.WriteFile(filepath.Join(root, ".pai", "config.yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseBranch != "develop" {
		t.Errorf("expected develop, got %q", cfg.BaseBranch)
	}
	if cfg.VerifyRetries != 5 {
		t.Errorf("expected 5, got %d", cfg.VerifyRetries)
	}
	if len(cfg.VerifyCommands) != 2 || cfg.VerifyCommands[1] != "go test ./..." {
		t.Errorf("unexpected verify commands: %v", cfg.VerifyCommands)
	}
	// Unset fields keep their defaults.
	if cfg.BranchPrefix != "pai/" {
		t.Errorf("expected default branch prefix preserved, got %q", cfg.BranchPrefix)
	}
}

func TestLoad_UnparsableIsFatal(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, ".pai"), 0755)
	os.WriteFile(filepath.Join(root, ".pai", "config.yml"), []byte("\tnot yaml: ["), 0644)

	if _, err := Load(root); err == nil {
		t.Fatal("expected parse error for unparsable config")
	}
}
