package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFile = ".pai/config.yml"

// Config holds the orchestrator configuration, loaded once per run from
// .pai/config.yml and overridable by CLI flags.
type Config struct {
	BranchPrefix     string   `yaml:"branch_prefix"`
	BaseBranch       string   `yaml:"base_branch"`
	WorktreeDir      string   `yaml:"worktree_dir"`
	AssessModel      string   `yaml:"assess_model"`
	ImplementModel   string   `yaml:"implement_model"`
	ImplementRetries int      `yaml:"implement_retries"`
	VerifyRetries    int      `yaml:"verify_retries"`
	AllowedTools     string   `yaml:"allowed_tools"`
	VerifyCommands   []string `yaml:"verify_commands"`
	ClaudeBin        string   `yaml:"claude_bin"`
	GhBin            string   `yaml:"gh_bin"`
	Repo             string   `yaml:"repo"` // OWNER/REPO override for gh
	MergeStrategy    string   `yaml:"merge_strategy"`
}

// Defaults returns the compiled-in configuration.
func Defaults() Config {
	return Config{
		BranchPrefix:     "pai/",
		BaseBranch:       "main",
		WorktreeDir:      filepath.Join(".pai", "worktrees"),
		AssessModel:      "haiku",
		ImplementModel:   "sonnet",
		ImplementRetries: 1,
		VerifyRetries:    2,
		AllowedTools:     "Bash,Read,Write,Edit,Glob,Grep",
		ClaudeBin:        "claude",
		GhBin:            "gh",
		MergeStrategy:    "squash",
	}
}

// Load reads .pai/config.yml beneath the repository root, merged over the
// defaults. A missing file yields the defaults; an unparsable file is a
// configuration error and fatal to the run.
func Load(repoRoot string) (Config, error) {
	cfg := Defaults()

	path := filepath.Join(repoRoot, configFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
