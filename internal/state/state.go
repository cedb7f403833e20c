package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	stateDir       = ".pai/orchestrator"
	stateFile      = "state.json"
	legacyFile     = ".pai-state.json"
	currentVersion = 1
)

// Status is the lifecycle state of a single issue within a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSplit      Status = "split"
)

// IssueState is the persistent record for one issue.
type IssueState struct {
	Number      int        `json:"number"`
	Title       string     `json:"title,omitempty"`
	Status      Status     `json:"status"`
	Branch      string     `json:"branch,omitempty"`
	PRNumber    int        `json:"pr_number,omitempty"`
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunState is the persistent state of an orchestration run. It survives
// across runs so completed issues can be skipped on resume.
type RunState struct {
	Version   int                 `json:"version"`
	StartedAt time.Time           `json:"started_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Issues    map[int]*IssueState `json:"issues"`
}

// Store reads and writes RunState beneath a tool-scoped directory under the
// repository root.
type Store struct {
	Dir string
}

// NewStore creates a Store rooted at <repoRoot>/.pai/orchestrator.
func NewStore(repoRoot string) *Store {
	return &Store{Dir: filepath.Join(repoRoot, stateDir)}
}

func (s *Store) path() string {
	return filepath.Join(s.Dir, stateFile)
}

// legacyPath is the pre-directory single-file location at the repo root.
func (s *Store) legacyPath() string {
	return filepath.Join(s.Dir, "..", "..", legacyFile)
}

// Init returns a fresh RunState with no issue records.
func (s *Store) Init() *RunState {
	return &RunState{
		Version:   currentVersion,
		StartedAt: time.Now(),
		Issues:    make(map[int]*IssueState),
	}
}

// Load returns the persisted RunState, or nil when no state file exists.
// An unparsable file is treated as absent state rather than a fatal error,
// so a corrupt file only costs redone work, never a stuck orchestrator.
// If a legacy single-file state exists and the new location does not, the
// legacy file is copied forward once; an existing new-location file is
// never overwritten.
func (s *Store) Load() (*RunState, error) {
	s.migrateLegacy()

	data, err := os.ReadFile(s.path())
	if err != nil {
		return nil, nil
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, nil
	}
	if st.Issues == nil {
		st.Issues = make(map[int]*IssueState)
	}
	return &st, nil
}

func (s *Store) migrateLegacy() {
	if _, err := os.Stat(s.path()); err == nil {
		return
	}
	data, err := os.ReadFile(s.legacyPath())
	if err != nil {
		return
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return
	}
	os.WriteFile(s.path(), data, 0644)
}

// Save stamps UpdatedAt and writes the full state atomically: the document
// goes to a temp file first and is renamed into place, so a crash mid-write
// cannot leave a truncated state file behind.
func (s *Store) Save(st *RunState) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	st.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, stateFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// Exists reports whether a state file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path())
	return err == nil
}

// Reset removes the persisted state file.
func (s *Store) Reset() error {
	err := os.Remove(s.path())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GetOrCreate returns the record for an issue, creating a pending one on
// first reference. A known record gets its title backfilled when it was
// previously empty; no other field is touched.
func (st *RunState) GetOrCreate(number int, title string) *IssueState {
	if is, ok := st.Issues[number]; ok {
		if is.Title == "" && title != "" {
			is.Title = title
		}
		return is
	}
	is := &IssueState{Number: number, Title: title, Status: StatusPending}
	st.Issues[number] = is
	return is
}

// MarkInProgress transitions an issue to in_progress.
func (st *RunState) MarkInProgress(number int, branch string) {
	is := st.GetOrCreate(number, "")
	is.Status = StatusInProgress
	is.Branch = branch
}

// MarkCompleted transitions an issue to completed. The error field is
// cleared in the same mutation: a completed issue must never carry a stale
// error from an earlier failed attempt.
func (st *RunState) MarkCompleted(number, prNumber int) {
	is := st.GetOrCreate(number, "")
	now := time.Now()
	is.Status = StatusCompleted
	is.Error = ""
	is.PRNumber = prNumber
	is.CompletedAt = &now
}

// MarkFailed transitions an issue to failed with a diagnostic message.
func (st *RunState) MarkFailed(number int, msg string) {
	is := st.GetOrCreate(number, "")
	is.Status = StatusFailed
	is.Error = msg
}

// MarkSplit transitions an issue to the terminal split state.
func (st *RunState) MarkSplit(number int) {
	is := st.GetOrCreate(number, "")
	now := time.Now()
	is.Status = StatusSplit
	is.Error = ""
	is.CompletedAt = &now
}

// Counts holds per-status issue totals for the run summary.
type Counts struct {
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Split      int
}

// Tally computes per-status totals across all issue records.
func (st *RunState) Tally() Counts {
	var c Counts
	for _, is := range st.Issues {
		switch is.Status {
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		case StatusSplit:
			c.Split++
		case StatusInProgress:
			c.InProgress++
		default:
			c.Pending++
		}
	}
	return c
}
