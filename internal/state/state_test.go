package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInit(t *testing.T) {
	s := NewStore(t.TempDir())
	st := s.Init()

	if st.Version != 1 {
		t.Errorf("expected version 1, got %d", st.Version)
	}
	if st.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}
	if len(st.Issues) != 0 {
		t.Errorf("expected empty issues map, got %d entries", len(st.Issues))
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	st := s.Init()
	st.GetOrCreate(7, "Fix login bug")
	st.MarkInProgress(7, "pai/fix-login-bug")
	st.MarkCompleted(7, 101)
	st.MarkFailed(9, "verify step tests: exit 1")

	if err := s.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected state, got nil")
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt stamped on save")
	}
	if len(loaded.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(loaded.Issues))
	}

	seven := loaded.Issues[7]
	if seven.Status != StatusCompleted || seven.PRNumber != 101 || seven.Title != "Fix login bug" {
		t.Errorf("issue 7 round-trip mismatch: %+v", seven)
	}
	if seven.Branch != "pai/fix-login-bug" {
		t.Errorf("expected branch preserved, got %q", seven.Branch)
	}
	nine := loaded.Issues[9]
	if nine.Status != StatusFailed || nine.Error == "" {
		t.Errorf("issue 9 round-trip mismatch: %+v", nine)
	}
}

func TestLoad_Absent(t *testing.T) {
	s := NewStore(t.TempDir())
	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil state for absent file, got %+v", st)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	os.MkdirAll(s.Dir, 0755)
	os.WriteFile(filepath.Join(s.Dir, "state.json"), []byte("{not json"), 0644)

	st, err := s.Load()
	if err != nil {
		t.Fatalf("expected corrupt state treated as absent, got error: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil state for corrupt file, got %+v", st)
	}
}

func TestGetOrCreate(t *testing.T) {
	s := NewStore(t.TempDir())
	st := s.Init()

	is := st.GetOrCreate(3, "")
	if is.Status != StatusPending {
		t.Errorf("expected pending, got %s", is.Status)
	}
	if is.Title != "" {
		t.Errorf("expected empty title, got %q", is.Title)
	}

	// Title backfilled on later reference, other fields untouched.
	is.Branch = "pai/some-branch"
	again := st.GetOrCreate(3, "Some title")
	if again != is {
		t.Error("expected same record returned")
	}
	if again.Title != "Some title" {
		t.Errorf("expected title backfilled, got %q", again.Title)
	}
	if again.Branch != "pai/some-branch" {
		t.Errorf("expected branch untouched, got %q", again.Branch)
	}

	// An existing title is never overwritten.
	st.GetOrCreate(3, "Different title")
	if is.Title != "Some title" {
		t.Errorf("expected title preserved, got %q", is.Title)
	}
}

func TestMarkCompleted_ClearsError(t *testing.T) {
	s := NewStore(t.TempDir())
	st := s.Init()

	st.MarkFailed(5, "agent exited with code 2")
	if st.Issues[5].Error == "" {
		t.Fatal("expected error recorded")
	}

	st.MarkCompleted(5, 88)
	is := st.Issues[5]
	if is.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", is.Status)
	}
	if is.Error != "" {
		t.Errorf("completed issue must not carry an error, got %q", is.Error)
	}
	if is.CompletedAt == nil {
		t.Error("expected CompletedAt set")
	}
}

func TestMarkSplit_Terminal(t *testing.T) {
	s := NewStore(t.TempDir())
	st := s.Init()

	st.MarkSplit(4)
	is := st.Issues[4]
	if is.Status != StatusSplit {
		t.Errorf("expected split, got %s", is.Status)
	}
	if is.CompletedAt == nil {
		t.Error("expected CompletedAt set for terminal split")
	}
}

func TestMigrateLegacy(t *testing.T) {
	root := t.TempDir()
	legacy := filepath.Join(root, ".pai-state.json")
	content := `{"version":1,"issues":{"2":{"number":2,"status":"completed"}}}`
	os.WriteFile(legacy, []byte(content), 0644)

	s := NewStore(root)
	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st == nil {
		t.Fatal("expected migrated state, got nil")
	}
	if st.Issues[2] == nil || st.Issues[2].Status != StatusCompleted {
		t.Errorf("expected migrated issue 2 completed, got %+v", st.Issues)
	}
}

func TestMigrateLegacy_NeverOverwrites(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, ".pai-state.json"),
		[]byte(`{"version":1,"issues":{"2":{"number":2,"status":"failed"}}}`), 0644)

	s := NewStore(root)
	st := s.Init()
	st.MarkCompleted(2, 10)
	if err := s.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Issues[2].Status != StatusCompleted {
		t.Errorf("expected new-location state preserved, got %+v", loaded.Issues[2])
	}
}

func TestReset(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset with no state: %v", err)
	}

	if err := s.Save(s.Init()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists() {
		t.Fatal("expected state file after save")
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.Exists() {
		t.Error("expected state file removed")
	}
}

func TestSave_NoStrayTempFiles(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Save(s.Init()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only state.json, got %v", names)
	}
}

func TestTally(t *testing.T) {
	s := NewStore(t.TempDir())
	st := s.Init()
	st.GetOrCreate(1, "")
	st.MarkInProgress(2, "pai/b")
	st.MarkCompleted(3, 5)
	st.MarkFailed(4, "boom")
	st.MarkSplit(5)

	c := st.Tally()
	if c.Pending != 1 || c.InProgress != 1 || c.Completed != 1 || c.Failed != 1 || c.Split != 1 {
		t.Errorf("unexpected tally: %+v", c)
	}
}
