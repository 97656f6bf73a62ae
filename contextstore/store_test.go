package contextstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nwant/thinking-partner-focus/logger"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	os.Exit(m.Run())
}

// fixedClock advances one minute per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "context.json")
	return Open(path, WithClock(fixedClock()))
}

func TestLoad_MissingFile(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.CurrentFocus != nil {
		t.Error("expected no current focus")
	}
	if doc.FocusHistory == nil || len(doc.FocusHistory) != 0 {
		t.Errorf("expected empty non-nil history, got %#v", doc.FocusHistory)
	}
}

func TestSetFocus_First(t *testing.T) {
	s := newTestStore(t)

	f, err := s.SetFocus("Write spec", "", "desktop")
	if err != nil {
		t.Fatalf("SetFocus: %v", err)
	}
	if f.Topic != "Write spec" || f.Status != StatusActive || f.Context != "" || f.Tool != "desktop" {
		t.Errorf("unexpected focus %+v", f)
	}
	if !f.CompletedAt.IsZero() {
		t.Error("active focus must not have completedAt")
	}
	if _, err := uuid.Parse(f.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", f.ID, err)
	}

	cur, err := s.Current()
	if err != nil {
		t.Fatal(err)
	}
	if cur == nil || cur.ID != f.ID {
		t.Errorf("Current = %+v, want %s", cur, f.ID)
	}
}

func TestSetFocus_CompletesPrevious(t *testing.T) {
	s := newTestStore(t)

	first, err := s.SetFocus("Draft outline", "chapter 1", "code")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.SetFocus("Review PR", "", "desktop")
	if err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc.CurrentFocus == nil || doc.CurrentFocus.ID != second.ID {
		t.Fatalf("current focus should be the second one, got %+v", doc.CurrentFocus)
	}
	if len(doc.FocusHistory) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(doc.FocusHistory))
	}

	prev := doc.FocusHistory[0]
	if prev.ID != first.ID {
		t.Errorf("history[0] = %s, want %s", prev.ID, first.ID)
	}
	if prev.Status != StatusCompleted {
		t.Errorf("previous status = %q, want completed", prev.Status)
	}
	if prev.CompletedAt.IsZero() {
		t.Error("previous focus should carry completedAt")
	}
	if prev.CompletedAt.After(second.StartedAt) {
		t.Error("previous focus must complete no later than the new one starts")
	}
}

func TestSetFocus_NeverTwoActive(t *testing.T) {
	s := newTestStore(t)

	for i := range 5 {
		if _, err := s.SetFocus(fmt.Sprintf("topic %d", i), "", "desktop"); err != nil {
			t.Fatal(err)
		}
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	active := 0
	if doc.CurrentFocus != nil && doc.CurrentFocus.Status == StatusActive {
		active++
	}
	for _, f := range doc.FocusHistory {
		if f.Status == StatusActive {
			active++
		}
	}
	if active != 1 {
		t.Errorf("expected exactly one active focus, got %d", active)
	}
	if doc.FocusHistory[0].Topic != "topic 3" {
		t.Errorf("history should be most recent first, got %q", doc.FocusHistory[0].Topic)
	}
}

func TestSetFocus_ConcurrentWriters(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SetFocus(fmt.Sprintf("t%d", i), "", "code"); err != nil {
				t.Errorf("SetFocus: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := len(doc.FocusHistory); got != 9 {
		t.Errorf("expected 9 completed foci, got %d", got)
	}
}

func TestSetFocus_PreservesUnknownKeys(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0755); err != nil {
		t.Fatal(err)
	}
	seed := `{"currentFocus": null, "focusHistory": [], "recentDecisions": [{"text": "use sqlite"}], "projects": {"a": 1}}`
	if err := os.WriteFile(s.Path(), []byte(seed), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SetFocus("Keep keys", "", "desktop"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["projects"]; !ok {
		t.Error("unknown key 'projects' was dropped")
	}
	if _, ok := raw["recentDecisions"]; !ok {
		t.Error("unknown key 'recentDecisions' was dropped")
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.RecentDecisions) != 1 {
		t.Errorf("expected recent decisions to load, got %v", doc.RecentDecisions)
	}
}

func TestWrite_OmitsCompletedAtForActive(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SetFocus("Only one", "", "desktop"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "completedAt") {
		t.Errorf("active focus should not serialize completedAt:\n%s", data)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(); err == nil {
		t.Error("expected parse error")
	}
	if _, err := s.SetFocus("x", "", "desktop"); err == nil {
		t.Error("SetFocus should refuse to overwrite an unreadable document")
	}
}

func TestHistory_Limit(t *testing.T) {
	s := newTestStore(t)
	for i := range 4 {
		if _, err := s.SetFocus(fmt.Sprintf("t%d", i), "", "desktop"); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, 3},
		{2, 2},
		{10, 3},
	}
	for _, tt := range tests {
		got, err := s.History(tt.limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Errorf("History(%d) returned %d entries, want %d", tt.limit, len(got), tt.want)
		}
	}
}

func TestWithIDGenerator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.json")
	s := Open(path, WithIDGenerator(func() string { return "fixed-id" }))

	f, err := s.SetFocus("t", "", "desktop")
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != "fixed-id" {
		t.Errorf("ID = %q", f.ID)
	}
}
