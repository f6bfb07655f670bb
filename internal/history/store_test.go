package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/psantana5/covrun/internal/report"
)

func sampleResult(i int, success bool) *report.Result {
	start := time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC)
	r := &report.Result{
		RunID:      fmt.Sprintf("run-%02d", i),
		Module:     "/app/App.dll",
		Success:    success,
		Stage:      "done",
		Retries:    i % 3,
		Unresolved: 1,
		StartTime:  start,
		Duration:   250 * time.Millisecond,
		EndTime:    start.Add(250 * time.Millisecond),
		Diagnostics: []string{
			"Unable to resolve dependency 'Foo' (1.0.0)",
		},
	}
	if !success {
		r.Stage = "writing"
		r.Diagnostics = append([]string{"retry: 3 attempts failed"}, r.Diagnostics...)
	}
	return r
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	for i := 0; i < 5; i++ {
		if err := s.Record(sampleResult(i, i%2 == 0)); err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
	}
	// Recording the same run twice is a no-op.
	if err := s.Record(sampleResult(0, true)); err != nil {
		t.Fatalf("duplicate Record: %v", err)
	}

	got, err := s.Get("run-01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := sampleResult(1, false)
	if got.Success != want.Success || got.Stage != want.Stage || got.Retries != want.Retries {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if !got.StartTime.Equal(want.StartTime) || got.Duration != want.Duration {
		t.Errorf("timing = %v/%v, want %v/%v", got.StartTime, got.Duration, want.StartTime, want.Duration)
	}
	if len(got.Diagnostics) != 2 || got.Diagnostics[0] != "retry: 3 attempts failed" {
		t.Errorf("diagnostics = %q", got.Diagnostics)
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	list, err := s.List(3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].RunID != "run-04" || list[2].RunID != "run-02" {
		ids := make([]string, len(list))
		for i, r := range list {
			ids[i] = r.RunID
		}
		t.Errorf("List(3) = %v, want newest first", ids)
	}

	all, err := s.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("List(0) returned %d runs, want 5", len(all))
	}

	if err := s.HealthCheck(); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	n, err := s.Prune(sampleResult(2, true).StartTime)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Errorf("Prune removed %d runs, want 2", n)
	}
	if _, err := s.Get("run-01"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(run-01) after prune error = %v, want ErrNotFound", err)
	}
	if rest, _ := s.List(0); len(rest) != 3 {
		t.Errorf("List(0) after prune returned %d runs, want 3", len(rest))
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteConcurrentRecords(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Record(sampleResult(i, true)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Record: %v", err)
	}

	all, err := s.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 20 {
		t.Errorf("stored %d runs, want 20", len(all))
	}
}

// Set DATABASE_DSN to run against a real PostgreSQL server.
func TestPostgreSQLIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL integration test: DATABASE_DSN not set")
	}
	s, err := NewStore(Config{Driver: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL store: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestNewStore(t *testing.T) {
	if _, err := NewStore(Config{Driver: "oracle"}); !errors.Is(err, ErrUnsupportedDatabase) {
		t.Errorf("err = %v", err)
	}
	s, err := NewStore(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("default store = %T, want *MemoryStore", s)
	}
}

func TestRebind(t *testing.T) {
	s := &sqlStore{numbered: true}
	if got := s.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("rebind = %q", got)
	}
}
