package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening audit log: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid JSONL line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning audit log: %v", err)
	}
	return entries
}

func TestJSONLAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}
	defer sink.Close()

	exit := 0
	entries := []Entry{
		{Actor: "alice", Command: "docker ps", RiskLevel: db.RiskSafe, Success: true, ExitCode: &exit},
		{Actor: "bob", Command: "rm -rf /", RiskLevel: db.RiskForbidden, MatchedRule: "recursive delete of filesystem root"},
	}
	for _, e := range entries {
		if err := sink.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := readEntries(t, path)
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Actor != "alice" || got[0].Command != "docker ps" || !got[0].Success {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].RiskLevel != db.RiskForbidden || got[1].Success {
		t.Errorf("second entry = %+v", got[1])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not defaulted")
	}
}

func TestJSONLAppendAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	sink, err := NewJSONLSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}
	if err := sink.Append(Entry{Actor: "alice", Command: "ls"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening appends; it never truncates.
	sink, err = NewJSONLSink(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer sink.Close()
	if err := sink.Append(Entry{Actor: "bob", Command: "pwd"}); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}

	got := readEntries(t, path)
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2 after reopen", len(got))
	}
}

func TestJSONLRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	sink, err := NewJSONLSink(path, 256)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}
	defer sink.Close()

	for i := 0; i < 10; i++ {
		err := sink.Append(Entry{
			Actor:   "alice",
			Command: "docker logs " + strings.Repeat("x", 64),
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	rotated := 0
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "audit.jsonl.") {
			rotated++
		}
	}
	if rotated == 0 {
		t.Error("expected at least one rotated file")
	}

	// Current file still appendable and under threshold growth.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("active log missing: %v", err)
	}
}

func TestJSONLConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}
	defer sink.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Append(Entry{Actor: "alice", Command: "uptime", Timestamp: time.Now().UTC()})
		}()
	}
	wg.Wait()

	got := readEntries(t, path)
	if len(got) != 20 {
		t.Errorf("entries = %d, want 20 intact lines", len(got))
	}
}

func TestJSONLAppendAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Append(Entry{Actor: "alice", Command: "ls"}); err == nil {
		t.Error("Append after Close should fail")
	}
}

func TestJSONLRequiresPath(t *testing.T) {
	if _, err := NewJSONLSink("", 0); err == nil {
		t.Error("expected error for empty path")
	}
}
