package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBlockedDomainsRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	set, err := s.LoadBlockedDomains()
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty set, got %v", set)
	}

	set["evil.io"] = true
	set["bad.example"] = true
	if err := s.SaveBlockedDomains(set); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.LoadBlockedDomains()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !loaded["evil.io"] || !loaded["bad.example"] || len(loaded) != 2 {
		t.Fatalf("unexpected set after reload: %v", loaded)
	}
}

func TestBlockedDomainsFileIsSorted(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)

	s.SaveBlockedDomains(map[string]bool{"zzz.example": true, "aaa.example": true})

	data, err := os.ReadFile(filepath.Join(dir, blockedDomainsFile))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Index(string(data), "aaa") > strings.Index(string(data), "zzz") {
		t.Errorf("expected sorted output, got %s", data)
	}
}

func TestWeeklyCountersPruneOldDays(t *testing.T) {
	s, _ := New(t.TempDir())

	today := DateKey(time.Now())
	stale := DateKey(time.Now().AddDate(0, 0, -30))

	counts := map[string]int{today: 3, stale: 9}
	if err := s.SaveWeeklyCounters(counts); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.LoadWeeklyCounters()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded[today] != 3 {
		t.Errorf("expected today's count kept, got %v", loaded)
	}
	if _, ok := loaded[stale]; ok {
		t.Errorf("expected stale day pruned, got %v", loaded)
	}
}

func TestCorruptFileSurfacesError(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)

	os.WriteFile(filepath.Join(dir, blockedDomainsFile), []byte("{{{"), 0644)
	if _, err := s.LoadBlockedDomains(); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestDateKeyFormat(t *testing.T) {
	ts := time.Date(2026, 3, 7, 23, 59, 0, 0, time.Local)
	if got := DateKey(ts); got != "2026-03-07" {
		t.Errorf("expected 2026-03-07, got %s", got)
	}
}
