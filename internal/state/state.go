// Package state persists the watcher's local view between runs: the
// set of domains it has asked the server to block, and per-day alert
// counters for the weekly summary.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	blockedDomainsFile = "blocked_domains.json"
	weeklyCountsFile   = "weekly_counts.json"
)

// Store manages the watcher's state files on disk.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates a Store backed by the given directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default state directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "leakwatch-state")
	}
	return filepath.Join(home, ".leakwatch")
}

// LoadBlockedDomains returns the persisted blocked-domain set. A
// missing file yields an empty set.
func (s *Store) LoadBlockedDomains() (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []string
	if err := s.read(blockedDomainsFile, &list); err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("load blocked domains: %w", err)
	}

	set := make(map[string]bool, len(list))
	for _, d := range list {
		set[d] = true
	}
	return set, nil
}

// SaveBlockedDomains persists the blocked-domain set, sorted for a
// stable file.
func (s *Store) SaveBlockedDomains(set map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]string, 0, len(set))
	for d := range set {
		list = append(list, d)
	}
	sort.Strings(list)

	if err := s.writeAtomic(blockedDomainsFile, list); err != nil {
		return fmt.Errorf("save blocked domains: %w", err)
	}
	return nil
}

// LoadWeeklyCounters returns the persisted per-day alert counters,
// keyed by local calendar date. A missing file yields an empty map.
func (s *Store) LoadWeeklyCounters() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int{}
	if err := s.read(weeklyCountsFile, &counts); err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("load weekly counters: %w", err)
	}
	return counts, nil
}

// SaveWeeklyCounters persists the per-day counters, dropping entries
// older than seven days.
func (s *Store) SaveWeeklyCounters(counts map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := DateKey(time.Now().AddDate(0, 0, -7))
	pruned := make(map[string]int, len(counts))
	for day, n := range counts {
		if day >= cutoff {
			pruned[day] = n
		}
	}

	if err := s.writeAtomic(weeklyCountsFile, pruned); err != nil {
		return fmt.Errorf("save weekly counters: %w", err)
	}
	return nil
}

// DateKey returns t's local calendar date in YYYY-MM-DD form, the key
// format used by the weekly counters.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) writeAtomic(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
