package settings

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreStore holds the ordered set of glob patterns matched against
// filenames only. The directory walk consults it before any file reaches
// the pipeline.
type IgnoreStore struct {
	mu       sync.RWMutex
	patterns []string
}

func NewIgnoreStore(patterns []string) *IgnoreStore {
	s := &IgnoreStore{}
	s.Set(patterns)
	return s
}

func (s *IgnoreStore) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}

func (s *IgnoreStore) Set(patterns []string) []string {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	s.mu.Lock()
	s.patterns = cleaned
	s.mu.Unlock()
	return cleaned
}

func (s *IgnoreStore) Add(pattern string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return s.Patterns(), fmt.Errorf("empty pattern")
	}
	if !doublestar.ValidatePattern(pattern) {
		return s.Patterns(), fmt.Errorf("invalid pattern: %q", pattern)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.patterns {
		if existing == pattern {
			return append([]string(nil), s.patterns...), nil
		}
	}
	s.patterns = append(s.patterns, pattern)
	return append([]string(nil), s.patterns...), nil
}

func (s *IgnoreStore) Remove(pattern string) ([]string, bool) {
	pattern = strings.TrimSpace(pattern)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.patterns {
		if existing == pattern {
			s.patterns = append(s.patterns[:i], s.patterns[i+1:]...)
			return append([]string(nil), s.patterns...), true
		}
	}
	return append([]string(nil), s.patterns...), false
}

func (s *IgnoreStore) Reset() {
	s.mu.Lock()
	s.patterns = nil
	s.mu.Unlock()
}

// ShouldIgnore matches the basename of path against every pattern. Patterns
// without wildcards also match case-insensitively, so ".ds_store" covers
// ".DS_Store".
func (s *IgnoreStore) ShouldIgnore(path string) bool {
	name := filepath.Base(path)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, pattern := range s.patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
		if !strings.ContainsAny(pattern, "*?[{") && strings.EqualFold(pattern, name) {
			return true
		}
	}
	return false
}
