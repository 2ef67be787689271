// Package jsonfile persists targets as a single JSON document on disk,
// rewritten atomically after every mutation. It is the default backend
// for single-node deployments.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rmarins/sitesentry/internal/core"
	"github.com/rmarins/sitesentry/internal/storage"
)

type Store struct {
	path string

	mu      sync.Mutex
	targets map[string]*core.Target // key: owner + "\x00" + url
}

func key(owner, url string) string { return owner + "\x00" + url }

// Open loads the target file, creating an empty store when it does not
// exist yet. Malformed JSON is an error, not silently discarded state.
func Open(path string) (*Store, error) {
	s := &Store{path: path, targets: make(map[string]*core.Target)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var targets []*core.Target
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, t := range targets {
		if t.URL == "" {
			return nil, fmt.Errorf("parse %s: target entry without url", path)
		}
		s.targets[key(t.Owner, t.URL)] = t
	}
	return s, nil
}

func (s *Store) List(ctx context.Context) ([]*core.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(*core.Target) bool { return true }), nil
}

func (s *Store) ListUser(ctx context.Context, owner string) ([]*core.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(t *core.Target) bool { return t.Owner == owner }), nil
}

func (s *Store) Get(ctx context.Context, owner, url string) (*core.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[key(owner, url)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) Add(ctx context.Context, t *core.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[key(t.Owner, t.URL)]; ok {
		return storage.ErrExists
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	s.targets[key(t.Owner, t.URL)] = &cp
	return s.flushLocked()
}

func (s *Store) Update(ctx context.Context, t *core.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(t.Owner, t.URL)
	if _, ok := s.targets[k]; !ok {
		return storage.ErrNotFound
	}
	cp := *t
	s.targets[k] = &cp
	return s.flushLocked()
}

func (s *Store) Remove(ctx context.Context, owner, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(owner, url)
	if _, ok := s.targets[k]; !ok {
		return storage.ErrNotFound
	}
	delete(s.targets, k)
	return s.flushLocked()
}

func (s *Store) snapshot(keep func(*core.Target) bool) []*core.Target {
	out := make([]*core.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// flushLocked rewrites the whole file via temp-and-rename so a crash
// mid-write never leaves a truncated document behind.
func (s *Store) flushLocked() error {
	targets := s.snapshot(func(*core.Target) bool { return true })
	data, err := json.MarshalIndent(targets, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".targets-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
