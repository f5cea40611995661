// Package file persists the catalog as JSON documents in a directory: one file
// per collection, each replaced atomically on write.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

const (
	brandsFile     = "brands.json"
	categoriesFile = "categories.json"
	modelsFile     = "models.json"
	partsFile      = "parts.json"
	changesetFile  = "changeset.json"
)

// Store is a crawler.Store over a data directory.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// New creates dir when missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &crawler.SetupError{Component: "store", Err: fmt.Errorf("create data dir: %w", err)}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// SaveNavigation rewrites the three navigation files.
func (s *Store) SaveNavigation(_ context.Context, nav crawler.Navigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(brandsFile, nonNil(nav.Brands)); err != nil {
		return err
	}
	if err := s.write(categoriesFile, nonNil(nav.Categories)); err != nil {
		return err
	}
	return s.write(modelsFile, nonNil(nav.Models))
}

// LoadNavigation reads the navigation files. It returns crawler.ErrNotFound
// when no brands file exists yet.
func (s *Store) LoadNavigation(context.Context) (crawler.Navigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var nav crawler.Navigation
	if err := s.read(brandsFile, &nav.Brands); err != nil {
		return crawler.Navigation{}, err
	}
	if err := s.read(categoriesFile, &nav.Categories); err != nil && !errors.Is(err, crawler.ErrNotFound) {
		return crawler.Navigation{}, err
	}
	if err := s.read(modelsFile, &nav.Models); err != nil && !errors.Is(err, crawler.ErrNotFound) {
		return crawler.Navigation{}, err
	}
	return nav, nil
}

// LoadSnapshot reads parts.json.
func (s *Store) LoadSnapshot(context.Context) ([]crawler.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var parts []crawler.Part
	if err := s.read(partsFile, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// SaveSnapshot replaces parts.json.
func (s *Store) SaveSnapshot(_ context.Context, parts []crawler.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(partsFile, nonNil(parts))
}

// SaveChangeset replaces changeset.json.
func (s *Store) SaveChangeset(_ context.Context, cs crawler.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(changesetFile, cs)
}

// LoadChangeset reads changeset.json.
func (s *Store) LoadChangeset(context.Context) (crawler.Changeset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cs crawler.Changeset
	if err := s.read(changesetFile, &cs); err != nil {
		return crawler.Changeset{}, err
	}
	return cs, nil
}

// Close implements crawler.Store.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return crawler.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
