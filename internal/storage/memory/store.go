package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Store is an in-memory crawler.Store. Writes replace whole collections.
type Store struct {
	mu        sync.RWMutex
	nav       *crawler.Navigation
	parts     []crawler.Part
	hasParts  bool
	changeset *crawler.Changeset
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{}
}

// SaveNavigation replaces the navigation entities.
func (s *Store) SaveNavigation(_ context.Context, nav crawler.Navigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := crawler.Navigation{
		Brands:     append([]crawler.Brand{}, nav.Brands...),
		Categories: append([]crawler.Category{}, nav.Categories...),
		Models:     append([]crawler.Model{}, nav.Models...),
	}
	s.nav = &cp
	return nil
}

// LoadNavigation returns crawler.ErrNotFound before the first save.
func (s *Store) LoadNavigation(context.Context) (crawler.Navigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nav == nil {
		return crawler.Navigation{}, crawler.ErrNotFound
	}
	return crawler.Navigation{
		Brands:     append([]crawler.Brand{}, s.nav.Brands...),
		Categories: append([]crawler.Category{}, s.nav.Categories...),
		Models:     append([]crawler.Model{}, s.nav.Models...),
	}, nil
}

// LoadSnapshot returns crawler.ErrNotFound before the first save.
func (s *Store) LoadSnapshot(context.Context) ([]crawler.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasParts {
		return nil, crawler.ErrNotFound
	}
	return append([]crawler.Part{}, s.parts...), nil
}

// SaveSnapshot replaces the stored parts.
func (s *Store) SaveSnapshot(_ context.Context, parts []crawler.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts = append([]crawler.Part{}, parts...)
	s.hasParts = true
	return nil
}

// SaveChangeset replaces the stored changeset.
func (s *Store) SaveChangeset(_ context.Context, cs crawler.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeset = &cs
	return nil
}

// LoadChangeset returns crawler.ErrNotFound before the first save.
func (s *Store) LoadChangeset(context.Context) (crawler.Changeset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.changeset == nil {
		return crawler.Changeset{}, crawler.ErrNotFound
	}
	return *s.changeset, nil
}

// Close implements crawler.Store.
func (s *Store) Close(context.Context) error { return nil }
