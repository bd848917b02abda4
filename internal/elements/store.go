package elements

import (
	"sync/atomic"
	"time"
)

// Store holds the current catalog for each category. Catalogs are immutable
// and swapped atomically, so readers never see a partially loaded catalog.
type Store struct {
	catalogs [numCategories]atomic.Pointer[Catalog]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Catalog returns the current catalog for the category, or nil if none loaded.
func (s *Store) Catalog(c Category) *Catalog {
	if c < 0 || c >= numCategories {
		return nil
	}
	return s.catalogs[c].Load()
}

// SetCatalog atomically replaces the catalog for a category.
func (s *Store) SetCatalog(c Category, records []ElementSet) {
	if c < 0 || c >= numCategories {
		return
	}
	s.catalogs[c].Store(&Catalog{
		Category: c,
		LoadedAt: time.Now(),
		Records:  records,
	})
}

// Count returns the number of records in a category's catalog.
func (s *Store) Count(c Category) int {
	cat := s.Catalog(c)
	if cat == nil {
		return 0
	}
	return len(cat.Records)
}

// Player returns the player element set, or false if no player is tracked.
func (s *Store) Player() (ElementSet, bool) {
	cat := s.Catalog(CategoryPlayer)
	if cat == nil || len(cat.Records) == 0 {
		return ElementSet{}, false
	}
	return cat.Records[0], true
}

// Reset clears all catalogs, ending the current tracking session.
func (s *Store) Reset() {
	for i := range s.catalogs {
		s.catalogs[i].Store(nil)
	}
}
