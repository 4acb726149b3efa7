package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

const storeVersion = 1

// storeFile is the on-disk shape of the entry store.
type storeFile struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Store is the persisted registry of config entries. Once an address has
// been stored here it is authoritative; YAML values for it are ignored.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// NewStore creates a store backed by the given JSON file.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:    path,
		logger:  logger.Named("config"),
		entries: make(map[string]Entry),
	}
}

// Load reads the store file. A missing file is an empty store.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No entry store found, starting empty", zap.String("path", s.path))
			return nil
		}
		return fmt.Errorf("failed to read entry store: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse entry store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry, len(file.Entries))
	for _, entry := range file.Entries {
		s.entries[entry.ID] = entry
	}

	s.logger.Info("Entry store loaded",
		zap.String("path", s.path),
		zap.Int("entries", len(s.entries)))
	return nil
}

// Add stores a new entry. An entry with the same unique ID fails with
// ErrAlreadyConfigured.
func (s *Store) Add(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ID]; ok {
		return fmt.Errorf("entry %s: %w", entry.ID, ErrAlreadyConfigured)
	}

	s.entries[entry.ID] = entry
	if err := s.saveLocked(); err != nil {
		delete(s.entries, entry.ID)
		return err
	}

	s.logger.Info("Config entry added",
		zap.String("id", entry.ID),
		zap.String("name", entry.Name),
		zap.String("source", string(entry.Source)))
	return nil
}

// Update edits an entry's name and address. Changing the address re-derives
// the unique ID; a collision with another entry fails with ErrAlreadyConfigured.
func (s *Store) Update(id, name, address string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
	}

	updated, err := NewEntry(name, address, existing.Source)
	if err != nil {
		return Entry{}, err
	}
	updated.CreatedAt = existing.CreatedAt

	if updated.ID != id {
		if _, taken := s.entries[updated.ID]; taken {
			return Entry{}, fmt.Errorf("entry %s: %w", updated.ID, ErrAlreadyConfigured)
		}
		delete(s.entries, id)
	}
	s.entries[updated.ID] = updated

	if err := s.saveLocked(); err != nil {
		delete(s.entries, updated.ID)
		s.entries[id] = existing
		return Entry{}, err
	}

	s.logger.Info("Config entry updated",
		zap.String("id", updated.ID),
		zap.String("name", updated.Name))
	return updated, nil
}

// Remove deletes an entry by ID.
func (s *Store) Remove(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
	}

	delete(s.entries, id)
	if err := s.saveLocked(); err != nil {
		s.entries[id] = entry
		return Entry{}, err
	}

	s.logger.Info("Config entry removed", zap.String("id", id))
	return entry, nil
}

// Get returns the entry with the given ID.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	return entry, ok
}

// Entries returns all entries ordered by creation time.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries
}

// saveLocked writes the store file. Callers must hold s.mu.
func (s *Store) saveLocked() error {
	file := storeFile{Version: storeVersion}
	for _, entry := range s.entries {
		file.Entries = append(file.Entries, entry)
	}
	sort.Slice(file.Entries, func(i, j int) bool {
		return file.Entries[i].ID < file.Entries[j].ID
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write entry store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace entry store: %w", err)
	}
	return nil
}
