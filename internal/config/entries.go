// Package config manages the per-place configuration entries: validation,
// the persisted entry store, and one-time import from legacy YAML config.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"populartimes/internal/populartimes"
)

var (
	// ErrConfigInvalid indicates a missing or malformed name/address.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrAlreadyConfigured indicates an entry for the address already exists.
	ErrAlreadyConfigured = errors.New("entry already configured")

	// ErrEntryNotFound indicates no entry exists for the given ID.
	ErrEntryNotFound = errors.New("entry not found")
)

// Source records how an entry was created.
type Source string

const (
	// SourceUser marks entries created through the config API.
	SourceUser Source = "user"
	// SourceImport marks entries migrated from YAML configuration.
	SourceImport Source = "import"
)

// Entry is one persisted, user-editable place configuration.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEntry validates the pair and builds an entry with its unique ID.
func NewEntry(name, address string, source Source) (Entry, error) {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)

	if address == "" {
		return Entry{}, fmt.Errorf("address must not be empty: %w", ErrConfigInvalid)
	}
	if name == "" {
		return Entry{}, fmt.Errorf("name must not be empty: %w", ErrConfigInvalid)
	}

	return Entry{
		ID:        UniqueID(address),
		Name:      name,
		Address:   address,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Query returns the place query for this entry.
func (e Entry) Query() populartimes.PlaceQuery {
	return populartimes.PlaceQuery{Name: e.Name, Address: e.Address}
}

// UniqueID derives the stable entry ID from the normalized address.
func UniqueID(address string) string {
	normalized := strings.ToLower(strings.TrimSpace(address))
	digest := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("addr_%s", hex.EncodeToString(digest[:])[:12])
}
