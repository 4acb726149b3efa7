// Package registry ties config entries to their running coordinator and
// sensor entity. Each entry gets its own runtime, constructed when the
// entry is added and torn down when it is removed or edited.
package registry

import (
	"fmt"
	"sync"
	"time"

	"populartimes/internal/clock"
	"populartimes/internal/config"
	"populartimes/internal/coordinator"
	"populartimes/internal/populartimes"
	"populartimes/internal/sensor"

	ttlcache "github.com/jellydator/ttlcache/v2"
	"go.uber.org/zap"
)

// Snapshot is the last published view of one entry's sensor, kept for the
// diagnostics API. Snapshots expire when an entry stops refreshing.
type Snapshot struct {
	EntryID    string                 `json:"entry_id"`
	Name       string                 `json:"name"`
	EntityID   string                 `json:"entity_id"`
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes"`
	LastError  string                 `json:"last_error,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// entryRuntime is the per-entry context object: one coordinator and one
// sensor entity, with lifecycle tied to the entry.
type entryRuntime struct {
	entry config.Entry
	co    *coordinator.Coordinator
	ent   *sensor.Entity
}

// Registry manages the runtime for every config entry.
type Registry struct {
	store     *config.Store
	fetcher   populartimes.Fetcher
	publisher sensor.Publisher
	clock     clock.Clock
	logger    *zap.Logger
	interval  time.Duration

	mu      sync.Mutex
	running map[string]*entryRuntime

	snapshots *ttlcache.Cache
}

// New creates a registry. interval <= 0 selects the coordinator default.
func New(store *config.Store, fetcher populartimes.Fetcher, publisher sensor.Publisher, clk clock.Clock, logger *zap.Logger, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = coordinator.DefaultInterval
	}

	snapshots := ttlcache.NewCache()
	// Entries refresh every interval; a snapshot older than three misses
	// is stale and drops out of the diagnostics view.
	snapshots.SetTTL(3 * interval)

	return &Registry{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		clock:     clk,
		logger:    logger.Named("registry"),
		interval:  interval,
		running:   make(map[string]*entryRuntime),
		snapshots: snapshots,
	}
}

// Start brings up a runtime for every stored entry.
func (r *Registry) Start() {
	entries := r.store.Entries()
	r.logger.Info("Starting entry runtimes", zap.Int("entries", len(entries)))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range entries {
		r.startLocked(entry)
	}
}

// Stop tears down all runtimes.
func (r *Registry) Stop() {
	r.mu.Lock()
	running := make([]*entryRuntime, 0, len(r.running))
	for _, rt := range r.running {
		running = append(running, rt)
	}
	r.running = make(map[string]*entryRuntime)
	r.mu.Unlock()

	for _, rt := range running {
		rt.co.Stop()
	}
	r.snapshots.Close()

	r.logger.Info("All entry runtimes stopped")
}

// Add validates, stores and starts a new user entry.
func (r *Registry) Add(name, address string) (config.Entry, error) {
	entry, err := config.NewEntry(name, address, config.SourceUser)
	if err != nil {
		return config.Entry{}, err
	}

	if err := r.store.Add(entry); err != nil {
		return config.Entry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked(entry)
	return entry, nil
}

// Update edits an entry and reloads its runtime.
func (r *Registry) Update(id, name, address string) (config.Entry, error) {
	updated, err := r.store.Update(id, name, address)
	if err != nil {
		return config.Entry{}, err
	}

	r.mu.Lock()
	old, ok := r.running[id]
	delete(r.running, id)
	r.mu.Unlock()

	if ok {
		old.co.Stop()
	}
	r.snapshots.Remove(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked(updated)
	return updated, nil
}

// Remove deletes an entry and stops its runtime. Any fetch pending for the
// entry is cancelled and its result discarded.
func (r *Registry) Remove(id string) error {
	if _, err := r.store.Remove(id); err != nil {
		return err
	}

	r.mu.Lock()
	rt, ok := r.running[id]
	delete(r.running, id)
	r.mu.Unlock()

	if ok {
		rt.co.Stop()
	}
	r.snapshots.Remove(id)
	return nil
}

// Entries lists all stored entries.
func (r *Registry) Entries() []config.Entry {
	return r.store.Entries()
}

// Get returns a stored entry by ID.
func (r *Registry) Get(id string) (config.Entry, bool) {
	return r.store.Get(id)
}

// Snapshot returns the last published view of an entry's sensor.
func (r *Registry) Snapshot(id string) (*Snapshot, bool) {
	value, err := r.snapshots.Get(id)
	if err != nil {
		return nil, false
	}
	snapshot, ok := value.(*Snapshot)
	return snapshot, ok
}

// startLocked builds and starts the runtime for an entry. Callers must
// hold r.mu.
func (r *Registry) startLocked(entry config.Entry) {
	co := coordinator.New(entry, r.fetcher, r.clock, r.logger, r.interval)
	ent := sensor.New(entry, r.publisher, r.clock, r.logger)

	co.Subscribe(func(update coordinator.Update) {
		ent.HandleUpdate(update)
		r.recordSnapshot(entry, ent, update)
	})

	r.running[entry.ID] = &entryRuntime{entry: entry, co: co, ent: ent}
	co.Start()

	r.logger.Info("Entry runtime started",
		zap.String("id", entry.ID),
		zap.String("entity_id", ent.ID()))
}

// recordSnapshot caches the entity's published view for diagnostics.
func (r *Registry) recordSnapshot(entry config.Entry, ent *sensor.Entity, update coordinator.Update) {
	snapshot := &Snapshot{
		EntryID:    entry.ID,
		Name:       entry.Name,
		EntityID:   ent.ID(),
		State:      ent.State(),
		Attributes: ent.Attributes(),
		UpdatedAt:  r.clock.Now(),
	}
	if update.Err != nil {
		snapshot.LastError = fmt.Sprintf("%v", update.Err)
	}
	r.snapshots.Set(entry.ID, snapshot)
}
