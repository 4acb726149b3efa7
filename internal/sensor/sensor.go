// Package sensor derives the Home Assistant sensor entity for one place
// from coordinator updates and publishes it to the host platform.
package sensor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"populartimes/internal/clock"
	"populartimes/internal/config"
	"populartimes/internal/coordinator"
	"populartimes/internal/populartimes"

	"go.uber.org/zap"
)

// StateUnavailable is the entity state before the first successful fetch
// and after a failed one.
const StateUnavailable = "unavailable"

const publishTimeout = 10 * time.Second

// weekdayAttributes name the per-weekday curve attributes, Monday first to
// match the payload ordering.
var weekdayAttributes = []string{
	"popularity_monday",
	"popularity_tuesday",
	"popularity_wednesday",
	"popularity_thursday",
	"popularity_friday",
	"popularity_saturday",
	"popularity_sunday",
}

// Publisher pushes entity state to the host platform.
type Publisher interface {
	PublishState(ctx context.Context, entityID, state string, attributes map[string]interface{}) error
}

// Entity is the popularity sensor for one config entry. It holds a
// read-only view of the coordinator's latest result; attributes from the
// last successful fetch are retained while the entity is unavailable.
type Entity struct {
	entry     config.Entry
	entityID  string
	uniqueID  string
	publisher Publisher
	clock     clock.Clock
	logger    *zap.Logger

	state string
	attrs map[string]interface{}
}

// New creates the sensor entity for an entry.
func New(entry config.Entry, publisher Publisher, clk clock.Clock, logger *zap.Logger) *Entity {
	return &Entity{
		entry:     entry,
		entityID:  EntityID(entry.Name),
		uniqueID:  UniqueID(entry.Address),
		publisher: publisher,
		clock:     clk,
		logger:    logger.Named("sensor").With(zap.String("entity_id", EntityID(entry.Name))),
		state:     StateUnavailable,
		attrs:     baseAttributes(entry.Name),
	}
}

// EntityID returns the entity ID for a place name.
func EntityID(name string) string {
	return fmt.Sprintf("sensor.bar_%s", Slug(name))
}

// UniqueID returns the stable unique ID for a place address.
func UniqueID(address string) string {
	digest := sha256.Sum256([]byte(address))
	return fmt.Sprintf("populartimes_%s", hex.EncodeToString(digest[:])[:12])
}

// Slug normalizes a display name to an identifier-safe form.
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ID returns the entity ID.
func (e *Entity) ID() string {
	return e.entityID
}

// Unique returns the unique ID.
func (e *Entity) Unique() string {
	return e.uniqueID
}

// State returns the current entity state string.
func (e *Entity) State() string {
	return e.state
}

// Attributes returns the current attribute set.
func (e *Entity) Attributes() map[string]interface{} {
	attrs := make(map[string]interface{}, len(e.attrs))
	for k, v := range e.attrs {
		attrs[k] = v
	}
	return attrs
}

// HandleUpdate applies a coordinator update and publishes the resulting
// entity state. Called from the coordinator's notify path only, so no
// internal locking is needed.
func (e *Entity) HandleUpdate(update coordinator.Update) {
	e.apply(update)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := e.publisher.PublishState(ctx, e.entityID, e.state, e.Attributes()); err != nil {
		e.logger.Warn("Failed to publish entity state", zap.Error(err))
	}
}

// apply derives state and attributes from the update.
func (e *Entity) apply(update coordinator.Update) {
	if update.Err != nil || update.Result == nil {
		// Keep the last good attributes; only the state degrades.
		e.state = StateUnavailable
		return
	}

	result := update.Result
	now := e.clock.Now()

	e.attrs = baseAttributes(e.entry.Name)
	e.attrs["maps_name"] = result.Name
	e.attrs["address"] = result.Address

	for i, key := range weekdayAttributes {
		if i < len(result.Populartimes) && len(result.Populartimes[i].Data) > 0 {
			e.attrs[key] = result.Populartimes[i].Data
		}
	}
	if curve, ok := result.CurveFor(now); ok {
		e.attrs["hourly_popularity"] = curve
	}

	switch {
	case result.HasLive():
		e.state = strconv.Itoa(populartimes.Clamp(*result.CurrentPopularity))
		e.attrs["popularity_is_live"] = true

	default:
		value, ok := result.HistoricalAt(now)
		if !ok {
			e.logger.Warn("No live or historical popularity for current hour")
			e.state = StateUnavailable
			return
		}
		e.state = strconv.Itoa(populartimes.Clamp(value))
		e.attrs["popularity_is_live"] = false
		e.logger.Info("Using historical popularity (no live data)")
	}
}

// baseAttributes is the presentation metadata present on every publish.
func baseAttributes(name string) map[string]interface{} {
	return map[string]interface{}{
		"friendly_name":       name,
		"unit_of_measurement": "%",
		"icon":                "mdi:chart-bar",
		"state_class":         "measurement",
	}
}
