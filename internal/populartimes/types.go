package populartimes

import (
	"fmt"
	"time"
)

// PlaceQuery identifies a place to look up. Address must be non-empty;
// the name is used for display and to disambiguate the lookup.
type PlaceQuery struct {
	Name    string
	Address string
}

// SearchString returns the combined query string sent to the data source.
func (q PlaceQuery) SearchString() string {
	return fmt.Sprintf("%s, %s", q.Name, q.Address)
}

// DayPopularity holds one weekday's hourly popularity curve (24 values, 0-100).
// Days are ordered Monday first, matching the upstream payload.
type DayPopularity struct {
	Name string `json:"name"`
	Data []int  `json:"data"`
}

// Result is one fetch of popularity data for a place.
type Result struct {
	Name              string          `json:"name"`
	Address           string          `json:"address"`
	CurrentPopularity *int            `json:"current_popularity"`
	Populartimes      []DayPopularity `json:"populartimes"`
}

// HasLive reports whether a real-time popularity reading is present.
func (r *Result) HasLive() bool {
	return r.CurrentPopularity != nil
}

// HasHistorical reports whether any weekday curve is present.
func (r *Result) HasHistorical() bool {
	for _, day := range r.Populartimes {
		if len(day.Data) > 0 {
			return true
		}
	}
	return false
}

// CurveFor returns the hourly curve for t's weekday.
func (r *Result) CurveFor(t time.Time) ([]int, bool) {
	idx := mondayIndex(t.Weekday())
	if idx >= len(r.Populartimes) {
		return nil, false
	}
	data := r.Populartimes[idx].Data
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// HistoricalAt returns the historical popularity for t's weekday and hour.
func (r *Result) HistoricalAt(t time.Time) (int, bool) {
	curve, ok := r.CurveFor(t)
	if !ok || t.Hour() >= len(curve) {
		return 0, false
	}
	return curve[t.Hour()], true
}

// Clamp bounds a popularity value to the 0-100 range.
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// mondayIndex converts Go's Sunday-first weekday to the payload's
// Monday-first ordering.
func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
