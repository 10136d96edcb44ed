// Package event binds the events backend to the query cache: the REST
// client, the cached loaders and mutation actions used by every view, and
// iCalendar export.
package event

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smileynet/eventdeck/internal/query"
)

// Event is one event as held by the backend.
type Event struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`           // YYYY-MM-DD
	Time        string `json:"time,omitempty"` // HH:MM
	Location    string `json:"location"`
	Image       string `json:"image,omitempty"`
}

// Date and time layouts used by the backend.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ListParams narrow a collection query.
type ListParams struct {
	Search string
	Max    int // 0 means no limit
}

// reservedID is the key element under which collection queries live.
const reservedID = "list"

// Sentinel errors for invalid input.
var (
	ErrInvalidID    = errors.New("event: invalid event ID")
	ErrInvalidEvent = errors.New("event: invalid event")
)

// AllKey is the prefix of every event key.
func AllKey() query.Key { return query.Key{"events"} }

// Key identifies one event.
func Key(id string) query.Key { return query.Key{"events", id} }

// ListKey identifies a collection query.
func ListKey(p ListParams) query.Key {
	return query.Key{"events", reservedID, p.Search, strconv.Itoa(p.Max)}
}

// IsListKey reports whether key names a collection query.
func IsListKey(key query.Key) bool {
	return len(key) >= 2 && key[0] == "events" && key[1] == reservedID
}

// ValidateID rejects ids that cannot name a single event.
func ValidateID(id string) error {
	if id == "" || id == reservedID || strings.ContainsAny(id, "/?#") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Validate checks the fields a user can edit.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if e.Date != "" {
		if _, err := time.Parse(DateLayout, e.Date); err != nil {
			return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidEvent, e.Date)
		}
	}
	if e.Time != "" {
		if _, err := time.Parse(TimeLayout, e.Time); err != nil {
			return fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidEvent, e.Time)
		}
	}
	return nil
}

// Start returns when the event begins and whether it has a time of day.
func (e Event) Start(loc *time.Location) (t time.Time, timed bool, err error) {
	if loc == nil {
		loc = time.Local
	}
	if e.Time != "" {
		t, err = time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+e.Time, loc)
		return t, true, err
	}
	t, err = time.ParseInLocation(DateLayout, e.Date, loc)
	return t, false, err
}

// ImageURL resolves an event image against base.
func ImageURL(base, image string) string {
	if image == "" {
		return ""
	}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return image
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(image, "/")
}
