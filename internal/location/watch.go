// Package location holds the rider's most recent position as pushed by the
// platform's location service.
package location

import (
	"fmt"
	"sync"
	"time"

	"sakay-eta/internal/geo"
)

const (
	ReasonUnknown     = "location not yet reported"
	ReasonDenied      = "location permission denied"
	ReasonUnsupported = "location unsupported"
)

// Watch is safe for concurrent use: updates arrive from request handlers and
// are read by the polling loop without blocking it.
type Watch struct {
	mu      sync.RWMutex
	point   geo.Point
	ok      bool
	reason  string
	updated time.Time
	now     func() time.Time
}

func NewWatch() *Watch {
	return &Watch{reason: ReasonUnknown, now: time.Now}
}

// Set records a new position. Coordinates outside WGS-84 ranges are rejected
// and leave the previous state untouched.
func (w *Watch) Set(p geo.Point) error {
	if !p.Valid() {
		return fmt.Errorf("location: invalid coordinates (%v, %v)", p.Lat, p.Lng)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.point, w.ok, w.reason = p, true, ""
	w.updated = w.now()
	return nil
}

// Clear marks the location unavailable.
func (w *Watch) Clear(reason string) {
	if reason == "" {
		reason = ReasonUnknown
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.point, w.ok, w.reason = geo.Point{}, false, reason
	w.updated = w.now()
}

func (w *Watch) Current() (geo.Point, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.point, w.ok
}

// Status returns whether a location is available, why not, and when the
// state last changed.
func (w *Watch) Status() (available bool, reason string, updated time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ok, w.reason, w.updated
}
