package server

import (
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
	"github.com/google/uuid"
)

var errViewNotFound = errors.New("view not found")

// IDProvider issues view-session identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// viewSession binds one Controller to the account that opened it.
type viewSession struct {
	id         string
	accountKey string
	controller *deck.Controller
	lastSeen   time.Time
}

// ViewRegistry tracks open view sessions.
type ViewRegistry struct {
	mu    sync.Mutex
	views map[string]*viewSession
	clock func() time.Time
}

// NewViewRegistry constructs an empty registry.
func NewViewRegistry(clock func() time.Time) *ViewRegistry {
	if clock == nil {
		clock = time.Now
	}
	return &ViewRegistry{
		views: make(map[string]*viewSession),
		clock: clock,
	}
}

func (r *ViewRegistry) add(view *viewSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	view.lastSeen = r.clock()
	r.views[view.id] = view
}

// lookup returns the view only when it belongs to accountKey. A view owned
// by another account is reported as missing.
func (r *ViewRegistry) lookup(viewID, accountKey string) (*viewSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.views[viewID]
	if !ok || view.accountKey != accountKey {
		return nil, errViewNotFound
	}
	view.lastSeen = r.clock()
	return view, nil
}

// touch refreshes the activity of a view that is still open, such as one
// holding an event stream. It reports false once the view is gone.
func (r *ViewRegistry) touch(viewID, accountKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.views[viewID]
	if !ok || view.accountKey != accountKey {
		return false
	}
	view.lastSeen = r.clock()
	return true
}

func (r *ViewRegistry) remove(viewID, accountKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.views[viewID]
	if !ok || view.accountKey != accountKey {
		return false
	}
	delete(r.views, viewID)
	return true
}

// Sweep closes views idle for longer than maxIdle and returns how many were
// removed.
func (r *ViewRegistry) Sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := r.clock().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, view := range r.views {
		if view.lastSeen.Before(cutoff) {
			delete(r.views, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of open views.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
