package venue

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry is the set of monitored venues, kept in load order.
//
// Contents are replaced wholesale; individual venues are never edited in place.
// All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	venues *orderedmap.OrderedMap[string, Venue]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{venues: orderedmap.New[string, Venue]()}
}

// Replace validates venues and swaps them in as the new contents.
// On error the registry is left unchanged.
func (r *Registry) Replace(venues []Venue) error {
	next := orderedmap.New[string, Venue](len(venues))
	for _, v := range venues {
		if err := v.Validate(); err != nil {
			return err
		}
		if _, present := next.Set(v.ID, v); present {
			return fmt.Errorf("%w: %s", ErrDuplicateID, v.ID)
		}
	}

	r.mu.Lock()
	r.venues = next
	r.mu.Unlock()
	return nil
}

// Get looks up a venue by id
func (r *Registry) Get(id string) (Venue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.venues.Get(id)
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// All returns the venues in load order
func (r *Registry) All() []Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Venue, 0, r.venues.Len())
	for pair := r.venues.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// IDs returns the venue ids in load order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, r.venues.Len())
	for pair := r.venues.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Len returns the number of venues
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.venues.Len()
}

// Clear removes every venue
func (r *Registry) Clear() {
	r.mu.Lock()
	r.venues = orderedmap.New[string, Venue]()
	r.mu.Unlock()
}
