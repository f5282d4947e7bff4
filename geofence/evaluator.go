package geofence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/venuesense/venue"
)

type fence struct {
	req       Request
	expiresAt time.Time

	known     bool
	inside    bool
	enteredAt time.Time
	dwelled   bool
}

// Evaluator is a software LocationService. It tracks registered circles,
// consumes location fixes through Update and delivers ENTER, EXIT and DWELL
// the way a platform geofencing API would.
//
// A geofence added while the position is already known starts in the
// matching state without a delivery; initial entry is reported by
// Source.InitialTransitions.
type Evaluator struct {
	deliver func(*Delivery)
	logger  *logrus.Logger
	now     func() time.Time

	mu     sync.Mutex
	fences *hashmap.Map[string, *fence]
	last   *Location
}

// NewEvaluator creates an evaluator that reports through deliver,
// normally a Source's Deliver method.
func NewEvaluator(deliver func(*Delivery), logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Evaluator{
		deliver: deliver,
		logger:  logger,
		now:     time.Now,
		fences:  hashmap.New[string, *fence](),
	}
}

// SetClock overrides the clock used for expiration
func (e *Evaluator) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// AddGeofences implements LocationService
func (e *Evaluator) AddGeofences(_ context.Context, requests []Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, req := range requests {
		f := &fence{req: req}
		if req.Expiration > 0 {
			f.expiresAt = now.Add(req.Expiration)
		}
		if e.last != nil {
			f.known = true
			f.inside = f.contains(*e.last)
			f.enteredAt = e.last.Timestamp
		}
		e.fences.Set(req.VenueID, f)
	}
	return nil
}

// RemoveGeofences implements LocationService
func (e *Evaluator) RemoveGeofences(_ context.Context, venueIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range venueIDs {
		e.fences.Del(id)
	}
	return nil
}

// LastKnownLocation implements LocationService
func (e *Evaluator) LastKnownLocation(ctx context.Context) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.last == nil {
		return Location{}, ErrNoLocation
	}
	return *e.last, nil
}

// Len returns the number of active geofences
func (e *Evaluator) Len() int {
	return e.fences.Len()
}

// Update consumes a location fix and delivers any resulting transitions:
// exits first, then entries, then dwells, each as one delivery.
func (e *Evaluator) Update(loc Location) {
	if loc.Timestamp.IsZero() {
		loc.Timestamp = e.now()
	}

	e.mu.Lock()
	fix := loc
	e.last = &fix
	pending := e.evaluate(loc)
	e.mu.Unlock()

	for _, kind := range []Kind{Exit, Enter, Dwell} {
		ids := pending[kind]
		if len(ids) == 0 {
			continue
		}
		sort.Strings(ids)
		e.logger.WithFields(logrus.Fields{
			"kind":   kind.String(),
			"venues": ids,
		}).Debug("Geofence transition")
		if e.deliver != nil {
			e.deliver(&Delivery{Kind: kind, VenueIDs: ids, Timestamp: loc.Timestamp})
		}
	}
}

// evaluate must be called with e.mu held
func (e *Evaluator) evaluate(loc Location) map[Kind][]string {
	pending := make(map[Kind][]string)
	now := e.now()

	var expired []string
	e.fences.Range(func(id string, f *fence) bool {
		if !f.expiresAt.IsZero() && !now.Before(f.expiresAt) {
			expired = append(expired, id)
			return true
		}

		inside := f.contains(loc)
		switch {
		case inside && (!f.known || !f.inside):
			f.enteredAt = loc.Timestamp
			f.dwelled = false
			if f.req.TransitionMask.Has(Enter) {
				pending[Enter] = append(pending[Enter], id)
			}
		case !inside && f.known && f.inside:
			if f.req.TransitionMask.Has(Exit) {
				pending[Exit] = append(pending[Exit], id)
			}
		case inside && !f.dwelled && f.req.TransitionMask.Has(Dwell) &&
			loc.Timestamp.Sub(f.enteredAt) >= f.req.LoiterDelay:
			f.dwelled = true
			pending[Dwell] = append(pending[Dwell], id)
		}
		f.known = true
		f.inside = inside
		return true
	})

	for _, id := range expired {
		e.fences.Del(id)
		e.logger.WithField("venue_id", id).Info("Geofence expired")
	}
	return pending
}

func (f *fence) contains(loc Location) bool {
	return venue.DistanceMeters(f.req.Latitude, f.req.Longitude, loc.Latitude, loc.Longitude) <= f.req.RadiusMeters
}
