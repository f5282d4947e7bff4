package geofence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/venuesense/venue"
)

// LocationService is the platform geofencing API.
// AddGeofences and RemoveGeofences may block on the platform.
type LocationService interface {
	AddGeofences(ctx context.Context, requests []Request) error
	RemoveGeofences(ctx context.Context, venueIDs []string) error
	LastKnownLocation(ctx context.Context) (Location, error)
}

// Defaults are applied to every registration built from a venue
type Defaults struct {
	RadiusMeters   float64
	Expiration     time.Duration
	TransitionMask Kind
	LoiterDelay    time.Duration
}

// DefaultDefaults returns the platform registration defaults
func DefaultDefaults() Defaults {
	return Defaults{
		RadiusMeters:   DefaultRadiusMeters,
		Expiration:     DefaultExpiration,
		TransitionMask: AllKinds,
		LoiterDelay:    DefaultLoiterDelay,
	}
}

// SourceOption configures a Source
type SourceOption func(*Source)

// WithLogger sets the source logger
func WithLogger(logger *logrus.Logger) SourceOption {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaults overrides registration defaults; zero fields keep the built-in value
func WithDefaults(d Defaults) SourceOption {
	return func(s *Source) {
		if d.RadiusMeters > 0 {
			s.defaults.RadiusMeters = d.RadiusMeters
		}
		if d.Expiration > 0 {
			s.defaults.Expiration = d.Expiration
		}
		if d.TransitionMask != 0 {
			s.defaults.TransitionMask = d.TransitionMask
		}
		if d.LoiterDelay > 0 {
			s.defaults.LoiterDelay = d.LoiterDelay
		}
	}
}

// WithClock overrides the timestamp source for deliveries without one
func WithClock(now func() time.Time) SourceOption {
	return func(s *Source) {
		s.now = now
	}
}

// Source owns the platform geofence registration set and turns deliveries
// into transitions.
type Source struct {
	service  LocationService
	logger   *logrus.Logger
	defaults Defaults
	now      func() time.Time

	// regMu serialises Register and Unregister against the platform
	regMu      sync.Mutex
	registered *hashmap.Map[string, Request]

	handlerMu sync.RWMutex
	handler   func(Transition)
}

// NewSource creates a geofence source backed by service
func NewSource(service LocationService, opts ...SourceOption) *Source {
	s := &Source{
		service:    service,
		logger:     logrus.New(),
		defaults:   DefaultDefaults(),
		now:        time.Now,
		registered: hashmap.New[string, Request](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandler sets where transitions are forwarded
func (s *Source) SetHandler(h func(Transition)) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// RequestFor builds the registration for a venue using the source defaults
func (s *Source) RequestFor(v venue.Venue) Request {
	return Request{
		VenueID:        v.ID,
		Latitude:       v.Latitude,
		Longitude:      v.Longitude,
		RadiusMeters:   v.EffectiveRadius(s.defaults.RadiusMeters),
		Expiration:     s.defaults.Expiration,
		TransitionMask: s.defaults.TransitionMask,
		LoiterDelay:    s.defaults.LoiterDelay,
	}
}

// Register registers geofences for the given venue ids, or for every venue
// in registry when no id is given. Every id must already be in the registry;
// otherwise nothing is sent to the platform and ErrUnknownVenue is returned.
func (s *Source) Register(ctx context.Context, registry *venue.Registry, ids ...string) error {
	if len(ids) == 0 {
		ids = registry.IDs()
	}
	if len(ids) == 0 {
		return nil
	}

	requests := make([]Request, 0, len(ids))
	for _, id := range ids {
		v, ok := registry.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownVenue, id)
		}
		requests = append(requests, s.RequestFor(v))
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()

	if err := s.service.AddGeofences(ctx, requests); err != nil {
		return fmt.Errorf("adding geofences: %w", err)
	}
	for _, req := range requests {
		s.registered.Set(req.VenueID, req)
	}

	s.logger.WithField("venues", ids).Info("Geofences registered")
	return nil
}

// Unregister removes every registered geofence. It is a no-op when nothing
// is registered.
func (s *Source) Unregister(ctx context.Context) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	ids := s.registeredIDs()
	if len(ids) == 0 {
		return nil
	}

	if err := s.service.RemoveGeofences(ctx, ids); err != nil {
		return fmt.Errorf("removing geofences: %w", err)
	}
	for _, id := range ids {
		s.registered.Del(id)
	}

	s.logger.WithField("venues", ids).Info("Geofences removed")
	return nil
}

// Registered returns the registered venue ids, sorted
func (s *Source) Registered() []string {
	return s.registeredIDs()
}

func (s *Source) registeredIDs() []string {
	ids := make([]string, 0, s.registered.Len())
	s.registered.Range(func(id string, _ Request) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// Deliver is the platform callback entry point. Malformed deliveries are
// logged and dropped. Each triggering venue becomes one transition,
// forwarded in delivery order.
func (s *Source) Deliver(d *Delivery) {
	if err := d.Validate(); err != nil {
		s.logger.WithError(err).Warn("Dropping geofence delivery")
		return
	}

	ts := d.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	for _, id := range d.VenueIDs {
		if id == "" {
			s.logger.WithError(ErrMalformedDelivery).Warn("Skipping transition with empty venue id")
			continue
		}
		t := Transition{VenueID: id, Kind: d.Kind, Timestamp: ts}
		if t.Kind == Dwell {
			s.logger.WithField("venue_id", id).Debug("Dwell transition")
		}
		s.emit(t)
	}
}

// InitialTransitions emits an ENTER for the first registered venue that
// contains the last known location. A location failure is logged, not returned.
func (s *Source) InitialTransitions(ctx context.Context, registry *venue.Registry) {
	loc, err := s.service.LastKnownLocation(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("No last known location, skipping initial geofence check")
		return
	}

	for _, v := range registry.All() {
		req, ok := s.registered.Get(v.ID)
		if !ok {
			continue
		}
		if venue.DistanceMeters(req.Latitude, req.Longitude, loc.Latitude, loc.Longitude) > req.RadiusMeters {
			continue
		}
		ts := loc.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		s.logger.WithField("venue_id", v.ID).Info("Already inside venue at start")
		s.emit(Transition{VenueID: v.ID, Kind: Enter, Timestamp: ts})
		return
	}
}

func (s *Source) emit(t Transition) {
	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	if h == nil {
		s.logger.WithField("venue_id", t.VenueID).Warn("No transition handler, dropping transition")
		return
	}
	h(t)
}
