package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/venuesense/geofence"
	"github.com/srg/venuesense/internal/beacon"
	"github.com/srg/venuesense/internal/device"
	"github.com/srg/venuesense/internal/groutine"
	"github.com/srg/venuesense/scanner"
	"github.com/srg/venuesense/venue"
)

// DefaultInboxSize bounds queued transitions and observations
const DefaultInboxSize = 256

// Registrar owns the platform geofence registration set.
// geofence.Source implements it.
type Registrar interface {
	Register(ctx context.Context, registry *venue.Registry, ids ...string) error
	Unregister(ctx context.Context) error
	InitialTransitions(ctx context.Context, registry *venue.Registry)
}

// BeaconScanner runs one blocking scan until ctx is done.
// scanner.Session implements it.
type BeaconScanner interface {
	Scan(ctx context.Context, opts *scanner.ScanOptions, handler func(beacon.Observation)) error
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithInboxSize sets the worker queue capacity
func WithInboxSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.inboxSize = n
		}
	}
}

// WithNearThreshold sets the distance, in meters, under which a beacon counts as near
func WithNearThreshold(meters float64) Option {
	return func(e *Engine) {
		if meters > 0 {
			e.nearThreshold = meters
		}
	}
}

// WithNetworkUUID sets the beacon network scanned for venues that carry no
// beacon identity of their own
func WithNetworkUUID(id uuid.UUID) Option {
	return func(e *Engine) {
		e.networkUUID = &id
	}
}

type messageKind int

const (
	msgTransition messageKind = iota
	msgObservation
	msgScanEnded
	msgRegistryReloaded
	msgRegistrationLost
)

type message struct {
	kind        messageKind
	transition  geofence.Transition
	observation beacon.Observation
	generation  uint64
	err         error
}

// worker is one running engine lifetime
type worker struct {
	inbox  chan message
	ctx    context.Context
	cancel context.CancelFunc
	done   <-chan struct{}
}

// send enqueues m, giving up once ctx is done
func (w *worker) send(ctx context.Context, m message) bool {
	select {
	case w.inbox <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

type activeScan struct {
	generation uint64
	cancel     context.CancelFunc
	done       <-chan struct{}
}

// Engine is the venue presence state machine.
type Engine struct {
	registry      *venue.Registry
	geofences     Registrar
	beacons       BeaconScanner
	logger        *logrus.Logger
	inboxSize     int
	nearThreshold float64
	networkUUID   *uuid.UUID

	// lifeMu serialises StartMonitoring and StopMonitoring
	lifeMu  sync.Mutex
	current atomic.Pointer[worker]

	// owned by the worker goroutine while running, by StopMonitoring otherwise
	state      Presence
	scan       *activeScan
	generation uint64
	wasNear    bool

	snapMu   sync.RWMutex
	snapshot Presence
	subs     map[*Subscription]struct{}
}

// NewEngine creates a stopped engine. A nil registry gets a fresh one.
func NewEngine(registry *venue.Registry, geofences Registrar, beacons BeaconScanner, opts ...Option) *Engine {
	if registry == nil {
		registry = venue.NewRegistry()
	}
	e := &Engine{
		registry:      registry,
		geofences:     geofences,
		beacons:       beacons,
		logger:        logrus.New(),
		inboxSize:     DefaultInboxSize,
		nearThreshold: beacon.NearThresholdMeters,
		subs:          make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's venue registry
func (e *Engine) Registry() *venue.Registry {
	return e.registry
}

// NearThreshold returns the near-beacon distance in meters
func (e *Engine) NearThreshold() float64 {
	return e.nearThreshold
}

// Running reports whether monitoring is active
func (e *Engine) Running() bool {
	return e.current.Load() != nil
}

// StartMonitoring loads venues into the registry, registers their geofences
// and starts the worker. Calling it while running replaces the monitored set.
func (e *Engine) StartMonitoring(ctx context.Context, venues []venue.Venue) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if err := e.registry.Replace(venues); err != nil {
		return fmt.Errorf("loading venues: %w", err)
	}

	w := e.current.Load()
	fresh := w == nil
	if fresh {
		w = e.startWorker()
	} else {
		if err := e.geofences.Unregister(ctx); err != nil {
			e.logger.WithError(err).Warn("Failed to remove previous geofences")
		}
		w.send(w.ctx, message{kind: msgRegistryReloaded})
	}

	if err := e.geofences.Register(ctx, e.registry); err != nil {
		if fresh {
			e.stopWorker(w)
			e.registry.Clear()
		} else {
			// the previous set is already gone, so no EXIT can end the current venue
			w.send(w.ctx, message{kind: msgRegistrationLost})
		}
		return fmt.Errorf("registering geofences: %w", err)
	}

	e.logger.WithField("venues", e.registry.Len()).Info("Venue monitoring started")
	e.geofences.InitialTransitions(ctx, e.registry)
	return nil
}

// StopMonitoring cancels the active scan, removes all geofences, clears the
// registry and resets presence to the empty default. It is idempotent; a
// geofence removal that failed is retried on the next call.
func (e *Engine) StopMonitoring(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	w := e.current.Load()
	if w == nil {
		// retries a removal that failed on an earlier stop
		return e.geofences.Unregister(ctx)
	}
	e.stopWorker(w)

	e.stopScan()
	err := e.geofences.Unregister(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to remove geofences")
	}
	e.registry.Clear()
	e.state = Presence{}
	e.wasNear = false
	e.publish()

	e.logger.Info("Venue monitoring stopped")
	return err
}

// HandleTransition queues a geofence transition. Transitions arriving while
// monitoring is stopped are dropped.
func (e *Engine) HandleTransition(t geofence.Transition) {
	w := e.current.Load()
	if w == nil {
		e.logger.WithFields(logrus.Fields{
			"venue_id": t.VenueID,
			"kind":     t.Kind.String(),
		}).Debug("Monitoring stopped, dropping transition")
		return
	}
	w.send(w.ctx, message{kind: msgTransition, transition: t})
}

func (e *Engine) startWorker() *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		inbox:  make(chan message, e.inboxSize),
		ctx:    ctx,
		cancel: cancel,
	}
	w.done = groutine.Go(ctx, "presence-engine", func(ctx context.Context) {
		e.run(ctx, w)
	})
	e.current.Store(w)
	return w
}

func (e *Engine) stopWorker(w *worker) {
	e.current.Store(nil)
	w.cancel()
	<-w.done
}

func (e *Engine) run(ctx context.Context, w *worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-w.inbox:
			e.handle(ctx, w, m)
		}
	}
}

func (e *Engine) handle(ctx context.Context, w *worker, m message) {
	switch m.kind {
	case msgTransition:
		e.onTransition(ctx, w, m.transition)
	case msgObservation:
		e.onObservation(m.generation, m.observation)
	case msgScanEnded:
		e.onScanEnded(m.generation, m.err)
	case msgRegistryReloaded:
		e.onRegistryReloaded()
	case msgRegistrationLost:
		e.leaveVenue("Geofence registration failed, leaving current venue")
	}
}

func (e *Engine) onTransition(ctx context.Context, w *worker, t geofence.Transition) {
	log := e.logger.WithFields(logrus.Fields{
		"venue_id": t.VenueID,
		"kind":     t.Kind.String(),
	})

	switch t.Kind {
	case geofence.Enter:
		if e.state.InVenue() && e.state.VenueID == t.VenueID {
			e.state.LastEvent = transitionEvent(t)
			if e.scan == nil {
				log.Info("Re-entered venue, restarting beacon scan")
				e.startScan(ctx, w)
			}
			e.publish()
			return
		}

		if e.state.InVenue() {
			log.WithField("previous_venue_id", e.state.VenueID).Info("Switching venue")
			e.stopScan()
		}

		e.state.Venue = nil
		if v, ok := e.registry.Get(t.VenueID); ok {
			e.state.Venue = &v
		} else {
			log.WithError(geofence.ErrUnknownVenue).Warn("Entered venue missing from registry")
		}
		e.state.VenueID = t.VenueID
		e.state.NearestBeaconDistance = nil
		e.state.LastEvent = transitionEvent(t)
		e.wasNear = false
		e.startScan(ctx, w)
		log.Info("Entered venue")
		e.publish()

	case geofence.Exit:
		if e.state.InVenue() && e.state.VenueID != t.VenueID {
			log.WithField("current_venue_id", e.state.VenueID).Warn("Exit for a different venue, leaving current venue")
		}
		e.stopScan()
		e.state = Presence{LastEvent: transitionEvent(t)}
		e.wasNear = false
		log.Info("Exited venue")
		e.publish()

	case geofence.Dwell:
		log.Debug("Dwelling in venue")

	default:
		log.WithError(geofence.ErrMalformedDelivery).Warn("Ignoring transition of unknown kind")
	}
}

func (e *Engine) onObservation(generation uint64, obs beacon.Observation) {
	if !e.state.InVenue() || e.scan == nil || e.scan.generation != generation {
		e.logger.WithField("generation", generation).Debug("Discarding observation from a stopped scan")
		return
	}

	e.state.LastEvent = observationEvent(obs)
	if obs.HasDistance() {
		if e.state.NearestBeaconDistance == nil || obs.Distance < *e.state.NearestBeaconDistance {
			d := obs.Distance
			e.state.NearestBeaconDistance = &d
		}
	}

	if !e.wasNear && e.state.IsNear(e.nearThreshold) {
		e.wasNear = true
		e.logger.WithFields(logrus.Fields{
			"venue_id": e.state.VenueID,
			"distance": *e.state.NearestBeaconDistance,
		}).Info("Near venue beacon")
	}
	e.publish()
}

func (e *Engine) onScanEnded(generation uint64, err error) {
	if e.scan == nil || e.scan.generation != generation {
		return
	}
	<-e.scan.done
	e.scan = nil
	e.state.BeaconScanning = false

	log := e.logger.WithField("venue_id", e.state.VenueID)
	switch {
	case errors.Is(err, device.ErrScanFailed):
		log.WithError(err).Warn("Beacon scan failed, continuing with geofence presence only")
	case err != nil:
		log.WithError(err).Warn("Beacon scan ended with error")
	default:
		log.Info("Beacon scanning unavailable, continuing with geofence presence only")
	}
	e.publish()
}

// onRegistryReloaded keeps the current venue in step with a replaced registry
func (e *Engine) onRegistryReloaded() {
	if !e.state.InVenue() {
		return
	}
	if v, ok := e.registry.Get(e.state.VenueID); ok {
		e.state.Venue = &v
		e.publish()
		return
	}

	e.leaveVenue("Current venue no longer monitored, leaving")
}

// leaveVenue goes Idle without a transition, keeping the last event
func (e *Engine) leaveVenue(reason string) {
	if !e.state.InVenue() {
		return
	}
	e.logger.WithField("venue_id", e.state.VenueID).Warn(reason)
	e.stopScan()
	last := e.state.LastEvent
	e.state = Presence{LastEvent: last}
	e.wasNear = false
	e.publish()
}

func (e *Engine) startScan(ctx context.Context, w *worker) {
	e.generation++
	generation := e.generation
	opts := e.scanOptions()

	scanCtx, cancel := context.WithCancel(ctx)
	done := groutine.Go(scanCtx, "beacon-scan", func(ctx context.Context) {
		err := e.beacons.Scan(ctx, opts, func(obs beacon.Observation) {
			w.send(ctx, message{kind: msgObservation, observation: obs, generation: generation})
		})
		w.send(ctx, message{kind: msgScanEnded, generation: generation, err: err})
	})

	e.scan = &activeScan{generation: generation, cancel: cancel, done: done}
	e.state.BeaconScanning = true
}

// stopScan cancels the active scan and waits for the platform scan to be released
func (e *Engine) stopScan() {
	if e.scan == nil {
		return
	}
	e.scan.cancel()
	<-e.scan.done
	e.scan = nil
	e.state.BeaconScanning = false
}

func (e *Engine) scanOptions() *scanner.ScanOptions {
	opts := scanner.DefaultScanOptions()
	if v := e.state.Venue; v != nil && v.Beacon != nil {
		id := v.Beacon.ProximityUUID
		opts.TargetUUID = &id
		opts.TargetMajor = v.Beacon.Major
		return opts
	}
	opts.TargetUUID = e.networkUUID
	return opts
}
