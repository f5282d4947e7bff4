package presence_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/srg/venuesense/geofence"
	"github.com/srg/venuesense/internal/beacon"
	"github.com/srg/venuesense/internal/device"
	"github.com/srg/venuesense/internal/testutils"
	"github.com/srg/venuesense/internal/testutils/mocks"
	"github.com/srg/venuesense/presence"
	"github.com/srg/venuesense/scanner"
	"github.com/srg/venuesense/venue"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const waitTimeout = 2 * time.Second

var (
	stadiumUUID = uuid.MustParse("f7826da6-4fa2-4e98-8024-bc5b71e0893e")
	start       = time.Date(2026, 10, 4, 18, 0, 0, 0, time.UTC)
)

// fakeScanner records scan lifecycle calls. Each Scan blocks until its
// context is cancelled or a failure is injected with Fail.
type fakeScanner struct {
	mu       sync.Mutex
	starts   int
	stops    int
	options  []*scanner.ScanOptions
	handlers chan func(beacon.Observation)
	failures chan error
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{
		handlers: make(chan func(beacon.Observation), 16),
		failures: make(chan error, 1),
	}
}

func (f *fakeScanner) Scan(ctx context.Context, opts *scanner.ScanOptions, handler func(beacon.Observation)) error {
	f.mu.Lock()
	f.starts++
	f.options = append(f.options, opts)
	f.mu.Unlock()

	f.handlers <- handler

	select {
	case <-ctx.Done():
		f.mu.Lock()
		f.stops++
		f.mu.Unlock()
		return nil
	case err := <-f.failures:
		return err
	}
}

func (f *fakeScanner) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeScanner) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeScanner) LastOptions() *scanner.ScanOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.options) == 0 {
		return nil
	}
	return f.options[len(f.options)-1]
}

type EngineTestSuite struct {
	suite.Suite

	helper    *testutils.TestHelper
	registrar *mocks.MockRegistrar
	scans     *fakeScanner
	engine    *presence.Engine
	venues    []venue.Venue
}

func (suite *EngineTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.registrar = &mocks.MockRegistrar{}
	suite.registrar.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	suite.registrar.On("Unregister", mock.Anything).Return(nil)
	suite.registrar.On("InitialTransitions", mock.Anything, mock.Anything).Maybe()

	suite.scans = newFakeScanner()
	suite.engine = presence.NewEngine(nil, suite.registrar, suite.scans,
		presence.WithLogger(suite.helper.Logger),
		presence.WithInboxSize(8),
	)

	major := uint16(100)
	suite.venues = []venue.Venue{
		{
			ID: "v1", Name: "Stadium", Latitude: 40.4468, Longitude: -80.0158,
			Beacon: &venue.BeaconIdentity{ProximityUUID: stadiumUUID, Major: &major},
		},
		{ID: "v2", Name: "Arena", Latitude: 40.4395, Longitude: -79.9892},
	}
}

func (suite *EngineTestSuite) TearDownTest() {
	_ = suite.engine.StopMonitoring(context.Background())
}

func (suite *EngineTestSuite) startMonitoring() {
	suite.Require().NoError(suite.engine.StartMonitoring(context.Background(), suite.venues))
}

func (suite *EngineTestSuite) transition(id string, kind geofence.Kind, offset time.Duration) geofence.Transition {
	t := geofence.Transition{VenueID: id, Kind: kind, Timestamp: start.Add(offset)}
	suite.engine.HandleTransition(t)
	return t
}

// waitFor blocks until the current snapshot satisfies cond
func (suite *EngineTestSuite) waitFor(msg string, cond func(p presence.Presence) bool) presence.Presence {
	var last presence.Presence
	suite.Require().Eventually(func() bool {
		last = suite.engine.Current()
		return cond(last)
	}, waitTimeout, 5*time.Millisecond, msg)
	return last
}

func (suite *EngineTestSuite) waitForEvent(t geofence.Transition) presence.Presence {
	return suite.waitFor("transition "+t.Kind.String()+" "+t.VenueID, func(p presence.Presence) bool {
		return p.LastEvent.Transition != nil && *p.LastEvent.Transition == t
	})
}

// nextHandler returns the observation callback of the most recently started scan
func (suite *EngineTestSuite) nextHandler() func(beacon.Observation) {
	select {
	case h := <-suite.scans.handlers:
		return h
	case <-time.After(waitTimeout):
		suite.FailNow("scan was not started")
		return nil
	}
}

func observation(distance float64, offset time.Duration) beacon.Observation {
	return beacon.Observation{
		ProximityUUID: stadiumUUID,
		Major:         100,
		Minor:         7,
		RSSI:          -75,
		TxPower:       -59,
		Distance:      distance,
		Timestamp:     start.Add(offset),
	}
}

func (suite *EngineTestSuite) TestInitialPresenceIsEmpty() {
	p := suite.engine.Current()

	suite.False(p.InVenue())
	suite.Nil(p.Venue)
	suite.False(p.BeaconScanning)
	suite.Nil(p.NearestBeaconDistance)
	suite.True(p.LastEvent.IsZero())
}

func (suite *EngineTestSuite) TestEnterThenExit() {
	// GOAL: Verify the basic Idle → InVenue → Idle cycle
	//
	// TEST SCENARIO: ENTER(v1) then EXIT(v1) → {v1, scanning} then {none, not scanning, no distance}
	suite.startMonitoring()

	enter := suite.transition("v1", geofence.Enter, 0)
	p := suite.waitForEvent(enter)

	suite.Require().NotNil(p.Venue)
	suite.Equal("Stadium", p.Venue.Name)
	suite.Equal("v1", p.VenueID)
	suite.True(p.BeaconScanning)

	h := suite.nextHandler()
	h(observation(3.5, time.Second))
	suite.waitFor("observation", func(p presence.Presence) bool { return p.NearestBeaconDistance != nil })

	exit := suite.transition("v1", geofence.Exit, time.Minute)
	p = suite.waitForEvent(exit)

	suite.Nil(p.Venue)
	suite.Empty(p.VenueID)
	suite.False(p.BeaconScanning)
	suite.Nil(p.NearestBeaconDistance)
	suite.Equal(1, suite.scans.Stops(), "EXIT MUST stop the scan")
}

func (suite *EngineTestSuite) TestRepeatedEnterStartsOneScan() {
	suite.startMonitoring()

	suite.transition("v1", geofence.Enter, 0)
	second := suite.transition("v1", geofence.Enter, time.Second)
	p := suite.waitForEvent(second)

	suite.True(p.BeaconScanning)
	suite.Equal(1, suite.scans.Starts(), "repeated ENTER MUST NOT start a second scan")
	suite.Equal(0, suite.scans.Stops())
}

func (suite *EngineTestSuite) TestNearestDistanceIsMinimum() {
	// GOAL: Verify the observation self-loop keeps the minimum distance
	//
	// TEST SCENARIO: ENTER(v1), observations 12.0, 4.0, 9.0, unknown → nearest 4.0, last event the latest observation
	suite.startMonitoring()
	suite.transition("v1", geofence.Enter, 0)
	h := suite.nextHandler()

	h(observation(12.0, 1*time.Second))
	h(observation(4.0, 2*time.Second))
	p := suite.waitFor("nearest 4.0", func(p presence.Presence) bool {
		return p.NearestBeaconDistance != nil && *p.NearestBeaconDistance == 4.0
	})
	suite.True(p.IsNear(beacon.NearThresholdMeters))

	h(observation(9.0, 3*time.Second))
	h(observation(beacon.UnknownDistance, 4*time.Second))
	p = suite.waitFor("unknown distance recorded", func(p presence.Presence) bool {
		return p.LastEvent.Observation != nil && p.LastEvent.Observation.Timestamp.Equal(start.Add(4*time.Second))
	})

	suite.Require().NotNil(p.NearestBeaconDistance)
	suite.Equal(4.0, *p.NearestBeaconDistance)
	suite.Nil(p.LastEvent.Transition, "event MUST carry exactly one source")
}

func (suite *EngineTestSuite) TestStopMonitoringWhileInVenue() {
	// GOAL: Verify stop resets presence and releases scan and geofences exactly once
	//
	// TEST SCENARIO: ENTER(v1), StopMonitoring twice → default presence, one scan stop, second stop only retries geofence removal
	suite.startMonitoring()
	suite.waitForEvent(suite.transition("v1", geofence.Enter, 0))
	suite.nextHandler()

	sub := suite.engine.Subscribe()
	defer sub.Close()

	suite.Require().NoError(suite.engine.StopMonitoring(context.Background()))
	suite.Require().NoError(suite.engine.StopMonitoring(context.Background()))

	p := suite.engine.Current()
	suite.False(p.InVenue())
	suite.False(p.BeaconScanning)
	suite.Nil(p.NearestBeaconDistance)
	suite.True(p.LastEvent.IsZero())
	suite.Equal(0, suite.engine.Registry().Len(), "monitored venues MUST be cleared")
	suite.False(suite.engine.Running())

	suite.Equal(1, suite.scans.Stops())
	suite.registrar.AssertNumberOfCalls(suite.T(), "Unregister", 2)

	latest := drainLatest(sub)
	suite.False(latest.InVenue(), "subscribers MUST see the reset")
}

func (suite *EngineTestSuite) TestScanFailureKeepsVenue() {
	// GOAL: Verify a platform scan failure degrades to geofence-only presence
	//
	// TEST SCENARIO: ENTER(v1), scan fails with code 2 → venue kept, scanning false, later re-ENTER restarts the scan
	suite.startMonitoring()
	suite.waitForEvent(suite.transition("v1", geofence.Enter, 0))
	suite.nextHandler()

	suite.scans.failures <- &device.PlatformScanError{Code: 2}
	p := suite.waitFor("scanning stopped", func(p presence.Presence) bool { return !p.BeaconScanning })

	suite.Equal("v1", p.VenueID)
	suite.Require().NotNil(p.Venue)
	suite.Equal("Stadium", p.Venue.Name)

	again := suite.transition("v1", geofence.Enter, time.Minute)
	p = suite.waitForEvent(again)
	suite.True(p.BeaconScanning)
	suite.Equal(2, suite.scans.Starts())
}

func (suite *EngineTestSuite) TestUnknownVenueIsTolerated() {
	suite.startMonitoring()

	p := suite.waitForEvent(suite.transition("ghost", geofence.Enter, 0))

	suite.Nil(p.Venue)
	suite.Equal("ghost", p.VenueID)
	suite.True(p.BeaconScanning)
	suite.Nil(suite.scanOptions().TargetUUID, "no beacon identity means an unfiltered scan")
}

func (suite *EngineTestSuite) TestScanTargetsVenueBeacon() {
	suite.startMonitoring()
	suite.waitForEvent(suite.transition("v1", geofence.Enter, 0))
	suite.nextHandler()

	opts := suite.scanOptions()
	suite.Require().NotNil(opts.TargetUUID)
	suite.Equal(stadiumUUID, *opts.TargetUUID)
	suite.Require().NotNil(opts.TargetMajor)
	suite.Equal(uint16(100), *opts.TargetMajor)
	suite.True(opts.AllowDuplicates)
}

func (suite *EngineTestSuite) TestExitForOtherVenueIsHonored() {
	suite.startMonitoring()
	suite.waitForEvent(suite.transition("v1", geofence.Enter, 0))
	suite.nextHandler()

	p := suite.waitForEvent(suite.transition("v2", geofence.Exit, time.Second))

	suite.False(p.InVenue(), "a stale EXIT MUST NOT leave scanning running")
	suite.False(p.BeaconScanning)
	suite.Equal(1, suite.scans.Stops())
}

func (suite *EngineTestSuite) TestEnterOtherVenueSwitches() {
	suite.startMonitoring()
	suite.transition("v1", geofence.Enter, 0)
	h1 := suite.nextHandler()
	h1(observation(2.0, time.Second))
	suite.waitFor("near v1", func(p presence.Presence) bool { return p.NearestBeaconDistance != nil })

	p := suite.waitForEvent(suite.transition("v2", geofence.Enter, time.Minute))
	h2 := suite.nextHandler()

	suite.Equal("v2", p.VenueID)
	suite.Nil(p.NearestBeaconDistance, "distance MUST reset on venue switch")
	suite.Equal(2, suite.scans.Starts())
	suite.Equal(1, suite.scans.Stops())

	// the superseded scan's callback is ignored, the new one counts
	h1(observation(0.5, 2*time.Minute))
	h2(observation(6.0, 3*time.Minute))
	p = suite.waitFor("v2 observation", func(p presence.Presence) bool { return p.NearestBeaconDistance != nil })
	suite.Equal(6.0, *p.NearestBeaconDistance)
}

func (suite *EngineTestSuite) TestObservationsWhileIdleAreDiscarded() {
	suite.startMonitoring()
	suite.transition("v1", geofence.Enter, 0)
	h := suite.nextHandler()

	exit := suite.transition("v1", geofence.Exit, time.Second)
	suite.waitForEvent(exit)
	h(observation(1.0, 2*time.Second))

	// the inbox is ordered, so the observation is handled before this ENTER
	enter := suite.transition("v2", geofence.Enter, 4*time.Second)
	p := suite.waitForEvent(enter)

	suite.Nil(p.NearestBeaconDistance)
}

func (suite *EngineTestSuite) TestDwellHasNoEffect() {
	suite.startMonitoring()
	enter := suite.transition("v1", geofence.Enter, 0)
	suite.waitForEvent(enter)
	suite.transition("v1", geofence.Dwell, time.Minute)
	exitOther := suite.transition("v2", geofence.Exit, 2*time.Minute)

	// wait for the EXIT so the DWELL before it is known to be processed
	suite.waitForEvent(exitOther)

	suite.Equal(1, suite.scans.Starts())
}

func (suite *EngineTestSuite) TestTransitionsWhileStoppedAreDropped() {
	suite.transition("v1", geofence.Enter, 0)

	suite.Never(func() bool {
		return suite.engine.Current().InVenue()
	}, 100*time.Millisecond, 10*time.Millisecond)
	suite.Equal(0, suite.scans.Starts())
}

func (suite *EngineTestSuite) TestStartMonitoringRegistersVenues() {
	suite.startMonitoring()

	suite.registrar.AssertCalled(suite.T(), "Register", mock.Anything, suite.engine.Registry(), []string(nil))
	suite.registrar.AssertCalled(suite.T(), "InitialTransitions", mock.Anything, suite.engine.Registry())
	suite.Equal([]string{"v1", "v2"}, suite.engine.Registry().IDs())
	suite.True(suite.engine.Running())
}

func (suite *EngineTestSuite) TestStartMonitoringRejectsInvalidVenues() {
	err := suite.engine.StartMonitoring(context.Background(), []venue.Venue{{ID: ""}})

	suite.ErrorIs(err, venue.ErrInvalidVenue)
	suite.False(suite.engine.Running())
	suite.registrar.AssertNotCalled(suite.T(), "Register", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *EngineTestSuite) TestStartMonitoringRegistrationFailure() {
	registrar := &mocks.MockRegistrar{}
	registrar.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("permission denied"))
	registrar.On("Unregister", mock.Anything).Return(nil)
	engine := presence.NewEngine(nil, registrar, suite.scans, presence.WithLogger(suite.helper.Logger))

	err := engine.StartMonitoring(context.Background(), suite.venues)

	suite.Error(err)
	suite.False(engine.Running())
	suite.Equal(0, engine.Registry().Len())
	suite.NoError(engine.StopMonitoring(context.Background()))
	suite.Equal(0, suite.scans.Starts())
}

// newSourceEngine wires an engine to a real geofence source over service
func (suite *EngineTestSuite) newSourceEngine(service *mocks.MockLocationService) (*presence.Engine, *geofence.Source) {
	service.On("LastKnownLocation", mock.Anything).Return(geofence.Location{}, geofence.ErrNoLocation).Maybe()

	source := geofence.NewSource(service, geofence.WithLogger(suite.helper.Logger))
	engine := presence.NewEngine(nil, source, suite.scans, presence.WithLogger(suite.helper.Logger))
	source.SetHandler(engine.HandleTransition)
	return engine, source
}

func (suite *EngineTestSuite) TestRestartRegistrationFailureLeavesVenue() {
	// GOAL: Verify a failed re-registration never leaves a scan running without geofences
	//
	// TEST SCENARIO: ENTER(v1), StartMonitoring again fails at the platform → error returned, venue left, scan stopped, nothing registered
	service := &mocks.MockLocationService{}
	service.On("AddGeofences", mock.Anything, mock.Anything).Return(nil).Once()
	service.On("AddGeofences", mock.Anything, mock.Anything).Return(errors.New("platform add failed"))
	service.On("RemoveGeofences", mock.Anything, mock.Anything).Return(nil)

	engine, source := suite.newSourceEngine(service)
	defer engine.StopMonitoring(context.Background())

	suite.Require().NoError(engine.StartMonitoring(context.Background(), suite.venues))
	engine.HandleTransition(geofence.Transition{VenueID: "v1", Kind: geofence.Enter, Timestamp: start})
	suite.Require().Eventually(func() bool {
		return engine.Current().BeaconScanning
	}, waitTimeout, 5*time.Millisecond)
	suite.nextHandler()

	err := engine.StartMonitoring(context.Background(), suite.venues)
	suite.ErrorContains(err, "platform add failed")

	suite.Eventually(func() bool {
		p := engine.Current()
		return !p.InVenue() && !p.BeaconScanning
	}, waitTimeout, 5*time.Millisecond, "venue MUST be left when no geofence can report EXIT")

	suite.Empty(source.Registered())
	suite.Equal(1, suite.scans.Stops(), "scan MUST be stopped")
	suite.True(engine.Running(), "engine MUST stay up for the next reload")
}

func (suite *EngineTestSuite) TestStopMonitoringRetriesFailedRemoval() {
	// GOAL: Verify a failed geofence removal is retried by the next stop
	//
	// TEST SCENARIO: platform removal fails once → first stop reports it, second stop removes, third stop is a no-op
	service := &mocks.MockLocationService{}
	service.On("AddGeofences", mock.Anything, mock.Anything).Return(nil)
	service.On("RemoveGeofences", mock.Anything, mock.Anything).Return(errors.New("platform remove failed")).Once()
	service.On("RemoveGeofences", mock.Anything, mock.Anything).Return(nil)

	engine, source := suite.newSourceEngine(service)
	suite.Require().NoError(engine.StartMonitoring(context.Background(), suite.venues))

	err := engine.StopMonitoring(context.Background())
	suite.Require().ErrorContains(err, "platform remove failed")
	suite.Equal(1, strings.Count(err.Error(), "removing geofences"), "error MUST be wrapped once")
	suite.Equal([]string{"v1", "v2"}, source.Registered())
	suite.False(engine.Running())

	suite.NoError(engine.StopMonitoring(context.Background()))
	suite.Empty(source.Registered(), "geofences MUST be removed on retry")

	suite.NoError(engine.StopMonitoring(context.Background()))
	service.AssertNumberOfCalls(suite.T(), "RemoveGeofences", 2)
}

func (suite *EngineTestSuite) TestInitialTransitionsFeedTheEngine() {
	registrar := &mocks.MockRegistrar{}
	registrar.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	registrar.On("Unregister", mock.Anything).Return(nil)

	engine := presence.NewEngine(nil, registrar, suite.scans, presence.WithLogger(suite.helper.Logger))
	defer engine.StopMonitoring(context.Background())

	registrar.On("InitialTransitions", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		engine.HandleTransition(geofence.Transition{VenueID: "v2", Kind: geofence.Enter, Timestamp: start})
	})

	suite.Require().NoError(engine.StartMonitoring(context.Background(), suite.venues))

	suite.Eventually(func() bool {
		return engine.Current().VenueID == "v2"
	}, waitTimeout, 5*time.Millisecond)
}

func (suite *EngineTestSuite) TestRestartReplacesVenues() {
	suite.startMonitoring()
	suite.waitForEvent(suite.transition("v1", geofence.Enter, 0))
	suite.nextHandler()

	suite.Require().NoError(suite.engine.StartMonitoring(context.Background(), suite.venues[1:]))

	p := suite.waitFor("left removed venue", func(p presence.Presence) bool { return !p.InVenue() })
	suite.False(p.BeaconScanning)
	suite.Equal([]string{"v2"}, suite.engine.Registry().IDs())
	suite.registrar.AssertNumberOfCalls(suite.T(), "Register", 2)
	suite.registrar.AssertNumberOfCalls(suite.T(), "Unregister", 1)
}

func (suite *EngineTestSuite) TestSubscribeDeliversLatestValue() {
	// GOAL: Verify subscribers receive the current value immediately and then only the newest one
	//
	// TEST SCENARIO: subscribe, ENTER, several observations → first value empty, final value holds nearest distance
	sub := suite.engine.Subscribe()
	defer sub.Close()

	select {
	case p := <-sub.C():
		suite.False(p.InVenue())
	case <-time.After(waitTimeout):
		suite.FailNow("subscription did not deliver the current value")
	}

	suite.startMonitoring()
	suite.transition("v1", geofence.Enter, 0)
	h := suite.nextHandler()
	for i := 10; i >= 1; i-- {
		h(observation(float64(i), time.Duration(i)*time.Second))
	}
	suite.waitFor("nearest 1.0", func(p presence.Presence) bool {
		return p.NearestBeaconDistance != nil && *p.NearestBeaconDistance == 1.0
	})

	latest := drainLatest(sub)
	suite.Require().NotNil(latest.NearestBeaconDistance)
	suite.Equal(1.0, *latest.NearestBeaconDistance)

	sub.Close()
	_, open := <-sub.C()
	suite.False(open)
}

func (suite *EngineTestSuite) TestSnapshotsAreIndependent() {
	suite.startMonitoring()
	suite.waitForEvent(suite.transition("v1", geofence.Enter, 0))

	p := suite.engine.Current()
	p.Venue.Name = "mutated"
	*p.Venue.Beacon.Major = 999

	again := suite.engine.Current()
	suite.Equal("Stadium", again.Venue.Name)
	suite.Equal(uint16(100), *again.Venue.Beacon.Major)
}

func (suite *EngineTestSuite) TestPresenceJSON() {
	suite.startMonitoring()
	suite.transition("v1", geofence.Enter, 0)
	suite.nextHandler()(observation(4.0, time.Second))

	p := suite.waitFor("observation", func(p presence.Presence) bool { return p.NearestBeaconDistance != nil })

	testutils.NewJSONAsserter(suite.T()).AssertValue(p, `{
		"venue": {"id": "v1", "name": "Stadium"},
		"venue_id": "v1",
		"beacon_scanning": true,
		"nearest_beacon_distance": 4.0,
		"last_event": {
			"observation": {
				"proximity_uuid": "f7826da6-4fa2-4e98-8024-bc5b71e0893e",
				"major": 100,
				"minor": 7,
				"distance": 4.0,
				"timestamp": "<<ANY>>"
			}
		}
	}`)
}

func (suite *EngineTestSuite) scanOptions() *scanner.ScanOptions {
	var opts *scanner.ScanOptions
	suite.Require().Eventually(func() bool {
		opts = suite.scans.LastOptions()
		return opts != nil
	}, waitTimeout, 5*time.Millisecond)
	return opts
}

// drainLatest returns the newest buffered snapshot
func drainLatest(sub *presence.Subscription) presence.Presence {
	var latest presence.Presence
	for {
		select {
		case p, ok := <-sub.C():
			if !ok {
				return latest
			}
			latest = p
		default:
			return latest
		}
	}
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
