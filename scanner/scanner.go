package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/venuesense/internal/beacon"
	"github.com/srg/venuesense/internal/device"
	goble "github.com/srg/venuesense/internal/device/go-ble"
)

// ScanOptions configures one beacon scanning session
type ScanOptions struct {
	// TargetUUID drops observations from other beacon networks when set.
	TargetUUID *uuid.UUID
	// TargetMajor additionally narrows the network to one venue's major.
	TargetMajor *uint16
	// AllowDuplicates keeps every advertisement (always-on, low-latency reporting).
	AllowDuplicates bool
	// BufferSize bounds the Observe stream; the oldest observation is dropped when full.
	BufferSize int
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		AllowDuplicates: true,
		BufferSize:      64,
	}
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDeviceFactory replaces the platform scanner constructor
func WithDeviceFactory(factory func() (device.ScanningDevice, error)) Option {
	return func(s *Session) {
		s.newDevice = factory
	}
}

// WithPermissions injects the host permission checker
func WithPermissions(p device.PermissionChecker) Option {
	return func(s *Session) {
		s.permissions = p
	}
}

// WithRadio injects the host radio state
func WithRadio(r device.RadioState) Option {
	return func(s *Session) {
		s.radio = r
	}
}

// WithClock overrides the observation timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session owns BLE scans and translates advertisements into beacon observations.
//
// A Session may run one scan at a time per caller; the presence engine is the
// only caller in production.
type Session struct {
	logger      *logrus.Logger
	newDevice   func() (device.ScanningDevice, error)
	permissions device.PermissionChecker
	radio       device.RadioState
	now         func() time.Time
}

// NewSession creates a new beacon scanning session
func NewSession(opts ...Option) *Session {
	s := &Session{
		logger:      logrus.New(),
		newDevice:   goble.NewScanner,
		permissions: device.AllPermissions(),
		radio:       device.RadioOn,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs one continuous scan and calls handler for every matching observation.
// It blocks until ctx is done or the platform fails.
//
// Missing hardware or permission is not an error: Scan returns nil without
// emitting anything. A hard platform failure returns *device.PlatformScanError.
// The platform scan handle is always stopped before Scan returns.
func (s *Session) Scan(ctx context.Context, opts *ScanOptions, handler func(beacon.Observation)) error {
	if opts == nil {
		opts = DefaultScanOptions()
	}

	if !s.available() {
		return nil
	}

	dev, err := s.newDevice()
	if err != nil {
		s.logger.WithError(err).Warn("BLE scanner unavailable, continuing without beacons")
		return nil
	}
	defer s.stopDevice(dev)

	fields := logrus.Fields{"allow_duplicates": opts.AllowDuplicates}
	if opts.TargetUUID != nil {
		fields["target_uuid"] = opts.TargetUUID.String()
	}
	s.logger.WithFields(fields).Info("Starting beacon scan...")

	err = dev.Scan(ctx, opts.AllowDuplicates, func(adv device.Advertisement) {
		s.handleAdvertisement(adv, opts, handler)
	})

	switch {
	case ctx.Err() != nil || err == nil:
		s.logger.Debug("Beacon scan stopped")
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	case device.IsUnavailable(err):
		s.logger.WithError(err).Warn("Beacon scan lost radio or permission, closing silently")
		return nil
	}

	var scanErr *device.PlatformScanError
	if !errors.As(err, &scanErr) {
		scanErr = &device.PlatformScanError{Code: 1, Err: err}
	}
	s.logger.WithError(scanErr).WithField("code", scanErr.Code).Error("Beacon scan failed")
	return scanErr
}

// available checks radio and permission preconditions
func (s *Session) available() bool {
	if s.radio != nil && (!s.radio.Present() || !s.radio.Enabled()) {
		s.logger.WithError(device.ErrBluetoothOff).Info("Beacon scanning skipped")
		return false
	}
	if s.permissions != nil && !s.permissions.Granted(device.PermissionBluetoothScan) {
		s.logger.WithError(device.ErrPermissionDenied).Info("Beacon scanning skipped")
		return false
	}
	return true
}

// stopDevice releases the platform scan; failures are logged, never returned
func (s *Session) stopDevice(dev device.ScanningDevice) {
	err := dev.Stop()
	switch {
	case err == nil:
	case errors.Is(err, device.ErrPermissionDenied):
		s.logger.WithError(err).Warn("Permission revoked while stopping beacon scan")
	default:
		s.logger.WithError(err).Warn("Failed to stop beacon scan")
	}
}

// handleAdvertisement decodes iBeacon frames and applies the target filters
func (s *Session) handleAdvertisement(adv device.Advertisement, opts *ScanOptions, handler func(beacon.Observation)) {
	raw := adv.ManufacturerData()
	if !beacon.HasIBeaconPrefix(raw) {
		return
	}

	obs, ok, err := beacon.ParseManufacturerData(beacon.UnknownCompanyID, raw, adv.RSSI(), s.now())
	if err != nil || !ok {
		return
	}

	if opts.TargetUUID != nil && obs.ProximityUUID != *opts.TargetUUID {
		return
	}
	if opts.TargetMajor != nil && obs.Major != *opts.TargetMajor {
		return
	}

	s.logger.WithFields(logrus.Fields{
		"address":  adv.Addr(),
		"major":    obs.Major,
		"minor":    obs.Minor,
		"rssi":     obs.RSSI,
		"distance": obs.Distance,
	}).Debug("Beacon observed")

	handler(obs)
}
