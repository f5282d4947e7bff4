package main

import (
	"errors"
	"os"
	"strings"

	"github.com/srg/venuesense/geofence"
	"github.com/srg/venuesense/internal/device"
	"github.com/srg/venuesense/internal/mqttpub"
	"github.com/srg/venuesense/venue"
)

// Command-level errors
var (
	// ErrNoVenues indicates the venues file loaded but lists nothing to monitor.
	ErrNoVenues = errors.New("no venues configured")
)

// FormatUserError turns an error chain into a one-line hint for the terminal.
func FormatUserError(err error) string {
	msg := err.Error()
	var hint string

	switch {
	case errors.Is(err, os.ErrNotExist):
		hint = "check the file path"
	case errors.Is(err, venue.ErrInvalidVenue), errors.Is(err, venue.ErrDuplicateID):
		hint = "fix the venues file"
	case errors.Is(err, ErrNoVenues):
		hint = "add at least one venue to the venues file"
	case errors.Is(err, geofence.ErrUnknownVenue):
		hint = "the venue is not in the registry"
	case errors.Is(err, device.ErrScanFailed):
		hint = "the BLE adapter reported a failure"
	case errors.Is(err, mqttpub.ErrConnectionFailed):
		hint = "check --mqtt-broker and that the broker is reachable"
	}

	if hint == "" || strings.Contains(msg, hint) {
		return msg
	}
	return msg + " (" + hint + ")"
}
