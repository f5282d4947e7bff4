package presence

import (
	"github.com/srg/venuesense/geofence"
	"github.com/srg/venuesense/internal/beacon"
	"github.com/srg/venuesense/venue"
)

// Event is the last input that changed presence: exactly one of
// Transition or Observation is set, or neither for the empty default.
type Event struct {
	Transition  *geofence.Transition `json:"transition,omitempty"`
	Observation *beacon.Observation  `json:"observation,omitempty"`
}

// IsZero reports whether no event has been recorded
func (e Event) IsZero() bool {
	return e.Transition == nil && e.Observation == nil
}

func transitionEvent(t geofence.Transition) Event {
	return Event{Transition: &t}
}

func observationEvent(o beacon.Observation) Event {
	return Event{Observation: &o}
}

// Presence is a venue presence snapshot.
//
// VenueID is set while inside a venue even when the venue is not in the
// registry; Venue is nil in that case. BeaconScanning implies VenueID is set,
// and NearestBeaconDistance is nil whenever VenueID is empty.
type Presence struct {
	Venue                 *venue.Venue `json:"venue,omitempty"`
	VenueID               string       `json:"venue_id,omitempty"`
	LastEvent             Event        `json:"last_event"`
	BeaconScanning        bool         `json:"beacon_scanning"`
	NearestBeaconDistance *float64     `json:"nearest_beacon_distance,omitempty"`
}

// InVenue reports whether a venue is current
func (p Presence) InVenue() bool {
	return p.VenueID != ""
}

// IsNear reports whether a beacon closer than threshold meters was seen since entry
func (p Presence) IsNear(threshold float64) bool {
	return p.NearestBeaconDistance != nil && *p.NearestBeaconDistance <= threshold
}

// clone deep-copies the snapshot so consumers never share the engine's pointers
func (p Presence) clone() Presence {
	out := p
	if p.Venue != nil {
		v := *p.Venue
		if p.Venue.Beacon != nil {
			b := *p.Venue.Beacon
			if b.Major != nil {
				major := *b.Major
				b.Major = &major
			}
			v.Beacon = &b
		}
		out.Venue = &v
	}
	if p.NearestBeaconDistance != nil {
		d := *p.NearestBeaconDistance
		out.NearestBeaconDistance = &d
	}
	if p.LastEvent.Transition != nil {
		t := *p.LastEvent.Transition
		out.LastEvent.Transition = &t
	}
	if p.LastEvent.Observation != nil {
		o := *p.LastEvent.Observation
		out.LastEvent.Observation = &o
	}
	return out
}
