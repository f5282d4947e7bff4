package geofence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is a geofence transition kind. Kinds are bit flags so that a set of
// them can form a registration's transition mask.
type Kind uint8

const (
	Enter Kind = 1 << iota
	Exit
	Dwell
)

// AllKinds is the default transition mask
const AllKinds = Enter | Exit | Dwell

const (
	DefaultRadiusMeters = 200.0
	DefaultExpiration   = 12 * time.Hour
	DefaultLoiterDelay  = 5 * time.Minute
)

var (
	ErrUnknownVenue      = errors.New("venue not in registry")
	ErrMalformedDelivery = errors.New("malformed geofence delivery")
	ErrNoLocation        = errors.New("no location available")
)

// String returns the kind name; masks are joined with "|"
func (k Kind) String() string {
	switch k {
	case Enter:
		return "ENTER"
	case Exit:
		return "EXIT"
	case Dwell:
		return "DWELL"
	case 0:
		return "NONE"
	}
	var parts []string
	for _, single := range []Kind{Enter, Exit, Dwell} {
		if k&single != 0 {
			parts = append(parts, single.String())
		}
	}
	if k&^AllKinds != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(k&^AllKinds)))
	}
	return strings.Join(parts, "|")
}

// Valid reports whether k is exactly one known kind
func (k Kind) Valid() bool {
	return k == Enter || k == Exit || k == Dwell
}

// Has reports whether the mask includes kind
func (k Kind) Has(kind Kind) bool {
	return k&kind != 0
}

// MarshalJSON encodes the kind by name
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts a single kind name
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseKind(name)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses ENTER, EXIT or DWELL (case-insensitive)
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ENTER":
		return Enter, nil
	case "EXIT":
		return Exit, nil
	case "DWELL":
		return Dwell, nil
	}
	return 0, fmt.Errorf("unknown transition kind %q", s)
}

// Transition is one geofence crossing for one venue
type Transition struct {
	VenueID   string    `json:"venue_id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Request is a geofence registration handed to the platform
type Request struct {
	VenueID        string
	Latitude       float64
	Longitude      float64
	RadiusMeters   float64
	Expiration     time.Duration
	TransitionMask Kind
	LoiterDelay    time.Duration
}

// Location is a position fix
type Location struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Delivery is a raw platform transition callback.
// A nonzero Status is a platform error; VenueIDs may name several venues.
type Delivery struct {
	Status    int
	Kind      Kind
	VenueIDs  []string
	Timestamp time.Time
}

// Validate checks a delivery before it is split into transitions
func (d *Delivery) Validate() error {
	switch {
	case d == nil:
		return fmt.Errorf("%w: nil payload", ErrMalformedDelivery)
	case d.Status != 0:
		return fmt.Errorf("%w: status %d", ErrMalformedDelivery, d.Status)
	case !d.Kind.Valid():
		return fmt.Errorf("%w: kind %s", ErrMalformedDelivery, d.Kind)
	case len(d.VenueIDs) == 0:
		return fmt.Errorf("%w: no triggering venues", ErrMalformedDelivery)
	}
	return nil
}
