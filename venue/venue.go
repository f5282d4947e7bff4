package venue

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// earthRadiusMeters is the mean Earth radius used for great-circle distances
const earthRadiusMeters = 6371000.0

var (
	ErrInvalidVenue  = errors.New("invalid venue")
	ErrDuplicateID   = errors.New("duplicate venue id")
	ErrVenueNotFound = errors.New("venue not found")
)

// BeaconIdentity identifies the beacon network installed at a venue.
// A nil Major matches every major under the proximity UUID.
type BeaconIdentity struct {
	ProximityUUID uuid.UUID `json:"proximity_uuid"`
	Major         *uint16   `json:"major,omitempty"`
}

// Venue is immutable reference data for one monitored location.
type Venue struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	RadiusMeters float64         `json:"radius_meters,omitempty"`
	Beacon       *BeaconIdentity `json:"beacon,omitempty"`
}

// Validate checks identifiers and coordinate ranges
func (v Venue) Validate() error {
	switch {
	case v.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidVenue)
	case math.IsNaN(v.Latitude) || v.Latitude < -90 || v.Latitude > 90:
		return fmt.Errorf("%w: %s: latitude %v out of range", ErrInvalidVenue, v.ID, v.Latitude)
	case math.IsNaN(v.Longitude) || v.Longitude < -180 || v.Longitude > 180:
		return fmt.Errorf("%w: %s: longitude %v out of range", ErrInvalidVenue, v.ID, v.Longitude)
	case v.RadiusMeters < 0:
		return fmt.Errorf("%w: %s: negative radius", ErrInvalidVenue, v.ID)
	case v.Beacon != nil && v.Beacon.ProximityUUID == uuid.Nil:
		return fmt.Errorf("%w: %s: beacon without proximity uuid", ErrInvalidVenue, v.ID)
	}
	return nil
}

// EffectiveRadius returns the venue radius, or def when the venue leaves it unset
func (v Venue) EffectiveRadius(def float64) float64 {
	if v.RadiusMeters > 0 {
		return v.RadiusMeters
	}
	return def
}

// Contains reports whether the point lies inside the venue circle
func (v Venue) Contains(lat, lon, defaultRadius float64) bool {
	return DistanceMeters(v.Latitude, v.Longitude, lat, lon) <= v.EffectiveRadius(defaultRadius)
}

// DistanceMeters returns the haversine great-circle distance between two points
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
