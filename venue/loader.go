package venue

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout of a venues file:
//
//	venues:
//	  - id: stadium
//	    name: Riverside Stadium
//	    latitude: 40.4468
//	    longitude: -80.0158
//	    radius_meters: 250
//	    beacon:
//	      proximity_uuid: f7826da6-4fa2-4e98-8024-bc5b71e0893e
//	      major: 100
type fileFormat struct {
	Venues []fileVenue `yaml:"venues"`
}

type fileVenue struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	Latitude     float64     `yaml:"latitude"`
	Longitude    float64     `yaml:"longitude"`
	RadiusMeters float64     `yaml:"radius_meters"`
	Beacon       *fileBeacon `yaml:"beacon"`
}

type fileBeacon struct {
	ProximityUUID string  `yaml:"proximity_uuid"`
	Major         *uint16 `yaml:"major"`
}

// LoadFile reads and validates a venues YAML file
func LoadFile(path string) ([]Venue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading venues file: %w", err)
	}

	venues, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return venues, nil
}

// Parse decodes and validates venues YAML
func Parse(data []byte) ([]Venue, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing venues: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Venues))
	venues := make([]Venue, 0, len(doc.Venues))
	for i, fv := range doc.Venues {
		v := Venue{
			ID:           fv.ID,
			Name:         fv.Name,
			Latitude:     fv.Latitude,
			Longitude:    fv.Longitude,
			RadiusMeters: fv.RadiusMeters,
		}
		if fv.Beacon != nil {
			id, err := uuid.Parse(fv.Beacon.ProximityUUID)
			if err != nil {
				return nil, fmt.Errorf("%w: venue #%d (%s): proximity uuid: %v", ErrInvalidVenue, i, fv.ID, err)
			}
			v.Beacon = &BeaconIdentity{ProximityUUID: id, Major: fv.Beacon.Major}
		}
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("venue #%d: %w", i, err)
		}
		if _, dup := seen[v.ID]; dup {
			return nil, fmt.Errorf("venue #%d: %w: %s", i, ErrDuplicateID, v.ID)
		}
		seen[v.ID] = struct{}{}
		venues = append(venues, v)
	}
	return venues, nil
}
