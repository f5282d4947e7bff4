package beacon

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// AppleCompanyID is the Bluetooth SIG company identifier carried by iBeacon frames.
	AppleCompanyID uint16 = 0x004C

	// FrameType and FrameLength are the first two payload bytes of an iBeacon record.
	FrameType   byte = 0x02
	FrameLength byte = 0x15

	// FrameSize is the minimum payload size: type, length, UUID, major, minor, txPower.
	FrameSize = 23

	// NearThresholdMeters is the distance at or below which a beacon counts as "near".
	NearThresholdMeters = 10.0

	// UnknownDistance is reported when RSSI (or the calibration) carries no information.
	UnknownDistance = -1.0
)

// Path-loss fit constants; shared with the mobile clients and must not change.
const (
	distanceCoefficient = 0.89976
	distanceExponent    = 7.7095
	distanceIntercept   = 0.111
	nearFieldExponent   = 10
)

// Observation is one decoded iBeacon advertisement.
type Observation struct {
	ProximityUUID uuid.UUID `json:"proximity_uuid"`
	Major         uint16    `json:"major"`
	Minor         uint16    `json:"minor"`
	RSSI          int       `json:"rssi"`
	TxPower       int8      `json:"tx_power"` // expected RSSI at 1 meter
	Distance      float64   `json:"distance"`
	Timestamp     time.Time `json:"timestamp"`
}

// HasDistance reports whether the distance estimate is usable.
func (o Observation) HasDistance() bool {
	return o.Distance >= 0
}

// IsNear reports whether the beacon is within threshold meters.
func (o Observation) IsNear(threshold float64) bool {
	return o.HasDistance() && o.Distance <= threshold
}

// Parse decodes an iBeacon record from a vendor payload (manufacturer data
// with the company identifier already stripped).
//
// Layout:
//   - Byte 0:      frame type (0x02)
//   - Byte 1:      frame length (0x15)
//   - Bytes 2-17:  proximity UUID, big-endian
//   - Bytes 18-19: major, big-endian
//   - Bytes 20-21: minor, big-endian
//   - Byte 22:     calibrated TX power, signed, RSSI at 1 meter
//
// ok is false for anything that is not an iBeacon record; that is not an error.
func Parse(payload []byte, rssi int, at time.Time) (obs Observation, ok bool) {
	if len(payload) < FrameSize || payload[0] != FrameType || payload[1] != FrameLength {
		return Observation{}, false
	}

	// uuid.FromBytes only fails on length, which is guaranteed above.
	id, err := uuid.FromBytes(payload[2:18])
	if err != nil {
		return Observation{}, false
	}

	txPower := int8(payload[22])
	return Observation{
		ProximityUUID: id,
		Major:         binary.BigEndian.Uint16(payload[18:20]),
		Minor:         binary.BigEndian.Uint16(payload[20:22]),
		RSSI:          rssi,
		TxPower:       txPower,
		Distance:      EstimateDistance(rssi, txPower),
		Timestamp:     at,
	}, true
}

// EstimateDistance converts a measured RSSI into meters using the empirical
// log-distance path-loss approximation for the given calibrated txPower.
// Returns UnknownDistance when rssi is 0 or txPower is 0.
func EstimateDistance(rssi int, txPower int8) float64 {
	if rssi == 0 || txPower == 0 {
		return UnknownDistance
	}

	ratio := float64(rssi) / float64(txPower)
	if ratio < 1.0 {
		return math.Pow(ratio, nearFieldExponent)
	}
	return distanceCoefficient*math.Pow(ratio, distanceExponent) + distanceIntercept
}
