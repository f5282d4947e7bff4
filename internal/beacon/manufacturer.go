package beacon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// UnknownCompanyID is a sentinel value indicating the company ID should be
	// extracted from the raw manufacturer data (first 2 bytes, little-endian).
	// Use this when the manufacturer/vendor is not known in advance.
	UnknownCompanyID uint16 = 0
)

// ManufacturerDataParser decodes the vendor payload that follows the company ID.
type ManufacturerDataParser func(payload []byte, rssi int, at time.Time) (Observation, bool)

// manufacturerDataParsers maps company IDs to their parser functions
var manufacturerDataParsers = map[uint16]ManufacturerDataParser{
	AppleCompanyID: Parse,
}

// iBeaconPrefix is the manufacturer data prefix platforms use as a scan filter:
// company ID 0x004C little-endian, then frame type and length.
var iBeaconPrefix = []byte{byte(AppleCompanyID), byte(AppleCompanyID >> 8), FrameType, FrameLength}

// HasIBeaconPrefix reports whether raw manufacturer data starts like an iBeacon frame.
func HasIBeaconPrefix(raw []byte) bool {
	return bytes.HasPrefix(raw, iBeaconPrefix)
}

// ParseManufacturerData decodes BLE manufacturer data for a specific company.
//
// Parameters:
//   - companyID: the Bluetooth SIG company identifier. If UnknownCompanyID (0),
//     the company ID is read from rawData[0:2] (little-endian) and stripped.
//     Otherwise rawData is the vendor payload without the company ID.
//   - rawData: the manufacturer-specific data bytes
//
// Returns:
//   - the observation and true when a registered parser accepts the payload
//   - false for unknown companies or payloads the parser rejects (not an error)
//   - an error only when the company ID cannot be extracted
func ParseManufacturerData(companyID uint16, rawData []byte, rssi int, at time.Time) (Observation, bool, error) {
	id := companyID
	payload := rawData

	if companyID == UnknownCompanyID {
		if len(rawData) < 2 {
			return Observation{}, false, fmt.Errorf("manufacturer data too short: %d bytes", len(rawData))
		}
		id = binary.LittleEndian.Uint16(rawData[0:2])
		payload = rawData[2:]
	}

	parser, exists := manufacturerDataParsers[id]
	if !exists {
		return Observation{}, false, nil
	}

	obs, ok := parser(payload, rssi, at)
	return obs, ok, nil
}

// IsParsableManufacturerData returns true if a parser exists for the company ID
func IsParsableManufacturerData(companyID uint16) bool {
	_, exists := manufacturerDataParsers[companyID]
	return exists
}
