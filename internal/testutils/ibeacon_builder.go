package testutils

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/srg/venuesense/internal/beacon"
)

// IBeaconBuilder encodes iBeacon manufacturer data for tests.
// It mirrors the decoder layout so round-trip tests can start from known values.
//
//	raw := testutils.NewIBeaconBuilder().
//	    WithUUID("f7826da6-4fa2-4e98-8024-bc5b71e0893e").
//	    WithMajor(100).WithMinor(7).WithTxPower(-59).
//	    BuildManufacturerData()
type IBeaconBuilder struct {
	proximityUUID uuid.UUID
	major         uint16
	minor         uint16
	txPower       int8
	frameType     byte
	frameLength   byte
	truncateTo    int
}

// NewIBeaconBuilder creates a builder with a valid frame header and txPower -59.
func NewIBeaconBuilder() *IBeaconBuilder {
	return &IBeaconBuilder{
		proximityUUID: uuid.MustParse("f7826da6-4fa2-4e98-8024-bc5b71e0893e"),
		txPower:       -59,
		frameType:     beacon.FrameType,
		frameLength:   beacon.FrameLength,
		truncateTo:    -1,
	}
}

func (b *IBeaconBuilder) WithUUID(s string) *IBeaconBuilder {
	b.proximityUUID = uuid.MustParse(s)
	return b
}

func (b *IBeaconBuilder) WithProximityUUID(id uuid.UUID) *IBeaconBuilder {
	b.proximityUUID = id
	return b
}

func (b *IBeaconBuilder) WithMajor(major uint16) *IBeaconBuilder {
	b.major = major
	return b
}

func (b *IBeaconBuilder) WithMinor(minor uint16) *IBeaconBuilder {
	b.minor = minor
	return b
}

func (b *IBeaconBuilder) WithTxPower(txPower int8) *IBeaconBuilder {
	b.txPower = txPower
	return b
}

// WithFrameHeader overrides the type/length bytes to build invalid frames.
func (b *IBeaconBuilder) WithFrameHeader(frameType, frameLength byte) *IBeaconBuilder {
	b.frameType = frameType
	b.frameLength = frameLength
	return b
}

// TruncatedTo cuts the payload to n bytes.
func (b *IBeaconBuilder) TruncatedTo(n int) *IBeaconBuilder {
	b.truncateTo = n
	return b
}

// BuildPayload returns the vendor payload without the company identifier.
func (b *IBeaconBuilder) BuildPayload() []byte {
	payload := make([]byte, beacon.FrameSize)
	payload[0] = b.frameType
	payload[1] = b.frameLength
	copy(payload[2:18], b.proximityUUID[:])
	binary.BigEndian.PutUint16(payload[18:20], b.major)
	binary.BigEndian.PutUint16(payload[20:22], b.minor)
	payload[22] = byte(b.txPower)

	if b.truncateTo >= 0 && b.truncateTo < len(payload) {
		payload = payload[:b.truncateTo]
	}
	return payload
}

// BuildManufacturerData prefixes the payload with company ID 0x004C (little-endian).
func (b *IBeaconBuilder) BuildManufacturerData() []byte {
	raw := make([]byte, 2, 2+beacon.FrameSize)
	binary.LittleEndian.PutUint16(raw, beacon.AppleCompanyID)
	return append(raw, b.BuildPayload()...)
}
