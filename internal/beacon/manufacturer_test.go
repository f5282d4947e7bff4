package beacon_test

import (
	"testing"
	"time"

	"github.com/srg/venuesense/internal/beacon"
	"github.com/srg/venuesense/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManufacturerData(t *testing.T) {
	builder := testutils.NewIBeaconBuilder().WithMajor(42).WithMinor(9)

	t.Run("extracts company id when unknown", func(t *testing.T) {
		obs, ok, err := beacon.ParseManufacturerData(beacon.UnknownCompanyID, builder.BuildManufacturerData(), -70, time.Now())

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint16(42), obs.Major)
		assert.Equal(t, uint16(9), obs.Minor)
	})

	t.Run("uses known company id with bare payload", func(t *testing.T) {
		obs, ok, err := beacon.ParseManufacturerData(beacon.AppleCompanyID, builder.BuildPayload(), -70, time.Now())

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint16(42), obs.Major)
	})

	t.Run("unknown company is not an error", func(t *testing.T) {
		_, ok, err := beacon.ParseManufacturerData(beacon.UnknownCompanyID, []byte{0xFE, 0xFF, 0x00, 0x10}, -70, time.Now())

		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("too short to carry a company id", func(t *testing.T) {
		_, ok, err := beacon.ParseManufacturerData(beacon.UnknownCompanyID, []byte{0x4C}, -70, time.Now())

		assert.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("apple frame that is not an iBeacon", func(t *testing.T) {
		_, ok, err := beacon.ParseManufacturerData(beacon.UnknownCompanyID, []byte{0x4C, 0x00, 0x10, 0x05, 0x01}, -70, time.Now())

		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestHasIBeaconPrefix(t *testing.T) {
	assert.True(t, beacon.HasIBeaconPrefix(testutils.NewIBeaconBuilder().BuildManufacturerData()))
	assert.False(t, beacon.HasIBeaconPrefix(testutils.NewIBeaconBuilder().BuildPayload()))
	assert.False(t, beacon.HasIBeaconPrefix([]byte{0x4C, 0x00, 0x12, 0x19}))
	assert.False(t, beacon.HasIBeaconPrefix(nil))
	assert.True(t, beacon.IsParsableManufacturerData(beacon.AppleCompanyID))
	assert.False(t, beacon.IsParsableManufacturerData(0xFFFE))
}
