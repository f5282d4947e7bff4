package venue_test

import (
	"sync"
	"testing"

	"github.com/srg/venuesense/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVenues() []venue.Venue {
	return []venue.Venue{
		{ID: "stadium", Name: "Stadium", Latitude: 40.4468, Longitude: -80.0158},
		{ID: "arena", Name: "Arena", Latitude: 40.4395, Longitude: -79.9892},
		{ID: "ballpark", Name: "Ballpark", Latitude: 40.4469, Longitude: -80.0057},
	}
}

func TestRegistry_Replace(t *testing.T) {
	reg := venue.NewRegistry()
	require.NoError(t, reg.Replace(testVenues()))

	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"stadium", "arena", "ballpark"}, reg.IDs(), "load order MUST be preserved")

	v, ok := reg.Get("arena")
	require.True(t, ok)
	assert.Equal(t, "Arena", v.Name)
	assert.True(t, reg.Has("ballpark"))
	assert.False(t, reg.Has("unknown"))

	require.NoError(t, reg.Replace(testVenues()[:1]))
	assert.Equal(t, []string{"stadium"}, reg.IDs(), "replace MUST be wholesale")
}

func TestRegistry_ReplaceRejectsInvalidSets(t *testing.T) {
	reg := venue.NewRegistry()
	require.NoError(t, reg.Replace(testVenues()))

	dup := append(testVenues(), venue.Venue{ID: "arena"})
	assert.ErrorIs(t, reg.Replace(dup), venue.ErrDuplicateID)

	bad := append(testVenues(), venue.Venue{ID: "x", Latitude: 100})
	assert.ErrorIs(t, reg.Replace(bad), venue.ErrInvalidVenue)

	assert.Equal(t, 3, reg.Len(), "failed replace MUST leave contents unchanged")
}

func TestRegistry_Clear(t *testing.T) {
	reg := venue.NewRegistry()
	require.NoError(t, reg.Replace(testVenues()))

	reg.Clear()

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.All())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := venue.NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.Replace(testVenues())
		}()
		go func() {
			defer wg.Done()
			for _, v := range reg.All() {
				reg.Get(v.ID)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, reg.Len())
}
