package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegionTimestamps(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.RegionTimestamp("overworld/terrain", "r.0.0")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetRegionTimestamp("overworld/terrain", "r.0.0", 1700000000))
	require.NoError(t, s.SetRegionTimestamp("overworld/terrain", "r.-1.0", -5))
	require.NoError(t, s.SetRegionTimestamp("overworld/biomes", "r.0.0", 42))

	ts, ok, err := s.RegionTimestamp("overworld/terrain", "r.0.0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1700000000), ts)

	ts, _, err = s.RegionTimestamp("overworld/terrain", "r.-1.0")
	require.NoError(t, err)
	assert.Equal(t, int32(-5), ts)

	require.NoError(t, s.ClearLayer("overworld/terrain"))
	_, ok, err = s.RegionTimestamp("overworld/terrain", "r.0.0")
	require.NoError(t, err)
	assert.False(t, ok)

	ts, ok, err = s.RegionTimestamp("overworld/biomes", "r.0.0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(42), ts)
}

func TestPendingRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SavePending(nil))
	tiles := []PendingTile{
		{Map: "overworld", Layer: "terrain", X: 0, Z: 0},
		{Map: "overworld", Layer: "terrain", X: -3, Z: 7},
		{Map: "nether", Layer: "terrain", X: 1, Z: 1},
	}
	require.NoError(t, s.SavePending(tiles))
	// saving the same tile twice keeps one entry
	require.NoError(t, s.SavePending(tiles[:1]))

	got, err := s.TakePending()
	require.NoError(t, err)
	assert.ElementsMatch(t, tiles, got)

	got, err = s.TakePending()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPendingSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.SavePending([]PendingTile{{Map: "m", Layer: "l", X: 2, Z: 3}}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.TakePending()
	require.NoError(t, err)
	assert.Equal(t, []PendingTile{{Map: "m", Layer: "l", X: 2, Z: 3}}, got)
}

func TestClosedStore(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.RegionTimestamp("a", "b")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.SetRegionTimestamp("a", "b", 1), ErrClosed)
}
