package spatial

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leynos/wildside-engine/pkg/model"
)

func samplePOIs() []model.PointOfInterest {
	return []model.PointOfInterest{
		{ID: 1, Lon: 0, Lat: 0, Tags: map[string]string{"tourism": "museum"}},
		{ID: 2, Lon: 5, Lat: 5, Tags: map[string]string{"historic": "monument"}},
		{ID: 3, Lon: -3, Lat: -3},
	}
}

func TestBuildSliceAndQuery(t *testing.T) {
	idx, err := BuildSlice(samplePOIs())
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	results := idx.Query(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}})
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
}

func TestQueryBoundaryInclusive(t *testing.T) {
	idx, err := BuildSlice([]model.PointOfInterest{{ID: 1, Lon: 1, Lat: 1}})
	require.NoError(t, err)

	results := idx.Query(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}})
	require.Len(t, results, 1)

	empty := idx.Query(orb.Bound{Min: orb.Point{2, 2}, Max: orb.Point{3, 3}})
	assert.Empty(t, empty)
}

func TestQueryResultsSortedByID(t *testing.T) {
	idx, err := BuildSlice([]model.PointOfInterest{
		{ID: 9, Lon: 0, Lat: 0},
		{ID: 2, Lon: 0.1, Lat: 0.1},
		{ID: 5, Lon: -0.1, Lat: -0.1},
	})
	require.NoError(t, err)

	results := idx.Query(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}})
	require.Len(t, results, 3)
	assert.Equal(t, []uint64{2, 5, 9}, []uint64{results[0].ID, results[1].ID, results[2].ID})
}

func TestBuildOrderIndependent(t *testing.T) {
	a, err := BuildSlice(samplePOIs())
	require.NoError(t, err)

	reversed := make([]model.PointOfInterest, len(samplePOIs()))
	src := samplePOIs()
	for i, p := range src {
		reversed[len(src)-1-i] = p
	}
	b, err := BuildSlice(reversed)
	require.NoError(t, err)

	bbox := orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}
	assert.Equal(t, a.Query(bbox), b.Query(bbox))
}

func TestWriteReadRoundTrip(t *testing.T) {
	idx, err := BuildSlice(samplePOIs())
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "pois.rstar")
	require.NoError(t, Write(path, idx))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	loaded, err := Read(f)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.All(), loaded.All())
}

func TestReadRejectsUnknownMajor(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{'W', 'S', 'P', 'I', 99, 0, 0, 0, 0})
	_, err := Read(&buf)
	assert.Error(t, err)
}
