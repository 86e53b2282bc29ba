package snapshot_test

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weathertrack/geoscraper/internal/snapshot"
)

func strptr(s string) *string { return &s }

func sampleRecords() []snapshot.CountryRecord {
	return []snapshot.CountryRecord{
		{
			Country: "Pakistan",
			URL:     strptr("https://example.com/Pakistan"),
			Cities: []snapshot.CityEntry{
				{Name: "Karachi", URL: strptr("https://example.com/Karachi")},
				{Name: "Quetta", URL: nil},
			},
		},
		{
			Country: "India",
			URL:     strptr("https://example.com/India"),
			Cities:  []snapshot.CityEntry{{Name: "Delhi", URL: strptr("https://example.com/Delhi")}},
		},
	}
}

func TestWriteAndLatest(t *testing.T) {
	w := snapshot.NewWriter(t.TempDir())
	date := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)

	require.NoError(t, w.Write(date, sampleRecords()))

	path, records, found, err := w.Latest()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, w.Path(date), path)
	require.Len(t, records, 2)
	assert.Equal(t, "Pakistan", records[0].Country)
	require.Len(t, records[0].Cities, 2)
	assert.Nil(t, records[0].Cities[1].URL)
}

func TestWriteProducesIndentedJSON(t *testing.T) {
	w := snapshot.NewWriter(t.TempDir())
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Write(date, sampleRecords()))

	data, err := os.ReadFile(w.Path(date))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {")
	assert.True(t, json.Valid(data))
}

func TestSameDateWriteSupersedes(t *testing.T) {
	w := snapshot.NewWriter(t.TempDir())
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, w.Write(date, sampleRecords()))
	require.NoError(t, w.Write(date, sampleRecords()[:1]))

	_, records, found, err := w.Latest()
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, records, 1)
}

func TestLatestPicksMostRecentDate(t *testing.T) {
	w := snapshot.NewWriter(t.TempDir())
	older := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, w.Write(older, sampleRecords()))
	require.NoError(t, w.Write(newer, sampleRecords()[:1]))

	path, records, found, err := w.Latest()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, w.Path(newer), path)
	assert.Len(t, records, 1)
}

func TestDiscard(t *testing.T) {
	w := snapshot.NewWriter(t.TempDir())
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	t.Run("RemovesArtifact", func(t *testing.T) {
		require.NoError(t, w.Write(date, sampleRecords()))
		require.NoError(t, w.Discard(date))
		_, _, found, err := w.Latest()
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("MissingArtifactIsNoOp", func(t *testing.T) {
		assert.NoError(t, w.Discard(date))
	})
}

func TestCitiesFor(t *testing.T) {
	w := snapshot.NewWriter(t.TempDir())
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Write(date, sampleRecords()))

	t.Run("KnownCountry", func(t *testing.T) {
		cities, err := w.CitiesFor("India")
		require.NoError(t, err)
		require.Len(t, cities, 1)
		assert.Equal(t, "Delhi", cities[0].Name)
	})

	t.Run("UnknownCountry", func(t *testing.T) {
		cities, err := w.CitiesFor("Atlantis")
		require.NoError(t, err)
		assert.Empty(t, cities)
	})

	t.Run("NoArtifact", func(t *testing.T) {
		empty := snapshot.NewWriter(t.TempDir())
		cities, err := empty.CitiesFor("Pakistan")
		require.NoError(t, err)
		assert.Empty(t, cities)
	})
}
