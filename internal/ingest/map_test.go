package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainhead/lifelight-go/internal/inat"
)

func TestParseISO8601(t *testing.T) {
	got, err := parseISO8601("2024-06-01T12:00:00-07:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 1, 19, 0, 0, 0, time.UTC), got)

	// The remote also emits offsets without a colon.
	got, err = parseISO8601("2024-06-01T12:00:00-0700")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 1, 19, 0, 0, 0, time.UTC), got)

	got, err = parseISO8601("2024-06-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC), got)

	_, err = parseISO8601("2024-06-01")
	assert.Error(t, err)
	_, err = parseISO8601("")
	assert.Error(t, err)
}

func TestParseCalendarDay(t *testing.T) {
	got, err := parseCalendarDay("2024-05-30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.May, 30, 0, 0, 0, 0, time.UTC), got)

	_, err = parseCalendarDay("05/30/2024")
	assert.Error(t, err)
}

func TestParseLocation(t *testing.T) {
	lat, lng, err := parseLocation("47.6062,-122.3321")
	require.NoError(t, err)
	assert.InDelta(t, 47.6062, lat, 1e-9)
	assert.InDelta(t, -122.3321, lng, 1e-9)

	for _, bad := range []string{"", "47.6062", "north,west", "47.6062,-122.3321,0"} {
		_, _, err := parseLocation(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestMapObservationTaxonAndObscuring(t *testing.T) {
	raw := rawObservation(9, func(o *inat.Observation) {
		o.Geoprivacy = ptr("open")
	})
	obs, err := mapObservation(&raw)
	require.NoError(t, err)
	assert.False(t, obs.LocationObscured)
	require.NotNil(t, obs.TaxonID)
	assert.Equal(t, int64(900), *obs.TaxonID)

	raw.Taxon = nil
	obs, err = mapObservation(&raw)
	require.NoError(t, err)
	assert.Nil(t, obs.TaxonID)
}
