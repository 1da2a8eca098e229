// map.go converts wire records into store entities. Timestamps arrive
// as strings and are parsed here with explicit per-field parse
// functions; there is no implicit decode magic.
package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/rainhead/lifelight-go/internal/datastore"
	"github.com/rainhead/lifelight-go/internal/errors"
	"github.com/rainhead/lifelight-go/internal/inat"
)

const iso8601Layout = "2006-01-02T15:04:05Z0700"

// parseISO8601 parses a remote timestamp such as
// "2024-06-01T12:30:00-07:00".
func parseISO8601(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return t.UTC(), nil
	}
	// some records omit the colon in the zone offset
	t, err = time.Parse(iso8601Layout, value)
	if err != nil {
		return time.Time{}, errors.Newf("parsing timestamp %q: %w", value, err).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	return t.UTC(), nil
}

// parseCalendarDay parses a date such as "2024-06-01" into midnight
// UTC. The day is a calendar value in a fixed but unspecified
// timezone, independent of any instant.
func parseCalendarDay(value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, errors.Newf("parsing calendar day %q: %w", value, err).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	return t, nil
}

// parseLocation splits a "lat,lng" pair.
func parseLocation(value string) (lat, lng float64, err error) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return 0, 0, errors.Newf("malformed location %q", value).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, errors.Newf("malformed latitude in %q: %w", value, err).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, errors.Newf("malformed longitude in %q: %w", value, err).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	return lat, lng, nil
}

// mapTaxon converts a wire taxon to its store shape.
func mapTaxon(t *inat.Taxon) datastore.Taxon {
	return datastore.Taxon{
		ID:                  t.ID,
		IsActive:            t.IsActive,
		Name:                t.Name,
		ParentID:            t.ParentID,
		PreferredCommonName: t.PreferredCommonName,
		Rank:                t.Rank,
	}
}

// mapObservation converts a wire observation to its store shape. A
// date or location that fails to parse is a schema mismatch and aborts
// the batch.
func mapObservation(o *inat.Observation) (datastore.Observation, error) {
	createdAt, err := parseISO8601(o.CreatedAt)
	if err != nil {
		return datastore.Observation{}, err
	}
	updatedAt, err := parseISO8601(o.UpdatedAt)
	if err != nil {
		return datastore.Observation{}, err
	}

	row := datastore.Observation{
		ID:               o.ID,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
		Description:      o.Description,
		LocationObscured: o.Obscured(),
		URI:              o.URI,
	}

	if o.TimeObservedAt != nil {
		observedAt, err := parseISO8601(*o.TimeObservedAt)
		if err != nil {
			return datastore.Observation{}, err
		}
		row.ObservedAt = &observedAt
	}
	if o.ObservedOn != nil {
		observedOn, err := parseCalendarDay(*o.ObservedOn)
		if err != nil {
			return datastore.Observation{}, err
		}
		row.ObservedOn = &observedOn
	}
	if o.Location != nil && *o.Location != "" {
		lat, lng, err := parseLocation(*o.Location)
		if err != nil {
			return datastore.Observation{}, err
		}
		row.Latitude = &lat
		row.Longitude = &lng
	}
	if o.Taxon != nil {
		taxonID := o.Taxon.ID
		row.TaxonID = &taxonID
	}

	return row, nil
}

// mapPhotos flattens an observation's photo list, carrying the owning
// observation id forward.
func mapPhotos(o *inat.Observation) []datastore.ObservationPhoto {
	photos := make([]datastore.ObservationPhoto, 0, len(o.Photos))
	for _, p := range o.Photos {
		photos = append(photos, datastore.ObservationPhoto{
			ID:             p.ID,
			ObservationID:  o.ID,
			Position:       p.Position,
			OriginalHeight: p.Photo.OriginalDimensions.Height,
			OriginalWidth:  p.Photo.OriginalDimensions.Width,
			SquareURL:      p.Photo.URL,
		})
	}
	return photos
}
