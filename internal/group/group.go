// Package group partitions an ordered query result into contiguous
// runs keyed by a derived bucket. Groupers never re-sort: each is a
// single left-to-right linear partition, so the concatenated group
// contents always equal the input in its original order.
package group

import (
	"fmt"
	"math"
	"time"

	"github.com/rainhead/lifelight-go/internal/datastore"
)

// DayGroup is a maximal contiguous run of rows sharing one calendar
// day.
type DayGroup struct {
	Day  time.Time
	Rows []datastore.PhotoWithObservation
}

// ChunkByDay partitions rows into maximal contiguous runs sharing the
// same observed-or-created day. Run order follows input order; each
// run's rows preserve input order.
func ChunkByDay(rows []datastore.PhotoWithObservation) []DayGroup {
	var groups []DayGroup
	for _, row := range rows {
		day := row.Observation.ObservedOrCreatedOn()
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Rows = append(groups[n-1].Rows, row)
			continue
		}
		groups = append(groups, DayGroup{Day: day, Rows: []datastore.PhotoWithObservation{row}})
	}
	return groups
}

// DistanceBand is a bucketed distance from a reference point.
type DistanceBand int

// Bands in increasing order of distance. BandUnknown collects rows
// without coordinates.
const (
	BandWithin10m DistanceBand = iota
	BandWithin100m
	BandWithin1km
	BandWithin10km
	BandWithin100km
	BandFarther
	BandUnknown
)

// bandBounds holds each band's inclusive upper bound in meters.
var bandBounds = []float64{10, 100, 1_000, 10_000, 100_000}

func (b DistanceBand) String() string {
	switch b {
	case BandWithin10m:
		return "within 10 m"
	case BandWithin100m:
		return "within 100 m"
	case BandWithin1km:
		return "within 1 km"
	case BandWithin10km:
		return "within 10 km"
	case BandWithin100km:
		return "within 100 km"
	case BandFarther:
		return "farther"
	case BandUnknown:
		return "unknown"
	}
	return fmt.Sprintf("DistanceBand(%d)", int(b))
}

// BandFor picks the smallest band whose upper bound is at least
// meters. A distance of exactly 100km lands in BandWithin100km.
func BandFor(meters float64) DistanceBand {
	if math.IsNaN(meters) {
		return BandUnknown
	}
	for i, bound := range bandBounds {
		if meters <= bound {
			return DistanceBand(i)
		}
	}
	return BandFarther
}

// DistanceGroup is a maximal contiguous run of rows sharing one
// distance band.
type DistanceGroup struct {
	Band DistanceBand
	Rows []datastore.PhotoWithObservation
}

// ChunkByDistance partitions rows into maximal contiguous runs sharing
// the same distance band from origin. Rows without coordinates land in
// BandUnknown. Like ChunkByDay this never re-sorts; callers wanting
// one group per band must order the input by band first.
func ChunkByDistance(rows []datastore.PhotoWithObservation, origin Point) []DistanceGroup {
	var groups []DistanceGroup
	for _, row := range rows {
		band := BandUnknown
		if row.Observation.HasLocation() {
			d := HaversineMeters(origin, Point{
				Latitude:  *row.Observation.Latitude,
				Longitude: *row.Observation.Longitude,
			})
			band = BandFor(d)
		}
		if n := len(groups); n > 0 && groups[n-1].Band == band {
			groups[n-1].Rows = append(groups[n-1].Rows, row)
			continue
		}
		groups = append(groups, DistanceGroup{Band: band, Rows: []datastore.PhotoWithObservation{row}})
	}
	return groups
}

// SortKey orders rows by ascending distance band for use ahead of
// ChunkByDistance. Unknown sorts last.
func SortKey(row datastore.PhotoWithObservation, origin Point) DistanceBand {
	if !row.Observation.HasLocation() {
		return BandUnknown
	}
	return BandFor(HaversineMeters(origin, Point{
		Latitude:  *row.Observation.Latitude,
		Longitude: *row.Observation.Longitude,
	}))
}

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

const earthRadiusMeters = 6_371_000

// HaversineMeters computes the great-circle distance between two
// points. Inputs are degrees; the trigonometry runs in radians.
func HaversineMeters(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
