package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := New(":memory:")
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func ptr[T any](v T) *T { return &v }

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func testObservation(id int64, mutate ...func(*Observation)) Observation {
	o := Observation{
		ID:        id,
		CreatedAt: time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, time.June, 2, 12, 0, 0, 0, time.UTC),
		URI:       "https://observations.example/observations/1",
	}
	for _, m := range mutate {
		m(&o)
	}
	return o
}

func TestUpsertTaxaIdempotent(t *testing.T) {
	store := newTestStore(t)

	taxa := []Taxon{
		{ID: 1, IsActive: true, Name: "Bombus", Rank: "genus"},
		{ID: 2, IsActive: true, Name: "Bombus vosnesenskii", ParentID: ptr(int64(1)), Rank: "species"},
	}
	require.NoError(t, store.UpsertTaxa(taxa))
	require.NoError(t, store.UpsertTaxa(taxa))

	var count int64
	require.NoError(t, store.DB.Model(&Taxon{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestUpsertTaxaUpdatesMutableFields(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertTaxa([]Taxon{
		{ID: 1, IsActive: true, Name: "Bombus", Rank: "genus"},
	}))
	require.NoError(t, store.UpsertTaxa([]Taxon{
		{ID: 1, IsActive: false, Name: "Bombus", Rank: "genus", PreferredCommonName: ptr("bumble bees")},
	}))

	var taxon Taxon
	require.NoError(t, store.DB.First(&taxon, 1).Error)
	assert.False(t, taxon.IsActive)
	require.NotNil(t, taxon.PreferredCommonName)
	assert.Equal(t, "bumble bees", *taxon.PreferredCommonName)
}

func TestUpsertTaxaDeduplicatesBatch(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertTaxa([]Taxon{
		{ID: 1, IsActive: true, Name: "first", Rank: "genus"},
		{ID: 1, IsActive: true, Name: "last", Rank: "genus"},
	}))

	var taxon Taxon
	require.NoError(t, store.DB.First(&taxon, 1).Error)
	assert.Equal(t, "last", taxon.Name)
}

func TestUpsertObservationsImmutableCreatedAt(t *testing.T) {
	store := newTestStore(t)

	original := testObservation(1)
	require.NoError(t, store.UpsertObservations([]Observation{original}))

	replay := original
	replay.CreatedAt = original.CreatedAt.Add(48 * time.Hour)
	replay.UpdatedAt = original.UpdatedAt.Add(time.Hour)
	replay.Description = ptr("seen on a thistle")
	require.NoError(t, store.UpsertObservations([]Observation{replay}))

	var stored Observation
	require.NoError(t, store.DB.First(&stored, 1).Error)
	assert.True(t, stored.CreatedAt.Equal(original.CreatedAt), "created_at must not change on upsert")
	require.NotNil(t, stored.Description)
	assert.Equal(t, "seen on a thistle", *stored.Description)
	assert.True(t, stored.UpdatedAt.Equal(replay.UpdatedAt))
}

func TestUpsertObservationsIgnoresStaleReplay(t *testing.T) {
	store := newTestStore(t)

	current := testObservation(1, func(o *Observation) {
		o.Description = ptr("current")
	})
	require.NoError(t, store.UpsertObservations([]Observation{current}))

	stale := current
	stale.UpdatedAt = current.UpdatedAt.Add(-time.Hour)
	stale.Description = ptr("stale")
	require.NoError(t, store.UpsertObservations([]Observation{stale}))

	var stored Observation
	require.NoError(t, store.DB.First(&stored, 1).Error)
	require.NotNil(t, stored.Description)
	assert.Equal(t, "current", *stored.Description)
	assert.True(t, stored.UpdatedAt.Equal(current.UpdatedAt))
}

func TestHighestObservationID(t *testing.T) {
	store := newTestStore(t)

	id, err := store.HighestObservationID()
	require.NoError(t, err)
	assert.Equal(t, int64(0), id, "empty store seeds the watermark at zero")

	require.NoError(t, store.UpsertObservations([]Observation{
		testObservation(7), testObservation(312), testObservation(58),
	}))

	id, err = store.HighestObservationID()
	require.NoError(t, err)
	assert.Equal(t, int64(312), id)
}

func TestSearchTaxa(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertTaxa([]Taxon{
		{ID: 1, IsActive: true, Name: "Bombus vosnesenskii", Rank: "species"},
		{ID: 2, IsActive: true, Name: "Bombus mixtus", Rank: "species"},
		{ID: 3, IsActive: true, Name: "Halictus rubicundus", Rank: "species"},
	}))

	// unanchored, case-insensitive
	taxa, err := store.SearchTaxa("BOMBUS")
	require.NoError(t, err)
	assert.Len(t, taxa, 2)

	taxa, err = store.SearchTaxa("mixt")
	require.NoError(t, err)
	require.Len(t, taxa, 1)
	assert.Equal(t, "Bombus mixtus", taxa[0].Name)

	taxa, err = store.SearchTaxa("nope")
	require.NoError(t, err)
	assert.Empty(t, taxa)
}

func TestSearchTaxaLimit(t *testing.T) {
	store := newTestStore(t)

	taxa := make([]Taxon, 0, SearchLimit+5)
	for i := range SearchLimit + 5 {
		taxa = append(taxa, Taxon{
			ID:       int64(i + 1),
			IsActive: true,
			Name:     "Bombus " + string(rune('a'+i)),
			Rank:     "species",
		})
	}
	require.NoError(t, store.UpsertTaxa(taxa))

	found, err := store.SearchTaxa("bombus")
	require.NoError(t, err)
	assert.Len(t, found, SearchLimit)
}

func TestDescendantTaxa(t *testing.T) {
	store := newTestStore(t)

	// 1
	// ├── 2
	// │   └── 4
	// └── 3
	// 5 (separate root)
	forest := []Taxon{
		{ID: 5, IsActive: true, Name: "other root", Rank: "kingdom"},
		{ID: 4, IsActive: true, Name: "grandchild", ParentID: ptr(int64(2)), Rank: "species"},
		{ID: 2, IsActive: true, Name: "child a", ParentID: ptr(int64(1)), Rank: "genus"},
		{ID: 3, IsActive: true, Name: "child b", ParentID: ptr(int64(1)), Rank: "genus"},
		{ID: 1, IsActive: true, Name: "root", Rank: "family"},
	}
	require.NoError(t, store.UpsertTaxa(forest))

	closure, err := store.DescendantTaxa([]int64{1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, closure)

	closure, err = store.DescendantTaxa([]int64{2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, closure)

	closure, err = store.DescendantTaxa([]int64{5})
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, closure)

	closure, err = store.DescendantTaxa(nil)
	require.NoError(t, err)
	assert.Empty(t, closure)

	// seed absent from the table contributes nothing
	closure, err = store.DescendantTaxa([]int64{99})
	require.NoError(t, err)
	assert.Empty(t, closure)
}

func TestDescendantTaxaTerminatesOnCycle(t *testing.T) {
	store := newTestStore(t)

	// 10 -> 11 -> 10 is corrupt data; the closure must still terminate.
	require.NoError(t, store.UpsertTaxa([]Taxon{
		{ID: 10, IsActive: true, Name: "a", ParentID: ptr(int64(11)), Rank: "genus"},
		{ID: 11, IsActive: true, Name: "b", ParentID: ptr(int64(10)), Rank: "genus"},
	}))

	closure, err := store.DescendantTaxa([]int64{10})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, closure)
}

func seedPhotoQueryFixture(t *testing.T, store *SQLiteStore) {
	t.Helper()

	require.NoError(t, store.UpsertTaxa([]Taxon{
		{ID: 100, IsActive: true, Name: "Bombus", Rank: "genus"},
		{ID: 101, IsActive: true, Name: "Bombus mixtus", ParentID: ptr(int64(100)), Rank: "species"},
		{ID: 200, IsActive: true, Name: "Halictus rubicundus", Rank: "species"},
	}))

	observations := []Observation{
		testObservation(1, func(o *Observation) {
			o.ObservedOn = ptr(day(2024, time.June, 10))
			o.TaxonID = ptr(int64(101))
		}),
		testObservation(2, func(o *Observation) {
			o.ObservedOn = ptr(day(2024, time.June, 10))
			o.TaxonID = ptr(int64(200))
		}),
		testObservation(3, func(o *Observation) {
			o.ObservedOn = ptr(day(2024, time.July, 4))
			o.TaxonID = ptr(int64(100))
		}),
		// no photos; must contribute no rows
		testObservation(4, func(o *Observation) {
			o.ObservedOn = ptr(day(2024, time.August, 1))
		}),
	}
	require.NoError(t, store.UpsertObservations(observations))

	require.NoError(t, store.UpsertObservationPhotos([]ObservationPhoto{
		{ID: 11, ObservationID: 1, Position: 1, OriginalHeight: 100, OriginalWidth: 100, SquareURL: "https://img.example/11/square.jpg"},
		{ID: 10, ObservationID: 1, Position: 0, OriginalHeight: 100, OriginalWidth: 100, SquareURL: "https://img.example/10/square.jpg"},
		{ID: 20, ObservationID: 2, Position: 0, OriginalHeight: 100, OriginalWidth: 100, SquareURL: "https://img.example/20/square.jpg"},
		{ID: 30, ObservationID: 3, Position: 0, OriginalHeight: 100, OriginalWidth: 100, SquareURL: "https://img.example/30/square.jpg"},
	}))
}

func TestPhotosWithObservationsOrdering(t *testing.T) {
	store := newTestStore(t)
	seedPhotoQueryFixture(t, store)

	rows, err := store.PhotosWithObservations(ObservationFilter{})
	require.NoError(t, err)

	// day desc, id desc within a day, photo position asc within an
	// observation; the photo-less observation contributes nothing.
	gotPhotos := make([]int64, len(rows))
	for i, r := range rows {
		gotPhotos[i] = r.Photo.ID
	}
	assert.Equal(t, []int64{30, 20, 10, 11}, gotPhotos)

	for _, r := range rows {
		assert.Equal(t, r.Photo.ObservationID, r.Observation.ID)
	}
}

func TestPhotosWithObservationsMonthFilter(t *testing.T) {
	store := newTestStore(t)
	seedPhotoQueryFixture(t, store)

	rows, err := store.PhotosWithObservations(ObservationFilter{
		Months: []time.Month{time.July},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Observation.ID)
}

func TestPhotosWithObservationsTaxonFilter(t *testing.T) {
	store := newTestStore(t)
	seedPhotoQueryFixture(t, store)

	rows, err := store.PhotosWithObservations(ObservationFilter{
		TaxonIDs: []int64{100, 101},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		require.NotNil(t, r.Observation.TaxonID)
		assert.Contains(t, []int64{100, 101}, *r.Observation.TaxonID)
	}
}

func TestPhotosWithObservationsNameSearch(t *testing.T) {
	store := newTestStore(t)
	seedPhotoQueryFixture(t, store)

	rows, err := store.PhotosWithObservations(ObservationFilter{TaxonName: "bombus"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = store.PhotosWithObservations(ObservationFilter{TaxonName: "bombus", ExactName: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Observation.ID)

	// name search suppresses the month predicate
	rows, err = store.PhotosWithObservations(ObservationFilter{
		TaxonName: "bombus",
		Months:    []time.Month{time.January},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestObservationsWithTaxonNames(t *testing.T) {
	store := newTestStore(t)
	seedPhotoQueryFixture(t, store)

	rows, err := store.ObservationsWithTaxonNames()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, int64(1), rows[0].Observation.ID)
	assert.Equal(t, "Bombus mixtus", rows[0].TaxonName)
	assert.Equal(t, int64(4), rows[3].Observation.ID)
	assert.Equal(t, "", rows[3].TaxonName, "no linked taxon renders empty")
}

func TestObservedOrCreatedOn(t *testing.T) {
	t.Parallel()

	withDay := testObservation(1, func(o *Observation) {
		o.ObservedOn = ptr(day(2024, time.May, 5))
	})
	assert.Equal(t, day(2024, time.May, 5), withDay.ObservedOrCreatedOn())

	withoutDay := testObservation(2)
	y, m, d := withoutDay.CreatedAt.Local().Date()
	assert.Equal(t, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), withoutDay.ObservedOrCreatedOn())
}

func TestVariantURL(t *testing.T) {
	t.Parallel()

	photo := ObservationPhoto{SquareURL: "https://img.example/photos/42/square.jpg"}
	assert.Equal(t, "https://img.example/photos/42/medium.jpg", photo.VariantURL(VariantMedium))
	assert.Equal(t, "https://img.example/photos/42/original.jpg", photo.VariantURL(VariantOriginal))
}
