package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainhead/lifelight-go/internal/datastore"
	"github.com/rainhead/lifelight-go/internal/events"
	"github.com/rainhead/lifelight-go/internal/inat"
)

func newTestEngine(t *testing.T) (*Engine, *datastore.SQLiteStore, <-chan events.StoreChange) {
	t.Helper()

	store := datastore.New(":memory:")
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	bus := events.NewBus()
	changes, cancel := bus.Subscribe(16)
	t.Cleanup(cancel)

	return New(store, bus), store, changes
}

func ptr[T any](v T) *T { return &v }

func rawObservation(id int64, mutate ...func(*inat.Observation)) inat.Observation {
	o := inat.Observation{
		ID:        id,
		UUID:      fmt.Sprintf("00000000-0000-0000-0000-%012d", id),
		URI:       fmt.Sprintf("https://observations.example/observations/%d", id),
		CreatedAt: "2024-06-01T12:00:00-07:00",
		UpdatedAt: "2024-06-02T12:00:00-07:00",
		Taxon: &inat.Taxon{
			ID:       900,
			IsActive: true,
			Name:     "Bombus mixtus",
			Rank:     "species",
		},
		Photos: []inat.ObservationPhoto{
			{
				ID:       id * 10,
				Position: 0,
				Photo: inat.Photo{
					ID:                 id * 10,
					URL:                fmt.Sprintf("https://img.example/%d/square.jpg", id),
					OriginalDimensions: inat.Dimensions{Height: 800, Width: 600},
				},
			},
		},
	}
	for _, m := range mutate {
		m(&o)
	}
	return o
}

func storeCounts(t *testing.T, store *datastore.SQLiteStore) (taxa, observations, photos int64) {
	t.Helper()
	require.NoError(t, store.DB.Model(&datastore.Taxon{}).Count(&taxa).Error)
	require.NoError(t, store.DB.Model(&datastore.Observation{}).Count(&observations).Error)
	require.NoError(t, store.DB.Model(&datastore.ObservationPhoto{}).Count(&photos).Error)
	return taxa, observations, photos
}

func TestIngestIdempotent(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	batch := []inat.Observation{rawObservation(1), rawObservation(2)}
	require.NoError(t, engine.Ingest(ctx, batch))

	taxa1, obs1, photos1 := storeCounts(t, store)

	require.NoError(t, engine.Ingest(ctx, batch))
	taxa2, obs2, photos2 := storeCounts(t, store)

	assert.Equal(t, taxa1, taxa2)
	assert.Equal(t, obs1, obs2)
	assert.Equal(t, photos1, photos2)
	assert.Equal(t, int64(2), obs2)
	assert.Equal(t, int64(1), taxa2, "shared taxon deduplicated across the batch")
}

func TestIngestReferentialOrdering(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	require.NoError(t, engine.Ingest(context.Background(), []inat.Observation{rawObservation(1)}))

	var obs datastore.Observation
	require.NoError(t, store.DB.First(&obs, 1).Error)
	require.NotNil(t, obs.TaxonID)

	var taxon datastore.Taxon
	require.NoError(t, store.DB.First(&taxon, *obs.TaxonID).Error, "referenced taxon was upserted first")
	assert.Equal(t, "Bombus mixtus", taxon.Name)

	var photo datastore.ObservationPhoto
	require.NoError(t, store.DB.Where("observation_id = ?", obs.ID).First(&photo).Error)
	assert.Equal(t, 800, photo.OriginalHeight)
}

func TestIngestEmptyBatchIsNoOp(t *testing.T) {
	engine, store, changes := newTestEngine(t)

	require.NoError(t, engine.Ingest(context.Background(), nil))

	_, obs, _ := storeCounts(t, store)
	assert.Equal(t, int64(0), obs)

	select {
	case ev := <-changes:
		t.Fatalf("unexpected change event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIngestPublishesChange(t *testing.T) {
	engine, _, changes := newTestEngine(t)

	require.NoError(t, engine.Ingest(context.Background(), []inat.Observation{rawObservation(1)}))

	select {
	case ev := <-changes:
		assert.False(t, ev.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected a change event after a non-empty batch")
	}
}

func TestIngestFieldMapping(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	batch := []inat.Observation{rawObservation(1, func(o *inat.Observation) {
		o.Description = ptr("on a thistle")
		o.TimeObservedAt = ptr("2024-05-30T08:15:00-07:00")
		o.ObservedOn = ptr("2024-05-30")
		o.Location = ptr("47.6205,-122.3493")
		o.Geoprivacy = ptr("obscured")
	})}
	require.NoError(t, engine.Ingest(context.Background(), batch))

	var obs datastore.Observation
	require.NoError(t, store.DB.First(&obs, 1).Error)

	require.NotNil(t, obs.Description)
	assert.Equal(t, "on a thistle", *obs.Description)
	require.NotNil(t, obs.ObservedAt)
	assert.Equal(t, time.Date(2024, time.May, 30, 15, 15, 0, 0, time.UTC), obs.ObservedAt.UTC())
	require.NotNil(t, obs.ObservedOn)
	assert.Equal(t, time.Date(2024, time.May, 30, 0, 0, 0, 0, time.UTC), obs.ObservedOrCreatedOn())
	require.NotNil(t, obs.Latitude)
	assert.InDelta(t, 47.6205, *obs.Latitude, 1e-9)
	require.NotNil(t, obs.Longitude)
	assert.InDelta(t, -122.3493, *obs.Longitude, 1e-9)
	assert.True(t, obs.LocationObscured)
	assert.Equal(t, time.Date(2024, time.June, 1, 19, 0, 0, 0, time.UTC), obs.CreatedAt.UTC())
}

func TestIngestMalformedTimestampAbortsRun(t *testing.T) {
	engine, store, changes := newTestEngine(t)

	batch := []inat.Observation{rawObservation(1, func(o *inat.Observation) {
		o.CreatedAt = "junk"
	})}
	err := engine.Ingest(context.Background(), batch)
	require.Error(t, err)

	_, obs, _ := storeCounts(t, store)
	assert.Equal(t, int64(0), obs)

	select {
	case <-changes:
		t.Fatal("no change event for an aborted batch")
	case <-time.After(50 * time.Millisecond):
	}
}

// End-to-end shape of an incremental sync: two pages, watermark, then a
// replay of the first page.
func TestIngestTwoPagesThenReplay(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	pageOne := make([]inat.Observation, 0, 200)
	for id := int64(1); id <= 200; id++ {
		pageOne = append(pageOne, rawObservation(id))
	}
	pageTwo := make([]inat.Observation, 0, 37)
	for id := int64(201); id <= 237; id++ {
		pageTwo = append(pageTwo, rawObservation(id))
	}

	require.NoError(t, engine.Ingest(ctx, pageOne))
	require.NoError(t, engine.Ingest(ctx, pageTwo))

	watermark, err := store.HighestObservationID()
	require.NoError(t, err)
	assert.Equal(t, int64(237), watermark)

	require.NoError(t, engine.Ingest(ctx, pageOne))

	count, err := store.CountObservations()
	require.NoError(t, err)
	assert.Equal(t, int64(237), count)
}
