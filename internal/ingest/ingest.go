// Package ingest applies fetched observation batches to the local
// store: taxa first, then observations, then photos, preserving
// referential integrity, and publishes a change event on success.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/rainhead/lifelight-go/internal/datastore"
	"github.com/rainhead/lifelight-go/internal/events"
	"github.com/rainhead/lifelight-go/internal/inat"
	"github.com/rainhead/lifelight-go/internal/logging"
)

// Engine performs ordered, idempotent upserts of raw observation
// batches into the store.
type Engine struct {
	store  datastore.Interface
	bus    *events.Bus
	logger *slog.Logger
}

// New creates an ingestion engine publishing change events to bus.
func New(store datastore.Interface, bus *events.Bus) *Engine {
	return &Engine{
		store:  store,
		bus:    bus,
		logger: logging.ForService("ingest"),
	}
}

// Ingest upserts one batch. An empty batch is a no-op and fires no
// notification. Mapping failures are schema mismatches and abort the
// whole sync run. Store write failures are logged and the rest of the
// batch abandoned; they are not propagated, so the fetch loop carries
// on and a later run can fill the gap. Partially applied batches are
// acceptable because upserts are idempotent.
func (e *Engine) Ingest(ctx context.Context, observations []inat.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	taxa := make([]datastore.Taxon, 0, len(observations))
	rows := make([]datastore.Observation, 0, len(observations))
	photos := make([]datastore.ObservationPhoto, 0, len(observations))

	for i := range observations {
		o := &observations[i]
		if o.Taxon != nil {
			taxa = append(taxa, mapTaxon(o.Taxon))
		}
		row, err := mapObservation(o)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		photos = append(photos, mapPhotos(o)...)
	}

	// Taxa are upserted before the observations that reference them,
	// and before photos.
	if err := e.store.UpsertTaxa(taxa); err != nil {
		e.logger.Error("abandoning batch: upserting taxa", "error", err, "batch_size", len(observations))
		return nil
	}
	if err := e.store.UpsertObservations(rows); err != nil {
		e.logger.Error("abandoning batch: upserting observations", "error", err, "batch_size", len(observations))
		return nil
	}
	if err := e.store.UpsertObservationPhotos(photos); err != nil {
		e.logger.Error("abandoning batch: upserting photos", "error", err, "batch_size", len(observations))
		return nil
	}

	e.logger.Debug("ingested batch",
		"observations", len(rows),
		"taxa", len(taxa),
		"photos", len(photos))

	e.bus.Publish(events.StoreChange{At: time.Now()})
	return nil
}

// Handler adapts the engine to the fetch loop's page callback.
func (e *Engine) Handler() inat.PageHandler {
	return func(ctx context.Context, observations []inat.Observation) error {
		return e.Ingest(ctx, observations)
	}
}
