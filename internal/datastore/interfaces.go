// interfaces.go defines the store interface and its GORM implementation.
package datastore

import (
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rainhead/lifelight-go/internal/errors"
)

// SearchLimit caps taxon substring search results; the lookup is meant
// for interactive search-as-you-type.
const SearchLimit = 10

// Interface abstracts the underlying database implementation and
// defines the operations the rest of the application uses.
type Interface interface {
	Open() error
	Close() error

	// Writes. Each call is idempotent: applying the same rows twice
	// leaves the store unchanged.
	UpsertTaxa(taxa []Taxon) error
	UpsertObservations(observations []Observation) error
	UpsertObservationPhotos(photos []ObservationPhoto) error

	// Reads.
	HighestObservationID() (int64, error)
	CountObservations() (int64, error)
	SearchTaxa(substring string) ([]Taxon, error)
	DescendantTaxa(seeds []int64) ([]int64, error)
	PhotosWithObservations(filter ObservationFilter) ([]PhotoWithObservation, error)
	ObservationsWithTaxonNames() ([]ObservationWithTaxonName, error)
}

// ObservationFilter narrows a photo-observation query. A non-empty
// TaxonName suppresses the Months/TaxonIDs predicate entirely.
// TaxonIDs must already be closure-expanded by the caller.
type ObservationFilter struct {
	Months    []time.Month
	TaxonIDs  []int64
	TaxonName string
	ExactName bool
}

// DataStore implements Interface using a GORM database. All writes are
// serialized through writeMu (single writer); reads run concurrently
// against the connection.
type DataStore struct {
	DB      *gorm.DB
	writeMu sync.Mutex
}

// UpsertTaxa inserts or updates taxa in one statement per batch,
// deduplicated by id. Mutable fields are overwritten on conflict; the
// id is never regenerated.
func (ds *DataStore) UpsertTaxa(taxa []Taxon) error {
	rows := dedupTaxa(taxa)
	if len(rows) == 0 {
		return nil
	}

	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"is_active", "name", "parent_id", "preferred_common_name", "rank",
			}),
		}).Create(&rows).Error
	})
	if err != nil {
		return errors.Newf("upserting %d taxa: %w", len(rows), err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// UpsertObservations inserts or updates observations. On conflict only
// mutable fields are updated, and only when the incoming updated_at is
// not older than the stored one, so a replay of stale data can never
// regress state. CreatedAt and ID are immutable once written.
func (ds *DataStore) UpsertObservations(observations []Observation) error {
	rows := dedupObservations(observations)
	if len(rows) == 0 {
		return nil
	}

	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "latitude", "longitude", "location_obscured",
				"observed_at", "observed_on", "updated_at", "taxon_id",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "excluded.updated_at >= observations.updated_at"},
			}},
		}).Create(&rows).Error
	})
	if err != nil {
		return errors.Newf("upserting %d observations: %w", len(rows), err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// UpsertObservationPhotos inserts or updates photo rows.
func (ds *DataStore) UpsertObservationPhotos(photos []ObservationPhoto) error {
	rows := dedupPhotos(photos)
	if len(rows) == 0 {
		return nil
	}

	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"observation_id", "position", "original_height", "original_width", "square_url",
			}),
		}).Create(&rows).Error
	})
	if err != nil {
		return errors.Newf("upserting %d observation photos: %w", len(rows), err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// HighestObservationID returns the largest ingested observation id, or
// zero for an empty store. It seeds the incremental-sync watermark.
func (ds *DataStore) HighestObservationID() (int64, error) {
	var id int64
	err := ds.DB.Model(&Observation{}).
		Select("coalesce(max(id), 0)").
		Scan(&id).Error
	if err != nil {
		return 0, errors.Newf("querying highest observation id: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return id, nil
}

// CountObservations returns the number of observation rows.
func (ds *DataStore) CountObservations() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Observation{}).Count(&count).Error; err != nil {
		return 0, errors.Newf("counting observations: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return count, nil
}

// SearchTaxa returns taxa whose name contains the given substring,
// case-insensitively and unanchored, capped at SearchLimit rows.
func (ds *DataStore) SearchTaxa(substring string) ([]Taxon, error) {
	var taxa []Taxon
	err := ds.DB.
		Where("instr(lower(name), lower(?)) > 0", substring).
		Order("name").
		Limit(SearchLimit).
		Find(&taxa).Error
	if err != nil {
		return nil, errors.Newf("searching taxa for %q: %w", substring, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return taxa, nil
}

// taxonEdge is the projection used by the closure computation.
type taxonEdge struct {
	ID       int64
	ParentID *int64
}

// DescendantTaxa computes the transitive-descendant closure of the
// seed set: every taxon whose ancestor chain includes a seed, the
// seeds themselves included. The fixpoint loop is bounded by the table
// size, so an accidental parent cycle cannot hang it.
func (ds *DataStore) DescendantTaxa(seeds []int64) ([]int64, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	var edges []taxonEdge
	err := ds.DB.Model(&Taxon{}).
		Select("id", "parent_id").
		Find(&edges).Error
	if err != nil {
		return nil, errors.Newf("loading taxon edges: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	present := make(map[int64]bool, len(edges))
	for _, e := range edges {
		present[e.ID] = true
	}

	closure := make(map[int64]bool, len(seeds))
	for _, id := range seeds {
		if present[id] {
			closure[id] = true
		}
	}

	// Fixpoint: union in taxa whose parent is already in the set.
	for range edges {
		changed := false
		for _, e := range edges {
			if closure[e.ID] || e.ParentID == nil {
				continue
			}
			if closure[*e.ParentID] {
				closure[e.ID] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	ids := make([]int64, 0, len(closure))
	for id := range closure {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// PhotosWithObservations returns one row per photo of every matching
// observation, ordered by observed-or-created day descending with id
// descending as tiebreak, photos in position order within an
// observation. Observations without photos contribute no rows.
func (ds *DataStore) PhotosWithObservations(filter ObservationFilter) ([]PhotoWithObservation, error) {
	obsQuery := ds.DB.Model(&Observation{}).Select("observations.*")

	if filter.TaxonName != "" {
		obsQuery = obsQuery.Joins("JOIN taxa ON taxa.id = observations.taxon_id")
		if filter.ExactName {
			obsQuery = obsQuery.Where("lower(taxa.name) = lower(?)", filter.TaxonName)
		} else {
			obsQuery = obsQuery.Where("instr(lower(taxa.name), lower(?)) > 0", filter.TaxonName)
		}
	} else if len(filter.TaxonIDs) > 0 {
		obsQuery = obsQuery.Where("observations.taxon_id IN ?", filter.TaxonIDs)
	}

	var observations []Observation
	if err := obsQuery.Find(&observations).Error; err != nil {
		return nil, errors.Newf("querying observations: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	// Month membership and the canonical ordering are derived from the
	// observed-or-created day, which mixes an explicit date column with
	// a local-time conversion of created_at. Both are computed here
	// rather than in SQL so the derivation lives in exactly one place.
	if filter.TaxonName == "" && len(filter.Months) > 0 {
		wanted := make(map[time.Month]bool, len(filter.Months))
		for _, m := range filter.Months {
			wanted[m] = true
		}
		kept := observations[:0]
		for _, o := range observations {
			if wanted[o.ObservedOrCreatedOn().Month()] {
				kept = append(kept, o)
			}
		}
		observations = kept
	}

	sort.Slice(observations, func(i, j int) bool {
		di, dj := observations[i].ObservedOrCreatedOn(), observations[j].ObservedOrCreatedOn()
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return observations[i].ID > observations[j].ID
	})

	if len(observations) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(observations))
	for i := range observations {
		ids[i] = observations[i].ID
	}

	var photos []ObservationPhoto
	err := ds.DB.
		Where("observation_id IN ?", ids).
		Order("observation_id").
		Order("position").
		Find(&photos).Error
	if err != nil {
		return nil, errors.Newf("querying observation photos: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	byObservation := make(map[int64][]ObservationPhoto, len(observations))
	for _, p := range photos {
		byObservation[p.ObservationID] = append(byObservation[p.ObservationID], p)
	}

	rows := make([]PhotoWithObservation, 0, len(photos))
	for _, o := range observations {
		for _, p := range byObservation[o.ID] {
			rows = append(rows, PhotoWithObservation{Photo: p, Observation: o})
		}
	}
	return rows, nil
}

// ObservationsWithTaxonNames returns every observation in ascending id
// order paired with its taxon name, empty when no taxon is linked.
func (ds *DataStore) ObservationsWithTaxonNames() ([]ObservationWithTaxonName, error) {
	var observations []Observation
	if err := ds.DB.Order("id").Find(&observations).Error; err != nil {
		return nil, errors.Newf("querying observations: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	taxonIDs := make([]int64, 0, len(observations))
	for i := range observations {
		if observations[i].TaxonID != nil {
			taxonIDs = append(taxonIDs, *observations[i].TaxonID)
		}
	}

	names := make(map[int64]string, len(taxonIDs))
	if len(taxonIDs) > 0 {
		var taxa []Taxon
		if err := ds.DB.Where("id IN ?", taxonIDs).Find(&taxa).Error; err != nil {
			return nil, errors.Newf("querying taxa: %w", err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Build()
		}
		for i := range taxa {
			names[taxa[i].ID] = taxa[i].Name
		}
	}

	rows := make([]ObservationWithTaxonName, len(observations))
	for i := range observations {
		row := ObservationWithTaxonName{Observation: observations[i]}
		if observations[i].TaxonID != nil {
			row.TaxonName = names[*observations[i].TaxonID]
		}
		rows[i] = row
	}
	return rows, nil
}

// dedupTaxa keeps the last occurrence per id, preserving first-seen
// order so batches upsert deterministically.
func dedupTaxa(taxa []Taxon) []Taxon {
	seen := make(map[int64]int, len(taxa))
	out := make([]Taxon, 0, len(taxa))
	for _, t := range taxa {
		if i, ok := seen[t.ID]; ok {
			out[i] = t
			continue
		}
		seen[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}

func dedupObservations(observations []Observation) []Observation {
	seen := make(map[int64]int, len(observations))
	out := make([]Observation, 0, len(observations))
	for _, o := range observations {
		if i, ok := seen[o.ID]; ok {
			out[i] = o
			continue
		}
		seen[o.ID] = len(out)
		out = append(out, o)
	}
	return out
}

func dedupPhotos(photos []ObservationPhoto) []ObservationPhoto {
	seen := make(map[int64]int, len(photos))
	out := make([]ObservationPhoto, 0, len(photos))
	for _, p := range photos {
		if i, ok := seen[p.ID]; ok {
			out[i] = p
			continue
		}
		seen[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}
