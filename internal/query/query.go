// Package query builds store queries from the active refinement set
// and runs them with last-issued-wins supersession.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rainhead/lifelight-go/internal/datastore"
	"github.com/rainhead/lifelight-go/internal/errors"
	"github.com/rainhead/lifelight-go/internal/events"
	"github.com/rainhead/lifelight-go/internal/logging"
)

// Refinement is one user-selected filter: a calendar month or a taxon
// subtree. Refinements compare by value, so a set can be held in a map
// keyed on the Refinement itself.
type Refinement struct {
	kind    refinementKind
	month   time.Month
	taxonID int64
}

type refinementKind int

const (
	kindMonth refinementKind = iota + 1
	kindTaxon
)

// Month selects observations whose observed-or-created day falls in m,
// any year.
func Month(m time.Month) Refinement {
	return Refinement{kind: kindMonth, month: m}
}

// Taxon selects observations whose taxon is id or any descendant of
// id.
func Taxon(id int64) Refinement {
	return Refinement{kind: kindTaxon, taxonID: id}
}

// Month returns the selected month and whether this is a month
// refinement.
func (r Refinement) Month() (time.Month, bool) {
	return r.month, r.kind == kindMonth
}

// TaxonID returns the selected taxon id and whether this is a taxon
// refinement.
func (r Refinement) TaxonID() (int64, bool) {
	return r.taxonID, r.kind == kindTaxon
}

func (r Refinement) String() string {
	switch r.kind {
	case kindMonth:
		return fmt.Sprintf("month(%s)", r.month)
	case kindTaxon:
		return fmt.Sprintf("taxon(%d)", r.taxonID)
	}
	return "refinement(?)"
}

// Request is one query against the store. A non-empty Search string
// suppresses the refinement predicate while active: results are then
// restricted by taxon name match alone, exact when ExactName is set,
// unanchored substring otherwise.
type Request struct {
	Refinements []Refinement
	Search      string
	ExactName   bool
}

// Result is the ordered photo rows a query produced, tagged with the
// sequence number of the request that issued it.
type Result struct {
	Seq  uint64
	Rows []datastore.PhotoWithObservation
}

const closureCacheTTL = 10 * time.Minute

// Engine translates requests into store filters. Descendant closures
// are memoized per seed taxon; the cache is flushed whenever the store
// reports a mutation, since new taxa may extend any subtree.
type Engine struct {
	store    datastore.Interface
	closures *cache.Cache
	logger   *slog.Logger
}

// NewEngine returns an engine reading from store. When bus is non-nil
// the engine subscribes to it and invalidates its closure cache on
// every store change; the subscription lives until ctx is done.
func NewEngine(ctx context.Context, store datastore.Interface, bus *events.Bus) *Engine {
	e := &Engine{
		store:    store,
		closures: cache.New(closureCacheTTL, closureCacheTTL),
		logger:   logging.ForService("query"),
	}
	if bus != nil {
		changes, cancel := bus.Subscribe(4)
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-changes:
					if !ok {
						return
					}
					e.closures.Flush()
				}
			}
		}()
	}
	return e
}

// Photos runs req and returns one row per photo in canonical order,
// observed-or-created day descending with id descending as tiebreak.
func (e *Engine) Photos(ctx context.Context, req Request) ([]datastore.PhotoWithObservation, error) {
	filter, err := e.buildFilter(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.store.PhotosWithObservations(filter)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("query complete",
		"refinements", len(req.Refinements),
		"search", req.Search,
		"rows", len(rows),
		"elapsed", time.Since(start))
	return rows, nil
}

// buildFilter composes the refinement set into a store filter: months
// OR-combined among themselves, taxa expanded to their descendant
// closure, the two categories AND-combined. A non-empty search string
// replaces the refinement predicate entirely.
func (e *Engine) buildFilter(req Request) (datastore.ObservationFilter, error) {
	if req.Search != "" {
		return datastore.ObservationFilter{
			TaxonName: req.Search,
			ExactName: req.ExactName,
		}, nil
	}

	var filter datastore.ObservationFilter
	var seeds []int64
	for _, r := range req.Refinements {
		if m, ok := r.Month(); ok {
			filter.Months = append(filter.Months, m)
		}
		if id, ok := r.TaxonID(); ok {
			seeds = append(seeds, id)
		}
	}
	if len(seeds) > 0 {
		closure, err := e.descendantClosure(seeds)
		if err != nil {
			return datastore.ObservationFilter{}, err
		}
		if len(closure) == 0 {
			// Seeds absent from the store match nothing.
			closure = []int64{-1}
		}
		filter.TaxonIDs = closure
	}
	return filter, nil
}

func (e *Engine) descendantClosure(seeds []int64) ([]int64, error) {
	union := make(map[int64]struct{})
	var misses []int64
	for _, seed := range seeds {
		key := fmt.Sprintf("%d", seed)
		if cached, ok := e.closures.Get(key); ok {
			for _, id := range cached.([]int64) {
				union[id] = struct{}{}
			}
			continue
		}
		misses = append(misses, seed)
	}

	for _, seed := range misses {
		closure, err := e.store.DescendantTaxa([]int64{seed})
		if err != nil {
			return nil, errors.New(err).
				Component("query").
				Category(errors.CategoryDatabase).
				Context("taxon_id", seed).
				Build()
		}
		e.closures.Set(fmt.Sprintf("%d", seed), closure, cache.DefaultExpiration)
		for _, id := range closure {
			union[id] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}
	return ids, nil
}
