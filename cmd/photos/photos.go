// Package photos implements the photos command, which queries the
// local database for photo rows and prints them grouped by day or by
// distance from home.
package photos

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rainhead/lifelight-go/internal/conf"
	"github.com/rainhead/lifelight-go/internal/datastore"
	"github.com/rainhead/lifelight-go/internal/errors"
	"github.com/rainhead/lifelight-go/internal/group"
	"github.com/rainhead/lifelight-go/internal/query"
)

// Command creates the photos command.
func Command(settings *conf.Settings) *cobra.Command {
	var months []int
	var taxonIDs []int64
	var search string
	var exact bool
	var by string
	var origin string

	cmd := &cobra.Command{
		Use:   "photos",
		Short: "List photos of matching observations, grouped by day or distance",
		Long: `Query the local database for observation photos. Refinements combine
as month OR month, taxon OR taxon, months AND taxa. A search string
replaces the refinements with a taxon name match. Taxon refinements
cover the whole subtree below each selected taxon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if by != "day" && by != "distance" {
				return errors.Newf("unknown grouping %q, want day or distance", by).
					Component("photos").
					Category(errors.CategoryValidation).
					Build()
			}

			home := group.Point{Latitude: settings.Home.Latitude, Longitude: settings.Home.Longitude}
			if origin != "" {
				point, err := parseOrigin(origin)
				if err != nil {
					return err
				}
				home = point
			}

			store := datastore.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			req := query.Request{Search: search, ExactName: exact}
			for _, m := range months {
				if m < 1 || m > 12 {
					return errors.Newf("month %d out of range 1-12", m).
						Component("photos").
						Category(errors.CategoryValidation).
						Build()
				}
				req.Refinements = append(req.Refinements, query.Month(time.Month(m)))
			}
			for _, id := range taxonIDs {
				req.Refinements = append(req.Refinements, query.Taxon(id))
			}

			engine := query.NewEngine(cmd.Context(), store, nil)
			rows, err := engine.Photos(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if desc := describeRequest(req); desc != "" {
				fmt.Fprintln(out, desc)
			}
			if by == "distance" {
				printByDistance(out, rows, home)
			} else {
				printByDay(out, rows)
			}
			fmt.Fprintln(out, summarize(rows))
			return nil
		},
	}

	cmd.Flags().IntSliceVarP(&months, "month", "m", nil, "Calendar month 1-12, repeatable")
	cmd.Flags().Int64SliceVarP(&taxonIDs, "taxon", "t", nil, "Taxon id including its subtree, repeatable")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Taxon name to match instead of refinements")
	cmd.Flags().BoolVar(&exact, "exact", false, "Match the search string exactly instead of as a substring")
	cmd.Flags().StringVar(&by, "by", "day", "Grouping: day or distance")
	cmd.Flags().StringVar(&origin, "origin", "", "Reference point for distance grouping as lat,lng (default: home)")

	return cmd
}

func parseOrigin(s string) (group.Point, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return group.Point{}, originError(s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return group.Point{}, originError(s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return group.Point{}, originError(s)
	}
	return group.Point{Latitude: lat, Longitude: lng}, nil
}

func originError(s string) error {
	return errors.Newf("invalid origin %q, want lat,lng", s).
		Component("photos").
		Category(errors.CategoryValidation).
		Build()
}

func printByDay(w io.Writer, rows []datastore.PhotoWithObservation) {
	for _, g := range group.ChunkByDay(rows) {
		fmt.Fprintf(w, "%s\n", g.Day.Format("2006-01-02"))
		printRows(w, g.Rows)
	}
}

func printByDistance(w io.Writer, rows []datastore.PhotoWithObservation, origin group.Point) {
	// The canonical ordering is by day; distance grouping needs the
	// rows ordered by band first so each band forms one run.
	sorted := make([]datastore.PhotoWithObservation, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return group.SortKey(sorted[i], origin) < group.SortKey(sorted[j], origin)
	})

	for _, g := range group.ChunkByDistance(sorted, origin) {
		fmt.Fprintf(w, "%s\n", g.Band)
		printRows(w, g.Rows)
	}
}

// describeRequest renders the active refinements, months by name.
func describeRequest(req query.Request) string {
	if req.Search != "" {
		if req.ExactName {
			return fmt.Sprintf("taxon name is %q", req.Search)
		}
		return fmt.Sprintf("taxon name contains %q", req.Search)
	}

	var months, taxa []string
	for _, r := range req.Refinements {
		if m, ok := r.Month(); ok {
			months = append(months, m.String())
		}
		if id, ok := r.TaxonID(); ok {
			taxa = append(taxa, strconv.FormatInt(id, 10))
		}
	}

	var parts []string
	if len(months) > 0 {
		parts = append(parts, "months: "+strings.Join(months, ", "))
	}
	if len(taxa) > 0 {
		parts = append(parts, "taxa: "+strings.Join(taxa, ", "))
	}
	return strings.Join(parts, "; ")
}

func summarize(rows []datastore.PhotoWithObservation) string {
	observations := make(map[int64]struct{}, len(rows))
	taxa := make(map[int64]struct{})
	for _, row := range rows {
		observations[row.Observation.ID] = struct{}{}
		if row.Observation.TaxonID != nil {
			taxa[*row.Observation.TaxonID] = struct{}{}
		}
	}
	return fmt.Sprintf("%d photos, %d observations, %d taxa", len(rows), len(observations), len(taxa))
}

func printRows(w io.Writer, rows []datastore.PhotoWithObservation) {
	for _, row := range rows {
		fmt.Fprintf(w, "  %d\t%s\n", row.Observation.ID, row.Photo.VariantURL(datastore.VariantMedium))
	}
}
