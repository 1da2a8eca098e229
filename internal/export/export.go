// Package export writes the observation table as delimited text for
// use outside the application.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rainhead/lifelight-go/internal/datastore"
	"github.com/rainhead/lifelight-go/internal/errors"
)

var header = []string{"id", "observedOn", "createdAt", "taxonName"}

const observedOnLayout = "01-02-2006"

// WriteCSV writes every observation in ascending id order. The
// observedOn column is MM-dd-yyyy or empty when no explicit observed
// day exists; createdAt is RFC 3339; taxonName is empty when no taxon
// is linked.
func WriteCSV(w io.Writer, store datastore.Interface) (int, error) {
	rows, err := store.ObservationsWithTaxonNames()
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, writeError(err)
	}
	for _, row := range rows {
		observedOn := ""
		if row.Observation.ObservedOn != nil {
			observedOn = row.Observation.ObservedOn.Format(observedOnLayout)
		}
		record := []string{
			strconv.FormatInt(row.Observation.ID, 10),
			observedOn,
			row.Observation.CreatedAt.UTC().Format(time.RFC3339),
			row.TaxonName,
		}
		if err := cw.Write(record); err != nil {
			return 0, writeError(err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, writeError(err)
	}
	return len(rows), nil
}

func writeError(err error) error {
	return errors.Newf("writing export: %w", err).
		Component("export").
		Category(errors.CategoryFileIO).
		Build()
}
