// model.go defines the replicated entities. All primary keys are
// remote-assigned; no locally generated identifiers exist.
package datastore

import (
	"path"
	"strings"
	"time"
)

// Taxon is one node of the classification forest. Records with a nil
// ParentID are roots. Taxa are created and updated by ingestion only,
// never deleted.
type Taxon struct {
	ID                  int64  `gorm:"primaryKey"`
	IsActive            bool   `gorm:"not null"`
	Name                string `gorm:"index:idx_taxa_name;not null"`
	ParentID            *int64 `gorm:"index:idx_taxa_parent_id"`
	PreferredCommonName *string
	Rank                string `gorm:"not null"`
}

// TableName overrides the default pluralization.
func (Taxon) TableName() string { return "taxa" }

// DisplayName prefers the common name when one is set.
func (t *Taxon) DisplayName() string {
	if t.PreferredCommonName != nil && *t.PreferredCommonName != "" {
		return *t.PreferredCommonName
	}
	return t.Name
}

// Ranks is the taxonomic rank vocabulary, highest level first. Rank is
// descriptive only: ordering and hierarchy always derive from the
// parent chain, never from rank.
var Ranks = []string{
	"stateofmatter",
	"kingdom",
	"phylum",
	"subphylum",
	"superclass",
	"class",
	"subclass",
	"infraclass",
	"subterclass",
	"superorder",
	"order",
	"suborder",
	"infraorder",
	"parvorder",
	"zoosection",
	"zoosubsection",
	"superfamily",
	"epifamily",
	"family",
	"subfamily",
	"supertribe",
	"tribe",
	"subtribe",
	"genus",
	"genushybrid",
	"subgenus",
	"section",
	"subsection",
	"complex",
	"species",
	"hybrid",
	"subspecies",
	"variety",
	"form",
	"infrahybrid",
}

// KnownRank reports whether rank belongs to the rank vocabulary.
func KnownRank(rank string) bool {
	for _, r := range Ranks {
		if r == rank {
			return true
		}
	}
	return false
}

// Observation is a single record of an organism. CreatedAt and
// UpdatedAt are remote-authoritative; GORM's automatic timestamping is
// disabled so upserts never overwrite them locally.
type Observation struct {
	ID               int64     `gorm:"primaryKey"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime:false"`
	Description      *string
	Latitude         *float64 `gorm:"index:idx_observations_latitude"`
	Longitude        *float64 `gorm:"index:idx_observations_longitude"`
	LocationObscured bool
	ObservedAt       *time.Time
	ObservedOn       *time.Time // calendar day, independent of ObservedAt's instant
	UpdatedAt        time.Time  `gorm:"not null;autoUpdateTime:false"`
	TaxonID          *int64     `gorm:"index:idx_observations_taxon_id"`
	URI              string     `gorm:"not null"`
}

// ObservedOrCreatedOn is the canonical day key used for grouping and
// ordering: the explicit observed day when present, else the calendar
// day of CreatedAt in local time. The key is normalized to midnight
// UTC so values compare with ==.
func (o *Observation) ObservedOrCreatedOn() time.Time {
	if o.ObservedOn != nil {
		y, m, d := o.ObservedOn.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	y, m, d := o.CreatedAt.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HasLocation reports whether a coordinate pair is present.
func (o *Observation) HasLocation() bool {
	return o.Latitude != nil && o.Longitude != nil
}

// ObservationPhoto is one photo of an observation. Only the square
// variant URL is stored; the others derive from it.
type ObservationPhoto struct {
	ID             int64  `gorm:"primaryKey"`
	ObservationID  int64  `gorm:"index:idx_observation_photos_observation_id;not null"`
	Position       int    `gorm:"not null"`
	OriginalHeight int    `gorm:"not null"`
	OriginalWidth  int    `gorm:"not null"`
	SquareURL      string `gorm:"not null"`
}

// PhotoVariant names a derived image resolution.
type PhotoVariant string

const (
	VariantThumb    PhotoVariant = "thumb"    // max dimension 100px
	VariantSmall    PhotoVariant = "small"    // max dimension 240px
	VariantMedium   PhotoVariant = "medium"   // max dimension 500px
	VariantLarge    PhotoVariant = "large"    // max dimension 1024px
	VariantOriginal PhotoVariant = "original" // max dimension 2048px
)

// VariantURL derives the URL of another resolution by replacing the
// final path component of the square URL, keeping its extension.
func (p *ObservationPhoto) VariantURL(variant PhotoVariant) string {
	idx := strings.LastIndex(p.SquareURL, "/")
	if idx < 0 {
		return p.SquareURL
	}
	ext := path.Ext(p.SquareURL[idx+1:])
	return p.SquareURL[:idx+1] + string(variant) + ext
}

// PhotoWithObservation pairs a photo with its owning observation; the
// query engine returns one row per photo.
type PhotoWithObservation struct {
	Photo       ObservationPhoto
	Observation Observation
}

// ObservationWithTaxonName pairs an observation with its linked taxon
// name, empty when no taxon is linked. Used by the export writer.
type ObservationWithTaxonName struct {
	Observation Observation
	TaxonName   string
}
