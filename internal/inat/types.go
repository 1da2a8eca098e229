// Package inat implements the read-only client for the remote
// observation API: wire types matching the field-selection descriptor
// and a paginated fetch loop with page-number and id-watermark cursors.
package inat

// Field-selection descriptors sent with every page request. The server
// returns only the attributes named here, nested per sub-object.
const (
	photoFields            = "(id:!t,attribution:!t,hidden:!t,license_code:!t,url:!t,original_dimensions:(height:!t,width:!t))"
	observationPhotoFields = "(id:!t,photo:" + photoFields + ",position:!t)"
	userFields             = "(created_at:!t,id:!t,icon:!t,icon_url:!t,login:!t,name:!t)"
	taxonFields            = "(id:!t,is_active:!t,name:!t,rank:!t,parent_id:!t,preferred_common_name:!t,wikipedia_url:!t)"
	annotationFields       = "(id:!t,uuid:!t,controlled_attribute_id:!t,controlled_value_id:!t,user_id:!t,vote_score:!t)"
	identificationFields   = "(id:!t,uuid:!t,body:!t,category:!t,created_at:!t,current:!t,disagreement:!t," +
		"user:" + userFields + ",taxon:" + taxonFields + ")"

	// ObservationFields is the full descriptor for one observation.
	ObservationFields = "(id:!t,description:!t,uuid:!t,uri:!t,time_observed_at:!t,observed_on:!t,created_at:!t,updated_at:!t," +
		"created_time_zone:!t,observed_time_zone:!t," +
		"annotations:" + annotationFields + "," +
		"quality_grade:!t,faves_count:!t," +
		"identifications:" + identificationFields + "," +
		"taxon:" + taxonFields + ",user:" + userFields + "," +
		"observation_photos:" + observationPhotoFields + ",location:!t,geoprivacy:!t)"
)

// Page is one page of a paginated response.
type Page struct {
	TotalResults int           `json:"total_results"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	Results      []Observation `json:"results"`
}

// TotalPages computes the page count from the server-reported totals.
func (p *Page) TotalPages() int {
	if p.PerPage <= 0 {
		return 0
	}
	totalPages := p.TotalResults / p.PerPage
	if p.TotalResults%p.PerPage > 0 {
		totalPages++
	}
	return totalPages
}

// NextPage returns the number of the page after this one, or false
// when this is the last page.
func (p *Page) NextPage() (int, bool) {
	if p.TotalPages() > p.Page {
		return p.Page + 1, true
	}
	return 0, false
}

// Observation is the JSON representation of an observation as returned
// by the API. Timestamps stay as strings on the wire; they are parsed
// with explicit per-field parse functions during ingestion mapping.
type Observation struct {
	ID               int64              `json:"id"`
	UUID             string             `json:"uuid"`
	URI              string             `json:"uri"`
	Description      *string            `json:"description"`
	CreatedAt        string             `json:"created_at"`
	UpdatedAt        string             `json:"updated_at"`
	TimeObservedAt   *string            `json:"time_observed_at"`
	ObservedOn       *string            `json:"observed_on"`
	CreatedTimeZone  string             `json:"created_time_zone"`
	ObservedTimeZone string             `json:"observed_time_zone"`
	QualityGrade     string             `json:"quality_grade"`
	FavesCount       int                `json:"faves_count"`
	Location         *string            `json:"location"` // "lat,lng"
	Geoprivacy       *string            `json:"geoprivacy"`
	Taxon            *Taxon             `json:"taxon"`
	User             User               `json:"user"`
	Annotations      []Annotation       `json:"annotations"`
	Identifications  []Identification   `json:"identifications"`
	Photos           []ObservationPhoto `json:"observation_photos"`
}

// Obscured reports whether the observation's coordinates are
// deliberately imprecise.
func (o *Observation) Obscured() bool {
	return o.Geoprivacy != nil && *o.Geoprivacy == "obscured"
}

// Taxon is the classification payload nested in observations and
// identifications.
type Taxon struct {
	ID                  int64   `json:"id"`
	IsActive            bool    `json:"is_active"`
	Name                string  `json:"name"`
	ParentID            *int64  `json:"parent_id"`
	PreferredCommonName *string `json:"preferred_common_name"`
	Rank                string  `json:"rank"`
	WikipediaURL        *string `json:"wikipedia_url"`
}

// User is the observer sub-object.
type User struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	CreatedAt string  `json:"created_at"`
	Icon      *string `json:"icon"`     // thumb, max dimension 100px
	IconURL   *string `json:"icon_url"` // medium, max dimension 500px
}

// Annotation is a controlled-vocabulary tag attached to an observation.
type Annotation struct {
	UUID                  string `json:"uuid"`
	ControlledAttributeID int64  `json:"controlled_attribute_id"`
	ControlledValueID     int64  `json:"controlled_value_id"`
	UserID                int64  `json:"user_id"`
	VoteScore             int    `json:"vote_score"`
}

// Identification is another user's classification of an observation.
type Identification struct {
	ID           int64   `json:"id"`
	UUID         string  `json:"uuid"`
	Body         *string `json:"body"`
	Category     *string `json:"category"` // improving, supporting, leading, maverick
	CreatedAt    string  `json:"created_at"`
	Current      bool    `json:"current"`
	Disagreement *bool   `json:"disagreement"`
	Taxon        Taxon   `json:"taxon"`
	User         User    `json:"user"`
}

// ObservationPhoto links a photo to its observation with an ordering
// position.
type ObservationPhoto struct {
	ID       int64 `json:"id"`
	Position int   `json:"position"`
	Photo    Photo `json:"photo"`
}

// Photo carries the square image URL; other resolutions are derived by
// URL-suffix substitution and never stored.
type Photo struct {
	ID                 int64      `json:"id"`
	Attribution        string     `json:"attribution"`
	LicenseCode        *string    `json:"license_code"`
	URL                string     `json:"url"` // 75px square
	OriginalDimensions Dimensions `json:"original_dimensions"`
}

// Dimensions is the original photo size in pixels.
type Dimensions struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}
