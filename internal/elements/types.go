package elements

import "time"

// Category classifies an element set within a tracking session.
type Category int

const (
	CategoryPlayer Category = iota
	CategoryActive
	CategoryDebris
	CategoryCritical
	numCategories
)

// Categories lists all catalog categories in a stable order.
var Categories = []Category{CategoryPlayer, CategoryActive, CategoryDebris, CategoryCritical}

func (c Category) String() string {
	switch c {
	case CategoryPlayer:
		return "player"
	case CategoryActive:
		return "active"
	case CategoryDebris:
		return "debris"
	case CategoryCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// CategoryFromString returns the category named by s, or false if unknown.
// The player category is not addressable by name; it is set via SetPlayer only.
func CategoryFromString(s string) (Category, bool) {
	switch s {
	case "active":
		return CategoryActive, true
	case "debris":
		return CategoryDebris, true
	case "critical":
		return CategoryCritical, true
	default:
		return 0, false
	}
}

// ElementSet is an immutable two-line element record with the physical
// quantities decoded once at ingest time.
type ElementSet struct {
	Name          string
	CatalogNumber int
	Epoch         time.Time
	Line1         string
	Line2         string

	InclinationDeg      float64
	Eccentricity        float64
	MeanMotionRevPerDay float64
}

// Catalog is one category's set of element records. Immutable after
// construction; replaced wholesale when a new catalog is ingested.
type Catalog struct {
	Category Category
	LoadedAt time.Time
	Records  []ElementSet
}

// BatchResult summarizes a batch ingest: how many records parsed, how many
// were skipped as malformed, and the surviving records.
type BatchResult struct {
	Valid   int
	Skipped int
	Records []ElementSet
}
