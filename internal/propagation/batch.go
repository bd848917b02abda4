package propagation

import (
	"log/slog"
	"time"

	"github.com/AJ-EN/xenonite-mission-control/internal/elements"
)

// Batch holds preinitialized propagators for one catalog generation.
// SGP4 initialization is the expensive part, so it runs once per catalog
// swap instead of once per tick. Immutable after construction; safe for
// concurrent reads.
type Batch struct {
	LoadedAt time.Time
	Sets     []elements.ElementSet

	// props is index-aligned with Sets; nil where initialization failed.
	props []*SGP4Propagator
}

// NewBatch builds propagators for every record in the catalog. Records whose
// SGP4 initialization fails are logged and left nil; they simply never
// produce a position.
func NewBatch(cat *elements.Catalog, epochWindow time.Duration, logger *slog.Logger) *Batch {
	if cat == nil {
		return &Batch{}
	}

	props := make([]*SGP4Propagator, len(cat.Records))
	var skipped int
	for i, set := range cat.Records {
		p, err := New(set, epochWindow)
		if err != nil {
			logger.Warn("sgp4 init failed",
				"category", cat.Category.String(),
				"catalog_number", set.CatalogNumber,
				"error", err,
			)
			skipped++
			continue
		}
		props[i] = p
	}

	if skipped > 0 {
		logger.Info("propagator batch built with skips",
			"category", cat.Category.String(),
			"total", len(cat.Records),
			"skipped", skipped,
		)
	}

	return &Batch{
		LoadedAt: cat.LoadedAt,
		Sets:     cat.Records,
		props:    props,
	}
}

// Len returns the number of records in the batch, including failed inits.
func (b *Batch) Len() int {
	return len(b.Sets)
}

// Stale reports whether the batch was built from a different catalog
// generation than cat.
func (b *Batch) Stale(cat *elements.Catalog) bool {
	if cat == nil {
		return b.Len() != 0
	}
	return !b.LoadedAt.Equal(cat.LoadedAt)
}
