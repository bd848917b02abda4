// Package conjunction predicts close-approach windows: future intervals in
// which a debris object comes within a threshold distance of the player.
//
// The scan is two-phase: a coarse sweep finds candidate windows, then a
// fine sweep pins down entry, exit, and the minimum-distance point. Objects
// are processed in parallel, bounded by a semaphore; each object's result is
// written into its own slot.
package conjunction

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/AJ-EN/xenonite-mission-control/internal/elements"
	"github.com/AJ-EN/xenonite-mission-control/internal/propagation"
)

const (
	coarseStep = 10 * time.Second
	fineStep   = time.Second

	// minWindow filters out grazing encounters shorter than one fine step
	// pair; they contribute nothing actionable.
	minWindow = 2 * time.Second
)

// Request parameterizes a conjunction scan.
type Request struct {
	Player      elements.ElementSet
	Objects     []elements.ElementSet
	Start       time.Time
	Horizon     time.Duration
	ThresholdKm float64
	MaxEvents   int           // per object
	EpochWindow time.Duration // 0 means propagation.DefaultEpochWindow
}

// Event is one close-approach window for a single object.
type Event struct {
	Enter         time.Time `json:"enter"`
	Closest       time.Time `json:"closest"`
	Exit          time.Time `json:"exit"`
	MinDistanceKm float64   `json:"min_distance_km"`
	DurationSec   float64   `json:"duration_seconds"`
}

// ObjectConjunctions holds the predicted windows for one object.
type ObjectConjunctions struct {
	CatalogNumber int     `json:"catalog_number"`
	Name          string  `json:"name,omitempty"`
	Events        []Event `json:"events"`
	Error         string  `json:"error,omitempty"`
}

// Predict scans every object against the player over the request horizon.
// Each object runs in its own goroutine bounded by a semaphore; a per-object
// failure is reported in its slot and never aborts the scan.
func Predict(ctx context.Context, req Request) ([]ObjectConjunctions, error) {
	playerProp, err := propagation.New(req.Player, req.EpochWindow)
	if err != nil {
		return nil, fmt.Errorf("player propagator: %w", err)
	}

	results := make([]ObjectConjunctions, len(req.Objects))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, obj := range req.Objects {
		wg.Add(1)
		go func(idx int, set elements.ElementSet) {
			defer wg.Done()

			results[idx].CatalogNumber = set.CatalogNumber
			results[idx].Name = set.Name

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx].Error = "cancelled"
				return
			}

			events, err := scanObject(ctx, playerProp, set, req)
			if err != nil {
				results[idx].Error = err.Error()
				return
			}
			results[idx].Events = events
		}(i, obj)
	}

	wg.Wait()
	return results, nil
}

// scanObject finds all close-approach windows for one object.
func scanObject(ctx context.Context, player *propagation.SGP4Propagator, set elements.ElementSet, req Request) ([]Event, error) {
	prop, err := propagation.New(set, req.EpochWindow)
	if err != nil {
		return nil, fmt.Errorf("sgp4 init: %w", err)
	}

	end := req.Start.Add(req.Horizon)
	maxEvents := req.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 10
	}

	var events []Event
	t := req.Start
	for t.Before(end) && len(events) < maxEvents {
		if ctx.Err() != nil {
			return events, nil
		}

		d, ok := separationKm(player, prop, t)
		if !ok {
			t = t.Add(coarseStep)
			continue
		}

		if d < req.ThresholdKm {
			ev, windowEnd := refineWindow(ctx, player, prop, t, req.Start, end, req.ThresholdKm)
			if ev != nil && ev.Exit.Sub(ev.Enter) >= minWindow {
				events = append(events, *ev)
			}
			t = windowEnd.Add(coarseStep)
		} else {
			t = t.Add(coarseStep)
		}
	}

	return events, nil
}

// refineWindow fine-scans around a coarse hit: it backs up to find the
// actual threshold crossing, walks forward to the exit, and tracks the
// minimum-distance point along the way. Returns the event and the time the
// window ends.
func refineWindow(ctx context.Context, player, prop *propagation.SGP4Propagator, coarseHit, windowStart, windowEnd time.Time, thresholdKm float64) (*Event, time.Time) {
	searchStart := coarseHit.Add(-coarseStep)
	if searchStart.Before(windowStart) {
		searchStart = windowStart
	}

	var (
		enter, exit, closest time.Time
		minDist              float64
		inside               bool
		found                bool
	)

	t := searchStart
	for t.Before(windowEnd) {
		if ctx.Err() != nil {
			break
		}

		d, ok := separationKm(player, prop, t)
		if !ok {
			t = t.Add(fineStep)
			continue
		}

		within := d < thresholdKm

		if within && !inside {
			enter = t
			closest = t
			minDist = d
			found = true
		}
		if within && found && d < minDist {
			minDist = d
			closest = t
		}
		if !within && inside && found {
			exit = t
			break
		}

		inside = within
		t = t.Add(fineStep)
	}

	// Still inside at the end of the horizon: close the window there.
	if found && exit.IsZero() && inside {
		exit = t
	}

	if !found || exit.IsZero() {
		return nil, t
	}

	return &Event{
		Enter:         enter,
		Closest:       closest,
		Exit:          exit,
		MinDistanceKm: minDist,
		DurationSec:   exit.Sub(enter).Seconds(),
	}, exit
}

// separationKm returns the player-object distance at time t, or false when
// either object has no valid position there.
func separationKm(player, prop *propagation.SGP4Propagator, t time.Time) (float64, bool) {
	ps, err := player.At(t)
	if err != nil {
		return 0, false
	}
	os, err := prop.At(t)
	if err != nil {
		return 0, false
	}
	return ps.Position.Distance(os.Position), true
}
