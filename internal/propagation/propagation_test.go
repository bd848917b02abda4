package propagation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/AJ-EN/xenonite-mission-control/internal/elements"
)

// Real ISS orbital elements (epoch day 100.5 of 2024), used as a
// well-understood reference orbit.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

// Typical LEO constellation satellite.
const (
	leoLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	leoLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func mustIngest(t *testing.T, name, l1, l2 string) elements.ElementSet {
	t.Helper()
	set, err := elements.Ingest(name, l1, l2)
	if err != nil {
		t.Fatalf("Ingest(%s) failed: %v", name, err)
	}
	return set
}

func TestPropagateDeterministic(t *testing.T) {
	set := mustIngest(t, "ISS", issLine1, issLine2)
	prop, err := New(set, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

	a, err := prop.At(target)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	b, err := prop.At(target)
	if err != nil {
		t.Fatalf("second At failed: %v", err)
	}

	if a != b {
		t.Errorf("propagation not deterministic: %+v != %+v", a, b)
	}

	// ISS orbits at ~420 km altitude.
	if alt := a.AltitudeKm(); alt < 100 || alt > 1000 {
		t.Errorf("altitude = %.1f km, expected low Earth orbit", alt)
	}
	// Orbital speed for LEO is ~7.7 km/s.
	if v := a.SpeedKmS(); v < 6.5 || v > 8.5 {
		t.Errorf("speed = %.2f km/s, expected ~7.7", v)
	}
}

func TestPropagateEpochWindow(t *testing.T) {
	set := mustIngest(t, "ISS", issLine1, issLine2)
	prop, err := New(set, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Far future relative to the 2024 epoch.
	_, err = prop.At(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrEpochRange) {
		t.Errorf("err = %v, want ErrEpochRange", err)
	}

	// Far past as well.
	_, err = prop.At(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrEpochRange) {
		t.Errorf("err = %v, want ErrEpochRange", err)
	}
}

func TestNewRejectsUnvalidatedSet(t *testing.T) {
	_, err := New(elements.ElementSet{Line1: "1 garbage", Line2: "2 garbage"}, 0)
	if err == nil {
		t.Fatal("expected error for unvalidated element set")
	}
}

func TestPoolRunSlotAlignment(t *testing.T) {
	logger := testLogger()

	iss := mustIngest(t, "ISS", issLine1, issLine2)
	leo := mustIngest(t, "LEO-1", leoLine1, leoLine2)

	cat := &elements.Catalog{
		Category: elements.CategoryDebris,
		LoadedAt: time.Now(),
		Records:  []elements.ElementSet{iss, leo, iss},
	}

	batch := NewBatch(cat, 0, logger)
	pool := NewPool(4, logger)

	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	results, success, failed := pool.Run(context.Background(), batch, target)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if success != 3 || failed != 0 {
		t.Fatalf("success=%d failed=%d, want 3/0", success, failed)
	}

	wantNums := []int{25544, 44713, 25544}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d: Index = %d", i, r.Index)
		}
		if r.CatalogNumber != wantNums[i] {
			t.Errorf("result %d: CatalogNumber = %d, want %d", i, r.CatalogNumber, wantNums[i])
		}
	}

	// Identical element sets at the identical time must produce identical
	// states even through the parallel path.
	if results[0].State != results[2].State {
		t.Error("identical inputs produced different states under parallel propagation")
	}

	// Different orbits must differ.
	if math.Abs(results[0].State.Position.X-results[1].State.Position.X) < 1e-9 {
		t.Error("distinct orbits produced suspiciously identical X positions")
	}
}

func TestPoolRunCancelled(t *testing.T) {
	logger := testLogger()

	iss := mustIngest(t, "ISS", issLine1, issLine2)
	records := make([]elements.ElementSet, 200)
	for i := range records {
		records[i] = iss
	}
	cat := &elements.Catalog{LoadedAt: time.Now(), Records: records}
	batch := NewBatch(cat, 0, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewPool(2, logger)
	results, success, failed := pool.Run(ctx, batch, time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC))

	if len(results) != len(records) {
		t.Fatalf("got %d result slots, want %d", len(results), len(records))
	}
	// With the context already cancelled, at most a handful of in-flight
	// propagations finish; the rest report the cancellation.
	if failed == 0 {
		t.Error("expected cancellation failures, got none")
	}
	if success+failed != len(records) {
		t.Errorf("success %d + failed %d != %d", success, failed, len(records))
	}
}

func TestBatchStale(t *testing.T) {
	logger := testLogger()
	iss := mustIngest(t, "ISS", issLine1, issLine2)

	cat := &elements.Catalog{LoadedAt: time.Now(), Records: []elements.ElementSet{iss}}
	batch := NewBatch(cat, 0, logger)

	if batch.Stale(cat) {
		t.Error("batch reported stale for its own catalog")
	}

	newer := &elements.Catalog{LoadedAt: cat.LoadedAt.Add(time.Second), Records: cat.Records}
	if !batch.Stale(newer) {
		t.Error("batch did not report stale for a newer catalog")
	}
	if !NewBatch(nil, 0, logger).Stale(cat) {
		t.Error("empty batch did not report stale for a loaded catalog")
	}
}
