// Offline diagnostic: loads catalogs and a player element set, runs the
// simulation for a number of virtual minutes without the HTTP layer, and
// prints the threat timeline plus a conjunction scan.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/AJ-EN/xenonite-mission-control/internal/conjunction"
	"github.com/AJ-EN/xenonite-mission-control/internal/elements"
	"github.com/AJ-EN/xenonite-mission-control/internal/sim"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	dataDir := os.Getenv("XENONITE_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	playerFile := os.Getenv("XENONITE_PLAYER_FILE")
	if playerFile == "" {
		playerFile = filepath.Join(dataDir, "player.tle")
	}

	minutes := envInt("XENONITE_DIAG_MINUTES", 10)
	multiplier := envFloat("XENONITE_DIAG_MULTIPLIER", 60)

	store := elements.NewStore()
	engine, err := sim.NewEngine(store, sim.Config{Multiplier: multiplier}, logger)
	if err != nil {
		fmt.Println("ERROR creating engine:", err)
		os.Exit(1)
	}

	for _, cat := range []elements.Category{elements.CategoryDebris, elements.CategoryActive, elements.CategoryCritical} {
		path := filepath.Join(dataDir, cat.String()+".tle")
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		res, err := engine.IngestElements(cat, f)
		f.Close()
		if err != nil {
			fmt.Printf("ERROR ingesting %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Loaded %s catalog: %d valid, %d skipped\n", cat, res.Valid, res.Skipped)
	}

	pf, err := os.Open(playerFile)
	if err != nil {
		fmt.Println("ERROR opening player file:", err)
		os.Exit(1)
	}
	res, err := elements.IngestBatch(pf, logger)
	pf.Close()
	if err != nil || len(res.Records) == 0 {
		fmt.Println("ERROR: no valid player element set in", playerFile)
		os.Exit(1)
	}
	player := res.Records[0]
	if err := engine.SetPlayer(player.Name, player.Line1, player.Line2); err != nil {
		fmt.Println("ERROR setting player:", err)
		os.Exit(1)
	}
	fmt.Printf("Tracking %s (catalog %d) epoch %v\n", player.Name, player.CatalogNumber, player.Epoch)

	// Drive the tick loop with synthetic wall time: 100 ms frames, so each
	// frame advances virtual time by 100 ms * multiplier.
	frame := 100 * time.Millisecond
	start := time.Now().UTC()
	totalVirtual := time.Duration(minutes) * time.Minute
	frames := int(totalVirtual / time.Duration(float64(frame)*multiplier))

	fmt.Printf("\nSimulating %d virtual minutes at %.0fx (%d frames)\n\n", minutes, multiplier, frames)
	fmt.Println("Threat timeline (one line per virtual 30s):")

	reportEvery := 30 * time.Second
	var lastReport time.Time
	for i := 0; i <= frames; i++ {
		now := start.Add(time.Duration(i) * frame)
		engine.Tick(now)

		st := engine.State()
		if lastReport.IsZero() || st.VirtualTime.Sub(lastReport) >= reportEvery {
			lastReport = st.VirtualTime
			snap := st.Threat
			fmt.Printf("  %s  score=%3d  status=%-8s  threats=%d  %s\n",
				st.VirtualTime.Format(time.RFC3339), snap.Score, snap.StatusText,
				len(snap.ClosestThreats), snap.Narrative)
		}
	}

	samples, summary := engine.ThreatHistory()
	fmt.Printf("\nHistory: %d samples, mean=%.1f max=%.0f\n", summary.Count, summary.Mean, summary.Max)
	if len(samples) > 0 {
		fmt.Printf("Oldest sample: %v score=%d\n", samples[0].At.Format(time.RFC3339), samples[0].Score)
	}

	// Conjunction scan over the next hour of virtual time.
	objects := append([]elements.ElementSet{}, engine.CatalogRecords(elements.CategoryDebris)...)
	objects = append(objects, engine.CatalogRecords(elements.CategoryCritical)...)

	fmt.Printf("\nConjunction scan: %d objects, 1h horizon, 25 km threshold\n", len(objects))
	results, err := conjunction.Predict(context.Background(), conjunction.Request{
		Player:      player,
		Objects:     objects,
		Start:       engine.State().VirtualTime,
		Horizon:     time.Hour,
		ThresholdKm: 25,
		MaxEvents:   5,
	})
	if err != nil {
		fmt.Println("ERROR running scan:", err)
		os.Exit(1)
	}

	totalEvents := 0
	for _, obj := range results {
		if obj.Error != "" {
			fmt.Printf("  catalog %d: ERROR %s\n", obj.CatalogNumber, obj.Error)
			continue
		}
		if len(obj.Events) == 0 {
			continue
		}
		fmt.Printf("  catalog %d (%s): %d windows\n", obj.CatalogNumber, obj.Name, len(obj.Events))
		totalEvents += len(obj.Events)
		for j, ev := range obj.Events {
			fmt.Printf("    window %d: enter=%v minDist=%.2fkm dur=%.0fs\n",
				j, ev.Enter.Format(time.RFC3339), ev.MinDistanceKm, ev.DurationSec)
		}
	}
	fmt.Printf("\nTotal conjunction windows: %d\n", totalEvents)
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}
