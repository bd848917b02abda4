package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AJ-EN/xenonite-mission-control/internal/elements"
	"github.com/AJ-EN/xenonite-mission-control/internal/metrics"
	"github.com/AJ-EN/xenonite-mission-control/internal/propagation"
	"github.com/AJ-EN/xenonite-mission-control/internal/threat"
	"github.com/AJ-EN/xenonite-mission-control/internal/transform"
)

// Cadence holds the per-category refresh intervals. Categories are
// intentionally decoupled: re-propagating the large active-object population
// is far more expensive than re-scoring a few dozen nearby debris objects,
// and must not starve the visually critical player path.
type Cadence struct {
	Debris   time.Duration `yaml:"debris"`
	Active   time.Duration `yaml:"active"`
	Score    time.Duration `yaml:"score"`
	Snapshot time.Duration `yaml:"snapshot"`
}

// DefaultCadence returns the stock refresh intervals.
func DefaultCadence() Cadence {
	return Cadence{
		Debris:   100 * time.Millisecond,
		Active:   500 * time.Millisecond,
		Score:    100 * time.Millisecond,
		Snapshot: 100 * time.Millisecond,
	}
}

// Config configures the engine.
type Config struct {
	Workers     int           // propagation pool size; <= 0 means NumCPU
	EpochWindow time.Duration // element epoch validity window
	Multiplier  float64       // initial time acceleration
	Cadence     Cadence
	Tuning      threat.Tuning
}

// ScenePoint is one object's render-space position.
type ScenePoint struct {
	CatalogNumber int            `json:"catalog_number"`
	Name          string         `json:"name,omitempty"`
	Position      transform.Vec3 `json:"position"`
}

// OrbitalParams summarizes the player's current orbit for display.
type OrbitalParams struct {
	AltitudeKm     float64 `json:"altitude_km"`
	VelocityKmS    float64 `json:"velocity_km_s"`
	InclinationDeg float64 `json:"inclination_deg"`
}

// State is the engine's published snapshot: positions plus the threat
// picture at the last snapshot tick. Immutable once published; consumers
// read it without locking.
type State struct {
	WallTime    time.Time       `json:"wall_time"`
	VirtualTime time.Time       `json:"virtual_time"`
	Multiplier  float64         `json:"multiplier"`
	Paused      bool            `json:"paused"`
	Player      *ScenePoint     `json:"player,omitempty"`
	PlayerOrbit *OrbitalParams  `json:"player_orbit,omitempty"`
	Debris      []ScenePoint    `json:"debris"`
	Critical    []ScenePoint    `json:"critical"`
	Active      []ScenePoint    `json:"active"`
	Threat      threat.Snapshot `json:"threat"`
}

// Engine owns the simulation clock and drives propagation and scoring at
// independent cadences. All domain state is explicit on the engine; there
// are no package-level singletons. Mutation happens under mu (the tick loop
// and control calls); reads go through the lock-free published State.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	logger  *slog.Logger
	store   *elements.Store
	pool    *propagation.Pool
	scoring *threat.Engine
	clock   Clock
	running bool

	batches    map[elements.Category]*propagation.Batch
	playerProp *propagation.SGP4Propagator

	playerScene *transform.Vec3
	playerState *propagation.State
	debrisPts   []ScenePoint
	criticalPts []ScenePoint
	activePts   []ScenePoint

	lastDebris   time.Time
	lastActive   time.Time
	lastScore    time.Time
	lastSnapshot time.Time

	published atomic.Pointer[State]
}

// ErrNoPlayer is returned by operations that require a tracked player.
var ErrNoPlayer = errors.New("no player object set")

// NewEngine creates an engine around the given element store.
func NewEngine(store *elements.Store, cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Tuning == (threat.Tuning{}) {
		cfg.Tuning = threat.DefaultTuning()
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("threat tuning: %w", err)
	}
	if cfg.Cadence == (Cadence{}) {
		cfg.Cadence = DefaultCadence()
	}
	if cfg.EpochWindow <= 0 {
		cfg.EpochWindow = propagation.DefaultEpochWindow
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 1
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		pool:    propagation.NewPool(cfg.Workers, logger),
		scoring: threat.NewEngine(cfg.Tuning),
		clock:   NewClock(cfg.Multiplier),
		batches: make(map[elements.Category]*propagation.Batch),
	}
	e.published.Store(&State{Multiplier: e.clock.Multiplier(), Threat: e.scoring.Last()})
	metrics.SetTimeMultiplier(e.clock.Multiplier())
	return e, nil
}

// IngestElements parses a catalog for one category and installs it,
// replacing any previous catalog. Malformed records are skipped
// individually; the returned result carries the valid and skipped counts.
func (e *Engine) IngestElements(cat elements.Category, r io.Reader) (elements.BatchResult, error) {
	if cat == elements.CategoryPlayer {
		return elements.BatchResult{}, errors.New("player is set via SetPlayer")
	}

	res, err := elements.IngestBatch(r, e.logger)
	if err != nil {
		return elements.BatchResult{}, err
	}

	e.mu.Lock()
	e.store.SetCatalog(cat, res.Records)
	delete(e.batches, cat) // rebuilt lazily on the next refresh
	e.mu.Unlock()

	metrics.SetCatalogObjects(cat.String(), len(res.Records))
	e.logger.Info("catalog ingested",
		"category", cat.String(),
		"valid", res.Valid,
		"skipped", res.Skipped,
	)
	return res, nil
}

// SetPlayer starts a new tracking session around the given element set:
// the clock and threat history reset, and the engine begins running.
func (e *Engine) SetPlayer(name, line1, line2 string) error {
	set, err := elements.Ingest(name, line1, line2)
	if err != nil {
		return fmt.Errorf("player element set: %w", err)
	}
	prop, err := propagation.New(set, e.cfg.EpochWindow)
	if err != nil {
		return fmt.Errorf("player propagator: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.SetCatalog(elements.CategoryPlayer, []elements.ElementSet{set})
	e.playerProp = prop
	e.playerScene = nil
	e.playerState = nil
	e.scoring = threat.NewEngine(e.cfg.Tuning)
	e.clock.Reset()
	e.lastDebris, e.lastActive, e.lastScore, e.lastSnapshot = time.Time{}, time.Time{}, time.Time{}, time.Time{}
	e.running = true

	metrics.SetCatalogObjects(elements.CategoryPlayer.String(), 1)
	e.logger.Info("tracking session started",
		"player", set.Name,
		"catalog_number", set.CatalogNumber,
		"epoch", set.Epoch.UTC().Format(time.RFC3339),
	)
	return nil
}

// HasPlayer reports whether a player object is being tracked.
func (e *Engine) HasPlayer() bool {
	_, ok := e.store.Player()
	return ok
}

// PlayerSet returns the tracked player element set.
func (e *Engine) PlayerSet() (elements.ElementSet, bool) {
	return e.store.Player()
}

// CatalogRecords returns the current records for a category.
func (e *Engine) CatalogRecords(cat elements.Category) []elements.ElementSet {
	c := e.store.Catalog(cat)
	if c == nil {
		return nil
	}
	return c.Records
}

// TrackedObjects returns the total record count across the non-player
// categories.
func (e *Engine) TrackedObjects() int {
	n := 0
	for _, cat := range []elements.Category{elements.CategoryDebris, elements.CategoryActive, elements.CategoryCritical} {
		n += e.store.Count(cat)
	}
	return n
}

// Tick advances the simulation by one host frame. Within a tick the player
// position always updates before the debris and scoring categories that
// depend on it; throttled categories run only when due.
func (e *Engine) Tick(now time.Time) {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	virtual := e.clock.Advance(now)

	// The player path is never throttled: it drives the most visually
	// sensitive element.
	if e.running {
		e.updatePlayer(virtual)
	}

	if e.running && due(now, e.lastDebris, e.cfg.Cadence.Debris) {
		e.debrisPts = e.refresh(elements.CategoryDebris, virtual)
		e.criticalPts = e.refresh(elements.CategoryCritical, virtual)
		e.lastDebris = now
	}

	// Active objects refresh regardless of pause: they are scenery, not
	// collision evaluation.
	if due(now, e.lastActive, e.cfg.Cadence.Active) {
		e.activePts = e.refresh(elements.CategoryActive, virtual)
		e.lastActive = now
	}

	if e.running && due(now, e.lastScore, e.cfg.Cadence.Score) {
		e.score(virtual)
		e.lastScore = now
	}

	if due(now, e.lastSnapshot, e.cfg.Cadence.Snapshot) {
		e.publish(now, virtual)
		e.lastSnapshot = now
	}

	metrics.ObserveTick(time.Since(start))
}

// due reports whether a throttled category should run this tick.
func due(now, last time.Time, interval time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

// updatePlayer recomputes the player position at the current virtual time.
// Any propagation failure leaves the player unlocatable for this tick.
func (e *Engine) updatePlayer(virtual time.Time) {
	e.playerScene = nil
	e.playerState = nil
	if e.playerProp == nil {
		return
	}

	st, err := e.playerProp.At(virtual)
	if err != nil {
		e.logger.Debug("player propagation failed", "error", err)
		return
	}
	scene, ok := transform.ToSceneSpace(st.Position)
	if !ok {
		return
	}
	e.playerState = &st
	e.playerScene = &scene
}

// refresh re-propagates one category's population and converts the results
// to render space. Failed objects are simply absent this round.
func (e *Engine) refresh(cat elements.Category, virtual time.Time) []ScenePoint {
	catalog := e.store.Catalog(cat)
	batch := e.batches[cat]
	if batch == nil || batch.Stale(catalog) {
		batch = propagation.NewBatch(catalog, e.cfg.EpochWindow, e.logger)
		e.batches[cat] = batch
	}
	if batch.Len() == 0 {
		return nil
	}

	start := time.Now()
	results, success, failed := e.pool.Run(context.Background(), batch, virtual)
	metrics.RecordPropagation(cat.String(), time.Since(start), success, failed)

	pts := make([]ScenePoint, 0, success)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		scene, ok := transform.ToSceneSpace(r.State.Position)
		if !ok {
			continue
		}
		pts = append(pts, ScenePoint{
			CatalogNumber: r.CatalogNumber,
			Name:          r.Name,
			Position:      scene,
		})
	}
	return pts
}

// score runs one scoring tick over the debris and critical populations.
func (e *Engine) score(virtual time.Time) {
	objs := make([]threat.Object, 0, len(e.debrisPts)+len(e.criticalPts))
	for _, p := range e.debrisPts {
		objs = append(objs, threat.Object{CatalogNumber: p.CatalogNumber, Name: p.Name, ScenePos: p.Position})
	}
	for _, p := range e.criticalPts {
		objs = append(objs, threat.Object{CatalogNumber: p.CatalogNumber, Name: p.Name, ScenePos: p.Position})
	}

	snap := e.scoring.Evaluate(virtual, e.playerScene, objs)
	metrics.SetThreatScore(snap.Score, len(snap.ClosestThreats))
}

// publish builds and installs a fresh State snapshot.
func (e *Engine) publish(now, virtual time.Time) {
	st := &State{
		WallTime:    now,
		VirtualTime: virtual,
		Multiplier:  e.clock.Multiplier(),
		Paused:      !e.running,
		Debris:      e.debrisPts,
		Critical:    e.criticalPts,
		Active:      e.activePts,
		Threat:      e.scoring.Last(),
	}
	if e.playerScene != nil {
		set, _ := e.store.Player()
		st.Player = &ScenePoint{
			CatalogNumber: set.CatalogNumber,
			Name:          set.Name,
			Position:      *e.playerScene,
		}
		st.PlayerOrbit = &OrbitalParams{
			AltitudeKm:     e.playerState.AltitudeKm(),
			VelocityKmS:    e.playerState.SpeedKmS(),
			InclinationDeg: set.InclinationDeg,
		}
	}
	e.published.Store(st)
}

// State returns the most recently published snapshot. Never nil.
func (e *Engine) State() *State {
	return e.published.Load()
}

// PlayerPosition returns the player's render-space position, or false when
// the player currently has no displayable position.
func (e *Engine) PlayerPosition() (transform.Vec3, bool) {
	st := e.State()
	if st.Player == nil {
		return transform.Vec3{}, false
	}
	return st.Player.Position, true
}

// PlayerOrbitalParams returns the player's current orbit summary.
func (e *Engine) PlayerOrbitalParams() (OrbitalParams, bool) {
	st := e.State()
	if st.PlayerOrbit == nil {
		return OrbitalParams{}, false
	}
	return *st.PlayerOrbit, true
}

// PlayerGeodetic returns the player's ground-track coordinates at the
// current virtual time, or false when the player has no valid position.
func (e *Engine) PlayerGeodetic() (transform.Geodetic, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playerState == nil {
		return transform.Geodetic{}, false
	}
	return transform.ToGeodetic(e.playerState.Position, e.clock.Virtual()), true
}

// DebrisPositions returns the debris render-space positions.
func (e *Engine) DebrisPositions() []transform.Vec3 {
	return positions(e.State().Debris)
}

// CriticalDebrisPositions returns the critical-debris render-space positions.
func (e *Engine) CriticalDebrisPositions() []transform.Vec3 {
	return positions(e.State().Critical)
}

// ActiveObjectPositions returns the active-object render-space positions.
func (e *Engine) ActiveObjectPositions() []transform.Vec3 {
	return positions(e.State().Active)
}

func positions(pts []ScenePoint) []transform.Vec3 {
	out := make([]transform.Vec3, len(pts))
	for i, p := range pts {
		out[i] = p.Position
	}
	return out
}

// CurrentThreatSnapshot returns the threat picture from the last snapshot.
func (e *Engine) CurrentThreatSnapshot() threat.Snapshot {
	return e.State().Threat
}

// ThreatHistory returns the score history (oldest first) and its summary.
func (e *Engine) ThreatHistory() ([]threat.Sample, threat.Summary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scoring.History().Samples(), e.scoring.History().Summarize()
}

// SetTimeMultiplier applies a new time acceleration factor, clamped to
// [MinMultiplier, MaxMultiplier], and returns the applied value. Takes
// effect on the next tick without resetting elapsed accumulators.
func (e *Engine) SetTimeMultiplier(v float64) float64 {
	e.mu.Lock()
	applied := e.clock.SetMultiplier(v)
	e.mu.Unlock()

	metrics.SetTimeMultiplier(applied)
	e.logger.Info("time multiplier changed", "requested", v, "applied", applied)
	return applied
}

// Pause stops collision evaluation and player updates. Virtual time keeps
// advancing so that toggling pause never corrupts the clock.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.logger.Info("simulation paused")
}

// Resume restarts the running-gated categories. History and virtual time
// are untouched.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	e.logger.Info("simulation resumed")
}

// Running reports whether the running-gated categories are active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// SetForceScore overrides the live threat score (nil clears). Demo and test
// hook; the forced value still flows through history.
func (e *Engine) SetForceScore(score *int) {
	e.mu.Lock()
	e.scoring.SetForceScore(score)
	e.mu.Unlock()

	if score != nil {
		e.logger.Info("threat score override set", "score", *score)
	} else {
		e.logger.Info("threat score override cleared")
	}
}
