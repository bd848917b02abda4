package threat

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AJ-EN/xenonite-mission-control/internal/transform"
)

// Status is the threat band derived from the current score.
type Status int

const (
	StatusNominal Status = iota
	StatusElevated
	StatusWarning
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusNominal:
		return "nominal"
	case StatusElevated:
		return "elevated"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// StatusForScore maps a score in [0,100] to its band. Pure function; never
// touches history.
func StatusForScore(score int) Status {
	switch {
	case score >= 86:
		return StatusCritical
	case score >= 61:
		return StatusWarning
	case score >= 31:
		return StatusElevated
	default:
		return StatusNominal
	}
}

// Object is one debris object's propagated render-space position.
type Object struct {
	CatalogNumber int
	Name          string
	ScenePos      transform.Vec3
}

// Threat is one object that contributed to the score this tick.
type Threat struct {
	CatalogNumber int     `json:"catalog_number"`
	Name          string  `json:"name"`
	DistanceKm    float64 `json:"distance_km"`
	Contribution  float64 `json:"contribution"`
}

// Snapshot is the result of one scoring tick, rebuilt every tick and
// consumed read-only by the presentation layer.
type Snapshot struct {
	At             time.Time `json:"at"`
	Score          int       `json:"score"`
	Status         Status    `json:"-"`
	StatusText     string    `json:"status"`
	ClosestThreats []Threat  `json:"closest_threats"`
	Narrative      string    `json:"narrative"`
	Forced         bool      `json:"forced,omitempty"`
}

// Engine owns the score history and the last snapshot. Not safe for
// concurrent use: the simulation scheduler calls it from the control loop
// only.
type Engine struct {
	tuning  Tuning
	history *History
	forced  *int
	last    Snapshot
}

// NewEngine creates a scoring engine with the given tuning.
func NewEngine(tuning Tuning) *Engine {
	return &Engine{
		tuning:  tuning,
		history: NewHistory(tuning.HistoryCapacity),
		last:    Snapshot{StatusText: StatusNominal.String(), Narrative: narrativeNone},
	}
}

// Tuning returns the engine's scoring policy.
func (e *Engine) Tuning() Tuning {
	return e.tuning
}

// SetForceScore overrides live geometry with a fixed score. Passing nil
// clears the override. Setting is idempotent; the forced value still flows
// into history every tick so the visual history stays continuous.
func (e *Engine) SetForceScore(score *int) {
	if score == nil {
		e.forced = nil
		return
	}
	v := clampScore(float64(*score))
	e.forced = &v
}

// ForcedScore reports the current override, if any.
func (e *Engine) ForcedScore() (int, bool) {
	if e.forced == nil {
		return 0, false
	}
	return *e.forced, true
}

// History returns the engine's sample history.
func (e *Engine) History() *History {
	return e.history
}

// Last returns the most recent snapshot.
func (e *Engine) Last() Snapshot {
	return e.last
}

// Evaluate runs one scoring tick over the debris population.
// player is the player's render-space position, or nil when the player has
// no valid position this tick. Missing inputs are not errors: they yield
// score 0 and an empty threat list, and history still advances so its length
// stays a monotonic function of scoring ticks.
func (e *Engine) Evaluate(at time.Time, player *transform.Vec3, debris []Object) Snapshot {
	if e.forced != nil {
		snap := Snapshot{
			At:        at,
			Score:     *e.forced,
			Status:    StatusForScore(*e.forced),
			Narrative: narrativeNone,
			Forced:    true,
		}
		snap.StatusText = snap.Status.String()
		e.history.Append(Sample{At: at, Score: snap.Score})
		e.last = snap
		return snap
	}

	var (
		accum   float64
		threats []Threat
	)

	if player != nil {
		for _, obj := range debris {
			d := transform.SceneDistanceKm(*player, obj.ScenePos)
			if math.IsNaN(d) || math.IsInf(d, 0) {
				continue
			}
			if d >= e.tuning.DangerRadiusKm {
				continue
			}

			contribution := (e.tuning.DangerRadiusKm - d) * e.tuning.DangerWeight
			accum += contribution
			if d < e.tuning.CriticalRadiusKm {
				accum += e.tuning.CriticalBonus
			}
			if d < e.tuning.ExtremeRadiusKm {
				accum += e.tuning.ExtremeBonus
			}

			threats = append(threats, Threat{
				CatalogNumber: obj.CatalogNumber,
				Name:          obj.Name,
				DistanceKm:    d,
				Contribution:  contribution,
			})
		}
	}

	sort.Slice(threats, func(i, j int) bool {
		return threats[i].DistanceKm < threats[j].DistanceKm
	})
	if len(threats) > e.tuning.ClosestRetained {
		threats = threats[:e.tuning.ClosestRetained]
	}

	score := clampScore(accum)
	snap := Snapshot{
		At:             at,
		Score:          score,
		Status:         StatusForScore(score),
		ClosestThreats: threats,
		Narrative:      e.narrative(threats),
	}
	snap.StatusText = snap.Status.String()

	e.history.Append(Sample{At: at, Score: score})
	e.last = snap
	return snap
}

const narrativeNone = "no immediate threats detected"

// narrative classifies the closest threat distance into a severity phrase.
func (e *Engine) narrative(threats []Threat) string {
	if len(threats) == 0 {
		return narrativeNone
	}
	d := threats[0].DistanceKm
	switch {
	case d < e.tuning.ExtremeRadiusKm:
		return fmt.Sprintf("EXTREME danger: debris %.1f km out, collision imminent", d)
	case d < e.tuning.CriticalRadiusKm:
		return fmt.Sprintf("critical proximity: debris within %.1f km", d)
	case d < e.tuning.SoftWarningKm:
		return fmt.Sprintf("near approach in progress: closest object %.1f km", d)
	default:
		return fmt.Sprintf("elevated watch: debris tracked %.1f km out", d)
	}
}

// clampScore rounds to the nearest integer and clamps to [0, 100].
func clampScore(v float64) int {
	s := int(math.Round(v))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
