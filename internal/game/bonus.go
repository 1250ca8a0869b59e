package game

import (
	"time"

	"trail-arena/internal/game/spatial"
)

// BonusKind enum for bonus types
type BonusKind uint8

const (
	BonusUnknown BonusKind = iota
	BonusSelfSmall
	BonusSelfSlow
	BonusSelfFast
	BonusSelfMaster
	BonusEnemySlow
	BonusEnemyFast
	BonusEnemyBig
	BonusEnemyInverse
	BonusEnemyStraightAngle
	BonusGameBorderless
	BonusAllColor
	BonusGameClear
)

var bonusNames = map[BonusKind]string{
	BonusSelfSmall:          "BonusSelfSmall",
	BonusSelfSlow:           "BonusSelfSlow",
	BonusSelfFast:           "BonusSelfFast",
	BonusSelfMaster:         "BonusSelfMaster",
	BonusEnemySlow:          "BonusEnemySlow",
	BonusEnemyFast:          "BonusEnemyFast",
	BonusEnemyBig:           "BonusEnemyBig",
	BonusEnemyInverse:       "BonusEnemyInverse",
	BonusEnemyStraightAngle: "BonusEnemyStraightAngle",
	BonusGameBorderless:     "BonusGameBorderless",
	BonusAllColor:           "BonusAllColor",
	BonusGameClear:          "BonusGameClear",
}

// String returns the wire name of the bonus kind
func (k BonusKind) String() string {
	if name, ok := bonusNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseBonusKind maps a wire name back to its kind.
func ParseBonusKind(name string) (BonusKind, bool) {
	for k, n := range bonusNames {
		if n == name {
			return k, true
		}
	}
	return BonusUnknown, false
}

// AllBonusKinds returns every kind in declaration order.
func AllBonusKinds() []BonusKind {
	kinds := make([]BonusKind, 0, len(bonusNames))
	for k := BonusSelfSmall; k <= BonusGameClear; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Target says who a bonus affects.
type Target uint8

const (
	TargetSelf  Target = iota // the catcher
	TargetEnemy               // every other living avatar
	TargetAll                 // every living avatar
	TargetGame                // the match itself
)

func (t Target) String() string {
	switch t {
	case TargetSelf:
		return "self"
	case TargetEnemy:
		return "enemy"
	case TargetAll:
		return "all"
	case TargetGame:
		return "game"
	default:
		return "unknown"
	}
}

// Effects are the property deltas a bonus contributes while active.
// Counters are summed; a positive sum switches the flag on.
type Effects struct {
	Velocity      float64
	Radius        float64
	Inverse       int
	Invincible    int
	StraightAngle int
	Borderless    int
	Color         string // overrides the display color, latest bonus wins
}

func (e Effects) plus(o Effects) Effects {
	e.Velocity += o.Velocity
	e.Radius += o.Radius
	e.Inverse += o.Inverse
	e.Invincible += o.Invincible
	e.StraightAngle += o.StraightAngle
	e.Borderless += o.Borderless
	if o.Color != "" {
		e.Color = o.Color
	}
	return e
}

// BonusSpec describes a bonus kind.
type BonusSpec struct {
	Kind     BonusKind
	Target   Target
	Duration time.Duration // 0 means the effect is instant
	Weight   float64
	Effects  Effects

	// Probability overrides Weight when the chance depends on match state.
	Probability func(m *Match) float64
}

// probability returns the spawn weight of the kind for the match.
func (s BonusSpec) probability(m *Match) float64 {
	if s.Probability != nil {
		return s.Probability(m)
	}
	return s.Weight
}

const defaultBonusDuration = 5000 * time.Millisecond

// colorPalette feeds BonusAllColor.
var colorPalette = []string{"#ff0066", "#00ccff", "#ffcc00", "#66ff33", "#cc66ff", "#ffffff"}

// Catalog holds the definition of every bonus kind.
var Catalog = map[BonusKind]BonusSpec{
	BonusSelfSmall: {
		Kind: BonusSelfSmall, Target: TargetSelf, Duration: 7500 * time.Millisecond, Weight: 1,
		Effects: Effects{Radius: -0.3},
	},
	BonusSelfSlow: {
		Kind: BonusSelfSlow, Target: TargetSelf, Duration: defaultBonusDuration, Weight: 1,
		Effects: Effects{Velocity: -6},
	},
	BonusSelfFast: {
		Kind: BonusSelfFast, Target: TargetSelf, Duration: defaultBonusDuration, Weight: 1,
		Effects: Effects{Velocity: 8},
	},
	BonusSelfMaster: {
		Kind: BonusSelfMaster, Target: TargetSelf, Duration: defaultBonusDuration, Weight: 0.5,
		Effects: Effects{Invincible: 1},
	},
	BonusEnemySlow: {
		Kind: BonusEnemySlow, Target: TargetEnemy, Duration: defaultBonusDuration, Weight: 1,
		Effects: Effects{Velocity: -6},
	},
	BonusEnemyFast: {
		Kind: BonusEnemyFast, Target: TargetEnemy, Duration: defaultBonusDuration, Weight: 1,
		Effects: Effects{Velocity: 8},
	},
	BonusEnemyBig: {
		Kind: BonusEnemyBig, Target: TargetEnemy, Duration: defaultBonusDuration, Weight: 1,
		Effects: Effects{Radius: 0.6},
	},
	BonusEnemyInverse: {
		Kind: BonusEnemyInverse, Target: TargetEnemy, Duration: defaultBonusDuration, Weight: 1,
		Effects: Effects{Inverse: 1},
	},
	BonusEnemyStraightAngle: {
		Kind: BonusEnemyStraightAngle, Target: TargetEnemy, Duration: defaultBonusDuration, Weight: 0.6,
		Effects: Effects{StraightAngle: 1},
	},
	BonusGameBorderless: {
		Kind: BonusGameBorderless, Target: TargetGame, Duration: 10000 * time.Millisecond, Weight: 0.8,
		Effects: Effects{Borderless: 1},
		Probability: func(m *Match) float64 {
			if m.borderless {
				return 0
			}
			return 0.8
		},
	},
	BonusAllColor: {
		Kind: BonusAllColor, Target: TargetAll, Duration: 7500 * time.Millisecond, Weight: 0.6,
	},
	BonusGameClear: {
		Kind: BonusGameClear, Target: TargetGame, Duration: 0, Weight: 0.4,
	},
}

// Bonus is a pickup on the arena, and once caught, an active effect.
type Bonus struct {
	ID       int
	Kind     BonusKind
	X, Y     float64
	Radius   float64
	Duration time.Duration
	Effects  Effects

	body   *spatial.Body
	timer  *Timer
	stacks []*BonusStack // stacks the caught bonus is active in
}

// Ref returns the bonus identity for events.
func (b *Bonus) Ref() BonusRef {
	return BonusRef{ID: b.ID, Kind: b.Kind, Duration: b.Duration}
}
