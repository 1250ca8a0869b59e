package game

import (
	"log"
	"strconv"
	"time"

	"trail-arena/internal/config"
	"trail-arena/internal/game/spatial"
)

// BonusManager spawns bonuses on a timer, detects pickups and expires
// caught bonuses. It runs on the match goroutine.
type BonusManager struct {
	match      *Match
	cfg        config.BonusConfig
	grid       *spatial.Grid // bonus bodies only
	enabled    []BonusKind
	popingTime time.Duration

	bonuses []*Bonus // on the arena
	applied []*Bonus // caught, waiting to expire
	timer   *Timer
	nextID  int
	active  bool
	skipped int // spawns dropped for lack of room
}

func newBonusManager(m *Match, cfg config.BonusConfig, enabled []BonusKind, rate float64) *BonusManager {
	if rate > 1 {
		rate = 1
	}
	if rate < -1 {
		rate = -1
	}
	if enabled == nil {
		enabled = AllBonusKinds()
	}
	return &BonusManager{
		match:      m,
		cfg:        cfg,
		grid:       spatial.NewGrid(m.arena.Size(), 1),
		enabled:    enabled,
		popingTime: cfg.PopingTime - time.Duration(float64(cfg.PopingTime)/2*rate),
	}
}

// PopingTime returns the base spawn interval after the rate adjustment.
func (bm *BonusManager) PopingTime() time.Duration {
	return bm.popingTime
}

// Bonuses returns the bonuses lying on the arena.
func (bm *BonusManager) Bonuses() []*Bonus {
	return bm.bonuses
}

// Skipped returns how many spawns were dropped because no free spot was found.
func (bm *BonusManager) Skipped() int {
	return bm.skipped
}

// Start activates the bonus grid and schedules the first spawn.
func (bm *BonusManager) Start() {
	if bm.active {
		return
	}
	bm.active = true
	bm.grid.Activate()
	bm.scheduleNext()
}

// Stop cancels spawning, expires every caught bonus and clears the arena.
func (bm *BonusManager) Stop() {
	bm.active = false
	if bm.timer != nil {
		bm.timer.Stop()
		bm.timer = nil
	}
	for _, b := range bm.applied {
		if b.timer != nil {
			b.timer.Stop()
		}
		for _, s := range b.stacks {
			s.Remove(b)
		}
		b.stacks = nil
	}
	bm.applied = nil
	bm.Clear()
}

// Clear removes every bonus from the arena without notifying.
func (bm *BonusManager) Clear() {
	bm.bonuses = nil
	bm.grid.Clear()
	if bm.active {
		bm.grid.Activate()
	}
}

// resize follows the arena; bonuses on the old grid are dropped.
func (bm *BonusManager) resize(size float64) {
	bm.bonuses = nil
	bm.grid.Resize(size, 1)
}

func (bm *BonusManager) scheduleNext() {
	delay := time.Duration(float64(bm.popingTime) * (1 + bm.match.rng.Float64()))
	bm.timer = bm.match.sched.After(delay, func() {
		bm.timer = nil
		bm.PopBonus()
		if bm.active {
			bm.scheduleNext()
		}
	})
}

// PopBonus spawns one random bonus at a free spot. Returns nil when the cap
// is reached, every enabled kind has zero probability, or no spot was found.
func (bm *BonusManager) PopBonus() *Bonus {
	if !bm.grid.Active() || len(bm.bonuses) >= bm.cfg.Cap {
		return nil
	}

	kind, ok := bm.pick()
	if !ok {
		return nil
	}

	arena := bm.match.arena
	x, y, ok := arena.FreePosition(bm.cfg.Radius, bm.cfg.Margin, bm.cfg.Retries, arena.Grid(), bm.grid)
	if !ok {
		bm.skipped++
		log.Printf("⚠️ Match %s: no room for a bonus, spawn skipped", bm.match.id)
		return nil
	}

	spec := Catalog[kind]
	bm.nextID++
	b := &Bonus{
		ID:       bm.nextID,
		Kind:     kind,
		X:        x,
		Y:        y,
		Radius:   bm.cfg.Radius,
		Duration: spec.Duration,
		Effects:  spec.Effects,
	}
	if kind == BonusAllColor {
		b.Effects.Color = colorPalette[bm.match.rng.Intn(len(colorPalette))]
	}
	b.body = &spatial.Body{
		X:      x,
		Y:      y,
		Radius: b.Radius,
		Kind:   spatial.KindBonus,
		Owner:  "bonus:" + strconv.Itoa(b.ID),
	}

	bm.grid.Insert(b.body)
	bm.bonuses = append(bm.bonuses, b)
	bm.match.emit(Event{Kind: EventBonusPop, X: x, Y: y, Bonus: b.Ref()})

	return b
}

// pick draws a kind from the cumulative probability table.
func (bm *BonusManager) pick() (BonusKind, bool) {
	type bucket struct {
		kind BonusKind
		cum  float64
	}
	pot := make([]bucket, 0, len(bm.enabled))
	total := 0.0
	for _, k := range bm.enabled {
		spec, ok := Catalog[k]
		if !ok {
			continue
		}
		if p := spec.probability(bm.match); p > 0 {
			total += p
			pot = append(pot, bucket{kind: k, cum: total})
		}
	}
	if total == 0 {
		return BonusUnknown, false
	}

	draw := bm.match.rng.Float64() * total
	for _, b := range pot {
		if draw < b.cum {
			return b.kind, true
		}
	}
	return pot[len(pot)-1].kind, true
}

// TestCatch applies the bonus under the avatar, if any.
func (bm *BonusManager) TestCatch(a *Avatar) {
	hit := bm.grid.Query(a.Body())
	if hit == nil {
		return
	}
	for _, b := range bm.bonuses {
		if b.body == hit {
			if bm.Remove(b) {
				bm.apply(b, a)
			}
			return
		}
	}
}

// Remove takes a bonus off the arena.
func (bm *BonusManager) Remove(b *Bonus) bool {
	if !bm.grid.Remove(b.body) {
		return false
	}
	for i, other := range bm.bonuses {
		if other == b {
			bm.bonuses = append(bm.bonuses[:i], bm.bonuses[i+1:]...)
			break
		}
	}
	bm.match.emit(Event{Kind: EventBonusClear, Bonus: b.Ref()})
	return true
}

func (bm *BonusManager) apply(b *Bonus, catcher *Avatar) {
	spec := Catalog[b.Kind]
	m := bm.match

	if spec.Duration == 0 {
		if b.Kind == BonusGameClear {
			m.clearTrails()
		}
		return
	}

	switch spec.Target {
	case TargetSelf:
		b.stacks = append(b.stacks, catcher.stack)
	case TargetEnemy:
		for _, a := range m.avatars {
			if a != catcher && a.Alive && a.Present {
				b.stacks = append(b.stacks, a.stack)
			}
		}
	case TargetAll:
		for _, a := range m.avatars {
			if a.Alive && a.Present {
				b.stacks = append(b.stacks, a.stack)
			}
		}
	case TargetGame:
		b.stacks = append(b.stacks, m.gameStack)
	}

	for _, s := range b.stacks {
		s.Add(b)
	}

	bm.applied = append(bm.applied, b)
	b.timer = m.sched.After(b.Duration, func() { bm.expire(b) })
}

func (bm *BonusManager) expire(b *Bonus) {
	b.timer = nil
	for _, s := range b.stacks {
		s.Remove(b)
	}
	b.stacks = nil
	for i, other := range bm.applied {
		if other == b {
			bm.applied = append(bm.applied[:i], bm.applied[i+1:]...)
			break
		}
	}
}
