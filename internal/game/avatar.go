package game

import (
	"math"
	"math/rand"
	"time"

	"trail-arena/internal/config"
	"trail-arena/internal/game/spatial"
)

// PlayerInfo is what the lobby hands over for each avatar.
type PlayerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Point is a trail vertex.
type Point struct {
	X, Y float64
}

// Avatar is the kinematic state of one player for the lifetime of a match.
//
// Exported fields are read-only outside the package; use the setters so
// observers are notified.
type Avatar struct {
	ID    string
	Name  string
	Color string // current display color

	X, Y       float64
	Angle      float64
	Velocity   float64 // units per second before speeding
	Radius     float64
	Stamina    float64
	Score      int
	RoundScore int

	Alive           bool
	Present         bool
	Ready           bool
	Printing        bool
	Inverse         bool
	Invincible      bool
	DirectionInLoop bool

	cfg         config.AvatarConfig
	playerColor string

	move                float64 // last steering input
	angularVelocity     float64 // radians per ms
	angularVelocityBase float64
	speeding            float64
	velX, velY          float64 // units per ms
	staminaAt           time.Duration
	sentStamina         float64

	trail      []Point
	hasLast    bool
	trailCount int // trail bodies laid this round

	body       *spatial.Body
	printer    *Printer
	printTimer *Timer
	stack      *BonusStack

	emit func(Event)
}

// NewAvatar creates a present, cleared avatar. emit may be nil.
func NewAvatar(info PlayerInfo, cfg config.AvatarConfig, rng *rand.Rand, emit func(Event)) *Avatar {
	if emit == nil {
		emit = func(Event) {}
	}
	a := &Avatar{
		ID:          info.ID,
		Name:        info.Name,
		playerColor: info.Color,
		Present:     true,
		cfg:         cfg,
		emit:        emit,
		body: &spatial.Body{
			Kind:    spatial.KindAvatar,
			Owner:   info.ID,
			Latency: cfg.TrailLatency,
		},
	}
	a.printer = NewPrinter(a, rng)
	a.stack = NewBonusStack(a.ID, a.applyEffects, emit)
	a.Clear()
	return a
}

// Body returns the live head body used for collision queries.
func (a *Avatar) Body() *spatial.Body {
	return a.body
}

// Trail returns the points of the current printed segment.
func (a *Avatar) Trail() []Point {
	return a.trail
}

// Stack returns the avatar's bonus stack.
func (a *Avatar) Stack() *BonusStack {
	return a.stack
}

// Clear resets the avatar to its round-start defaults without notifying.
func (a *Avatar) Clear() {
	a.Radius = a.cfg.Radius
	a.X, a.Y = a.Radius, a.Radius
	a.Angle = 0
	a.Velocity = a.cfg.Velocity
	a.move = 0
	a.angularVelocity = 0
	a.angularVelocityBase = a.cfg.AngularVelocity / 1000
	a.speeding = 1
	a.Stamina = a.cfg.StaminaCap
	a.sentStamina = a.Stamina
	a.staminaAt = 0
	a.Alive = true
	a.Printing = false
	a.Inverse = false
	a.Invincible = false
	a.DirectionInLoop = true
	a.RoundScore = 0
	a.Color = a.playerColor
	a.trail = a.trail[:0]
	a.hasLast = false
	a.trailCount = 0
	a.stack.reset()
	a.printer.clear()
	if a.printTimer != nil {
		a.printTimer.Stop()
		a.printTimer = nil
	}

	a.body.X, a.body.Y = a.X, a.Y
	a.body.Radius = a.Radius
	a.body.Seq = 0
	a.updateComponents()
}

// Update advances the avatar by one simulation step.
func (a *Avatar) Update(step, now time.Duration) {
	if !a.Alive {
		return
	}
	ms := float64(step) / float64(time.Millisecond)

	a.updateAngle(ms)
	a.SetPosition(a.X+a.velX*ms, a.Y+a.velY*ms)
	a.UpdateVelocities(now)

	if a.Printing && a.timeToDraw() {
		a.addPoint(a.X, a.Y, false)
	}
}

func (a *Avatar) timeToDraw() bool {
	if !a.hasLast {
		return true
	}
	last := a.trail[len(a.trail)-1]
	return math.Hypot(last.X-a.X, last.Y-a.Y) > a.Radius
}

func (a *Avatar) updateAngle(ms float64) {
	if a.angularVelocity == 0 {
		return
	}
	if a.DirectionInLoop {
		a.SetAngle(a.Angle + a.angularVelocity*ms)
		return
	}
	a.SetAngle(a.Angle + a.angularVelocity)
	a.angularVelocity = 0
	a.move = 0
}

// SetPosition moves the avatar and its head body.
func (a *Avatar) SetPosition(x, y float64) {
	a.X, a.Y = x, y
	a.body.X, a.body.Y = x, y
	a.body.Seq = a.trailCount
	a.emit(Event{Kind: EventPosition, Avatar: a.ID, X: x, Y: y})
}

// Wrap teleports the avatar to (x, y) and starts a fresh trail segment there.
func (a *Avatar) Wrap(x, y float64) {
	if a.Printing {
		a.addPoint(a.X, a.Y, true)
	}
	a.trail = a.trail[:0]
	a.hasLast = false
	a.printer.lastX, a.printer.lastY = x, y
	a.SetPosition(x, y)
}

// SetAngle sets the heading, normalized to [0, 2π).
func (a *Avatar) SetAngle(angle float64) {
	angle = math.Mod(angle, 2*math.Pi)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	if angle == a.Angle {
		return
	}
	a.Angle = angle
	a.updateComponents()
	a.emit(Event{Kind: EventAngle, Avatar: a.ID, Angle: angle})
}

// UpdateAngularVelocity applies a steering input: -1 left, 0 straight, 1 right.
func (a *Avatar) UpdateAngularVelocity(move float64) {
	switch {
	case move > 0:
		move = 1
	case move < 0:
		move = -1
	}
	a.move = move
	a.refreshAngularVelocity()
}

// refreshAngularVelocity re-applies the current steering with a new base.
func (a *Avatar) refreshAngularVelocity() {
	a.angularVelocity = a.move * a.angularVelocityBase * a.inverseFactor()
}

func (a *Avatar) inverseFactor() float64 {
	if a.Inverse {
		return -1
	}
	return 1
}

// UpdateSpeeding applies a speed input: >1 boost, <1 brake, 1 cruise.
// Boosting needs at least the stamina threshold.
func (a *Avatar) UpdateSpeeding(speeding float64, now time.Duration) {
	switch {
	case speeding > 1 && a.Stamina >= a.cfg.StaminaThreshold:
		a.speeding = a.cfg.BoostFactor
	case speeding < 1:
		a.speeding = a.cfg.BrakeFactor
	default:
		a.speeding = 1
	}
	a.UpdateVelocities(now)
}

// Speeding returns the current speed multiplier.
func (a *Avatar) Speeding() float64 {
	return a.speeding
}

// UpdateVelocities settles stamina for the current speeding state and
// recomputes the velocity components.
func (a *Avatar) UpdateVelocities(now time.Duration) {
	tick := now-a.staminaAt >= a.cfg.StaminaTick

	switch {
	case a.speeding > 1:
		if a.Stamina <= 0 {
			a.speeding = 1
			break
		}
		if tick {
			a.setStamina(a.Stamina-a.cfg.StaminaDrain, now)
		}
	default:
		if a.Stamina < a.cfg.StaminaCap && tick {
			a.setStamina(a.Stamina+a.cfg.StaminaRegen, now)
		}
	}

	a.updateComponents()
	a.updateBaseAngularVelocity()
}

func (a *Avatar) setStamina(v float64, now time.Duration) {
	a.Stamina = math.Max(0, math.Min(v, a.cfg.StaminaCap))
	a.staminaAt = now
	if a.Stamina != a.sentStamina {
		a.sentStamina = a.Stamina
		a.emit(Event{Kind: EventProperty, Avatar: a.ID, Property: PropStamina, Value: a.Stamina})
	}
}

func (a *Avatar) updateComponents() {
	v := a.Velocity * a.speeding / 1000
	a.velX = math.Cos(a.Angle) * v
	a.velY = math.Sin(a.Angle) * v
}

func (a *Avatar) updateBaseAngularVelocity() {
	if !a.DirectionInLoop {
		return
	}
	ratio := a.Velocity / a.cfg.Velocity
	a.angularVelocityBase = ratio*a.cfg.AngularVelocity/1000 + math.Log(1/ratio)/1000
	a.refreshAngularVelocity()
}

// SetVelocity sets the base speed, never below half the default.
func (a *Avatar) SetVelocity(v float64) {
	v = math.Max(v, a.cfg.Velocity/2)
	if v == a.Velocity {
		return
	}
	a.Velocity = v
	a.updateComponents()
	a.emit(Event{Kind: EventProperty, Avatar: a.ID, Property: PropVelocity, Value: v})
}

// SetRadius sets the avatar radius, never below an eighth of the default.
func (a *Avatar) SetRadius(r float64) {
	r = math.Max(r, a.cfg.Radius/8)
	if r == a.Radius {
		return
	}
	a.Radius = r
	a.body.Radius = r
	a.emit(Event{Kind: EventProperty, Avatar: a.ID, Property: PropRadius, Value: r})
}

// SetInverse swaps left and right steering.
func (a *Avatar) SetInverse(inverse bool) {
	if inverse == a.Inverse {
		return
	}
	a.Inverse = inverse
	a.refreshAngularVelocity()
	a.emit(Event{Kind: EventProperty, Avatar: a.ID, Property: PropInverse, Value: inverse})
}

// SetInvincible toggles trail collisions for this avatar.
func (a *Avatar) SetInvincible(invincible bool) {
	if invincible == a.Invincible {
		return
	}
	a.Invincible = invincible
	a.emit(Event{Kind: EventProperty, Avatar: a.ID, Property: PropInvincible, Value: invincible})
}

// SetDirectionInLoop switches between smooth turning and right-angle turns.
func (a *Avatar) SetDirectionInLoop(loop bool) {
	if loop == a.DirectionInLoop {
		return
	}
	a.DirectionInLoop = loop
	a.move = 0
	a.angularVelocity = 0
	if loop {
		a.updateBaseAngularVelocity()
	} else {
		a.angularVelocityBase = math.Pi / 2
	}
	a.emit(Event{Kind: EventProperty, Avatar: a.ID, Property: PropDirectionInLoop, Value: loop})
}

// SetColor changes the display color.
func (a *Avatar) SetColor(color string) {
	if color == a.Color {
		return
	}
	a.Color = color
	a.emit(Event{Kind: EventProperty, Avatar: a.ID, Property: PropColor, Value: color})
}

// SetPrinting toggles trail drawing. Turning it off ends the current segment.
func (a *Avatar) SetPrinting(printing bool) {
	if printing == a.Printing {
		return
	}
	a.Printing = printing
	a.addPoint(a.X, a.Y, true)
	if !printing {
		a.trail = a.trail[:0]
		a.hasLast = false
	}
	a.emit(Event{Kind: EventProperty, Avatar: a.ID, Property: PropPrinting, Value: printing})
}

func (a *Avatar) addPoint(x, y float64, important bool) {
	a.trail = append(a.trail, Point{X: x, Y: y})
	a.hasLast = true
	a.emit(Event{Kind: EventPoint, Avatar: a.ID, X: x, Y: y, Important: important})
}

// newTrailBody creates the next trail body at the avatar's position.
func (a *Avatar) newTrailBody(x, y float64, now time.Duration) *spatial.Body {
	b := &spatial.Body{
		X:       x,
		Y:       y,
		Radius:  a.Radius,
		Kind:    spatial.KindTrail,
		Owner:   a.ID,
		Seq:     a.trailCount,
		Latency: a.cfg.TrailLatency,
		BornAt:  now,
	}
	a.trailCount++
	return b
}

// Die kills the avatar. killer is nil for wall deaths.
func (a *Avatar) Die(killer *spatial.Body, now time.Duration) {
	if !a.Alive {
		return
	}
	a.stack.Clear()
	a.Alive = false
	a.addPoint(a.X, a.Y, true)
	a.printer.Stop()
	if a.printTimer != nil {
		a.printTimer.Stop()
		a.printTimer = nil
	}

	ev := Event{Kind: EventDie, Avatar: a.ID}
	if killer != nil {
		ev.Killer = killer.Owner
		ev.Old = killer.IsOld(now)
	}
	a.emit(ev)
}

// AddScore adds to the round score.
func (a *Avatar) AddScore(n int) {
	a.RoundScore += n
	a.emit(Event{Kind: EventRoundScore, Avatar: a.ID, Score: a.RoundScore})
}

// ResolveScore folds the round score into the total.
func (a *Avatar) ResolveScore() {
	a.Score += a.RoundScore
	a.RoundScore = 0
	a.emit(Event{Kind: EventScore, Avatar: a.ID, Score: a.Score})
}

// Destroy marks the avatar as gone for the rest of the match.
func (a *Avatar) Destroy() {
	a.Alive = false
	a.Present = false
	a.printer.clear()
	if a.printTimer != nil {
		a.printTimer.Stop()
		a.printTimer = nil
	}
}

// applyEffects recomputes every bonus-driven property from the defaults.
func (a *Avatar) applyEffects(sum Effects) {
	a.SetVelocity(a.cfg.Velocity + sum.Velocity)
	a.SetRadius(a.cfg.Radius + sum.Radius)
	a.SetInverse(sum.Inverse > 0)
	a.SetInvincible(sum.Invincible > 0)
	a.SetDirectionInLoop(sum.StraightAngle <= 0)
	if sum.Color != "" {
		a.SetColor(sum.Color)
	} else {
		a.SetColor(a.playerColor)
	}
}
