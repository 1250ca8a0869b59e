package game

import (
	"log"
	"math/rand"
	"sort"
	"time"

	"trail-arena/internal/config"
	"trail-arena/internal/game/spatial"

	"github.com/google/uuid"
)

// State is the match phase.
type State uint8

const (
	StateIdle     State = iota // lobby-wait: avatars loading, waiting for ready
	StateWarmup                // avatars placed, countdown running
	StateInRound               // simulation running
	StateWarmdown              // round result on screen
	StateEnded
)

// String returns human-readable match state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarmup:
		return "warmup"
	case StateInRound:
		return "in_round"
	case StateWarmdown:
		return "warmdown"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Settings is what the room decides for a match.
type Settings struct {
	Name      string
	MaxScore  int         // 0 picks the default for the player count
	BonusRate float64     // -1 (rare) to 1 (frequent)
	Bonuses   []BonusKind // nil enables every kind
	Seed      int64       // 0 seeds from the clock
}

// Options carries the tunables a match reads from configuration.
type Options struct {
	Game    config.GameConfig
	Avatar  config.AvatarConfig
	Bonus   config.BonusConfig
	Spatial config.SpatialConfig
}

// DefaultOptions returns options built from the default configuration.
func DefaultOptions() Options {
	return Options{
		Game:    config.DefaultGame(),
		Avatar:  config.DefaultAvatar(),
		Bonus:   config.DefaultBonus(),
		Spatial: config.DefaultSpatial(),
	}
}

// DefaultMaxScore returns the score needed to win with n players.
func DefaultMaxScore(players int) int {
	return max(1, (players-1)*10)
}

// Match runs rounds for a fixed set of avatars until someone wins.
//
// A match is not safe for concurrent use: every call, including Advance,
// must come from the goroutine that owns it.
type Match struct {
	id       string
	settings Settings
	opts     Options

	avatars []*Avatar
	byID    map[string]*Avatar
	deaths  []*Avatar

	state       State
	maxScore    int
	borderless  bool
	roundWinner *Avatar
	matchWinner *Avatar
	rendered    time.Duration // time the current round started

	arena     *Arena
	bonuses   *BonusManager
	gameStack *BonusStack

	sched *Scheduler
	rng   *rand.Rand
	seed  int64

	readyTimer    *Timer
	warmupTimer   *Timer
	warmdownTimer *Timer

	acc       time.Duration
	frame     uint64
	dropped   uint64 // times the backlog was discarded
	observers []Observer
	stopped   bool
}

// NewMatch creates a match in lobby-wait. Call Start to begin the ready timeout.
func NewMatch(settings Settings, players []PlayerInfo, opts Options) *Match {
	seed := settings.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	size := ArenaSize(len(players), opts.Game.PerPlayerSize)
	m := &Match{
		id:         uuid.NewString(),
		settings:   settings,
		opts:       opts,
		byID:       make(map[string]*Avatar, len(players)),
		state:      StateIdle,
		borderless: opts.Game.Borderless,
		arena:      NewArena(size, opts.Spatial.GridUnit, rng, opts.Game.SpawnRetries),
		sched:      NewScheduler(),
		rng:        rng,
		seed:       seed,
	}

	m.maxScore = settings.MaxScore
	if m.maxScore <= 0 {
		m.maxScore = DefaultMaxScore(len(players))
	}

	for _, p := range players {
		a := NewAvatar(p, opts.Avatar, rng, m.handleAvatarEvent)
		m.avatars = append(m.avatars, a)
		m.byID[a.ID] = a
	}

	m.gameStack = NewBonusStack("", m.applyGameEffects, nil)
	m.bonuses = newBonusManager(m, opts.Bonus, settings.Bonuses, settings.BonusRate)

	return m
}

// ID returns the match id.
func (m *Match) ID() string { return m.id }

// Name returns the room name the match was created for.
func (m *Match) Name() string { return m.settings.Name }

// State returns the current phase.
func (m *Match) State() State { return m.state }

// Seed returns the random seed, for replaying a match.
func (m *Match) Seed() int64 { return m.seed }

// Now returns the simulation clock.
func (m *Match) Now() time.Duration { return m.sched.Now() }

// Size returns the arena side.
func (m *Match) Size() float64 { return m.arena.Size() }

// Arena returns the playfield.
func (m *Match) Arena() *Arena { return m.arena }

// MaxScore returns the winning threshold.
func (m *Match) MaxScore() int { return m.maxScore }

// Borderless reports whether avatars wrap around the walls.
func (m *Match) Borderless() bool { return m.borderless }

// InRound reports whether the simulation is running.
func (m *Match) InRound() bool { return m.state == StateInRound }

// Started reports whether lobby-wait is over.
func (m *Match) Started() bool { return m.state != StateIdle }

// Ended reports whether the match is over.
func (m *Match) Ended() bool { return m.state == StateEnded }

// Rendered returns when the current round started.
func (m *Match) Rendered() time.Duration { return m.rendered }

// Frame returns the number of simulated steps.
func (m *Match) Frame() uint64 { return m.frame }

// Dropped returns how many times Advance discarded a backlog.
func (m *Match) Dropped() uint64 { return m.dropped }

// Avatars returns every avatar, present or not.
func (m *Match) Avatars() []*Avatar { return m.avatars }

// Avatar returns an avatar by id.
func (m *Match) Avatar(id string) (*Avatar, bool) {
	a, ok := m.byID[id]
	return a, ok
}

// Bonuses returns the bonus manager.
func (m *Match) Bonuses() *BonusManager { return m.bonuses }

// RoundWinner returns the winner of the last resolved round, if any.
func (m *Match) RoundWinner() *Avatar { return m.roundWinner }

// MatchWinner returns the match winner once ended, if any.
func (m *Match) MatchWinner() *Avatar { return m.matchWinner }

// Subscribe registers an observer for every match event.
func (m *Match) Subscribe(o Observer) {
	m.observers = append(m.observers, o)
}

func (m *Match) emit(ev Event) {
	for _, o := range m.observers {
		o(ev)
	}
}

// handleAvatarEvent lays trail bodies for printed points, then fans out.
func (m *Match) handleAvatarEvent(ev Event) {
	if ev.Kind == EventPoint && m.state == StateInRound && m.arena.grid.Active() {
		if a, ok := m.byID[ev.Avatar]; ok {
			m.arena.grid.Insert(a.newTrailBody(ev.X, ev.Y, m.sched.Now()))
		}
	}
	m.emit(ev)
}

// =============================================================================
// LOBBY-WAIT
// =============================================================================

// Start begins lobby-wait: avatars have ReadyTimeout to signal ready.
func (m *Match) Start() {
	if m.state != StateIdle || m.readyTimer != nil {
		return
	}
	m.readyTimer = m.sched.After(m.opts.Game.ReadyTimeout, m.stopWaiting)
	m.checkReady()
}

// SetReady marks an avatar as loaded. Ignored once lobby-wait is over.
func (m *Match) SetReady(id string) bool {
	a, ok := m.byID[id]
	if !ok || !a.Present || m.state != StateIdle {
		return false
	}
	if !a.Ready {
		a.Ready = true
		m.emit(Event{Kind: EventReady, Avatar: a.ID})
	}
	m.checkReady()
	return true
}

// LoadingAvatars returns present avatars that have not signalled ready.
func (m *Match) LoadingAvatars() []*Avatar {
	var out []*Avatar
	for _, a := range m.avatars {
		if a.Present && !a.Ready {
			out = append(out, a)
		}
	}
	return out
}

func (m *Match) presentCount() int {
	n := 0
	for _, a := range m.avatars {
		if a.Present {
			n++
		}
	}
	return n
}

func (m *Match) checkReady() {
	if m.state != StateIdle || m.readyTimer == nil {
		return
	}
	if m.presentCount() == 0 {
		m.end()
		return
	}
	if len(m.LoadingAvatars()) > 0 {
		return
	}
	m.readyTimer.Stop()
	m.readyTimer = nil
	m.newRound()
}

// stopWaiting drops every avatar that did not load in time.
func (m *Match) stopWaiting() {
	loading := m.LoadingAvatars()
	if len(loading) > 0 {
		log.Printf("⏱️ Match %s: %d avatar(s) not ready in time, removing", m.id, len(loading))
	}
	for _, a := range loading {
		m.RemoveAvatar(a.ID)
	}
	m.checkReady()
}

// =============================================================================
// ROUNDS
// =============================================================================

func (m *Match) newRound() {
	m.state = StateWarmup
	m.roundWinner = nil
	m.bonuses.Stop()
	m.gameStack.Clear()
	m.arena.grid.Clear()
	m.deaths = m.deaths[:0]

	if size := ArenaSize(m.presentCount(), m.opts.Game.PerPlayerSize); size != m.arena.Size() {
		log.Printf("📐 Match %s: arena resized %.0f -> %.0f", m.id, m.arena.Size(), size)
		m.arena.Resize(size)
		m.bonuses.resize(size)
	}
	m.arena.ResetSpawns()

	m.emit(Event{Kind: EventRoundNew, Size: m.arena.Size()})

	for _, a := range m.avatars {
		if !a.Present {
			m.deaths = append(m.deaths, a)
			continue
		}
		a.Clear()
		x, y := m.arena.RandomPosition(a.ID, a.Radius, m.opts.Game.SpawnMargin)
		a.SetPosition(x, y)
		a.SetAngle(m.arena.RandomDirection(x, y, m.opts.Game.SpawnAngleMargin))
	}

	m.warmupTimer = m.sched.After(m.opts.Game.WarmupTime, m.startRound)
}

func (m *Match) startRound() {
	m.warmupTimer = nil
	m.state = StateInRound
	m.rendered = m.sched.Now()
	m.arena.grid.Activate()
	m.bonuses.Start()

	for _, a := range m.avatars {
		if a.Present && a.Alive {
			a.printTimer = m.sched.After(m.opts.Game.PrintDelay, a.printer.Start)
		}
	}

	m.emit(Event{Kind: EventGameStart})

	// avatars may have left during warmup
	if len(m.avatars) > 1 {
		m.checkRoundEnd()
	}
}

// Advance feeds wall-clock time into the fixed-step loop. At most
// MaxCatchUpFrames steps run per call; any further backlog is dropped.
func (m *Match) Advance(elapsed time.Duration) int {
	if m.stopped || m.state == StateEnded {
		return 0
	}
	step := m.opts.Game.Step
	m.acc += elapsed

	frames := 0
	for m.acc >= step {
		if frames >= m.opts.Game.MaxCatchUpFrames {
			m.acc = 0
			m.dropped++
			break
		}
		m.acc -= step
		m.Step()
		frames++
	}
	return frames
}

// Step runs exactly one simulation step.
func (m *Match) Step() {
	step := m.opts.Game.Step
	m.sched.AdvanceTo(m.sched.Now() + step)
	if m.state == StateInRound {
		m.update(step)
	}
	m.frame++
}

func (m *Match) update(step time.Duration) {
	now := m.sched.Now()
	score := len(m.deaths)
	died := false

	for i := len(m.avatars) - 1; i >= 0; i-- {
		a := m.avatars[i]
		if !a.Alive {
			continue
		}

		a.Update(step, now)

		margin := a.Radius
		if m.borderless {
			margin = 0
		}
		if bx, by, hit := m.arena.BoundIntersect(a.X, a.Y, margin); hit {
			if m.borderless {
				a.Wrap(m.arena.Opposite(bx, by))
			} else {
				m.kill(a, nil, score)
				died = true
			}
		} else if !a.Invincible {
			if killer := m.arena.grid.Query(a.Body()); killer != nil {
				m.kill(a, killer, score)
				died = true
			}
		}

		if a.Alive {
			a.printer.Test()
			m.bonuses.TestCatch(a)
		}
	}

	if died {
		m.checkRoundEnd()
	}
}

func (m *Match) kill(a *Avatar, killer *spatial.Body, score int) {
	a.Die(killer, m.sched.Now())
	a.AddScore(score)
	m.deaths = append(m.deaths, a)
}

func (m *Match) aliveCount() int {
	n := 0
	for _, a := range m.avatars {
		if a.Alive {
			n++
		}
	}
	return n
}

func (m *Match) checkRoundEnd() {
	if m.state != StateInRound {
		return
	}
	if m.aliveCount() <= 1 {
		m.endRound()
	}
}

func (m *Match) endRound() {
	m.state = StateWarmdown
	for _, a := range m.avatars {
		if a.printTimer != nil {
			a.printTimer.Stop()
			a.printTimer = nil
		}
	}
	m.resolveScores()

	winner := ""
	if m.roundWinner != nil {
		winner = m.roundWinner.ID
	}
	m.emit(Event{Kind: EventRoundEnd, Winner: winner})

	m.warmdownTimer = m.sched.After(m.opts.Game.WarmdownTime, m.stopRound)
}

func (m *Match) resolveScores() {
	var winner *Avatar
	if len(m.avatars) == 1 {
		winner = m.avatars[0]
	} else {
		for _, a := range m.avatars {
			if a.Alive {
				winner = a
				break
			}
		}
	}
	if winner != nil {
		winner.AddScore(max(len(m.avatars)-1, 1))
	}
	m.roundWinner = winner

	for _, a := range m.avatars {
		a.ResolveScore()
	}
}

func (m *Match) stopRound() {
	m.warmdownTimer = nil
	m.emit(Event{Kind: EventGameStop})
	m.bonuses.Stop()

	if m.isWon() {
		m.end()
	} else {
		m.newRound()
	}
}

// isWon decides whether the match is over and records the winner.
func (m *Match) isWon() bool {
	present := 0
	var last *Avatar
	for _, a := range m.avatars {
		if a.Present {
			present++
			last = a
		}
	}

	if present <= 0 {
		return true
	}
	if len(m.avatars) > 1 && present <= 1 {
		m.matchWinner = last
		return true
	}

	var contenders []*Avatar
	for _, a := range m.avatars {
		if a.Present && a.Score >= m.maxScore {
			contenders = append(contenders, a)
		}
	}

	switch len(contenders) {
	case 0:
		return false
	case 1:
		m.matchWinner = contenders[0]
		return true
	}

	sort.SliceStable(contenders, func(i, j int) bool {
		return contenders[i].Score > contenders[j].Score
	})
	if contenders[0].Score == contenders[1].Score {
		return false
	}
	m.matchWinner = contenders[0]
	return true
}

func (m *Match) end() {
	m.state = StateEnded
	m.bonuses.Stop()
	m.sched.StopAll()
	m.readyTimer, m.warmupTimer, m.warmdownTimer = nil, nil, nil

	winner := ""
	if m.matchWinner != nil {
		winner = m.matchWinner.ID
	}
	log.Printf("🏁 Match %s (%s) ended after %d frames, winner=%q", m.id, m.settings.Name, m.frame, winner)
	m.emit(Event{Kind: EventEnd, Winner: winner})
}

// Stop tears the match down without announcing an end, cancelling every timer.
func (m *Match) Stop() {
	if m.stopped {
		return
	}
	m.stopped = true
	m.bonuses.Stop()
	m.sched.StopAll()
	for _, a := range m.avatars {
		a.printTimer = nil
	}
}

// =============================================================================
// PLAYER INPUT & MEMBERSHIP
// =============================================================================

// HandleMove applies a steering input.
func (m *Match) HandleMove(id string, move float64) bool {
	a, ok := m.byID[id]
	if !ok || !a.Present {
		return false
	}
	a.UpdateAngularVelocity(move)
	return true
}

// HandleSpeeding applies a speed input.
func (m *Match) HandleSpeeding(id string, speeding float64) bool {
	a, ok := m.byID[id]
	if !ok || !a.Present {
		return false
	}
	a.UpdateSpeeding(speeding, m.sched.Now())
	return true
}

// RemoveAvatar takes an avatar out of the match. Leaving mid-round counts
// as a death and is scored like one.
func (m *Match) RemoveAvatar(id string) bool {
	a, ok := m.byID[id]
	if !ok || !a.Present {
		return false
	}

	switch {
	case a.Alive && m.state == StateInRound:
		m.kill(a, nil, len(m.deaths))
	case m.state == StateWarmup:
		m.deaths = append(m.deaths, a)
	}
	a.Destroy()
	m.emit(Event{Kind: EventLeave, Avatar: a.ID})

	switch m.state {
	case StateIdle:
		m.checkReady()
	case StateInRound:
		m.checkRoundEnd()
	}
	return true
}

// =============================================================================
// GAME-LEVEL EFFECTS
// =============================================================================

// SetBorderless switches wall wrapping.
func (m *Match) SetBorderless(borderless bool) {
	if borderless == m.borderless {
		return
	}
	m.borderless = borderless
	m.emit(Event{Kind: EventBorderless, Flag: borderless})
}

func (m *Match) applyGameEffects(sum Effects) {
	m.SetBorderless(m.opts.Game.Borderless || sum.Borderless > 0)
}

// clearTrails wipes every trail body.
func (m *Match) clearTrails() {
	m.arena.grid.Clear()
	m.arena.grid.Activate()
	m.emit(Event{Kind: EventClear})
}
