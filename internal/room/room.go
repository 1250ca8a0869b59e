package room

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"trail-arena/internal/config"
	"trail-arena/internal/game"
	"trail-arena/internal/metrics"
	"trail-arena/internal/transport"
)

const inboxSize = 256

// Player is a named seat in a room, owned by one client.
type Player struct {
	ID    string `json:"id" msgpack:"id"`
	Name  string `json:"name" msgpack:"name"`
	Color string `json:"color" msgpack:"color"`
	Ready bool   `json:"ready" msgpack:"ready"`

	client *Client
}

// Config is what the room's players agree on before launching.
type Config struct {
	MaxScore  int             `json:"maxScore" msgpack:"maxScore"` // 0 uses the default for the player count
	BonusRate float64         `json:"bonusRate" msgpack:"bonusRate"`
	Bonuses   map[string]bool `json:"bonuses" msgpack:"bonuses"`
}

func defaultConfig(bonus config.BonusConfig) Config {
	cfg := Config{BonusRate: bonus.DefaultRate, Bonuses: make(map[string]bool)}
	for _, k := range game.AllBonusKinds() {
		cfg.Bonuses[k.String()] = true
	}
	return cfg
}

func (c Config) clone() Config {
	out := c
	out.Bonuses = make(map[string]bool, len(c.Bonuses))
	for k, v := range c.Bonuses {
		out.Bonuses[k] = v
	}
	return out
}

func (c Config) enabledBonuses() []game.BonusKind {
	var kinds []game.BonusKind
	for _, k := range game.AllBonusKinds() {
		if c.Bonuses[k.String()] {
			kinds = append(kinds, k)
		}
	}
	if kinds == nil {
		kinds = []game.BonusKind{}
	}
	return kinds
}

// Info describes a room for listings.
type Info struct {
	Name     string `json:"name" msgpack:"name"`
	Players  int    `json:"players" msgpack:"players"`
	Clients  int    `json:"clients" msgpack:"clients"`
	InGame   bool   `json:"inGame" msgpack:"inGame"`
	State    string `json:"state" msgpack:"state"`
	MaxScore int    `json:"maxScore" msgpack:"maxScore"`
	Frame    uint64 `json:"frame" msgpack:"frame"`
}

// Room holds players between matches and runs at most one match at a time.
type Room struct {
	name string
	dir  *Directory
	opts game.Options

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the Run goroutine
	clients    map[string]*Client
	offs       map[string][]func()
	group      *transport.Group
	players    []*Player
	nextPlayer int
	config     Config
	match      *game.Match
	ctrl       *controller
	dropped    uint64
	closing    bool
	emptySince time.Time // zero while a client is in the room
}

func newRoom(name string, d *Directory) *Room {
	return &Room{
		name:    name,
		dir:     d,
		opts:    d.opts,
		inbox:   make(chan func(), inboxSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		clients: make(map[string]*Client),
		offs:    make(map[string][]func()),
		group:   transport.NewGroup(),
		config:  defaultConfig(d.cfg.Bonus),

		emptySince: time.Now(),
	}
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// =============================================================================
// ACTOR LOOP
// =============================================================================

// Run processes the inbox and advances the match until the room closes.
func (r *Room) Run() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.Game.Step)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case fn := <-r.inbox:
			fn()
		case now := <-ticker.C:
			r.tick(now.Sub(last))
			r.closeIfAbandoned(now)
			last = now
		case <-r.quit:
			r.teardown()
			return
		}
		if r.closing {
			r.teardown()
			return
		}
	}
}

// Close stops the room and waits for it to shut down.
func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.done
}

// send queues fn and blocks until it is accepted. Never call it from the
// room goroutine.
func (r *Room) send(fn func()) bool {
	select {
	case r.inbox <- fn:
		return true
	case <-r.done:
		return false
	}
}

// post queues fn without blocking the caller, which may be the room
// goroutine itself.
func (r *Room) post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.done:
	default:
		go r.send(fn)
	}
}

// call runs fn on the room goroutine and waits for it to finish. ctx only
// bounds the wait for a free inbox slot.
func (r *Room) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}
	select {
	case r.inbox <- wrapped:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrRoomClosed
		}
	}
}

// on registers a client handler that runs on the room goroutine.
func (r *Room) on(c *Client, name string, fn func(*Client, transport.Message)) func() {
	return c.ch.On(name, func(msg transport.Message) {
		if !r.send(func() { fn(c, msg) }) {
			msg.Reply(fail(ErrRoomClosed))
		}
	})
}

func (r *Room) tick(elapsed time.Duration) {
	if r.match == nil {
		return
	}
	start := time.Now()
	r.match.Advance(elapsed)
	metrics.RecordTick(time.Since(start))

	if d := r.match.Dropped(); d > r.dropped {
		for ; r.dropped < d; r.dropped++ {
			metrics.RecordFramesDropped()
		}
		log.Printf("🐢 Room %q is falling behind, dropped backlog (frame %d)", r.name, r.match.Frame())
	}
	r.reapMatch()
}

// closeIfAbandoned closes a room that stayed empty for EmptyRoomTimeout,
// which covers rooms created and never joined.
func (r *Room) closeIfAbandoned(now time.Time) {
	timeout := r.dir.cfg.Limits.EmptyRoomTimeout
	if len(r.clients) > 0 || r.emptySince.IsZero() || timeout <= 0 {
		return
	}
	if now.Sub(r.emptySince) >= timeout {
		log.Printf("🧹 Room %q closed after staying empty for %s", r.name, timeout)
		r.closing = true
	}
}

func (r *Room) teardown() {
	if r.match != nil {
		r.ctrl.unload()
		r.match.Stop()
		r.match, r.ctrl = nil, nil
		metrics.MatchFinished()
	}
	for id, c := range r.clients {
		for _, off := range r.offs[id] {
			off()
		}
		c.clearRoom(r)
		c.ch.AddEvent(transport.Event{Name: "room:close", Data: r.name}, false)
	}
	r.clients = map[string]*Client{}
	r.offs = map[string][]func(){}
	r.players = nil
	r.dir.removeRoom(r)
}

// =============================================================================
// QUERIES
// =============================================================================

// Info describes the room.
func (r *Room) Info(ctx context.Context) (Info, error) {
	var info Info
	err := r.call(ctx, func() {
		info = Info{
			Name:     r.name,
			Players:  len(r.players),
			Clients:  len(r.clients),
			InGame:   r.match != nil,
			State:    "lobby",
			MaxScore: r.config.MaxScore,
		}
		if r.match != nil {
			info.State = r.match.State().String()
			info.MaxScore = r.match.MaxScore()
			info.Frame = r.match.Frame()
		}
	})
	return info, err
}

// Snapshot copies the running match. running is false in the lobby.
func (r *Room) Snapshot(ctx context.Context, withTrails bool) (snap game.Snapshot, running bool, err error) {
	err = r.call(ctx, func() {
		if r.match == nil {
			return
		}
		snap, running = r.match.Snapshot(withTrails), true
	})
	return snap, running, err
}

// Players lists the room's players.
func (r *Room) Players(ctx context.Context) ([]Player, error) {
	var out []Player
	err := r.call(ctx, func() {
		out = r.playerList()
	})
	return out, err
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

// Join adds a client to the room. It returns false if the room has closed.
func (r *Room) Join(c *Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.call(ctx, func() { r.addClient(c) }) == nil
}

// Leave removes a client and its players. Safe to call from any goroutine.
func (r *Room) Leave(c *Client) {
	c.clearRoom(r)
	r.post(func() { r.removeClient(c) })
}

func (r *Room) addClient(c *Client) {
	if _, exists := r.clients[c.ID()]; exists {
		return
	}
	c.setRoom(r)
	r.clients[c.ID()] = c
	r.emptySince = time.Time{}
	r.group.Add(c.ch)
	r.offs[c.ID()] = []func(){
		r.on(c, "player:add", r.onPlayerAdd),
		r.on(c, "player:remove", r.onPlayerRemove),
		r.on(c, "room:ready", r.onReady),
		r.on(c, "room:config", r.onConfig),
	}

	c.ch.AddEvent(transport.Event{Name: "room:state", Data: map[string]any{
		"name":    r.name,
		"config":  r.config.clone(),
		"players": r.playerList(),
		"inGame":  r.match != nil,
	}}, false)
	r.group.AddEventExcept(transport.Event{Name: "client:add", Data: c.ID()}, c.ch, false)

	if r.match != nil {
		r.ctrl.attach(c)
		c.ch.AddEvent(transport.Event{Name: "room:game:start"}, false)
	}
	log.Printf("🚪 Client %s joined room %q (%d clients)", c.ID(), r.name, len(r.clients))
}

func (r *Room) removeClient(c *Client) {
	if _, exists := r.clients[c.ID()]; !exists {
		return
	}
	for _, off := range r.offs[c.ID()] {
		off()
	}
	delete(r.offs, c.ID())
	delete(r.clients, c.ID())
	r.group.Remove(c.ch)
	c.clearRoom(r)

	if r.ctrl != nil {
		r.ctrl.detach(c)
	}
	for _, p := range r.playersOf(c) {
		r.removePlayer(p)
	}
	r.group.AddEvent(transport.Event{Name: "client:remove", Data: c.ID()}, false)
	log.Printf("🚪 Client %s left room %q (%d clients)", c.ID(), r.name, len(r.clients))

	r.checkIntegrity()
	r.reapMatch()
	if len(r.clients) == 0 {
		r.closing = true
	}
}

// checkIntegrity drops players whose client is gone.
func (r *Room) checkIntegrity() {
	for _, p := range append([]*Player(nil), r.players...) {
		if _, ok := r.clients[p.client.ID()]; !ok {
			log.Printf("⚠️ Room %q: \"Lost\" player %s removed.", r.name, p.Name)
			r.removePlayer(p)
		}
	}
}

// =============================================================================
// PLAYERS
// =============================================================================

func (r *Room) playerList() []Player {
	out := make([]Player, len(r.players))
	for i, p := range r.players {
		out[i] = *p
	}
	return out
}

func (r *Room) player(id string) (*Player, bool) {
	for _, p := range r.players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// ownedPlayer returns the player only if c controls it.
func (r *Room) ownedPlayer(c *Client, id string) (*Player, bool) {
	p, ok := r.player(id)
	if !ok || p.client != c {
		return nil, false
	}
	return p, true
}

func (r *Room) playersOf(c *Client) []*Player {
	var out []*Player
	for _, p := range r.players {
		if p.client == c {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) nameTaken(name string) bool {
	for _, p := range r.players {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (r *Room) removePlayer(p *Player) {
	for i, q := range r.players {
		if q == p {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}
	if r.ctrl != nil {
		r.ctrl.removeAvatar(p.ID)
	}
	r.group.AddEvent(transport.Event{Name: "room:leave", Data: p.ID}, false)
}

func (r *Room) onPlayerAdd(c *Client, msg transport.Message) {
	var req struct {
		Name  string `json:"name" msgpack:"name"`
		Color string `json:"color" msgpack:"color"`
	}
	if err := msg.Data.Decode(&req); err != nil {
		msg.Reply(fail(ErrInvalidName))
		return
	}
	name := strings.TrimSpace(req.Name)

	var err error
	switch {
	case name == "" || len(name) > r.dir.cfg.Limits.MaxNameLength:
		err = ErrInvalidName
	case r.match != nil:
		err = ErrGameStarted
	case r.nameTaken(name):
		err = ErrNameTaken
	case r.clients[c.ID()] != c:
		err = ErrUnknownClient
	case len(r.players) >= r.dir.cfg.Limits.MaxPlayersPerRoom:
		err = ErrCannotAddPlayer
	}
	if err != nil {
		msg.Reply(fail(err))
		return
	}

	r.nextPlayer++
	p := &Player{
		ID:     strconv.Itoa(r.nextPlayer),
		Name:   name,
		Color:  req.Color,
		client: c,
	}
	r.players = append(r.players, p)
	msg.Reply(ok("player", p.ID))
	r.group.AddEvent(transport.Event{Name: "room:join", Data: *p}, false)
}

func (r *Room) onPlayerRemove(c *Client, msg transport.Message) {
	var req struct {
		Player string `json:"player" msgpack:"player"`
	}
	_ = msg.Data.Decode(&req)
	p, found := r.ownedPlayer(c, req.Player)
	if !found {
		msg.Reply(fail(ErrUnknownPlayer))
		return
	}
	r.removePlayer(p)
	msg.Reply(ok())
	r.reapMatch()
}

func (r *Room) onReady(c *Client, msg transport.Message) {
	var req struct {
		Player string `json:"player" msgpack:"player"`
	}
	_ = msg.Data.Decode(&req)
	if r.match != nil {
		msg.Reply(fail(ErrGameStarted))
		return
	}
	p, found := r.ownedPlayer(c, req.Player)
	if !found {
		msg.Reply(fail(ErrUnknownPlayer))
		return
	}
	p.Ready = !p.Ready
	msg.Reply(ok("ready", p.Ready))
	r.group.AddEvent(transport.Event{Name: "player:ready", Data: map[string]any{
		"player": p.ID,
		"ready":  p.Ready,
	}}, false)

	if r.allReady() {
		r.launch()
	}
}

func (r *Room) allReady() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, p := range r.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (r *Room) onConfig(c *Client, msg transport.Message) {
	var req struct {
		MaxScore  *int            `json:"maxScore" msgpack:"maxScore"`
		BonusRate *float64        `json:"bonusRate" msgpack:"bonusRate"`
		Bonuses   map[string]bool `json:"bonuses" msgpack:"bonuses"`
	}
	if r.match != nil {
		msg.Reply(fail(ErrGameStarted))
		return
	}
	if err := msg.Data.Decode(&req); err != nil {
		msg.Reply(fail(err))
		return
	}
	if req.MaxScore != nil {
		r.config.MaxScore = max(0, *req.MaxScore)
	}
	if req.BonusRate != nil {
		r.config.BonusRate = min(1, max(-1, *req.BonusRate))
	}
	for name, enabled := range req.Bonuses {
		if _, known := game.ParseBonusKind(name); known {
			r.config.Bonuses[name] = enabled
		}
	}
	cfg := r.config.clone()
	msg.Reply(ok("config", cfg))
	r.group.AddEvent(transport.Event{Name: "room:config", Data: cfg}, false)
}

// =============================================================================
// MATCH LIFECYCLE
// =============================================================================

func (r *Room) launch() {
	r.checkIntegrity()
	if len(r.players) == 0 {
		return
	}

	infos := make([]game.PlayerInfo, len(r.players))
	for i, p := range r.players {
		infos[i] = game.PlayerInfo{ID: p.ID, Name: p.Name, Color: p.Color}
	}
	m := game.NewMatch(game.Settings{
		Name:      r.name,
		MaxScore:  r.config.MaxScore,
		BonusRate: r.config.BonusRate,
		Bonuses:   r.config.enabledBonuses(),
	}, infos, r.opts)

	r.match = m
	r.dropped = 0
	r.ctrl = newController(r, m)
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r.ctrl.attach(r.clients[id])
	}

	r.group.AddEvent(transport.Event{Name: "room:game:start"}, false)
	metrics.MatchStarted()
	log.Printf("🎮 Room %q launched match %s with %d players", r.name, m.ID(), len(infos))
	m.Start()
}

// reapMatch unloads a match once it has ended.
func (r *Room) reapMatch() {
	if r.match == nil || !r.match.Ended() {
		return
	}
	m := r.match
	r.ctrl.unload()
	m.Stop()
	r.match, r.ctrl = nil, nil

	for _, p := range r.players {
		p.Ready = false
	}
	r.group.AddEvent(transport.Event{Name: "room:game:end"}, false)
	metrics.MatchFinished()
	log.Printf("🏁 Room %q back in lobby after match %s", r.name, m.ID())
}
