package room

import (
	"log"

	"trail-arena/internal/game"
	"trail-arena/internal/metrics"
	"trail-arena/internal/transport"
)

// controller bridges one match and the room's sockets: it turns match
// events into wire events and feeds player input back into the match.
type controller struct {
	room    *Room
	match   *game.Match
	clients map[string]*Client
	offs    map[string][]func()
	leaving string
	loaded  bool
}

func newController(r *Room, m *game.Match) *controller {
	c := &controller{
		room:    r,
		match:   m,
		clients: make(map[string]*Client),
		offs:    make(map[string][]func()),
		loaded:  true,
	}
	m.Subscribe(c.onEvent)
	return c
}

// attach starts listening to a client's game input.
func (c *controller) attach(cl *Client) {
	if _, ok := c.clients[cl.ID()]; ok || !c.loaded {
		return
	}
	c.clients[cl.ID()] = cl
	r := c.room
	c.offs[cl.ID()] = []func(){
		r.on(cl, "ready", c.onReady),
		r.on(cl, "player:move", c.onMove),
		r.on(cl, "player:speeding", c.onSpeeding),
	}
	c.broadcastSpectators()
}

// detach stops listening to a client.
func (c *controller) detach(cl *Client) {
	if _, ok := c.clients[cl.ID()]; !ok {
		return
	}
	for _, off := range c.offs[cl.ID()] {
		off()
	}
	delete(c.offs, cl.ID())
	delete(c.clients, cl.ID())
	c.broadcastSpectators()
}

// unload detaches every client and ignores further match events.
func (c *controller) unload() {
	for id := range c.clients {
		for _, off := range c.offs[id] {
			off()
		}
	}
	c.clients = map[string]*Client{}
	c.offs = map[string][]func(){}
	c.loaded = false
}

// removeAvatar takes a leaving player's avatar out of the match.
func (c *controller) removeAvatar(id string) {
	c.leaving = id
	c.match.RemoveAvatar(id)
	c.leaving = ""
}

func (c *controller) spectators() int {
	n := 0
	for _, cl := range c.clients {
		if len(c.room.playersOf(cl)) == 0 {
			n++
		}
	}
	return n
}

func (c *controller) broadcastSpectators() {
	c.room.group.AddEvent(transport.Event{Name: "game:spectators", Data: c.spectators()}, false)
}

// =============================================================================
// INPUT
// =============================================================================

func (c *controller) onReady(cl *Client, msg transport.Message) {
	if c.match.Started() {
		c.attachSpectator(cl)
		return
	}
	for _, p := range c.room.playersOf(cl) {
		c.match.SetReady(p.ID)
	}
	c.room.reapMatch()
}

func (c *controller) onMove(cl *Client, msg transport.Message) {
	var req struct {
		Avatar string  `json:"avatar" msgpack:"avatar"`
		Move   float64 `json:"move" msgpack:"move"`
	}
	if err := msg.Data.Decode(&req); err != nil {
		return
	}
	if _, ok := c.room.ownedPlayer(cl, req.Avatar); ok {
		c.match.HandleMove(req.Avatar, req.Move)
	}
}

func (c *controller) onSpeeding(cl *Client, msg transport.Message) {
	var req struct {
		Avatar   string  `json:"avatar" msgpack:"avatar"`
		Speeding float64 `json:"speeding" msgpack:"speeding"`
	}
	if err := msg.Data.Decode(&req); err != nil {
		return
	}
	if _, ok := c.room.ownedPlayer(cl, req.Avatar); ok {
		c.match.HandleSpeeding(req.Avatar, req.Speeding)
	}
}

// attachSpectator replays the current match state to a late client.
func (c *controller) attachSpectator(cl *Client) {
	m := c.match
	evs := []transport.Event{{Name: "spectate", Data: map[string]any{
		"inRound":  m.InRound(),
		"rendered": m.Rendered().Milliseconds(),
		"maxScore": m.MaxScore(),
		"size":     m.Size(),
	}}}

	for _, a := range m.Avatars() {
		if !a.Present {
			continue
		}
		evs = append(evs,
			transport.Event{Name: "property", Data: []any{a.ID, game.PropColor.String(), a.Color}},
			transport.Event{Name: "property", Data: []any{a.ID, game.PropRadius.String(), a.Radius}},
			transport.Event{Name: "score", Data: []any{a.ID, a.Score}},
			transport.Event{Name: "score:round", Data: []any{a.ID, a.RoundScore}},
			transport.Event{Name: "position", Data: []any{a.ID, transport.Compress(a.X), transport.Compress(a.Y)}},
			transport.Event{Name: "angle", Data: []any{a.ID, transport.Compress(a.Angle)}},
		)
		if !a.Alive {
			evs = append(evs, transport.Event{Name: "die", Data: []any{a.ID, nil, false}})
		}
	}
	for _, b := range m.Bonuses().Bonuses() {
		evs = append(evs, transport.Event{Name: "bonus:pop", Data: []any{
			b.ID, transport.Compress(b.X), transport.Compress(b.Y), b.Kind.String(),
		}})
	}
	evs = append(evs, transport.Event{Name: "borderless", Data: m.Borderless()})
	if m.InRound() {
		evs = append(evs, transport.Event{Name: "game:start"})
	}
	cl.ch.AddEvents(evs, false)
	log.Printf("👀 Client %s is spectating match %s", cl.ID(), m.ID())
}

// =============================================================================
// OUTPUT
// =============================================================================

func (c *controller) onEvent(ev game.Event) {
	if !c.loaded {
		return
	}
	c.record(ev)
	out, ok := wireEvent(ev)
	if !ok {
		return
	}
	c.room.group.AddEvent(out, false)
}

func (c *controller) record(ev game.Event) {
	switch ev.Kind {
	case game.EventDie:
		switch {
		case ev.Avatar == c.leaving:
			metrics.RecordDeath("leave")
		case ev.Killer == "":
			metrics.RecordDeath("wall")
		case ev.Killer == ev.Avatar:
			metrics.RecordDeath("self")
		default:
			metrics.RecordDeath("trail")
		}
	case game.EventRoundEnd:
		metrics.RecordRound()
	case game.EventBonusPop:
		metrics.RecordBonusSpawned()
	case game.EventBonusClear:
		metrics.RecordBonusCaught()
	}
}

// wireEvent maps a match event to its socket form. Unimportant points are
// not sent.
func wireEvent(ev game.Event) (transport.Event, bool) {
	name := ev.Kind.String()
	switch ev.Kind {
	case game.EventPosition:
		return transport.Event{Name: name, Data: []any{ev.Avatar, transport.Compress(ev.X), transport.Compress(ev.Y)}}, true
	case game.EventAngle:
		return transport.Event{Name: name, Data: []any{ev.Avatar, transport.Compress(ev.Angle)}}, true
	case game.EventPoint:
		if !ev.Important {
			return transport.Event{}, false
		}
		return transport.Event{Name: name, Data: ev.Avatar}, true
	case game.EventDie:
		return transport.Event{Name: name, Data: []any{ev.Avatar, orNil(ev.Killer), ev.Old}}, true
	case game.EventProperty:
		return transport.Event{Name: name, Data: []any{ev.Avatar, ev.Property.String(), ev.Value}}, true
	case game.EventScore, game.EventRoundScore:
		return transport.Event{Name: name, Data: []any{ev.Avatar, ev.Score}}, true
	case game.EventBonusPop:
		return transport.Event{Name: name, Data: []any{
			ev.Bonus.ID, transport.Compress(ev.X), transport.Compress(ev.Y), ev.Bonus.Kind.String(),
		}}, true
	case game.EventBonusClear:
		return transport.Event{Name: name, Data: ev.Bonus.ID}, true
	case game.EventBonusStack:
		return transport.Event{Name: name, Data: []any{
			ev.Avatar, string(ev.Method), ev.Bonus.ID, ev.Bonus.Kind.String(), ev.Bonus.Duration.Milliseconds(),
		}}, true
	case game.EventBorderless:
		return transport.Event{Name: name, Data: ev.Flag}, true
	case game.EventRoundEnd, game.EventEnd:
		return transport.Event{Name: name, Data: orNil(ev.Winner)}, true
	case game.EventReady, game.EventLeave:
		return transport.Event{Name: name, Data: ev.Avatar}, true
	case game.EventRoundNew:
		return transport.Event{Name: name, Data: ev.Size}, true
	case game.EventGameStart, game.EventGameStop, game.EventClear:
		return transport.Event{Name: name}, true
	default:
		return transport.Event{}, false
	}
}

func orNil(id string) any {
	if id == "" {
		return nil
	}
	return id
}
