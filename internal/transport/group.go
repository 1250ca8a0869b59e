package transport

import "sync"

// Group fans events out to a set of channels.
type Group struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{channels: make(map[string]*Channel)}
}

// Add puts a channel in the group. Returns false if it was already there.
func (g *Group) Add(c *Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.channels[c.ID()]; ok {
		return false
	}
	g.channels[c.ID()] = c
	return true
}

// Remove takes a channel out of the group.
func (g *Group) Remove(c *Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.channels[c.ID()]; !ok {
		return false
	}
	delete(g.channels, c.ID())
	return true
}

// Has reports whether the channel is in the group.
func (g *Group) Has(c *Channel) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[c.ID()]
	return ok
}

// Len returns the number of channels.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.channels)
}

// Channels returns a copy of the members.
func (g *Group) Channels() []*Channel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Channel, 0, len(g.channels))
	for _, c := range g.channels {
		out = append(out, c)
	}
	return out
}

// AddEvent sends one event to every member. Callbacks are not allowed on
// group events.
func (g *Group) AddEvent(ev Event, force bool) {
	ev.Callback = nil
	for _, c := range g.Channels() {
		c.AddEvent(ev, force)
	}
}

// AddEvents sends several events to every member.
func (g *Group) AddEvents(evs []Event, force bool) {
	for i := range evs {
		evs[i].Callback = nil
	}
	for _, c := range g.Channels() {
		c.AddEvents(evs, force)
	}
}

// AddEventExcept sends one event to every member but skip.
func (g *Group) AddEventExcept(ev Event, skip *Channel, force bool) {
	ev.Callback = nil
	for _, c := range g.Channels() {
		if c != skip {
			c.AddEvent(ev, force)
		}
	}
}
