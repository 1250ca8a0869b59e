package room

import (
	"sync"

	"trail-arena/internal/transport"
)

// Client is one connected socket. It may sit in at most one room.
type Client struct {
	ch *transport.Channel
	ip string

	mu   sync.Mutex
	room *Room
}

// ID returns the client id.
func (c *Client) ID() string {
	return c.ch.ID()
}

// Channel returns the client's event channel.
func (c *Client) Channel() *transport.Channel {
	return c.ch
}

// IP returns the remote address the client connected from.
func (c *Client) IP() string {
	return c.ip
}

// Room returns the room the client is in, if any.
func (c *Client) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

// clearRoom forgets the room only if it is still old.
func (c *Client) clearRoom(old *Room) {
	c.mu.Lock()
	if c.room == old {
		c.room = nil
	}
	c.mu.Unlock()
}
