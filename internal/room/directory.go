// Package room hosts the lobby and runs one match per room.
//
// Every room is an actor: its players, clients and match are only touched
// from the room's own goroutine. Socket handlers post closures to the room
// inbox instead of locking.
package room

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"trail-arena/internal/config"
	"trail-arena/internal/game"
	"trail-arena/internal/metrics"
	"trail-arena/internal/transport"

	"github.com/google/uuid"
)

// Directory is the server context: it owns the room table and the client
// table. Create one per server with NewDirectory and Shutdown it on exit.
type Directory struct {
	cfg   config.AppConfig
	opts  game.Options
	codec transport.Codec

	mu      sync.RWMutex
	rooms   map[string]*Room
	clients map[string]*Client
	perIP   map[string]int // open clients per remote address
	closed  bool
}

// NewDirectory creates an empty directory.
func NewDirectory(cfg config.AppConfig) *Directory {
	codec, err := transport.CodecByName(cfg.Sync.Codec)
	if err != nil {
		log.Printf("⚠️ %v, falling back to json", err)
		codec = transport.JSONCodec{}
	}
	return &Directory{
		cfg: cfg,
		opts: game.Options{
			Game:    cfg.Game,
			Avatar:  cfg.Avatar,
			Bonus:   cfg.Bonus,
			Spatial: cfg.Spatial,
		},
		codec:   codec,
		rooms:   make(map[string]*Room),
		clients: make(map[string]*Client),
		perIP:   make(map[string]int),
	}
}

// Config returns the configuration the directory was built with.
func (d *Directory) Config() config.AppConfig {
	return d.cfg
}

// Connect registers a new client on conn. codec may be nil to use the
// configured default. It fails with ErrTooManyClients when the server is
// full and ErrTooManyFromIP when ip already holds MaxClientsPerIP clients.
func (d *Directory) Connect(conn transport.Conn, codec transport.Codec, ip string) (*Client, error) {
	if codec == nil {
		codec = d.codec
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrRoomClosed
	}
	if len(d.clients) >= d.cfg.Limits.MaxClients {
		d.mu.Unlock()
		return nil, ErrTooManyClients
	}
	if max := d.cfg.Limits.MaxClientsPerIP; max > 0 && d.perIP[ip] >= max {
		d.mu.Unlock()
		return nil, ErrTooManyFromIP
	}
	ch := transport.NewChannel(conn, transport.Options{
		Interval:     d.cfg.Sync.FlushInterval,
		Codec:        codec,
		InboundRate:  d.cfg.Sync.InboundRate,
		InboundBurst: d.cfg.Sync.InboundBurst,
	})
	c := &Client{ch: ch, ip: ip}
	d.clients[c.ID()] = c
	d.perIP[ip]++
	count := len(d.clients)
	d.mu.Unlock()

	d.attachLobby(c)
	ch.OnClose(func() { d.disconnect(c) })

	log.Printf("📱 Client %s connected from %s (%d total)", c.ID(), ip, count)
	return c, nil
}

// Client looks up a connected client.
func (d *Directory) Client(id string) (*Client, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[id]
	return c, ok
}

// ClientCount returns the number of connected clients.
func (d *Directory) ClientCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}

func (d *Directory) disconnect(c *Client) {
	d.mu.Lock()
	delete(d.clients, c.ID())
	if d.perIP[c.ip]--; d.perIP[c.ip] <= 0 {
		delete(d.perIP, c.ip)
	}
	count := len(d.clients)
	d.mu.Unlock()

	if r := c.Room(); r != nil {
		r.Leave(c)
	}
	log.Printf("📱 Client %s disconnected (%d remaining)", c.ID(), count)
}

// CreateRoom opens a room. An empty name picks a random one.
func (d *Directory) CreateRoom(name string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "room-" + uuid.NewString()[:8]
	}
	if len(name) > d.cfg.Limits.MaxNameLength {
		return nil, ErrInvalidName
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrRoomClosed
	}
	if _, exists := d.rooms[name]; exists {
		d.mu.Unlock()
		return nil, ErrRoomExists
	}
	if len(d.rooms) >= d.cfg.Limits.MaxRooms {
		d.mu.Unlock()
		return nil, ErrTooManyRooms
	}
	r := newRoom(name, d)
	d.rooms[name] = r
	count := len(d.rooms)
	d.mu.Unlock()

	go r.Run()
	metrics.UpdateRooms(count)
	log.Printf("🏠 Room %q opened (%d rooms)", name, count)
	return r, nil
}

// Room looks up a room by name.
func (d *Directory) Room(name string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[name]
	return r, ok
}

// RoomCount returns the number of open rooms.
func (d *Directory) RoomCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// Rooms describes every open room, sorted by name. Rooms that close while
// being asked are skipped.
func (d *Directory) Rooms(ctx context.Context) []Info {
	d.mu.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	out := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		info, err := r.Info(ctx)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RoomInfo describes one room.
func (d *Directory) RoomInfo(ctx context.Context, name string) (Info, error) {
	r, ok := d.Room(name)
	if !ok {
		return Info{}, ErrUnknownRoom
	}
	return r.Info(ctx)
}

// RoomSnapshot copies the match running in a room. running is false while
// the room is in its lobby.
func (d *Directory) RoomSnapshot(ctx context.Context, name string, withTrails bool) (snap game.Snapshot, running bool, err error) {
	r, ok := d.Room(name)
	if !ok {
		return game.Snapshot{}, false, ErrUnknownRoom
	}
	return r.Snapshot(ctx, withTrails)
}

// removeRoom is called by a room when it closes itself.
func (d *Directory) removeRoom(r *Room) {
	d.mu.Lock()
	if d.rooms[r.name] == r {
		delete(d.rooms, r.name)
	}
	count := len(d.rooms)
	d.mu.Unlock()

	metrics.UpdateRooms(count)
	log.Printf("🏠 Room %q closed (%d rooms)", r.name, count)
}

// Join moves a client into a room, leaving its previous room.
func (d *Directory) Join(c *Client, name string) (*Room, error) {
	if _, ok := d.Client(c.ID()); !ok {
		return nil, ErrUnknownClient
	}
	r, ok := d.Room(name)
	if !ok {
		return nil, ErrUnknownRoom
	}
	if prev := c.Room(); prev != nil {
		if prev == r {
			return r, nil
		}
		prev.Leave(c)
	}
	if !r.Join(c) {
		return nil, ErrRoomClosed
	}
	return r, nil
}

// Shutdown closes every room and client.
func (d *Directory) Shutdown() {
	d.mu.Lock()
	d.closed = true
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	clients := make([]*Client, 0, len(d.clients))
	for _, c := range d.clients {
		clients = append(clients, c)
	}
	d.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
	for _, c := range clients {
		c.ch.Close()
	}
	log.Printf("🛑 Directory shut down (%d rooms, %d clients)", len(rooms), len(clients))
}

// attachLobby registers the commands available outside of rooms.
func (d *Directory) attachLobby(c *Client) {
	c.ch.On("room:create", func(msg transport.Message) {
		var req struct {
			Name string `json:"name" msgpack:"name"`
		}
		if !msg.Data.IsNull() {
			if err := msg.Data.Decode(&req); err != nil {
				msg.Reply(fail(ErrInvalidName))
				return
			}
		}
		r, err := d.CreateRoom(req.Name)
		if err != nil {
			msg.Reply(fail(err))
			return
		}
		msg.Reply(ok("name", r.Name()))
	})

	c.ch.On("room:join", func(msg transport.Message) {
		var req struct {
			Name string `json:"name" msgpack:"name"`
		}
		if err := msg.Data.Decode(&req); err != nil {
			msg.Reply(fail(ErrUnknownRoom))
			return
		}
		r, err := d.Join(c, req.Name)
		if err != nil {
			msg.Reply(fail(err))
			return
		}
		msg.Reply(ok("name", r.Name(), "client", c.ID()))
	})

	c.ch.On("room:leave", func(msg transport.Message) {
		r := c.Room()
		if r == nil {
			msg.Reply(fail(ErrNotInRoom))
			return
		}
		r.Leave(c)
		msg.Reply(ok())
	})

	c.ch.On("room:list", func(msg transport.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		msg.Reply(d.Rooms(ctx))
	})
}
