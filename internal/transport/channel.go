// Package transport batches named events to a client and dispatches the
// client's batches back to handlers.
//
// A batch is an array of tuples. A tuple whose first element is a string is
// a named event [name, data?, callbackId?]; a tuple whose first element is a
// number is a reply [callbackId, data] to an earlier callback.
package transport

import (
	"errors"
	"log"
	"sync"
	"time"

	"trail-arena/internal/metrics"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrClosed is returned when sending on a closed channel.
var ErrClosed = errors.New("transport: channel closed")

// Conn is the socket a channel writes encoded batches to.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Event is one outbound named event. Callback, if set, receives the client's
// reply at most once.
type Event struct {
	Name     string
	Data     any
	Callback func(Raw)
}

// Message is one inbound named event.
type Message struct {
	Name string
	Data Raw

	reply *replier
}

// HasCallback reports whether the sender expects a reply.
func (m Message) HasCallback() bool {
	return m.reply != nil
}

// Reply answers the sender's callback. Only the first call sends anything.
func (m Message) Reply(data any) bool {
	if m.reply == nil {
		return false
	}
	return m.reply.send(data)
}

type replier struct {
	once sync.Once
	ch   *Channel
	id   int
}

func (r *replier) send(data any) bool {
	sent := false
	r.once.Do(func() {
		sent = true
		r.ch.enqueue([]any{[]any{r.id, data}}, false)
	})
	return sent
}

// Handler receives inbound events.
type Handler func(msg Message)

// Options configures a channel.
type Options struct {
	ID           string        // defaults to a random uuid
	Interval     time.Duration // 0 sends every event immediately
	Codec        Codec         // defaults to JSON
	InboundRate  float64       // messages per second, 0 for unlimited
	InboundBurst int
}

type handlerEntry struct {
	fn Handler
}

// Channel is the per-client event pipe.
//
// All methods are safe for concurrent use. Handlers run on the goroutine
// that called Receive.
type Channel struct {
	id      string
	conn    Conn
	codec   Codec
	limiter *rate.Limiter

	mu        sync.Mutex
	queue     []any
	interval  time.Duration
	stop      chan struct{}
	callbacks map[int]func(Raw)
	callCount int
	handlers  map[string][]*handlerEntry
	onClose   []func()
	connected bool

	// Serializes writes so batches reach the socket in enqueue order.
	// Taken before mu when both are needed.
	sendMu sync.Mutex
}

// NewChannel wraps conn and starts the flush loop if an interval is set.
func NewChannel(conn Conn, opts Options) *Channel {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}

	c := &Channel{
		id:        opts.ID,
		conn:      conn,
		codec:     opts.Codec,
		callbacks: make(map[int]func(Raw)),
		handlers:  make(map[string][]*handlerEntry),
		connected: true,
	}
	if opts.InboundRate > 0 {
		burst := opts.InboundBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.InboundRate), burst)
	}

	c.On("whoami", func(msg Message) {
		msg.Reply(c.id)
	})
	c.SetInterval(opts.Interval)

	return c
}

// ID returns the client id.
func (c *Channel) ID() string {
	return c.id
}

// Codec returns the wire codec.
func (c *Channel) Codec() Codec {
	return c.codec
}

// Connected reports whether the channel is still open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetInterval changes the flush interval, restarting the flush loop.
// Pending events are flushed first when switching to immediate mode.
func (c *Channel) SetInterval(d time.Duration) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.interval = d
	if d > 0 {
		c.stop = make(chan struct{})
		go c.flushLoop(d, c.stop)
	}
	c.mu.Unlock()

	if d <= 0 {
		c.Flush()
	}
}

func (c *Channel) flushLoop(d time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

// AddEvent queues one event. With force, or without a flush interval, the
// event is written right away on its own.
func (c *Channel) AddEvent(ev Event, force bool) {
	c.enqueue([]any{c.tuple(ev)}, force)
}

// AddEvents queues several events under the same policy as AddEvent.
func (c *Channel) AddEvents(evs []Event, force bool) {
	if len(evs) == 0 {
		return
	}
	tuples := make([]any, len(evs))
	for i, ev := range evs {
		tuples[i] = c.tuple(ev)
	}
	c.enqueue(tuples, force)
}

func (c *Channel) tuple(ev Event) []any {
	if ev.Callback != nil {
		c.mu.Lock()
		c.callCount++
		id := c.callCount
		c.callbacks[id] = ev.Callback
		c.mu.Unlock()
		return []any{ev.Name, ev.Data, id}
	}
	if ev.Data == nil {
		return []any{ev.Name}
	}
	return []any{ev.Name, ev.Data}
}

func (c *Channel) enqueue(batch []any, force bool) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	if force || c.interval <= 0 {
		c.mu.Unlock()
		c.sendMu.Lock()
		err := c.write(batch)
		c.sendMu.Unlock()
		c.closeOnError(err)
		return
	}
	c.queue = append(c.queue, batch...)
	c.mu.Unlock()
}

// Flush writes every queued event as one batch.
// The queue is taken and written under sendMu, so concurrent flushes
// reach the socket in the order their events were queued.
func (c *Channel) Flush() {
	c.sendMu.Lock()
	c.mu.Lock()
	if len(c.queue) == 0 || !c.connected {
		c.mu.Unlock()
		c.sendMu.Unlock()
		return
	}
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()

	err := c.write(batch)
	c.sendMu.Unlock()
	c.closeOnError(err)
}

// Pending returns the number of queued events.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// write sends one batch. Callers hold sendMu. Only transport failures are
// returned; a batch that cannot be encoded is logged and dropped.
func (c *Channel) write(batch []any) error {
	data, err := c.codec.Marshal(batch)
	if err != nil {
		log.Printf("⚠️ Client %s: dropping batch of %d events: %v", c.id, len(batch), err)
		return nil
	}
	if err := c.conn.Send(data); err != nil {
		return err
	}
	metrics.RecordFlush(len(batch))
	return nil
}

// closeOnError closes the channel after a failed send. It runs without
// sendMu held since close listeners may write to other channels.
func (c *Channel) closeOnError(err error) {
	if err == nil {
		return
	}
	log.Printf("📱 Client %s: send failed, closing: %v", c.id, err)
	c.Close()
}

// On registers a handler for a named inbound event and returns a func
// that removes it.
func (c *Channel) On(name string, fn Handler) (off func()) {
	entry := &handlerEntry{fn: fn}

	c.mu.Lock()
	c.handlers[name] = append(c.handlers[name], entry)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.handlers[name]
		for i, e := range list {
			if e == entry {
				c.handlers[name] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(c.handlers[name]) == 0 {
			delete(c.handlers, name)
		}
	}
}

// OnClose registers fn to run once when the channel closes. If the channel
// is already closed fn runs immediately.
func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		fn()
		return
	}
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// Receive dispatches one inbound batch. Malformed batches and tuples are
// dropped without closing the channel.
func (c *Channel) Receive(data []byte) {
	if !c.Connected() {
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		metrics.RecordInboundDropped("rate_limit")
		return
	}

	tuples, err := c.codec.Split(data)
	if err != nil {
		metrics.RecordInboundDropped("malformed")
		return
	}
	for _, t := range tuples {
		c.dispatch(t)
	}
}

func (c *Channel) dispatch(t [][]byte) {
	if len(t) == 0 {
		metrics.RecordInboundDropped("malformed")
		return
	}

	var name string
	if err := c.codec.Unmarshal(t[0], &name); err == nil && name != "" {
		c.dispatchEvent(name, t)
		return
	}

	var id int
	if err := c.codec.Unmarshal(t[0], &id); err != nil {
		metrics.RecordInboundDropped("malformed")
		return
	}
	c.resolveCallback(id, t)
}

func (c *Channel) dispatchEvent(name string, t [][]byte) {
	msg := Message{Name: name}
	if len(t) > 1 {
		msg.Data = Raw{data: t[1], codec: c.codec}
	}
	if len(t) > 2 && !c.codec.IsNull(t[2]) {
		var id int
		if err := c.codec.Unmarshal(t[2], &id); err != nil {
			metrics.RecordInboundDropped("malformed")
			return
		}
		msg.reply = &replier{ch: c, id: id}
	}

	c.mu.Lock()
	entries := append([]*handlerEntry(nil), c.handlers[name]...)
	c.mu.Unlock()

	for _, e := range entries {
		e.fn(msg)
	}
}

func (c *Channel) resolveCallback(id int, t [][]byte) {
	c.mu.Lock()
	cb, ok := c.callbacks[id]
	delete(c.callbacks, id)
	c.mu.Unlock()

	if !ok {
		metrics.RecordInboundDropped("unknown_callback")
		return
	}
	var data Raw
	if len(t) > 1 {
		data = Raw{data: t[1], codec: c.codec}
	}
	cb(data)
}

// Close stops the flush loop, drops pending events and handlers, closes the
// socket and runs the close listeners. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.queue = nil
	c.handlers = make(map[string][]*handlerEntry)
	c.callbacks = make(map[int]func(Raw))
	listeners := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	err := c.conn.Close()
	for _, fn := range listeners {
		fn()
	}
	return err
}
