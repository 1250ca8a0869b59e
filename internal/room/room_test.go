package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"trail-arena/internal/config"
	"trail-arena/internal/game"
	"trail-arena/internal/transport"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type wireTuple struct {
	name  string
	reply int
	data  json.RawMessage
}

// fakeConn records every tuple written to it.
type fakeConn struct {
	mu     sync.Mutex
	tuples []wireTuple
	closed bool
}

func (f *fakeConn) Send(b []byte) error {
	var batch [][]json.RawMessage
	if err := json.Unmarshal(b, &batch); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range batch {
		wt := wireTuple{}
		if len(t) > 1 {
			wt.data = t[1]
		}
		if err := json.Unmarshal(t[0], &wt.name); err != nil {
			_ = json.Unmarshal(t[0], &wt.reply)
		}
		f.tuples = append(f.tuples, wt)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) find(match func(wireTuple) bool) (wireTuple, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tuples {
		if match(t) {
			return t, true
		}
	}
	return wireTuple{}, false
}

func (f *fakeConn) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tuples {
		if t.name == name {
			n++
		}
	}
	return n
}

// waitEvent polls until an event with the given name has been written.
func (f *fakeConn) waitEvent(t *testing.T, name string) json.RawMessage {
	t.Helper()
	return f.waitMatch(t, name, func(wt wireTuple) bool { return wt.name == name })
}

func (f *fakeConn) waitMatch(t *testing.T, what string, match func(wireTuple) bool) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if wt, ok := f.find(match); ok {
			return wt.data
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
	return nil
}

type testClient struct {
	*fakeConn
	client *Client
	nextID int
}

func testConfig() config.AppConfig {
	cfg := config.Default()
	cfg.Sync.FlushInterval = 0
	cfg.Sync.InboundRate = 0
	cfg.Game.WarmupTime = 50 * time.Millisecond
	cfg.Game.WarmdownTime = 50 * time.Millisecond
	cfg.Game.ReadyTimeout = time.Second
	cfg.Game.PrintDelay = 20 * time.Millisecond
	return cfg
}

func newTestDirectory(t *testing.T, cfg config.AppConfig) *Directory {
	t.Helper()
	d := NewDirectory(cfg)
	t.Cleanup(d.Shutdown)
	return d
}

func connect(t *testing.T, d *Directory) *testClient {
	t.Helper()
	conn := &fakeConn{}
	c, err := d.Connect(conn, transport.JSONCodec{}, "127.0.0.1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return &testClient{fakeConn: conn, client: c}
}

// emit sends an event without a callback.
func (tc *testClient) emit(t *testing.T, name string, data any) {
	t.Helper()
	b, err := json.Marshal([]any{[]any{name, data}})
	if err != nil {
		t.Fatal(err)
	}
	tc.client.ch.Receive(b)
}

// request sends an event with a callback and decodes the reply.
func (tc *testClient) request(t *testing.T, name string, data any) map[string]any {
	t.Helper()
	tc.nextID++
	id := tc.nextID
	b, err := json.Marshal([]any{[]any{name, data, id}})
	if err != nil {
		t.Fatal(err)
	}
	tc.client.ch.Receive(b)

	raw := tc.waitMatch(t, fmt.Sprintf("reply %d to %s", id, name), func(wt wireTuple) bool {
		return wt.name == "" && wt.reply == id
	})
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("reply to %s is not an object: %s", name, raw)
	}
	return out
}

func mustSucceed(t *testing.T, res map[string]any) {
	t.Helper()
	if res["success"] != true {
		t.Fatalf("expected success, got %v", res)
	}
}

func mustFail(t *testing.T, res map[string]any, want error) {
	t.Helper()
	if res["success"] != false || res["error"] != want.Error() {
		t.Fatalf("expected error %q, got %v", want, res)
	}
}

// joinRoom creates the room if needed and joins it.
func (tc *testClient) joinRoom(t *testing.T, d *Directory, name string) {
	t.Helper()
	if _, ok := d.Room(name); !ok {
		mustSucceed(t, tc.request(t, "room:create", map[string]any{"name": name}))
	}
	mustSucceed(t, tc.request(t, "room:join", map[string]any{"name": name}))
}

func (tc *testClient) addPlayer(t *testing.T, name string) string {
	t.Helper()
	res := tc.request(t, "player:add", map[string]any{"name": name, "color": "#ff0000"})
	mustSucceed(t, res)
	id, _ := res["player"].(string)
	return id
}

// =============================================================================
// LOBBY
// =============================================================================

func TestCreateAndJoinRoom(t *testing.T) {
	d := newTestDirectory(t, testConfig())
	a := connect(t, d)

	res := a.request(t, "room:create", map[string]any{"name": "arena"})
	mustSucceed(t, res)
	if res["name"] != "arena" {
		t.Errorf("name = %v, want arena", res["name"])
	}
	mustFail(t, a.request(t, "room:create", map[string]any{"name": "arena"}), ErrRoomExists)

	res = a.request(t, "room:join", map[string]any{"name": "arena"})
	mustSucceed(t, res)
	if res["client"] != a.client.ID() {
		t.Errorf("client = %v, want %s", res["client"], a.client.ID())
	}
	a.waitEvent(t, "room:state")

	mustFail(t, a.request(t, "room:join", map[string]any{"name": "nope"}), ErrUnknownRoom)

	rooms := d.Rooms(context.Background())
	if len(rooms) != 1 || rooms[0].Name != "arena" || rooms[0].Clients != 1 {
		t.Fatalf("rooms = %+v", rooms)
	}
}

func TestCreateRoomRandomName(t *testing.T) {
	d := newTestDirectory(t, testConfig())
	a := connect(t, d)

	res := a.request(t, "room:create", nil)
	mustSucceed(t, res)
	name, _ := res["name"].(string)
	if name == "" {
		t.Fatal("expected a generated room name")
	}
	if _, ok := d.Room(name); !ok {
		t.Fatalf("room %q not registered", name)
	}
}

func TestRoomLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxRooms = 1
	d := newTestDirectory(t, cfg)

	if _, err := d.CreateRoom("one"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.CreateRoom("two"); err != ErrTooManyRooms {
		t.Fatalf("err = %v, want %v", err, ErrTooManyRooms)
	}
}

func TestClientLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxClients = 1
	d := newTestDirectory(t, cfg)

	connect(t, d)
	if _, err := d.Connect(&fakeConn{}, nil, "127.0.0.1"); err != ErrTooManyClients {
		t.Fatalf("err = %v, want %v", err, ErrTooManyClients)
	}
}

func TestClientLimitPerIP(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxClientsPerIP = 1
	d := newTestDirectory(t, cfg)

	a := connect(t, d)
	if _, err := d.Connect(&fakeConn{}, nil, "127.0.0.1"); err != ErrTooManyFromIP {
		t.Fatalf("err = %v, want %v", err, ErrTooManyFromIP)
	}
	if _, err := d.Connect(&fakeConn{}, nil, "10.0.0.2"); err != nil {
		t.Fatalf("other address refused: %v", err)
	}

	a.client.Channel().Close()
	if _, err := d.Connect(&fakeConn{}, nil, "127.0.0.1"); err != nil {
		t.Fatalf("slot not released on disconnect: %v", err)
	}
}

func TestPlayerAdd(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxPlayersPerRoom = 2
	d := newTestDirectory(t, cfg)
	a := connect(t, d)
	b := connect(t, d)
	a.joinRoom(t, d, "arena")
	b.joinRoom(t, d, "arena")

	a.addPlayer(t, "Alice")
	b.waitEvent(t, "room:join")

	tests := []struct {
		name    string
		player  string
		wantErr error
	}{
		{"empty", "  ", ErrInvalidName},
		{"too long", "abcdefghijklmnopqrstuvwxyz0123", ErrInvalidName},
		{"taken ignoring case", "alice", ErrNameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mustFail(t, b.request(t, "player:add", map[string]any{"name": tt.player}), tt.wantErr)
		})
	}

	b.addPlayer(t, "Bob")
	mustFail(t, b.request(t, "player:add", map[string]any{"name": "Carol"}), ErrCannotAddPlayer)
}

func TestPlayerRemoveRequiresOwner(t *testing.T) {
	d := newTestDirectory(t, testConfig())
	a := connect(t, d)
	b := connect(t, d)
	a.joinRoom(t, d, "arena")
	b.joinRoom(t, d, "arena")

	id := a.addPlayer(t, "Alice")
	mustFail(t, b.request(t, "player:remove", map[string]any{"player": id}), ErrUnknownPlayer)
	mustSucceed(t, a.request(t, "player:remove", map[string]any{"player": id}))
	b.waitEvent(t, "room:leave")

	r, _ := d.Room("arena")
	players, err := r.Players(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(players) != 0 {
		t.Fatalf("players = %+v, want none", players)
	}
}

func TestRoomConfig(t *testing.T) {
	d := newTestDirectory(t, testConfig())
	a := connect(t, d)
	a.joinRoom(t, d, "arena")

	res := a.request(t, "room:config", map[string]any{
		"maxScore":  5,
		"bonusRate": 3,
		"bonuses":   map[string]bool{game.BonusGameClear.String(): false, "nonsense": true},
	})
	mustSucceed(t, res)
	cfg := res["config"].(map[string]any)
	if cfg["maxScore"] != float64(5) {
		t.Errorf("maxScore = %v, want 5", cfg["maxScore"])
	}
	if cfg["bonusRate"] != float64(1) {
		t.Errorf("bonusRate = %v, want clamped to 1", cfg["bonusRate"])
	}
	bonuses := cfg["bonuses"].(map[string]any)
	if bonuses[game.BonusGameClear.String()] != false {
		t.Errorf("%s should be disabled", game.BonusGameClear)
	}
	if _, ok := bonuses["nonsense"]; ok {
		t.Error("unknown bonus names should be ignored")
	}
}

func TestRoomClosesWhenEmpty(t *testing.T) {
	d := newTestDirectory(t, testConfig())
	a := connect(t, d)
	a.joinRoom(t, d, "arena")
	r, _ := d.Room("arena")

	mustSucceed(t, a.request(t, "room:leave", nil))

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room did not close")
	}
	if _, ok := d.Room("arena"); ok {
		t.Fatal("closed room still listed")
	}
	if a.client.Room() != nil {
		t.Fatal("client still points at the closed room")
	}
}

func TestUnjoinedRoomCloses(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.EmptyRoomTimeout = 30 * time.Millisecond
	d := newTestDirectory(t, cfg)

	r, err := d.CreateRoom("ghost")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room nobody joined did not close")
	}
	if d.RoomCount() != 0 {
		t.Fatalf("RoomCount = %d, want 0", d.RoomCount())
	}
}

func TestJoinedRoomStaysOpen(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.EmptyRoomTimeout = 30 * time.Millisecond
	d := newTestDirectory(t, cfg)
	a := connect(t, d)
	a.joinRoom(t, d, "arena")

	time.Sleep(100 * time.Millisecond)
	if _, ok := d.Room("arena"); !ok {
		t.Fatal("occupied room was closed")
	}
}

func TestDisconnectRemovesPlayers(t *testing.T) {
	d := newTestDirectory(t, testConfig())
	a := connect(t, d)
	b := connect(t, d)
	a.joinRoom(t, d, "arena")
	b.joinRoom(t, d, "arena")
	a.addPlayer(t, "Alice")

	a.client.ch.Close()
	b.waitEvent(t, "client:remove")
	b.waitEvent(t, "room:leave")
	if d.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", d.ClientCount())
	}
}

// =============================================================================
// MATCH
// =============================================================================

// launch puts one player per client in the room and readies everyone.
func launch(t *testing.T, d *Directory, clients ...*testClient) []string {
	t.Helper()
	ids := make([]string, len(clients))
	for i, c := range clients {
		c.joinRoom(t, d, "arena")
		ids[i] = c.addPlayer(t, fmt.Sprintf("player%d", i))
	}
	for i, c := range clients {
		mustSucceed(t, c.request(t, "room:ready", map[string]any{"player": ids[i]}))
	}
	for _, c := range clients {
		c.waitEvent(t, "room:game:start")
	}
	return ids
}

func TestMatchLifecycle(t *testing.T) {
	d := newTestDirectory(t, testConfig())
	a := connect(t, d)
	b := connect(t, d)
	ids := launch(t, d, a, b)

	mustFail(t, a.request(t, "player:add", map[string]any{"name": "Late"}), ErrGameStarted)
	mustFail(t, a.request(t, "room:config", map[string]any{"maxScore": 3}), ErrGameStarted)

	a.emit(t, "ready", nil)
	b.emit(t, "ready", nil)
	a.waitEvent(t, "round:new")
	a.waitEvent(t, "game:start")

	a.emit(t, "player:move", map[string]any{"avatar": ids[0], "move": 1})
	a.waitEvent(t, "position")
	a.waitEvent(t, "angle")

	r, _ := d.Room("arena")
	info, err := r.Info(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !info.InGame || info.Players != 2 {
		t.Fatalf("info = %+v", info)
	}
	snap, running, err := r.Snapshot(context.Background(), true)
	if err != nil || !running {
		t.Fatalf("Snapshot running=%v err=%v", running, err)
	}
	if len(snap.Avatars) != 2 {
		t.Fatalf("snapshot avatars = %d, want 2", len(snap.Avatars))
	}

	b.client.ch.Close()
	a.waitEvent(t, "game:leave")
	end := a.waitEvent(t, "end")
	var winner string
	if err := json.Unmarshal(end, &winner); err != nil || winner != ids[0] {
		t.Fatalf("end winner = %s, want %s", end, ids[0])
	}
	a.waitEvent(t, "room:game:end")

	// back in the lobby, players can be added again
	a.addPlayer(t, "Second")
}

func TestSpectatorReplay(t *testing.T) {
	d := newTestDirectory(t, testConfig())
	a := connect(t, d)
	b := connect(t, d)
	launch(t, d, a, b)
	a.emit(t, "ready", nil)
	b.emit(t, "ready", nil)
	a.waitEvent(t, "game:start")

	s := connect(t, d)
	s.joinRoom(t, d, "arena")
	s.waitEvent(t, "room:game:start")
	raw := a.waitMatch(t, "one spectator", func(wt wireTuple) bool {
		return wt.name == "game:spectators" && string(wt.data) == "1"
	})
	if string(raw) != "1" {
		t.Fatalf("spectators = %s", raw)
	}

	s.emit(t, "ready", nil)
	var replay struct {
		InRound  bool `json:"inRound"`
		MaxScore int  `json:"maxScore"`
	}
	if err := json.Unmarshal(s.waitEvent(t, "spectate"), &replay); err != nil {
		t.Fatal(err)
	}
	if replay.MaxScore != game.DefaultMaxScore(2) {
		t.Errorf("maxScore = %d, want %d", replay.MaxScore, game.DefaultMaxScore(2))
	}
	s.waitEvent(t, "borderless")
	if s.count("score") < 2 {
		t.Errorf("replayed %d scores, want one per avatar", s.count("score"))
	}
}

func TestShutdownClosesRooms(t *testing.T) {
	d := NewDirectory(testConfig())
	a := connect(t, d)
	a.joinRoom(t, d, "arena")
	r, _ := d.Room("arena")

	d.Shutdown()
	select {
	case <-r.Done():
	default:
		t.Fatal("room still running after Shutdown")
	}
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if !closed {
		t.Fatal("client connection still open after Shutdown")
	}
	if _, err := d.CreateRoom("again"); err != ErrRoomClosed {
		t.Fatalf("CreateRoom after Shutdown = %v, want %v", err, ErrRoomClosed)
	}
}

// =============================================================================
// WIRE MAPPING
// =============================================================================

func TestWireEvent(t *testing.T) {
	tests := []struct {
		name   string
		ev     game.Event
		want   string
		wantOK bool
	}{
		{"position", game.Event{Kind: game.EventPosition, Avatar: "1", X: 1.234, Y: 5.6}, `["1",123,560]`, true},
		{"wall death", game.Event{Kind: game.EventDie, Avatar: "1"}, `["1",null,false]`, true},
		{"trail death", game.Event{Kind: game.EventDie, Avatar: "1", Killer: "2", Old: true}, `["1","2",true]`, true},
		{"important point", game.Event{Kind: game.EventPoint, Avatar: "1", Important: true}, `"1"`, true},
		{"plain point", game.Event{Kind: game.EventPoint, Avatar: "1"}, ``, false},
		{"draw", game.Event{Kind: game.EventRoundEnd}, `null`, true},
		{"stack", game.Event{
			Kind: game.EventBonusStack, Avatar: "1", Method: game.StackAdd,
			Bonus: game.BonusRef{ID: 7, Kind: game.BonusSelfFast, Duration: 3 * time.Second},
		}, fmt.Sprintf(`["1","add",7,%q,3000]`, game.BonusSelfFast.String()), true},
		{"property", game.Event{Kind: game.EventProperty, Avatar: "1", Property: game.PropInverse, Value: true}, `["1","inverse",true]`, true},
		{"clear", game.Event{Kind: game.EventClear}, `null`, true},
		{"round size", game.Event{Kind: game.EventRoundNew, Size: 88}, `88`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := wireEvent(tt.ev)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if out.Name != tt.ev.Kind.String() {
				t.Errorf("name = %s, want %s", out.Name, tt.ev.Kind)
			}
			got, _ := json.Marshal(out.Data)
			if string(got) != tt.want {
				t.Errorf("data = %s, want %s", got, tt.want)
			}
		})
	}
}
