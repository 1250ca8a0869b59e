package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trail-arena/internal/api"
	"trail-arena/internal/game"
	"trail-arena/internal/room"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// MockLobby implements api.LobbyInterface for testing
type MockLobby struct {
	rooms     map[string]room.Info
	snapshots map[string]game.Snapshot
	clients   int
}

func NewMockLobby() *MockLobby {
	return &MockLobby{
		rooms:     make(map[string]room.Info),
		snapshots: make(map[string]game.Snapshot),
	}
}

func (m *MockLobby) Rooms(ctx context.Context) []room.Info {
	out := make([]room.Info, 0, len(m.rooms))
	for _, info := range m.rooms {
		out = append(out, info)
	}
	return out
}

func (m *MockLobby) RoomInfo(ctx context.Context, name string) (room.Info, error) {
	info, ok := m.rooms[name]
	if !ok {
		return room.Info{}, room.ErrUnknownRoom
	}
	return info, nil
}

func (m *MockLobby) RoomSnapshot(ctx context.Context, name string, withTrails bool) (game.Snapshot, bool, error) {
	if _, ok := m.rooms[name]; !ok {
		return game.Snapshot{}, false, room.ErrUnknownRoom
	}
	snap, ok := m.snapshots[name]
	if !withTrails {
		snap.Trails = nil
	}
	return snap, ok, nil
}

func (m *MockLobby) RoomCount() int   { return len(m.rooms) }
func (m *MockLobby) ClientCount() int { return m.clients }

func newTestServer(t *testing.T, lobby api.LobbyInterface) *httptest.Server {
	t.Helper()
	limiter := api.NewIPRateLimiter(api.RateLimitConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		IdleTTL:           time.Hour,
	})
	t.Cleanup(limiter.Stop)

	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Lobby:          lobby,
		RateLimiter:    limiter,
		DisableLogging: true, // Quiet logs in tests
	}))
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("Expected %d, got %d", wantStatus, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
}

// ============================================================================
// API Endpoint Tests
// ============================================================================

func TestAPIHealth(t *testing.T) {
	lobby := NewMockLobby()
	lobby.rooms["arena"] = room.Info{Name: "arena"}
	lobby.clients = 3
	ts := newTestServer(t, lobby)

	var result map[string]interface{}
	getJSON(t, ts.URL+"/health", http.StatusOK, &result)
	if result["status"] != "ok" || result["rooms"] != float64(1) || result["clients"] != float64(3) {
		t.Errorf("Unexpected health payload: %v", result)
	}
}

func TestAPIListRooms(t *testing.T) {
	lobby := NewMockLobby()
	lobby.rooms["arena"] = room.Info{Name: "arena", Players: 2, InGame: true, State: "in_round"}
	ts := newTestServer(t, lobby)

	var rooms []room.Info
	getJSON(t, ts.URL+"/api/rooms", http.StatusOK, &rooms)
	if len(rooms) != 1 || rooms[0].Name != "arena" || rooms[0].Players != 2 {
		t.Errorf("Unexpected rooms: %+v", rooms)
	}
}

func TestAPIGetRoom(t *testing.T) {
	lobby := NewMockLobby()
	lobby.rooms["lobby"] = room.Info{Name: "lobby", State: "lobby"}
	lobby.rooms["arena"] = room.Info{Name: "arena", InGame: true}
	lobby.snapshots["arena"] = game.Snapshot{Name: "arena", Size: 100, State: "in_round"}
	ts := newTestServer(t, lobby)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantMatch  bool
	}{
		{"running match", "/api/rooms/arena", http.StatusOK, true},
		{"lobby only", "/api/rooms/lobby", http.StatusOK, false},
		{"unknown room", "/api/rooms/nope", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result map[string]interface{}
			getJSON(t, ts.URL+tt.path, tt.wantStatus, &result)
			if tt.wantStatus != http.StatusOK {
				return
			}
			if _, ok := result["match"]; ok != tt.wantMatch {
				t.Errorf("match present = %v, want %v", ok, tt.wantMatch)
			}
		})
	}
}

func TestAPIArenaPNG(t *testing.T) {
	lobby := NewMockLobby()
	lobby.rooms["arena"] = room.Info{Name: "arena", InGame: true}
	lobby.rooms["lobby"] = room.Info{Name: "lobby"}
	lobby.snapshots["arena"] = game.Snapshot{
		Size:    100,
		Avatars: []game.AvatarState{{ID: "1", Color: "#ff0000", X: 50, Y: 50, Radius: 0.6, Alive: true, Present: true}},
		Trails:  []game.TrailState{{Owner: "1", X: 40, Y: 50, Radius: 0.6}},
	}
	ts := newTestServer(t, lobby)

	resp, err := http.Get(ts.URL + "/api/rooms/arena/arena.png?size=128")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Body is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 128 {
		t.Errorf("width = %d, want 128", img.Bounds().Dx())
	}

	getJSON(t, ts.URL+"/api/rooms/lobby/arena.png", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/api/rooms/arena/arena.png?size=big", http.StatusBadRequest, nil)
}

func TestAPIListBonuses(t *testing.T) {
	ts := newTestServer(t, NewMockLobby())

	var bonuses []map[string]interface{}
	getJSON(t, ts.URL+"/api/bonuses", http.StatusOK, &bonuses)
	if len(bonuses) != len(game.AllBonusKinds()) {
		t.Fatalf("Expected %d bonuses, got %d", len(game.AllBonusKinds()), len(bonuses))
	}
	for _, b := range bonuses {
		if b["name"] == "" || b["target"] == "unknown" {
			t.Errorf("Incomplete bonus entry: %v", b)
		}
	}
}

func TestAPIRateLimit(t *testing.T) {
	limiter := api.NewIPRateLimiter(api.RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             2,
		IdleTTL:           time.Hour,
	})
	defer limiter.Stop()

	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Lobby:          NewMockLobby(),
		RateLimiter:    limiter,
		DisableLogging: true,
	}))
	defer ts.Close()

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	if statuses[0] != http.StatusOK || statuses[3] != http.StatusTooManyRequests {
		t.Errorf("Unexpected statuses: %v", statuses)
	}
}

func TestIsAllowedOrigin(t *testing.T) {
	patterns := []string{"http://localhost:*", "https://*.example.com", "https://play.test"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://arena.example.com", true},
		{"https://play.test", true},
		{"https://evil.test", false},
		{"http://example.com", false},
	}
	for _, tt := range tests {
		if got := api.IsAllowedOrigin(tt.origin, patterns); got != tt.want {
			t.Errorf("IsAllowedOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
