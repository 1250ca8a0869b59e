package game

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"trail-arena/internal/game/spatial"
)

// TestArenaSize verifies the arena grows with the player count
func TestArenaSize(t *testing.T) {
	tests := []struct {
		players int
		want    float64
	}{
		{0, 80},
		{1, 80},
		{2, 88},
		{3, 95},
		{6, 113},
	}

	for _, tt := range tests {
		if got := ArenaSize(tt.players, 80); got != tt.want {
			t.Errorf("ArenaSize(%d) = %v, want %v", tt.players, got, tt.want)
		}
	}
}

// TestRandomPositionMargins verifies spawn points respect the wall margin
func TestRandomPositionMargins(t *testing.T) {
	arena := NewArena(80, 4, rand.New(rand.NewSource(1)), 100)
	margin := 0.6 + 0.05*80

	for i := 0; i < 500; i++ {
		x, y := arena.RandomPosition("p", 0.6, 0.05)
		if x < margin || x > 80-margin || y < margin || y > 80-margin {
			t.Fatalf("Position (%v, %v) outside [%v, %v]", x, y, margin, 80-margin)
		}
	}
}

// TestRandomPositionSpreadsSpawns verifies heads placed for one round never overlap
func TestRandomPositionSpreadsSpawns(t *testing.T) {
	arena := NewArena(40, 4, rand.New(rand.NewSource(5)), 100)
	arena.ResetSpawns()
	const radius = 0.6

	var placed [][2]float64
	for i := 0; i < 8; i++ {
		x, y := arena.RandomPosition(fmt.Sprintf("p%d", i), radius, 0.05)
		for _, p := range placed {
			if d := math.Hypot(p[0]-x, p[1]-y); d < 2*radius {
				t.Fatalf("Spawn %d at (%v, %v) overlaps (%v, %v), distance %v", i, x, y, p[0], p[1], d)
			}
		}
		placed = append(placed, [2]float64{x, y})
	}

	arena.ResetSpawns()
	if n := arena.spawns.Len(); n != 0 {
		t.Errorf("Expected no reservations after reset, got %d", n)
	}
}

// TestFreePositionAvoidsBodies verifies placement skips occupied spots
func TestFreePositionAvoidsBodies(t *testing.T) {
	arena := NewArena(20, 4, rand.New(rand.NewSource(2)), 64)
	grid := arena.Grid()
	grid.Activate()

	// Fill the left half
	for x := 0.5; x < 10; x++ {
		for y := 0.5; y < 20; y++ {
			grid.Insert(&spatial.Body{X: x, Y: y, Radius: 0.5, Owner: "wall"})
		}
	}

	for i := 0; i < 50; i++ {
		x, _, ok := arena.FreePosition(0.5, 0, 64, grid)
		if ok && x < 10 {
			t.Fatalf("Free position %v lands on an occupied half", x)
		}
	}
}

// TestFreePositionExhausted verifies a saturated arena reports failure
func TestFreePositionExhausted(t *testing.T) {
	arena := NewArena(10, 2, rand.New(rand.NewSource(3)), 16)
	grid := arena.Grid()
	grid.Activate()
	for x := 0.5; x < 10; x++ {
		for y := 0.5; y < 10; y++ {
			grid.Insert(&spatial.Body{X: x, Y: y, Radius: 0.9, Owner: "blob"})
		}
	}

	if _, _, ok := arena.FreePosition(0.5, 0, 64, grid); ok {
		t.Error("Expected no free position on a covered arena")
	}
}

// TestBoundIntersect tests wall detection and wrapping
func TestBoundIntersect(t *testing.T) {
	arena := NewArena(80, 4, rand.New(rand.NewSource(1)), 1)

	tests := []struct {
		name         string
		x, y, margin float64
		hit          bool
		wx, wy       float64
		ox, oy       float64
	}{
		{"inside", 40, 40, 0.6, false, 40, 40, 40, 40},
		{"left", 0.3, 10, 0.6, true, 0, 10, 80, 10},
		{"right", 79.9, 10, 0.6, true, 80, 10, 0, 10},
		{"top", 10, -0.1, 0, true, 10, 0, 10, 80},
		{"bottom", 10, 80.5, 0, true, 10, 80, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, hit := arena.BoundIntersect(tt.x, tt.y, tt.margin)
			if hit != tt.hit {
				t.Fatalf("Expected hit=%v, got %v", tt.hit, hit)
			}
			if x != tt.wx || y != tt.wy {
				t.Errorf("Expected wall point (%v, %v), got (%v, %v)", tt.wx, tt.wy, x, y)
			}
			if !hit {
				return
			}
			ox, oy := arena.Opposite(x, y)
			if ox != tt.ox || oy != tt.oy {
				t.Errorf("Expected opposite (%v, %v), got (%v, %v)", tt.ox, tt.oy, ox, oy)
			}
		})
	}
}

// TestRandomDirectionLeavesRoom verifies spawn headings point away from nearby walls
func TestRandomDirectionLeavesRoom(t *testing.T) {
	arena := NewArena(80, 4, rand.New(rand.NewSource(4)), 1000)

	// Close to the right wall: heading right is never acceptable.
	for i := 0; i < 100; i++ {
		angle := arena.RandomDirection(75, 40, 0.3)
		if angle < 0 || angle >= 2*math.Pi {
			t.Fatalf("Angle %v out of range", angle)
		}
		if math.Cos(angle) > 0.99 {
			t.Fatalf("Angle %v heads straight into the near wall", angle)
		}
	}
}
