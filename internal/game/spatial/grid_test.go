package spatial

import (
	"math/rand"
	"testing"
	"time"
)

func newActiveGrid(size float64, unit float64) *Grid {
	g := NewGrid(size, CellCount(size, unit))
	g.Activate()
	return g
}

func TestCellCount(t *testing.T) {
	tests := []struct {
		name string
		size float64
		unit float64
		want int
	}{
		{"exact", 80, 4, 20},
		{"rounded down", 81, 4, 20},
		{"rounded up", 82, 4, 21},
		{"tiny arena", 1, 4, 1},
		{"zero unit", 80, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CellCount(tt.size, tt.unit); got != tt.want {
				t.Errorf("CellCount(%v, %v) = %d, want %d", tt.size, tt.unit, got, tt.want)
			}
		})
	}
}

// TestFreeSpaceAtCenter covers a single avatar body at the arena center.
func TestFreeSpaceAtCenter(t *testing.T) {
	g := newActiveGrid(80, 4)

	own := &Body{X: 40, Y: 40, Radius: 0.6, Kind: KindTrail, Owner: "a1"}
	probe := &Body{X: 40, Y: 40, Radius: 0.6, Kind: KindAvatar, Owner: "a2"}

	if !g.Test(probe) {
		t.Fatal("expected free space before insert")
	}

	g.Insert(own)

	if g.Test(probe) {
		t.Error("expected occupied space after insert")
	}
	if hit := g.Query(probe); hit != own {
		t.Errorf("Query returned %v, want inserted body", hit)
	}
}

func TestQueryOverlap(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		want     bool
	}{
		{"half unit apart", 0.5, true},
		{"just under radii sum", 1.19, true},
		{"just past radii sum", 1.21, false},
		{"far apart", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newActiveGrid(80, 4)
			a := &Body{X: 20, Y: 20, Radius: 0.6, Kind: KindTrail, Owner: "a"}
			b := &Body{X: 20 + tt.distance, Y: 20, Radius: 0.6, Kind: KindAvatar, Owner: "b"}
			g.Insert(a)

			if got := g.Query(b) != nil; got != tt.want {
				t.Errorf("collision = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelfTrailExemption(t *testing.T) {
	tests := []struct {
		name      string
		storedSeq int
		probeSeq  int
		collide   bool
	}{
		{"same sequence", 10, 10, false},
		{"newer probe within latency", 10, 13, false},
		{"newer probe past latency", 10, 14, true},
		{"older probe within latency", 13, 10, false},
		{"older probe past latency", 14, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newActiveGrid(80, 4)
			stored := &Body{X: 10, Y: 10, Radius: 0.6, Kind: KindTrail, Owner: "a", Seq: tt.storedSeq, Latency: 3}
			probe := &Body{X: 10.1, Y: 10, Radius: 0.6, Kind: KindAvatar, Owner: "a", Seq: tt.probeSeq, Latency: 3}
			g.Insert(stored)

			if got := g.Query(probe) != nil; got != tt.collide {
				t.Errorf("collision = %v, want %v", got, tt.collide)
			}
		})
	}
}

func TestQueryNewestFirst(t *testing.T) {
	g := newActiveGrid(80, 4)
	older := &Body{X: 10, Y: 10, Radius: 0.6, Kind: KindTrail, Owner: "x", Seq: 1}
	newer := &Body{X: 10.2, Y: 10, Radius: 0.6, Kind: KindTrail, Owner: "x", Seq: 2}
	g.Insert(older)
	g.Insert(newer)

	probe := &Body{X: 10.1, Y: 10, Radius: 0.6, Kind: KindAvatar, Owner: "y"}
	if hit := g.Query(probe); hit != newer {
		t.Errorf("expected newest body first, got seq %d", hit.Seq)
	}
}

func TestRemove(t *testing.T) {
	g := newActiveGrid(80, 4)
	// Straddles four cells.
	b := &Body{X: 8, Y: 8, Radius: 0.6, Kind: KindBonus, Owner: "bonus-1"}
	g.Insert(b)

	if got := len(b.cells); got != 4 {
		t.Fatalf("expected body in 4 cells, got %d", got)
	}
	if g.Len() != 1 {
		t.Fatalf("Len = %d, want 1", g.Len())
	}

	if !g.Remove(b) {
		t.Fatal("Remove returned false")
	}
	if g.Remove(b) {
		t.Error("second Remove should be a no-op")
	}

	probe := &Body{X: 8, Y: 8, Radius: 0.6, Kind: KindAvatar, Owner: "a"}
	if hit := g.Query(probe); hit != nil {
		t.Error("removed body still found")
	}
	if g.Len() != 0 {
		t.Errorf("Len = %d, want 0", g.Len())
	}
	if s := g.Stats(); s.CellRefs != 0 {
		t.Errorf("expected no cell references, got %d", s.CellRefs)
	}
}

func TestInactiveGrid(t *testing.T) {
	g := NewGrid(80, 20)
	b := &Body{X: 40, Y: 40, Radius: 0.6}

	if id := g.Insert(b); id != 0 {
		t.Errorf("Insert on inactive grid returned %d", id)
	}

	g.Activate()
	g.Insert(b)
	g.Clear()

	if g.Active() {
		t.Error("Clear should deactivate the grid")
	}
	if b.Registered() {
		t.Error("Clear should drop registrations")
	}
	if g.Query(&Body{X: 40, Y: 40, Radius: 0.6}) != nil {
		t.Error("Query on inactive grid should find nothing")
	}
	if !g.Test(&Body{X: 40, Y: 40, Radius: 0.6}) {
		t.Error("cleared grid should be free")
	}
}

func TestOutOfBounds(t *testing.T) {
	tests := []struct {
		name  string
		y     float64
		cells int
	}{
		{"inside one row", 42, 1},
		{"across a row boundary", 40, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newActiveGrid(80, 4)

			edge := &Body{X: 0.2, Y: tt.y, Radius: 0.6}
			if g.Test(edge) {
				t.Error("probe crossing the border should not be free")
			}

			g.Insert(edge)
			if got := len(edge.cells); got != tt.cells {
				t.Errorf("expected %d in-range cells, got %d", tt.cells, got)
			}
		})
	}
}

func TestResizeDropsRegistrations(t *testing.T) {
	g := newActiveGrid(80, 4)
	b := &Body{X: 10, Y: 10, Radius: 0.6}
	g.Insert(b)

	g.Resize(100, 25)

	if b.Registered() {
		t.Error("Resize should drop registrations")
	}
	if count, cellSize := g.Dimensions(); count != 25 || cellSize != 4 {
		t.Errorf("Dimensions = (%d, %v), want (25, 4)", count, cellSize)
	}
}

func TestIsOld(t *testing.T) {
	b := &Body{BornAt: time.Second}
	if b.IsOld(2 * time.Second) {
		t.Error("body should not be old after 1s")
	}
	if !b.IsOld(3 * time.Second) {
		t.Error("body should be old after 2s")
	}
}

// TestQueryMatchesBruteForce checks the grid against a linear scan.
func TestQueryMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := newActiveGrid(80, 4)
	var all []*Body

	for i := 0; i < 500; i++ {
		b := &Body{X: rng.Float64() * 80, Y: rng.Float64() * 80, Radius: 0.6, Kind: KindTrail, Owner: "t"}
		g.Insert(b)
		all = append(all, b)
	}
	for _, b := range all[:100] {
		g.Remove(b)
	}
	live := all[100:]

	for i := 0; i < 1000; i++ {
		probe := &Body{X: 1 + rng.Float64()*78, Y: 1 + rng.Float64()*78, Radius: 0.6, Kind: KindAvatar, Owner: "p"}
		want := false
		for _, b := range live {
			if b.touches(probe) {
				want = true
				break
			}
		}
		if got := g.Query(probe) != nil; got != want {
			t.Fatalf("probe (%.2f, %.2f): grid=%v brute=%v", probe.X, probe.Y, got, want)
		}
	}
}
