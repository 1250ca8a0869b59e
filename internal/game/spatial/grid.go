// Package spatial provides the uniform collision grid used by the arena.
//
// Cells hold references to bodies they do not own. Each body keeps the
// indices of the cells it is registered in, so removal only touches the
// cells the body actually occupies.
package spatial

import (
	"math"
	"time"
)

// Kind classifies what a body stands for.
type Kind uint8

const (
	KindAvatar Kind = iota // live head of an avatar
	KindTrail              // printed trail point
	KindBonus              // bonus pickup
)

// String returns human-readable body kind
func (k Kind) String() string {
	switch k {
	case KindAvatar:
		return "avatar"
	case KindTrail:
		return "trail"
	case KindBonus:
		return "bonus"
	default:
		return "unknown"
	}
}

// OldAge is the age after which a trail body counts as old.
const OldAge = 2000 * time.Millisecond

// BodyID is the handle assigned to a body when it is inserted.
// Zero means "not registered".
type BodyID uint32

// Body is a positioned circle.
//
// Seq and Latency only matter for avatar and trail bodies: two such bodies
// with the same Owner never collide while their sequence numbers are within
// Latency of each other.
type Body struct {
	ID      BodyID
	X, Y    float64
	Radius  float64
	Kind    Kind
	Owner   string
	Seq     int
	Latency int
	BornAt  time.Duration

	cells []int // indices of the cells holding this body
}

// Matches reports whether b may collide with other once their circles overlap.
func (b *Body) Matches(other *Body) bool {
	if b.Owner == "" || b.Owner != other.Owner {
		return true
	}
	if b.Kind == KindBonus || other.Kind == KindBonus {
		return true
	}
	diff := other.Seq - b.Seq
	if diff < 0 {
		diff = -diff
	}
	return diff > b.Latency
}

// IsOld reports whether the body was born at least OldAge before now.
func (b *Body) IsOld(now time.Duration) bool {
	return now-b.BornAt >= OldAge
}

// Registered reports whether the body currently sits in at least one cell.
func (b *Body) Registered() bool {
	return len(b.cells) > 0
}

func (b *Body) touches(other *Body) bool {
	dx := b.X - other.X
	dy := b.Y - other.Y
	r := b.Radius + other.Radius
	return dx*dx+dy*dy < r*r
}

// Grid partitions a square arena into count×count cells.
//
// Memory layout: cells are stored in row-major order (cells[row*count+col]).
// Insert and Remove are ignored until Activate is called; Clear deactivates.
type Grid struct {
	size        float64
	count       int
	cellSize    float64
	invCellSize float64
	cells       [][]*Body
	active      bool
	nextID      BodyID
	bodies      int
}

// NewGrid creates an inactive grid of count×count cells over a square of side size.
func NewGrid(size float64, count int) *Grid {
	g := &Grid{}
	g.Resize(size, count)
	return g
}

// CellCount returns how many cells per side a grid of the given size needs
// so that each cell is roughly unit wide.
func CellCount(size, unit float64) int {
	if unit <= 0 {
		return 1
	}
	n := int(math.Round(size / unit))
	if n < 1 {
		n = 1
	}
	return n
}

// Resize rebuilds the cells. Every prior registration is dropped and the
// caller must re-insert the bodies it still wants tracked.
func (g *Grid) Resize(size float64, count int) {
	if count < 1 {
		count = 1
	}
	g.dropAll()
	g.size = size
	g.count = count
	g.cellSize = size / float64(count)
	g.invCellSize = 1.0 / g.cellSize
	g.cells = make([][]*Body, count*count)
	for i := range g.cells {
		g.cells[i] = make([]*Body, 0, 8)
	}
	g.bodies = 0
}

// Size returns the side of the arena covered by the grid.
func (g *Grid) Size() float64 {
	return g.size
}

// Activate allows inserts and queries.
func (g *Grid) Activate() {
	g.active = true
}

// Active reports whether the grid accepts inserts.
func (g *Grid) Active() bool {
	return g.active
}

// Clear deactivates the grid, empties every cell and resets the handle counter.
func (g *Grid) Clear() {
	g.active = false
	g.dropAll()
	g.nextID = 0
	g.bodies = 0
}

func (g *Grid) dropAll() {
	for i, cell := range g.cells {
		for _, b := range cell {
			b.cells = b.cells[:0]
		}
		g.cells[i] = cell[:0]
	}
}

// Len returns the number of registered bodies.
func (g *Grid) Len() int {
	return g.bodies
}

// cellIndex returns the cell containing (x, y), or false when the point
// lies outside the grid.
func (g *Grid) cellIndex(x, y float64) (int, bool) {
	if x < 0 || y < 0 {
		return 0, false
	}
	col := int(x * g.invCellSize)
	row := int(y * g.invCellSize)
	if col >= g.count || row >= g.count {
		return 0, false
	}
	return row*g.count + col, true
}

// corners returns the four bounding corners of a body in query order.
func corners(b *Body) [4][2]float64 {
	return [4][2]float64{
		{b.X - b.Radius, b.Y - b.Radius},
		{b.X + b.Radius, b.Y - b.Radius},
		{b.X - b.Radius, b.Y + b.Radius},
		{b.X + b.Radius, b.Y + b.Radius},
	}
}

// Insert registers the body in every distinct cell under its bounding corners
// and returns its handle. Returns 0 when the grid is inactive.
func (g *Grid) Insert(b *Body) BodyID {
	if !g.active {
		return 0
	}
	if b.Registered() {
		return b.ID
	}

	g.nextID++
	b.ID = g.nextID

	for _, c := range corners(b) {
		idx, ok := g.cellIndex(c[0], c[1])
		if !ok || containsIndex(b.cells, idx) {
			continue
		}
		g.cells[idx] = append(g.cells[idx], b)
		b.cells = append(b.cells, idx)
	}
	if len(b.cells) > 0 {
		g.bodies++
	}

	return b.ID
}

// Remove deregisters the body from every cell holding it. Idempotent.
func (g *Grid) Remove(b *Body) bool {
	if !g.active || !b.Registered() {
		return false
	}

	for _, idx := range b.cells {
		cell := g.cells[idx]
		for i := len(cell) - 1; i >= 0; i-- {
			if cell[i] == b {
				g.cells[idx] = append(cell[:i], cell[i+1:]...)
				break
			}
		}
	}
	b.cells = b.cells[:0]
	g.bodies--

	return true
}

// Query returns the first registered body colliding with probe, scanning the
// probe's corner cells in order and each cell newest first. Returns nil when
// nothing collides or the grid is inactive.
func (g *Grid) Query(probe *Body) *Body {
	if !g.active {
		return nil
	}
	for _, c := range corners(probe) {
		idx, ok := g.cellIndex(c[0], c[1])
		if !ok {
			continue
		}
		if hit := scan(g.cells[idx], probe); hit != nil {
			return hit
		}
	}
	return nil
}

// Test reports whether the space under probe is free. A corner outside the
// grid counts as occupied. Works on inactive grids too, so spawn points can
// be picked while the arena is being reset.
func (g *Grid) Test(probe *Body) bool {
	for _, c := range corners(probe) {
		idx, ok := g.cellIndex(c[0], c[1])
		if !ok {
			return false
		}
		if scan(g.cells[idx], probe) != nil {
			return false
		}
	}
	return true
}

// scan walks a cell newest first.
func scan(cell []*Body, probe *Body) *Body {
	for i := len(cell) - 1; i >= 0; i-- {
		other := cell[i]
		if other == probe {
			continue
		}
		if other.touches(probe) && other.Matches(probe) {
			return other
		}
	}
	return nil
}

// Each calls fn for every registered body once.
func (g *Grid) Each(fn func(b *Body)) {
	seen := make(map[*Body]struct{}, g.bodies)
	for _, cell := range g.cells {
		for _, b := range cell {
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			fn(b)
		}
	}
}

func containsIndex(list []int, idx int) bool {
	for _, v := range list {
		if v == idx {
			return true
		}
	}
	return false
}

// Stats returns grid statistics for debugging/profiling.
func (g *Grid) Stats() GridStats {
	var totalRefs, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		count := len(cell)
		totalRefs += count
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avgPerCell := 0.0
	if nonEmpty > 0 {
		avgPerCell = float64(totalRefs) / float64(nonEmpty)
	}

	return GridStats{
		TotalCells:     len(g.cells),
		CellSize:       g.cellSize,
		NonEmptyCells:  nonEmpty,
		Bodies:         g.bodies,
		CellRefs:       totalRefs,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avgPerCell,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int     `json:"totalCells"`
	CellSize       float64 `json:"cellSize"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	Bodies         int     `json:"bodies"`
	CellRefs       int     `json:"cellRefs"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}

// Dimensions returns the grid dimensions.
func (g *Grid) Dimensions() (count int, cellSize float64) {
	return g.count, g.cellSize
}
