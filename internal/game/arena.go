package game

import (
	"math"
	"math/rand"

	"trail-arena/internal/game/spatial"
)

// ArenaSize returns the arena side for n players.
func ArenaSize(players int, perPlayer float64) float64 {
	if players < 1 {
		players = 1
	}
	square := perPlayer * perPlayer
	return math.Round(math.Sqrt(square + float64(players-1)*square/5))
}

// Arena is the square playfield and its trail grid.
type Arena struct {
	size    float64
	unit    float64
	grid    *spatial.Grid
	spawns  *spatial.Grid // heads placed since the last ResetSpawns
	rng     *rand.Rand
	retries int
}

// NewArena creates an inactive arena of the given side.
func NewArena(size, unit float64, rng *rand.Rand, retries int) *Arena {
	if retries < 1 {
		retries = 1
	}
	count := spatial.CellCount(size, unit)
	return &Arena{
		size:    size,
		unit:    unit,
		grid:    spatial.NewGrid(size, count),
		spawns:  spatial.NewGrid(size, count),
		rng:     rng,
		retries: retries,
	}
}

// Size returns the arena side.
func (a *Arena) Size() float64 {
	return a.size
}

// Grid returns the trail grid.
func (a *Arena) Grid() *spatial.Grid {
	return a.grid
}

// Resize rebuilds the grids for a new side; every trail body and spawn
// reservation is dropped.
func (a *Arena) Resize(size float64) {
	count := spatial.CellCount(size, a.unit)
	a.size = size
	a.grid.Resize(size, count)
	a.spawns.Resize(size, count)
}

// ResetSpawns forgets the heads placed for the previous round.
func (a *Arena) ResetSpawns() {
	a.spawns.Clear()
	a.spawns.Activate()
}

func (a *Arena) randomPoint(margin float64) float64 {
	return margin + a.rng.Float64()*(a.size-2*margin)
}

// RandomPosition picks a point at least radius+border*size away from every
// wall, clear of trails and of the heads already placed since ResetSpawns.
// The point is reserved for owner. After the retry budget it returns the
// last candidate anyway.
func (a *Arena) RandomPosition(owner string, radius, border float64) (float64, float64) {
	if !a.spawns.Active() {
		a.spawns.Activate()
	}
	x, y, _ := a.FreePosition(radius, border, a.retries, a.grid, a.spawns)
	a.spawns.Insert(&spatial.Body{X: x, Y: y, Radius: radius, Kind: spatial.KindAvatar, Owner: owner})
	return x, y
}

// FreePosition draws up to retries candidates and returns the first one free
// on every grid; ok is false when none was.
func (a *Arena) FreePosition(radius, border float64, retries int, grids ...*spatial.Grid) (x, y float64, ok bool) {
	margin := radius + border*a.size
	probe := &spatial.Body{Radius: margin}

	for i := 0; i < max(retries, 1); i++ {
		probe.X = a.randomPoint(margin)
		probe.Y = a.randomPoint(margin)
		free := true
		for _, g := range grids {
			if !g.Test(probe) {
				free = false
				break
			}
		}
		if free {
			return probe.X, probe.Y, true
		}
	}
	return probe.X, probe.Y, false
}

// RandomDirection picks an angle that leaves at least tolerance*size of room
// before the walls on either side of the heading's quadrant.
func (a *Arena) RandomDirection(x, y, tolerance float64) float64 {
	margin := tolerance * a.size
	angle := a.randomAngle()
	for i := 0; i < a.retries && !a.directionValid(angle, x, y, margin); i++ {
		angle = a.randomAngle()
	}
	return angle
}

func (a *Arena) randomAngle() float64 {
	return a.rng.Float64() * 2 * math.Pi
}

func (a *Arena) directionValid(angle, x, y, margin float64) bool {
	quarter := math.Pi / 2
	for i := 0; i < 4; i++ {
		from := quarter * float64(i)
		to := quarter * float64(i+1)
		if angle < from || angle >= to {
			continue
		}
		if hypotenuse(angle-from, a.distanceToBorder(i, x, y)) < margin {
			return false
		}
		if hypotenuse(to-angle, a.distanceToBorder((i+1)%4, x, y)) < margin {
			return false
		}
		return true
	}
	return false
}

func hypotenuse(angle, adjacent float64) float64 {
	return adjacent / math.Cos(angle)
}

// distanceToBorder: 0 right, 1 bottom, 2 left, 3 top.
func (a *Arena) distanceToBorder(border int, x, y float64) float64 {
	switch border {
	case 0:
		return a.size - x
	case 1:
		return a.size - y
	case 2:
		return x
	default:
		return y
	}
}

// BoundIntersect returns the wall point hit by a circle of radius margin
// centered on (x, y), if any.
func (a *Arena) BoundIntersect(x, y, margin float64) (float64, float64, bool) {
	switch {
	case x-margin < 0:
		return 0, y, true
	case x+margin > a.size:
		return a.size, y, true
	case y-margin < 0:
		return x, 0, true
	case y+margin > a.size:
		return x, a.size, true
	}
	return x, y, false
}

// Opposite maps a wall point to the matching point on the opposite wall.
func (a *Arena) Opposite(x, y float64) (float64, float64) {
	switch {
	case x == 0:
		return a.size, y
	case x == a.size:
		return 0, y
	case y == 0:
		return x, a.size
	case y == a.size:
		return x, 0
	}
	return x, y
}
