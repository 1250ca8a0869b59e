package game

import (
	"math"
	"math/rand"
)

const (
	printDistance = 60.0 // longest printed dash
	holeDistance  = 5.0  // typical gap
)

// Printer alternates an avatar between printing and gaps so trails come out
// dashed. Lengths are measured in distance travelled.
type Printer struct {
	avatar   *Avatar
	rng      *rand.Rand
	active   bool
	distance float64
	lastX    float64
	lastY    float64
}

// NewPrinter creates an inactive printer for the avatar.
func NewPrinter(a *Avatar, rng *rand.Rand) *Printer {
	return &Printer{avatar: a, rng: rng}
}

// Active reports whether the printer is driving the avatar.
func (p *Printer) Active() bool {
	return p.active
}

// Start turns printing on and begins measuring.
func (p *Printer) Start() {
	if p.active || !p.avatar.Alive {
		return
	}
	p.active = true
	p.lastX, p.lastY = p.avatar.X, p.avatar.Y
	p.setPrinting(true)
}

// Stop turns printing off.
func (p *Printer) Stop() {
	if !p.active {
		return
	}
	p.active = false
	p.setPrinting(false)
	p.clear()
}

// Test consumes the distance moved since the last call and toggles
// printing once the current dash or gap is used up.
func (p *Printer) Test() {
	if !p.active {
		return
	}
	p.distance -= math.Hypot(p.avatar.X-p.lastX, p.avatar.Y-p.lastY)
	p.lastX, p.lastY = p.avatar.X, p.avatar.Y
	if p.distance <= 0 {
		p.setPrinting(!p.avatar.Printing)
	}
}

func (p *Printer) setPrinting(printing bool) {
	p.avatar.SetPrinting(printing)
	p.distance = p.randomDistance()
}

func (p *Printer) randomDistance() float64 {
	if p.avatar.Printing {
		return printDistance * (0.3 + p.rng.Float64()*0.7)
	}
	return holeDistance * (0.8 + p.rng.Float64()*0.5)
}

func (p *Printer) clear() {
	p.active = false
	p.distance = 0
	p.lastX, p.lastY = 0, 0
}
