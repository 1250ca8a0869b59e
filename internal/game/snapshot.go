package game

import (
	"time"

	"trail-arena/internal/game/spatial"
)

// AvatarState is a value copy of an avatar.
type AvatarState struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Color      string  `json:"color"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Angle      float64 `json:"angle"`
	Radius     float64 `json:"radius"`
	Velocity   float64 `json:"velocity"`
	Stamina    float64 `json:"stamina"`
	Score      int     `json:"score"`
	RoundScore int     `json:"roundScore"`
	Alive      bool    `json:"alive"`
	Present    bool    `json:"present"`
	Ready      bool    `json:"ready"`
	Printing   bool    `json:"printing"`
}

// BonusState is a value copy of a bonus lying on the arena.
type BonusState struct {
	ID     int     `json:"id"`
	Kind   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// TrailState is a value copy of one trail body.
type TrailState struct {
	Owner  string  `json:"owner"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// Snapshot is a point-in-time copy of a match, safe to hand to other goroutines.
type Snapshot struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	State      string            `json:"state"`
	Size       float64           `json:"size"`
	MaxScore   int               `json:"maxScore"`
	Borderless bool              `json:"borderless"`
	Frame      uint64            `json:"frame"`
	Time       time.Duration     `json:"time"`
	Avatars    []AvatarState     `json:"avatars"`
	Bonuses    []BonusState      `json:"bonuses"`
	Trails     []TrailState      `json:"-"`
	Grid       spatial.GridStats `json:"grid"`
}

// Snapshot copies the match state. Trails are included only when withTrails is set.
func (m *Match) Snapshot(withTrails bool) Snapshot {
	s := Snapshot{
		ID:         m.id,
		Name:       m.settings.Name,
		State:      m.state.String(),
		Size:       m.arena.Size(),
		MaxScore:   m.maxScore,
		Borderless: m.borderless,
		Frame:      m.frame,
		Time:       m.sched.Now(),
		Avatars:    make([]AvatarState, 0, len(m.avatars)),
		Bonuses:    make([]BonusState, 0, len(m.bonuses.bonuses)),
		Grid:       m.arena.grid.Stats(),
	}

	for _, a := range m.avatars {
		s.Avatars = append(s.Avatars, AvatarState{
			ID: a.ID, Name: a.Name, Color: a.Color,
			X: a.X, Y: a.Y, Angle: a.Angle, Radius: a.Radius,
			Velocity: a.Velocity, Stamina: a.Stamina,
			Score: a.Score, RoundScore: a.RoundScore,
			Alive: a.Alive, Present: a.Present, Ready: a.Ready, Printing: a.Printing,
		})
	}
	for _, b := range m.bonuses.bonuses {
		s.Bonuses = append(s.Bonuses, BonusState{
			ID: b.ID, Kind: b.Kind.String(), X: b.X, Y: b.Y, Radius: b.Radius,
		})
	}
	if withTrails {
		m.arena.grid.Each(func(b *spatial.Body) {
			s.Trails = append(s.Trails, TrailState{Owner: b.Owner, X: b.X, Y: b.Y, Radius: b.Radius})
		})
	}
	return s
}
