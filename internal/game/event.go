package game

import "time"

// EventKind enum for match events
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventReady             // avatar signalled ready during lobby-wait
	EventRoundNew
	EventGameStart
	EventGameStop
	EventRoundEnd
	EventEnd // match over
	EventPosition
	EventAngle
	EventPoint
	EventProperty
	EventDie
	EventScore
	EventRoundScore
	EventBorderless
	EventBonusPop
	EventBonusClear
	EventBonusStack
	EventClear // trails wiped
	EventLeave // avatar removed from the match
)

// String returns the wire name of the event
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventRoundNew:
		return "round:new"
	case EventGameStart:
		return "game:start"
	case EventGameStop:
		return "game:stop"
	case EventRoundEnd:
		return "round:end"
	case EventEnd:
		return "end"
	case EventPosition:
		return "position"
	case EventAngle:
		return "angle"
	case EventPoint:
		return "point"
	case EventProperty:
		return "property"
	case EventDie:
		return "die"
	case EventScore:
		return "score"
	case EventRoundScore:
		return "score:round"
	case EventBorderless:
		return "borderless"
	case EventBonusPop:
		return "bonus:pop"
	case EventBonusClear:
		return "bonus:clear"
	case EventBonusStack:
		return "bonus:stack"
	case EventClear:
		return "clear"
	case EventLeave:
		return "game:leave"
	default:
		return "unknown"
	}
}

// Property names an observable avatar property.
type Property uint8

const (
	PropStamina Property = iota
	PropVelocity
	PropRadius
	PropInverse
	PropInvincible
	PropDirectionInLoop
	PropColor
	PropPrinting
)

// String returns the wire name of the property
func (p Property) String() string {
	switch p {
	case PropStamina:
		return "stamina"
	case PropVelocity:
		return "velocity"
	case PropRadius:
		return "radius"
	case PropInverse:
		return "inverse"
	case PropInvincible:
		return "invincible"
	case PropDirectionInLoop:
		return "directionInLoop"
	case PropColor:
		return "color"
	case PropPrinting:
		return "printing"
	default:
		return "unknown"
	}
}

// StackMethod tells whether a bonus joined or left a stack.
type StackMethod string

const (
	StackAdd    StackMethod = "add"
	StackRemove StackMethod = "remove"
)

// Event is a single match state change.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind
	Avatar string // subject avatar id

	X, Y  float64 // position, point, bonus:pop
	Angle float64

	Property Property
	Value    any // property value: float64, bool or string

	Killer    string // die: killer avatar id, empty for walls
	Old       bool   // die: killer body was old
	Score     int    // score, score:round
	Important bool   // point: must reach clients
	Flag      bool   // borderless state

	Bonus  BonusRef // bonus:pop, bonus:clear, bonus:stack
	Method StackMethod

	Winner string // round:end, end

	Size float64 // round:new arena side
}

// BonusRef identifies a bonus inside an event.
type BonusRef struct {
	ID       int
	Kind     BonusKind
	Duration time.Duration
}

// Observer receives match events on the match goroutine.
type Observer func(Event)
