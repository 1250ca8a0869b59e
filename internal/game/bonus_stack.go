package game

// BonusStack is the set of bonuses currently affecting one target.
//
// Effective properties are always rebuilt as defaults plus the sum of every
// active bonus, never patched incrementally.
type BonusStack struct {
	owner   string // avatar id; empty for the match-level stack
	bonuses []*Bonus
	apply   func(Effects)
	emit    func(Event)
}

// NewBonusStack creates an empty stack. apply receives the summed effects
// after every change.
func NewBonusStack(owner string, apply func(Effects), emit func(Event)) *BonusStack {
	if emit == nil {
		emit = func(Event) {}
	}
	return &BonusStack{owner: owner, apply: apply, emit: emit}
}

// Len returns the number of active bonuses.
func (s *BonusStack) Len() int {
	return len(s.bonuses)
}

// Has reports whether the bonus is active in this stack.
func (s *BonusStack) Has(b *Bonus) bool {
	return s.indexOf(b) >= 0
}

func (s *BonusStack) indexOf(b *Bonus) int {
	for i, other := range s.bonuses {
		if other == b {
			return i
		}
	}
	return -1
}

// Add activates a bonus.
func (s *BonusStack) Add(b *Bonus) {
	if s.Has(b) {
		return
	}
	s.bonuses = append(s.bonuses, b)
	s.notify(StackAdd, b)
	s.resolve()
}

// Remove deactivates a bonus. Returns false if it was not active.
func (s *BonusStack) Remove(b *Bonus) bool {
	i := s.indexOf(b)
	if i < 0 {
		return false
	}
	s.bonuses = append(s.bonuses[:i], s.bonuses[i+1:]...)
	s.notify(StackRemove, b)
	s.resolve()
	return true
}

// Clear deactivates every bonus.
func (s *BonusStack) Clear() {
	if len(s.bonuses) == 0 {
		return
	}
	removed := s.bonuses
	s.bonuses = nil
	for _, b := range removed {
		s.notify(StackRemove, b)
	}
	s.resolve()
}

// reset drops every bonus without applying or notifying.
func (s *BonusStack) reset() {
	s.bonuses = nil
}

// Sum adds up the effects of every active bonus.
func (s *BonusStack) Sum() Effects {
	var sum Effects
	for _, b := range s.bonuses {
		sum = sum.plus(b.Effects)
	}
	return sum
}

func (s *BonusStack) resolve() {
	if s.apply != nil {
		s.apply(s.Sum())
	}
}

func (s *BonusStack) notify(method StackMethod, b *Bonus) {
	if s.owner == "" {
		return
	}
	s.emit(Event{Kind: EventBonusStack, Avatar: s.owner, Method: method, Bonus: b.Ref()})
}
