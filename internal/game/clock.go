package game

import (
	"container/heap"
	"time"
)

// Timer is a cancellable callback owned by a Scheduler.
type Timer struct {
	at      time.Duration
	seq     uint64
	fn      func()
	stopped bool
	index   int
}

// Stop cancels the timer. Returns false if it already fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped || t.index < 0 {
		return false
	}
	t.stopped = true
	return true
}

// Scheduler runs callbacks on simulation time.
//
// It is advanced by the goroutine that owns the match; nothing here is safe
// for concurrent use. Timers due at the same instant fire in creation order.
type Scheduler struct {
	now    time.Duration
	seq    uint64
	timers timerHeap
}

// NewScheduler creates a scheduler at time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the current simulation time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// After schedules fn to run once d has elapsed.
func (s *Scheduler) After(d time.Duration, fn func()) *Timer {
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &Timer{at: s.now + d, seq: s.seq, fn: fn}
	heap.Push(&s.timers, t)
	return t
}

// AdvanceTo moves the clock forward, firing every timer due on the way.
// Callbacks observe Now() equal to their own deadline.
func (s *Scheduler) AdvanceTo(now time.Duration) {
	for len(s.timers) > 0 {
		next := s.timers[0]
		if next.at > now {
			break
		}
		heap.Pop(&s.timers)
		if next.stopped {
			continue
		}
		if next.at > s.now {
			s.now = next.at
		}
		next.fn()
	}
	if now > s.now {
		s.now = now
	}
}

// StopAll cancels every pending timer.
func (s *Scheduler) StopAll() {
	for _, t := range s.timers {
		t.stopped = true
		t.index = -1
	}
	s.timers = s.timers[:0]
}

// Pending returns the number of live timers.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].at == h[j].at {
		return h[i].seq < h[j].seq
	}
	return h[i].at < h[j].at
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
