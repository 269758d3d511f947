package scheduler

import "github.com/conorfennell/knolqueue/internal/domain"

// DefaultFreshThreshold is how many consecutive reviewed cards may be served
// before a never-reviewed card is pulled to the front of the queue.
const DefaultFreshThreshold = 7

// promoteFreshLocked moves the first never-reviewed card to the head of the
// queue once sinceFresh reaches the threshold. Other cards keep their order.
func (s *Scheduler) promoteFreshLocked() {
	queue := s.snap.Queue
	if s.threshold <= 0 || len(queue) == 0 || s.snap.SinceFresh < s.threshold {
		return
	}
	for i, id := range queue {
		if !s.stateLocked(id).Fresh() {
			continue
		}
		if i == 0 {
			return
		}
		copy(queue[1:i+1], queue[:i])
		queue[0] = id
		return
	}
}

// trackFreshLocked updates sinceFresh after a card has been selected.
func (s *Scheduler) trackFreshLocked(selected domain.CardState) {
	if s.snap.SinceFresh < 0 {
		s.snap.SinceFresh = 0
	}
	if selected.Fresh() {
		s.snap.SinceFresh = 0
		return
	}
	s.snap.SinceFresh++
}
