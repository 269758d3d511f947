package scheduler

import (
	"time"

	"github.com/conorfennell/knolqueue/internal/domain"
)

// completedEasyCount is the number of easy ratings after which a card
// counts as completed even without a trivial rating.
const completedEasyCount = 4

// Projection is the externally visible result of a scheduler operation.
type Projection struct {
	Card        *CardView `json:"card"`
	Meta        Meta      `json:"meta"`
	GeneratedAt time.Time `json:"generatedAt"`
	Rated       *Rated    `json:"rated,omitempty"`
}

// CardView is a card together with a copy of its review state.
type CardView struct {
	ID       int              `json:"id"`
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	State    domain.CardState `json:"state"`
}

// Meta holds aggregate counts over the deck and its review history.
type Meta struct {
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
	Reviewed  int `json:"reviewed"`
	Seen      int `json:"seen"`
	Completed int `json:"completed"`
}

// Rated describes the outcome of a rating.
type Rated struct {
	ID            int              `json:"id"`
	Rating        domain.Rating    `json:"rating"`
	State         domain.CardState `json:"state"`
	QueueIndex    int              `json:"queueIndex"`
	QueuePosition int              `json:"queuePosition"`
}

func (s *Scheduler) metaLocked() Meta {
	m := Meta{
		Total:     len(s.cards),
		Remaining: len(s.snap.Queue),
	}
	for _, state := range s.snap.Cards {
		m.Reviewed += len(state.Reviews)
		if !state.Fresh() {
			m.Seen++
		}
		if state.Count(domain.Trivial) > 0 || state.Count(domain.Easy) > completedEasyCount {
			m.Completed++
		}
	}
	return m
}

func (s *Scheduler) viewLocked(sel *selection) *CardView {
	if sel == nil {
		return nil
	}
	return &CardView{
		ID:       sel.card.ID,
		Question: sel.card.Question,
		Answer:   sel.card.Answer,
		State:    s.stateLocked(sel.card.ID).Clone(),
	}
}

func (s *Scheduler) projectLocked(sel *selection, rated *Rated) Projection {
	if sel != nil {
		s.trackFreshLocked(sel.state)
	}
	return Projection{
		Card:        s.viewLocked(sel),
		Meta:        s.metaLocked(),
		GeneratedAt: s.now(),
		Rated:       rated,
	}
}
