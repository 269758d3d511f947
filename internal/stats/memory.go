package stats

import (
	"context"
	"sync"

	"github.com/conorfennell/knolqueue/internal/domain"
)

// Counters holds rating totals.
type Counters map[domain.Rating]int64

// MemoryRecorder counts ratings in process. Useful for tests and
// single-instance deployments; counters reset on restart.
type MemoryRecorder struct {
	mu     sync.Mutex
	total  Counters
	byCard map[int]Counters
	events int64
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		total:  make(Counters),
		byCard: make(map[int]Counters),
	}
}

func (m *MemoryRecorder) Record(_ context.Context, ev domain.ReviewEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events++
	m.total[ev.Rating]++
	c := m.byCard[ev.CardID]
	if c == nil {
		c = make(Counters)
		m.byCard[ev.CardID] = c
	}
	c[ev.Rating]++
	return nil
}

// Events returns how many ratings were recorded.
func (m *MemoryRecorder) Events() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// Total returns a copy of the per-rating totals.
func (m *MemoryRecorder) Total() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCounters(m.total)
}

// ByCard returns a copy of the per-rating totals of one card.
func (m *MemoryRecorder) ByCard(id int) Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCounters(m.byCard[id])
}

func copyCounters(c Counters) Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
