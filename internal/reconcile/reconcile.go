// Package reconcile repairs a stored review queue against the authoritative
// deck.
package reconcile

import (
	"github.com/conorfennell/knolqueue/internal/domain"
	"github.com/conorfennell/knolqueue/internal/storage"
)

// Report summarizes what Queue changed.
type Report struct {
	Stale      int // ids no longer in the deck
	Duplicates int
	Appended   int // deck ids missing from the queue
	Mutated    bool
}

// Queue rewrites snap.Queue so it holds every deck id exactly once. Existing
// entries keep their relative order (first occurrence wins) and missing ids
// are appended in deck order. Running it twice in a row is a no-op.
func Queue(snap *storage.Snapshot, cards []domain.Card) Report {
	var report Report

	valid := make(map[int]struct{}, len(cards))
	for _, card := range cards {
		valid[card.ID] = struct{}{}
	}

	seen := make(map[int]struct{}, len(cards))
	queue := make([]int, 0, len(cards))
	for _, id := range snap.Queue {
		if _, ok := valid[id]; !ok {
			report.Stale++
			continue
		}
		if _, dup := seen[id]; dup {
			report.Duplicates++
			continue
		}
		seen[id] = struct{}{}
		queue = append(queue, id)
	}

	for _, card := range cards {
		if _, ok := seen[card.ID]; ok {
			continue
		}
		queue = append(queue, card.ID)
		seen[card.ID] = struct{}{}
		report.Appended++
	}

	report.Mutated = report.Stale > 0 || report.Duplicates > 0 || report.Appended > 0
	snap.Queue = queue
	return report
}
