package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/conorfennell/knolqueue/internal/domain"
)

// SchemaVersion is written into every new snapshot.
const SchemaVersion = 2

// Store loads and persists a whole scheduler snapshot.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Snapshot is the complete persisted scheduler state of one deck.
type Snapshot struct {
	Version         int                         `json:"version"`
	UpdatedAt       *time.Time                  `json:"updatedAt"`
	Cards           map[string]domain.CardState `json:"cards"`
	Queue           []int                       `json:"queue"`
	SinceFresh      int                         `json:"sinceFresh"`
	DeckFingerprint string                      `json:"deckFingerprint,omitempty"`

	repaired bool
}

// NewSnapshot returns the first-run snapshot: no history, empty queue.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version: SchemaVersion,
		Cards:   make(map[string]domain.CardState),
		Queue:   []int{},
	}
}

// Repaired reports whether decoding dropped or rewrote stored data.
func (s *Snapshot) Repaired() bool {
	return s.repaired
}

// Clone returns a deep copy that can be serialized while s keeps changing.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	if s.UpdatedAt != nil {
		t := *s.UpdatedAt
		out.UpdatedAt = &t
	}
	out.Cards = make(map[string]domain.CardState, len(s.Cards))
	for k, v := range s.Cards {
		out.Cards[k] = v.Clone()
	}
	out.Queue = append([]int{}, s.Queue...)
	return &out
}

// Encode serializes the snapshot as indented JSON.
func Encode(s *Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
