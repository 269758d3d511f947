// Package scheduler serves flashcards from an ordered review queue and
// reinserts each rated card according to a reinsertion policy.
//
// A Scheduler exclusively owns one deck's snapshot for its lifetime. Reads
// (NextCard) persist best-effort in the background; ratings (RateCard) wait
// for the durable write and report its failure.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/conorfennell/knolqueue/internal/domain"
	"github.com/conorfennell/knolqueue/internal/knol"
	"github.com/conorfennell/knolqueue/internal/policy"
	"github.com/conorfennell/knolqueue/internal/reconcile"
	"github.com/conorfennell/knolqueue/internal/stats"
	"github.com/conorfennell/knolqueue/internal/storage"
)

// Scheduler serves one deck.
type Scheduler struct {
	name      string
	policy    policy.Policy
	threshold int
	recorder  stats.Recorder
	logger    *slog.Logger
	now       func() time.Time
	store     storage.Store

	cards []domain.Card
	index map[int]domain.Card

	mu   sync.Mutex
	snap *storage.Snapshot
	seq  uint64 // guarded by mu

	writeMu sync.Mutex
	written uint64 // guarded by writeMu
	pending sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithName sets the deck name used in logs and review events.
func WithName(name string) Option {
	return func(s *Scheduler) { s.name = name }
}

// WithPolicy replaces the default reinsertion policy.
func WithPolicy(p policy.Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithFreshThreshold sets how many reviewed cards may be served in a row
// before a never-reviewed card is promoted. Zero disables promotion.
func WithFreshThreshold(n int) Option {
	return func(s *Scheduler) { s.threshold = n }
}

// WithRecorder receives an event for every accepted rating.
func WithRecorder(r stats.Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

type selection struct {
	card  domain.Card
	state domain.CardState
}

// New loads the deck's snapshot from store and repairs its queue against
// cards. A repaired snapshot is written back before New returns.
func New(ctx context.Context, cards []domain.Card, store storage.Store, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		name:      "default",
		policy:    policy.Default(),
		threshold: DefaultFreshThreshold,
		recorder:  stats.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
		store:     store,
		cards:     cards,
		index:     make(map[int]domain.Card, len(cards)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("deck", s.name)
	for _, card := range cards {
		s.index[card.ID] = card
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.snap = snap

	report := reconcile.Queue(snap, cards)
	fingerprint := knol.Fingerprint(cards)
	if snap.DeckFingerprint != "" && snap.DeckFingerprint != fingerprint {
		s.logger.Warn("Deck content changed since the snapshot was written; positional ids may now refer to different cards")
	}

	dirty := report.Mutated || snap.Repaired() || snap.DeckFingerprint != fingerprint
	snap.DeckFingerprint = fingerprint
	if dirty {
		s.seq++
		if err := s.write(ctx, s.seq, snap.Clone()); err != nil {
			return nil, err
		}
	}

	s.logger.Info("scheduler ready",
		"cards", len(cards),
		"queue", len(snap.Queue),
		"stale_dropped", report.Stale,
		"duplicates_dropped", report.Duplicates,
		"appended", report.Appended,
		"repaired", snap.Repaired(),
	)
	return s, nil
}

// Name returns the deck name.
func (s *Scheduler) Name() string {
	return s.name
}

// NextCard returns the card at the head of the queue, or a nil card when the
// queue is empty. Selection updates freshness bookkeeping, which is saved in
// the background; a failed save is only logged.
func (s *Scheduler) NextCard() Projection {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.selectNextLocked()
	resp := s.projectLocked(sel, nil)
	if sel != nil {
		s.persistSoonLocked()
	}
	return resp
}

// RateCard applies rating to card id, reinserts it into the queue and waits
// for the snapshot to be saved. Errors: ErrInvalidRating, ErrCardNotFound,
// or a *storage.StoreError when the save fails.
func (s *Scheduler) RateCard(ctx context.Context, id int, rating string) (Projection, error) {
	r, err := domain.ParseRating(rating)
	if err != nil {
		return Projection{}, err
	}
	if _, ok := s.index[id]; !ok {
		return Projection{}, fmt.Errorf("%w: %d", ErrCardNotFound, id)
	}

	s.mu.Lock()
	// The policy reads the history as it was before this rating.
	state := s.stateLocked(id).Clone()
	s.snap.Queue = removeID(s.snap.Queue, id)
	insertIndex := s.policy.Offset(r, len(s.snap.Queue), state.Reviews)
	s.snap.Queue = slices.Insert(s.snap.Queue, insertIndex, id)

	state.Reviews = s.policy.Record(r, state.Reviews)
	s.snap.Cards[strconv.Itoa(id)] = state
	now := s.now()
	s.snap.UpdatedAt = &now

	next := s.selectNextLocked()
	resp := s.projectLocked(next, &Rated{
		ID:            id,
		Rating:        r,
		State:         state.Clone(),
		QueueIndex:    insertIndex,
		QueuePosition: insertIndex + 1,
	})
	s.seq++
	seq, snap := s.seq, s.snap.Clone()
	s.mu.Unlock()

	if err := s.write(ctx, seq, snap); err != nil {
		s.logger.Error("Failed to save scheduler state after rating", "card_id", id, "error", err)
		return Projection{}, err
	}

	ev := domain.ReviewEvent{Deck: s.name, CardID: id, Rating: r, QueueIndex: insertIndex, At: now}
	if err := s.recorder.Record(ctx, ev); err != nil {
		s.logger.Warn("Failed to record rating", "card_id", id, "error", err)
	}
	return resp, nil
}

// Close waits for background saves to finish or ctx to end.
func (s *Scheduler) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queue returns a copy of the current queue, head first.
func (s *Scheduler) Queue() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.snap.Queue)
}

// State returns a copy of a card's review state.
func (s *Scheduler) State(id int) domain.CardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(id).Clone()
}

func (s *Scheduler) stateLocked(id int) domain.CardState {
	if state, ok := s.snap.Cards[strconv.Itoa(id)]; ok {
		return state
	}
	return domain.CardState{Reviews: []domain.Rating{}}
}

func (s *Scheduler) selectNextLocked() *selection {
	s.promoteFreshLocked()
	if len(s.snap.Queue) == 0 {
		return nil
	}
	card, ok := s.index[s.snap.Queue[0]]
	if !ok {
		return nil
	}
	return &selection{card: card, state: s.stateLocked(card.ID)}
}

// persistSoonLocked saves a copy of the snapshot without blocking the caller.
func (s *Scheduler) persistSoonLocked() {
	s.seq++
	seq, snap := s.seq, s.snap.Clone()
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.write(context.Background(), seq, snap); err != nil {
			s.logger.Error("Failed to save scheduler state", "error", err)
		}
	}()
}

// write saves snap unless a newer snapshot has already been written, so a
// slow background save can never overwrite a later rating.
func (s *Scheduler) write(ctx context.Context, seq uint64, snap *storage.Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if seq <= s.written {
		return nil
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return err
	}
	s.written = seq
	return nil
}

func removeID(queue []int, id int) []int {
	if i := slices.Index(queue, id); i >= 0 {
		return slices.Delete(queue, i, i+1)
	}
	return queue
}
