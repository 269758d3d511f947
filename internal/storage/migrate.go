package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/knolqueue/internal/domain"
)

// legacyReviewLimit bounds how many synthetic reviews a legacy record
// expands into, whatever its stored counter says.
const legacyReviewLimit = 100

// maxQueueID rejects queue entries too large to ever be a deck position.
const maxQueueID = 1 << 31

var errNotObject = errors.New("snapshot is not a JSON object")

type rawSnapshot struct {
	Version         json.RawMessage `json:"version"`
	UpdatedAt       json.RawMessage `json:"updatedAt"`
	Cards           json.RawMessage `json:"cards"`
	Queue           json.RawMessage `json:"queue"`
	SinceFresh      json.RawMessage `json:"sinceFresh"`
	DeckFingerprint json.RawMessage `json:"deckFingerprint"`
}

// Decode parses a stored snapshot of any schema version into the current
// shape. Malformed fields are repaired to defaults instead of failing; only
// a document that is not a JSON object is an error.
func Decode(raw []byte) (*Snapshot, error) {
	if isNull(raw) {
		return nil, errNotObject
	}
	var r rawSnapshot
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}

	s := NewSnapshot()
	var fixed bool

	s.Version, fixed = decodeVersion(r.Version)
	s.repaired = s.repaired || fixed

	s.UpdatedAt, fixed = decodeTime(r.UpdatedAt)
	s.repaired = s.repaired || fixed

	s.Cards, fixed = decodeCards(r.Cards)
	s.repaired = s.repaired || fixed

	s.Queue, fixed = decodeQueue(r.Queue)
	s.repaired = s.repaired || fixed

	s.SinceFresh, fixed = decodeSinceFresh(r.SinceFresh)
	s.repaired = s.repaired || fixed

	if !isNull(r.DeckFingerprint) {
		if err := json.Unmarshal(r.DeckFingerprint, &s.DeckFingerprint); err != nil {
			s.DeckFingerprint = ""
			s.repaired = true
		}
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeVersion(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return SchemaVersion, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f != math.Trunc(f) {
		return SchemaVersion, true
	}
	return int(f), false
}

func decodeTime(raw json.RawMessage) (*time.Time, bool) {
	if isNull(raw) {
		return nil, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, true
	}
	return &t, false
}

func decodeSinceFresh(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f < 0 || f != math.Trunc(f) || f > maxQueueID {
		return 0, true
	}
	return int(f), false
}

func decodeCards(raw json.RawMessage) (map[string]domain.CardState, bool) {
	cards := make(map[string]domain.CardState)
	if isNull(raw) {
		return cards, false
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return cards, true
	}
	repaired := false
	for key, entry := range entries {
		state, fixed := MigrateCardState(entry)
		cards[key] = state
		repaired = repaired || fixed
	}
	return cards, repaired
}

// MigrateCardState normalizes one stored card record. Current records keep
// their valid review tokens, legacy {lastRating, reviewCount} records expand
// into a synthetic history, anything else becomes a never-reviewed card.
// The flag reports whether the stored form had to change.
func MigrateCardState(raw json.RawMessage) (domain.CardState, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return domain.CardState{Reviews: []domain.Rating{}}, true
	}

	if reviews, ok := obj["reviews"]; ok && !isNull(reviews) {
		var items []json.RawMessage
		if err := json.Unmarshal(reviews, &items); err == nil {
			return sanitizeReviews(items)
		}
	}

	return upgradeLegacy(obj), true
}

func sanitizeReviews(items []json.RawMessage) (domain.CardState, bool) {
	out := make([]domain.Rating, 0, len(items))
	changed := false
	for _, item := range items {
		var token string
		if err := json.Unmarshal(item, &token); err != nil {
			changed = true
			continue
		}
		r, err := domain.ParseRating(token)
		if err != nil {
			changed = true
			continue
		}
		if string(r) != token {
			changed = true
		}
		out = append(out, r)
	}
	return domain.CardState{Reviews: out}, changed
}

func upgradeLegacy(obj map[string]json.RawMessage) domain.CardState {
	var token string
	if err := json.Unmarshal(obj["lastRating"], &token); err != nil {
		return domain.CardState{Reviews: []domain.Rating{}}
	}
	r, err := domain.ParseRating(token)
	if err != nil {
		return domain.CardState{Reviews: []domain.Rating{}}
	}

	n := 1
	if count, ok := number(obj["reviewCount"]); ok && count >= 1 {
		n = int(math.Min(math.Trunc(count), legacyReviewLimit))
	}
	reviews := make([]domain.Rating, n)
	for i := range reviews {
		reviews[i] = r
	}
	return domain.CardState{Reviews: reviews}
}

func decodeQueue(raw json.RawMessage) ([]int, bool) {
	queue := []int{}
	if isNull(raw) {
		return queue, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return queue, true
	}
	repaired := false
	for _, item := range items {
		f, ok := number(item)
		if !ok || math.Abs(f) > maxQueueID {
			repaired = true
			continue
		}
		if f != math.Trunc(f) || bytes.HasPrefix(bytes.TrimSpace(item), []byte(`"`)) {
			repaired = true
		}
		queue = append(queue, int(math.Trunc(f)))
	}
	return queue, repaired
}

// number accepts JSON numbers and numeric strings.
func number(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
