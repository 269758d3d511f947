package scheduler

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/conorfennell/knolqueue/internal/domain"
)

// Sentinel errors. Use errors.Is to classify: ErrInvalidRating and
// ErrInvalidCardID are caller mistakes, ErrCardNotFound means the deck has no
// such card. Persistence failures are *storage.StoreError.
var (
	ErrInvalidRating = domain.ErrInvalidRating
	ErrInvalidCardID = errors.New("knolqueue: invalid card identifier")
	ErrCardNotFound  = errors.New("knolqueue: card not found")
)

// IsValidation reports whether err was caused by malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRating) || errors.Is(err, ErrInvalidCardID)
}

// ParseCardID converts a path segment into a card id. Non-numeric input is
// invalid; a finite number that is not a whole positive position can never
// name a card and is reported as not found.
func ParseCardID(s string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidCardID
	}
	if f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return 0, ErrCardNotFound
	}
	return int(f), nil
}
