package domain

import (
	"encoding"
	"errors"
	"fmt"
	"strings"
)

// Rating is the difficulty feedback supplied when reviewing a card.
type Rating string

const (
	Trivial Rating = "trivial"
	Easy    Rating = "easy"
	Normal  Rating = "normal"
	Hard    Rating = "hard"
)

// ErrInvalidRating is returned for tokens that are not a known rating
// after alias resolution.
var ErrInvalidRating = errors.New("knolqueue: unsupported rating option")

var ratingAliases = map[string]Rating{
	"medium": Normal,
}

// Ratings lists every valid rating, easiest first.
var Ratings = []Rating{Trivial, Easy, Normal, Hard}

var (
	_ fmt.Stringer             = Rating("")
	_ encoding.TextUnmarshaler = (*Rating)(nil)
)

// ParseRating lower-cases s, resolves aliases and validates the result.
func ParseRating(s string) (Rating, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := ratingAliases[token]; ok {
		return alias, nil
	}
	r := Rating(token)
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
	return r, nil
}

// IsValid reports whether r is one of the four rating tokens.
func (r Rating) IsValid() bool {
	switch r {
	case Trivial, Easy, Normal, Hard:
		return true
	}
	return false
}

func (r Rating) String() string {
	return string(r)
}

// UnmarshalText implements encoding.TextUnmarshaler and accepts aliases.
func (r *Rating) UnmarshalText(text []byte) error {
	v, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
