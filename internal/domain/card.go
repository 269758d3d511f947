package domain

import "time"

// Card represents a single question-answer entry of a deck.
// ID is the 1-based position of the card in its deck source.
type Card struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CardState holds the review history of a card, oldest first.
type CardState struct {
	Reviews []Rating `json:"reviews"`
}

// Clone returns a copy of the state that shares no memory with s.
func (s CardState) Clone() CardState {
	reviews := make([]Rating, len(s.Reviews))
	copy(reviews, s.Reviews)
	return CardState{Reviews: reviews}
}

// Fresh reports whether the card has never been reviewed.
func (s CardState) Fresh() bool {
	return len(s.Reviews) == 0
}

// Count returns how many times r appears in the history.
func (s CardState) Count(r Rating) int {
	return CountRating(s.Reviews, r)
}

// CountRating returns how many times r appears in history.
func CountRating(history []Rating, r Rating) int {
	n := 0
	for _, h := range history {
		if h == r {
			n++
		}
	}
	return n
}

// ReviewEvent records a single successful rating of a card.
type ReviewEvent struct {
	Deck       string
	CardID     int
	Rating     Rating
	QueueIndex int
	At         time.Time
}
