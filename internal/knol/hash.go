package knol

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/conorfennell/knolqueue/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	// Joined with a newline so "question" and "answer" can never collapse
	// into "questionanswer".
	return strings.Join([]string{normalizePart(card.Question), normalizePart(card.Answer)}, "\n")
}

// Hash takes a card, normalizes it, and returns its SHA-256 hash as a hex string.
func Hash(card domain.Card) string {
	hashBytes := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", hashBytes)
}

// Fingerprint hashes the whole deck in order. Two decks share a fingerprint
// only when every positional id refers to the same normalized content.
func Fingerprint(cards []domain.Card) string {
	h := sha256.New()
	for _, card := range cards {
		h.Write([]byte(strconv.Itoa(card.ID)))
		h.Write([]byte{0})
		h.Write([]byte(Hash(card)))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
