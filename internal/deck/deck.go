// Package deck loads the ordered list of cards a scheduler serves.
package deck

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/knolqueue/internal/domain"
	"github.com/conorfennell/knolqueue/internal/parser"
)

// LoadError reports a deck source that could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("unable to load flashcards from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type item struct {
	Question *string `json:"question"`
	Answer   *string `json:"answer"`
}

// Load reads a deck from path. Markdown files (.md) use the Q:/A: format,
// a directory is every markdown file below it in lexical order, and
// anything else is decoded as a JSON array of {question, answer} objects.
// Card ids are assigned from the 1-based position in the source.
func Load(path string) ([]domain.Card, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if info.IsDir() {
		return loadDir(path)
	}
	if isMarkdown(path) {
		entries, err := parser.ParseFile(path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		return fromEntries(entries), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	cards, err := Decode(raw)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return cards, nil
}

// Decode parses a JSON deck. Missing fields default to the empty string.
func Decode(raw []byte) ([]domain.Card, error) {
	var items []item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode deck: %w", err)
	}
	cards := make([]domain.Card, 0, len(items))
	for i, it := range items {
		cards = append(cards, newCard(i, deref(it.Question), deref(it.Answer)))
	}
	return cards, nil
}

func loadDir(dir string) ([]domain.Card, error) {
	var entries []parser.Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(path) {
			return nil
		}
		fileEntries, err := parser.ParseFile(path)
		if err != nil {
			return fmt.Errorf("error parsing %s: %w", path, err)
		}
		entries = append(entries, fileEntries...)
		return nil
	})
	if err != nil {
		return nil, &LoadError{Path: dir, Err: err}
	}
	return fromEntries(entries), nil
}

func isMarkdown(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}

func fromEntries(entries []parser.Entry) []domain.Card {
	cards := make([]domain.Card, 0, len(entries))
	for i, e := range entries {
		cards = append(cards, newCard(i, e.Question, e.Answer))
	}
	return cards
}

func newCard(index int, question, answer string) domain.Card {
	return domain.Card{
		ID:       index + 1,
		Question: strings.TrimSpace(question),
		Answer:   strings.TrimSpace(answer),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
