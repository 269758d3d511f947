package parser

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	separator      = "---"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

// Entry is a single question-answer block of a markdown deck.
// Context is parsed so that "C:" lines never leak into the answer, but it is
// not part of a reviewable card.
type Entry struct {
	Question string
	Answer   string
	Context  string
}

// ParseFile reads a file from the given path and extracts all entries.
func ParseFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all entries in document order.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var entries []Entry
	var current Entry
	var block []string
	currentState := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch currentState {
		case readingQuestion:
			current.Question = content
		case readingAnswer:
			current.Answer = content
		case readingContext:
			current.Context = content
		}
		block = nil
	}

	finishEntry := func() {
		flushBlock()
		if current.Question != "" {
			entries = append(entries, current)
		}
		current = Entry{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			finishEntry()
			continue
		}

		next, content, ok := prefixed(line)
		if !ok {
			if currentState != seeking {
				block = append(block, line)
			}
			continue
		}

		if next == readingQuestion && currentState != seeking {
			// A new question always starts a new entry
			finishEntry()
		}
		flushBlock()
		currentState = next
		block = append(block, content)
	}

	finishEntry()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// prefixed reports which block a line opens and returns its content with a
// single optional space after the prefix removed.
func prefixed(line string) (state, string, bool) {
	var next state
	var prefix string
	switch {
	case strings.HasPrefix(line, questionPrefix):
		next, prefix = readingQuestion, questionPrefix
	case strings.HasPrefix(line, answerPrefix):
		next, prefix = readingAnswer, answerPrefix
	case strings.HasPrefix(line, contextPrefix):
		next, prefix = readingContext, contextPrefix
	default:
		return seeking, "", false
	}
	return next, strings.TrimPrefix(line[len(prefix):], " "), true
}
