package chunker

import "strings"

// TokenCounter counts tokens in a piece of text. Implementations must be
// deterministic, and appending text must never lower the count.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a plain function to TokenCounter.
type TokenCounterFunc func(text string) int

func (f TokenCounterFunc) Count(text string) int {
	return f(text)
}

// WordCounter counts whitespace-separated words.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}
