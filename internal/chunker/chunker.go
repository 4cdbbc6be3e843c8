package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkSize is the chunk bound, in characters, used when none is configured.
const DefaultMaxChunkSize = 10000

// word is a whitespace-delimited unit together with the whitespace that preceded it.
type word struct {
	sep  string
	text string
}

// Split breaks text into chunks of at most maxChunkSize characters, cutting only between
// words. Whitespace inside a chunk is kept as-is, so line and paragraph breaks survive.
// A word longer than maxChunkSize is emitted alone and unmodified. Whitespace-only input
// yields no chunks.
func Split(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	for _, w := range scanWords(text) {
		wordLen := utf8.RuneCountInString(w.text)
		if currentLen == 0 {
			current.WriteString(w.text)
			currentLen = wordLen
			continue
		}

		sepLen := utf8.RuneCountInString(w.sep)
		if currentLen+sepLen+wordLen > maxChunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(w.text)
			currentLen = wordLen
			continue
		}

		current.WriteString(w.sep)
		current.WriteString(w.text)
		currentLen += sepLen + wordLen
	}

	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// scanWords splits text into words, remembering the separator before each one.
// Leading and trailing whitespace of the whole text is dropped.
func scanWords(text string) []word {
	var words []word
	start := -1 // start of the current word, -1 while inside whitespace
	sepStart := 0

	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, word{sep: text[sepStart:start], text: text[start:i]})
				start = -1
				sepStart = i
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, word{sep: text[sepStart:start], text: text[start:]})
	}

	// The first word has no separator; leading whitespace is not part of any chunk.
	if len(words) > 0 {
		words[0].sep = ""
	}
	return words
}

// Trailing returns the last n characters of s, or s itself when it is shorter.
func Trailing(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-n:])
}
