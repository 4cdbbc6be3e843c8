package chunker

import "strings"

// EstimateTokens gives a rough token count using the ~1.33 tokens/word heuristic.
// It is only used for logging and statistics; chunk bounds are in characters.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 && len(strings.TrimSpace(text)) > 0 {
		tokens = 1
	}
	return tokens
}
