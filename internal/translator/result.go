package translator

import "strings"

// Outcome tags a Result.
type Outcome int

const (
	OutcomeTranslated Outcome = iota
	OutcomeBlocked
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTranslated:
		return "translated"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Text embedded in the output document in place of a chunk that could not be translated.
const (
	RateLimitSentinel   = "Error: Rate limit exceeded. Please try again later."
	UnavailableSentinel = "Error: The translation service is currently unresponsive. Please try again later."
	blockedPrefix       = "Warning: Content blocked due to: "
)

// Result is the outcome of translating one chunk.
type Result struct {
	Outcome    Outcome
	Text       string      // Translated text, set for OutcomeTranslated.
	Categories []string    // Safety categories, set for OutcomeBlocked.
	Failure    FailureKind // Set for OutcomeFailed.
	Attempts   int
}

// Translated wraps successful output.
func Translated(text string) Result {
	return Result{Outcome: OutcomeTranslated, Text: text}
}

// Blocked wraps a content-policy block.
func Blocked(categories []string) Result {
	return Result{Outcome: OutcomeBlocked, Categories: categories}
}

// Failed wraps exhausted retries.
func Failed(kind FailureKind) Result {
	return Result{Outcome: OutcomeFailed, Failure: kind}
}

// OK reports whether the chunk was translated.
func (r Result) OK() bool {
	return r.Outcome == OutcomeTranslated
}

// Render returns the text placed in the output document for this chunk.
func (r Result) Render() string {
	switch r.Outcome {
	case OutcomeBlocked:
		return BlockWarning(r.Categories)
	case OutcomeFailed:
		if r.Failure == FailureRateLimited {
			return RateLimitSentinel
		}
		return UnavailableSentinel
	default:
		return r.Text
	}
}

// BlockWarning formats the warning for a blocked chunk.
func BlockWarning(categories []string) string {
	if len(categories) == 0 {
		return blockedPrefix + "unspecified"
	}
	return blockedPrefix + strings.Join(categories, ", ")
}
