package translator

import (
	"fmt"
	"strings"
)

// ContextPreamble introduces the previous chunk's translation in a request.
const ContextPreamble = "For continuity, this is the end of the previous section's translation. Do not translate or repeat it:"

// BuildPrompt creates the instruction sent with every chunk of a document.
func BuildPrompt(targetLanguage, customPrompt string) string {
	prompt := fmt.Sprintf("Translate the following text to %s.", strings.TrimSpace(targetLanguage))
	if custom := strings.TrimSpace(customPrompt); custom != "" {
		prompt += " " + custom
	}
	return prompt
}

// Parts lays out a request as ordered text segments: prompt, optional context, chunk.
func (r Request) Parts() []string {
	parts := []string{r.Prompt}
	if strings.TrimSpace(r.Context) != "" {
		parts = append(parts, ContextPreamble+"\n"+r.Context)
	}
	return append(parts, r.Text)
}
