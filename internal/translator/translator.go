// Package translator issues per-chunk translation requests against a generative-language
// API, applying the retry policy and classifying each outcome as translated, blocked or failed.
package translator

import "context"

// Attachment is optional inline binary content sent alongside the text.
type Attachment struct {
	Data     []byte
	MIMEType string // Sniffed by the adapter when empty.
}

// Request is a single translation call. It is never persisted.
type Request struct {
	Prompt     string
	Text       string
	Context    string // Trailing text of the previous chunk's translation, may be empty.
	Attachment *Attachment
}

// Response is what a remote API returned for one request.
type Response struct {
	Text string

	// Blocked is set when the API withheld output for content-policy reasons.
	Blocked    bool
	Categories []string // Safety categories that triggered the block.
	Reason     string   // Block reason reported by the API, if any.
}

// Generator is the remote translation API. Implementations map transient failures onto
// *RemoteError so the requester can apply its retry policy; any other error is final.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Model() string
}
