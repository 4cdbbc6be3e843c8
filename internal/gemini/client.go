// Package gemini adapts the Google Gen AI SDK to translator.Generator.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/genai"

	"github.com/dgallion1/doctranslate/internal/translator"
)

const DefaultModel = "gemini-1.5-flash"

// contentGenerator is the subset of *genai.Models the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client calls the Gemini API.
type Client struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	http    *http.Client
}

func NewClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}
	httpClient := &http.Client{}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{models: gc.Models, model: model, timeout: timeout, http: httpClient}, nil
}

func (c *Client) Model() string {
	return c.model
}

// Generate sends the request as a single user turn.
func (c *Client) Generate(ctx context.Context, req translator.Request) (*translator.Response, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.models.GenerateContent(callCtx, c.model, buildContents(req), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyError(err)
	}
	return interpretResponse(resp), nil
}

// Close releases idle connections.
func (c *Client) Close() {
	if c.http != nil {
		c.http.CloseIdleConnections()
	}
}

func buildContents(req translator.Request) []*genai.Content {
	var parts []*genai.Part
	for _, text := range req.Parts() {
		parts = append(parts, genai.NewPartFromText(text))
	}
	if att := req.Attachment; att != nil && len(att.Data) > 0 {
		mime := att.MIMEType
		if mime == "" {
			mime = mimetype.Detect(att.Data).String()
		}
		parts = append(parts, genai.NewPartFromBytes(att.Data, mime))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

// interpretResponse treats a response without any text part as a content block.
func interpretResponse(resp *genai.GenerateContentResponse) *translator.Response {
	if resp == nil {
		return &translator.Response{Blocked: true, Reason: "empty response"}
	}

	var text strings.Builder
	hasText := false
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			text.WriteString(part.Text)
			hasText = true
		}
		if hasText {
			break
		}
	}
	if hasText {
		return &translator.Response{Text: text.String()}
	}

	out := &translator.Response{Blocked: true}
	seen := map[string]bool{}
	addRatings := func(ratings []*genai.SafetyRating) {
		for _, r := range ratings {
			if r == nil || r.Probability == genai.HarmProbabilityNegligible {
				continue
			}
			cat := string(r.Category)
			if cat == "" || seen[cat] {
				continue
			}
			seen[cat] = true
			out.Categories = append(out.Categories, cat)
		}
	}
	if pf := resp.PromptFeedback; pf != nil {
		addRatings(pf.SafetyRatings)
		if pf.BlockReason != "" {
			out.Reason = string(pf.BlockReason)
		}
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		addRatings(cand.SafetyRatings)
		if out.Reason == "" && cand.FinishReason != "" {
			out.Reason = string(cand.FinishReason)
		}
	}
	if len(out.Categories) == 0 && out.Reason != "" {
		out.Categories = []string{out.Reason}
	}
	return out
}

// classifyError maps SDK errors onto retryable failure kinds.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return translator.Unavailable(0, "request timed out", err)
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return fmt.Errorf("gemini: %w", err)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		return translator.RateLimited(apiErr.Code, apiErr.Message, err)
	case apiErr.Code >= 500 || isUnavailableStatus(apiErr.Status):
		return translator.Unavailable(apiErr.Code, apiErr.Message, err)
	default:
		return fmt.Errorf("gemini api status %d: %w", apiErr.Code, err)
	}
}

func isUnavailableStatus(status string) bool {
	switch status {
	case "INTERNAL", "UNAVAILABLE", "DEADLINE_EXCEEDED":
		return true
	}
	return false
}
