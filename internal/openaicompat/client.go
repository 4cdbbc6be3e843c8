// Package openaicompat adapts any OpenAI-compatible chat completions endpoint to translator.Generator.
package openaicompat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sashabaranov/go-openai"

	"github.com/dgallion1/doctranslate/internal/translator"
)

const DefaultModel = openai.GPT4oMini

// Client calls the chat completions API.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	http    *http.Client
}

// NewClient builds a client. An empty baseURL targets api.openai.com.
func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	httpClient := &http.Client{}
	cfg.HTTPClient = httpClient
	return &Client{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		http:    httpClient,
	}
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Generate(ctx context.Context, req translator.Request) (*translator.Response, error) {
	msg, err := buildMessage(req)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: []openai.ChatCompletionMessage{msg},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return &translator.Response{Blocked: true, Reason: "no choices returned"}, nil
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return &translator.Response{
			Blocked:    true,
			Categories: []string{string(openai.FinishReasonContentFilter)},
			Reason:     string(choice.FinishReason),
		}, nil
	}
	if choice.Message.Content == "" {
		return &translator.Response{Blocked: true, Reason: "empty completion"}, nil
	}
	return &translator.Response{Text: choice.Message.Content}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func buildMessage(req translator.Request) (openai.ChatCompletionMessage, error) {
	text := strings.Join(req.Parts(), "\n\n")
	att := req.Attachment
	if att == nil || len(att.Data) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}, nil
	}

	mime := att.MIMEType
	if mime == "" {
		mime = mimetype.Detect(att.Data).String()
	}
	if !strings.HasPrefix(mime, "image/") {
		return openai.ChatCompletionMessage{}, fmt.Errorf("openai: unsupported attachment type %s", mime)
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(att.Data)
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: text},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
		},
	}, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return translator.Unavailable(0, "request timed out", err)
	}

	status, msg := 0, err.Error()
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status, msg = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return fmt.Errorf("openai: %w", err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return translator.RateLimited(status, msg, err)
	case status >= 500:
		return translator.Unavailable(status, msg, err)
	default:
		return fmt.Errorf("openai api status %d: %w", status, err)
	}
}
