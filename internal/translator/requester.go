package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/doctranslate/internal/chunker"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second

	// maxBackoffShift caps the exponent so 2^attempt cannot overflow a Duration.
	maxBackoffShift = 16
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy is the retry schedule for transient remote failures.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Jitter is added to rate-limit delays and must return a value in [0, 1s).
	Jitter func() time.Duration
	Sleep  Sleeper
}

// DefaultPolicy returns 5 attempts, a 1s base delay, uniform jitter and wall-clock sleeps.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Backoff returns the delay before the attempt following attempt (0-indexed).
// Rate limits wait BaseDelay*2^attempt plus jitter; server errors and timeouts wait 2^attempt seconds.
// The exponent stops growing at 2^16.
func (p Policy) Backoff(kind FailureKind, attempt int) time.Duration {
	attempt = min(max(attempt, 0), maxBackoffShift)
	exp := time.Duration(1) << uint(attempt)
	if kind == FailureRateLimited {
		return p.baseDelay()*exp + p.jitter()
	}
	return exp * time.Second
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return p.BaseDelay
}

func (p Policy) jitter() time.Duration {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return time.Duration(rand.Int64N(int64(time.Second)))
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Requester translates chunks through a Generator, retrying transient failures.
type Requester struct {
	gen    Generator
	policy Policy
	stats  *LatencyStats
	log    *slog.Logger
}

func NewRequester(gen Generator, policy Policy, stats *LatencyStats, log *slog.Logger) *Requester {
	if log == nil {
		log = slog.Default()
	}
	return &Requester{gen: gen, policy: policy, stats: stats, log: log}
}

// Stats returns the latency tracker, which may be nil.
func (r *Requester) Stats() *LatencyStats {
	return r.stats
}

// Model names the remote model in use.
func (r *Requester) Model() string {
	return r.gen.Model()
}

// Translate sends one chunk with the document prompt and optional trailing context.
func (r *Requester) Translate(ctx context.Context, prompt, chunk, prevContext string) (Result, error) {
	return r.Do(ctx, Request{Prompt: prompt, Text: chunk, Context: prevContext})
}

// Do runs req under the retry policy. Exhausted retries and content blocks come back as a
// Result with a nil error; only non-retryable failures and cancellation return an error.
func (r *Requester) Do(ctx context.Context, req Request) (Result, error) {
	attempts := r.policy.attempts()
	log := r.log.With("chunk_chars", len(req.Text), "est_tokens", chunker.EstimateTokens(req.Text))

	var lastKind FailureKind
	for attempt := range attempts {
		start := time.Now()
		resp, err := r.gen.Generate(ctx, req)
		if r.stats != nil {
			r.stats.RecordCall(time.Since(start))
		}

		if err == nil {
			if resp == nil {
				return Result{}, errors.New("translate chunk: empty response")
			}
			var res Result
			if resp.Blocked {
				res = Blocked(resp.Categories)
				log.Warn("content blocked", "categories", resp.Categories, "reason", resp.Reason)
			} else {
				res = Translated(resp.Text)
			}
			res.Attempts = attempt + 1
			r.record(res)
			return res, nil
		}

		var remoteErr *RemoteError
		if !errors.As(err, &remoteErr) {
			return Result{}, fmt.Errorf("translate chunk: %w", err)
		}
		lastKind = remoteErr.Kind

		if attempt == attempts-1 {
			break
		}
		delay := r.policy.Backoff(remoteErr.Kind, attempt)
		log.Warn("retryable translation error", "attempt", attempt+1, "kind", remoteErr.Kind, "delay", delay, "error", err)
		if err := r.policy.sleep(ctx, delay); err != nil {
			return Result{}, fmt.Errorf("translate chunk: %w", err)
		}
	}

	res := Failed(lastKind)
	res.Attempts = attempts
	log.Error("max retries reached", "kind", lastKind, "attempts", attempts)
	r.record(res)
	return res, nil
}

func (r *Requester) record(res Result) {
	if r.stats != nil {
		r.stats.RecordResult(res)
	}
}
