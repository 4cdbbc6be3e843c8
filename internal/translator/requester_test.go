package translator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// scriptedGenerator replays a fixed sequence of responses/errors, one per call.
type scriptedGenerator struct {
	steps []step
	calls int
	reqs  []Request
}

type step struct {
	resp *Response
	err  error
}

func (g *scriptedGenerator) Generate(_ context.Context, req Request) (*Response, error) {
	g.reqs = append(g.reqs, req)
	s := g.steps[len(g.steps)-1]
	if g.calls < len(g.steps) {
		s = g.steps[g.calls]
	}
	g.calls++
	return s.resp, s.err
}

func (g *scriptedGenerator) Model() string { return "scripted" }

// fakeClock records requested sleeps instead of blocking.
type fakeClock struct {
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) total() time.Duration {
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRequester(gen Generator, clock *fakeClock, jitter time.Duration) *Requester {
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Jitter:      func() time.Duration { return jitter },
		Sleep:       clock.Sleep,
	}
	return NewRequester(gen, policy, NewLatencyStats(time.Hour), quietLogger())
}

func TestRequester_Success(t *testing.T) {
	gen := &scriptedGenerator{steps: []step{{resp: &Response{Text: "BONJOUR"}}}}
	clock := &fakeClock{}
	r := newTestRequester(gen, clock, 0)

	res, err := r.Translate(context.Background(), "Translate to French.", "hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK() || res.Text != "BONJOUR" {
		t.Errorf("expected translated BONJOUR, got %+v", res)
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no sleeps, got %v", clock.sleeps)
	}
}

func TestRequester_PassesPromptContextAndChunk(t *testing.T) {
	gen := &scriptedGenerator{steps: []step{{resp: &Response{Text: "ok"}}}}
	r := newTestRequester(gen, &fakeClock{}, 0)

	if _, err := r.Translate(context.Background(), "P", "chunk text", "previous tail"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := gen.reqs[0]
	if req.Prompt != "P" || req.Text != "chunk text" || req.Context != "previous tail" {
		t.Errorf("unexpected request %+v", req)
	}
	parts := req.Parts()
	if len(parts) != 3 || parts[0] != "P" || parts[2] != "chunk text" {
		t.Fatalf("unexpected parts %q", parts)
	}
	if !strings.HasSuffix(parts[1], "previous tail") {
		t.Errorf("expected context part to end with the tail, got %q", parts[1])
	}
}

func TestRequester_RateLimitBackoffSchedule(t *testing.T) {
	const jitter = 250 * time.Millisecond
	gen := &scriptedGenerator{steps: []step{{err: RateLimited(429, "quota", nil)}}}
	clock := &fakeClock{}
	r := newTestRequester(gen, clock, jitter)

	res, err := r.Translate(context.Background(), "P", "text", "")
	if err != nil {
		t.Fatalf("expected no error after exhausted retries, got %v", err)
	}
	if gen.calls != 5 {
		t.Fatalf("expected exactly 5 attempts, got %d", gen.calls)
	}
	if res.Outcome != OutcomeFailed || res.Failure != FailureRateLimited {
		t.Fatalf("expected rate-limit failure, got %+v", res)
	}
	if res.Render() != RateLimitSentinel {
		t.Errorf("expected rate-limit sentinel, got %q", res.Render())
	}

	// Four delays: attempts 0..3; none after the final attempt.
	if len(clock.sleeps) != 4 {
		t.Fatalf("expected 4 sleeps, got %d: %v", len(clock.sleeps), clock.sleeps)
	}
	var want time.Duration
	for k, got := range clock.sleeps {
		expected := time.Second*time.Duration(1<<k) + jitter
		if got != expected {
			t.Errorf("sleep %d: expected %v, got %v", k, expected, got)
		}
		want += expected
	}
	if clock.total() != want {
		t.Errorf("expected total simulated delay %v, got %v", want, clock.total())
	}
}

func TestRequester_DefaultJitterInRange(t *testing.T) {
	p := Policy{BaseDelay: time.Second}
	for attempt := range 4 {
		base := time.Second * time.Duration(1<<attempt)
		for range 50 {
			d := p.Backoff(FailureRateLimited, attempt)
			if d < base || d >= base+time.Second {
				t.Fatalf("attempt %d: delay %v outside [%v, %v)", attempt, d, base, base+time.Second)
			}
		}
	}
}

func TestPolicy_BackoffLargeAttemptStaysPositive(t *testing.T) {
	p := Policy{BaseDelay: time.Second, Jitter: func() time.Duration { return 0 }}
	ceiling := time.Duration(1<<maxBackoffShift) * time.Second
	for _, attempt := range []int{maxBackoffShift, 34, 63, 100} {
		for _, kind := range []FailureKind{FailureRateLimited, FailureUnavailable} {
			if d := p.Backoff(kind, attempt); d != ceiling {
				t.Errorf("Backoff(%s, %d) = %v, want %v", kind, attempt, d, ceiling)
			}
		}
	}
}

func TestRequester_ServerErrorBackoffAndSentinel(t *testing.T) {
	gen := &scriptedGenerator{steps: []step{{err: Unavailable(503, "overloaded", nil)}}}
	clock := &fakeClock{}
	r := newTestRequester(gen, clock, 999*time.Millisecond)

	res, err := r.Translate(context.Background(), "P", "text", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Failure != FailureUnavailable || res.Render() != UnavailableSentinel {
		t.Errorf("expected unavailable sentinel, got %+v", res)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(clock.sleeps) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), clock.sleeps)
	}
	for i := range want {
		if clock.sleeps[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], clock.sleeps[i])
		}
	}
}

func TestRequester_RecoversAfterTransientFailures(t *testing.T) {
	gen := &scriptedGenerator{steps: []step{
		{err: RateLimited(429, "quota", nil)},
		{err: Unavailable(500, "internal", nil)},
		{resp: &Response{Text: "done"}},
	}}
	clock := &fakeClock{}
	r := newTestRequester(gen, clock, 0)

	res, err := r.Translate(context.Background(), "P", "text", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK() || res.Attempts != 3 {
		t.Errorf("expected success on attempt 3, got %+v", res)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(clock.sleeps) != 2 || clock.sleeps[0] != want[0] || clock.sleeps[1] != want[1] {
		t.Errorf("expected sleeps %v, got %v", want, clock.sleeps)
	}
	if snap := r.Stats().Snapshot(); snap.Calls != 3 || snap.Retries != 2 {
		t.Errorf("expected 3 calls and 2 retries recorded, got %+v", snap)
	}
}

func TestRequester_BlockedIsNotRetried(t *testing.T) {
	gen := &scriptedGenerator{steps: []step{{resp: &Response{
		Blocked:    true,
		Categories: []string{"HARM_CATEGORY_DANGEROUS_CONTENT"},
	}}}}
	clock := &fakeClock{}
	r := newTestRequester(gen, clock, 0)

	res, err := r.Translate(context.Background(), "P", "text", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("expected 1 call for a blocked response, got %d", gen.calls)
	}
	if res.Outcome != OutcomeBlocked {
		t.Fatalf("expected blocked outcome, got %v", res.Outcome)
	}
	want := "Warning: Content blocked due to: HARM_CATEGORY_DANGEROUS_CONTENT"
	if res.Render() != want {
		t.Errorf("expected %q, got %q", want, res.Render())
	}
}

func TestRequester_HardErrorPropagates(t *testing.T) {
	boom := errors.New("invalid api key")
	gen := &scriptedGenerator{steps: []step{{err: boom}}}
	clock := &fakeClock{}
	r := newTestRequester(gen, clock, 0)

	_, err := r.Translate(context.Background(), "P", "text", "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped hard error, got %v", err)
	}
	if gen.calls != 1 || len(clock.sleeps) != 0 {
		t.Errorf("expected a single call and no sleeps, got calls=%d sleeps=%v", gen.calls, clock.sleeps)
	}
}

func TestRequester_CancelledDuringBackoff(t *testing.T) {
	gen := &scriptedGenerator{steps: []step{{err: RateLimited(429, "quota", nil)}}}
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{
		MaxAttempts: 5,
		Jitter:      func() time.Duration { return 0 },
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	r := NewRequester(gen, policy, nil, quietLogger())

	_, err := r.Translate(ctx, "P", "text", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", gen.calls)
	}
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestErrorPredicates(t *testing.T) {
	rl := RateLimited(429, "slow down", nil)
	un := Unavailable(504, "timeout", context.DeadlineExceeded)
	wrapped := errors.Join(errors.New("outer"), rl)

	if !IsRateLimited(rl) || IsUnavailable(rl) {
		t.Error("rate-limit predicate mismatch")
	}
	if !IsUnavailable(un) || IsRateLimited(un) {
		t.Error("unavailable predicate mismatch")
	}
	if !errors.Is(un, context.DeadlineExceeded) {
		t.Error("expected RemoteError to unwrap its cause")
	}
	if !IsRetryable(wrapped) {
		t.Error("expected wrapped RemoteError to be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain error must not be retryable")
	}
}

func TestBuildPrompt(t *testing.T) {
	if got := BuildPrompt("French", ""); got != "Translate the following text to French." {
		t.Errorf("unexpected prompt %q", got)
	}
	got := BuildPrompt(" German ", "  Keep a formal tone. ")
	if got != "Translate the following text to German. Keep a formal tone." {
		t.Errorf("unexpected prompt %q", got)
	}
}

func TestResultRender(t *testing.T) {
	if got := Translated("hola").Render(); got != "hola" {
		t.Errorf("expected translated text, got %q", got)
	}
	got := Blocked([]string{"HARM_CATEGORY_HARASSMENT", "HARM_CATEGORY_HATE_SPEECH"}).Render()
	if got != "Warning: Content blocked due to: HARM_CATEGORY_HARASSMENT, HARM_CATEGORY_HATE_SPEECH" {
		t.Errorf("unexpected block warning %q", got)
	}
	if got := Blocked(nil).Render(); !strings.HasSuffix(got, "unspecified") {
		t.Errorf("expected unspecified category, got %q", got)
	}
	if got := Failed(FailureUnavailable).Render(); got != UnavailableSentinel {
		t.Errorf("unexpected sentinel %q", got)
	}
}
