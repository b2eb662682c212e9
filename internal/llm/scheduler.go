package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/study-resources/internal/apperr"
	"github.com/jonathan/study-resources/internal/logger"
	"github.com/jonathan/study-resources/internal/ratelimit"
)

// Payload-size tiers for the base timeout.
const (
	timeoutNoAttachments = 60 * time.Second
	timeoutSmall         = 90 * time.Second
	timeoutMedium        = 120 * time.Second
	timeoutLarge         = 180 * time.Second

	smallPayloadLimit  = 1 << 20 // 1 MiB
	mediumPayloadLimit = 8 << 20 // 8 MiB
)

// RetryPolicy controls the scheduler's attempt budget and delays.
type RetryPolicy struct {
	MaxAttempts int
	// Multipliers scale the base timeout per attempt; the last entry is
	// reused if there are more attempts than entries.
	Multipliers      []float64
	RateLimitPenalty time.Duration
	TimeoutPenalty   time.Duration
	// BackoffStep is multiplied by the attempt number.
	BackoffStep time.Duration
}

// DefaultRetryPolicy returns the fixed three-attempt policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		Multipliers:      []float64{1, 1.5, 2},
		RateLimitPenalty: 30 * time.Second,
		TimeoutPenalty:   10 * time.Second,
		BackoffStep:      2 * time.Second,
	}
}

// Attempt describes one try within a single Execute call.
type Attempt struct {
	Number  int
	Timeout time.Duration
	PrevErr error
}

// SchedulerOptions are the optional collaborators of a Scheduler.
type SchedulerOptions struct {
	Clock       ratelimit.Clock
	Credentials CredentialScope
	Policy      *RetryPolicy
	Logger      *logger.Logger
}

// Scheduler throttles, times out and retries calls to a Client. One Scheduler
// is shared by every request in the process so they contend for the same
// window budget.
type Scheduler struct {
	client Client
	window *ratelimit.Window
	clock  ratelimit.Clock
	creds  CredentialScope
	policy RetryPolicy
	log    *logger.Logger
}

// NewScheduler wires a client to a rate-limit window.
func NewScheduler(client Client, window *ratelimit.Window, opts SchedulerOptions) *Scheduler {
	s := &Scheduler{
		client: client,
		window: window,
		clock:  opts.Clock,
		creds:  opts.Credentials,
		policy: DefaultRetryPolicy(),
		log:    opts.Logger,
	}
	if s.clock == nil {
		s.clock = ratelimit.SystemClock{}
	}
	if s.window == nil {
		s.window = ratelimit.NewWindow(nil, s.clock)
	}
	if s.creds == nil {
		s.creds = NopCredentialScope{}
	}
	if opts.Policy != nil {
		s.policy = *opts.Policy
	}
	if s.policy.MaxAttempts <= 0 {
		s.policy.MaxAttempts = 1
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.With("component", "scheduler")
	return s
}

// BaseTimeout returns the first-attempt timeout for a request, chosen from
// fixed tiers by attachment count and total size.
func BaseTimeout(req *Request) time.Duration {
	n := len(req.attachments)
	size := req.PayloadSize()
	switch {
	case n == 0:
		return timeoutNoAttachments
	case n == 1 && size < smallPayloadLimit:
		return timeoutSmall
	case size < mediumPayloadLimit:
		return timeoutMedium
	default:
		return timeoutLarge
	}
}

// AttemptTimeout returns the timeout for attempt (1-based).
func (p RetryPolicy) AttemptTimeout(base time.Duration, attempt int) time.Duration {
	if len(p.Multipliers) == 0 {
		return base
	}
	i := attempt - 1
	if i >= len(p.Multipliers) {
		i = len(p.Multipliers) - 1
	}
	return time.Duration(float64(base) * p.Multipliers[i])
}

// Delay returns how long to wait after a failed attempt.
func (p RetryPolicy) Delay(err *apperr.TransientError, attempt int) time.Duration {
	delay := time.Duration(attempt) * p.BackoffStep
	switch err.Kind {
	case apperr.KindRateLimited:
		delay += p.RateLimitPenalty
	case apperr.KindTimeout:
		delay += p.TimeoutPenalty
	}
	return delay
}

// Execute runs req against the client. It returns a Result, or one of
// *apperr.FatalError (no retry), *apperr.ProtocolError (empty or blocked
// upstream response) or *apperr.TransientError (budget exhausted).
func (s *Scheduler) Execute(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}

	release, err := s.creds.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire credentials: %w", err)
	}
	defer release()

	base := BaseTimeout(req)
	var last *apperr.TransientError

	for n := 1; n <= s.policy.MaxAttempts; n++ {
		attempt := Attempt{Number: n, Timeout: s.policy.AttemptTimeout(base, n)}
		if last != nil {
			attempt.PrevErr = last
		}

		waited, err := s.window.Wait(ctx)
		if err != nil {
			return nil, err
		}
		if waited > 0 {
			s.log.Debug("throttled before dispatch", "waited", waited, "attempt", n)
		}

		resp, err := s.dispatch(ctx, req, attempt)
		if err == nil {
			return &Result{
				Text: resp.Text,
				Usage: Usage{
					Model:        resp.Model,
					Attempt:      n,
					Timestamp:    s.clock.Now(),
					PromptTokens: resp.PromptTokens,
					OutputTokens: resp.OutputTokens,
				},
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		classified := classify(err)
		var transient *apperr.TransientError
		if !errors.As(classified, &transient) {
			s.log.Warn("generative call failed permanently", "attempt", n, "category", apperr.CategoryOf(classified), "error", classified)
			return nil, classified
		}
		last = transient

		if n == s.policy.MaxAttempts {
			break
		}
		delay := s.policy.Delay(transient, n)
		s.log.Warn("generative call failed, retrying",
			"attempt", n,
			"kind", transient.Kind,
			"timeout", attempt.Timeout,
			"delay", delay,
			"error", transient.Cause,
		)
		if err := s.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &apperr.TransientError{
		Kind:     last.Kind,
		Attempts: s.policy.MaxAttempts,
		Cause:    fmt.Errorf("generation failed: last error: %w", last.Cause),
	}
}

func (s *Scheduler) dispatch(ctx context.Context, req *Request, attempt Attempt) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, attempt.Timeout)
	defer cancel()

	resp, err := s.client.Generate(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	if resp == nil || resp.Text == "" {
		return nil, &apperr.ProtocolError{Kind: apperr.KindMalformedUpstream, Cause: errors.New("empty response text")}
	}
	return resp, nil
}
