package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/relaychat/internal/providers")

// CredentialPool is the slice of credentials.Pool the failover client needs.
type CredentialPool interface {
	Len() int
	Current(ctx context.Context) (int, string, error)
	Advance(ctx context.Context, from int) (int, error)
}

// FailoverConfig tunes the retry protocol. Zero values take the defaults below.
type FailoverConfig struct {
	// RejectBackoff follows a rotation caused by an invalid, quota-exhausted or blocked request.
	RejectBackoff time.Duration
	// TransientBackoff follows a rotation caused by any other error.
	TransientBackoff time.Duration
	// DefaultRetryAfter is used when a rate-limit response carries no wait hint.
	DefaultRetryAfter time.Duration
	// MaxRetryAfter caps a provider-suggested wait.
	MaxRetryAfter time.Duration
	// RetriesPerKey: a sweep ends only on attempts that are a multiple of this.
	RetriesPerKey int
}

func (c FailoverConfig) withDefaults() FailoverConfig {
	if c.RejectBackoff <= 0 {
		c.RejectBackoff = 4 * time.Second
	}
	if c.TransientBackoff <= 0 {
		c.TransientBackoff = 2 * time.Second
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = 5 * time.Second
	}
	if c.MaxRetryAfter <= 0 {
		c.MaxRetryAfter = time.Minute
	}
	if c.RetriesPerKey <= 0 {
		c.RetriesPerKey = 1
	}
	return c
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FailoverClient runs a Generator against a rotating credential pool.
//
// Each call makes at most 2×poolSize attempts:
//   - success returns immediately without rotating
//   - rate-limited: wait the suggested time, then rotate
//   - invalid credential, quota exceeded, blocked content: rotate, then a short backoff
//   - anything else: rotate, then a short backoff
//
// Rate-limited and transient failures end the call with ErrExhausted once the
// cursor has swept back to where it started (or the pool holds one key).
type FailoverClient struct {
	gen    Generator
	pool   CredentialPool
	cfg    FailoverConfig
	sleep  SleepFunc
	notify Notifier
}

// Notifier receives a line each time a failing key is rotated out.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

func NewFailoverClient(gen Generator, pool CredentialPool, cfg FailoverConfig) *FailoverClient {
	return &FailoverClient{gen: gen, pool: pool, cfg: cfg.withDefaults(), sleep: sleepCtx}
}

// WithSleep replaces the backoff sleeper (tests).
func (c *FailoverClient) WithSleep(fn SleepFunc) *FailoverClient {
	c.sleep = fn
	return c
}

// WithNotifier reports key switches to n.
func (c *FailoverClient) WithNotifier(n Notifier) *FailoverClient {
	c.notify = n
	return c
}

// Generate returns the first successful response, ErrExhausted (wrapping the last
// classified failure), or a pool/context error.
func (c *FailoverClient) Generate(ctx context.Context, req Request) (string, error) {
	n := c.pool.Len()
	start, _, err := c.pool.Current(ctx)
	if err != nil {
		return "", err
	}

	maxAttempts := 2 * n
	var last *ClassifiedError
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx, key, err := c.pool.Current(ctx)
		if err != nil {
			return "", err
		}

		text, genErr := c.attempt(ctx, attempt, idx, key, req)
		if genErr == nil {
			return text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		last = Classify(genErr)
		slog.Warn("generation attempt failed",
			"provider", c.gen.Name(),
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"key_index", idx,
			"class", last.Class.String(),
			"error", last.Err,
		)

		switch last.Class {
		case ClassRateLimited:
			wait := last.RetryAfter
			if wait <= 0 {
				wait = c.cfg.DefaultRetryAfter
			}
			if err := c.sleep(ctx, min(wait, c.cfg.MaxRetryAfter)); err != nil {
				return "", err
			}
			next, err := c.rotate(ctx, idx, last)
			if err != nil {
				return "", err
			}
			if c.sweepDone(attempt, next, start, n) {
				return "", c.exhausted(attempt+1, last)
			}

		case ClassInvalidCredential, ClassQuotaExceeded, ClassContentBlocked:
			if _, err := c.rotate(ctx, idx, last); err != nil {
				return "", err
			}
			if attempt+1 < maxAttempts {
				if err := c.sleep(ctx, c.cfg.RejectBackoff); err != nil {
					return "", err
				}
			}

		default:
			next, err := c.rotate(ctx, idx, last)
			if err != nil {
				return "", err
			}
			if c.sweepDone(attempt, next, start, n) {
				return "", c.exhausted(attempt+1, last)
			}
			if err := c.sleep(ctx, c.cfg.TransientBackoff); err != nil {
				return "", err
			}
		}
	}
	return "", c.exhausted(maxAttempts, last)
}

// rotate advances past idx and tells the operator when the cursor moved.
func (c *FailoverClient) rotate(ctx context.Context, idx int, cause *ClassifiedError) (int, error) {
	next, err := c.pool.Advance(ctx, idx)
	if err != nil {
		return 0, fmt.Errorf("rotate credential: %w", err)
	}
	if c.notify != nil && next != idx {
		c.notify.Notify(ctx, fmt.Sprintf("Key %d failed (%s), switching to key %d.", idx+1, cause.Class, next+1))
	}
	return next, nil
}

func (c *FailoverClient) sweepDone(attempt, next, start, n int) bool {
	return (attempt+1)%c.cfg.RetriesPerKey == 0 && (next == start || n == 1)
}

func (c *FailoverClient) exhausted(attempts int, last *ClassifiedError) error {
	if last == nil {
		return fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

func (c *FailoverClient) attempt(ctx context.Context, attempt, idx int, key string, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "generate.attempt", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", c.gen.Name()),
		attribute.String("model", req.Model),
		attribute.Int("attempt", attempt+1),
		attribute.Int("key_index", idx),
	)

	text, err := c.gen.Generate(ctx, key, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Classify(err).Class.String())
		return "", err
	}
	span.SetAttributes(attribute.Int("response_chars", len(text)))
	return text, nil
}
