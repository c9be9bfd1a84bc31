package rescan

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/ports"
)

// Policy controls per-source backoff on rate limiting during scheduled
// rescans. The zero value disables retries.
type Policy struct {
	MaxRetries uint64
	Backoff    time.Duration
}

func (p Policy) Enabled() bool { return p.MaxRetries > 0 }

type retryingAdapter struct {
	next   ports.SourceAdapter
	policy Policy
}

// WithBackoff wraps adapters so a rate-limited lookup is retried with
// exponential backoff. Other errors are returned immediately.
func WithBackoff(adapters []ports.SourceAdapter, p Policy) []ports.SourceAdapter {
	if !p.Enabled() {
		return adapters
	}
	out := make([]ports.SourceAdapter, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, retryingAdapter{next: a, policy: p})
	}
	return out
}

func (r retryingAdapter) Name() string { return r.next.Name() }

func (r retryingAdapter) Lookup(ctx context.Context, email string) ([]domain.Finding, error) {
	base := r.policy.Backoff
	if base <= 0 {
		base = time.Second
	}
	b := retry.WithMaxRetries(r.policy.MaxRetries, retry.NewExponential(base))

	var findings []domain.Finding
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		f, err := r.next.Lookup(ctx, email)
		if errors.Is(err, domain.ErrSourceRateLimited) {
			return retry.RetryableError(err)
		}
		findings = f
		return err
	})
	return findings, err
}
