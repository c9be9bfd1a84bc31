package ports

import (
	"context"

	"ghostleaks/internal/domain"
)

// SourceAdapter queries one breach-intelligence provider for an email.
// Lookup returns domain.ErrSourceUnavailable when unconfigured,
// domain.ErrSourceNotFound for an explicit "no records" answer, and
// domain.ErrSourceRateLimited or domain.ErrSourceTransient otherwise.
type SourceAdapter interface {
	Name() string
	Lookup(ctx context.Context, email string) ([]domain.Finding, error)
}

// Quota gates scan submission per user.
type Quota interface {
	CanConsume(ctx context.Context, userID string) (bool, error)
	Consume(ctx context.Context, userID string) error
}

// Dispatcher hands an accepted scan to background processing.
type Dispatcher interface {
	Dispatch(scanID string)
}

// AlertDispatcher delivers newly observed breaches found by a scheduled rescan.
type AlertDispatcher interface {
	DispatchNewBreaches(ctx context.Context, user domain.User, email string, findings []domain.Finding) error
}
