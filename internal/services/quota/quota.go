package quota

import (
	"context"
	"fmt"
	"time"

	"ghostleaks/internal/domain"
	"ghostleaks/internal/ports"
)

// Service enforces per-user scan quotas: free accounts get a fixed number of
// scans per period, pro accounts are unlimited.
type Service struct {
	users       ports.UserRepository
	freeScans   int
	resetPeriod time.Duration
	now         func() time.Time
}

func New(users ports.UserRepository, freeScans int, resetPeriod time.Duration) *Service {
	if resetPeriod <= 0 {
		resetPeriod = 24 * time.Hour
	}
	return &Service{users: users, freeScans: freeScans, resetPeriod: resetPeriod, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CanConsume refills an expired free allowance, then reports whether a scan
// slot is available.
func (s *Service) CanConsume(ctx context.Context, userID string) (bool, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user %s: %w", userID, err)
	}
	if !u.IsActive {
		return false, nil
	}
	if u.Plan == domain.PlanPro {
		return true, nil
	}
	now := s.now()
	if now.Sub(u.LastScanReset) > s.resetPeriod {
		if err := s.users.ResetDailyScans(ctx, userID, s.freeScans, now); err != nil {
			return false, fmt.Errorf("reset quota for %s: %w", userID, err)
		}
		u.ScansRemaining = s.freeScans
	}
	return u.ScansRemaining > 0, nil
}

// Consume takes one slot. Concurrent callers racing for the last slot get
// domain.ErrQuotaExceeded.
func (s *Service) Consume(ctx context.Context, userID string) error {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if u.Plan == domain.PlanPro {
		return nil
	}
	ok, err := s.users.DecrementScans(ctx, userID)
	if err != nil {
		return fmt.Errorf("decrement quota for %s: %w", userID, err)
	}
	if !ok {
		return domain.ErrQuotaExceeded
	}
	return nil
}
